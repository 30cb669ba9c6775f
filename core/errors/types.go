// Package errors implements the turn fault taxonomy with classification
// and per-kind handling behavior.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// FaultKind classifies a failure inside a chat turn. Each kind has
// defined behavior for retry, user visibility, and turn termination.
type FaultKind string

const (
	// KindRoutingAmbiguity means intent was unclear. Recovered locally by
	// defaulting to the read-only support agent; never surfaced as an error.
	KindRoutingAmbiguity FaultKind = "routing_ambiguity"

	// KindSchemaValidation means tool arguments failed schema validation.
	// Recovered locally as a clarifying question; the collaborator is
	// never called.
	KindSchemaValidation FaultKind = "schema_validation"

	// KindPendingConfirmation is a control-flow outcome, not an error: a
	// gated tool needs the user's explicit confirmation before executing.
	KindPendingConfirmation FaultKind = "pending_confirmation"

	// KindToolExecution means a collaborator call failed. Surfaced as
	// user-visible text; retried only for idempotent tools.
	KindToolExecution FaultKind = "tool_execution"

	// KindTimeout means the turn exceeded its wall-clock budget. Fatal
	// for the turn; no state is committed.
	KindTimeout FaultKind = "timeout"

	// KindSuperseded means a newer turn for the same conversation started.
	// The older run's output is dropped silently.
	KindSuperseded FaultKind = "superseded"

	// KindStateConflict means the state commit lost an optimistic-version
	// race. Fatal for the turn; the prior state remains visible.
	KindStateConflict FaultKind = "state_conflict"

	// KindInternal covers unclassified failures. Fatal for the turn.
	KindInternal FaultKind = "internal"
)

// Behavior defines the handling rules for a fault kind.
type Behavior struct {
	// TurnFatal indicates the turn terminates with an error event.
	TurnFatal bool

	// UserVisible indicates the failure is surfaced to the user (as text
	// for absorbed faults, as an error event for fatal ones).
	UserVisible bool

	// Retryable indicates the failing operation may be retried. Tool
	// execution is additionally gated on the tool's idempotency.
	Retryable bool

	// MaxRetries is the retry attempt cap when Retryable.
	MaxRetries int

	// BaseBackoff is the initial backoff duration between retries.
	BaseBackoff time.Duration
}

// DefaultBehaviors returns the handling rules for each fault kind.
func DefaultBehaviors() map[FaultKind]Behavior {
	return map[FaultKind]Behavior{
		KindRoutingAmbiguity:    {TurnFatal: false, UserVisible: false},
		KindSchemaValidation:    {TurnFatal: false, UserVisible: true},
		KindPendingConfirmation: {TurnFatal: false, UserVisible: true},
		KindToolExecution: {
			TurnFatal:   false,
			UserVisible: true,
			Retryable:   true,
			MaxRetries:  2,
			BaseBackoff: 200 * time.Millisecond,
		},
		KindTimeout:       {TurnFatal: true, UserVisible: true},
		KindSuperseded:    {TurnFatal: true, UserVisible: false},
		KindStateConflict: {TurnFatal: true, UserVisible: true},
		KindInternal:      {TurnFatal: true, UserVisible: true},
	}
}

// Fault wraps an error with its turn-level classification.
type Fault struct {
	Kind       FaultKind
	Message    string
	Underlying error
}

// Error implements the error interface.
func (f *Fault) Error() string {
	if f.Underlying != nil {
		return fmt.Sprintf("[%s] %s: %v", f.Kind, f.Message, f.Underlying)
	}
	return fmt.Sprintf("[%s] %s", f.Kind, f.Message)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (f *Fault) Unwrap() error {
	return f.Underlying
}

// Is matches faults by kind.
func (f *Fault) Is(target error) bool {
	var other *Fault
	if errors.As(target, &other) {
		return f.Kind == other.Kind
	}
	return false
}

// New creates a Fault with the given kind and message.
func New(kind FaultKind, message string) *Fault {
	return &Fault{Kind: kind, Message: message}
}

// Wrap wraps err with a fault classification. A nil err returns nil.
// An err that is already a Fault keeps its original kind.
func Wrap(kind FaultKind, message string, err error) error {
	if err == nil {
		return nil
	}

	var f *Fault
	if errors.As(err, &f) {
		return &Fault{Kind: f.Kind, Message: message, Underlying: err}
	}

	return &Fault{Kind: kind, Message: message, Underlying: err}
}

// KindOf extracts the fault kind from an error, defaulting to internal.
func KindOf(err error) FaultKind {
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind
	}
	return KindInternal
}

// BehaviorOf returns the handling behavior for an error's kind.
func BehaviorOf(err error) Behavior {
	return DefaultBehaviors()[KindOf(err)]
}

// IsTurnFatal reports whether the error must terminate the turn.
func IsTurnFatal(err error) bool {
	return BehaviorOf(err).TurnFatal
}

// Common sentinel faults.
var (
	ErrTimeout       = New(KindTimeout, "turn budget exceeded")
	ErrSuperseded    = New(KindSuperseded, "turn superseded by a newer message")
	ErrStateConflict = New(KindStateConflict, "conversation state was modified concurrently")
)
