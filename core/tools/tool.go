// Package tools defines the callable tool contract for domain agents:
// schema-described inputs, strict argument validation, and the
// confirmation gate for destructive operations.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/invopop/jsonschema"

	"github.com/folioforge/concierge/core/chat"
	faults "github.com/folioforge/concierge/core/errors"
	"github.com/folioforge/concierge/core/providers"
)

// Status reports how a tool execution ended.
type Status string

const (
	StatusOK                  Status = "ok"
	StatusError               Status = "error"
	StatusPendingConfirmation Status = "pending_confirmation"
)

// Result is the outcome of an Execute call. Payload holds the tool's
// JSON output on success; Prompt is the user-facing confirmation
// question when Status is pending_confirmation.
type Result struct {
	Status  Status          `json:"status"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Prompt  string          `json:"prompt,omitempty"`
	Err     string          `json:"error,omitempty"`
}

// Handler executes a tool for a user with validated arguments.
type Handler func(ctx context.Context, userID string, args json.RawMessage) (any, error)

// Tool is one registered capability. RequiresConfirmation is fixed at
// registration; nothing at run time can lift the gate.
type Tool struct {
	Name        string
	Description string

	// Input is a zero value of the argument struct. Its reflected
	// JSON Schema is advertised to providers and enforced on decode.
	Input any

	RequiresConfirmation bool

	// ConfirmPrompt renders the question shown to the user before a
	// gated call runs. Receives the raw validated arguments.
	ConfirmPrompt func(args json.RawMessage) string

	// Idempotent marks the call safe to retry on transient failure.
	Idempotent bool

	// ResultAction derives a UI action from a successful call's
	// payload, e.g. focusing an entity the call just created. Nil for
	// tools with no UI side effect.
	ResultAction func(payload json.RawMessage) *chat.Action

	Handler Handler
}

// Registry holds tools by name. Agents reference tools by name and may
// only see the subset they were registered with.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
}

// NewRegistry returns an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// Register adds a tool. Registering a duplicate name is a programming
// error and panics.
func (r *Registry) Register(t *Tool) {
	if t.Name == "" || t.Handler == nil {
		panic("tools: name and handler are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name]; exists {
		panic(fmt.Sprintf("tools: duplicate tool %q", t.Name))
	}
	r.tools[t.Name] = t
}

// Get returns the named tool.
func (r *Registry) Get(name string) (*Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns all registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions returns provider-neutral tool descriptions for the named
// subset. Unknown names are skipped.
func (r *Registry) Definitions(names []string) []providers.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]providers.Tool, 0, len(names))
	for _, name := range names {
		t, ok := r.tools[name]
		if !ok {
			continue
		}
		defs = append(defs, providers.Tool{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  reflectSchema(t.Input),
		})
	}
	return defs
}

var reflector = jsonschema.Reflector{DoNotReference: true}

// reflectSchema builds a plain-map JSON Schema from the input struct.
func reflectSchema(input any) map[string]any {
	if input == nil {
		return map[string]any{"type": "object"}
	}

	schema := reflector.Reflect(input)
	raw, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}

	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]any{"type": "object"}
	}
	delete(out, "$schema")
	delete(out, "$id")
	return out
}

// ValidateArgs strictly decodes args against the tool's input struct.
// Unknown fields and malformed JSON are rejected; inputs with a
// Validate method also get their declared constraints checked.
func (t *Tool) ValidateArgs(args json.RawMessage) error {
	if t.Input == nil {
		return nil
	}
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}

	target := newInputValue(t.Input)
	dec := json.NewDecoder(bytes.NewReader(args))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return faults.New(faults.KindSchemaValidation,
			fmt.Sprintf("invalid arguments for %s: %v", t.Name, err))
	}

	if v, ok := target.(interface{ Validate() error }); ok {
		if err := v.Validate(); err != nil {
			return faults.New(faults.KindSchemaValidation,
				fmt.Sprintf("invalid arguments for %s: %v", t.Name, err))
		}
	}
	return nil
}

// Execute validates and runs the tool. A gated call without confirmed
// set returns a pending_confirmation result and does not run the
// handler. Idempotent tools retry transient failures.
func (t *Tool) Execute(ctx context.Context, userID string, args json.RawMessage, confirmed bool) (*Result, error) {
	if err := t.ValidateArgs(args); err != nil {
		return &Result{Status: StatusError, Err: err.Error()}, err
	}

	if t.RequiresConfirmation && !confirmed {
		prompt := fmt.Sprintf("Run %s?", t.Name)
		if t.ConfirmPrompt != nil {
			prompt = t.ConfirmPrompt(args)
		}
		return &Result{Status: StatusPendingConfirmation, Prompt: prompt}, nil
	}

	var output any
	run := func(ctx context.Context) error {
		var err error
		output, err = t.Handler(ctx, userID, args)
		if err != nil {
			return faults.Wrap(faults.KindToolExecution, "tool "+t.Name, err)
		}
		return nil
	}

	var err error
	if t.Idempotent {
		err = faults.Retry(ctx, run)
	} else {
		err = run(ctx)
	}
	if err != nil {
		return &Result{Status: StatusError, Err: err.Error()}, err
	}

	payload, err := json.Marshal(output)
	if err != nil {
		err = faults.Wrap(faults.KindToolExecution, "tool "+t.Name+": encode result", err)
		return &Result{Status: StatusError, Err: err.Error()}, err
	}
	return &Result{Status: StatusOK, Payload: payload}, nil
}

// newInputValue returns a pointer to a fresh zero value of the same
// type as the prototype, so each validation decodes into clean memory.
func newInputValue(prototype any) any {
	typ := reflect.TypeOf(prototype)
	for typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	return reflect.New(typ).Interface()
}
