// Package orchestrator runs chat turns end to end: route the message,
// execute the chosen agent, stream its output in order, and commit the
// conversation state exactly once. One turn per conversation is live at
// a time; a newer message supersedes the older run silently.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/folioforge/concierge/core/agent"
	"github.com/folioforge/concierge/core/chat"
	faults "github.com/folioforge/concierge/core/errors"
	"github.com/folioforge/concierge/core/intent"
	"github.com/folioforge/concierge/core/providers"
	"github.com/folioforge/concierge/core/state"
	"github.com/folioforge/concierge/core/tools"
)

const (
	defaultTurnBudget     = 90 * time.Second
	defaultHistoryEntries = 20

	// terminalEmitGrace bounds the final error emit so a failed turn
	// whose reader stopped draining cannot pin its goroutine.
	terminalEmitGrace = 2 * time.Second
)

// Config bounds turn execution.
type Config struct {
	TurnBudget     time.Duration
	MaxToolRounds  int
	MaxAgentSteps  int
	HistoryEntries int
}

// Orchestrator coordinates routing, agents, tools, and state for every
// chat turn.
type Orchestrator struct {
	config   Config
	store    state.Store
	router   *intent.Router
	agents   *agent.Registry
	tools    *tools.Registry
	provider providers.Provider
	logger   *slog.Logger

	turns *superseder
}

// New wires an Orchestrator from its collaborators.
func New(config Config, store state.Store, router *intent.Router, agents *agent.Registry, registry *tools.Registry, provider providers.Provider, logger *slog.Logger) *Orchestrator {
	if config.TurnBudget <= 0 {
		config.TurnBudget = defaultTurnBudget
	}
	if config.HistoryEntries <= 0 {
		config.HistoryEntries = defaultHistoryEntries
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		config:   config,
		store:    store,
		router:   router,
		agents:   agents,
		tools:    registry,
		provider: provider,
		logger:   logger,
		turns:    newSuperseder(),
	}
}

// RunTurn starts a turn and returns its event stream. The stream is
// closed by the turn goroutine: with exactly one terminal event
// normally, or with none when the turn is abandoned. A turn stops at
// its next suspension point when the caller's context is canceled (the
// client went away), when a newer turn supersedes it, or when the
// budget runs out; only the budget produces a terminal error event.
func (o *Orchestrator) RunTurn(ctx context.Context, req *chat.TurnRequest) (*chat.Stream, error) {
	if err := req.Validate(); err != nil {
		return nil, faults.Wrap(faults.KindSchemaValidation, "turn request", err)
	}

	turnID := uuid.NewString()
	turnCtx, cancel := context.WithTimeout(ctx, o.config.TurnBudget)

	o.turns.Begin(req.ConversationID, turnID, cancel)

	stream := chat.NewStream()
	go o.executeTurn(turnCtx, cancel, stream, req, turnID)
	return stream, nil
}

func (o *Orchestrator) executeTurn(ctx context.Context, cancel context.CancelFunc, stream *chat.Stream, req *chat.TurnRequest, turnID string) {
	defer cancel()
	defer o.turns.End(req.ConversationID, turnID)

	err := o.runTurn(ctx, stream, req, turnID)
	if err == nil {
		return
	}

	if o.abandoned(ctx, err) {
		o.logger.Debug("turn abandoned",
			"conversation_id", req.ConversationID,
			"turn_id", turnID,
			"superseded", !o.turns.IsCurrent(req.ConversationID, turnID))
		stream.Abandon()
		return
	}

	kind := faults.KindOf(err)
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		kind = faults.KindTimeout
	}

	o.logger.Error("turn failed",
		"conversation_id", req.ConversationID,
		"turn_id", turnID,
		"kind", string(kind),
		"error", err)

	emitCtx, emitCancel := context.WithTimeout(context.WithoutCancel(ctx), terminalEmitGrace)
	defer emitCancel()
	if stream.Emit(emitCtx, chat.ErrorEvent(string(kind), userFacingMessage(kind))) != nil {
		stream.Abandon()
	}
}

// abandoned reports whether the turn ended because nobody is listening
// anymore: a newer turn took the conversation, or the client's request
// context was canceled. Either way the stream closes without a
// terminal event and nothing is committed.
func (o *Orchestrator) abandoned(ctx context.Context, err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled)
}

func (o *Orchestrator) runTurn(ctx context.Context, stream *chat.Stream, req *chat.TurnRequest, turnID string) error {
	st, err := o.loadState(ctx, req)
	if err != nil {
		return err
	}

	sink := newStreamSink(ctx, stream)

	if req.Confirm != nil {
		if err := o.resolveConfirmation(ctx, sink, req, st); err != nil {
			return err
		}
		return o.finishTurn(ctx, stream, req, st, turnID)
	}

	route := req.Route
	if route == "" {
		route = st.Route
	}
	decision, err := o.router.Route(ctx, intent.Query{
		Message:    req.Message,
		PriorAgent: intent.Agent(st.LastAgent),
		Route:      route,
		UIContext:  req.UIContext,
	})
	if err != nil {
		return faults.Wrap(faults.KindInternal, "route", err)
	}

	target := decision.Primary()
	if decision.Strategy == intent.StrategyPlan {
		target = intent.AgentPlanner
	}
	a, ok := o.agents.Get(target)
	if !ok {
		return faults.New(faults.KindInternal, "agent "+string(target)+" not registered")
	}

	o.logger.Debug("turn routed",
		"conversation_id", req.ConversationID,
		"agent", string(target),
		"strategy", string(decision.Strategy),
		"method", decision.Method,
		"confidence", decision.Confidence)

	run := &agent.Run{
		UserID:         req.UserID,
		ConversationID: req.ConversationID,
		Message:        req.Message,
		State:          st,
		Sink:           sink,
		Tools:          o.tools,
		Provider:       o.provider,
		MaxToolRounds:  o.config.MaxToolRounds,
		MaxAgentSteps:  o.config.MaxAgentSteps,
		Hints:          decision.Agents,
	}

	err = a.Execute(ctx, run)
	o.logInvocations(req.ConversationID, turnID, run)
	if err != nil {
		return err
	}

	st.LastAgent = string(target)
	st.AppendHistory("user", req.Message, o.config.HistoryEntries)
	if text := sink.Text(); text != "" {
		st.AppendHistory("assistant", text, o.config.HistoryEntries)
	}

	if run.Pending != nil {
		st.UpsertFlow(state.ActiveFlow{
			FlowID:      uuid.NewString(),
			Type:        state.FlowConfirmation,
			Status:      state.FlowPending,
			PendingCall: run.Pending,
			CreatedAt:   time.Now().UTC(),
		})
	}

	return o.finishTurn(ctx, stream, req, st, turnID)
}

// logInvocations writes the turn's audit trail, one line per agent
// execution.
func (o *Orchestrator) logInvocations(conversationID, turnID string, run *agent.Run) {
	for _, inv := range run.Invocations {
		attrs := []any{
			"conversation_id", conversationID,
			"turn_id", turnID,
			"agent", string(inv.Agent),
			"tool_calls", len(inv.ToolCalls),
			"duration", inv.CompletedAt.Sub(inv.StartedAt),
		}
		if inv.Err != "" {
			attrs = append(attrs, "error", inv.Err)
		}
		o.logger.Info("agent invocation", attrs...)
	}
}

// finishTurn commits the working state and ends the stream. A turn
// that lost the conversation to a newer one commits nothing and emits
// nothing further.
func (o *Orchestrator) finishTurn(ctx context.Context, stream *chat.Stream, req *chat.TurnRequest, st *state.ConversationState, turnID string) error {
	if !o.turns.IsCurrent(req.ConversationID, turnID) {
		return context.Canceled
	}

	st.UIContext = req.UIContext
	if req.Route != "" {
		st.Route = req.Route
	}
	st.PruneFlows()
	st.UpdatedAt = time.Now().UTC()

	if err := o.store.Commit(ctx, st); err != nil {
		return faults.Wrap(faults.KindInternal, "commit state", err)
	}
	return stream.Emit(ctx, chat.DoneEvent())
}

// loadState fetches the conversation snapshot, starting a fresh state
// for a new conversation.
func (o *Orchestrator) loadState(ctx context.Context, req *chat.TurnRequest) (*state.ConversationState, error) {
	st, err := o.store.Get(ctx, req.ConversationID)
	if errors.Is(err, state.ErrNotFound) {
		return state.NewConversationState(req.ConversationID, req.UserID), nil
	}
	if err != nil {
		return nil, faults.Wrap(faults.KindInternal, "load state", err)
	}
	return st, nil
}

// resolveConfirmation settles an explicit confirm payload: approved
// runs the stored call with the gate lifted, declined discards it.
// Free-form text never reaches this path, so an unanswered prompt can
// only ever be resolved here.
func (o *Orchestrator) resolveConfirmation(ctx context.Context, sink *streamSink, req *chat.TurnRequest, st *state.ConversationState) error {
	flow := st.FindFlow(req.Confirm.FlowID)
	if flow == nil || flow.Type != state.FlowConfirmation || flow.PendingCall == nil {
		return sink.Delta("That confirmation has expired. Ask again if you still want to make the change.")
	}
	if flow.Status != state.FlowPending {
		return sink.Delta("That request was already handled.")
	}

	call := flow.PendingCall

	if !req.Confirm.Approved {
		flow.Status = state.FlowAborted
		o.logger.Info("confirmation declined",
			"conversation_id", req.ConversationID,
			"tool", call.Tool)
		return sink.Delta("Okay, I won't make that change.")
	}

	tool, ok := o.tools.Get(call.Tool)
	if !ok {
		return faults.New(faults.KindInternal, "pending tool "+call.Tool+" not registered")
	}

	result, execErr := tool.Execute(ctx, req.UserID, call.Arguments, true)
	if execErr != nil {
		flow.Status = state.FlowAborted
		o.logger.Warn("confirmed call failed",
			"conversation_id", req.ConversationID,
			"tool", call.Tool,
			"error", execErr)
		return sink.Delta("That didn't go through: " + result.Err + ". Nothing was changed.")
	}

	flow.Status = state.FlowCompleted
	o.logger.Info("confirmed call executed",
		"conversation_id", req.ConversationID,
		"tool", call.Tool)
	return sink.Delta(confirmationSummary(call))
}

// confirmationSummary renders the executed call as a short user-facing
// sentence.
func confirmationSummary(call *state.PendingCall) string {
	switch call.Tool {
	case tools.ToolChangeAccountEmail:
		var in struct {
			Email string `json:"email"`
		}
		if json.Unmarshal(call.Arguments, &in) == nil && in.Email != "" {
			return "Done. Your account email is now " + in.Email + "."
		}
		return "Done. Your account email has been updated."
	case tools.ToolArchiveProject:
		return "Done. The project is archived and no longer shows on your public portfolio."
	default:
		return "Done."
	}
}

// userFacingMessage maps a fault kind to the text shown to the user.
func userFacingMessage(kind faults.FaultKind) string {
	switch kind {
	case faults.KindTimeout:
		return "That took too long to finish. Nothing was changed; please try again."
	case faults.KindStateConflict:
		return "Your conversation changed while I was working. Please send that again."
	case faults.KindSchemaValidation:
		return "I couldn't make sense of that request. Please try rephrasing it."
	default:
		return "Something went wrong on our side. Nothing was changed; please try again."
	}
}
