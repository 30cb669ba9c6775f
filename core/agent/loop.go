package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	faults "github.com/folioforge/concierge/core/errors"
	"github.com/folioforge/concierge/core/intent"
	"github.com/folioforge/concierge/core/providers"
	"github.com/folioforge/concierge/core/state"
	"github.com/folioforge/concierge/core/tools"
)

const defaultMaxToolRounds = 8

// LLMAgent is the shared implementation behind the conversational
// domain agents: stream a completion, run any requested tools in
// order, feed results back, and repeat until the model finishes or a
// gated call needs confirmation.
type LLMAgent struct {
	name         intent.Agent
	systemPrompt string
	toolNames    []string
}

// NewLLMAgent builds an agent with a fixed prompt and tool scope.
func NewLLMAgent(name intent.Agent, systemPrompt string, toolNames []string) *LLMAgent {
	return &LLMAgent{
		name:         name,
		systemPrompt: systemPrompt,
		toolNames:    toolNames,
	}
}

func (a *LLMAgent) Name() intent.Agent {
	return a.name
}

// ToolNames returns the agent's tool scope.
func (a *LLMAgent) ToolNames() []string {
	return append([]string(nil), a.toolNames...)
}

func (a *LLMAgent) Execute(ctx context.Context, run *Run) (err error) {
	inv := run.BeginInvocation(a.name)
	defer func() { inv.Finish(err) }()

	messages := BuildMessages(run.State, run.Message)
	defs := run.Tools.Definitions(a.toolNames)

	maxRounds := run.MaxToolRounds
	if maxRounds <= 0 {
		maxRounds = defaultMaxToolRounds
	}

	for round := 0; round < maxRounds; round++ {
		collector := newChunkCollector()

		err := run.Provider.Stream(ctx, &providers.Request{
			SystemPrompt: a.systemPromptFor(run.State),
			Messages:     messages,
			Tools:        defs,
		}, func(chunk *providers.StreamChunk) error {
			return a.consumeChunk(run, collector, chunk)
		})
		if err != nil {
			return faults.Wrap(faults.KindInternal, "agent "+string(a.name)+" stream", err)
		}

		inv.Text += collector.text

		calls := collector.toolCalls()
		if collector.stopReason != providers.StopReasonToolUse || len(calls) == 0 {
			return nil
		}

		messages = append(messages, providers.Message{
			Role:      providers.RoleAssistant,
			Content:   collector.text,
			ToolCalls: calls,
		})

		done, toolMessages, err := a.runToolCalls(ctx, run, inv, calls)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		messages = append(messages, toolMessages...)
	}

	// Round cap reached: close the turn with what we have rather than
	// looping forever on a model that keeps requesting tools.
	return run.Sink.Delta("\nI had to stop before finishing every step. Tell me to continue if you want me to keep going.")
}

func (a *LLMAgent) systemPromptFor(st *state.ConversationState) string {
	if st == nil || st.HistorySummary == "" {
		return a.systemPrompt
	}
	return a.systemPrompt + "\n\nEarlier conversation summary:\n" + st.HistorySummary
}

func (a *LLMAgent) consumeChunk(run *Run, collector *chunkCollector, chunk *providers.StreamChunk) error {
	switch chunk.Type {
	case providers.ChunkTypeText:
		collector.text += chunk.Text
		return run.Sink.Delta(chunk.Text)
	case providers.ChunkTypeToolStart, providers.ChunkTypeToolDelta, providers.ChunkTypeToolEnd:
		collector.consumeToolChunk(chunk)
	case providers.ChunkTypeEnd:
		collector.stopReason = chunk.StopReason
	case providers.ChunkTypeError:
		return faults.New(faults.KindInternal, chunk.Text)
	}
	return nil
}

// runToolCalls executes the model's requested calls strictly in order.
// It returns done=true when a gated call paused the run for
// confirmation.
func (a *LLMAgent) runToolCalls(ctx context.Context, run *Run, inv *Invocation, calls []providers.ToolCall) (bool, []providers.Message, error) {
	toolMessages := make([]providers.Message, 0, len(calls))

	for _, call := range calls {
		result := a.executeOne(ctx, run, inv, call)

		if result.Status == tools.StatusPendingConfirmation {
			run.Pending = &state.PendingCall{
				Agent:     string(a.name),
				Tool:      call.Name,
				Arguments: json.RawMessage(call.Arguments),
				Prompt:    result.Prompt,
			}
			run.PendingPrompt = result.Prompt
			if err := run.Sink.Delta(result.Prompt); err != nil {
				return true, nil, err
			}
			return true, nil, nil
		}

		if result.Status == tools.StatusOK {
			if err := a.emitResultAction(run, call.Name, result); err != nil {
				return true, nil, err
			}
		}

		toolMessages = append(toolMessages, providers.Message{
			Role:       providers.RoleTool,
			Content:    toolResultContent(result),
			ToolCallID: call.ID,
		})
	}

	return false, toolMessages, nil
}

// emitResultAction forwards a successful call's UI side effect, such
// as focusing a project the call just created.
func (a *LLMAgent) emitResultAction(run *Run, name string, result *tools.Result) error {
	tool, ok := run.Tools.Get(name)
	if !ok || tool.ResultAction == nil {
		return nil
	}
	action := tool.ResultAction(result.Payload)
	if action == nil {
		return nil
	}
	return run.Sink.Action(*action)
}

func (a *LLMAgent) executeOne(ctx context.Context, run *Run, inv *Invocation, call providers.ToolCall) *tools.Result {
	started := time.Now().UTC()

	result := a.dispatch(ctx, run, call)

	inv.RecordToolCall(ToolCallRecord{
		CallID:    call.ID,
		Tool:      call.Name,
		Arguments: call.Arguments,
		Status:    result.Status,
		Err:       result.Err,
		StartedAt: started,
		Duration:  time.Since(started),
	})
	return result
}

func (a *LLMAgent) dispatch(ctx context.Context, run *Run, call providers.ToolCall) *tools.Result {
	if !a.inScope(call.Name) {
		return &tools.Result{
			Status: tools.StatusError,
			Err:    fmt.Sprintf("tool %s is not available to this assistant", call.Name),
		}
	}

	tool, ok := run.Tools.Get(call.Name)
	if !ok {
		return &tools.Result{
			Status: tools.StatusError,
			Err:    fmt.Sprintf("unknown tool %s", call.Name),
		}
	}

	result, _ := tool.Execute(ctx, run.UserID, json.RawMessage(call.Arguments), false)
	return result
}

func (a *LLMAgent) inScope(name string) bool {
	for _, n := range a.toolNames {
		if n == name {
			return true
		}
	}
	return false
}

// toolResultContent renders a tool result as the model-visible string.
func toolResultContent(result *tools.Result) string {
	if result.Status == tools.StatusError {
		return "error: " + result.Err
	}
	if len(result.Payload) == 0 {
		return "ok"
	}
	return string(result.Payload)
}

// BuildMessages converts persisted history plus the current message
// into the provider conversation.
func BuildMessages(st *state.ConversationState, message string) []providers.Message {
	var messages []providers.Message
	if st != nil {
		for _, entry := range st.History {
			role := providers.RoleUser
			if entry.Role == "assistant" {
				role = providers.RoleAssistant
			}
			messages = append(messages, providers.Message{Role: role, Content: entry.Content})
		}
	}
	if message != "" {
		messages = append(messages, providers.Message{Role: providers.RoleUser, Content: message})
	}
	return messages
}

// chunkCollector assembles streamed tool calls in arrival order.
type chunkCollector struct {
	text       string
	stopReason providers.StopReason

	order []string
	calls map[string]*providers.ToolCall
}

func newChunkCollector() *chunkCollector {
	return &chunkCollector{calls: make(map[string]*providers.ToolCall)}
}

func (c *chunkCollector) consumeToolChunk(chunk *providers.StreamChunk) {
	tc := chunk.ToolCall
	if tc == nil || tc.ID == "" {
		return
	}

	call, ok := c.calls[tc.ID]
	if !ok {
		call = &providers.ToolCall{ID: tc.ID}
		c.calls[tc.ID] = call
		c.order = append(c.order, tc.ID)
	}
	if tc.Name != "" {
		call.Name = tc.Name
	}
	call.Arguments += tc.ArgumentsDelta
}

func (c *chunkCollector) toolCalls() []providers.ToolCall {
	out := make([]providers.ToolCall, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, *c.calls[id])
	}
	return out
}
