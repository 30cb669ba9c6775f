// Package providers abstracts the LLM backends the assistant's agents
// run on. Each adapter converts the neutral Request/StreamChunk types
// to its SDK's wire format; agents never see provider-specific types.
package providers

import (
	"context"
	"time"
)

// Provider is a streaming LLM backend.
type Provider interface {
	Name() string
	// Generate performs a non-streaming completion. Used where a whole
	// response is needed at once, such as routing classification.
	Generate(ctx context.Context, req *Request) (*Response, error)
	// Stream performs a streaming completion, invoking handler for
	// each chunk in order. A handler error aborts the stream.
	Stream(ctx context.Context, req *Request, handler StreamHandler) error
	Close() error
}

// StreamHandler receives chunks in arrival order.
type StreamHandler func(chunk *StreamChunk) error

// Request is a neutral completion request.
type Request struct {
	Messages      []Message `json:"messages"`
	SystemPrompt  string    `json:"system_prompt,omitempty"`
	Model         string    `json:"model,omitempty"`
	MaxTokens     int       `json:"max_tokens,omitempty"`
	Temperature   *float64  `json:"temperature,omitempty"`
	StopSequences []string  `json:"stop_sequences,omitempty"`
	Tools         []Tool    `json:"tools,omitempty"`
}

// Message is one turn of provider-visible conversation.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Tool describes a callable tool in provider-neutral JSON Schema form.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ToolCall is a completed tool invocation request from the model.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Response is a neutral non-streaming completion result.
type Response struct {
	Content    string     `json:"content"`
	Model      string     `json:"model"`
	StopReason StopReason `json:"stop_reason"`
	Usage      Usage      `json:"usage"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

type StopReason string

const (
	StopReasonEndTurn      StopReason = "end_turn"
	StopReasonMaxTokens    StopReason = "max_tokens"
	StopReasonStopSequence StopReason = "stop_sequence"
	StopReasonToolUse      StopReason = "tool_use"
	StopReasonError        StopReason = "error"
)

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// ChunkType identifies what a StreamChunk carries.
type ChunkType string

const (
	ChunkTypeStart     ChunkType = "start"
	ChunkTypeText      ChunkType = "text"
	ChunkTypeToolStart ChunkType = "tool_start"
	ChunkTypeToolDelta ChunkType = "tool_delta"
	ChunkTypeToolEnd   ChunkType = "tool_end"
	ChunkTypeEnd       ChunkType = "end"
	ChunkTypeError     ChunkType = "error"
)

// StreamChunk is one unit of streamed output.
type StreamChunk struct {
	Index      int            `json:"index"`
	Type       ChunkType      `json:"type"`
	Text       string         `json:"text,omitempty"`
	ToolCall   *ToolCallChunk `json:"tool_call,omitempty"`
	StopReason StopReason     `json:"stop_reason,omitempty"`
	Usage      *Usage         `json:"usage,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// ToolCallChunk carries incremental tool-call state. Name arrives on
// tool_start; ArgumentsDelta fragments accumulate until tool_end.
type ToolCallChunk struct {
	ID             string `json:"id"`
	Name           string `json:"name,omitempty"`
	ArgumentsDelta string `json:"arguments_delta,omitempty"`
}
