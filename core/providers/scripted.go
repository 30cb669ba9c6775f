package providers

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Script is one canned model response. Text is streamed as word-sized
// deltas; ToolCalls stream after the text as complete call blocks.
type Script struct {
	Text       string
	ToolCalls  []ToolCall
	StopReason StopReason
	Err        error
}

// ScriptedProvider replays canned responses in order. It backs tests
// and local development where no real model is reachable; behavior is
// fully deterministic.
type ScriptedProvider struct {
	mu      sync.Mutex
	scripts []Script
	cursor  int

	// Requests records every request seen, for assertions.
	Requests []*Request
}

// NewScriptedProvider returns a provider that replays the given
// scripts. Requests past the end of the script list get an empty
// end_turn response.
func NewScriptedProvider(scripts ...Script) *ScriptedProvider {
	return &ScriptedProvider{scripts: scripts}
}

// Append adds further scripts after construction.
func (p *ScriptedProvider) Append(scripts ...Script) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scripts = append(p.scripts, scripts...)
}

func (p *ScriptedProvider) Name() string {
	return string(ProviderTypeScripted)
}

func (p *ScriptedProvider) next(req *Request) Script {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Requests = append(p.Requests, req)
	if p.cursor >= len(p.scripts) {
		return Script{StopReason: StopReasonEndTurn}
	}
	s := p.scripts[p.cursor]
	p.cursor++
	return s
}

func (p *ScriptedProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	script := p.next(req)
	if script.Err != nil {
		return nil, script.Err
	}

	stopReason := script.StopReason
	if stopReason == "" {
		stopReason = StopReasonEndTurn
	}
	if len(script.ToolCalls) > 0 && stopReason == StopReasonEndTurn {
		stopReason = StopReasonToolUse
	}

	return &Response{
		Content:    script.Text,
		Model:      "scripted",
		StopReason: stopReason,
		ToolCalls:  script.ToolCalls,
	}, nil
}

func (p *ScriptedProvider) Stream(ctx context.Context, req *Request, handler StreamHandler) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	script := p.next(req)

	index := 0
	emit := func(chunk *StreamChunk) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		chunk.Index = index
		chunk.Timestamp = time.Now()
		index++
		return handler(chunk)
	}

	if err := emit(&StreamChunk{Type: ChunkTypeStart}); err != nil {
		return err
	}

	if script.Err != nil {
		emit(&StreamChunk{Type: ChunkTypeError, Text: script.Err.Error()})
		return fmt.Errorf("scripted stream: %w", script.Err)
	}

	for _, delta := range splitDeltas(script.Text) {
		if err := emit(&StreamChunk{Type: ChunkTypeText, Text: delta}); err != nil {
			return err
		}
	}

	for _, tc := range script.ToolCalls {
		if err := emit(&StreamChunk{
			Type:     ChunkTypeToolStart,
			ToolCall: &ToolCallChunk{ID: tc.ID, Name: tc.Name},
		}); err != nil {
			return err
		}
		if tc.Arguments != "" {
			if err := emit(&StreamChunk{
				Type:     ChunkTypeToolDelta,
				ToolCall: &ToolCallChunk{ID: tc.ID, ArgumentsDelta: tc.Arguments},
			}); err != nil {
				return err
			}
		}
		if err := emit(&StreamChunk{
			Type:     ChunkTypeToolEnd,
			ToolCall: &ToolCallChunk{ID: tc.ID},
		}); err != nil {
			return err
		}
	}

	stopReason := script.StopReason
	if stopReason == "" {
		stopReason = StopReasonEndTurn
	}
	if len(script.ToolCalls) > 0 && script.StopReason == "" {
		stopReason = StopReasonToolUse
	}

	return emit(&StreamChunk{
		Type:       ChunkTypeEnd,
		StopReason: stopReason,
		Usage:      &Usage{},
	})
}

func (p *ScriptedProvider) Close() error {
	return nil
}

// splitDeltas breaks text into small chunks so consumers see the same
// shape real streaming produces.
func splitDeltas(text string) []string {
	if text == "" {
		return nil
	}
	const width = 12
	var out []string
	runes := []rune(text)
	for i := 0; i < len(runes); i += width {
		end := i + width
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[i:end]))
	}
	return out
}
