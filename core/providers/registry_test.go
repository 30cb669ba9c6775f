package providers

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_GetAndDefault(t *testing.T) {
	r := NewRegistry("scripted")
	r.Register(NewScriptedProvider())

	p, err := r.Get("scripted")
	require.NoError(t, err)
	assert.Equal(t, "scripted", p.Name())

	d, err := r.Default()
	require.NoError(t, err)
	assert.Same(t, p, d)
}

func TestRegistry_MissingProvider(t *testing.T) {
	r := NewRegistry("anthropic")

	_, err := r.Get("anthropic")
	assert.Error(t, err)

	_, err = r.Default()
	assert.Error(t, err)
}

func TestRegistry_CloseEmpties(t *testing.T) {
	r := NewRegistry("scripted")
	r.Register(NewScriptedProvider())

	require.NoError(t, r.Close())

	_, err := r.Get("scripted")
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.APIKey = "sk-test"
	assert.NoError(t, cfg.Validate())

	missing := DefaultConfig()
	assert.Error(t, missing.Validate())

	bad := DefaultConfig()
	bad.APIKey = "sk-test"
	bad.Temperature = 2.5
	assert.Error(t, bad.Validate())

	zero := DefaultConfig()
	zero.APIKey = "sk-test"
	zero.MaxTokens = 0
	assert.Error(t, zero.Validate())
}

func TestScriptedProvider_GenerateStopReasons(t *testing.T) {
	p := NewScriptedProvider(
		Script{Text: "plain answer"},
		Script{Text: "with tool", ToolCalls: []ToolCall{{ID: "t1", Name: "list_projects", Arguments: "{}"}}},
	)
	ctx := context.Background()

	first, err := p.Generate(ctx, &Request{})
	require.NoError(t, err)
	assert.Equal(t, StopReasonEndTurn, first.StopReason)

	second, err := p.Generate(ctx, &Request{})
	require.NoError(t, err)
	assert.Equal(t, StopReasonToolUse, second.StopReason)
	require.Len(t, second.ToolCalls, 1)

	// Past the script: empty end_turn, never an error.
	third, err := p.Generate(ctx, &Request{})
	require.NoError(t, err)
	assert.Empty(t, third.Content)
	assert.Equal(t, StopReasonEndTurn, third.StopReason)
}

func TestScriptedProvider_StreamDeltasReassemble(t *testing.T) {
	const text = "a fairly long reply that spans several streamed deltas"
	p := NewScriptedProvider(Script{Text: text})

	var b strings.Builder
	var sawStart, sawEnd bool
	err := p.Stream(context.Background(), &Request{}, func(chunk *StreamChunk) error {
		switch chunk.Type {
		case ChunkTypeStart:
			sawStart = true
		case ChunkTypeText:
			b.WriteString(chunk.Text)
		case ChunkTypeEnd:
			sawEnd = true
		}
		return nil
	})

	require.NoError(t, err)
	assert.True(t, sawStart)
	assert.True(t, sawEnd)
	assert.Equal(t, text, b.String())
}
