package orchestrator

import (
	"context"
	"strings"

	"github.com/folioforge/concierge/core/chat"
)

// streamSink adapts a turn's event stream to the agent.Sink contract.
// One sink is owned by one turn goroutine, so emission order on the
// stream is the order agents produced output. It also accumulates the
// assistant's full text for the history commit.
type streamSink struct {
	ctx    context.Context
	stream *chat.Stream
	text   strings.Builder
}

func newStreamSink(ctx context.Context, stream *chat.Stream) *streamSink {
	return &streamSink{ctx: ctx, stream: stream}
}

func (s *streamSink) Delta(text string) error {
	if text == "" {
		return nil
	}
	s.text.WriteString(text)
	return s.stream.Emit(s.ctx, chat.DeltaEvent(text))
}

func (s *streamSink) Action(action chat.Action) error {
	return s.stream.Emit(s.ctx, chat.ActionEvent(action))
}

// Text returns everything streamed so far.
func (s *streamSink) Text() string {
	return s.text.String()
}
