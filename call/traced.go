package call

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/funcn-ai/funcn-sub000/core"
	"github.com/funcn-ai/funcn-sub000/model"
	"github.com/funcn-ai/funcn-sub000/telemetry"
	"go.opentelemetry.io/otel/trace"
)

// tracedStream ends the span of a streamed call when the stream ends, fails
// or is closed early.
type tracedStream struct {
	model.Stream
	span  trace.Span
	start time.Time
	done  func(u core.Usage, d time.Duration, err error)

	usage  core.Usage
	reason core.FinishReason
	calls  map[int]struct{}
	once   sync.Once
}

func (s *tracedStream) Next() (model.RawChunk, error) {
	chunk, err := s.Stream.Next()
	switch {
	case errors.Is(err, io.EOF):
		s.finish(nil)
		return chunk, err
	case err != nil:
		s.finish(err)
		return chunk, err
	}

	u := chunk.Usage()
	if u.InputTokens != nil {
		s.usage.InputTokens = u.InputTokens
	}
	if u.OutputTokens != nil {
		s.usage.OutputTokens = u.OutputTokens
	}
	if r := chunk.FinishReason(); r != "" {
		s.reason = r
	}
	for _, d := range chunk.ToolDeltas() {
		if s.calls == nil {
			s.calls = make(map[int]struct{})
		}
		s.calls[d.Index] = struct{}{}
	}
	return chunk, nil
}

func (s *tracedStream) Close() error {
	err := s.Stream.Close()
	s.finish(nil)
	return err
}

func (s *tracedStream) finish(err error) {
	s.once.Do(func() {
		if err == nil {
			telemetry.RecordResult(s.span, s.reason, len(s.calls), s.usage)
		}
		telemetry.EndSpan(s.span, err)
		s.done(s.usage, time.Since(s.start), err)
	})
}
