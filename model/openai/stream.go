package openai

import (
	"context"
	"io"
	"sort"

	"github.com/funcn-ai/funcn-sub000/model"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/packages/ssestream"
)

// stream lazily opens a server-sent event stream on the first Next.
type stream struct {
	ctx    context.Context
	client *openai.Client
	params openai.ChatCompletionNewParams

	sse    *ssestream.Stream[openai.ChatCompletionChunk]
	open   map[int]bool
	last   int
	closed bool
}

func (s *stream) Next() (model.RawChunk, error) {
	if s.closed {
		return nil, io.EOF
	}
	if s.sse == nil {
		s.sse = s.client.Chat.Completions.NewStreaming(s.ctx, s.params)
	}
	if !s.sse.Next() {
		if err := s.sse.Err(); err != nil {
			return nil, transportError(err)
		}
		return nil, io.EOF
	}

	chunk := &Chunk{Completion: s.sse.Current()}
	if len(chunk.Completion.Choices) == 0 {
		return chunk, nil
	}
	choice := chunk.Completion.Choices[0]
	for _, tc := range choice.Delta.ToolCalls {
		idx := int(tc.Index)
		if idx != s.last && s.last >= 0 && s.open[s.last] {
			chunk.closedBefore = append(chunk.closedBefore, s.last)
			delete(s.open, s.last)
		}
		s.open[idx] = true
		s.last = idx
	}
	if choice.FinishReason != "" && len(s.open) > 0 {
		for idx := range s.open {
			chunk.closedAfter = append(chunk.closedAfter, idx)
		}
		sort.Ints(chunk.closedAfter)
		s.open = map[int]bool{}
	}
	return chunk, nil
}

func (s *stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.sse == nil {
		return nil
	}
	return s.sse.Close()
}
