package anthropic

import (
	"context"
	"io"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	"github.com/funcn-ai/funcn-sub000/core"
	"github.com/funcn-ai/funcn-sub000/model"
)

type stream struct {
	ctx    context.Context
	client *anthropic.Client
	params anthropic.MessageNewParams

	sse    *ssestream.Stream[anthropic.MessageStreamEventUnion]
	id     string
	model  string
	input  *int64
	cached *int64
	tools  map[int64]bool
	closed bool
}

func (s *stream) Next() (model.RawChunk, error) {
	if s.closed {
		return nil, io.EOF
	}
	if s.sse == nil {
		s.sse = s.client.Messages.NewStreaming(s.ctx, s.params)
	}
	if !s.sse.Next() {
		if err := s.sse.Err(); err != nil {
			return nil, transportError(err)
		}
		return nil, io.EOF
	}

	event := s.sse.Current()
	chunk := &Chunk{Event: event}

	switch event.Type {
	case "message_start":
		s.id = event.Message.ID
		s.model = string(event.Message.Model)
		s.input = core.Int64(event.Message.Usage.InputTokens)
		if event.Message.Usage.JSON.CacheReadInputTokens.Valid() {
			s.cached = core.Int64(event.Message.Usage.CacheReadInputTokens)
		}
		chunk.usage = core.Usage{InputTokens: s.input, CachedTokens: s.cached}
	case "content_block_start":
		if event.ContentBlock.Type == "tool_use" {
			s.tools[event.Index] = true
		}
	case "content_block_stop":
		chunk.isTool = s.tools[event.Index]
	case "message_delta":
		out := event.Usage.OutputTokens
		chunk.usage = core.Usage{InputTokens: s.input, OutputTokens: core.Int64(out), CachedTokens: s.cached}
		if s.input != nil {
			chunk.usage.TotalTokens = core.Int64(*s.input + out)
		}
	}

	chunk.id = s.id
	chunk.model = s.model
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
