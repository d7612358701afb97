package ollama

import (
	"context"
	"io"

	"github.com/funcn-ai/funcn-sub000/model"
	"github.com/ollama/ollama/api"
)

// stream adapts Ollama's callback based Chat to the pull based model.Stream.
// The request runs in a goroutine started by the first Next.
type stream struct {
	ctx    context.Context
	cancel context.CancelFunc
	client *api.Client
	req    *api.ChatRequest

	ch     chan api.ChatResponse
	errCh  chan error
	tools  int
	closed bool
}

func newStream(ctx context.Context, client *api.Client, req *api.ChatRequest) *stream {
	ctx, cancel := context.WithCancel(ctx)
	return &stream{ctx: ctx, cancel: cancel, client: client, req: req}
}

func (s *stream) start() {
	s.ch = make(chan api.ChatResponse)
	s.errCh = make(chan error, 1)

	go func() {
		defer close(s.ch)

		err := s.client.Chat(s.ctx, s.req, func(resp api.ChatResponse) error {
			select {
			case s.ch <- resp:
				return nil
			case <-s.ctx.Done():
				return s.ctx.Err()
			}
		})
		if err != nil {
			s.errCh <- err
		}
	}()
}

func (s *stream) Next() (model.RawChunk, error) {
	if s.closed {
		return nil, io.EOF
	}
	if s.ch == nil {
		s.start()
	}

	resp, ok := <-s.ch
	if !ok {
		select {
		case err := <-s.errCh:
			return nil, transportError(err)
		default:
			return nil, io.EOF
		}
	}

	chunk := &Chunk{Chat: resp, offset: s.tools, callIDs: newCallIDs(len(resp.Message.ToolCalls))}
	s.tools += len(resp.Message.ToolCalls)
	return chunk, nil
}

func (s *stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.cancel()
	if s.ch != nil {
		for range s.ch {
		}
	}
	return nil
}
