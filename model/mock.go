package model

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/funcn-ai/funcn-sub000/core"
)

// MockResponse is the raw response variant produced by MockAdapter.
type MockResponse struct {
	ResponseVariant

	Source    string // provider name; "mock" when empty
	RespID    string
	RespModel string
	CreatedAt time.Time
	Content   string
	Reasons   []core.FinishReason
	Tokens    core.Usage
	Calls     []core.ToolCall
}

func (r *MockResponse) Provider() string                   { return sourceName(r.Source) }
func (r *MockResponse) ID() string                         { return r.RespID }
func (r *MockResponse) Model() string                      { return r.RespModel }
func (r *MockResponse) Created() time.Time                 { return r.CreatedAt }
func (r *MockResponse) Text() string                       { return r.Content }
func (r *MockResponse) FinishReasons() []core.FinishReason { return r.Reasons }
func (r *MockResponse) Usage() core.Usage                  { return r.Tokens }
func (r *MockResponse) ToolCalls() []core.ToolCall         { return r.Calls }
func (r *MockResponse) Raw() any                           { return r }

// MockChunk is the raw chunk variant produced by MockAdapter streams.
type MockChunk struct {
	ChunkVariant

	Source     string
	ChunkID    string
	ChunkModel string
	CreatedAt  time.Time
	Delta      string
	Reason     core.FinishReason
	Deltas     []ToolDelta
	Tokens     core.Usage
}

func (c *MockChunk) Provider() string                { return sourceName(c.Source) }
func (c *MockChunk) ID() string                      { return c.ChunkID }
func (c *MockChunk) Model() string                   { return c.ChunkModel }
func (c *MockChunk) Created() time.Time              { return c.CreatedAt }
func (c *MockChunk) TextDelta() string               { return c.Delta }
func (c *MockChunk) FinishReason() core.FinishReason { return c.Reason }
func (c *MockChunk) ToolDeltas() []ToolDelta         { return c.Deltas }
func (c *MockChunk) Usage() core.Usage               { return c.Tokens }
func (c *MockChunk) Raw() any                        { return c }

func sourceName(s string) string {
	if s == "" {
		return "mock"
	}
	return s
}

// ConcatChunks folds a chunk sequence into the response a non-streaming call
// would have returned for the same output.
func ConcatChunks(chunks []*MockChunk) *MockResponse {
	resp := &MockResponse{}
	var text strings.Builder
	type acc struct {
		id, name string
		args     strings.Builder
	}
	var order []int
	calls := map[int]*acc{}
	for _, c := range chunks {
		if resp.Source == "" {
			resp.Source = c.Source
		}
		if resp.RespID == "" {
			resp.RespID = c.ChunkID
		}
		if resp.RespModel == "" {
			resp.RespModel = c.ChunkModel
		}
		if resp.CreatedAt.IsZero() {
			resp.CreatedAt = c.CreatedAt
		}
		text.WriteString(c.Delta)
		for _, d := range c.Deltas {
			a, ok := calls[d.Index]
			if !ok {
				a = &acc{}
				calls[d.Index] = a
				order = append(order, d.Index)
			}
			if d.ID != "" {
				a.id = d.ID
			}
			if d.Name != "" {
				a.name = d.Name
			}
			a.args.WriteString(d.ArgumentsDelta)
		}
		if c.Reason != "" {
			resp.Reasons = append(resp.Reasons, c.Reason)
		}
		if c.Tokens.Known() {
			resp.Tokens = c.Tokens
		}
	}
	resp.Content = text.String()
	for _, idx := range order {
		a := calls[idx]
		resp.Calls = append(resp.Calls, core.ToolCall{ID: a.id, Name: a.name, Arguments: []byte(a.args.String())})
	}
	return resp
}

// MockTurn scripts one adapter invocation.
type MockTurn struct {
	Response *MockResponse // returned by Execute
	Chunks   []*MockChunk  // yielded by ExecuteStream; concatenated for Execute when Response is nil
	Err      error         // returned instead of a response, or on the first Next
	// FailAfter makes a stream return Err after that many chunks instead of
	// failing on the first Next.
	FailAfter int
}

// MockAdapter is a lightweight in-memory Adapter useful for tests & examples.
// Turns are consumed in order; once exhausted the last turn repeats.
type MockAdapter struct {
	info Info
	caps Capabilities

	mu       sync.Mutex
	turns    []MockTurn
	next     int
	requests []Request
	closed   int
}

// NewMockAdapter constructs a MockAdapter that supports every capability.
func NewMockAdapter(provider string, turns ...MockTurn) *MockAdapter {
	return &MockAdapter{
		info: Info{Name: "mock-model", Provider: provider},
		caps: Capabilities{
			SupportsToolForcing:    true,
			SupportsJSONMode:       true,
			SupportsStreamingTools: true,
			SupportedFieldTypes:    AllFieldTypes(),
		},
		turns: turns,
	}
}

// WithCapabilities overrides the advertised capabilities.
func (m *MockAdapter) WithCapabilities(c Capabilities) *MockAdapter {
	m.caps = c
	return m
}

// Enqueue appends scripted turns.
func (m *MockAdapter) Enqueue(turns ...MockTurn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, turns...)
}

// Requests returns every request received so far.
func (m *MockAdapter) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.requests...)
}

// Calls returns the number of requests that reached the adapter.
func (m *MockAdapter) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// ClosedStreams returns how many streams were closed.
func (m *MockAdapter) ClosedStreams() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Info implements Adapter.
func (m *MockAdapter) Info() Info { return m.info }

// Capabilities implements Adapter.
func (m *MockAdapter) Capabilities() Capabilities { return m.caps }

func (m *MockAdapter) take(req Request) (MockTurn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)
	if len(m.turns) == 0 {
		return MockTurn{}, errors.New("mock adapter: no scripted turns")
	}
	idx := m.next
	if idx >= len(m.turns) {
		idx = len(m.turns) - 1
	} else {
		m.next++
	}
	return m.turns[idx], nil
}

// Execute implements Adapter.
func (m *MockAdapter) Execute(ctx context.Context, req Request) (RawResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, core.NewProviderTransportError(m.info.Provider, 0, err)
	}
	turn, err := m.take(req)
	if err != nil {
		return nil, err
	}
	if turn.Err != nil {
		return nil, turn.Err
	}
	var resp MockResponse
	if turn.Response != nil {
		resp = *turn.Response
	} else {
		resp = *ConcatChunks(turn.Chunks)
	}
	resp.Source = m.info.Provider
	return &resp, nil
}

// ExecuteStream implements Adapter. The turn is taken on the first Next.
func (m *MockAdapter) ExecuteStream(ctx context.Context, req Request) (Stream, error) {
	return &mockStream{ctx: ctx, adapter: m, req: req}, nil
}

type mockStream struct {
	ctx     context.Context
	adapter *MockAdapter
	req     Request

	started bool
	closed  bool
	turn    MockTurn
	pos     int
}

func (s *mockStream) Next() (RawChunk, error) {
	if s.closed {
		return nil, io.EOF
	}
	if !s.started {
		s.started = true
		turn, err := s.adapter.take(s.req)
		if err != nil {
			return nil, err
		}
		s.turn = turn
	}
	if err := s.ctx.Err(); err != nil {
		return nil, core.NewProviderTransportError(s.adapter.info.Provider, 0, err)
	}
	if s.turn.Err != nil && s.pos >= s.turn.FailAfter {
		return nil, s.turn.Err
	}
	if s.pos >= len(s.turn.Chunks) {
		return nil, io.EOF
	}
	c := *s.turn.Chunks[s.pos]
	c.Source = s.adapter.info.Provider
	s.pos++
	return &c, nil
}

func (s *mockStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.adapter.mu.Lock()
	s.adapter.closed++
	s.adapter.mu.Unlock()
	return nil
}
