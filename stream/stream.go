package stream

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/funcn-ai/funcn-sub000/core"
	"github.com/funcn-ai/funcn-sub000/logging"
	"github.com/funcn-ai/funcn-sub000/model"
	"github.com/funcn-ai/funcn-sub000/response"
)

// ErrNotFinalized is returned by CallResponse before the stream is exhausted,
// including after a failure or an early Close.
var ErrNotFinalized = errors.New("stream not finalized")

// State is the lifecycle state of a Reconstructor.
type State int

const (
	StateInit State = iota
	StateAccumulating
	StateFinalized
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateAccumulating:
		return "ACCUMULATING"
	case StateFinalized:
		return "FINALIZED"
	case StateFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Options configure a Reconstructor.
type Options struct {
	Logger logging.Logger
	// DeferTools holds completed tool calls back until the final chunk, as
	// if the provider could not stream them.
	DeferTools bool
}

// toolAccumulator collects the deltas of one tool call.
type toolAccumulator struct {
	id       string
	name     string
	args     strings.Builder
	complete bool
	emitted  bool
}

func (t *toolAccumulator) call() core.ToolCall {
	args := strings.TrimSpace(t.args.String())
	if args == "" {
		args = "{}"
	}
	return core.ToolCall{ID: t.id, Name: t.name, Arguments: []byte(args)}
}

// Reconstructor consumes a provider stream. It is not safe for concurrent use.
type Reconstructor struct {
	src        model.Stream
	caps       model.Capabilities
	logger     logging.Logger
	deferTools bool

	state  State
	err    error
	closed bool

	acc     *Accumulated
	content strings.Builder
	tools   map[int]*toolAccumulator
	order   []int
	resp    *response.CallResponse
}

// New wraps src. Nothing is read from src before the first call to Next.
func New(src model.Stream, caps model.Capabilities, optFns ...func(o *Options)) *Reconstructor {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Reconstructor{
		src:        src,
		caps:       caps,
		logger:     logging.OrNoOp(opts.Logger),
		deferTools: opts.DeferTools,
		state:      StateInit,
		acc:        &Accumulated{},
		tools:      make(map[int]*toolAccumulator),
	}
}

// State returns the current lifecycle state.
func (r *Reconstructor) State() State { return r.state }

// Capabilities returns the capabilities of the provider behind the stream.
func (r *Reconstructor) Capabilities() model.Capabilities { return r.caps }

// Next returns the next normalized chunk. It returns io.EOF once the stream
// is exhausted and the reconstructor is FINALIZED. A transport failure moves
// the reconstructor to FAILED, discards the accumulated state and is
// returned on this and every later call: a *core.StreamInterruptedError
// when chunks were already received, otherwise the adapter's error.
func (r *Reconstructor) Next() (*response.ResponseChunk, error) {
	switch r.state {
	case StateFinalized:
		return nil, io.EOF
	case StateFailed:
		return nil, r.err
	}
	if r.closed {
		return nil, io.EOF
	}

	raw, err := r.src.Next()
	if errors.Is(err, io.EOF) {
		r.finalize()
		return nil, io.EOF
	}
	if err != nil {
		r.fail(err)
		return nil, r.err
	}

	r.state = StateAccumulating
	return r.absorb(raw), nil
}

// Collect drains the remaining chunks and returns the synthesized response.
func (r *Reconstructor) Collect() (*response.CallResponse, error) {
	for {
		if _, err := r.Next(); err != nil {
			if errors.Is(err, io.EOF) {
				return r.CallResponse()
			}
			return nil, err
		}
	}
}

// CallResponse returns the response equivalent to a non-streaming call. It
// is only available once the stream is FINALIZED.
func (r *Reconstructor) CallResponse() (*response.CallResponse, error) {
	if r.state != StateFinalized {
		return nil, ErrNotFinalized
	}
	if r.resp == nil {
		r.resp = response.Normalize(r.acc)
	}
	return r.resp, nil
}

// Content returns the text received so far.
func (r *Reconstructor) Content() string { return r.content.String() }

// ToolArguments returns the argument buffer received so far for the first
// tool call with the given name.
func (r *Reconstructor) ToolArguments(name string) (string, bool) {
	for _, idx := range r.order {
		if t := r.tools[idx]; t.name == name {
			return t.args.String(), true
		}
	}
	return "", false
}

// Close releases the underlying stream. It is safe to call at any time and
// more than once; abandoning a stream early is not an error, but
// CallResponse stays unavailable.
func (r *Reconstructor) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	if r.state == StateInit || r.state == StateAccumulating {
		r.logger.Debug("stream.abandoned", "state", r.state.String(), "chunks", len(r.acc.Chunks))
	}
	return r.src.Close()
}

func (r *Reconstructor) absorb(raw model.RawChunk) *response.ResponseChunk {
	chunk := response.NormalizeChunk(raw)
	acc := r.acc

	acc.Chunks = append(acc.Chunks, raw)
	if acc.provider == "" {
		acc.provider = chunk.Provider
	}
	if acc.id == "" {
		acc.id = chunk.ID
	}
	if acc.model == "" {
		acc.model = chunk.Model
	}
	if acc.created.IsZero() {
		acc.created = chunk.Created
	}
	r.content.WriteString(chunk.Delta)
	if chunk.FinishReason != "" {
		acc.reasons = append(acc.reasons, chunk.FinishReason)
	}
	if chunk.Usage.Known() {
		acc.usage = chunk.Usage.Clone()
	}

	var completed []int
	for _, d := range chunk.ToolDeltas {
		t, ok := r.tools[d.Index]
		if !ok {
			t = &toolAccumulator{}
			r.tools[d.Index] = t
			r.order = append(r.order, d.Index)
		}
		if d.ID != "" {
			t.id = d.ID
		}
		if d.Name != "" {
			t.name = d.Name
		}
		t.args.WriteString(d.ArgumentsDelta)
		if d.Done && !t.complete {
			t.complete = true
			completed = append(completed, d.Index)
		}
	}

	// a finish reason ends every call still open
	if chunk.FinishReason != "" {
		for _, idx := range r.order {
			if t := r.tools[idx]; !t.complete {
				t.complete = true
				completed = append(completed, idx)
			}
		}
	}

	if r.caps.SupportsStreamingTools && !r.deferTools {
		chunk.CompletedTools = r.emit(completed)
	} else if chunk.FinishReason != "" {
		chunk.CompletedTools = r.emit(r.order)
	}
	return chunk
}

// emit materializes the completed, not yet emitted calls among indices.
func (r *Reconstructor) emit(indices []int) []core.ToolCall {
	var calls []core.ToolCall
	for _, idx := range indices {
		t := r.tools[idx]
		if !t.complete || t.emitted {
			continue
		}
		t.emitted = true
		calls = append(calls, t.call())
	}
	return calls
}

func (r *Reconstructor) finalize() {
	r.acc.text = []byte(r.content.String())
	for _, idx := range r.order {
		r.acc.calls = append(r.acc.calls, r.tools[idx].call())
	}
	r.state = StateFinalized
	r.logger.Debug("stream.finalized",
		"provider", r.acc.provider,
		"chunks", len(r.acc.Chunks),
		"tool_calls", len(r.acc.calls),
	)
	_ = r.src.Close()
	r.closed = true
}

func (r *Reconstructor) fail(err error) {
	seen := len(r.acc.Chunks)
	provider := r.acc.provider

	r.state = StateFailed
	r.acc = &Accumulated{}
	r.tools = make(map[int]*toolAccumulator)
	r.order = nil
	r.content.Reset()

	var sie *core.StreamInterruptedError
	switch {
	case seen == 0 || errors.As(err, &sie):
		r.err = err
	default:
		r.err = &core.StreamInterruptedError{Provider: provider, ChunksSeen: seen, Err: err}
	}
	r.logger.Warn("stream.interrupted", "provider", provider, "chunks", seen, "error", err)

	_ = r.src.Close()
	r.closed = true
}
