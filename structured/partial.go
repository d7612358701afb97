package structured

import (
	"encoding/json"
	"errors"
	"io"
	"maps"
	"strings"

	"github.com/funcn-ai/funcn-sub000/internal/partialjson"
	"github.com/funcn-ai/funcn-sub000/response"
	"github.com/funcn-ai/funcn-sub000/stream"
)

// Partial is a view over a response that is still streaming. Only fields
// whose value has been fully received are set; everything else is unset,
// never defaulted.
type Partial struct {
	fields   map[string]any
	complete bool
}

// Get returns a fully received field.
func (p Partial) Get(name string) (any, bool) {
	v, ok := p.fields[name]
	return v, ok
}

// Has reports whether name has been fully received.
func (p Partial) Has(name string) bool {
	_, ok := p.fields[name]
	return ok
}

// Fields returns a copy of the received fields.
func (p Partial) Fields() map[string]any { return maps.Clone(p.fields) }

// Complete reports whether the whole document has been received.
func (p Partial) Complete() bool { return p.complete }

// Decode stores the received fields in v; unset fields keep their zero value.
func (p Partial) Decode(v any) error {
	data, err := json.Marshal(p.fields)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// Partial parses a possibly truncated payload buffer. For primitive models
// the view holds at most the wrapper field "value". In JSON mode text after
// the closed object, such as a closing code fence, is ignored.
func (m *Model[T]) Partial(buffer string) Partial {
	parse := partialjson.ParseObject
	if m.JSONMode() {
		parse = partialjson.ParseObjectPrefix
	}
	fields, complete, err := parse([]byte(buffer))
	if err != nil || fields == nil {
		return Partial{fields: map[string]any{}}
	}
	return Partial{fields: fields, complete: complete}
}

// PartialStream drives a stream reconstructor and reports the partial value
// after every chunk. The value returned by Final equals what Reconstruct
// yields for the equivalent non-streaming response.
type PartialStream[T any] struct {
	model *Model[T]
	r     *stream.Reconstructor
	chunk *response.ResponseChunk
}

// NewPartialStream wraps r. The caller must Close the stream.
func NewPartialStream[T any](m *Model[T], r *stream.Reconstructor) *PartialStream[T] {
	return &PartialStream[T]{model: m, r: r}
}

// Next consumes one chunk and returns the updated partial value. It returns
// io.EOF once the stream is exhausted.
func (s *PartialStream[T]) Next() (Partial, error) {
	chunk, err := s.r.Next()
	if err != nil {
		return Partial{}, err
	}
	s.chunk = chunk
	return s.model.Partial(s.buffer()), nil
}

// Chunk returns the chunk consumed by the last Next.
func (s *PartialStream[T]) Chunk() *response.ResponseChunk { return s.chunk }

// Final drains the stream and reconstructs the complete value.
func (s *PartialStream[T]) Final() (T, *response.CallResponse, error) {
	var zero T
	for {
		if _, err := s.Next(); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return zero, nil, err
		}
	}
	resp, err := s.r.CallResponse()
	if err != nil {
		return zero, nil, err
	}
	v, err := s.model.Reconstruct(resp)
	return v, resp, err
}

// Close releases the underlying stream.
func (s *PartialStream[T]) Close() error { return s.r.Close() }

func (s *PartialStream[T]) buffer() string {
	if s.model.JSONMode() {
		content := s.r.Content()
		i := strings.IndexByte(content, '{')
		if i < 0 {
			return ""
		}
		return content[i:]
	}
	args, _ := s.r.ToolArguments(s.model.Name())
	return args
}
