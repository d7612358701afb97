package response

import (
	"time"

	"github.com/funcn-ai/funcn-sub000/core"
	"github.com/funcn-ai/funcn-sub000/model"
)

// ResponseChunk is one normalized incremental unit of a stream.
type ResponseChunk struct {
	Provider     string
	ID           string
	Model        string
	Created      time.Time
	Delta        string            // content delta, "" when none
	FinishReason core.FinishReason // "" while generation continues
	ToolDeltas   []model.ToolDelta // nil when the chunk carries no tool data
	Usage        core.Usage        // unknown fields nil

	// CompletedTools holds tool calls that became complete with this chunk.
	// Set by the stream reconstructor; each call appears on exactly one chunk.
	CompletedTools []core.ToolCall

	raw model.RawChunk
}

// NormalizeChunk wraps a raw provider chunk.
func NormalizeChunk(raw model.RawChunk) *ResponseChunk {
	var deltas []model.ToolDelta
	if d := raw.ToolDeltas(); len(d) > 0 {
		deltas = append([]model.ToolDelta(nil), d...)
	}
	return &ResponseChunk{
		Provider:     raw.Provider(),
		ID:           raw.ID(),
		Model:        raw.Model(),
		Created:      raw.Created(),
		Delta:        raw.TextDelta(),
		FinishReason: raw.FinishReason(),
		ToolDeltas:   deltas,
		Usage:        raw.Usage().Clone(),
		raw:          raw,
	}
}

// Raw returns the vendor-native chunk object.
func (c *ResponseChunk) Raw() any {
	if c.raw == nil {
		return nil
	}
	return c.raw.Raw()
}

// Variant returns the provider chunk variant.
func (c *ResponseChunk) Variant() model.RawChunk { return c.raw }
