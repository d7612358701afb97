package model

import (
	"time"

	"github.com/funcn-ai/funcn-sub000/core"
)

// RawResponse is the common trait over one vendor-native response. Each
// provider implements it with its own variant type; the set is sealed by
// embedding ResponseVariant.
type RawResponse interface {
	Provider() string
	ID() string
	Model() string
	Created() time.Time
	// Text returns the concatenated text content ("" when none).
	Text() string
	FinishReasons() []core.FinishReason
	Usage() core.Usage
	ToolCalls() []core.ToolCall
	// Raw returns the vendor object.
	Raw() any

	rawResponse()
}

// RawChunk is the common trait over one vendor-native stream chunk.
type RawChunk interface {
	Provider() string
	ID() string
	Model() string
	Created() time.Time
	TextDelta() string
	// FinishReason returns "" while generation continues.
	FinishReason() core.FinishReason
	ToolDeltas() []ToolDelta
	// Usage reports token counts carried by this chunk, if any.
	Usage() core.Usage
	Raw() any

	rawChunk()
}

// ToolDelta is one incremental piece of a streamed tool call. Index identifies
// the call within the response; ID and Name are set on the first delta of a
// call. Done is the provider's terminal signal for the call.
type ToolDelta struct {
	Index          int    `json:"index"`
	ID             string `json:"id,omitempty"`
	Name           string `json:"name,omitempty"`
	ArgumentsDelta string `json:"arguments_delta,omitempty"`
	Done           bool   `json:"done,omitempty"`
}

// ResponseVariant seals RawResponse; provider response types embed it.
type ResponseVariant struct{}

func (ResponseVariant) rawResponse() {}

// ChunkVariant seals RawChunk; provider chunk types embed it.
type ChunkVariant struct{}

func (ChunkVariant) rawChunk() {}
