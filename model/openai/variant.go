package openai

import (
	"encoding/json"
	"time"

	"github.com/funcn-ai/funcn-sub000/core"
	"github.com/funcn-ai/funcn-sub000/model"
	"github.com/openai/openai-go"
)

// Response is the raw variant of a non-streaming OpenAI completion.
type Response struct {
	model.ResponseVariant
	Completion *openai.ChatCompletion
}

func (r *Response) Provider() string { return ProviderName }
func (r *Response) ID() string       { return r.Completion.ID }
func (r *Response) Model() string    { return r.Completion.Model }
func (r *Response) Created() time.Time {
	return time.Unix(r.Completion.Created, 0).UTC()
}
func (r *Response) Raw() any { return r.Completion }

// RawJSON returns the payload as received from the API.
func (r *Response) RawJSON() string { return r.Completion.RawJSON() }

func (r *Response) Text() string {
	if len(r.Completion.Choices) == 0 {
		return ""
	}
	return r.Completion.Choices[0].Message.Content
}

func (r *Response) FinishReasons() []core.FinishReason {
	reasons := make([]core.FinishReason, 0, len(r.Completion.Choices))
	for _, c := range r.Completion.Choices {
		if c.FinishReason != "" {
			reasons = append(reasons, mapFinishReason(c.FinishReason))
		}
	}
	return reasons
}

func (r *Response) Usage() core.Usage {
	return usageFrom(r.Completion.Usage)
}

func (r *Response) ToolCalls() []core.ToolCall {
	if len(r.Completion.Choices) == 0 {
		return nil
	}
	src := r.Completion.Choices[0].Message.ToolCalls
	if len(src) == 0 {
		return nil
	}
	calls := make([]core.ToolCall, len(src))
	for i, tc := range src {
		calls[i] = core.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		}
	}
	return calls
}

// Chunk is the raw variant of one streamed OpenAI completion chunk.
//
// OpenAI has no explicit per-tool end marker. A call is complete once a delta
// for a different index arrives or the choice reports a finish reason, so the
// stream records those transitions in closedBefore and closedAfter.
type Chunk struct {
	model.ChunkVariant
	Completion   openai.ChatCompletionChunk
	closedBefore []int
	closedAfter  []int
}

func (c *Chunk) Provider() string { return ProviderName }
func (c *Chunk) ID() string       { return c.Completion.ID }
func (c *Chunk) Model() string    { return c.Completion.Model }
func (c *Chunk) Created() time.Time {
	return time.Unix(c.Completion.Created, 0).UTC()
}
func (c *Chunk) Raw() any { return c.Completion }

// RawJSON returns the chunk payload as received from the API.
func (c *Chunk) RawJSON() string { return c.Completion.RawJSON() }

func (c *Chunk) TextDelta() string {
	if len(c.Completion.Choices) == 0 {
		return ""
	}
	return c.Completion.Choices[0].Delta.Content
}

func (c *Chunk) FinishReason() core.FinishReason {
	if len(c.Completion.Choices) == 0 || c.Completion.Choices[0].FinishReason == "" {
		return ""
	}
	return mapFinishReason(c.Completion.Choices[0].FinishReason)
}

func (c *Chunk) ToolDeltas() []model.ToolDelta {
	var deltas []model.ToolDelta
	for _, idx := range c.closedBefore {
		deltas = append(deltas, model.ToolDelta{Index: idx, Done: true})
	}
	if len(c.Completion.Choices) > 0 {
		for _, tc := range c.Completion.Choices[0].Delta.ToolCalls {
			deltas = append(deltas, model.ToolDelta{
				Index:          int(tc.Index),
				ID:             tc.ID,
				Name:           tc.Function.Name,
				ArgumentsDelta: tc.Function.Arguments,
			})
		}
	}
	for _, idx := range c.closedAfter {
		deltas = append(deltas, model.ToolDelta{Index: idx, Done: true})
	}
	return deltas
}

// Usage is only known on the trailing usage chunk requested via stream options.
func (c *Chunk) Usage() core.Usage {
	if !c.Completion.JSON.Usage.Valid() {
		return core.Usage{}
	}
	return usageFrom(c.Completion.Usage)
}

func usageFrom(u openai.CompletionUsage) core.Usage {
	var usage core.Usage
	if u.JSON.PromptTokens.Valid() {
		usage.InputTokens = core.Int64(u.PromptTokens)
	}
	if u.JSON.CompletionTokens.Valid() {
		usage.OutputTokens = core.Int64(u.CompletionTokens)
	}
	if u.JSON.TotalTokens.Valid() {
		usage.TotalTokens = core.Int64(u.TotalTokens)
	}
	if u.PromptTokensDetails.JSON.CachedTokens.Valid() {
		usage.CachedTokens = core.Int64(u.PromptTokensDetails.CachedTokens)
	}
	return usage
}

func mapFinishReason(reason string) core.FinishReason {
	switch reason {
	case "stop":
		return core.FinishStop
	case "length":
		return core.FinishLength
	case "tool_calls", "function_call":
		return core.FinishToolCalls
	case "content_filter":
		return core.FinishContentFilter
	default:
		return core.FinishOther
	}
}

var (
	_ model.RawResponse = (*Response)(nil)
	_ model.RawChunk    = (*Chunk)(nil)
)
