package anthropic

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/funcn-ai/funcn-sub000/core"
	"github.com/funcn-ai/funcn-sub000/model"
)

// Response is the raw variant of a non-streaming Anthropic message.
type Response struct {
	model.ResponseVariant
	Message *anthropic.Message
}

func (r *Response) Provider() string { return ProviderName }
func (r *Response) ID() string       { return r.Message.ID }
func (r *Response) Model() string    { return string(r.Message.Model) }

// Created is always zero; the Messages API does not report a timestamp.
func (r *Response) Created() time.Time { return time.Time{} }

func (r *Response) Raw() any        { return r.Message }
func (r *Response) RawJSON() string { return r.Message.RawJSON() }

func (r *Response) Text() string {
	var b strings.Builder
	for _, block := range r.Message.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String()
}

func (r *Response) FinishReasons() []core.FinishReason {
	if r.Message.StopReason == "" {
		return nil
	}
	return []core.FinishReason{mapStopReason(r.Message.StopReason)}
}

func (r *Response) Usage() core.Usage {
	u := r.Message.Usage
	var usage core.Usage
	if u.JSON.InputTokens.Valid() {
		usage.InputTokens = core.Int64(u.InputTokens)
	}
	if u.JSON.OutputTokens.Valid() {
		usage.OutputTokens = core.Int64(u.OutputTokens)
	}
	if u.JSON.CacheReadInputTokens.Valid() {
		usage.CachedTokens = core.Int64(u.CacheReadInputTokens)
	}
	if usage.InputTokens != nil && usage.OutputTokens != nil {
		usage.TotalTokens = core.Int64(u.InputTokens + u.OutputTokens)
	}
	return usage
}

func (r *Response) ToolCalls() []core.ToolCall {
	var calls []core.ToolCall
	for _, block := range r.Message.Content {
		if block.Type != "tool_use" {
			continue
		}
		calls = append(calls, core.ToolCall{
			ID:        block.ID,
			Name:      block.Name,
			Arguments: json.RawMessage(block.Input),
		})
	}
	return calls
}

// Chunk is the raw variant of one Anthropic stream event. The stream fills in
// the message id, model and running usage, which Anthropic only sends on
// message_start and message_delta.
type Chunk struct {
	model.ChunkVariant
	Event anthropic.MessageStreamEventUnion

	id     string
	model  string
	isTool bool
	usage  core.Usage
}

func (c *Chunk) Provider() string   { return ProviderName }
func (c *Chunk) ID() string         { return c.id }
func (c *Chunk) Model() string      { return c.model }
func (c *Chunk) Created() time.Time { return time.Time{} }
func (c *Chunk) Raw() any           { return c.Event }
func (c *Chunk) RawJSON() string    { return c.Event.RawJSON() }
func (c *Chunk) Usage() core.Usage  { return c.usage }

func (c *Chunk) TextDelta() string {
	if c.Event.Type == "content_block_delta" && c.Event.Delta.Type == "text_delta" {
		return c.Event.Delta.Text
	}
	return ""
}

func (c *Chunk) FinishReason() core.FinishReason {
	if c.Event.Type == "message_delta" && c.Event.Delta.StopReason != "" {
		return mapStopReason(c.Event.Delta.StopReason)
	}
	return ""
}

func (c *Chunk) ToolDeltas() []model.ToolDelta {
	idx := int(c.Event.Index)
	switch c.Event.Type {
	case "content_block_start":
		if c.Event.ContentBlock.Type == "tool_use" {
			return []model.ToolDelta{{Index: idx, ID: c.Event.ContentBlock.ID, Name: c.Event.ContentBlock.Name}}
		}
	case "content_block_delta":
		if c.Event.Delta.Type == "input_json_delta" {
			return []model.ToolDelta{{Index: idx, ArgumentsDelta: c.Event.Delta.PartialJSON}}
		}
	case "content_block_stop":
		if c.isTool {
			return []model.ToolDelta{{Index: idx, Done: true}}
		}
	}
	return nil
}

func mapStopReason(reason anthropic.StopReason) core.FinishReason {
	switch reason {
	case anthropic.StopReasonEndTurn, anthropic.StopReasonStopSequence:
		return core.FinishStop
	case anthropic.StopReasonMaxTokens:
		return core.FinishLength
	case anthropic.StopReasonToolUse:
		return core.FinishToolCalls
	case anthropic.StopReasonRefusal:
		return core.FinishContentFilter
	default:
		return core.FinishOther
	}
}

var (
	_ model.RawResponse = (*Response)(nil)
	_ model.RawChunk    = (*Chunk)(nil)
)
