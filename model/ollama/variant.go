package ollama

import (
	"encoding/json"
	"time"

	"github.com/funcn-ai/funcn-sub000/core"
	"github.com/funcn-ai/funcn-sub000/model"
	"github.com/google/uuid"
	"github.com/ollama/ollama/api"
)

// Response is the raw variant of a completed Ollama chat response. Ollama
// does not identify tool calls, so ids are generated when the response is
// received.
type Response struct {
	model.ResponseVariant
	Chat api.ChatResponse

	callIDs []string
}

func newResponse(resp api.ChatResponse) *Response {
	return &Response{Chat: resp, callIDs: newCallIDs(len(resp.Message.ToolCalls))}
}

func (r *Response) Provider() string   { return ProviderName }
func (r *Response) ID() string         { return "" }
func (r *Response) Model() string      { return r.Chat.Model }
func (r *Response) Created() time.Time { return r.Chat.CreatedAt }
func (r *Response) Text() string       { return r.Chat.Message.Content }
func (r *Response) Raw() any           { return r.Chat }
func (r *Response) Usage() core.Usage  { return usageFrom(r.Chat) }

func (r *Response) FinishReasons() []core.FinishReason {
	if !r.Chat.Done {
		return nil
	}
	return []core.FinishReason{finishReason(r.Chat)}
}

func (r *Response) ToolCalls() []core.ToolCall {
	if len(r.Chat.Message.ToolCalls) == 0 {
		return nil
	}
	calls := make([]core.ToolCall, len(r.Chat.Message.ToolCalls))
	for i, tc := range r.Chat.Message.ToolCalls {
		calls[i] = core.ToolCall{
			ID:        r.callIDs[i],
			Name:      tc.Function.Name,
			Arguments: marshalArguments(tc.Function.Arguments),
		}
	}
	return calls
}

// Chunk is the raw variant of one streamed Ollama message. Tool calls arrive
// complete, so each one is reported as a single finished delta.
type Chunk struct {
	model.ChunkVariant
	Chat api.ChatResponse

	offset  int
	callIDs []string
}

func (c *Chunk) Provider() string   { return ProviderName }
func (c *Chunk) ID() string         { return "" }
func (c *Chunk) Model() string      { return c.Chat.Model }
func (c *Chunk) Created() time.Time { return c.Chat.CreatedAt }
func (c *Chunk) TextDelta() string  { return c.Chat.Message.Content }
func (c *Chunk) Raw() any           { return c.Chat }
func (c *Chunk) Usage() core.Usage  { return usageFrom(c.Chat) }

func (c *Chunk) FinishReason() core.FinishReason {
	if !c.Chat.Done {
		return ""
	}
	return finishReason(c.Chat)
}

func (c *Chunk) ToolDeltas() []model.ToolDelta {
	if len(c.Chat.Message.ToolCalls) == 0 {
		return nil
	}
	deltas := make([]model.ToolDelta, len(c.Chat.Message.ToolCalls))
	for i, tc := range c.Chat.Message.ToolCalls {
		deltas[i] = model.ToolDelta{
			Index:          c.offset + i,
			ID:             c.callIDs[i],
			Name:           tc.Function.Name,
			ArgumentsDelta: string(marshalArguments(tc.Function.Arguments)),
			Done:           true,
		}
	}
	return deltas
}

// usageFrom reports token counts only once they are final.
func usageFrom(resp api.ChatResponse) core.Usage {
	if !resp.Done {
		return core.Usage{}
	}
	in := int64(resp.PromptEvalCount)
	out := int64(resp.EvalCount)
	return core.Usage{
		InputTokens:  core.Int64(in),
		OutputTokens: core.Int64(out),
		TotalTokens:  core.Int64(in + out),
	}
}

// finishReason maps done_reason. Ollama reports "stop" after tool calls, so
// a message carrying calls is treated as tool_calls.
func finishReason(resp api.ChatResponse) core.FinishReason {
	switch resp.DoneReason {
	case "", "stop":
		if len(resp.Message.ToolCalls) > 0 {
			return core.FinishToolCalls
		}
		return core.FinishStop
	case "length":
		return core.FinishLength
	default:
		return core.FinishOther
	}
}

func marshalArguments(args map[string]any) json.RawMessage {
	if len(args) == 0 {
		return json.RawMessage("{}")
	}
	data, err := json.Marshal(args)
	if err != nil {
		return json.RawMessage("{}")
	}
	return data
}

func newCallIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = "call_" + uuid.NewString()
	}
	return ids
}

var (
	_ model.RawResponse = (*Response)(nil)
	_ model.RawChunk    = (*Chunk)(nil)
)
