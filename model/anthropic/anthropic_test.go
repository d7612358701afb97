package anthropic

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/funcn-ai/funcn-sub000/core"
	"github.com/funcn-ai/funcn-sub000/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAdapter(t *testing.T, handler http.HandlerFunc) *Adapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewAdapter(func(o *Options) {
		o.APIKey = "test-key"
		o.BaseURL = srv.URL
	})
}

const messageJSON = `{
  "id": "msg_1",
  "type": "message",
  "role": "assistant",
  "model": "claude-test",
  "content": [
    {"type": "text", "text": "Let me check."},
    {"type": "tool_use", "id": "toolu_1", "name": "get_weather", "input": {"city": "Paris"}}
  ],
  "stop_reason": "tool_use",
  "stop_sequence": null,
  "usage": {"input_tokens": 20, "output_tokens": 8}
}`

func TestAdapter_Execute(t *testing.T) {
	var body map[string]any
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, messageJSON)
	})

	tdef := model.NewToolDefinition("get_weather", "Weather lookup", map[string]any{
		"type":       "object",
		"properties": map[string]any{"city": map[string]any{"type": "string"}},
		"required":   []string{"city"},
	})
	raw, err := a.Execute(t.Context(), model.Request{
		Messages:  []core.Message{core.SystemMessage("be brief"), core.UserText("weather?")},
		Tools:     []model.ToolDefinition{tdef},
		ForceTool: "get_weather",
	})
	require.NoError(t, err)

	assert.Equal(t, "anthropic", raw.Provider())
	assert.Equal(t, "msg_1", raw.ID())
	assert.Equal(t, "claude-test", raw.Model())
	assert.Equal(t, "Let me check.", raw.Text())
	assert.Equal(t, []core.FinishReason{core.FinishToolCalls}, raw.FinishReasons())
	require.Len(t, raw.ToolCalls(), 1)
	assert.Equal(t, "toolu_1", raw.ToolCalls()[0].ID)
	assert.JSONEq(t, `{"city":"Paris"}`, string(raw.ToolCalls()[0].Arguments))
	require.NotNil(t, raw.Usage().TotalTokens)
	assert.Equal(t, int64(28), *raw.Usage().TotalTokens)

	system := body["system"].([]any)
	assert.Equal(t, "be brief", system[0].(map[string]any)["text"])
	choice := body["tool_choice"].(map[string]any)
	assert.Equal(t, "tool", choice["type"])
	assert.Equal(t, "get_weather", choice["name"])
	tools := body["tools"].([]any)
	assert.Equal(t, "Weather lookup", tools[0].(map[string]any)["description"])
}

func TestAdapter_Execute_GroupsToolResults(t *testing.T) {
	var body map[string]any
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, messageJSON)
	})

	history := []core.Message{
		core.UserText("weather in Paris and Rome?"),
		core.AssistantMessage("",
			core.ToolCall{ID: "t1", Name: "get_weather", Arguments: json.RawMessage(`{"city":"Paris"}`)},
			core.ToolCall{ID: "t2", Name: "get_weather"},
		),
		core.ToolResultMessage(core.ToolResult{ID: "t1", Name: "get_weather", Output: "sunny"}),
		core.ToolResultMessage(core.ToolResult{ID: "t2", Name: "get_weather", Output: "boom", IsError: true}),
	}
	_, err := a.Execute(t.Context(), model.Request{Messages: history})
	require.NoError(t, err)

	messages := body["messages"].([]any)
	require.Len(t, messages, 3)

	assistant := messages[1].(map[string]any)["content"].([]any)
	require.Len(t, assistant, 2)
	assert.Equal(t, map[string]any{}, assistant[1].(map[string]any)["input"])

	results := messages[2].(map[string]any)
	assert.Equal(t, "user", results["role"])
	blocks := results["content"].([]any)
	require.Len(t, blocks, 2)
	assert.Equal(t, "t1", blocks[0].(map[string]any)["tool_use_id"])
	assert.Equal(t, true, blocks[1].(map[string]any)["is_error"])
}

func TestAdapter_Execute_RejectsAudio(t *testing.T) {
	a := NewAdapterFromClient(nil)
	msg := core.UserMessage(core.AudioPart{Media: core.Media{Data: []byte("RIFF"), MediaType: "audio/wav"}})
	_, err := a.Execute(t.Context(), model.Request{Messages: []core.Message{msg}})
	require.Error(t, err)
	assert.Equal(t, core.KindConfiguration, core.KindOf(err))
}

func TestAdapter_Execute_ErrorMapping(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(529)
		_, _ = io.WriteString(w, `{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`)
	})

	_, err := a.Execute(t.Context(), model.Request{Messages: []core.Message{core.UserText("hi")}})
	var pte *core.ProviderTransportError
	require.True(t, errors.As(err, &pte))
	assert.Equal(t, 529, pte.StatusCode)
	assert.True(t, pte.Retryable)
}

// -------------------- Stream Tests --------------------

func event(name, data string) string {
	return fmt.Sprintf("event: %s\ndata: %s\n\n", name, data)
}

func TestAdapter_ExecuteStream(t *testing.T) {
	var requests atomic.Int32
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, strings.Join([]string{
			event("message_start", `{"type":"message_start","message":{"id":"msg_2","type":"message","role":"assistant","model":"claude-test","content":[],"stop_reason":null,"usage":{"input_tokens":10,"output_tokens":1}}}`),
			event("content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`),
			event("ping", `{"type":"ping"}`),
			event("content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hi "}}`),
			event("content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"there"}}`),
			event("content_block_stop", `{"type":"content_block_stop","index":0}`),
			event("content_block_start", `{"type":"content_block_start","index":1,"content_block":{"type":"tool_use","id":"toolu_9","name":"lookup","input":{}}}`),
			event("content_block_delta", `{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"{\"q\":"}}`),
			event("content_block_delta", `{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"\"go\"}"}}`),
			event("content_block_stop", `{"type":"content_block_stop","index":1}`),
			event("message_delta", `{"type":"message_delta","delta":{"stop_reason":"tool_use","stop_sequence":null},"usage":{"output_tokens":15}}`),
			event("message_stop", `{"type":"message_stop"}`),
		}, ""))
	})

	s, err := a.ExecuteStream(t.Context(), model.Request{Messages: []core.Message{core.UserText("hi")}})
	require.NoError(t, err)
	assert.Equal(t, int32(0), requests.Load())

	var (
		text   strings.Builder
		deltas []model.ToolDelta
		reason core.FinishReason
		usage  core.Usage
		ids    []string
	)
	for {
		chunk, err := s.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		ids = append(ids, chunk.ID())
		text.WriteString(chunk.TextDelta())
		deltas = append(deltas, chunk.ToolDeltas()...)
		if r := chunk.FinishReason(); r != "" {
			reason = r
		}
		if u := chunk.Usage(); u.Known() {
			usage = u
		}
	}
	require.NoError(t, s.Close())

	assert.Equal(t, "Hi there", text.String())
	assert.Equal(t, core.FinishToolCalls, reason)
	for _, id := range ids {
		assert.Equal(t, "msg_2", id)
	}
	require.NotNil(t, usage.TotalTokens)
	assert.Equal(t, int64(25), *usage.TotalTokens)

	require.Len(t, deltas, 4)
	assert.Equal(t, model.ToolDelta{Index: 1, ID: "toolu_9", Name: "lookup"}, deltas[0])
	assert.Equal(t, `{"q":`, deltas[1].ArgumentsDelta)
	assert.Equal(t, `"go"}`, deltas[2].ArgumentsDelta)
	assert.Equal(t, model.ToolDelta{Index: 1, Done: true}, deltas[3])
}

func TestAdapter_Capabilities(t *testing.T) {
	caps := NewAdapterFromClient(nil).Capabilities()
	assert.True(t, caps.SupportsToolForcing)
	assert.False(t, caps.SupportsJSONMode)
	assert.True(t, caps.SupportsStreamingTools)
}
