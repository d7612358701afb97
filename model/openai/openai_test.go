package openai

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
		o.Model = "gpt-test"
	})
}

const completionJSON = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "gpt-test",
  "choices": [{
    "index": 0,
    "finish_reason": "tool_calls",
    "message": {
      "role": "assistant",
      "content": "checking",
      "tool_calls": [{
        "id": "call_1",
        "type": "function",
        "function": {"name": "get_weather", "arguments": "{\"city\":\"Paris\"}"}
      }]
    }
  }],
  "usage": {"prompt_tokens": 12, "completion_tokens": 5, "total_tokens": 17}
}`

// -------------------- Execute Tests --------------------

func TestAdapter_Execute(t *testing.T) {
	var body map[string]any
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, completionJSON)
	})

	tdef := model.NewToolDefinition("get_weather", "Weather lookup", map[string]any{"type": "object"})
	raw, err := a.Execute(t.Context(), model.Request{
		Messages:  []core.Message{core.SystemMessage("be brief"), core.UserText("weather?")},
		Tools:     []model.ToolDefinition{tdef},
		ForceTool: "get_weather",
		JSONMode:  true,
	})
	require.NoError(t, err)

	assert.Equal(t, "openai", raw.Provider())
	assert.Equal(t, "chatcmpl-1", raw.ID())
	assert.Equal(t, "checking", raw.Text())
	assert.Equal(t, []core.FinishReason{core.FinishToolCalls}, raw.FinishReasons())
	require.Len(t, raw.ToolCalls(), 1)
	assert.Equal(t, "call_1", raw.ToolCalls()[0].ID)
	assert.JSONEq(t, `{"city":"Paris"}`, string(raw.ToolCalls()[0].Arguments))

	usage := raw.Usage()
	require.NotNil(t, usage.InputTokens)
	assert.Equal(t, int64(12), *usage.InputTokens)
	assert.Equal(t, int64(17), *usage.TotalTokens)
	assert.Nil(t, usage.CachedTokens)

	assert.Equal(t, "gpt-test", body["model"])
	choice := body["tool_choice"].(map[string]any)
	assert.Equal(t, "get_weather", choice["function"].(map[string]any)["name"])
	assert.Equal(t, "json_object", body["response_format"].(map[string]any)["type"])
	assert.Len(t, body["messages"], 2)
}

func TestAdapter_Execute_ParamsOverride(t *testing.T) {
	var body map[string]any
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, completionJSON)
	})

	temp := 0.2
	maxTokens := int64(64)
	_, err := a.Execute(t.Context(), model.Request{
		Model:    "gpt-other",
		Messages: []core.Message{core.UserText("hi")},
		Params:   model.Params{Temperature: &temp, MaxTokens: &maxTokens, Stop: []string{"END"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "gpt-other", body["model"])
	assert.InDelta(t, 0.2, body["temperature"], 1e-9)
	assert.InDelta(t, 64, body["max_completion_tokens"], 1e-9)
	assert.Equal(t, []any{"END"}, body["stop"])
}

func TestAdapter_Execute_ErrorMapping(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
	}{
		{http.StatusTooManyRequests, true},
		{http.StatusServiceUnavailable, true},
		{http.StatusBadRequest, false},
		{http.StatusUnauthorized, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, `{"error":{"message":"nope","type":"test"}}`)
			})

			_, err := a.Execute(t.Context(), model.Request{Messages: []core.Message{core.UserText("hi")}})
			require.Error(t, err)

			var pte *core.ProviderTransportError
			require.True(t, errors.As(err, &pte))
			assert.Equal(t, tt.status, pte.StatusCode)
			assert.Equal(t, tt.retryable, pte.Retryable)
			assert.Equal(t, core.KindProviderTransport, core.KindOf(err))
		})
	}
}

func TestAdapter_Execute_Multimodal(t *testing.T) {
	var body map[string]any
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, completionJSON)
	})

	msg := core.UserMessage(
		core.TextPart{Text: "describe"},
		core.ImagePart{Media: core.Media{Data: []byte{0x89, 0x50}, MediaType: "image/png"}},
	)
	_, err := a.Execute(t.Context(), model.Request{Messages: []core.Message{msg}})
	require.NoError(t, err)

	messages := body["messages"].([]any)
	content := messages[0].(map[string]any)["content"].([]any)
	require.Len(t, content, 2)
	image := content[1].(map[string]any)["image_url"].(map[string]any)
	assert.True(t, strings.HasPrefix(image["url"].(string), "data:image/png;base64,"))
}

func TestAdapter_Execute_AudioURLRejected(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Fail(t, "request must not be sent")
	})

	msg := core.UserMessage(core.AudioPart{Media: core.Media{URL: "https://example.com/a.wav", MediaType: "audio/wav"}})
	_, err := a.Execute(t.Context(), model.Request{Messages: []core.Message{msg}})
	require.Error(t, err)
	assert.Equal(t, core.KindConfiguration, core.KindOf(err))
}

// -------------------- Stream Tests --------------------

func sse(events ...string) string {
	var b strings.Builder
	for _, e := range events {
		b.WriteString("data: ")
		b.WriteString(e)
		b.WriteString("\n\n")
	}
	b.WriteString("data: [DONE]\n\n")
	return b.String()
}

func TestAdapter_ExecuteStream(t *testing.T) {
	var requests atomic.Int32
	var body map[string]any
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, sse(
			`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"gpt-test","choices":[{"index":0,"delta":{"role":"assistant","content":"Hel"}}]}`,
			`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"gpt-test","choices":[{"index":0,"delta":{"content":"lo"}}]}`,
			`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"gpt-test","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_a","type":"function","function":{"name":"a","arguments":"{\"x\":"}}]}}]}`,
			`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"gpt-test","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"1}"}}]}}]}`,
			`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"gpt-test","choices":[{"index":0,"delta":{"tool_calls":[{"index":1,"id":"call_b","type":"function","function":{"name":"b","arguments":"{}"}}]}}]}`,
			`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"gpt-test","choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}]}`,
			`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"gpt-test","choices":[],"usage":{"prompt_tokens":3,"completion_tokens":4,"total_tokens":7}}`,
		))
	})

	s, err := a.ExecuteStream(t.Context(), model.Request{Messages: []core.Message{core.UserText("hi")}})
	require.NoError(t, err)
	assert.Equal(t, int32(0), requests.Load(), "stream must not start before Next")

	var text strings.Builder
	var deltas []model.ToolDelta
	var reason core.FinishReason
	var usage core.Usage
	for {
		chunk, err := s.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
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

	assert.Equal(t, int32(1), requests.Load())
	assert.Equal(t, "Hello", text.String())
	assert.Equal(t, core.FinishToolCalls, reason)
	require.NotNil(t, usage.OutputTokens)
	assert.Equal(t, int64(4), *usage.OutputTokens)

	var done []int
	for _, d := range deltas {
		if d.Done {
			done = append(done, d.Index)
		}
	}
	assert.Equal(t, []int{0, 1}, done)

	opts := body["stream_options"].(map[string]any)
	assert.Equal(t, true, opts["include_usage"])
	assert.Equal(t, true, body["stream"])
}

func TestAdapter_ExecuteStream_CloseBeforeNext(t *testing.T) {
	var requests atomic.Int32
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
	})

	s, err := a.ExecuteStream(t.Context(), model.Request{Messages: []core.Message{core.UserText("hi")}})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.Next()
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, int32(0), requests.Load())
}

func TestAdapter_Capabilities(t *testing.T) {
	a := NewAdapterFromClient(nil)
	caps := a.Capabilities()
	assert.True(t, caps.SupportsToolForcing)
	assert.True(t, caps.SupportsJSONMode)
	assert.True(t, caps.SupportsStreamingTools)
	assert.Equal(t, "openai", a.Info().Provider)
}
