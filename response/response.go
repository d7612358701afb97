// Package response normalizes raw provider responses and stream chunks into
// one common shape.
//
// Guarantees of the normalized view:
//   - Content is always a string, "" when the provider returned no text
//   - ToolCalls is nil when the provider returned none, otherwise non-empty
//   - Usage fields are nil when the provider did not report them; zero is
//     never fabricated for missing data
//   - The vendor object stays reachable through Raw for escape hatches
package response

import (
	"bytes"
	"encoding/json"
	"slices"
	"sync"
	"time"

	"github.com/funcn-ai/funcn-sub000/core"
	"github.com/funcn-ai/funcn-sub000/model"
	"github.com/tidwall/gjson"
)

// CallResponse is the common-shape view over one provider response. It is
// immutable once constructed; accessors return copies.
type CallResponse struct {
	provider      string
	id            string
	model         string
	created       time.Time
	content       string
	finishReasons []core.FinishReason
	usage         core.Usage
	toolCalls     []core.ToolCall
	variant       model.RawResponse

	rawOnce sync.Once
	rawJSON []byte
}

// Normalize wraps a raw provider response.
func Normalize(raw model.RawResponse) *CallResponse {
	return &CallResponse{
		provider:      raw.Provider(),
		id:            raw.ID(),
		model:         raw.Model(),
		created:       raw.Created(),
		content:       raw.Text(),
		finishReasons: normalizeReasons(raw.FinishReasons()),
		usage:         raw.Usage().Clone(),
		toolCalls:     normalizeToolCalls(raw.ToolCalls()),
		variant:       raw,
	}
}

// Provider returns the name of the provider that produced the response.
func (r *CallResponse) Provider() string { return r.provider }

// ID returns the provider response id.
func (r *CallResponse) ID() string { return r.id }

// Model returns the model that served the response.
func (r *CallResponse) Model() string { return r.model }

// Created returns the provider timestamp (zero when not reported).
func (r *CallResponse) Created() time.Time { return r.created }

// Content returns the text content, "" when none.
func (r *CallResponse) Content() string { return r.content }

// FinishReasons returns the finish reason of every choice / block.
func (r *CallResponse) FinishReasons() []core.FinishReason { return slices.Clone(r.finishReasons) }

// FinishReason returns the first finish reason or "".
func (r *CallResponse) FinishReason() core.FinishReason {
	if len(r.finishReasons) == 0 {
		return ""
	}
	return r.finishReasons[0]
}

// Usage returns token usage; unknown values are nil.
func (r *CallResponse) Usage() core.Usage { return r.usage.Clone() }

// ToolCalls returns nil when no tools were requested, otherwise the calls in
// issue order.
func (r *CallResponse) ToolCalls() []core.ToolCall {
	if r.toolCalls == nil {
		return nil
	}
	out := make([]core.ToolCall, len(r.toolCalls))
	for i, tc := range r.toolCalls {
		out[i] = core.ToolCall{ID: tc.ID, Name: tc.Name, Arguments: slices.Clone(tc.Arguments)}
	}
	return out
}

// HasToolCalls reports whether the model requested any tool.
func (r *CallResponse) HasToolCalls() bool { return len(r.toolCalls) > 0 }

// ToolCall returns the first call to the named tool.
func (r *CallResponse) ToolCall(name string) (core.ToolCall, bool) {
	for _, tc := range r.toolCalls {
		if tc.Name == name {
			return core.ToolCall{ID: tc.ID, Name: tc.Name, Arguments: slices.Clone(tc.Arguments)}, true
		}
	}
	return core.ToolCall{}, false
}

// Message returns the assistant message to append to history.
func (r *CallResponse) Message() core.Message {
	return core.AssistantMessage(r.content, r.ToolCalls()...)
}

// Variant returns the provider variant the response was normalized from.
func (r *CallResponse) Variant() model.RawResponse { return r.variant }

// Raw returns the vendor-native object.
func (r *CallResponse) Raw() any { return r.variant.Raw() }

// RawField reads a field of the vendor object by gjson path, for values the
// common shape does not carry (e.g. "system_fingerprint").
func (r *CallResponse) RawField(path string) gjson.Result {
	r.rawOnce.Do(func() {
		r.rawJSON = rawJSON(r.variant.Raw())
	})
	return gjson.GetBytes(r.rawJSON, path)
}

// Equivalent reports whether two responses carry the same normalized data,
// ignoring the raw vendor objects.
func (r *CallResponse) Equivalent(o *CallResponse) bool {
	if r == nil || o == nil {
		return r == o
	}
	return r.provider == o.provider &&
		r.id == o.id &&
		r.model == o.model &&
		r.created.Equal(o.created) &&
		r.content == o.content &&
		slices.Equal(r.finishReasons, o.finishReasons) &&
		usageEqual(r.usage, o.usage) &&
		toolCallsEqual(r.toolCalls, o.toolCalls)
}

func normalizeReasons(in []core.FinishReason) []core.FinishReason {
	if len(in) == 0 {
		return nil
	}
	return slices.Clone(in)
}

// normalizeToolCalls copies calls, returning nil for an empty list and "{}"
// for calls without arguments.
func normalizeToolCalls(in []core.ToolCall) []core.ToolCall {
	if len(in) == 0 {
		return nil
	}
	out := make([]core.ToolCall, len(in))
	for i, tc := range in {
		args := bytes.TrimSpace(tc.Arguments)
		if len(args) == 0 {
			args = []byte("{}")
		}
		out[i] = core.ToolCall{ID: tc.ID, Name: tc.Name, Arguments: slices.Clone(args)}
	}
	return out
}

func rawJSON(v any) []byte {
	if rj, ok := v.(interface{ RawJSON() string }); ok && rj.RawJSON() != "" {
		return []byte(rj.RawJSON())
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}

func usageEqual(a, b core.Usage) bool {
	eq := func(x, y *int64) bool {
		if x == nil || y == nil {
			return x == y
		}
		return *x == *y
	}
	return eq(a.InputTokens, b.InputTokens) &&
		eq(a.OutputTokens, b.OutputTokens) &&
		eq(a.CachedTokens, b.CachedTokens) &&
		eq(a.TotalTokens, b.TotalTokens)
}

func toolCallsEqual(a, b []core.ToolCall) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID || a[i].Name != b[i].Name || !bytes.Equal(a[i].Arguments, b[i].Arguments) {
			return false
		}
	}
	return true
}
