package core

import (
	"encoding/json"
	"strings"
)

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a function call request surfaced by a model provider.
// Unified across vendors so downstream logic does not need per-provider branching.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"` // JSON object of arguments
}

// ToolResult is the caller supplied outcome for one ToolCall. ID must match
// the originating ToolCall.ID.
type ToolResult struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Output  string `json:"output"`
	IsError bool   `json:"is_error,omitempty"`
}

// Message holds role + ordered parts. Assistant messages may carry tool calls,
// tool messages carry exactly one result referenced by ToolCallID.
type Message struct {
	Role       Role       `json:"role"`
	Parts      []Part     `json:"-"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"` // tool name for tool messages
	IsError    bool       `json:"is_error,omitempty"`
}

// SystemMessage returns a system message with a single text part.
func SystemMessage(text string) Message {
	return Message{Role: RoleSystem, Parts: []Part{TextPart{Text: text}}}
}

// UserMessage returns a user message built from the given parts.
func UserMessage(parts ...Part) Message {
	return Message{Role: RoleUser, Parts: parts}
}

// UserText is shorthand for a user message with one text part.
func UserText(text string) Message { return UserMessage(TextPart{Text: text}) }

// AssistantMessage returns an assistant message with optional text and tool calls.
func AssistantMessage(text string, calls ...ToolCall) Message {
	m := Message{Role: RoleAssistant}
	if text != "" {
		m.Parts = []Part{TextPart{Text: text}}
	}
	if len(calls) > 0 {
		m.ToolCalls = append([]ToolCall(nil), calls...)
	}
	return m
}

// ToolResultMessage wraps a ToolResult as a tool role message.
func ToolResultMessage(r ToolResult) Message {
	return Message{
		Role:       RoleTool,
		Parts:      []Part{TextPart{Text: r.Output}},
		ToolCallID: r.ID,
		Name:       r.Name,
		IsError:    r.IsError,
	}
}

// Text concatenates all text parts of the message.
func (m Message) Text() string {
	var sb strings.Builder
	for _, p := range m.Parts {
		if tp, ok := p.(TextPart); ok {
			sb.WriteString(tp.Text)
		}
	}
	return sb.String()
}

// Validate checks every part and the tool related invariants of the role.
func (m Message) Validate() error {
	switch m.Role {
	case RoleSystem, RoleUser, RoleAssistant:
	case RoleTool:
		if m.ToolCallID == "" {
			return NewConfigurationError("messages", "tool message without tool_call_id")
		}
	default:
		return NewConfigurationError("messages", "unknown role "+string(m.Role))
	}
	if len(m.ToolCalls) > 0 && m.Role != RoleAssistant {
		return NewConfigurationError("messages", "tool calls are only allowed on assistant messages")
	}
	for _, p := range m.Parts {
		if err := ValidatePart(p); err != nil {
			return err
		}
	}
	return nil
}

// FinishReason is the normalized cause of generation termination.
type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishLength        FinishReason = "length"
	FinishToolCalls     FinishReason = "tool_calls"
	FinishContentFilter FinishReason = "content_filter"
	FinishOther         FinishReason = "other"
)

// Usage captures token statistics. A nil field means the provider did not
// report the value; zero is a reported zero.
type Usage struct {
	InputTokens  *int64 `json:"input_tokens,omitempty"`
	OutputTokens *int64 `json:"output_tokens,omitempty"`
	CachedTokens *int64 `json:"cached_tokens,omitempty"`
	TotalTokens  *int64 `json:"total_tokens,omitempty"`
}

// Int64 returns a pointer to v.
func Int64(v int64) *int64 { return &v }

// Known reports whether at least one field was reported.
func (u Usage) Known() bool {
	return u.InputTokens != nil || u.OutputTokens != nil || u.CachedTokens != nil || u.TotalTokens != nil
}

// Clone returns a deep copy so callers cannot mutate shared pointers.
func (u Usage) Clone() Usage {
	cp := func(p *int64) *int64 {
		if p == nil {
			return nil
		}
		v := *p
		return &v
	}
	return Usage{
		InputTokens:  cp(u.InputTokens),
		OutputTokens: cp(u.OutputTokens),
		CachedTokens: cp(u.CachedTokens),
		TotalTokens:  cp(u.TotalTokens),
	}
}

// CloneMessages copies a history slice so appends on a branch never alias the
// caller's backing array.
func CloneMessages(in []Message) []Message {
	if in == nil {
		return nil
	}
	out := make([]Message, len(in))
	copy(out, in)
	return out
}
