// Package structured turns model output into typed values described by a
// response model.
//
// Two strategies are available. In tool mode (the default) a synthetic tool
// whose parameters equal the response schema is offered and the provider is
// told to call it; the tool arguments are decoded into the value. In JSON
// mode the text content is parsed as JSON. Primitive and collection types use
// a single-field wrapper object {"value": ...} that is unwrapped after
// validation.
package structured

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/funcn-ai/funcn-sub000/core"
	"github.com/funcn-ai/funcn-sub000/model"
	"github.com/funcn-ai/funcn-sub000/response"
	"github.com/funcn-ai/funcn-sub000/schema"
	"github.com/tidwall/gjson"
)

// Mode selects how the provider is asked for structured output.
type Mode int

const (
	// ModeTool forces a call to a synthetic tool.
	ModeTool Mode = iota
	// ModeJSON asks for a JSON document in the text content.
	ModeJSON
)

func (m Mode) String() string {
	if m == ModeJSON {
		return "json"
	}
	return "tool"
}

const wrapperField = "value"

// Validator checks a decoded value beyond what the schema expresses.
type Validator[T any] func(T) error

// Options configure a response model.
type Options[T any] struct {
	Description string
	Mode        Mode
	Validators  []Validator[T]
}

// WithDescription sets the synthetic tool description.
func WithDescription[T any](d string) func(o *Options[T]) {
	return func(o *Options[T]) { o.Description = d }
}

// WithMode selects tool or JSON mode.
func WithMode[T any](m Mode) func(o *Options[T]) {
	return func(o *Options[T]) { o.Mode = m }
}

// WithValidator appends a validator.
func WithValidator[T any](v Validator[T]) func(o *Options[T]) {
	return func(o *Options[T]) { o.Validators = append(o.Validators, v) }
}

// Model describes the typed output T of a call.
type Model[T any] struct {
	name    string
	schema  *schema.Schema
	opts    Options[T]
	wrapped bool
}

// New creates a response model for the record type T described by s.
func New[T any](name string, s *schema.Schema, optFns ...func(o *Options[T])) *Model[T] {
	opts := Options[T]{Mode: ModeTool}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Model[T]{name: name, schema: s, opts: opts}
}

// FromStruct creates a response model whose schema is derived from the
// struct type T with schema.For.
func FromStruct[T any](name string, optFns ...func(o *Options[T])) (*Model[T], error) {
	s, err := schema.For[T]()
	if err != nil {
		return nil, fmt.Errorf("response model %s: %w", name, err)
	}
	return New(name, s, optFns...), nil
}

// Primitive creates a response model for a primitive or collection type T.
// field describes the value; its name is replaced by the wrapper field.
func Primitive[T any](name string, field schema.Field, optFns ...func(o *Options[T])) *Model[T] {
	field.Name = wrapperField
	m := New(name, schema.Object(field.Required()), optFns...)
	m.wrapped = true
	return m
}

// Name returns the synthetic tool name.
func (m *Model[T]) Name() string { return m.name }

// Schema returns the response schema.
func (m *Model[T]) Schema() *schema.Schema { return m.schema }

// Mode returns the configured strategy.
func (m *Model[T]) Mode() Mode { return m.opts.Mode }

// JSONMode reports whether the model uses JSON mode.
func (m *Model[T]) JSONMode() bool { return m.opts.Mode == ModeJSON }

// ToolDefinition returns the synthetic tool offered in tool mode.
func (m *Model[T]) ToolDefinition() model.ToolDefinition {
	desc := m.opts.Description
	if desc == "" {
		desc = fmt.Sprintf("Respond with the %s result by calling this tool.", m.name)
	}
	return model.NewToolDefinition(m.name, desc, m.schema.JSON())
}

// Prepare adds the strategy specific parts to a request: the forced
// synthetic tool in tool mode, JSON mode and a schema instruction otherwise.
func (m *Model[T]) Prepare(req *model.Request) error {
	if m.opts.Mode == ModeJSON {
		schemaJSON, err := json.Marshal(m.schema.JSON())
		if err != nil {
			return fmt.Errorf("marshal response schema: %w", err)
		}
		req.JSONMode = true
		instruction := core.SystemMessage(fmt.Sprintf(
			"Respond only with a JSON object that matches this JSON schema:\n%s", schemaJSON))
		req.Messages = append(req.Messages, instruction)
		return nil
	}
	req.Tools = append(req.Tools, m.ToolDefinition())
	req.ForceTool = m.name
	return nil
}

// Payload extracts the raw JSON to decode from a response.
func (m *Model[T]) Payload(resp *response.CallResponse) (string, error) {
	if m.opts.Mode == ModeJSON {
		return extractJSON(resp.Content()), nil
	}
	tc, ok := resp.ToolCall(m.name)
	if !ok {
		return "", ErrNoToolCall
	}
	return string(tc.Arguments), nil
}

// Reconstruct decodes and validates the value carried by resp.
func (m *Model[T]) Reconstruct(resp *response.CallResponse) (T, error) {
	payload, err := m.Payload(resp)
	if err != nil {
		var zero T
		return zero, &ValidationError{Model: m.name, Cause: err, Raw: resp.Content(), Response: resp}
	}
	v, verr := m.Parse([]byte(payload))
	if verr != nil {
		verr.Response = resp
		return v, verr
	}
	return v, nil
}

// Parse decodes and validates a raw JSON payload.
func (m *Model[T]) Parse(raw []byte) (T, *ValidationError) {
	var zero T

	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return zero, &ValidationError{Model: m.name, Cause: fmt.Errorf("invalid JSON: %w", err), Raw: string(raw)}
	}
	if issues := m.schema.ValidateAll(doc); len(issues) > 0 {
		return zero, &ValidationError{Model: m.name, Issues: issues, Raw: string(raw)}
	}

	data := raw
	if m.wrapped {
		data = []byte(gjson.GetBytes(raw, wrapperField).Raw)
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return zero, &ValidationError{Model: m.name, Cause: fmt.Errorf("decode: %w", err), Raw: string(raw)}
	}
	for _, validate := range m.opts.Validators {
		if err := validate(v); err != nil {
			return zero, &ValidationError{Model: m.name, Cause: err, Raw: string(raw)}
		}
	}
	return v, nil
}

// Validate runs schema and validator checks on an existing value. It is
// idempotent: a valid value is returned unchanged.
func (m *Model[T]) Validate(v T) (T, error) {
	var doc any = v
	if m.wrapped {
		doc = map[string]any{wrapperField: v}
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return v, &ValidationError{Model: m.name, Cause: fmt.Errorf("encode: %w", err)}
	}
	if _, verr := m.Parse(raw); verr != nil {
		return v, verr
	}
	return v, nil
}

// extractJSON returns the outermost JSON object in text, tolerating code
// fences and prose around it.
func extractJSON(text string) string {
	text = strings.TrimSpace(text)
	if json.Valid([]byte(text)) {
		return text
	}
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return text
	}
	candidate := text[start : end+1]
	if !json.Valid([]byte(candidate)) {
		return text
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(candidate)); err != nil {
		return candidate
	}
	return buf.String()
}
