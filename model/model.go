package model

import (
	"context"
	"slices"

	"github.com/funcn-ai/funcn-sub000/core"
	"github.com/funcn-ai/funcn-sub000/schema"
)

// ToolDefinition declaratively exposes a callable function to the model.
type ToolDefinition struct {
	Type     string             `json:"type"` // "function"
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes an individual function (tool) exposed to the model.
// Parameters is a JSON Schema object (draft agnostic, minimal subset expected).
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"` // JSON Schema
}

// NewToolDefinition builds a function tool definition.
func NewToolDefinition(name, description string, parameters map[string]any) ToolDefinition {
	return ToolDefinition{
		Type: "function",
		Function: FunctionDefinition{
			Name:        name,
			Description: description,
			Parameters:  parameters,
		},
	}
}

// Params carries sampling parameters. Nil fields are left to the provider default.
type Params struct {
	Temperature *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty" toml:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty" yaml:"top_p,omitempty" toml:"top_p,omitempty"`
	MaxTokens   *int64   `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty" toml:"max_tokens,omitempty"`
	Seed        *int64   `json:"seed,omitempty" yaml:"seed,omitempty" toml:"seed,omitempty"`
	Stop        []string `json:"stop,omitempty" yaml:"stop,omitempty" toml:"stop,omitempty"`
}

// Merge returns p with every field set in override replacing the original.
func (p Params) Merge(override Params) Params {
	out := p
	if override.Temperature != nil {
		out.Temperature = override.Temperature
	}
	if override.TopP != nil {
		out.TopP = override.TopP
	}
	if override.MaxTokens != nil {
		out.MaxTokens = override.MaxTokens
	}
	if override.Seed != nil {
		out.Seed = override.Seed
	}
	if override.Stop != nil {
		out.Stop = slices.Clone(override.Stop)
	}
	return out
}

// Request is the normalized model input handed to adapters.
type Request struct {
	Model    string           `json:"model"`
	Messages []core.Message   `json:"messages"`
	Tools    []ToolDefinition `json:"tools,omitempty"`
	// ForceTool names a tool the provider must call; empty leaves the choice to the model.
	ForceTool string `json:"force_tool,omitempty"`
	Params    Params `json:"params"`
	Stream    bool   `json:"stream,omitempty"`
	JSONMode  bool   `json:"json_mode,omitempty"`
}

// Capabilities describes what a provider adapter can express.
type Capabilities struct {
	SupportsToolForcing    bool          `json:"supports_tool_forcing"`
	SupportsJSONMode       bool          `json:"supports_json_mode"`
	SupportsStreamingTools bool          `json:"supports_streaming_tools"`
	SupportedFieldTypes    []schema.Type `json:"supported_field_types"`
}

// SupportsFieldType reports whether t can appear in tool parameter schemas.
// An empty SupportedFieldTypes list accepts every type.
func (c Capabilities) SupportsFieldType(t schema.Type) bool {
	return len(c.SupportedFieldTypes) == 0 || slices.Contains(c.SupportedFieldTypes, t)
}

// AllFieldTypes lists every schema type.
func AllFieldTypes() []schema.Type {
	return []schema.Type{
		schema.TypeString, schema.TypeInteger, schema.TypeNumber,
		schema.TypeBoolean, schema.TypeArray, schema.TypeObject,
	}
}

// Info contains metadata about an adapter implementation.
type Info struct {
	Name     string `json:"name"`     // default model
	Provider string `json:"provider"` // "openai", "anthropic", "ollama", ...
}

// Stream is a pull based sequence of raw chunks. Next returns io.EOF once the
// sequence is exhausted. Close releases the transport and is safe to call
// more than once and at any point.
type Stream interface {
	Next() (RawChunk, error)
	Close() error
}

// Adapter translates normalized requests to one vendor's native API.
type Adapter interface {
	// Info returns information about the adapter.
	Info() Info

	// Capabilities returns what the provider can express.
	Capabilities() Capabilities

	// Execute performs a non-streaming request.
	Execute(ctx context.Context, req Request) (RawResponse, error)

	// ExecuteStream returns a lazy stream; no request is sent before the
	// first call to Next.
	ExecuteStream(ctx context.Context, req Request) (Stream, error)
}

// ResolveModel returns req.Model or the fallback when unset.
func ResolveModel(req Request, fallback string) string {
	if req.Model != "" {
		return req.Model
	}
	return fallback
}
