// Package config resolves the configuration of one model call.
//
// A Static configuration is fixed when a call is defined. At invocation time
// an optional Dynamic record may override any of its fields; Resolve merges
// the two, checks the result against the provider's capabilities and
// returns the final CallConfig. Resolution is pure: it performs no I/O.
package config

import (
	"fmt"
	"slices"

	"github.com/funcn-ai/funcn-sub000/core"
	"github.com/funcn-ai/funcn-sub000/model"
	"github.com/funcn-ai/funcn-sub000/schema"
	"github.com/funcn-ai/funcn-sub000/tool"
)

// ResponseModel describes the structured output requested from a call.
// *structured.Model[T] satisfies it.
type ResponseModel interface {
	Name() string
	Schema() *schema.Schema
}

// StreamOptions tune streamed calls.
type StreamOptions struct {
	// DeferTools holds completed tool calls back until the final chunk even
	// when the provider streams them individually.
	DeferTools bool `json:"defer_tools,omitempty" yaml:"defer_tools,omitempty" toml:"defer_tools,omitempty"`
}

// CapabilityLookup reports the capabilities of a provider. *model.Registry
// satisfies it.
type CapabilityLookup interface {
	Capabilities(provider string) (model.Capabilities, error)
}

// Static is the configuration fixed at call definition time.
type Static struct {
	Provider      string
	Model         string
	Params        model.Params
	Tools         []tool.Tool
	ResponseModel ResponseModel
	Stream        bool
	StreamOptions StreamOptions
	JSONMode      bool
	// Client overrides the adapter registered for Provider.
	Client model.Adapter
	// Messages are the templated prompt, if a template produced one.
	Messages []core.Message
}

// Dynamic is the per-invocation override record. Nil fields are absent and
// fall back to the static value; present fields always win.
type Dynamic struct {
	Provider      *string
	Model         *string
	Params        *model.Params // merged field by field
	Tools         []tool.Tool
	ResponseModel ResponseModel
	Stream        *bool
	StreamOptions *StreamOptions
	JSONMode      *bool
	Client        model.Adapter
	Messages      []core.Message
}

// Ptr returns a pointer to v, for filling Dynamic fields.
func Ptr[T any](v T) *T { return &v }

// CallConfig is the resolved configuration of one call.
type CallConfig struct {
	Provider      string
	Model         string
	Params        model.Params
	Tools         []tool.Tool
	ResponseModel ResponseModel
	Stream        bool
	StreamOptions StreamOptions
	JSONMode      bool
	Client        model.Adapter
	Messages      []core.Message
	Capabilities  model.Capabilities
}

// Request builds the normalized request handed to the adapter. Response
// model preparation (synthetic tool or JSON instruction) is left to the
// structured package.
func (c CallConfig) Request() model.Request {
	req := model.Request{
		Model:    c.Model,
		Messages: core.CloneMessages(c.Messages),
		Params:   c.Params,
		Stream:   c.Stream,
		JSONMode: c.JSONMode,
	}
	for _, t := range c.Tools {
		req.Tools = append(req.Tools, tool.Definition(t))
	}
	return req
}

// Resolve merges static and dynamic configuration. dynamic may be nil.
// caps is consulted unless a Client override supplies its own capabilities.
func Resolve(static Static, dynamic *Dynamic, caps CapabilityLookup) (CallConfig, error) {
	cfg := CallConfig{
		Provider:      static.Provider,
		Model:         static.Model,
		Params:        static.Params,
		Tools:         static.Tools,
		ResponseModel: static.ResponseModel,
		Stream:        static.Stream,
		StreamOptions: static.StreamOptions,
		JSONMode:      static.JSONMode,
		Client:        static.Client,
	}

	var dynMessages []core.Message
	if d := dynamic; d != nil {
		if d.Provider != nil {
			cfg.Provider = *d.Provider
		}
		if d.Model != nil {
			cfg.Model = *d.Model
		}
		if d.Params != nil {
			cfg.Params = cfg.Params.Merge(*d.Params)
		}
		if d.Tools != nil {
			cfg.Tools = d.Tools
		}
		if d.ResponseModel != nil {
			cfg.ResponseModel = d.ResponseModel
		}
		if d.Stream != nil {
			cfg.Stream = *d.Stream
		}
		if d.StreamOptions != nil {
			cfg.StreamOptions = *d.StreamOptions
		}
		if d.JSONMode != nil {
			cfg.JSONMode = *d.JSONMode
		}
		if d.Client != nil {
			cfg.Client = d.Client
		}
		dynMessages = d.Messages
	}

	if cfg.Provider == "" {
		return CallConfig{}, core.NewConfigurationError("provider", "no provider configured")
	}
	if cfg.Model == "" {
		return CallConfig{}, core.NewConfigurationError("model", "no model configured")
	}

	switch {
	case len(dynMessages) > 0 && len(static.Messages) > 0:
		return CallConfig{}, core.NewConfigurationError("messages", "messages supplied by both the template and the dynamic configuration")
	case len(dynMessages) > 0:
		cfg.Messages = slices.Clone(dynMessages)
	case len(static.Messages) > 0:
		cfg.Messages = slices.Clone(static.Messages)
	default:
		return CallConfig{}, core.NewConfigurationError("messages", "no messages to send")
	}
	for _, m := range cfg.Messages {
		if err := m.Validate(); err != nil {
			return CallConfig{}, err
		}
	}

	switch {
	case cfg.Client != nil:
		cfg.Capabilities = cfg.Client.Capabilities()
	case caps != nil:
		c, err := caps.Capabilities(cfg.Provider)
		if err != nil {
			return CallConfig{}, err
		}
		cfg.Capabilities = c
	default:
		return CallConfig{}, core.NewConfigurationError("provider", fmt.Sprintf("no adapter available for %q", cfg.Provider))
	}

	if err := checkCapabilities(cfg); err != nil {
		return CallConfig{}, err
	}
	return cfg, nil
}

func checkCapabilities(cfg CallConfig) error {
	caps := cfg.Capabilities

	if cfg.JSONMode && !caps.SupportsJSONMode {
		return core.NewConfigurationError("json_mode", fmt.Sprintf("provider %q does not support JSON mode", cfg.Provider))
	}
	if cfg.ResponseModel != nil && !cfg.JSONMode && !caps.SupportsToolForcing {
		return core.NewConfigurationError("response_model",
			fmt.Sprintf("provider %q cannot force a tool call; enable JSON mode for structured output", cfg.Provider))
	}

	if cfg.ResponseModel != nil {
		for _, t := range cfg.ResponseModel.Schema().Types() {
			if !caps.SupportsFieldType(t) {
				return core.NewConfigurationError("response_model",
					fmt.Sprintf("provider %q does not support %s fields", cfg.Provider, t))
			}
		}
	}

	seen := make(map[string]struct{}, len(cfg.Tools))
	for _, t := range cfg.Tools {
		if _, dup := seen[t.Name()]; dup {
			return core.NewConfigurationError("tools", fmt.Sprintf("tool %q configured twice", t.Name()))
		}
		seen[t.Name()] = struct{}{}
		for _, typ := range parameterTypes(t.Parameters()) {
			if !caps.SupportsFieldType(typ) {
				return core.NewConfigurationError("tools",
					fmt.Sprintf("tool %q uses %s fields, unsupported by provider %q", t.Name(), typ, cfg.Provider))
			}
		}
	}
	return nil
}

// parameterTypes collects the JSON types used in a raw JSON schema.
func parameterTypes(s map[string]any) []schema.Type {
	var out []schema.Type
	var walk func(node map[string]any)
	walk = func(node map[string]any) {
		if typ, ok := node["type"].(string); ok && !slices.Contains(out, schema.Type(typ)) {
			out = append(out, schema.Type(typ))
		}
		if props, ok := node["properties"].(map[string]any); ok {
			for _, p := range props {
				if pm, ok := p.(map[string]any); ok {
					walk(pm)
				}
			}
		}
		if items, ok := node["items"].(map[string]any); ok {
			walk(items)
		}
	}
	walk(s)
	return out
}
