// Package funcn is the convenience façade over the call layer. It wires the
// provider adapters into a registry and hands the registry, logger and
// tracer to every call and tool loop it builds. Most applications:
//  1. Create a Client via New() (the default registry holds the OpenAI,
//     Anthropic and Ollama adapters; API keys come from the environment)
//  2. Define calls with Client.Call or load them from a file with Client.Load
//  3. Invoke them directly, under a retry policy, or inside a tool loop
//
// Everything the façade does can be done with the call, agent and model
// packages directly.
package funcn

import (
	"github.com/funcn-ai/funcn-sub000/agent"
	"github.com/funcn-ai/funcn-sub000/call"
	"github.com/funcn-ai/funcn-sub000/config"
	"github.com/funcn-ai/funcn-sub000/logging"
	"github.com/funcn-ai/funcn-sub000/model"
	"github.com/funcn-ai/funcn-sub000/model/anthropic"
	"github.com/funcn-ai/funcn-sub000/model/ollama"
	"github.com/funcn-ai/funcn-sub000/model/openai"
	"github.com/funcn-ai/funcn-sub000/tool"
	"go.opentelemetry.io/otel/trace"
)

// Options configures a Client.
type Options struct {
	// Registry replaces the default adapter registry.
	Registry *model.Registry

	// Adapter options for the default registry.
	OpenAI    []func(o *openai.Options)
	Anthropic []func(o *anthropic.Options)
	Ollama    []func(o *ollama.Options)

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
	// Tracer (defaults to the global tracer provider if nil)
	Tracer trace.Tracer
}

// Client bundles the adapter registry with the ambient services.
type Client struct {
	opts     Options
	registry *model.Registry
}

// New creates a client. Without Options.Registry the default registry is
// built from the OpenAI, Anthropic and Ollama adapters.
func New(optFns ...func(o *Options)) (*Client, error) {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	registry := opts.Registry
	if registry == nil {
		r, err := DefaultRegistry(opts)
		if err != nil {
			return nil, err
		}
		registry = r
	}

	return &Client{opts: opts, registry: registry}, nil
}

// DefaultRegistry registers the built-in adapters configured by opts.
func DefaultRegistry(opts Options) (*model.Registry, error) {
	oll, err := ollama.NewAdapter(opts.Ollama...)
	if err != nil {
		return nil, err
	}
	return model.NewRegistry(
		openai.NewAdapter(opts.OpenAI...),
		anthropic.NewAdapter(opts.Anthropic...),
		oll,
	), nil
}

// Registry returns the adapter registry.
func (c *Client) Registry() *model.Registry { return c.registry }

// Call defines a call bound to the client's registry, logger and tracer.
func (c *Client) Call(static config.Static, optFns ...func(o *call.Options)) *call.Call {
	fns := append([]func(o *call.Options){func(o *call.Options) {
		o.Registry = c.registry
		o.Logger = c.opts.Logger
		o.Tracer = c.opts.Tracer
	}}, optFns...)
	return call.New(static, fns...)
}

// Load defines a resilient call from a YAML or TOML file: its call section
// becomes the static configuration, its retry section the policy and its
// fallbacks the chain. Tools and prompts are added through optFns and the
// call's Input.
func (c *Client) Load(path string, optFns ...func(o *call.Options)) (*call.Resilient, error) {
	f, err := config.LoadFile(path)
	if err != nil {
		return nil, err
	}
	return c.FromFile(f, optFns...), nil
}

// FromFile is Load for an already parsed file.
func (c *Client) FromFile(f *config.File, optFns ...func(o *call.Options)) *call.Resilient {
	policy := f.Policy()
	policy.Logger = c.opts.Logger
	chain := f.Chain()
	for i := range chain {
		chain[i].Policy.Logger = c.opts.Logger
	}
	return c.Call(f.Static(), optFns...).WithResilience(policy, chain...)
}

// Agent builds a tool loop over caller offering tools.
func (c *Client) Agent(caller agent.Caller, tools []tool.Tool, optFns ...func(o *agent.Options)) *agent.Loop {
	fns := append([]func(o *agent.Options){func(o *agent.Options) {
		o.Logger = c.opts.Logger
		o.Tracer = c.opts.Tracer
	}}, optFns...)
	return agent.New(caller, tool.NewRegistry(tools...), fns...)
}
