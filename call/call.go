// Package call composes the pieces of a model call: configuration
// resolution, the provider adapter, response normalization, stream
// reconstruction and structured output.
//
// A Call is defined once from a static configuration and invoked many
// times. Each invocation resolves the final configuration from the static
// record and an optional dynamic function, then runs the request through the
// adapter of the resolved provider:
//
//	c := call.New(config.Static{Provider: "openai", Model: "gpt-4o-mini"},
//		call.WithRegistry(registry))
//	resp, err := c.Invoke(ctx, call.Input{Messages: []core.Message{core.UserText("Hi")}})
package call

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/funcn-ai/funcn-sub000/config"
	"github.com/funcn-ai/funcn-sub000/core"
	"github.com/funcn-ai/funcn-sub000/logging"
	"github.com/funcn-ai/funcn-sub000/model"
	"github.com/funcn-ai/funcn-sub000/response"
	"github.com/funcn-ai/funcn-sub000/retry"
	"github.com/funcn-ai/funcn-sub000/stream"
	"github.com/funcn-ai/funcn-sub000/telemetry"
	"github.com/funcn-ai/funcn-sub000/tool"
	"go.opentelemetry.io/otel/trace"
)

// Input carries the per-invocation values.
type Input struct {
	// Messages supply the prompt when the static configuration has none.
	Messages []core.Message
	// History follows the resolved prompt. Without a prompt it is the prompt.
	History []core.Message
	// Tools replace the configured tools unless the dynamic function sets
	// its own.
	Tools []tool.Tool
	// Retry is the shared retry state when the call runs under a Resilient
	// wrapper, nil otherwise.
	Retry *retry.Context
}

// DynamicFunc computes the per-invocation overrides. It may return nil.
type DynamicFunc func(ctx context.Context, in Input) (*config.Dynamic, error)

// ChunkFunc receives every normalized chunk of a streamed call. Returning an
// error stops the stream.
type ChunkFunc func(chunk *response.ResponseChunk) error

// Options configure a Call.
type Options struct {
	Dynamic  DynamicFunc
	Registry *model.Registry
	Logger   logging.Logger
	Tracer   trace.Tracer
}

// WithDynamic sets the dynamic configuration function.
func WithDynamic(fn DynamicFunc) func(o *Options) {
	return func(o *Options) { o.Dynamic = fn }
}

// WithRegistry sets the adapter registry used to look up providers.
func WithRegistry(r *model.Registry) func(o *Options) {
	return func(o *Options) { o.Registry = r }
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) func(o *Options) {
	return func(o *Options) { o.Logger = l }
}

// WithTracer sets the tracer; the global tracer provider is used otherwise.
func WithTracer(t trace.Tracer) func(o *Options) {
	return func(o *Options) { o.Tracer = t }
}

// Call is a reusable call definition. It is safe for concurrent use.
type Call struct {
	static config.Static
	opts   Options
	logger logging.Logger
}

// New defines a call.
func New(static config.Static, optFns ...func(o *Options)) *Call {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Call{
		static: static,
		opts:   opts,
		logger: logging.OrNoOp(opts.Logger),
	}
}

// Static returns the static configuration.
func (c *Call) Static() config.Static { return c.static }

// Resolve computes the configuration an invocation with in would use.
func (c *Call) Resolve(ctx context.Context, in Input) (config.CallConfig, error) {
	return c.resolve(ctx, in, retry.Target{}, nil)
}

func (c *Call) resolve(ctx context.Context, in Input, target retry.Target, rm responseModel) (config.CallConfig, error) {
	var d config.Dynamic
	if c.opts.Dynamic != nil {
		dyn, err := c.opts.Dynamic(ctx, in)
		if err != nil {
			return config.CallConfig{}, fmt.Errorf("dynamic configuration: %w", err)
		}
		if dyn != nil {
			d = *dyn
		}
	}
	if d.Messages == nil {
		d.Messages = in.Messages
	}
	if d.Tools == nil && in.Tools != nil {
		d.Tools = in.Tools
	}

	history := in.History
	if len(d.Messages) == 0 && len(c.static.Messages) == 0 {
		d.Messages = history
		history = nil
	}

	static := c.static
	if target.Provider != "" {
		if target.Provider != static.Provider && d.Client == nil {
			static.Client = nil
		}
		d.Provider = &target.Provider
	}
	if target.Model != "" {
		d.Model = &target.Model
	}
	if target.Params != nil {
		params := *target.Params
		if d.Params != nil {
			params = d.Params.Merge(params)
		}
		d.Params = &params
	}
	if rm != nil {
		d.ResponseModel = rm
		if rm.JSONMode() {
			d.JSONMode = config.Ptr(true)
		}
	}

	var lookup config.CapabilityLookup
	if c.opts.Registry != nil {
		lookup = c.opts.Registry
	}
	cfg, err := config.Resolve(static, &d, lookup)
	if err != nil {
		return config.CallConfig{}, err
	}
	cfg.Messages = append(cfg.Messages, history...)
	return cfg, nil
}

func (c *Call) adapter(cfg config.CallConfig) (model.Adapter, error) {
	if cfg.Client != nil {
		return cfg.Client, nil
	}
	if c.opts.Registry == nil {
		return nil, core.NewConfigurationError("provider", fmt.Sprintf("no adapter available for %q", cfg.Provider))
	}
	return c.opts.Registry.Lookup(cfg.Provider)
}

// Invoke runs one call. When the resolved configuration asks for streaming
// the stream is consumed internally and the equivalent response returned.
func (c *Call) Invoke(ctx context.Context, in Input) (*response.CallResponse, error) {
	return c.invoke(ctx, in, retry.Target{})
}

// InvokeTarget is Invoke with provider, model and params overridden by
// target. The zero Target is the call's own configuration.
func (c *Call) InvokeTarget(ctx context.Context, in Input, target retry.Target) (*response.CallResponse, error) {
	return c.invoke(ctx, in, target)
}

func (c *Call) invoke(ctx context.Context, in Input, target retry.Target) (*response.CallResponse, error) {
	cfg, err := c.resolve(ctx, in, target, nil)
	if err != nil {
		return nil, err
	}
	if cfg.Stream {
		return c.consume(ctx, cfg, cfg.Request(), nil)
	}
	return c.execute(ctx, cfg, cfg.Request())
}

// Stream opens a streamed call. The caller must Close the reconstructor.
func (c *Call) Stream(ctx context.Context, in Input) (*stream.Reconstructor, error) {
	cfg, err := c.resolve(ctx, in, retry.Target{}, nil)
	if err != nil {
		return nil, err
	}
	return c.open(ctx, cfg, cfg.Request())
}

// StreamEach runs a streamed call, passes every chunk to onChunk and returns
// the reconstructed response.
func (c *Call) StreamEach(ctx context.Context, in Input, onChunk ChunkFunc) (*response.CallResponse, error) {
	return c.streamEach(ctx, in, retry.Target{}, onChunk)
}

// StreamEachTarget is StreamEach with provider, model and params
// overridden by target.
func (c *Call) StreamEachTarget(ctx context.Context, in Input, target retry.Target, onChunk ChunkFunc) (*response.CallResponse, error) {
	return c.streamEach(ctx, in, target, onChunk)
}

func (c *Call) streamEach(ctx context.Context, in Input, target retry.Target, onChunk ChunkFunc) (*response.CallResponse, error) {
	cfg, err := c.resolve(ctx, in, target, nil)
	if err != nil {
		return nil, err
	}
	return c.consume(ctx, cfg, cfg.Request(), onChunk)
}

func (c *Call) execute(ctx context.Context, cfg config.CallConfig, req model.Request) (*response.CallResponse, error) {
	a, err := c.adapter(cfg)
	if err != nil {
		return nil, err
	}
	req.Stream = false

	ctx, span := telemetry.StartSpan(ctx, c.opts.Tracer, "funcn.call.invoke",
		trace.WithAttributes(telemetry.CallAttributes(cfg.Provider, cfg.Model, false)...))
	c.logger.Debug("call.invoke.start", "provider", cfg.Provider, "model", cfg.Model, "messages", len(req.Messages), "tools", len(req.Tools))
	start := time.Now()

	raw, err := a.Execute(ctx, req)
	var resp *response.CallResponse
	if err == nil {
		resp = response.Normalize(raw)
		telemetry.RecordResult(span, resp.FinishReason(), len(resp.ToolCalls()), resp.Usage())
	}
	telemetry.EndSpan(span, err)
	c.logDone(cfg, resp, time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Call) open(ctx context.Context, cfg config.CallConfig, req model.Request) (*stream.Reconstructor, error) {
	a, err := c.adapter(cfg)
	if err != nil {
		return nil, err
	}
	req.Stream = true

	ctx, span := telemetry.StartSpan(ctx, c.opts.Tracer, "funcn.call.stream",
		trace.WithAttributes(telemetry.CallAttributes(cfg.Provider, cfg.Model, true)...))
	c.logger.Debug("call.stream.start", "provider", cfg.Provider, "model", cfg.Model, "messages", len(req.Messages), "tools", len(req.Tools))

	src, err := a.ExecuteStream(ctx, req)
	if err != nil {
		telemetry.EndSpan(span, err)
		c.logDone(cfg, nil, 0, err)
		return nil, err
	}
	traced := &tracedStream{Stream: src, span: span, start: time.Now(), done: func(u core.Usage, d time.Duration, err error) {
		c.logUsage(cfg, u, d, err)
	}}
	return stream.New(traced, cfg.Capabilities, func(o *stream.Options) {
		o.Logger = c.logger
		o.DeferTools = cfg.StreamOptions.DeferTools
	}), nil
}

// consume drains a stream, forwarding chunks to onChunk when it is set.
func (c *Call) consume(ctx context.Context, cfg config.CallConfig, req model.Request, onChunk ChunkFunc) (*response.CallResponse, error) {
	r, err := c.open(ctx, cfg, req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()

	if onChunk == nil {
		return r.Collect()
	}
	for {
		chunk, err := r.Next()
		if errors.Is(err, io.EOF) {
			return r.CallResponse()
		}
		if err != nil {
			return nil, err
		}
		if err := onChunk(chunk); err != nil {
			return nil, err
		}
	}
}

// llmCallLogger is implemented by *logging.StructuredLogger.
type llmCallLogger interface {
	LogLLMCall(provider, model string, inputTokens, outputTokens *int64, dur time.Duration, err error)
}

func (c *Call) logDone(cfg config.CallConfig, resp *response.CallResponse, dur time.Duration, err error) {
	var u core.Usage
	if resp != nil {
		u = resp.Usage()
	}
	c.logUsage(cfg, u, dur, err)
}

func (c *Call) logUsage(cfg config.CallConfig, u core.Usage, dur time.Duration, err error) {
	if l, ok := c.logger.(llmCallLogger); ok {
		l.LogLLMCall(cfg.Provider, cfg.Model, u.InputTokens, u.OutputTokens, dur, err)
		return
	}
	if err != nil {
		c.logger.Warn("call.invoke.done", "provider", cfg.Provider, "model", cfg.Model, "duration_ms", dur.Milliseconds(), "error", err.Error())
		return
	}
	c.logger.Info("call.invoke.done", "provider", cfg.Provider, "model", cfg.Model, "duration_ms", dur.Milliseconds())
}
