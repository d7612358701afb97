package agent

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/funcn-ai/funcn-sub000/call"
	"github.com/funcn-ai/funcn-sub000/core"
	"github.com/funcn-ai/funcn-sub000/logging"
	"github.com/funcn-ai/funcn-sub000/response"
	"github.com/funcn-ai/funcn-sub000/retry"
	"github.com/funcn-ai/funcn-sub000/telemetry"
	"github.com/funcn-ai/funcn-sub000/tool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DefaultMaxTurns bounds the model calls of one run unless Options.MaxTurns
// says otherwise.
const DefaultMaxTurns = 10

// ErrMaxTurns is returned when the model still requests tools after
// MaxTurns model calls.
var ErrMaxTurns = errors.New("maximum turns exceeded")

// Caller performs one model call. *call.Call and *call.Resilient satisfy it.
type Caller interface {
	Invoke(ctx context.Context, in call.Input) (*response.CallResponse, error)
	StreamEach(ctx context.Context, in call.Input, onChunk call.ChunkFunc) (*response.CallResponse, error)
}

// targetCaller is a Caller that can serve a fallback target. *call.Call and
// *call.Resilient implement it.
type targetCaller interface {
	InvokeTarget(ctx context.Context, in call.Input, target retry.Target) (*response.CallResponse, error)
	StreamEachTarget(ctx context.Context, in call.Input, target retry.Target, onChunk call.ChunkFunc) (*response.CallResponse, error)
}

// Options configure a Loop.
type Options struct {
	// MaxTurns bounds the number of model calls; <= 0 means DefaultMaxTurns.
	MaxTurns int
	// MaxParallel bounds concurrent tool handlers; <= 0 runs a batch at once.
	MaxParallel int
	// ReportErrors turns handler failures into error results shown to the
	// model instead of stopping the loop.
	ReportErrors bool
	Logger       logging.Logger
	Tracer       trace.Tracer
}

// Result is the outcome of a run.
type Result struct {
	// Response is the final model response, the first without tool calls.
	Response *response.CallResponse
	// History is Input.History followed by every message the loop appended,
	// ending with the final assistant message.
	History []core.Message
	// Turns counts model calls.
	Turns int
	// ToolCalls counts executed tool calls.
	ToolCalls int
}

// Loop drives a Caller and a tool registry.
type Loop struct {
	caller   Caller
	registry *tool.Registry
	executor *tool.Executor
	opts     Options
	logger   logging.Logger
}

// New creates a loop. A nil registry offers no tools; every requested tool
// is then unknown.
func New(c Caller, registry *tool.Registry, optFns ...func(o *Options)) *Loop {
	opts := Options{MaxTurns: DefaultMaxTurns}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxTurns <= 0 {
		opts.MaxTurns = DefaultMaxTurns
	}
	if registry == nil {
		registry = tool.NewRegistry()
	}
	logger := logging.OrNoOp(opts.Logger)

	return &Loop{
		caller:   c,
		registry: registry,
		executor: tool.NewExecutor(func(o *tool.ExecutorOptions) {
			o.MaxParallel = opts.MaxParallel
			o.ReportErrors = opts.ReportErrors
			o.Logger = logger
		}),
		opts:   opts,
		logger: logger,
	}
}

// Run executes the loop. The tools offered to the model default to the
// registry's tools when in.Tools is nil.
func (l *Loop) Run(ctx context.Context, in call.Input) (*Result, error) {
	return l.run(ctx, in, retry.Target{}, nil)
}

// RunStream is Run with every model call streamed; each chunk of every turn
// is passed to onChunk.
func (l *Loop) RunStream(ctx context.Context, in call.Input, onChunk call.ChunkFunc) (*Result, error) {
	if onChunk == nil {
		onChunk = func(*response.ResponseChunk) error { return nil }
	}
	return l.run(ctx, in, retry.Target{}, onChunk)
}

func (l *Loop) run(ctx context.Context, in call.Input, target retry.Target, onChunk call.ChunkFunc) (_ *Result, err error) {
	ctx, span := telemetry.StartSpan(ctx, l.opts.Tracer, "funcn.agent.run",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.Int("agent.max_turns", l.opts.MaxTurns)))
	start := time.Now()
	res := &Result{History: slices.Clone(in.History)}
	defer func() {
		span.SetAttributes(attribute.Int("agent.turns", res.Turns), attribute.Int("agent.tool_calls", res.ToolCalls))
		telemetry.EndSpan(span, err)
		l.logDone(res, time.Since(start), err)
	}()

	if in.Tools == nil && l.registry.Len() > 0 {
		in.Tools = l.registry.Tools()
	}
	limiter := core.NewCallLimiter(l.opts.MaxTurns)

	for turn := 1; ; turn++ {
		if err := limiter.Increment(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMaxTurns, err)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		l.logger.Debug("agent.turn.start", "turn", turn, "history", len(res.History))

		turnIn := in
		turnIn.History = res.History
		resp, err := l.call(ctx, turnIn, target, onChunk)
		if err != nil {
			return nil, err
		}
		res.Turns = turn
		res.Response = resp
		res.History = append(res.History, resp.Message())

		calls := resp.ToolCalls()
		if len(calls) == 0 {
			return res, nil
		}

		results, err := l.executor.Execute(ctx, l.registry, calls, turn)
		if err != nil {
			return nil, err
		}
		for _, r := range results {
			res.History = append(res.History, core.ToolResultMessage(r))
		}
		res.ToolCalls += len(calls)
		l.logger.Debug("agent.tools.batch.complete", "turn", turn, "tool_calls", len(calls))
	}
}

func (l *Loop) call(ctx context.Context, in call.Input, target retry.Target, onChunk call.ChunkFunc) (*response.CallResponse, error) {
	if !target.IsPrimary() {
		tc, ok := l.caller.(targetCaller)
		if !ok {
			return nil, core.NewConfigurationError("caller", fmt.Sprintf("%T cannot serve fallback target %s/%s", l.caller, target.Provider, target.Model))
		}
		if onChunk != nil {
			return tc.StreamEachTarget(ctx, in, target, onChunk)
		}
		return tc.InvokeTarget(ctx, in, target)
	}
	if onChunk != nil {
		return l.caller.StreamEach(ctx, in, onChunk)
	}
	return l.caller.Invoke(ctx, in)
}

// loopLogger is implemented by *logging.StructuredLogger.
type loopLogger interface {
	LogLoopExecution(turns, toolCalls int, dur time.Duration, err error)
}

func (l *Loop) logDone(res *Result, dur time.Duration, err error) {
	turns, calls := res.Turns, res.ToolCalls
	if ll, ok := l.logger.(loopLogger); ok {
		ll.LogLoopExecution(turns, calls, dur, err)
		return
	}
	if err != nil {
		l.logger.Warn("agent.run.done", "turns", turns, "tool_calls", calls, "duration_ms", dur.Milliseconds(), "error", err.Error())
		return
	}
	l.logger.Info("agent.run.done", "turns", turns, "tool_calls", calls, "duration_ms", dur.Milliseconds())
}
