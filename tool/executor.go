package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/funcn-ai/funcn-sub000/core"
	"github.com/funcn-ai/funcn-sub000/logging"
)

// ErrDuplicateCallID is returned when one turn requests two calls with the
// same id; results could not be matched back to their calls.
var ErrDuplicateCallID = errors.New("duplicate tool call id")

// ExecutorOptions configures an Executor.
type ExecutorOptions struct {
	MaxParallel    int  // 0 or <1 => no explicit limit (len(calls))
	ReportErrors   bool // turn handler failures into error results instead of failing the batch
	LogStartEvents bool // log a start line per call
	Logger         logging.Logger
}

// Executor runs the tool calls of one turn, possibly in parallel, and
// reassembles the results in call order.
type Executor struct {
	opts   ExecutorOptions
	logger logging.Logger
}

// NewExecutor constructs an executor.
func NewExecutor(optFns ...func(o *ExecutorOptions)) *Executor {
	opts := ExecutorOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Executor{opts: opts, logger: logging.OrNoOp(opts.Logger)}
}

// Execute resolves every call against registry and runs it. It returns
// exactly one result per call, in the order of calls.
//
// A failing handler stops the batch with a *core.ToolExecutionError for the
// first failed call in call order, unless ReportErrors is set. Panics are
// recovered and reported like errors.
func (e *Executor) Execute(ctx context.Context, registry *Registry, calls []core.ToolCall, turn int) ([]core.ToolResult, error) {
	n := len(calls)
	if n == 0 {
		return nil, nil
	}

	seen := make(map[string]struct{}, n)
	for _, c := range calls {
		if c.ID == "" {
			continue
		}
		if _, dup := seen[c.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateCallID, c.ID)
		}
		seen[c.ID] = struct{}{}
	}

	type outcome struct {
		output string
		err    error
		done   bool
	}
	outcomes := make([]outcome, n)

	maxPar := e.opts.MaxParallel
	if maxPar <= 0 || maxPar > n {
		maxPar = n
	}

	batchStart := time.Now()
	if n == 1 {
		out, err := e.executeOne(ctx, registry, calls[0], turn)
		outcomes[0] = outcome{output: out, err: err, done: true}
	} else {
		var wg sync.WaitGroup
		sem := make(chan struct{}, maxPar)

		for i := range calls {
			if ctx.Err() != nil { // pre-check cancellation
				break
			}
			wg.Add(1)
			sem <- struct{}{}
			go func(idx int, call core.ToolCall) {
				defer wg.Done()
				defer func() { <-sem }()

				if ctx.Err() != nil {
					return
				}
				out, err := e.executeOne(ctx, registry, call, turn)
				outcomes[idx] = outcome{output: out, err: err, done: true}
			}(i, calls[i])
		}
		wg.Wait()
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	results := make([]core.ToolResult, n)
	for i, c := range calls {
		o := outcomes[i]
		if o.err != nil {
			if !e.opts.ReportErrors {
				return nil, &core.ToolExecutionError{CallID: c.ID, Tool: c.Name, Err: o.err}
			}
			results[i] = core.ToolResult{ID: c.ID, Name: c.Name, Output: o.err.Error(), IsError: true}
			continue
		}
		results[i] = core.ToolResult{ID: c.ID, Name: c.Name, Output: o.output}
	}

	e.logger.Debug(
		"tool.batch.complete",
		"count", n,
		"parallelism", maxPar,
		"turn", turn,
		"duration_ms", time.Since(batchStart).Milliseconds(),
	)

	return results, nil
}

func (e *Executor) executeOne(ctx context.Context, registry *Registry, call core.ToolCall, turn int) (output string, err error) {
	toolCtx := core.NewToolContext(ctx, call, turn, e.logger)
	if e.opts.LogStartEvents {
		e.logger.Info("tool.execute.start", "tool", call.Name, "fc_id", call.ID, "turn", turn)
	}

	start := time.Now()
	func() { // panic safety
		defer func() {
			if r := recover(); r != nil {
				err = panicError(call.Name, r)
				e.logger.Error("tool.execute.panic", "tool", call.Name, "fc_id", call.ID, "recover", r)
			}
		}()
		var result any
		result, err = executeTool(registry, toolCtx, call)
		if err == nil {
			output, err = renderOutput(result)
		}
	}()

	e.logDone(call, time.Since(start), err)
	return output, err
}

type toolCallLogger interface {
	LogToolCall(tool, callID string, dur time.Duration, err error)
}

func (e *Executor) logDone(call core.ToolCall, dur time.Duration, err error) {
	if tl, ok := e.logger.(toolCallLogger); ok {
		tl.LogToolCall(call.Name, call.ID, dur, err)
		return
	}
	e.logger.Info(
		"tool.execute.done",
		"tool", call.Name,
		"fc_id", call.ID,
		"duration_ms", dur.Milliseconds(),
		"error", err != nil,
	)
}

// panicError converts a recovered panic value to a ToolError carrying the stack.
func panicError(tool string, r any) error {
	return &ToolError{
		Tool:    tool,
		Message: fmt.Sprintf("panic: %v", r),
		Code:    CodePanic,
		Details: string(debug.Stack()),
	}
}

// executeTool centralizes tool lookup, argument decoding and execution.
func executeTool(registry *Registry, toolCtx *core.ToolContext, call core.ToolCall) (any, error) {
	impl, ok := registry.Get(call.Name)
	if !ok {
		return nil, NewToolError(call.Name, "tool is not registered", CodeNotFound)
	}

	argMap := map[string]any{}
	if len(call.Arguments) > 0 {
		if err := json.Unmarshal(call.Arguments, &argMap); err != nil {
			return nil, &ToolError{
				Tool:    call.Name,
				Message: fmt.Sprintf("arguments are not a JSON object: %v", err),
				Code:    CodeValidation,
				Details: err,
			}
		}
		if argMap == nil {
			argMap = map[string]any{}
		}
	}

	return impl.Call(toolCtx, argMap)
}

// renderOutput turns a handler result into tool message text.
func renderOutput(v any) (string, error) {
	switch out := v.(type) {
	case nil:
		return "", nil
	case string:
		return out, nil
	case []byte:
		return string(out), nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode tool result: %w", err)
	}
	return string(data), nil
}
