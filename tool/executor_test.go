package tool

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/funcn-ai/funcn-sub000/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type teMockTool struct {
	name     string
	delay    time.Duration
	result   any
	err      error
	panicMsg any
}

func (mt *teMockTool) Name() string               { return mt.name }
func (mt *teMockTool) Description() string        { return "mock tool" }
func (mt *teMockTool) Parameters() map[string]any { return map[string]any{"type": "object"} }
func (mt *teMockTool) Call(tc *core.ToolContext, _ map[string]any) (any, error) {
	if mt.delay > 0 {
		select {
		case <-time.After(mt.delay):
		case <-tc.Context().Done():
			return nil, tc.Context().Err()
		}
	}
	if mt.panicMsg != nil {
		panic(mt.panicMsg)
	}
	return mt.result, mt.err
}

func call(id, name string) core.ToolCall {
	return core.ToolCall{ID: id, Name: name, Arguments: json.RawMessage(`{}`)}
}

func TestExecutor_Single(t *testing.T) {
	r := NewRegistry(&teMockTool{name: "one", result: 42})
	results, err := NewExecutor().Execute(context.Background(), r, []core.ToolCall{call("1", "one")}, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, core.ToolResult{ID: "1", Name: "one", Output: "42"}, results[0])
}

func TestExecutor_ParallelPreservesOrder(t *testing.T) {
	r := NewRegistry(
		&teMockTool{name: "slow", delay: 60 * time.Millisecond, result: "s"},
		&teMockTool{name: "fast", delay: 5 * time.Millisecond, result: "f"},
	)
	te := NewExecutor(func(o *ExecutorOptions) { o.MaxParallel = 2 })

	start := time.Now()
	results, err := te.Execute(context.Background(), r, []core.ToolCall{call("1", "slow"), call("2", "fast")}, 0)
	elapsed := time.Since(start)

	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "1", results[0].ID)
	assert.Equal(t, "s", results[0].Output)
	assert.Equal(t, "2", results[1].ID)
	assert.Equal(t, "f", results[1].Output)
	if elapsed > 90*time.Millisecond {
		t.Fatalf("expected parallel speedup, elapsed=%v", elapsed)
	}
}

func TestExecutor_StructuredResultIsJSON(t *testing.T) {
	r := NewRegistry(&teMockTool{name: "weather", result: map[string]any{"temp": 21}})
	results, err := NewExecutor().Execute(context.Background(), r, []core.ToolCall{call("1", "weather")}, 0)
	require.NoError(t, err)
	assert.JSONEq(t, `{"temp":21}`, results[0].Output)
}

func TestExecutor_HandlerFailureStopsBatch(t *testing.T) {
	boom := errors.New("boom")
	r := NewRegistry(
		&teMockTool{name: "ok", result: "fine"},
		&teMockTool{name: "bad", err: boom},
	)

	_, err := NewExecutor().Execute(context.Background(), r, []core.ToolCall{call("1", "ok"), call("2", "bad")}, 0)
	var execErr *core.ToolExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, "2", execErr.CallID)
	assert.Equal(t, "bad", execErr.Tool)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, core.KindToolExecution, core.KindOf(err))
}

func TestExecutor_ReportErrors(t *testing.T) {
	r := NewRegistry(
		&teMockTool{name: "ok", result: "fine"},
		&teMockTool{name: "bad", err: errors.New("boom")},
	)
	te := NewExecutor(func(o *ExecutorOptions) { o.ReportErrors = true })

	results, err := te.Execute(context.Background(), r, []core.ToolCall{call("1", "ok"), call("2", "bad")}, 0)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.False(t, results[0].IsError)
	assert.True(t, results[1].IsError)
	assert.Equal(t, "boom", results[1].Output)
}

func TestExecutor_UnknownTool(t *testing.T) {
	_, err := NewExecutor().Execute(context.Background(), NewRegistry(), []core.ToolCall{call("1", "missing")}, 0)

	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeNotFound, toolErr.Code)
	assert.Equal(t, core.KindToolExecution, core.KindOf(err))
}

func TestExecutor_InvalidArguments(t *testing.T) {
	r := NewRegistry(&teMockTool{name: "one"})
	bad := core.ToolCall{ID: "1", Name: "one", Arguments: json.RawMessage(`[1,2]`)}

	_, err := NewExecutor().Execute(context.Background(), r, []core.ToolCall{bad}, 0)
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeValidation, toolErr.Code)
}

func TestExecutor_PanicRecovery(t *testing.T) {
	r := NewRegistry(&teMockTool{name: "panic", panicMsg: "boom"}, &teMockTool{name: "ok"})

	_, err := NewExecutor().Execute(context.Background(), r, []core.ToolCall{call("1", "panic"), call("2", "ok")}, 0)
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodePanic, toolErr.Code)
	assert.Contains(t, toolErr.Message, "boom")
}

func TestExecutor_DuplicateCallIDs(t *testing.T) {
	r := NewRegistry(&teMockTool{name: "one"})

	_, err := NewExecutor().Execute(context.Background(), r, []core.ToolCall{call("1", "one"), call("1", "one")}, 0)
	assert.ErrorIs(t, err, ErrDuplicateCallID)
}

func TestExecutor_Canceled(t *testing.T) {
	r := NewRegistry(&teMockTool{name: "slow", delay: time.Second})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewExecutor().Execute(ctx, r, []core.ToolCall{call("1", "slow"), call("2", "slow")}, 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExecutor_Empty(t *testing.T) {
	results, err := NewExecutor().Execute(context.Background(), NewRegistry(), nil, 0)
	assert.NoError(t, err)
	assert.Nil(t, results)
}
