package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func newTestLogger(level LogLevel) (*StructuredLogger, *bytes.Buffer) {
	var buf bytes.Buffer
	l := NewLogger(&LoggerConfig{Level: level, Format: "json", Output: &buf})
	return l, &buf
}

func lines(buf *bytes.Buffer) []gjson.Result {
	var out []gjson.Result
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line != "" {
			out = append(out, gjson.Parse(line))
		}
	}
	return out
}

func TestStructuredLogger_Levels(t *testing.T) {
	l, buf := newTestLogger(LogLevelWarn)
	l.Debug("d")
	l.Info("i")
	l.Warn("w", "k", 1)
	l.Error("e")

	got := lines(buf)
	require.Len(t, got, 2)
	assert.Equal(t, "w", got[0].Get("msg").String())
	assert.Equal(t, int64(1), got[0].Get("k").Int())
	assert.Equal(t, "ERROR", got[1].Get("level").String())
}

func TestStructuredLogger_Context(t *testing.T) {
	base, buf := newTestLogger(LogLevelDebug)
	l := base.WithComponent("call").WithCall("resp-1", "openai").WithContext("tenant", "acme")
	l.Info("call.invoke.done")
	base.Info("plain")

	got := lines(buf)
	require.Len(t, got, 2)
	assert.Equal(t, "call", got[0].Get("component").String())
	assert.Equal(t, "resp-1", got[0].Get("call_id").String())
	assert.Equal(t, "openai", got[0].Get("provider").String())
	assert.Equal(t, "acme", got[0].Get("tenant").String())
	assert.False(t, got[1].Get("tenant").Exists(), "With* must not mutate the parent")
}

func TestStructuredLogger_OddArgs(t *testing.T) {
	l, buf := newTestLogger(LogLevelInfo)
	l.Info("m", slog.String("a", "b"), "dangling")

	got := lines(buf)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].Get("a").String())
	assert.Equal(t, "dangling", got[0].Get("!BADKEY").String())
}

func TestStructuredLogger_LogLLMCall(t *testing.T) {
	l, buf := newTestLogger(LogLevelInfo)
	in := int64(12)
	l.LogLLMCall("openai", "gpt-4o-mini", &in, nil, 40*time.Millisecond, nil)
	l.LogLLMCall("openai", "gpt-4o-mini", nil, nil, time.Millisecond, errors.New("boom"))

	got := lines(buf)
	require.Len(t, got, 2)
	assert.Equal(t, "llm.call", got[0].Get("msg").String())
	assert.Equal(t, "INFO", got[0].Get("level").String())
	assert.Equal(t, "openai", got[0].Get("provider").String())
	assert.Equal(t, int64(12), got[0].Get("tokens.input").Int())
	assert.False(t, got[0].Get("tokens.output").Exists(), "unknown counts are omitted")
	assert.False(t, got[1].Get("tokens").Exists())
	assert.Equal(t, "ERROR", got[1].Get("level").String())
	assert.Equal(t, "boom", got[1].Get("error").String())
}

func TestStructuredLogger_LogToolCallAndLoop(t *testing.T) {
	l, buf := newTestLogger(LogLevelInfo)
	l.LogToolCall("add", "call-1", time.Millisecond, nil)
	l.LogLoopExecution(3, 2, time.Second, errors.New("max turns"))

	got := lines(buf)
	require.Len(t, got, 2)
	assert.Equal(t, "tool.call", got[0].Get("msg").String())
	assert.Equal(t, "add", got[0].Get("tool").String())
	assert.True(t, got[0].Get("success").Bool())
	assert.Equal(t, "agent.run", got[1].Get("msg").String())
	assert.Equal(t, int64(3), got[1].Get("turns").Int())
	assert.False(t, got[1].Get("success").Bool())
	assert.Equal(t, "ERROR", got[1].Get("level").String())
}

func TestNewSlogAdapter(t *testing.T) {
	var buf bytes.Buffer
	l := NewSlogAdapter(slog.New(slog.NewJSONHandler(&buf, nil)))
	l.Info("hello", "k", "v")
	assert.Equal(t, "v", gjson.Get(buf.String(), "k").String())

	assert.NotNil(t, NewSlogAdapter(nil))
}

func TestOrNoOp(t *testing.T) {
	assert.IsType(t, NoOpLogger{}, OrNoOp(nil))

	l, _ := newTestLogger(LogLevelInfo)
	assert.Same(t, l, OrNoOp(l))
}

func TestLogLevel_String(t *testing.T) {
	assert.Equal(t, "WARN", LogLevelWarn.String())
	assert.Equal(t, "UNKNOWN", LogLevel(9).String())
}
