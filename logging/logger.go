package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"
)

// LogLevel is a small enum for level configuration decoupled from slog.
type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l LogLevel) slogLevel() slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Logger is the logging surface every component accepts. Arguments are
// alternating key/value pairs as in log/slog.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// SlogAdapter lets a plain *slog.Logger serve as a Logger.
type SlogAdapter struct {
	*slog.Logger
}

func (s *SlogAdapter) Debug(msg string, args ...any) { s.Logger.Debug(msg, args...) }
func (s *SlogAdapter) Info(msg string, args ...any)  { s.Logger.Info(msg, args...) }
func (s *SlogAdapter) Warn(msg string, args ...any)  { s.Logger.Warn(msg, args...) }
func (s *SlogAdapter) Error(msg string, args ...any) { s.Logger.Error(msg, args...) }

// NewSlogAdapter creates a Logger from l, or from slog.Default() when l is nil.
func NewSlogAdapter(l *slog.Logger) Logger {
	if l == nil {
		l = slog.Default()
	}
	return &SlogAdapter{Logger: l}
}

// StructuredLogger is the logger the module's components know how to use
// best. Besides the Logger methods it records call, tool and loop outcomes
// with a fixed set of attributes. With* methods return modified copies.
type StructuredLogger struct {
	logger    *slog.Logger
	attrs     map[string]any
	component string
	callID    string
	provider  string
}

// LoggerConfig configures NewLogger.
type LoggerConfig struct {
	Level       LogLevel
	Format      string // json or text
	Output      io.Writer
	AddSource   bool
	Component   string
	CustomAttrs map[string]any
}

// DefaultLoggerConfig logs JSON at info level to stderr.
func DefaultLoggerConfig() *LoggerConfig {
	return &LoggerConfig{Level: LogLevelInfo, Format: "json", Output: os.Stderr}
}

// NewLogger builds a StructuredLogger from cfg, or from the defaults if cfg is nil.
func NewLogger(cfg *LoggerConfig) *StructuredLogger {
	if cfg == nil {
		cfg = DefaultLoggerConfig()
	}
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: cfg.Level.slogLevel(), AddSource: cfg.AddSource}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}
	l := &StructuredLogger{logger: slog.New(handler), attrs: make(map[string]any, len(cfg.CustomAttrs)), component: cfg.Component}
	for k, v := range cfg.CustomAttrs {
		l.attrs[k] = v
	}
	return l
}

// NewSlogLogger creates a StructuredLogger writing to stderr with the given
// level, format ("json" or "text") and source location setting.
func NewSlogLogger(level LogLevel, format string, addSource bool) *StructuredLogger {
	cfg := DefaultLoggerConfig()
	cfg.Level = level
	if format != "" {
		cfg.Format = format
	}
	cfg.AddSource = addSource
	return NewLogger(cfg)
}

func (l *StructuredLogger) clone() *StructuredLogger {
	nl := *l
	nl.attrs = make(map[string]any, len(l.attrs)+1)
	for k, v := range l.attrs {
		nl.attrs[k] = v
	}
	return &nl
}

// WithContext attaches key=value to every entry of the returned logger.
func (l *StructuredLogger) WithContext(key string, value any) *StructuredLogger {
	nl := l.clone()
	nl.attrs[key] = value
	return nl
}

// WithComponent names the emitting component (call, agent, retry, ...).
func (l *StructuredLogger) WithComponent(c string) *StructuredLogger {
	nl := l.clone()
	nl.component = c
	return nl
}

// WithCall attaches a response id and the serving provider.
func (l *StructuredLogger) WithCall(callID, provider string) *StructuredLogger {
	nl := l.clone()
	nl.callID = callID
	nl.provider = provider
	return nl
}

func (l *StructuredLogger) Debug(msg string, args ...any) { l.log(slog.LevelDebug, msg, args) }
func (l *StructuredLogger) Info(msg string, args ...any)  { l.log(slog.LevelInfo, msg, args) }
func (l *StructuredLogger) Warn(msg string, args ...any)  { l.log(slog.LevelWarn, msg, args) }
func (l *StructuredLogger) Error(msg string, args ...any) { l.log(slog.LevelError, msg, args) }

// LogLLMCall records one model call under the key "llm.call". Token counts
// appear only when the provider reported them.
func (l *StructuredLogger) LogLLMCall(provider, model string, inputTokens, outputTokens *int64, dur time.Duration, err error) {
	attrs := []slog.Attr{slog.String("provider", provider), slog.String("model", model)}
	var tokens []any
	if inputTokens != nil {
		tokens = append(tokens, slog.Int64("input", *inputTokens))
	}
	if outputTokens != nil {
		tokens = append(tokens, slog.Int64("output", *outputTokens))
	}
	if len(tokens) > 0 {
		attrs = append(attrs, slog.Group("tokens", tokens...))
	}
	l.outcome("llm.call", dur, err, attrs...)
}

// LogToolCall records one tool handler execution under the key "tool.call".
func (l *StructuredLogger) LogToolCall(tool, callID string, dur time.Duration, err error) {
	l.outcome("tool.call", dur, err, slog.String("tool", tool), slog.String("tool_call_id", callID))
}

// LogLoopExecution records a finished tool loop run under the key "agent.run".
func (l *StructuredLogger) LogLoopExecution(turns, toolCalls int, dur time.Duration, err error) {
	l.outcome("agent.run", dur, err, slog.Int("turns", turns), slog.Int("tool_calls", toolCalls))
}

// outcome logs at info on success and at error on failure.
func (l *StructuredLogger) outcome(msg string, dur time.Duration, err error, attrs ...slog.Attr) {
	level := slog.LevelInfo
	attrs = append(attrs, slog.Duration("duration", dur), slog.Bool("success", err == nil))
	if err != nil {
		level = slog.LevelError
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	l.emit(level, msg, attrs)
}

func (l *StructuredLogger) log(level slog.Level, msg string, args []any) {
	if !l.logger.Enabled(context.Background(), level) {
		return
	}
	l.emit(level, msg, argsToAttrs(args))
}

func (l *StructuredLogger) emit(level slog.Level, msg string, attrs []slog.Attr) {
	base := make([]slog.Attr, 0, len(l.attrs)+3+len(attrs))
	if l.component != "" {
		base = append(base, slog.String("component", l.component))
	}
	if l.callID != "" {
		base = append(base, slog.String("call_id", l.callID))
	}
	if l.provider != "" {
		base = append(base, slog.String("provider", l.provider))
	}
	for k, v := range l.attrs {
		base = append(base, slog.Any(k, v))
	}
	l.logger.LogAttrs(context.Background(), level, msg, append(base, attrs...)...)
}

// argsToAttrs converts key/value pairs the way slog.Logger does, including
// the !BADKEY convention for a dangling value.
func argsToAttrs(args []any) []slog.Attr {
	attrs := make([]slog.Attr, 0, len(args)/2+1)
	for len(args) > 0 {
		switch k := args[0].(type) {
		case slog.Attr:
			attrs = append(attrs, k)
			args = args[1:]
		case string:
			if len(args) == 1 {
				attrs = append(attrs, slog.String("!BADKEY", k))
				args = nil
				continue
			}
			attrs = append(attrs, slog.Any(k, args[1]))
			args = args[2:]
		default:
			attrs = append(attrs, slog.Any("!BADKEY", k))
			args = args[1:]
		}
	}
	return attrs
}

// NoOpLogger discards everything.
type NoOpLogger struct{}

func (NoOpLogger) Debug(string, ...any) {}
func (NoOpLogger) Info(string, ...any)  {}
func (NoOpLogger) Warn(string, ...any)  {}
func (NoOpLogger) Error(string, ...any) {}

// OrNoOp returns l, or a NoOpLogger when l is nil.
func OrNoOp(l Logger) Logger {
	if l == nil {
		return NoOpLogger{}
	}
	return l
}
