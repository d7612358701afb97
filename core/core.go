package core

import "github.com/funcn-ai/funcn-sub000/logging"

// scopedLogger prefixes every entry with fixed key/value pairs so handler
// logs can be correlated with the tool call that produced them.
type scopedLogger struct {
	logger logging.Logger
	scope  []any
}

func newScopedLogger(l logging.Logger, scope ...any) *scopedLogger {
	return &scopedLogger{logger: logging.OrNoOp(l), scope: scope}
}

func (l *scopedLogger) with(args []any) []any {
	out := make([]any, 0, len(l.scope)+len(args))
	return append(append(out, l.scope...), args...)
}

func (l *scopedLogger) Debug(msg string, args ...any) { l.logger.Debug(msg, l.with(args)...) }
func (l *scopedLogger) Info(msg string, args ...any)  { l.logger.Info(msg, l.with(args)...) }
func (l *scopedLogger) Warn(msg string, args ...any)  { l.logger.Warn(msg, l.with(args)...) }
func (l *scopedLogger) Error(msg string, args ...any) { l.logger.Error(msg, l.with(args)...) }
