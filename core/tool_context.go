package core

import (
	"context"

	"github.com/funcn-ai/funcn-sub000/logging"
)

// ToolContext provides the scoped surface handed to tool handlers: the
// cancellation context of the turn, the originating call id and a logger.
type ToolContext struct {
	ctx    context.Context
	callID string
	tool   string
	turn   int
	logger *scopedLogger
}

// NewToolContext constructs a tool context bound to ctx for one tool call.
func NewToolContext(ctx context.Context, call ToolCall, turn int, logger logging.Logger) *ToolContext {
	if ctx == nil {
		ctx = context.Background()
	}
	return &ToolContext{
		ctx:    ctx,
		callID: call.ID,
		tool:   call.Name,
		turn:   turn,
		logger: newScopedLogger(logger, "tool", call.Name, "fc_id", call.ID),
	}
}

// Context returns the context associated with the tool invocation.
func (tc *ToolContext) Context() context.Context { return tc.ctx }

// Logger returns a logger that tags every entry with the tool name and call id.
func (tc *ToolContext) Logger() logging.Logger { return tc.logger }

// FunctionCallID returns the provider issued id of the tool call.
func (tc *ToolContext) FunctionCallID() string { return tc.callID }

// ToolName returns the name of the tool being invoked.
func (tc *ToolContext) ToolName() string { return tc.tool }

// Turn returns the zero based loop turn that requested the call.
func (tc *ToolContext) Turn() int { return tc.turn }
