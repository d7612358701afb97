// Package tool implements the function / tool calling subsystem that lets the
// tool invocation loop invoke structured capabilities (APIs, computations,
// side-effects) with schema validated arguments and consistent error handling.
package tool

import (
	"fmt"

	"github.com/funcn-ai/funcn-sub000/core"
	"github.com/funcn-ai/funcn-sub000/model"
)

// Tool defines the interface for extending a call with external functions.
//
// Tools are registered in a Registry; their definitions are offered to the
// model and the calls it requests are routed back to Call by name.
//
// Tool implementations should:
//   - Provide clear, descriptive names and descriptions
//   - Define proper JSON schema for parameters
//   - Be safe for concurrent use; one turn may run several calls in parallel
type Tool interface {
	// Name returns the unique identifier for this tool.
	Name() string

	// Description returns a human-readable description of what this tool does.
	// It is recomputed for every request, so it may embed call-time state.
	Description() string

	// Parameters returns a JSON schema describing the expected input format.
	Parameters() map[string]any

	// Call executes the tool with decoded arguments. The result is rendered
	// into the tool message: strings verbatim, everything else as JSON.
	Call(toolCtx *core.ToolContext, args map[string]any) (any, error)
}

// Definition converts t into the provider neutral definition sent with a request.
func Definition(t Tool) model.ToolDefinition {
	return model.NewToolDefinition(t.Name(), t.Description(), t.Parameters())
}

// Error codes carried by ToolError.
const (
	CodeValidation = "VALIDATION_ERROR"
	CodeExecution  = "EXECUTION_ERROR"
	CodeNotFound   = "TOOL_NOT_FOUND"
	CodePanic      = "PANIC"
)

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string `json:"tool"`              // Name of the tool that failed
	Message string `json:"message"`           // Error message
	Code    string `json:"code"`              // Error code for categorization
	Details any    `json:"details,omitempty"` // Additional error details
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// Unwrap exposes Details when it is an error.
func (e *ToolError) Unwrap() error {
	if err, ok := e.Details.(error); ok {
		return err
	}
	return nil
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}
