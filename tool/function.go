package tool

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/funcn-ai/funcn-sub000/core"
	"github.com/funcn-ai/funcn-sub000/schema"
)

// HandlerFunc is the implementation behind a FunctionTool.
type HandlerFunc func(toolCtx *core.ToolContext, args map[string]any) (any, error)

// FunctionTool exposes a plain Go function as a Tool.
//
// Arguments are validated before the function runs. Failures are normalized
// to *ToolError:
//
//	VALIDATION_ERROR  -> schema / argument mismatch
//	EXECUTION_ERROR   -> the function returned a plain error
//	(custom codes are preserved if the function returns *ToolError directly)
//
// A FunctionTool has no mutable state after construction and is safe for
// concurrent use.
type FunctionTool struct {
	name        string
	description string
	schema      *schema.Schema // nil for tools declared with a raw JSON schema
	parameters  map[string]any
	fn          HandlerFunc
}

// NewFunctionTool constructs a FunctionTool from an explicit schema.
//
// Example:
//
//	sumTool := NewFunctionTool(
//	  "calculate_sum",
//	  "Calculate the sum of two numbers",
//	  schema.Object(schema.Number("a").Required(), schema.Number("b").Required()),
//	  func(tc *core.ToolContext, args map[string]any) (any, error) {
//	    return args["a"].(float64) + args["b"].(float64), nil
//	  },
//	)
func NewFunctionTool(name, description string, s *schema.Schema, fn HandlerFunc) *FunctionTool {
	return &FunctionTool{
		name:        name,
		description: description,
		schema:      s,
		parameters:  s.JSON(),
		fn:          fn,
	}
}

// NewFunctionToolFromMap constructs a FunctionTool whose parameters are
// given as a JSON schema map. Only required fields and top-level property
// types are validated.
func NewFunctionToolFromMap(name, description string, parameters map[string]any, fn HandlerFunc) *FunctionTool {
	return &FunctionTool{
		name:        name,
		description: description,
		parameters:  parameters,
		fn:          fn,
	}
}

// NewTypedTool constructs a FunctionTool whose validated arguments are
// decoded into A before fn runs.
func NewTypedTool[A any](name, description string, s *schema.Schema, fn func(toolCtx *core.ToolContext, args A) (any, error)) *FunctionTool {
	return NewFunctionTool(name, description, s, func(tc *core.ToolContext, raw map[string]any) (any, error) {
		data, err := json.Marshal(raw)
		if err != nil {
			return nil, err
		}
		var args A
		if err := json.Unmarshal(data, &args); err != nil {
			return nil, &ToolError{Tool: name, Message: fmt.Sprintf("decode arguments: %v", err), Code: CodeValidation, Details: err}
		}
		return fn(tc, args)
	})
}

// NewStructTool is NewTypedTool with the schema derived from A by schema.For.
func NewStructTool[A any](name, description string, fn func(toolCtx *core.ToolContext, args A) (any, error)) (*FunctionTool, error) {
	s, err := schema.For[A]()
	if err != nil {
		return nil, fmt.Errorf("tool %s: %w", name, err)
	}
	return NewTypedTool(name, description, s, fn), nil
}

// Name returns the unique tool name used in function call declarations and routing.
func (t *FunctionTool) Name() string { return t.name }

// Description returns the short natural language description exposed to models.
func (t *FunctionTool) Description() string { return t.description }

// Parameters returns the JSON schema describing expected arguments.
func (t *FunctionTool) Parameters() map[string]any { return t.parameters }

// Call validates the provided args against the declared schema then invokes the
// underlying function. Log entries go through the ToolContext logger, which
// already carries the tool name and call id.
func (t *FunctionTool) Call(toolCtx *core.ToolContext, args map[string]any) (any, error) {
	logger := toolCtx.Logger()
	start := time.Now()

	logger.Debug("tool.call.start")

	if err := t.validate(args); err != nil {
		logger.Warn("tool.call.validation_failed", "error", err.Error())

		return nil, &ToolError{
			Tool:    t.name,
			Message: fmt.Sprintf("parameter validation failed: %v", err),
			Code:    CodeValidation,
			Details: err,
		}
	}

	result, err := t.fn(toolCtx, args)
	if err != nil {
		var toolErr *ToolError
		if errors.As(err, &toolErr) { // Already a ToolError -> just log and forward
			logger.Error("tool.call.error", "code", toolErr.Code, "error", toolErr.Message)

			return nil, toolErr
		}

		logger.Error("tool.call.error", "error", err.Error())

		return nil, &ToolError{
			Tool:    t.name,
			Message: err.Error(),
			Code:    CodeExecution,
			Details: err,
		}
	}

	logger.Info("tool.call.success", "duration_ms", time.Since(start).Milliseconds())

	return result, nil
}

func (t *FunctionTool) validate(args map[string]any) error {
	if t.schema != nil {
		return t.schema.Validate(args)
	}
	return schema.ValidateMap(args, t.parameters)
}
