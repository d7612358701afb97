package structured

import (
	"errors"
	"fmt"
	"strings"

	"github.com/funcn-ai/funcn-sub000/core"
	"github.com/funcn-ai/funcn-sub000/response"
	"github.com/funcn-ai/funcn-sub000/schema"
)

// ErrNoToolCall reports a tool-mode response in which the model did not call
// the response tool.
var ErrNoToolCall = errors.New("model did not call the response tool")

// ValidationError reports output that does not satisfy a response model. It
// carries what the model actually produced so callers can inspect or feed it
// back for self-correction.
type ValidationError struct {
	Model    string
	Issues   []*schema.ValidationError // schema violations, in field order
	Cause    error                     // decode or validator failure
	Raw      string                    // the payload that was validated
	Response *response.CallResponse    // nil when validating a value directly
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: structured output validation failed", e.Model)
	for _, issue := range e.Issues {
		b.WriteString("; ")
		b.WriteString(issue.Field)
		b.WriteString(": ")
		b.WriteString(issue.Message)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *ValidationError) Unwrap() error { return e.Cause }

// Kind implements core.KindedError.
func (e *ValidationError) Kind() core.ErrorKind { return core.KindValidation }

// Message renders the failure as an instruction for the model's next
// attempt.
func (e *ValidationError) Message() string {
	var b strings.Builder
	b.WriteString("Your previous response did not pass validation.\n")
	if e.Raw != "" {
		fmt.Fprintf(&b, "Previous output: %s\n", e.Raw)
	}
	b.WriteString("Errors:\n")
	for _, issue := range e.Issues {
		fmt.Fprintf(&b, "- %s: %s\n", issue.Field, issue.Message)
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, "- %s\n", e.Cause.Error())
	}
	b.WriteString("Respond again and fix these errors.")
	return b.String()
}
