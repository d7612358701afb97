package tool

import (
	"context"

	"github.com/funcn-ai/funcn-sub000/core"
	"github.com/funcn-ai/funcn-sub000/schema"
)

// InputFunc collects an answer from a person. It blocks until the answer is
// available or ctx is done.
type InputFunc func(ctx context.Context, question string) (string, error)

// NewAskHuman returns a tool that lets the model ask a person for help. The
// loop treats it like any other tool; input decides where the question goes.
func NewAskHuman(input InputFunc) *FunctionTool {
	return NewTypedTool("ask_human",
		"Ask a human for help when the request is ambiguous or needs information you cannot obtain otherwise.",
		schema.Object(schema.String("question").Describe("The question to ask").Required()),
		func(tc *core.ToolContext, args struct {
			Question string `json:"question"`
		}) (any, error) {
			return input(tc.Context(), args.Question)
		},
	)
}
