package stream

import (
	"time"

	"github.com/funcn-ai/funcn-sub000/core"
	"github.com/funcn-ai/funcn-sub000/model"
)

// Accumulated is the raw response variant synthesized from a finished
// stream. It folds chunks exactly as a provider folds its own output:
// identity from the first chunk reporting it, concatenated text, one finish
// reason per chunk reporting one, the last known usage, and tool calls in
// the order they first appeared.
type Accumulated struct {
	model.ResponseVariant

	provider string
	id       string
	model    string
	created  time.Time
	text     []byte
	reasons  []core.FinishReason
	usage    core.Usage
	calls    []core.ToolCall

	// Chunks holds every raw chunk of the stream in arrival order.
	Chunks []model.RawChunk
}

func (a *Accumulated) Provider() string                   { return a.provider }
func (a *Accumulated) ID() string                         { return a.id }
func (a *Accumulated) Model() string                      { return a.model }
func (a *Accumulated) Created() time.Time                 { return a.created }
func (a *Accumulated) Text() string                       { return string(a.text) }
func (a *Accumulated) FinishReasons() []core.FinishReason { return a.reasons }
func (a *Accumulated) Usage() core.Usage                  { return a.usage }
func (a *Accumulated) ToolCalls() []core.ToolCall         { return a.calls }

// Raw returns the vendor chunk objects.
func (a *Accumulated) Raw() any {
	raws := make([]any, len(a.Chunks))
	for i, c := range a.Chunks {
		raws[i] = c.Raw()
	}
	return raws
}

var _ model.RawResponse = (*Accumulated)(nil)
