package call

import (
	"context"

	"github.com/funcn-ai/funcn-sub000/config"
	"github.com/funcn-ai/funcn-sub000/model"
	"github.com/funcn-ai/funcn-sub000/response"
	"github.com/funcn-ai/funcn-sub000/retry"
	"github.com/funcn-ai/funcn-sub000/structured"
)

// responseModel is the non-generic view of *structured.Model[T].
type responseModel interface {
	config.ResponseModel
	JSONMode() bool
	Prepare(req *model.Request) error
}

// Structured runs c with m as the response model and returns the
// reconstructed value with the response it came from. A response that fails
// validation yields a *structured.ValidationError together with the
// response.
func Structured[T any](ctx context.Context, c *Call, m *structured.Model[T], in Input) (T, *response.CallResponse, error) {
	return structuredAt(ctx, c, m, in, retry.Target{})
}

func structuredAt[T any](ctx context.Context, c *Call, m *structured.Model[T], in Input, target retry.Target) (T, *response.CallResponse, error) {
	var zero T

	cfg, err := c.resolve(ctx, in, target, m)
	if err != nil {
		return zero, nil, err
	}
	req := cfg.Request()
	if err := m.Prepare(&req); err != nil {
		return zero, nil, err
	}

	var resp *response.CallResponse
	if cfg.Stream {
		resp, err = c.consume(ctx, cfg, req, nil)
	} else {
		resp, err = c.execute(ctx, cfg, req)
	}
	if err != nil {
		return zero, nil, err
	}
	v, err := m.Reconstruct(resp)
	return v, resp, err
}

// StructuredStream opens a streamed structured call. The partial value is
// available after every chunk; Final reconstructs the complete value. The
// caller must Close the returned stream.
func StructuredStream[T any](ctx context.Context, c *Call, m *structured.Model[T], in Input) (*structured.PartialStream[T], error) {
	cfg, err := c.resolve(ctx, in, retry.Target{}, m)
	if err != nil {
		return nil, err
	}
	req := cfg.Request()
	if err := m.Prepare(&req); err != nil {
		return nil, err
	}
	r, err := c.open(ctx, cfg, req)
	if err != nil {
		return nil, err
	}
	return structured.NewPartialStream(m, r), nil
}
