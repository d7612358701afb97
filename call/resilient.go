package call

import (
	"context"

	"github.com/funcn-ai/funcn-sub000/core"
	"github.com/funcn-ai/funcn-sub000/response"
	"github.com/funcn-ai/funcn-sub000/retry"
	"github.com/funcn-ai/funcn-sub000/structured"
	"github.com/funcn-ai/funcn-sub000/telemetry"
)

// Resilient runs a Call under a retry policy and a fallback chain. Each
// attempt resolves the configuration anew with Input.Retry set, so a dynamic
// function can fold the reinserted errors into the prompt. Fallback entries
// override provider, model and params of the call.
type Resilient struct {
	call   *Call
	policy retry.Policy
	chain  []retry.FallbackEntry
}

// WithResilience wraps c.
func (c *Call) WithResilience(policy retry.Policy, chain ...retry.FallbackEntry) *Resilient {
	if policy.Logger == nil {
		policy.Logger = c.opts.Logger
	}
	return &Resilient{call: c, policy: policy, chain: chain}
}

// Call returns the wrapped call.
func (r *Resilient) Call() *Call { return r.call }

// Invoke runs the call until it succeeds or the policy and chain give up.
func (r *Resilient) Invoke(ctx context.Context, in Input) (*response.CallResponse, error) {
	return r.InvokeTarget(ctx, in, retry.Target{})
}

// InvokeTarget is Invoke with base replacing the call's own configuration
// on the primary attempts. Fallback entries still override it.
func (r *Resilient) InvokeTarget(ctx context.Context, in Input, base retry.Target) (*response.CallResponse, error) {
	return retry.Do(ctx, func(ctx context.Context, rc *retry.Context, target retry.Target) (*response.CallResponse, error) {
		attempt := in
		attempt.Retry = rc
		return r.call.invoke(telemetry.WithAttempt(ctx, rc.Attempt), attempt, orBase(target, base))
	}, r.policy, r.chain...)
}

// StreamEach retries the whole consumption of a stream. A failed attempt is
// abandoned and the next one starts from the first chunk, so onChunk may see
// the beginning of a response more than once.
func (r *Resilient) StreamEach(ctx context.Context, in Input, onChunk ChunkFunc) (*response.CallResponse, error) {
	return r.StreamEachTarget(ctx, in, retry.Target{}, onChunk)
}

// StreamEachTarget is StreamEach with base replacing the call's own
// configuration on the primary attempts.
func (r *Resilient) StreamEachTarget(ctx context.Context, in Input, base retry.Target, onChunk ChunkFunc) (*response.CallResponse, error) {
	return retry.Do(ctx, func(ctx context.Context, rc *retry.Context, target retry.Target) (*response.CallResponse, error) {
		attempt := in
		attempt.Retry = rc
		return r.call.streamEach(telemetry.WithAttempt(ctx, rc.Attempt), attempt, orBase(target, base), onChunk)
	}, r.policy, r.chain...)
}

func orBase(target, base retry.Target) retry.Target {
	if target.IsPrimary() {
		return base
	}
	return target
}

type structuredResult[T any] struct {
	value T
	resp  *response.CallResponse
}

// ResilientStructured is Structured under r's policy and chain. Validation
// failures are retried when the policy's Retryable predicate accepts them.
func ResilientStructured[T any](ctx context.Context, r *Resilient, m *structured.Model[T], in Input) (T, *response.CallResponse, error) {
	res, err := retry.Do(ctx, func(ctx context.Context, rc *retry.Context, target retry.Target) (structuredResult[T], error) {
		attempt := in
		attempt.Retry = rc
		v, resp, err := structuredAt(telemetry.WithAttempt(ctx, rc.Attempt), r.call, m, attempt, target)
		return structuredResult[T]{value: v, resp: resp}, err
	}, r.policy, r.chain...)
	return res.value, res.resp, err
}

// ReinsertErrors appends one user message per error reinserted into rc,
// rendered with retry.Context.ErrorMessages. It returns msgs unchanged when
// rc is nil or holds no errors.
func ReinsertErrors(msgs []core.Message, rc *retry.Context) []core.Message {
	if rc == nil || len(rc.Errors) == 0 {
		return msgs
	}
	out := make([]core.Message, 0, len(msgs)+len(rc.Errors))
	out = append(out, msgs...)
	for _, text := range rc.ErrorMessages() {
		out = append(out, core.UserText(text))
	}
	return out
}
