package agent

import (
	"context"

	"github.com/funcn-ai/funcn-sub000/call"
	"github.com/funcn-ai/funcn-sub000/response"
	"github.com/funcn-ai/funcn-sub000/retry"
	"github.com/funcn-ai/funcn-sub000/telemetry"
)

// ResilientLoop reruns a whole Loop under a retry policy and a fallback
// chain. Every attempt starts again from the caller's Input.History; the
// messages of a failed attempt are dropped.
type ResilientLoop struct {
	loop   *Loop
	policy retry.Policy
	chain  []retry.FallbackEntry
}

// WithResilience wraps l. Fallback entries need a caller that can serve a
// target, such as *call.Call or *call.Resilient.
func (l *Loop) WithResilience(policy retry.Policy, chain ...retry.FallbackEntry) *ResilientLoop {
	if policy.Logger == nil {
		policy.Logger = l.logger
	}
	return &ResilientLoop{loop: l, policy: policy, chain: chain}
}

// Loop returns the wrapped loop.
func (r *ResilientLoop) Loop() *Loop { return r.loop }

// Run is Loop.Run under r's policy and chain. in.Retry carries the shared
// retry state to the dynamic function unless the caller is itself a
// call.Resilient, whose own state takes its place.
func (r *ResilientLoop) Run(ctx context.Context, in call.Input) (*Result, error) {
	return r.do(ctx, in, nil)
}

// RunStream is Loop.RunStream under r's policy and chain. A restarted
// attempt streams its turns again from the first one.
func (r *ResilientLoop) RunStream(ctx context.Context, in call.Input, onChunk call.ChunkFunc) (*Result, error) {
	if onChunk == nil {
		onChunk = func(*response.ResponseChunk) error { return nil }
	}
	return r.do(ctx, in, onChunk)
}

func (r *ResilientLoop) do(ctx context.Context, in call.Input, onChunk call.ChunkFunc) (*Result, error) {
	return retry.Do(ctx, func(ctx context.Context, rc *retry.Context, target retry.Target) (*Result, error) {
		attempt := in
		attempt.Retry = rc
		return r.loop.run(telemetry.WithAttempt(ctx, rc.Attempt), attempt, target, onChunk)
	}, r.policy, r.chain...)
}
