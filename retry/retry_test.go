package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/funcn-ai/funcn-sub000/core"
	"github.com/funcn-ai/funcn-sub000/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errRateLimited = core.NewProviderTransportError("openai", 429, errors.New("rate limited"))

type validationErr struct{ msg string }

func (e *validationErr) Error() string        { return e.msg }
func (e *validationErr) Kind() core.ErrorKind { return core.KindValidation }
func (e *validationErr) Message() string      { return "fix: " + e.msg }

func fastPolicy(n int) Policy {
	return Policy{MaxAttempts: n, Backoff: NoBackoff{}}
}

// -------------------- Backoff Tests --------------------

func TestExponentialBackoff(t *testing.T) {
	b := ExponentialBackoff{Initial: 100 * time.Millisecond, Max: time.Second, Multiplier: 2}
	assert.Equal(t, 100*time.Millisecond, b.Next(1))
	assert.Equal(t, 200*time.Millisecond, b.Next(2))
	assert.Equal(t, 400*time.Millisecond, b.Next(3))
	assert.Equal(t, time.Second, b.Next(10))
	assert.Equal(t, 100*time.Millisecond, b.Next(0))
}

func TestExponentialBackoff_Jitter(t *testing.T) {
	b := ExponentialBackoff{Initial: 100 * time.Millisecond, Max: time.Second, Jitter: 0.5}
	for i := 0; i < 50; i++ {
		d := b.Next(1)
		assert.GreaterOrEqual(t, d, 50*time.Millisecond)
		assert.LessOrEqual(t, d, 150*time.Millisecond)
	}
}

func TestConstantAndNoBackoff(t *testing.T) {
	assert.Equal(t, 3*time.Second, ConstantBackoff(3*time.Second).Next(7))
	assert.Zero(t, NoBackoff{}.Next(1))
}

// -------------------- Predicate Tests --------------------

func TestPredicates(t *testing.T) {
	fatal := core.NewProviderTransportError("openai", 401, errors.New("unauthorized"))
	vErr := &validationErr{msg: "bad title"}

	assert.True(t, IsTransport(errRateLimited))
	assert.False(t, IsTransport(fatal))
	assert.True(t, IsTransport(&core.StreamInterruptedError{Provider: "openai", ChunksSeen: 2, Err: errors.New("eof")}))

	assert.True(t, IsValidation(vErr))
	assert.False(t, IsValidation(errRateLimited))

	assert.True(t, On[*core.ProviderTransportError]()(fatal))
	assert.False(t, On[*core.ConfigurationError]()(fatal))

	assert.True(t, Any(IsTransport, IsValidation)(vErr))
	assert.False(t, Any(nil, IsValidation)(fatal))
	assert.True(t, IsKind(core.KindProviderTransport)(fatal))
}

// -------------------- Do Tests --------------------

func TestDo_SucceedsFirstTry(t *testing.T) {
	calls := 0
	v, err := Do(context.Background(), func(_ context.Context, rc *Context, target Target) (string, error) {
		calls++
		assert.True(t, target.IsPrimary())
		assert.Equal(t, 1, rc.Attempt)
		return "ok", nil
	}, fastPolicy(3))

	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 1, calls)
}

func TestDo_RetryBound(t *testing.T) {
	for _, n := range []int{1, 2, 5} {
		calls := 0
		_, err := Do(context.Background(), func(context.Context, *Context, Target) (int, error) {
			calls++
			return 0, errRateLimited
		}, fastPolicy(n))

		var fbErr *FallbackError
		require.ErrorAs(t, err, &fbErr)
		assert.Equal(t, n, calls, "exactly N attempts")
		assert.Len(t, fbErr.Errors, n)
		assert.ErrorIs(t, err, errRateLimited)
		assert.Equal(t, 1, fbErr.Targets)
		assert.Equal(t, core.KindRetryExhausted, core.KindOf(err))
	}
}

func TestDo_NonRetryableSurfacesImmediately(t *testing.T) {
	cfgErr := core.NewConfigurationError("model", "missing")
	calls := 0
	_, err := Do(context.Background(), func(context.Context, *Context, Target) (int, error) {
		calls++
		return 0, cfgErr
	}, fastPolicy(5))

	assert.Same(t, cfgErr, err)
	assert.Equal(t, 1, calls)
}

func TestDo_ErrorReinsertion(t *testing.T) {
	policy := Policy{
		MaxAttempts: 3,
		Backoff:     NoBackoff{},
		Retryable:   Any(IsTransport, IsValidation),
		Reinsert:    IsValidation,
	}

	var seenErrors []int
	v, err := Do(context.Background(), func(_ context.Context, rc *Context, _ Target) (string, error) {
		seenErrors = append(seenErrors, len(rc.Errors))
		if rc.Attempt == 1 {
			return "", &validationErr{msg: "title must be uppercase"}
		}
		assert.Equal(t, []string{"fix: title must be uppercase"}, rc.ErrorMessages())
		return "T", nil
	}, policy)

	require.NoError(t, err)
	assert.Equal(t, "T", v)
	assert.Equal(t, []int{0, 1}, seenErrors, "second attempt sees exactly one reinserted error")
}

func TestDo_TransportErrorsAreNotReinserted(t *testing.T) {
	policy := Policy{MaxAttempts: 2, Backoff: NoBackoff{}, Reinsert: IsValidation}
	var last *Context
	_, _ = Do(context.Background(), func(_ context.Context, rc *Context, _ Target) (int, error) {
		last = rc
		return 0, errRateLimited
	}, policy)

	assert.Empty(t, last.Errors)
	assert.Equal(t, 2, last.Attempt)
}

func TestDo_FallbackOrdering(t *testing.T) {
	var order []string
	chain := []FallbackEntry{{
		Catch:    IsTransport,
		Provider: "anthropic",
		Model:    "claude-sonnet-4-0",
		Policy:   fastPolicy(2),
	}}

	v, err := Do(context.Background(), func(_ context.Context, rc *Context, target Target) (string, error) {
		if target.IsPrimary() {
			order = append(order, "A")
			assert.Equal(t, 0, rc.ChainIndex)
			return "", errRateLimited
		}
		order = append(order, "B")
		assert.Equal(t, 1, rc.ChainIndex)
		assert.Equal(t, "anthropic", target.Provider)
		return "from B", nil
	}, fastPolicy(3), chain...)

	require.NoError(t, err)
	assert.Equal(t, "from B", v)
	assert.Equal(t, []string{"A", "A", "A", "B"}, order, "A's budget is exhausted before B runs")
}

func TestDo_FallbackChainExhausted(t *testing.T) {
	temp := 0.2
	chain := []FallbackEntry{
		{Provider: "anthropic", Policy: fastPolicy(1)},
		{Provider: "ollama", Params: &model.Params{Temperature: &temp}, Policy: fastPolicy(2)},
	}
	var providers []string
	_, err := Do(context.Background(), func(_ context.Context, _ *Context, target Target) (int, error) {
		providers = append(providers, target.Provider)
		return 0, core.NewProviderTransportError(target.Provider, 503, errors.New("unavailable"))
	}, fastPolicy(2), chain...)

	var fbErr *FallbackError
	require.ErrorAs(t, err, &fbErr)
	assert.Equal(t, []string{"", "", "anthropic", "ollama", "ollama"}, providers)
	require.Len(t, fbErr.Errors, 5)
	assert.Equal(t, 3, fbErr.Targets)
	assert.Equal(t, core.KindFallbackExhausted, core.KindOf(err))

	var last *core.ProviderTransportError
	require.ErrorAs(t, fbErr.Last(), &last)
	assert.Equal(t, "ollama", last.Provider)
}

func TestDo_FallbackCatchMismatch(t *testing.T) {
	vErr := &validationErr{msg: "bad"}
	chain := []FallbackEntry{{Catch: IsTransport, Provider: "anthropic"}}
	calls := 0
	_, err := Do(context.Background(), func(context.Context, *Context, Target) (int, error) {
		calls++
		return 0, vErr
	}, Policy{MaxAttempts: 2, Backoff: NoBackoff{}, Retryable: IsValidation}, chain...)

	var fbErr *FallbackError
	require.ErrorAs(t, err, &fbErr)
	assert.Equal(t, 2, calls, "the fallback does not catch validation errors")
}

func TestDo_ContextCanceledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	done := make(chan error, 1)
	go func() {
		_, err := Do(ctx, func(context.Context, *Context, Target) (int, error) {
			calls++
			return 0, errRateLimited
		}, Policy{MaxAttempts: 5, Backoff: ConstantBackoff(time.Hour)})
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	case <-time.After(2 * time.Second):
		t.Fatal("Do did not return after cancellation")
	}
}

func TestDo_CanceledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Do(ctx, func(context.Context, *Context, Target) (int, error) {
		t.Fatal("must not be called")
		return 0, nil
	}, fastPolicy(3))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFallbackError_Message(t *testing.T) {
	err := &FallbackError{Errors: []error{errors.New("one"), errors.New("two")}}
	assert.Equal(t, "all 2 attempts failed: attempt 1: one; attempt 2: two", err.Error())
	assert.Nil(t, (&FallbackError{}).Last())
}
