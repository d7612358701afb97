// Package retry wraps a call in bounded retries with backoff, error
// reinsertion and an ordered provider fallback chain.
//
// The unit being retried is whatever the caller passes to Do: a single model
// call, the consumption of a whole stream, or a complete tool loop. Streams
// must be retried around their consumption loop, since a stream only fails
// once it is read.
package retry

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/funcn-ai/funcn-sub000/core"
	"github.com/funcn-ai/funcn-sub000/logging"
	"github.com/funcn-ai/funcn-sub000/model"
)

// Predicate selects errors.
type Predicate func(err error) bool

// On matches errors of type E anywhere in the chain.
func On[E error]() Predicate {
	return func(err error) bool {
		var target E
		return errors.As(err, &target)
	}
}

// IsTransport matches retryable transport failures and interrupted streams.
func IsTransport(err error) bool { return core.IsTransient(err) }

// IsValidation matches structured output validation failures.
func IsValidation(err error) bool { return core.KindOf(err) == core.KindValidation }

// IsKind matches errors of the given taxonomy kind.
func IsKind(kind core.ErrorKind) Predicate {
	return func(err error) bool { return core.KindOf(err) == kind }
}

// Any matches when one of preds matches.
func Any(preds ...Predicate) Predicate {
	return func(err error) bool {
		for _, p := range preds {
			if p != nil && p(err) {
				return true
			}
		}
		return false
	}
}

// Policy bounds the attempts made against one target.
type Policy struct {
	// MaxAttempts includes the first attempt. Values < 1 mean 1.
	MaxAttempts int
	// Backoff computes pauses between attempts; nil means DefaultBackoff.
	Backoff Backoff
	// Retryable selects errors worth another attempt; nil means IsTransport.
	Retryable Predicate
	// Reinsert selects errors recorded in Context.Errors so the next attempt
	// can show them to the model; nil records nothing.
	Reinsert Predicate
	// Logger receives attempt failures; nil disables logging.
	Logger logging.Logger
}

// DefaultPolicy retries transport failures three times in total.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, Backoff: DefaultBackoff(), Retryable: IsTransport}
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.Backoff == nil {
		p.Backoff = DefaultBackoff()
	}
	if p.Retryable == nil {
		p.Retryable = IsTransport
	}
	p.Logger = logging.OrNoOp(p.Logger)
	return p
}

// Context is shared by all attempts of one top-level call.
type Context struct {
	// Attempt is the 1-based number of the running attempt across the chain.
	Attempt int
	// Errors holds reinserted errors in attempt order.
	Errors []error
	// ChainIndex is 0 for the primary target and i for the i-th fallback.
	ChainIndex int
}

// ErrorMessages renders the reinserted errors for a prompt. Errors that
// carry a Message() string hint use it.
func (c *Context) ErrorMessages() []string {
	out := make([]string, 0, len(c.Errors))
	for _, err := range c.Errors {
		var hinted interface{ Message() string }
		if errors.As(err, &hinted) {
			out = append(out, hinted.Message())
			continue
		}
		out = append(out, err.Error())
	}
	return out
}

// Target overrides provider, model and params for a fallback attempt. The
// zero Target means the call's own configuration.
type Target struct {
	Provider string
	Model    string
	Params   *model.Params
}

// IsPrimary reports whether t leaves the configuration untouched.
func (t Target) IsPrimary() bool {
	return t.Provider == "" && t.Model == "" && t.Params == nil
}

// FallbackEntry is one step of a fallback chain.
type FallbackEntry struct {
	// Catch selects the errors that move control to this entry; nil means IsTransport.
	Catch    Predicate
	Provider string
	Model    string
	Params   *model.Params
	Policy   Policy
}

func (e FallbackEntry) target() Target {
	return Target{Provider: e.Provider, Model: e.Model, Params: e.Params}
}

func (e FallbackEntry) catches(err error) bool {
	if e.Catch == nil {
		return IsTransport(err)
	}
	return e.Catch(err)
}

// FallbackError reports that the primary target and every applicable
// fallback exhausted their attempts. Errors are in attempt order. It is also
// returned when only the primary target ran; its kind is then
// core.KindRetryExhausted instead of core.KindFallbackExhausted.
type FallbackError struct {
	Errors []error
	// Targets counts the chain entries that ran, the primary included.
	Targets int
}

func (e *FallbackError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		msgs[i] = fmt.Sprintf("attempt %d: %v", i+1, err)
	}
	return fmt.Sprintf("all %d attempts failed: %s", len(e.Errors), strings.Join(msgs, "; "))
}

func (e *FallbackError) Unwrap() []error { return e.Errors }

// Kind implements core.KindedError.
func (e *FallbackError) Kind() core.ErrorKind {
	if e.Targets <= 1 {
		return core.KindRetryExhausted
	}
	return core.KindFallbackExhausted
}

// Last returns the error of the final attempt.
func (e *FallbackError) Last() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e.Errors[len(e.Errors)-1]
}

// Func is one attempt. rc is shared across attempts; target is zero for
// the primary configuration.
type Func[T any] func(ctx context.Context, rc *Context, target Target) (T, error)

// Do runs fn under policy, then under each chain entry in order.
//
// An entry is tried until it succeeds, its attempts are used up, or it fails
// with an error its policy does not retry. Control then moves to the next
// entry if that entry catches the last error. Otherwise a non-retryable
// error of the primary target is returned as is; every other outcome yields
// a *FallbackError holding each attempt's error.
func Do[T any](ctx context.Context, fn Func[T], policy Policy, chain ...FallbackEntry) (T, error) {
	var zero T

	entries := make([]FallbackEntry, 0, len(chain)+1)
	entries = append(entries, FallbackEntry{Policy: policy})
	entries = append(entries, chain...)

	rc := &Context{}
	var attempts []error

	for i, entry := range entries {
		p := entry.Policy.normalized()
		rc.ChainIndex = i

		var lastErr error
		exhausted := false
		for n := 1; n <= p.MaxAttempts; n++ {
			if err := ctx.Err(); err != nil {
				return zero, err
			}
			rc.Attempt++

			v, err := fn(ctx, rc, entry.target())
			if err == nil {
				return v, nil
			}
			attempts = append(attempts, err)
			lastErr = err

			if ctx.Err() != nil {
				return zero, err
			}
			if p.Reinsert != nil && p.Reinsert(err) {
				rc.Errors = append(rc.Errors, err)
			}
			if !p.Retryable(err) {
				p.Logger.Warn("retry.attempt.failed", "attempt", rc.Attempt, "chain_index", i, "retryable", false, "error", err.Error())
				break
			}
			p.Logger.Warn("retry.attempt.failed", "attempt", rc.Attempt, "chain_index", i, "retryable", true, "error", err.Error())
			if n == p.MaxAttempts {
				exhausted = true
				break
			}
			if err := sleep(ctx, p.Backoff.Next(n)); err != nil {
				return zero, err
			}
		}

		if i+1 < len(entries) && entries[i+1].catches(lastErr) {
			p.Logger.Info("retry.fallback.next", "chain_index", i+1,
				"provider", entries[i+1].Provider, "model", entries[i+1].Model)
			continue
		}
		if !exhausted && i == 0 {
			return zero, lastErr
		}
		return zero, &FallbackError{Errors: attempts, Targets: i + 1}
	}

	return zero, &FallbackError{Errors: attempts, Targets: len(entries)}
}
