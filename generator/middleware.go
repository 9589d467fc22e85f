package generator

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"
)

// Middleware decorates an LLMClient with a cross-cutting concern.
type Middleware func(LLMClient) LLMClient

// Wrap applies middlewares in left-to-right order: Wrap(inner, A, B) => A(B(inner)).
func Wrap(inner LLMClient, mws ...Middleware) LLMClient {
	out := inner
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] != nil {
			out = mws[i](out)
		}
	}
	return out
}

// LLMFunc adapts a plain function to LLMClient.
type LLMFunc func(ctx context.Context, prompt Prompt) (string, error)

func (f LLMFunc) Complete(ctx context.Context, prompt Prompt) (string, error) { return f(ctx, prompt) }

// Retry retries Complete up to maxRetries extra times with exponential
// backoff. PermanentError and context errors stop immediately.
func Retry(maxRetries int) Middleware {
	return RetryWithBackOff(maxRetries, func() backoff.BackOff {
		return backoff.NewExponentialBackOff(
			backoff.WithInitialInterval(300*time.Millisecond),
			backoff.WithMaxInterval(5*time.Second),
		)
	})
}

// RetryWithBackOff is Retry with a caller supplied backoff policy.
func RetryWithBackOff(maxRetries int, policy func() backoff.BackOff) Middleware {
	if maxRetries <= 0 {
		return nil
	}
	return func(next LLMClient) LLMClient {
		return LLMFunc(func(ctx context.Context, prompt Prompt) (string, error) {
			b := backoff.WithContext(backoff.WithMaxRetries(policy(), uint64(maxRetries)), ctx)
			return backoff.RetryWithData(func() (string, error) {
				out, err := next.Complete(ctx, prompt)
				if err == nil {
					return out, nil
				}
				var pErr *PermanentError
				if errors.As(err, &pErr) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return "", backoff.Permanent(err)
				}
				return "", err
			}, b)
		})
	}
}

// RateLimit blocks each call until the token bucket allows it. rps <= 0
// disables the limiter.
func RateLimit(rps float64, burst int) Middleware {
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return func(next LLMClient) LLMClient {
		lim := rate.NewLimiter(rate.Limit(rps), burst)
		return LLMFunc(func(ctx context.Context, prompt Prompt) (string, error) {
			if err := lim.Wait(ctx); err != nil {
				return "", err
			}
			return next.Complete(ctx, prompt)
		})
	}
}
