// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package httputil provides HTTP helpers shared across stages: a bounded
// fixed-delay retry primitive and a rate-limited fetcher with explicit
// transport configuration.
package httputil

import (
	"context"
	"time"
)

// Try runs fn up to 1+retries times, sleeping delay before each retry.
// Any error from fn counts as a transient failure. The delay is a fixed
// politeness pause, not a backoff policy. If the context is cancelled
// during a wait, or fn failed because of it, Try returns ctx.Err().
func Try[T any](ctx context.Context, retries int, delay time.Duration, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 && delay > 0 {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(delay):
			}
		}

		v, err := fn()
		if err == nil {
			return v, nil
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		lastErr = err
	}
	return zero, lastErr
}
