// Package retry wraps one HTTP round trip with the backoff/retry machinery
// of spec.md §4.5: up to maxRetries additional attempts, Constant or
// ExponentialWithJitter backoff, and a retry decision driven by the error
// classifier plus the endpoint's configured status-code ranges.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/leon4s4/httpsource/internal/classify"
	"github.com/leon4s4/httpsource/internal/config"
)

// alwaysRetryStatuses is the fixed set from spec.md §4.5; configured ranges
// are additive over this set (spec.md §9 Open Question (c)).
var alwaysRetryStatuses = map[int]bool{401: true, 408: true, 429: true, 502: true, 503: true, 504: true}

// Policy bundles the knobs needed to build a backoff.BackOff for one endpoint.
type Policy struct {
	MaxRetries int
	Backoff    config.BackoffPolicy
	BaseDelay  time.Duration
}

// newBackOff builds the backoff.BackOff for the configured policy. The
// ExponentialWithJitter case sets RandomizationFactor to 0.5 so that
// NextBackOff's jittered output is exactly base*2^(k-1)*U[0.5,1.5] on
// attempt k, matching invariant 9 in spec.md §8.
func newBackOff(p Policy) backoff.BackOff {
	switch p.Backoff {
	case config.BackoffExponentialWithJitter:
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = p.BaseDelay
		b.Multiplier = 2.0
		b.RandomizationFactor = 0.5
		b.MaxInterval = 10 * time.Minute
		return b
	default:
		return backoff.NewConstantBackOff(p.BaseDelay)
	}
}

// ShouldRetryStatus reports whether status should be retried, per spec.md
// §4.5: always-retry set, union configured ranges.
func ShouldRetryStatus(status int, ranges []config.StatusRange) bool {
	if alwaysRetryStatuses[status] {
		return true
	}
	for _, r := range ranges {
		if r.Contains(status) {
			return true
		}
	}
	return false
}

// Attempt is what the caller's operation reports back per try, letting Do
// decide retry vs permanent failure without the operation needing to know
// about backoff.Permanent.
type Attempt struct {
	Category classify.Category
	Status   int // 0 when not a status-carrying failure (e.g. I/O error)
}

// Do runs operation up to 1+p.MaxRetries times. operation returns the
// categorized Attempt alongside its error so Do can apply the retry
// decision of spec.md §4.4/§4.5: DataFormat/Configuration and
// Authentication/ClientError are never retried; Transient/RateLimit are
// retried only when their status (if any) is in the retry set, or when
// there is no status at all (a raw I/O error).
func Do(ctx context.Context, p Policy, ranges []config.StatusRange, operation func() (Attempt, error)) error {
	bo := newBackOff(p)

	run := func() (struct{}, error) {
		attempt, err := operation()
		if err == nil {
			return struct{}{}, nil
		}
		if !attempt.Category.Retriable() {
			return struct{}{}, backoff.Permanent(err)
		}
		if attempt.Category == classify.Authentication || attempt.Category == classify.ClientError {
			return struct{}{}, backoff.Permanent(err)
		}
		if attempt.Status != 0 && !ShouldRetryStatus(attempt.Status, ranges) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}

	_, err := backoff.Retry(ctx, run,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(p.MaxRetries+1)),
	)
	if err == nil {
		return nil
	}

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		return permanent.Unwrap()
	}
	return fmt.Errorf("%w: %v", classify.ErrMaxRetriesExceeded, err)
}
