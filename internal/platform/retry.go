package platform

import (
	"math"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryPolicy shapes the exponential backoff used for installation and
// background-sync retries.
type RetryPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration

	// MaxElapsedTime gives up on a registration after this long; zero
	// means never.
	MaxElapsedTime time.Duration

	// MaxTries bounds attempts; zero means unbounded.
	MaxTries uint
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialInterval: 5 * time.Second,
		MaxInterval:     10 * time.Minute,
		MaxElapsedTime:  24 * time.Hour,
	}
}

func (p RetryPolicy) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	b.Reset()
	return b
}

func (p RetryPolicy) retryOptions(notify backoff.Notify) []backoff.RetryOption {
	maxElapsed := p.MaxElapsedTime
	if maxElapsed <= 0 {
		maxElapsed = time.Duration(math.MaxInt64)
	}
	opts := []backoff.RetryOption{
		backoff.WithBackOff(p.newBackOff()),
		backoff.WithMaxElapsedTime(maxElapsed),
	}
	if p.MaxTries > 0 {
		opts = append(opts, backoff.WithMaxTries(p.MaxTries))
	}
	if notify != nil {
		opts = append(opts, backoff.WithNotify(notify))
	}
	return opts
}

// expired reports whether a registration that started at since and made
// attempts tries should be abandoned.
func (p RetryPolicy) expired(since time.Time, attempts uint) bool {
	if p.MaxTries > 0 && attempts >= p.MaxTries {
		return true
	}
	return p.MaxElapsedTime > 0 && time.Since(since) > p.MaxElapsedTime
}
