package record

import "time"

const (
	DefaultMaxRetries = 5
	DefaultRetryDelay = 100 * time.Millisecond
)

// RetryPolicy bounds the read-modify-write loop. MaxRetries counts total
// attempts, including the first.
type RetryPolicy struct {
	MaxRetries int
	Delay      time.Duration
}

// DefaultRetryPolicy returns five attempts spaced 100ms apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: DefaultMaxRetries, Delay: DefaultRetryDelay}
}

type updateOptions struct {
	actorID string
	policy  RetryPolicy
}

// UpdateOption customizes a single Update call.
type UpdateOption func(*updateOptions)

// WithActor records a RECORD_UPDATED activity entry for actorID in the same
// transaction as the write.
func WithActor(actorID string) UpdateOption {
	return func(o *updateOptions) { o.actorID = actorID }
}

// WithMaxRetries overrides the number of attempts.
func WithMaxRetries(n int) UpdateOption {
	return func(o *updateOptions) {
		if n > 0 {
			o.policy.MaxRetries = n
		}
	}
}

// WithRetryDelay overrides the wait between attempts.
func WithRetryDelay(d time.Duration) UpdateOption {
	return func(o *updateOptions) {
		if d >= 0 {
			o.policy.Delay = d
		}
	}
}
