package retry

import (
	"errors"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// afterError carries a wait the remote side asked for, such as a Retry-After header.
type afterError struct {
	err  error
	wait time.Duration
}

func (e *afterError) Error() string { return e.err.Error() }
func (e *afterError) Unwrap() error { return e.err }

// After marks err as retryable no sooner than wait. Non-positive waits leave
// err untouched.
func After(err error, wait time.Duration) error {
	if err == nil || wait <= 0 {
		return err
	}
	return &afterError{err: err, wait: wait}
}

// RequestedWait returns the wait attached to err by After.
func RequestedWait(err error) (time.Duration, bool) {
	var ae *afterError
	if errors.As(err, &ae) {
		return ae.wait, true
	}
	return 0, false
}

// hintedBackOff prefers a pending server hint over the exponential schedule.
type hintedBackOff struct {
	backoff.BackOff
	hint time.Duration
}

func (b *hintedBackOff) NextBackOff() time.Duration {
	next := b.BackOff.NextBackOff()
	if next == backoff.Stop || b.hint <= 0 {
		return next
	}
	hint := b.hint
	b.hint = 0
	return hint
}

func newBackOff(policy Policy) *hintedBackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = policy.InitialInterval
	exp.MaxInterval = policy.MaxInterval
	exp.Multiplier = policy.Multiplier
	exp.MaxElapsedTime = policy.MaxElapsedTime
	return &hintedBackOff{BackOff: exp}
}

// delay is the un-jittered wait before retry number attempt.
func delay(policy Policy, attempt int) time.Duration {
	d := float64(policy.InitialInterval) * math.Pow(policy.Multiplier, float64(attempt-1))
	if policy.MaxInterval > 0 && d > float64(policy.MaxInterval) {
		return policy.MaxInterval
	}
	return time.Duration(d)
}
