package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"mailwave/pkg/retry"
)

// RateLimitedSender paces calls to the provider. A batch consumes one token
// per message. When the provider asks for a pause (Retry-After), later calls
// wait it out before taking a token.
type RateLimitedSender struct {
	next    Sender
	limiter *rate.Limiter

	mu         sync.Mutex
	pauseUntil time.Time
	now        func() time.Time
}

func NewRateLimitedSender(next Sender, rps float64, burst int) *RateLimitedSender {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimitedSender{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		now:     time.Now,
	}
}

func (s *RateLimitedSender) Provider() string { return s.next.Provider() }

func (s *RateLimitedSender) Send(ctx context.Context, msg Message) (Receipt, error) {
	if err := s.wait(ctx, 1); err != nil {
		return Receipt{}, err
	}
	r, err := s.next.Send(ctx, msg)
	s.observe(err)
	return r, err
}

func (s *RateLimitedSender) SendBatch(ctx context.Context, msgs []Message) ([]BatchResult, error) {
	n := len(msgs)
	if n > s.limiter.Burst() {
		n = s.limiter.Burst()
	}
	if err := s.wait(ctx, n); err != nil {
		return nil, err
	}
	r, err := s.next.SendBatch(ctx, msgs)
	s.observe(err)
	return r, err
}

func (s *RateLimitedSender) wait(ctx context.Context, n int) error {
	if d := s.pause(); d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return fmt.Errorf("transport rate limit wait: %w", ctx.Err())
		case <-timer.C:
		}
	}
	if n <= 0 {
		return nil
	}
	if err := s.limiter.WaitN(ctx, n); err != nil {
		return fmt.Errorf("transport rate limit wait: %w", err)
	}
	return nil
}

// Paused reports how long calls are currently held back.
func (s *RateLimitedSender) Paused() time.Duration {
	return s.pause()
}

func (s *RateLimitedSender) pause() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pauseUntil.Sub(s.now())
}

func (s *RateLimitedSender) observe(err error) {
	wait, ok := retry.RequestedWait(err)
	if !ok {
		return
	}
	until := s.now().Add(wait)
	s.mu.Lock()
	if until.After(s.pauseUntil) {
		s.pauseUntil = until
	}
	s.mu.Unlock()
}
