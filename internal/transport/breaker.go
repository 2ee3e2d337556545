package transport

import (
	"context"

	"mailwave/pkg/circuitbreaker"
	"mailwave/pkg/errors"
)

// CircuitBreakerSender stops calling the provider while it is failing.
// Recipient-level rejections do not count against the breaker.
type CircuitBreakerSender struct {
	next    Sender
	breaker *circuitbreaker.Wrapper
}

func NewCircuitBreakerSender(next Sender, cfg circuitbreaker.Config) *CircuitBreakerSender {
	if cfg.IsSuccessful == nil {
		cfg.IsSuccessful = func(err error) bool {
			return err == nil || !errors.IsTransportUnavailable(err)
		}
	}
	return &CircuitBreakerSender{next: next, breaker: circuitbreaker.NewWrapper(cfg)}
}

func (s *CircuitBreakerSender) Provider() string { return s.next.Provider() }

func (s *CircuitBreakerSender) Send(ctx context.Context, msg Message) (Receipt, error) {
	r, err := circuitbreaker.Do(ctx, s.breaker, func() (Receipt, error) {
		return s.next.Send(ctx, msg)
	})
	return r, s.translate(err)
}

func (s *CircuitBreakerSender) SendBatch(ctx context.Context, msgs []Message) ([]BatchResult, error) {
	r, err := circuitbreaker.Do(ctx, s.breaker, func() ([]BatchResult, error) {
		return s.next.SendBatch(ctx, msgs)
	})
	return r, s.translate(err)
}

func (s *CircuitBreakerSender) translate(err error) error {
	if circuitbreaker.IsOpenError(err) {
		return errors.ErrTransportUnavailable.
			WithDetail("message", s.breaker.Name()+" circuit breaker is open").
			WithCause(err)
	}
	return err
}
