package transport

import (
	"context"
	"fmt"
	"strings"

	"github.com/sony/gobreaker"

	"mailwave/internal/config"
	"mailwave/internal/constants"
	"mailwave/internal/logger"
	"mailwave/pkg/circuitbreaker"
)

// New builds the configured provider wrapped in rate limiting and a
// circuit breaker when those are enabled.
func New(ctx context.Context, cfg config.TransportConfig, cbCfg config.CircuitBreakerConfig, log logger.Logger) (Sender, error) {
	var (
		sender Sender
		err    error
	)

	switch strings.ToLower(cfg.Provider) {
	case "", constants.ProviderResend:
		sender, err = NewResendSender(cfg.Resend)
	case constants.ProviderSES:
		sender, err = NewSESSender(ctx, cfg.SES)
	default:
		return nil, fmt.Errorf("unknown transport provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	if cfg.RateLimit.Enabled {
		sender = NewRateLimitedSender(sender, cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	}

	if cbCfg.Enabled {
		cb := circuitbreaker.FromConfig("transport-"+sender.Provider(), cbCfg)
		cb.OnStateChange = func(name string, from, to gobreaker.State) {
			log.Warnw("Transport circuit breaker state changed",
				"name", name,
				"from", from.String(),
				"to", to.String(),
			)
		}
		sender = NewCircuitBreakerSender(sender, cb)
	}

	log.Infow("Email transport initialized",
		"provider", sender.Provider(),
		"rate_limited", cfg.RateLimit.Enabled,
		"circuit_breaker", cbCfg.Enabled,
	)
	return sender, nil
}
