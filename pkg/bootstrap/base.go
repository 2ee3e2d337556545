package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"mailwave/internal/broker"
	"mailwave/internal/config"
	"mailwave/internal/logger"
)

// Base carries what both services share: configuration, the logger and the
// event broker clients.
type Base struct {
	Config   *config.Config
	Logger   logger.Logger
	Producer broker.Producer
	Consumer broker.Consumer
}

func NewBase(cfg *config.Config, log logger.Logger) *Base {
	return &Base{Config: cfg, Logger: log}
}

// InitProducer connects the event producer. Producer stays nil when events
// are not published. With auto_create_topics set, the campaign, delivery and
// dead-letter topics are created first.
func (b *Base) InitProducer(ctx context.Context) error {
	if !b.Config.Broker.Enabled() {
		b.Logger.InfowCtx(ctx, "Event broker disabled, campaign and delivery events are not published")
		return nil
	}

	kafkaCfg := b.Config.Broker.Kafka
	if kafkaCfg.AutoCreateTopics {
		topics := broker.Topics(kafkaCfg)
		if err := broker.EnsureTopics(ctx, kafkaCfg.Brokers, topics...); err != nil {
			b.Logger.WarnwCtx(ctx, "Failed to create broker topics", "topics", topics, "error", err)
		}
	}

	producer, err := broker.NewProducer(b.Config.Broker, b.Logger)
	if err != nil {
		return fmt.Errorf("failed to create producer: %w", err)
	}
	b.Producer = producer
	return nil
}

// InitConsumer leaves Consumer nil when events are not published.
func (b *Base) InitConsumer(serviceName string) error {
	if !b.Config.Broker.Enabled() {
		return nil
	}

	consumer, err := broker.NewConsumer(b.Config.Broker, b.Logger)
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}
	consumer.SetServiceName(serviceName)
	b.Consumer = consumer
	return nil
}

// Shutdown closes the broker clients, then runs release for the
// service-specific resources. Every failure is reported.
func (b *Base) Shutdown(ctx context.Context, release func(ctx context.Context) []error) error {
	b.Logger.InfowCtx(ctx, "Shutting down application")

	var errs []error
	if b.Producer != nil {
		if err := b.Producer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("producer close error: %w", err))
		}
	}
	if b.Consumer != nil {
		if err := b.Consumer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("consumer close error: %w", err))
		}
	}
	if release != nil {
		errs = append(errs, release(ctx)...)
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("shutdown errors: %w", err)
	}

	b.Logger.InfowCtx(ctx, "Application exited successfully")
	return nil
}
