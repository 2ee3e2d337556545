package broker

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/segmentio/kafka-go"

	"mailwave/internal/config"
	"mailwave/internal/logger"
)

const typeKafka = "kafka"

// NewProducer returns nil when events are not published.
func NewProducer(cfg config.BrokerConfig, log logger.Logger) (Producer, error) {
	if !cfg.Enabled() {
		return nil, nil
	}
	if cfg.Type != typeKafka {
		return nil, fmt.Errorf("unknown broker type: %s", cfg.Type)
	}
	return NewKafkaProducer(cfg.Kafka, log), nil
}

func NewConsumer(cfg config.BrokerConfig, log logger.Logger) (Consumer, error) {
	if cfg.Type != typeKafka {
		return nil, fmt.Errorf("unknown broker type: %s", cfg.Type)
	}
	return NewKafkaConsumer(cfg.Kafka, log), nil
}

// Topics lists the configured campaign, delivery and dead-letter topics,
// skipping blanks and duplicates.
func Topics(cfg config.KafkaConfig) []string {
	seen := make(map[string]bool, 3)
	var out []string
	for _, t := range []string{cfg.CampaignEventsTopic, cfg.DeliveryEventsTopic, cfg.DLQTopic} {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// EnsureTopics creates the given topics through the cluster controller with a
// single partition and replica. Topics that already exist are left alone.
func EnsureTopics(ctx context.Context, brokers []string, topics ...string) error {
	if len(topics) == 0 {
		return nil
	}
	if len(brokers) == 0 {
		return fmt.Errorf("no kafka brokers configured")
	}

	var dialer kafka.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", brokers[0])
	if err != nil {
		return fmt.Errorf("failed to dial kafka: %w", err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("failed to find kafka controller: %w", err)
	}
	ctrl, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return fmt.Errorf("failed to dial kafka controller: %w", err)
	}
	defer ctrl.Close()

	configs := make([]kafka.TopicConfig, len(topics))
	for i, topic := range topics {
		configs[i] = kafka.TopicConfig{Topic: topic, NumPartitions: 1, ReplicationFactor: 1}
	}
	if err := ctrl.CreateTopics(configs...); err != nil {
		return fmt.Errorf("failed to create topics %v: %w", topics, err)
	}
	return nil
}
