package broker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailwave/internal/config"
	"mailwave/internal/logger"
)

func TestNewProducer(t *testing.T) {
	tests := []struct {
		name    string
		typ     string
		wantNil bool
		wantErr bool
	}{
		{"unset", "", true, false},
		{"none", "none", true, false},
		{"kafka", "kafka", false, false},
		{"unknown", "rabbitmq", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProducer(config.BrokerConfig{
				Type:  tt.typ,
				Kafka: config.KafkaConfig{Brokers: []string{"localhost:9092"}},
			}, logger.NopLogger())
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantNil, p == nil)
			if p != nil {
				assert.NoError(t, p.Close())
			}
		})
	}
}

func TestTopics(t *testing.T) {
	got := Topics(config.KafkaConfig{
		CampaignEventsTopic: "campaign_events",
		DeliveryEventsTopic: "campaign_events",
		DLQTopic:            "delivery_events_dlq",
	})
	assert.Equal(t, []string{"campaign_events", "delivery_events_dlq"}, got)
	assert.Empty(t, Topics(config.KafkaConfig{}))
}

func TestEnsureTopicsWithoutBrokers(t *testing.T) {
	assert.NoError(t, EnsureTopics(context.Background(), nil))
	assert.EqualError(t, EnsureTopics(context.Background(), nil, "t"), "no kafka brokers configured")
}
