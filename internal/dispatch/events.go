package dispatch

import (
	"context"
	"time"

	"github.com/google/uuid"

	"mailwave/internal/broker"
	"mailwave/internal/constants"
	"mailwave/pkg/models"
)

// CampaignEvents publishes lifecycle events. A nil producer disables it.
type CampaignEvents struct {
	producer broker.Producer
	topic    string
}

func NewCampaignEvents(producer broker.Producer, topic string) *CampaignEvents {
	if topic == "" {
		topic = constants.TopicCampaignEvents
	}
	return &CampaignEvents{producer: producer, topic: topic}
}

func (e *CampaignEvents) Publish(ctx context.Context, eventType string, ev models.CampaignEvent) error {
	if e == nil || e.producer == nil {
		return nil
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	envelope, err := models.NewEnvelope(uuid.New().String(), eventType, constants.EventSourceDispatch, ev)
	if err != nil {
		return err
	}
	return e.producer.Publish(ctx, e.topic, envelope)
}
