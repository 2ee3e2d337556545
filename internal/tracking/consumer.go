package tracking

import (
	"context"

	"mailwave/internal/broker"
	"mailwave/pkg/errors"
	"mailwave/pkg/models"
)

// DeliveryHandler applies delivery events read from the broker. Malformed
// events are fatal so the consumer sends them to the DLQ without retrying.
func DeliveryHandler(m *Manager) broker.HandlerFunc {
	return func(ctx context.Context, env models.Envelope) error {
		if env.Type != models.EventDelivery {
			return errors.ErrValidation.WithDetail("message", "unexpected event type "+env.Type)
		}
		var ev models.DeliveryEvent
		if err := env.Decode(&ev); err != nil {
			return errors.ErrValidation.WithCause(err)
		}
		return m.ApplyDeliveryEvent(ctx, ev)
	}
}
