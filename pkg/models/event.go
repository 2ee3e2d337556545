package models

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	EventCampaignDispatchStarted = "campaign.dispatch_started"
	EventCampaignSent            = "campaign.sent"
	EventCampaignFailed          = "campaign.failed"
	EventCampaignStateChanged    = "campaign.state_changed"
	EventDelivery                = "delivery.event"
)

// Envelope is the broker wire format shared by all published events.
type Envelope struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Source    string          `json:"source"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
	Metadata  Metadata        `json:"metadata"`
}

type Metadata struct {
	TraceID        string     `json:"trace_id,omitempty"`
	Attempts       int        `json:"attempts,omitempty"`
	DLQReason      string     `json:"dlq_reason,omitempty"`
	DLQSourceTopic string     `json:"dlq_source_topic,omitempty"`
	DLQTimestamp   *time.Time `json:"dlq_timestamp,omitempty"`
}

// NewEnvelope marshals payload into a fresh envelope.
func NewEnvelope(id, eventType, source string, payload interface{}) (Envelope, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Envelope{
		ID:        id,
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now().UTC(),
		Payload:   body,
	}, nil
}

// Decode unmarshals the payload into out.
func (e Envelope) Decode(out interface{}) error {
	if len(e.Payload) == 0 {
		return &ValidationError{Field: "payload", Message: "payload is empty"}
	}
	return json.Unmarshal(e.Payload, out)
}

func (e Envelope) Validate() error {
	switch {
	case e.ID == "":
		return &ValidationError{Field: "id", Message: "event ID is required"}
	case e.Type == "":
		return &ValidationError{Field: "type", Message: "event type is required"}
	case e.Source == "":
		return &ValidationError{Field: "source", Message: "event source is required"}
	case e.Timestamp.IsZero():
		return &ValidationError{Field: "timestamp", Message: "event timestamp is required"}
	}
	return nil
}

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

type CampaignEvent struct {
	CampaignID string         `json:"campaignId"`
	ABTestID   string         `json:"abTestId,omitempty"`
	From       CampaignStatus `json:"from,omitempty"`
	To         CampaignStatus `json:"to"`
	Total      int            `json:"total"`
	Sent       int            `json:"sent"`
	Failed     int            `json:"failed"`
	At         time.Time      `json:"at"`
}

type DeliveryEventType string

const (
	DeliveryEventDelivered  DeliveryEventType = "delivered"
	DeliveryEventBounced    DeliveryEventType = "bounced"
	DeliveryEventComplained DeliveryEventType = "complained"
	DeliveryEventFailed     DeliveryEventType = "failed"
)

// DeliveryEvent is a transport callback normalized to tracking semantics.
type DeliveryEvent struct {
	TrackingID string            `json:"trackingId"`
	Type       DeliveryEventType `json:"type"`
	BounceType BounceType        `json:"bounceType,omitempty"`
	Reason     string            `json:"reason,omitempty"`
	ProviderID string            `json:"providerId,omitempty"`
	OccurredAt time.Time         `json:"occurredAt"`
}

func (e DeliveryEvent) Validate() error {
	if e.TrackingID == "" {
		return &ValidationError{Field: "trackingId", Message: "tracking ID is required"}
	}
	switch e.Type {
	case DeliveryEventDelivered, DeliveryEventComplained, DeliveryEventFailed:
	case DeliveryEventBounced:
		if e.BounceType != "" && e.BounceType != BounceSoft && e.BounceType != BounceHard {
			return &ValidationError{Field: "bounceType", Message: "must be soft or hard"}
		}
	default:
		return &ValidationError{Field: "type", Message: fmt.Sprintf("unknown delivery event type %q", e.Type)}
	}
	return nil
}
