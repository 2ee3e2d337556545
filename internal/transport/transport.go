// Package transport delivers rendered messages through an email provider.
package transport

import (
	"context"
	"fmt"

	"mailwave/internal/constants"
	"mailwave/pkg/errors"
)

type Tag struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type Message struct {
	From       string
	To         string
	Subject    string
	HTML       string
	Text       string
	TrackingID string
	Tags       []Tag
}

type Receipt struct {
	ID string
}

// BatchResult holds the outcome for the message at the same index.
type BatchResult struct {
	ID  string
	Err error
}

type Sender interface {
	Send(ctx context.Context, msg Message) (Receipt, error)
	SendBatch(ctx context.Context, msgs []Message) ([]BatchResult, error)
	Provider() string
}

var ErrBatchTooLarge = errors.ErrValidation.WithDetail("message",
	fmt.Sprintf("batch exceeds %d messages", constants.MaxBatchSize))

func checkBatch(msgs []Message) error {
	if len(msgs) > constants.MaxBatchSize {
		return ErrBatchTooLarge.WithDetail("size", len(msgs))
	}
	return nil
}

func recipientFailure(cause error) error {
	return errors.ErrRecipientDelivery.WithCause(cause).AsFatal()
}

func unavailable(cause error) error {
	return errors.ErrTransportUnavailable.WithCause(cause).AsRetryable()
}

// TagValue strips characters providers reject in tag values.
func TagValue(v string) string {
	out := make([]rune, 0, len(v))
	for _, r := range v {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
