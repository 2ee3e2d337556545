// Package transporttest provides a recording transport.Sender.
package transporttest

import (
	"context"
	"fmt"
	"sync"

	"mailwave/internal/transport"
	"mailwave/pkg/errors"
)

// Sender records every message. Recipients listed in FailFor are rejected
// individually; BatchErr fails whole batches.
type Sender struct {
	mu       sync.Mutex
	Sent     []transport.Message
	Batches  [][]transport.Message
	FailFor  map[string]bool
	BatchErr error
	// OnSend runs before each single send.
	OnSend func(msg transport.Message)
}

func NewSender(failFor ...string) *Sender {
	s := &Sender{FailFor: make(map[string]bool)}
	for _, e := range failFor {
		s.FailFor[e] = true
	}
	return s
}

func (s *Sender) Provider() string { return "test" }

func (s *Sender) Send(_ context.Context, msg transport.Message) (transport.Receipt, error) {
	if s.OnSend != nil {
		s.OnSend(msg)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailFor[msg.To] {
		return transport.Receipt{}, errors.ErrRecipientDelivery.WithDetail("message", fmt.Sprintf("rejected %s", msg.To))
	}
	s.Sent = append(s.Sent, msg)
	return transport.Receipt{ID: fmt.Sprintf("msg-%d", len(s.Sent))}, nil
}

func (s *Sender) SendBatch(_ context.Context, msgs []transport.Message) ([]transport.BatchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Batches = append(s.Batches, msgs)
	if s.BatchErr != nil {
		return nil, s.BatchErr
	}
	results := make([]transport.BatchResult, len(msgs))
	for i, m := range msgs {
		if s.FailFor[m.To] {
			results[i].Err = errors.ErrRecipientDelivery.WithDetail("message", fmt.Sprintf("rejected %s", m.To))
			continue
		}
		s.Sent = append(s.Sent, m)
		results[i].ID = fmt.Sprintf("msg-%d", len(s.Sent))
	}
	return results, nil
}

// SentTo returns the message delivered to email, if any.
func (s *Sender) SentTo(email string) (transport.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.Sent {
		if m.To == email {
			return m, true
		}
	}
	return transport.Message{}, false
}
