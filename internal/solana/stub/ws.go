package stub

import (
	"context"
	"sync"

	"solana-swap-indexer/internal/solana"
)

// SlotSubscriber is a solana.SlotSubscriber fed by Publish.
type SlotSubscriber struct {
	mu     sync.Mutex
	ch     chan solana.SlotNotification
	closed bool
	Err    error
}

var _ solana.SlotSubscriber = (*SlotSubscriber)(nil)

// NewSlotSubscriber creates a subscriber with the given buffer size.
func NewSlotSubscriber(buffer int) *SlotSubscriber {
	return &SlotSubscriber{ch: make(chan solana.SlotNotification, buffer)}
}

// SubscribeSlots returns the notification channel, or Err when set.
func (s *SlotSubscriber) SubscribeSlots(_ context.Context) (<-chan solana.SlotNotification, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	return s.ch, nil
}

// Publish delivers a slot notification.
func (s *SlotSubscriber) Publish(slot uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.ch <- solana.SlotNotification{Slot: slot}
}

// Close closes the channel.
func (s *SlotSubscriber) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	return nil
}
