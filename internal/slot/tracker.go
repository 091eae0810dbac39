// Package slot tracks the chain tip.
package slot

import (
	"context"
	"errors"
	"sync/atomic"

	"go.uber.org/zap"

	"solana-swap-indexer/internal/logger"
	"solana-swap-indexer/internal/observability"
	"solana-swap-indexer/internal/solana"
)

// ErrSubscriptionClosed is returned by Run when the slot channel closes before shutdown.
var ErrSubscriptionClosed = errors.New("slot subscription closed")

// Tracker holds the highest slot observed. The value never decreases.
type Tracker struct {
	latest atomic.Uint64
	log    *zap.SugaredLogger
}

// NewTracker creates a tracker with no observed slot.
func NewTracker(log *zap.SugaredLogger) *Tracker {
	return &Tracker{log: logger.Nop(log)}
}

// Observe records slot and reports whether it raised the latest value.
func (t *Tracker) Observe(slot uint64) bool {
	for {
		cur := t.latest.Load()
		if slot <= cur {
			return false
		}
		if t.latest.CompareAndSwap(cur, slot) {
			observability.UpdateLatestSlot(slot)
			return true
		}
	}
}

// Latest returns the highest slot observed, or 0 if none.
func (t *Tracker) Latest() uint64 {
	return t.latest.Load()
}

// Run consumes slot notifications from sub until ctx is done.
// A disconnect inside the transport does not reset the tracked value.
func (t *Tracker) Run(ctx context.Context, sub solana.SlotSubscriber) error {
	ch, err := sub.SubscribeSlots(ctx)
	if err != nil {
		return err
	}
	t.log.Infow("subscribed to slot updates")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n, ok := <-ch:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return ErrSubscriptionClosed
			}
			t.Observe(n.Slot)
		}
	}
}
