package solana

import "context"

// SlotSubscriber streams slot notifications from the chain.
type SlotSubscriber interface {
	// SubscribeSlots returns a channel of slot updates. The channel is closed by Close.
	SubscribeSlots(ctx context.Context) (<-chan SlotNotification, error)

	// Close closes the WebSocket connection.
	Close() error
}

// SlotNotification is a slotSubscribe update.
type SlotNotification struct {
	Slot   uint64
	Parent uint64
	Root   uint64
}
