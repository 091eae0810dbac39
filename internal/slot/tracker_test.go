package slot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-swap-indexer/internal/solana/stub"
)

func TestTracker_Monotonic(t *testing.T) {
	tr := NewTracker(nil)
	assert.Equal(t, uint64(0), tr.Latest())

	assert.True(t, tr.Observe(10))
	assert.False(t, tr.Observe(7))
	assert.False(t, tr.Observe(10))
	assert.True(t, tr.Observe(11))
	assert.Equal(t, uint64(11), tr.Latest())
}

func TestTracker_ConcurrentObserve(t *testing.T) {
	tr := NewTracker(nil)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(offset uint64) {
			defer wg.Done()
			for i := uint64(0); i < 1000; i++ {
				tr.Observe(i*8 + offset)
			}
		}(uint64(w))
	}
	wg.Wait()

	assert.Equal(t, uint64(999*8+7), tr.Latest())
}

func TestTracker_RunFollowsSubscription(t *testing.T) {
	sub := stub.NewSlotSubscriber(8)
	tr := NewTracker(nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tr.Run(ctx, sub) }()

	sub.Publish(100)
	sub.Publish(102)
	sub.Publish(101) // out of order notification is ignored

	require.Eventually(t, func() bool { return tr.Latest() == 102 }, time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, uint64(102), tr.Latest())
}

func TestTracker_RunKeepsValueWhenChannelCloses(t *testing.T) {
	sub := stub.NewSlotSubscriber(8)
	tr := NewTracker(nil)
	sub.Publish(55)
	require.NoError(t, sub.Close())

	err := tr.Run(context.Background(), sub)
	assert.ErrorIs(t, err, ErrSubscriptionClosed)
	assert.Equal(t, uint64(55), tr.Latest())
}

func TestTracker_RunSubscribeError(t *testing.T) {
	sub := stub.NewSlotSubscriber(1)
	sub.Err = errors.New("dial failed")

	err := NewTracker(nil).Run(context.Background(), sub)
	assert.EqualError(t, err, "dial failed")
}

func TestPoller_FeedsTracker(t *testing.T) {
	client := stub.NewRPCClient()
	client.SetSlot(500)
	tr := NewTracker(nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go NewPoller(client, tr, 5*time.Millisecond, nil).Run(ctx)

	require.Eventually(t, func() bool { return tr.Latest() == 500 }, time.Second, 5*time.Millisecond)

	client.SetSlot(510)
	require.Eventually(t, func() bool { return tr.Latest() == 510 }, time.Second, 5*time.Millisecond)
}
