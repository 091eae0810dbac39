package slot

import (
	"context"
	"time"

	"go.uber.org/zap"

	"solana-swap-indexer/internal/logger"
	"solana-swap-indexer/internal/solana"
)

// DefaultPollInterval is roughly one slot.
const DefaultPollInterval = 400 * time.Millisecond

// Poller feeds a Tracker from getSlot when no subscription is available.
type Poller struct {
	client   solana.ChainClient
	tracker  *Tracker
	interval time.Duration
	log      *zap.SugaredLogger
}

// NewPoller creates a poller. A non-positive interval uses DefaultPollInterval.
func NewPoller(client solana.ChainClient, tracker *Tracker, interval time.Duration, log *zap.SugaredLogger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{
		client:   client,
		tracker:  tracker,
		interval: interval,
		log:      logger.Nop(log),
	}
}

// Run polls until ctx is done. Poll failures are logged and the tracker keeps its value.
func (p *Poller) Run(ctx context.Context) error {
	p.poll(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	s, err := p.client.GetSlot(ctx)
	if err != nil {
		if ctx.Err() == nil {
			p.log.Warnw("getSlot failed", "err", err)
		}
		return
	}
	p.tracker.Observe(s)
}
