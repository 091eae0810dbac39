package scheduler

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"solana-swap-indexer/internal/logger"
	"solana-swap-indexer/internal/observability"
	"solana-swap-indexer/internal/solana"
)

// DefaultTickInterval is the pause between scheduling passes.
const DefaultTickInterval = 200 * time.Millisecond

// LatestSlotSource exposes the chain tip.
type LatestSlotSource interface {
	Latest() uint64
}

// Scheduler fetches blocks in bounded parallel batches and emits them in
// strictly ascending slot order.
type Scheduler struct {
	client       solana.ChainClient
	tip          LatestSlotSource
	planner      *Planner
	concurrency  int
	tickInterval time.Duration
	log          *zap.SugaredLogger
}

// Options contains configuration for creating a Scheduler.
type Options struct {
	Client       solana.ChainClient
	Tip          LatestSlotSource
	Concurrency  int
	TickInterval time.Duration // Default: 200ms
	// PreviousSlot is the last slot already ingested; 0 bootstraps at the chain tip.
	PreviousSlot uint64
	Logger       *zap.SugaredLogger
}

// New creates a scheduler.
func New(opts Options) *Scheduler {
	tick := opts.TickInterval
	if tick <= 0 {
		tick = DefaultTickInterval
	}
	return &Scheduler{
		client:       opts.Client,
		tip:          opts.Tip,
		planner:      NewPlanner(opts.PreviousSlot, opts.Concurrency),
		concurrency:  opts.Concurrency,
		tickInterval: tick,
		log:          logger.Nop(opts.Logger),
	}
}

// Run schedules batches until ctx is done, sending fetched blocks to out.
// Skipped slots produce nothing. Any other fetch failure is returned and is fatal.
func (s *Scheduler) Run(ctx context.Context, out chan<- *solana.Block) error {
	s.log.Infow("scheduler started", "previous_slot", s.planner.Previous(), "concurrency", s.concurrency, "tick", s.tickInterval)

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.tick(ctx, out); err != nil {
				return err
			}
		}
	}
}

// tick plans one batch, fetches it and emits the blocks in order.
func (s *Scheduler) tick(ctx context.Context, out chan<- *solana.Block) error {
	latest := s.tip.Latest()
	slots := s.planner.Next(latest)
	if len(slots) == 0 {
		return nil
	}

	blocks, err := Gather(ctx, slots, s.concurrency, s.fetch)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.Wrapf(err, "fetch slots %d..%d", slots[0], slots[len(slots)-1])
	}

	for _, item := range blocks {
		if item.Value == nil {
			continue
		}
		select {
		case out <- item.Value:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// fetch returns the block for slot, or nil when the slot was skipped.
func (s *Scheduler) fetch(ctx context.Context, slot uint64) (*solana.Block, error) {
	observability.AddFetchesInFlight(1)
	defer observability.AddFetchesInFlight(-1)

	block, err := s.client.GetBlock(ctx, slot)
	if err != nil {
		if solana.IsSkippedSlot(err) {
			observability.RecordSlotSkipped()
			s.log.Debugw("slot skipped", "slot", slot)
			return nil, nil
		}
		return nil, errors.Wrapf(err, "slot %d", slot)
	}
	return block, nil
}
