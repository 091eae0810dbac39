package ingestion

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"solana-swap-indexer/internal/logger"
	"solana-swap-indexer/internal/observability"
	"solana-swap-indexer/internal/retry"
	"solana-swap-indexer/internal/scheduler"
	"solana-swap-indexer/internal/slot"
	"solana-swap-indexer/internal/solana"
	"solana-swap-indexer/internal/storage"
)

// Default runner settings.
const (
	DefaultBufferSize    = 64
	DefaultBlockMaxTries = 10
)

// DefaultBlockRetry is the backoff applied when a block transaction fails.
var DefaultBlockRetry = retry.Policy{
	InitialInterval: 200 * time.Millisecond,
	MaxInterval:     10 * time.Second,
	Multiplier:      2,
	MaxTries:        DefaultBlockMaxTries,
}

// Runner wires the slot tracker, the fetch scheduler and the pipeline together.
type Runner struct {
	client       solana.ChainClient
	subscriber   solana.SlotSubscriber
	pipeline     *Pipeline
	store        storage.Store
	tracker      *slot.Tracker
	concurrency  int
	tickInterval time.Duration
	pollInterval time.Duration
	bufferSize   int
	startSlot    uint64
	blockRetry   retry.Policy
	log          *zap.SugaredLogger
}

// RunnerOptions contains configuration for creating a Runner.
type RunnerOptions struct {
	Client solana.ChainClient
	// Subscriber pushes slot updates. When nil the tip is polled with getSlot.
	Subscriber   solana.SlotSubscriber
	Pipeline     *Pipeline
	Store        storage.Store
	Tracker      *slot.Tracker // optional, shared with the ops server
	Concurrency  int
	TickInterval time.Duration
	PollInterval time.Duration
	BufferSize   int // Default: 64 blocks between scheduler and pipeline
	// StartSlot is the first slot to ingest when no progress is stored. 0 starts at the chain tip.
	StartSlot  uint64
	BlockRetry retry.Policy // Default: DefaultBlockRetry
	Logger     *zap.SugaredLogger
}

// NewRunner creates a new ingestion runner.
func NewRunner(opts RunnerOptions) *Runner {
	log := logger.Nop(opts.Logger)

	tracker := opts.Tracker
	if tracker == nil {
		tracker = slot.NewTracker(log)
	}
	bufferSize := opts.BufferSize
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	blockRetry := opts.BlockRetry
	if blockRetry == (retry.Policy{}) {
		blockRetry = DefaultBlockRetry
	}

	return &Runner{
		client:       opts.Client,
		subscriber:   opts.Subscriber,
		pipeline:     opts.Pipeline,
		store:        opts.Store,
		tracker:      tracker,
		concurrency:  opts.Concurrency,
		tickInterval: opts.TickInterval,
		pollInterval: opts.PollInterval,
		bufferSize:   bufferSize,
		startSlot:    opts.StartSlot,
		blockRetry:   blockRetry,
		log:          log,
	}
}

// Tracker returns the chain tip tracker.
func (r *Runner) Tracker() *slot.Tracker {
	return r.tracker
}

// Run ingests until ctx is cancelled or a fatal error occurs.
// A cancelled ctx is a clean shutdown and returns nil.
func (r *Runner) Run(ctx context.Context) error {
	previous, err := r.previousSlot(ctx)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	blocks := make(chan *solana.Block, r.bufferSize)

	g.Go(func() error {
		if r.subscriber != nil {
			return errors.Wrap(r.tracker.Run(gctx, r.subscriber), "slot tracker")
		}
		return slot.NewPoller(r.client, r.tracker, r.pollInterval, r.log).Run(gctx)
	})

	sched := scheduler.New(scheduler.Options{
		Client:       r.client,
		Tip:          r.tracker,
		Concurrency:  r.concurrency,
		TickInterval: r.tickInterval,
		PreviousSlot: previous,
		Logger:       r.log,
	})
	g.Go(func() error {
		defer close(blocks)
		return sched.Run(gctx, blocks)
	})

	g.Go(func() error {
		return r.consume(gctx, blocks)
	})

	r.log.Infow("runner started", "previous_slot", previous, "concurrency", r.concurrency, "buffer", r.bufferSize)

	err = g.Wait()
	if ctx.Err() != nil && errors.Is(err, context.Canceled) {
		r.log.Infow("runner stopped")
		return nil
	}
	return err
}

// previousSlot is the stored progress, or the slot before StartSlot on a fresh database.
func (r *Runner) previousSlot(ctx context.Context) (uint64, error) {
	last, err := r.store.LastIndexedSlot(ctx)
	switch {
	case err == nil:
		return last, nil
	case errors.Is(err, storage.ErrNotFound):
		if r.startSlot > 0 {
			return r.startSlot - 1, nil
		}
		return 0, nil
	default:
		return 0, errors.Wrap(err, "read indexer progress")
	}
}

// consume ingests blocks in arrival order. A block that keeps failing is fatal.
func (r *Runner) consume(ctx context.Context, blocks <-chan *solana.Block) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case block, ok := <-blocks:
			if !ok {
				return ctx.Err()
			}
			if err := r.ingest(ctx, block); err != nil {
				return err
			}
		}
	}
}

// ingest retries one block. An attempt already under way finishes even when ctx is cancelled.
func (r *Runner) ingest(ctx context.Context, block *solana.Block) error {
	attemptCtx := context.WithoutCancel(ctx)
	attempt := 0

	_, err := retry.Do(ctx, r.blockRetry, r.log, "ingest block", func() (*BlockResult, error) {
		attempt++
		if attempt > 1 {
			observability.RecordBlockRetry()
		}
		res, err := r.pipeline.ProcessBlock(attemptCtx, block)
		if err != nil {
			r.log.Warnw("block ingestion failed", "slot", block.Slot, "attempt", attempt, "err", err)
		}
		return res, err
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.Wrapf(err, "ingest slot %d after %d attempts", block.Slot, attempt)
	}

	if latest := r.tracker.Latest(); latest > block.Slot {
		observability.UpdateSlotLag(latest - block.Slot)
	} else {
		observability.UpdateSlotLag(0)
	}
	return nil
}
