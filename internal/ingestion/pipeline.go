// Package ingestion writes ordered blocks to storage, one transaction per block.
package ingestion

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"solana-swap-indexer/internal/decoder"
	"solana-swap-indexer/internal/dimension"
	"solana-swap-indexer/internal/domain"
	"solana-swap-indexer/internal/logger"
	"solana-swap-indexer/internal/observability"
	"solana-swap-indexer/internal/solana"
	"solana-swap-indexer/internal/storage"
	"solana-swap-indexer/internal/tokenmeta"
)

// DefaultCacheSize bounds each dimension cache.
const DefaultCacheSize = 100_000

// Dimension names used in logs, metrics and UnresolvedError.
const (
	DimensionAddress   = "address"
	DimensionToken     = "token"
	DimensionTokenPair = "token_pair"
)

// Drop reasons reported to metrics.
const (
	dropZeroAmount      = "zero_amount"
	dropUnsupportedPair = "unsupported_pair"
)

// Pipeline turns a block into one committed storage transaction.
// ProcessBlock must not be called concurrently.
type Pipeline struct {
	store    storage.Store
	decoders *decoder.Registry
	tokens   tokenmeta.Loader
	sink     storage.SwapSink
	log      *zap.SugaredLogger

	addresses  *dimension.Resolver[string, int64]
	tokenRows  *dimension.Resolver[string, domain.Token]
	tokenPairs *dimension.Resolver[domain.MintPair, domain.TokenPair]
}

// PipelineOptions contains configuration for creating a Pipeline.
type PipelineOptions struct {
	Store    storage.Store
	Decoders *decoder.Registry // Default: Jupiter and pump.fun
	// Tokens loads metadata for tokens seen for the first time. Quote assets are always known.
	Tokens    tokenmeta.Loader
	Sink      storage.SwapSink // optional, receives swaps after commit
	CacheSize int              // Default: 100000 per dimension
	Logger    *zap.SugaredLogger
}

// BlockResult summarises one ingested block.
type BlockResult struct {
	Slot        uint64
	Decoded     int
	Dropped     int
	Inserted    int
	CurveStates int
}

// NewPipeline creates a pipeline.
func NewPipeline(opts PipelineOptions) (*Pipeline, error) {
	if opts.Store == nil {
		return nil, errors.New("ingestion: store is required")
	}
	decoders := opts.Decoders
	if decoders == nil {
		decoders = decoder.NewRegistry()
	}
	loader := tokenmeta.Loader(tokenmeta.QuoteTokens)
	if opts.Tokens != nil {
		loader = tokenmeta.Chain(tokenmeta.QuoteTokens, opts.Tokens)
	}
	size := opts.CacheSize
	if size <= 0 {
		size = DefaultCacheSize
	}

	addresses, err := dimension.NewResolver[string, int64](DimensionAddress, size)
	if err != nil {
		return nil, err
	}
	tokenRows, err := dimension.NewResolver[string, domain.Token](DimensionToken, size)
	if err != nil {
		return nil, err
	}
	tokenPairs, err := dimension.NewResolver[domain.MintPair, domain.TokenPair](DimensionTokenPair, size)
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		store:      opts.Store,
		decoders:   decoders,
		tokens:     loader,
		sink:       opts.Sink,
		log:        logger.Nop(opts.Logger),
		addresses:  addresses,
		tokenRows:  tokenRows,
		tokenPairs: tokenPairs,
	}, nil
}

// pendingSwap is a decoded event with its oriented pair.
type pendingSwap struct {
	event domain.SwapEvent
	pair  domain.MintPair
}

// ProcessBlock decodes block and writes all of its effects in one transaction.
// On error nothing is persisted and the block can be processed again from scratch.
func (p *Pipeline) ProcessBlock(ctx context.Context, block *solana.Block) (*BlockResult, error) {
	start := time.Now()
	result := &BlockResult{Slot: block.Slot}

	pending := p.decode(block, result)

	tx, err := p.store.BeginBlock(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "begin block transaction")
	}
	scopes := p.newScopes(tx)

	committed := false
	defer func() {
		if committed {
			return
		}
		scopes.discard()
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil {
			p.log.Warnw("rollback failed", "slot", block.Slot, "err", rbErr)
		}
	}()

	records, err := p.write(ctx, tx, scopes, block.Slot, pending, result)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit block")
	}
	committed = true
	scopes.publish()

	p.export(ctx, block.Slot, records)

	observability.RecordBlockProcessed(block.Slot, time.Since(start))
	p.log.Debugw("block ingested",
		"slot", block.Slot,
		"transactions", len(block.Transactions),
		"decoded", result.Decoded,
		"inserted", result.Inserted,
		"curve_states", result.CurveStates,
		"elapsed", time.Since(start),
	)
	return result, nil
}

// decode runs every decoder over the block and keeps the events that can be stored.
// Venues are visited in registration order and events keep transaction order.
func (p *Pipeline) decode(block *solana.Block, result *BlockResult) []pendingSwap {
	byVenue := p.decoders.DecodeBlock(block)

	var pending []pendingSwap
	for _, d := range p.decoders.Decoders() {
		events := byVenue[d.Venue()]
		observability.RecordSwapsDecoded(d.Venue().String(), len(events))
		result.Decoded += len(events)

		zero, unsupported := 0, 0
		for _, ev := range events {
			if ev.HasZeroAmount() {
				zero++
				continue
			}
			pair, ok := ev.MintPair()
			if !ok {
				unsupported++
				continue
			}
			pending = append(pending, pendingSwap{event: ev, pair: pair})
		}
		observability.RecordSwapsDropped(dropZeroAmount, zero)
		observability.RecordSwapsDropped(dropUnsupportedPair, unsupported)
		result.Dropped += zero + unsupported
	}
	return pending
}

// write runs every statement of the block transaction except the commit.
func (p *Pipeline) write(ctx context.Context, tx storage.BlockTx, scopes *scopes, slot uint64, pending []pendingSwap, result *BlockResult) ([]storage.SwapRecord, error) {
	wallets := make([]string, 0, len(pending))
	mintPairs := make([]domain.MintPair, 0, len(pending))
	for _, ps := range pending {
		wallets = append(wallets, ps.event.Wallet)
		mintPairs = append(mintPairs, ps.pair)
	}

	addressIDs, err := scopes.addresses.Resolve(ctx, wallets)
	if err != nil {
		return nil, errors.Wrap(err, "resolve addresses")
	}
	pairs, err := scopes.tokenPairs.Resolve(ctx, mintPairs)
	if err != nil {
		return nil, errors.Wrap(err, "resolve token pairs")
	}

	swaps := make([]domain.Swap, len(pending))
	records := make(map[swapRef]storage.SwapRecord, len(pending))
	for i, ps := range pending {
		pair := pairs[ps.pair]
		swaps[i] = buildSwap(ps.event, pair, addressIDs[ps.event.Wallet])
		ref := swapRef{venue: ps.event.Venue, pairID: pair.ID, signature: ps.event.Signature}
		if _, ok := records[ref]; !ok {
			records[ref] = storage.SwapRecord{Wallet: ps.event.Wallet, Pair: ps.pair}
		}
	}

	inserted, err := tx.InsertSwaps(ctx, swaps)
	if err != nil {
		return nil, errors.Wrap(err, "insert swaps")
	}
	result.Inserted = len(inserted)

	states := curveStates(inserted)
	if err := tx.UpsertCurveStates(ctx, states); err != nil {
		return nil, errors.Wrap(err, "upsert curve states")
	}
	result.CurveStates = len(states)

	if err := tx.SetLastIndexedSlot(ctx, slot); err != nil {
		return nil, errors.Wrap(err, "advance progress")
	}

	out := make([]storage.SwapRecord, 0, len(inserted))
	for _, s := range inserted {
		rec := records[swapRef{venue: s.Venue, pairID: s.TokenPairID, signature: s.Signature}]
		rec.Swap = s
		out = append(out, rec)
		observability.RecordSwapsInserted(s.Venue.String(), 1)
	}
	observability.RecordCurveStatesUpserted(len(states))
	return out, nil
}

// export hands committed swaps to the sink. Failures never undo the commit.
func (p *Pipeline) export(ctx context.Context, slot uint64, records []storage.SwapRecord) {
	if p.sink == nil || len(records) == 0 {
		return
	}
	if err := p.sink.ExportSwaps(ctx, records); err != nil {
		observability.RecordExportError()
		p.log.Warnw("swap export failed", "slot", slot, "swaps", len(records), "err", err)
	}
}

type swapRef struct {
	venue     domain.Venue
	pairID    int64
	signature string
}

// buildSwap orients an event against its pair. Receiving the base token is a buy.
func buildSwap(ev domain.SwapEvent, pair domain.TokenPair, addressID int64) domain.Swap {
	s := domain.Swap{
		Venue:       ev.Venue,
		Slot:        ev.Slot,
		AddressID:   addressID,
		TokenPairID: pair.ID,
		Timestamp:   time.Unix(ev.BlockTime, 0).UTC(),
		Signature:   ev.Signature,
	}
	if ev.OutputMint == pair.Base.Mint {
		s.IsBuy = true
		s.AmountBase, s.AmountQuote = ev.OutputAmount, ev.InputAmount
	} else {
		s.AmountBase, s.AmountQuote = ev.InputAmount, ev.OutputAmount
	}
	s.Price = domain.UnitPrice(s.AmountBase, pair.Base.Decimals, s.AmountQuote, pair.Quote.Decimals)

	if c := ev.Curve; c != nil {
		vb, vq := c.VirtualTokenReserves, c.VirtualSolReserves
		progress := domain.CurveProgress(vb)
		s.VirtualBaseReserves = &vb
		s.VirtualQuoteReserves = &vq
		s.CurveProgress = &progress
	}
	return s
}

// curveStates returns the last curve snapshot per pair among inserted swaps, in first-seen pair order.
func curveStates(inserted []domain.Swap) []domain.CurveState {
	idx := make(map[int64]int)
	var out []domain.CurveState
	for _, s := range inserted {
		if s.VirtualBaseReserves == nil || s.VirtualQuoteReserves == nil {
			continue
		}
		price := domain.CurvePrice(*s.VirtualQuoteReserves, *s.VirtualBaseReserves)
		cs := domain.CurveState{
			TokenPairID:          s.TokenPairID,
			Slot:                 s.Slot,
			Signature:            s.Signature,
			VirtualBaseReserves:  *s.VirtualBaseReserves,
			VirtualQuoteReserves: *s.VirtualQuoteReserves,
			Progress:             domain.CurveProgress(*s.VirtualBaseReserves),
			Price:                price,
			MarketCap:            domain.CurveMarketCap(price),
			UpdatedAt:            s.Timestamp,
		}
		if i, ok := idx[s.TokenPairID]; ok {
			out[i] = cs
			continue
		}
		idx[s.TokenPairID] = len(out)
		out = append(out, cs)
	}
	return out
}
