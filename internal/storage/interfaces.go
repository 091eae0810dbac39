package storage

import (
	"context"

	"solana-swap-indexer/internal/domain"
)

// Store opens per-block transactions and exposes the progress marker.
type Store interface {
	// BeginBlock starts the transaction that carries every effect of one block.
	BeginBlock(ctx context.Context) (BlockTx, error)

	// LastIndexedSlot returns the slot of the last committed block. Returns ErrNotFound before the first commit.
	LastIndexedSlot(ctx context.Context) (uint64, error)
}

// TokenPairKey identifies a token pair by dimension ids.
type TokenPairKey struct {
	BaseID  int64
	QuoteID int64
}

// BlockTx is a single storage transaction. Nothing is visible to other readers until Commit.
// Insert methods skip rows that already exist and return every requested row,
// including rows created concurrently by another writer.
type BlockTx interface {
	// LookupAddresses returns address ids for the known public keys.
	LookupAddresses(ctx context.Context, keys []string) (map[string]int64, error)

	// InsertAddresses creates missing addresses and returns ids for all keys.
	InsertAddresses(ctx context.Context, keys []string) (map[string]int64, error)

	// LookupTokens returns the known tokens keyed by mint.
	LookupTokens(ctx context.Context, mints []string) (map[string]domain.Token, error)

	// InsertTokens creates missing tokens and returns rows for all of them keyed by mint.
	InsertTokens(ctx context.Context, tokens []domain.Token) (map[string]domain.Token, error)

	// LookupTokenPairs returns the known pairs with both tokens populated.
	LookupTokenPairs(ctx context.Context, pairs []domain.MintPair) (map[domain.MintPair]domain.TokenPair, error)

	// InsertTokenPairs creates missing pairs and returns their ids for all keys.
	InsertTokenPairs(ctx context.Context, pairs []TokenPairKey) (map[TokenPairKey]int64, error)

	// InsertSwaps inserts swaps, skipping any whose (venue, token_pair_id, signature) already exists.
	// Returns the newly inserted swaps with ids assigned, in input order.
	InsertSwaps(ctx context.Context, swaps []domain.Swap) ([]domain.Swap, error)

	// UpsertCurveStates stores the latest curve state per pair. A state never replaces one from a later slot.
	UpsertCurveStates(ctx context.Context, states []domain.CurveState) error

	// SetLastIndexedSlot advances the progress marker.
	SetLastIndexedSlot(ctx context.Context, slot uint64) error

	Commit(ctx context.Context) error

	// Rollback discards the transaction. It is a no-op after Commit.
	Rollback(ctx context.Context) error
}

// SwapRecord is a committed swap with its dimension keys spelled out.
type SwapRecord struct {
	domain.Swap
	Wallet string
	Pair   domain.MintPair
}

// SwapSink receives swaps after their block has committed.
type SwapSink interface {
	ExportSwaps(ctx context.Context, swaps []SwapRecord) error
}
