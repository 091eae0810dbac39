package solana

import "context"

// ChainClient is the chain RPC boundary used by the ingestion pipeline.
type ChainClient interface {
	// GetSlot returns the current chain tip slot.
	GetSlot(ctx context.Context) (uint64, error)

	// GetBlock returns the block at slot. A skipped slot yields an error for which
	// IsSkippedSlot reports true.
	GetBlock(ctx context.Context, slot uint64) (*Block, error)
}

// AccountReader fetches raw account data.
type AccountReader interface {
	// GetAccountInfo returns nil when the account does not exist.
	GetAccountInfo(ctx context.Context, pubkey string) (*AccountInfo, error)
}
