package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"solana-swap-indexer/internal/storage"
)

// Store implements storage.Store using PostgreSQL.
type Store struct {
	pool *Pool
}

// NewStore creates a new Store.
func NewStore(pool *Pool) *Store {
	return &Store{pool: pool}
}

// Compile-time interface check.
var _ storage.Store = (*Store)(nil)

// BeginBlock opens a READ COMMITTED transaction for one block.
func (s *Store) BeginBlock(ctx context.Context) (storage.BlockTx, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return &BlockTx{tx: tx}, nil
}

// LastIndexedSlot reads the progress singleton.
func (s *Store) LastIndexedSlot(ctx context.Context) (uint64, error) {
	start := time.Now()
	var slot int64
	err := s.pool.QueryRow(ctx, `SELECT last_indexed_slot FROM indexer_progress WHERE id = 1`).Scan(&slot)
	observe("get_progress", start, err)
	if err != nil {
		if isNotFoundError(err) {
			return 0, storage.ErrNotFound
		}
		return 0, fmt.Errorf("get last indexed slot: %w", err)
	}
	return uint64(slot), nil
}
