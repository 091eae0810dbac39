package ingestion

import (
	"context"

	"github.com/pkg/errors"

	"solana-swap-indexer/internal/storage"
)

// Progress reports how far ingestion trails the chain tip.
// LastIndexedSlot and Lag are nil until the first block commits.
type Progress struct {
	LatestSlot      uint64  `json:"latest_slot"`
	LastIndexedSlot *uint64 `json:"last_indexed_slot"`
	Lag             *uint64 `json:"lag"`
}

// ProgressReader exposes the committed progress marker.
type ProgressReader interface {
	LastIndexedSlot(ctx context.Context) (uint64, error)
}

// ReadProgress combines the chain tip with the stored progress marker.
func ReadProgress(ctx context.Context, store ProgressReader, latest uint64) (Progress, error) {
	p := Progress{LatestSlot: latest}

	last, err := store.LastIndexedSlot(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return p, nil
	}
	if err != nil {
		return p, errors.Wrap(err, "read indexer progress")
	}

	var lag uint64
	if latest > last {
		lag = latest - last
	}
	p.LastIndexedSlot = &last
	p.Lag = &lag
	return p, nil
}
