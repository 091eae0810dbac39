package memory

import (
	"context"
	"time"

	"solana-swap-indexer/internal/domain"
	"solana-swap-indexer/internal/storage"
)

type blockTx struct {
	store *Store
	data  *state
	done  bool
}

func (tx *blockTx) check(op string) error {
	if tx.done {
		return storage.ErrTxDone
	}
	return tx.store.fault(op)
}

func (tx *blockTx) LookupAddresses(_ context.Context, keys []string) (map[string]int64, error) {
	if err := tx.check("LookupAddresses"); err != nil {
		return nil, err
	}
	out := make(map[string]int64)
	for _, k := range keys {
		if id, ok := tx.data.addresses[k]; ok {
			out[k] = id
		}
	}
	return out, nil
}

func (tx *blockTx) InsertAddresses(_ context.Context, keys []string) (map[string]int64, error) {
	if err := tx.check("InsertAddresses"); err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(keys))
	for _, k := range keys {
		if k == "" {
			return nil, storage.ErrInvalidInput
		}
		id, ok := tx.data.addresses[k]
		if !ok {
			tx.data.nextAddressID++
			id = tx.data.nextAddressID
			tx.data.addresses[k] = id
		}
		out[k] = id
	}
	return out, nil
}

func (tx *blockTx) LookupTokens(_ context.Context, mints []string) (map[string]domain.Token, error) {
	if err := tx.check("LookupTokens"); err != nil {
		return nil, err
	}
	out := make(map[string]domain.Token)
	for _, m := range mints {
		if t, ok := tx.data.tokens[m]; ok {
			out[m] = t
		}
	}
	return out, nil
}

func (tx *blockTx) InsertTokens(_ context.Context, tokens []domain.Token) (map[string]domain.Token, error) {
	if err := tx.check("InsertTokens"); err != nil {
		return nil, err
	}
	out := make(map[string]domain.Token, len(tokens))
	for _, t := range tokens {
		if t.Mint == "" {
			return nil, storage.ErrInvalidInput
		}
		existing, ok := tx.data.tokens[t.Mint]
		if !ok {
			tx.data.nextTokenID++
			t.ID = tx.data.nextTokenID
			tx.data.tokens[t.Mint] = t
			existing = t
		}
		out[t.Mint] = existing
	}
	return out, nil
}

func (tx *blockTx) LookupTokenPairs(_ context.Context, pairs []domain.MintPair) (map[domain.MintPair]domain.TokenPair, error) {
	if err := tx.check("LookupTokenPairs"); err != nil {
		return nil, err
	}
	out := make(map[domain.MintPair]domain.TokenPair)
	for _, p := range pairs {
		base, ok := tx.data.tokens[p.Base]
		if !ok {
			continue
		}
		quote, ok := tx.data.tokens[p.Quote]
		if !ok {
			continue
		}
		id, ok := tx.data.pairs[storage.TokenPairKey{BaseID: base.ID, QuoteID: quote.ID}]
		if !ok {
			continue
		}
		out[p] = domain.TokenPair{ID: id, Base: base, Quote: quote}
	}
	return out, nil
}

func (tx *blockTx) InsertTokenPairs(_ context.Context, pairs []storage.TokenPairKey) (map[storage.TokenPairKey]int64, error) {
	if err := tx.check("InsertTokenPairs"); err != nil {
		return nil, err
	}
	out := make(map[storage.TokenPairKey]int64, len(pairs))
	for _, k := range pairs {
		if k.BaseID == 0 || k.QuoteID == 0 || k.BaseID == k.QuoteID {
			return nil, storage.ErrInvalidInput
		}
		id, ok := tx.data.pairs[k]
		if !ok {
			tx.data.nextPairID++
			id = tx.data.nextPairID
			tx.data.pairs[k] = id
		}
		out[k] = id
	}
	return out, nil
}

func (tx *blockTx) InsertSwaps(_ context.Context, swaps []domain.Swap) ([]domain.Swap, error) {
	if err := tx.check("InsertSwaps"); err != nil {
		return nil, err
	}
	var inserted []domain.Swap
	for _, s := range swaps {
		if s.Signature == "" || s.TokenPairID == 0 {
			return nil, storage.ErrInvalidInput
		}
		k := swapKey{venue: s.Venue, pairID: s.TokenPairID, signature: s.Signature}
		if _, dup := tx.data.swapKeys[k]; dup {
			continue
		}
		tx.data.nextSwapID++
		s.ID = tx.data.nextSwapID
		tx.data.swapKeys[k] = struct{}{}
		tx.data.swaps = append(tx.data.swaps, s)
		inserted = append(inserted, s)
	}
	return inserted, nil
}

func (tx *blockTx) UpsertCurveStates(_ context.Context, states []domain.CurveState) error {
	if err := tx.check("UpsertCurveStates"); err != nil {
		return err
	}
	for _, cs := range states {
		if cs.TokenPairID == 0 {
			return storage.ErrInvalidInput
		}
		if cur, ok := tx.data.curves[cs.TokenPairID]; ok && cur.Slot > cs.Slot {
			continue
		}
		if cs.UpdatedAt.IsZero() {
			cs.UpdatedAt = time.Now().UTC()
		}
		tx.data.curves[cs.TokenPairID] = cs
	}
	return nil
}

func (tx *blockTx) SetLastIndexedSlot(_ context.Context, slot uint64) error {
	if err := tx.check("SetLastIndexedSlot"); err != nil {
		return err
	}
	tx.data.progress = &slot
	return nil
}

func (tx *blockTx) Commit(_ context.Context) error {
	if tx.done {
		return storage.ErrTxDone
	}
	if err := tx.store.fault("Commit"); err != nil {
		tx.finish()
		return err
	}
	tx.store.mu.Lock()
	tx.store.data = tx.data
	tx.store.mu.Unlock()
	tx.finish()
	return nil
}

func (tx *blockTx) Rollback(_ context.Context) error {
	if tx.done {
		return nil
	}
	tx.finish()
	return nil
}

func (tx *blockTx) finish() {
	tx.done = true
	tx.data = nil
	tx.store.writer.Unlock()
}
