// Package memory provides an in-memory storage.Store for tests and local runs.
package memory

import (
	"context"
	"maps"
	"sort"
	"sync"

	"solana-swap-indexer/internal/domain"
	"solana-swap-indexer/internal/storage"
)

type swapKey struct {
	venue     domain.Venue
	pairID    int64
	signature string
}

// state is one consistent snapshot of every table.
type state struct {
	addresses map[string]int64
	tokens    map[string]domain.Token
	pairs     map[storage.TokenPairKey]int64
	swaps     []domain.Swap
	swapKeys  map[swapKey]struct{}
	curves    map[int64]domain.CurveState
	progress  *uint64

	nextAddressID int64
	nextTokenID   int64
	nextPairID    int64
	nextSwapID    int64
}

func newState() *state {
	return &state{
		addresses: make(map[string]int64),
		tokens:    make(map[string]domain.Token),
		pairs:     make(map[storage.TokenPairKey]int64),
		swapKeys:  make(map[swapKey]struct{}),
		curves:    make(map[int64]domain.CurveState),
	}
}

func (s *state) clone() *state {
	c := *s
	c.addresses = maps.Clone(s.addresses)
	c.tokens = maps.Clone(s.tokens)
	c.pairs = maps.Clone(s.pairs)
	c.swaps = append([]domain.Swap(nil), s.swaps...)
	c.swapKeys = maps.Clone(s.swapKeys)
	c.curves = maps.Clone(s.curves)
	if s.progress != nil {
		p := *s.progress
		c.progress = &p
	}
	return &c
}

// Store is an in-memory implementation of storage.Store.
// Block transactions are serialized and see a private snapshot until Commit.
type Store struct {
	writer sync.Mutex // held for the lifetime of a BlockTx

	mu     sync.RWMutex
	data   *state
	faults map[string]error
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{data: newState(), faults: make(map[string]error)}
}

// Compile-time interface check.
var _ storage.Store = (*Store)(nil)

// FailNext makes the next call to op return err. Ops are named after BlockTx methods,
// e.g. "InsertSwaps" or "Commit".
func (s *Store) FailNext(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[op] = err
}

func (s *Store) fault(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.faults[op]
	delete(s.faults, op)
	return err
}

// BeginBlock starts a transaction. It blocks while another transaction is open.
func (s *Store) BeginBlock(ctx context.Context) (storage.BlockTx, error) {
	if err := s.fault("BeginBlock"); err != nil {
		return nil, err
	}
	s.writer.Lock()
	if err := ctx.Err(); err != nil {
		s.writer.Unlock()
		return nil, err
	}

	s.mu.RLock()
	snapshot := s.data.clone()
	s.mu.RUnlock()

	return &blockTx{store: s, data: snapshot}, nil
}

// LastIndexedSlot returns the committed progress marker.
func (s *Store) LastIndexedSlot(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.data.progress == nil {
		return 0, storage.ErrNotFound
	}
	return *s.data.progress, nil
}

// Swaps returns committed swaps ordered by id.
func (s *Store) Swaps() []domain.Swap {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]domain.Swap(nil), s.data.swaps...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// CurveState returns the committed curve state for a pair.
func (s *Store) CurveState(tokenPairID int64) (domain.CurveState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cs, ok := s.data.curves[tokenPairID]
	return cs, ok
}

// TokenPairID returns the committed id of the (base, quote) pair.
func (s *Store) TokenPairID(pair domain.MintPair) (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	base, ok := s.data.tokens[pair.Base]
	if !ok {
		return 0, false
	}
	quote, ok := s.data.tokens[pair.Quote]
	if !ok {
		return 0, false
	}
	id, ok := s.data.pairs[storage.TokenPairKey{BaseID: base.ID, QuoteID: quote.ID}]
	return id, ok
}

// AddressCount returns the number of committed addresses.
func (s *Store) AddressCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data.addresses)
}

// SetLastIndexedSlot seeds the progress marker outside a block transaction.
func (s *Store) SetLastIndexedSlot(slot uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.progress = &slot
}
