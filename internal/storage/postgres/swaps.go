package postgres

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"solana-swap-indexer/internal/domain"
	"solana-swap-indexer/internal/storage"
)

type swapKey struct {
	venue     domain.Venue
	pairID    int64
	signature string
}

// InsertSwaps inserts all swaps in one statement. Rows whose (venue, token_pair_id, signature)
// already exists are skipped; the inserted ones come back with ids in input order.
func (b *BlockTx) InsertSwaps(ctx context.Context, swaps []domain.Swap) ([]domain.Swap, error) {
	if len(swaps) == 0 {
		return nil, nil
	}

	n := len(swaps)
	var (
		venues        = make([]string, n)
		slots         = make([]int64, n)
		addressIDs    = make([]int64, n)
		pairIDs       = make([]int64, n)
		amountsBase   = make([]string, n)
		amountsQuote  = make([]string, n)
		prices        = make([]string, n)
		isBuys        = make([]bool, n)
		timestamps    = make([]time.Time, n)
		signatures    = make([]string, n)
		virtualBases  = make([]*string, n)
		virtualQuotes = make([]*string, n)
		progresses    = make([]*string, n)
	)
	for i, s := range swaps {
		if s.Signature == "" || s.TokenPairID == 0 || s.AddressID == 0 {
			return nil, storage.ErrInvalidInput
		}
		venues[i] = string(s.Venue)
		slots[i] = int64(s.Slot)
		addressIDs[i] = s.AddressID
		pairIDs[i] = s.TokenPairID
		amountsBase[i] = strconv.FormatUint(s.AmountBase, 10)
		amountsQuote[i] = strconv.FormatUint(s.AmountQuote, 10)
		prices[i] = s.Price.String()
		isBuys[i] = s.IsBuy
		timestamps[i] = s.Timestamp
		signatures[i] = s.Signature
		virtualBases[i] = uintText(s.VirtualBaseReserves)
		virtualQuotes[i] = uintText(s.VirtualQuoteReserves)
		progresses[i] = decimalText(s.CurveProgress)
	}

	start := time.Now()
	rows, err := b.tx.Query(ctx, `
		INSERT INTO swaps (
			venue, slot, address_id, token_pair_id, amount_base, amount_quote, price, is_buy,
			timestamp, signature, virtual_base_reserves, virtual_quote_reserves, curve_progress
		)
		SELECT v, sl, a, p, ab::numeric, aq::numeric, pr::numeric, b,
		       ts, sig, vb::numeric, vq::numeric, cp::numeric
		FROM unnest(
			$1::text[], $2::bigint[], $3::bigint[], $4::bigint[], $5::text[], $6::text[], $7::text[],
			$8::boolean[], $9::timestamptz[], $10::text[], $11::text[], $12::text[], $13::text[]
		) AS t(v, sl, a, p, ab, aq, pr, b, ts, sig, vb, vq, cp)
		ON CONFLICT (venue, token_pair_id, signature) DO NOTHING
		RETURNING id, venue, token_pair_id, signature
	`, venues, slots, addressIDs, pairIDs, amountsBase, amountsQuote, prices, isBuys,
		timestamps, signatures, virtualBases, virtualQuotes, progresses)
	if err != nil {
		observe("insert_swaps", start, err)
		return nil, insertSwapsError(err)
	}
	defer rows.Close()

	ids := make(map[swapKey]int64)
	for rows.Next() {
		var (
			id    int64
			venue string
			key   swapKey
		)
		if err := rows.Scan(&id, &venue, &key.pairID, &key.signature); err != nil {
			return nil, fmt.Errorf("scan inserted swap: %w", err)
		}
		key.venue = domain.Venue(venue)
		ids[key] = id
	}
	err = rows.Err()
	observe("insert_swaps", start, err)
	if err != nil {
		return nil, insertSwapsError(err)
	}

	inserted := make([]domain.Swap, 0, len(ids))
	for _, s := range swaps {
		key := swapKey{venue: s.Venue, pairID: s.TokenPairID, signature: s.Signature}
		id, ok := ids[key]
		if !ok {
			continue
		}
		delete(ids, key)
		s.ID = id
		inserted = append(inserted, s)
	}
	return inserted, nil
}

// insertSwapsError maps a failed insert. pgx reports constraint violations on the
// Query call or, once the statement runs, through rows.Err.
func insertSwapsError(err error) error {
	if isForeignKeyError(err) {
		return fmt.Errorf("insert swaps: %w: unknown address or token pair", storage.ErrInvalidInput)
	}
	return fmt.Errorf("insert swaps: %w", err)
}

// UpsertCurveStates writes the latest state per pair. A stored state from a later slot is kept.
func (b *BlockTx) UpsertCurveStates(ctx context.Context, states []domain.CurveState) error {
	states = latestPerPair(states)
	if len(states) == 0 {
		return nil
	}

	n := len(states)
	var (
		pairIDs    = make([]int64, n)
		slots      = make([]int64, n)
		signatures = make([]string, n)
		bases      = make([]string, n)
		quotes     = make([]string, n)
		progresses = make([]string, n)
		prices     = make([]string, n)
		caps       = make([]string, n)
		updated    = make([]time.Time, n)
	)
	for i, cs := range states {
		if cs.TokenPairID == 0 {
			return storage.ErrInvalidInput
		}
		pairIDs[i] = cs.TokenPairID
		slots[i] = int64(cs.Slot)
		signatures[i] = cs.Signature
		bases[i] = strconv.FormatUint(cs.VirtualBaseReserves, 10)
		quotes[i] = strconv.FormatUint(cs.VirtualQuoteReserves, 10)
		progresses[i] = cs.Progress.String()
		prices[i] = cs.Price.String()
		caps[i] = cs.MarketCap.String()
		updated[i] = cs.UpdatedAt
		if updated[i].IsZero() {
			updated[i] = time.Now().UTC()
		}
	}

	start := time.Now()
	_, err := b.tx.Exec(ctx, `
		INSERT INTO current_curve_state (
			token_pair_id, slot, signature, virtual_base_reserves, virtual_quote_reserves,
			progress, price, market_cap, updated_at
		)
		SELECT p, sl, sig, vb::numeric, vq::numeric, pr::numeric, px::numeric, mc::numeric, u
		FROM unnest(
			$1::bigint[], $2::bigint[], $3::text[], $4::text[], $5::text[],
			$6::text[], $7::text[], $8::text[], $9::timestamptz[]
		) AS t(p, sl, sig, vb, vq, pr, px, mc, u)
		ON CONFLICT (token_pair_id) DO UPDATE
		SET slot = EXCLUDED.slot,
		    signature = EXCLUDED.signature,
		    virtual_base_reserves = EXCLUDED.virtual_base_reserves,
		    virtual_quote_reserves = EXCLUDED.virtual_quote_reserves,
		    progress = EXCLUDED.progress,
		    price = EXCLUDED.price,
		    market_cap = EXCLUDED.market_cap,
		    updated_at = EXCLUDED.updated_at
		WHERE current_curve_state.slot <= EXCLUDED.slot
	`, pairIDs, slots, signatures, bases, quotes, progresses, prices, caps, updated)
	observe("upsert_curve_state", start, err)
	if err != nil {
		return fmt.Errorf("upsert curve state: %w", err)
	}
	return nil
}

// latestPerPair keeps one state per pair: the later one in input order unless an earlier one has a higher slot.
// A single INSERT ... ON CONFLICT DO UPDATE cannot touch the same row twice.
func latestPerPair(states []domain.CurveState) []domain.CurveState {
	idx := make(map[int64]int, len(states))
	var out []domain.CurveState
	for _, cs := range states {
		i, ok := idx[cs.TokenPairID]
		if !ok {
			idx[cs.TokenPairID] = len(out)
			out = append(out, cs)
			continue
		}
		if out[i].Slot <= cs.Slot {
			out[i] = cs
		}
	}
	return out
}

func uintText(v *uint64) *string {
	if v == nil {
		return nil
	}
	s := strconv.FormatUint(*v, 10)
	return &s
}

func decimalText(v *decimal.Decimal) *string {
	if v == nil {
		return nil
	}
	s := v.String()
	return &s
}
