package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"

	"solana-swap-indexer/internal/domain"
	"solana-swap-indexer/internal/storage"
)

// BlockTx implements storage.BlockTx on a pgx transaction.
type BlockTx struct {
	tx pgx.Tx
}

// Compile-time interface check.
var _ storage.BlockTx = (*BlockTx)(nil)

// LookupAddresses returns ids of known addresses.
func (b *BlockTx) LookupAddresses(ctx context.Context, keys []string) (map[string]int64, error) {
	out := make(map[string]int64, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	start := time.Now()
	rows, err := b.tx.Query(ctx, `SELECT address, id FROM addresses WHERE address = ANY($1)`, keys)
	if err != nil {
		observe("lookup_addresses", start, err)
		return nil, fmt.Errorf("lookup addresses: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			addr string
			id   int64
		)
		if err := rows.Scan(&addr, &id); err != nil {
			return nil, fmt.Errorf("scan address row: %w", err)
		}
		out[addr] = id
	}
	err = rows.Err()
	observe("lookup_addresses", start, err)
	if err != nil {
		return nil, fmt.Errorf("iterate address rows: %w", err)
	}
	return out, nil
}

// InsertAddresses creates missing addresses and returns ids for all keys.
func (b *BlockTx) InsertAddresses(ctx context.Context, keys []string) (map[string]int64, error) {
	if len(keys) == 0 {
		return map[string]int64{}, nil
	}
	for _, k := range keys {
		if k == "" {
			return nil, storage.ErrInvalidInput
		}
	}

	start := time.Now()
	_, err := b.tx.Exec(ctx, `
		INSERT INTO addresses (address)
		SELECT unnest($1::text[])
		ON CONFLICT (address) DO NOTHING
	`, keys)
	observe("insert_addresses", start, err)
	if err != nil {
		return nil, fmt.Errorf("insert addresses: %w", err)
	}
	return b.LookupAddresses(ctx, keys)
}

const tokenColumns = `id, mint, name, symbol, decimals, supply::text`

// LookupTokens returns known tokens keyed by mint.
func (b *BlockTx) LookupTokens(ctx context.Context, mints []string) (map[string]domain.Token, error) {
	out := make(map[string]domain.Token, len(mints))
	if len(mints) == 0 {
		return out, nil
	}

	start := time.Now()
	rows, err := b.tx.Query(ctx, `SELECT `+tokenColumns+` FROM tokens WHERE mint = ANY($1)`, mints)
	if err != nil {
		observe("lookup_tokens", start, err)
		return nil, fmt.Errorf("lookup tokens: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		out[t.Mint] = t
	}
	err = rows.Err()
	observe("lookup_tokens", start, err)
	if err != nil {
		return nil, fmt.Errorf("iterate token rows: %w", err)
	}
	return out, nil
}

// InsertTokens creates missing tokens. Existing rows keep their metadata.
func (b *BlockTx) InsertTokens(ctx context.Context, tokens []domain.Token) (map[string]domain.Token, error) {
	if len(tokens) == 0 {
		return map[string]domain.Token{}, nil
	}

	mints := make([]string, len(tokens))
	names := make([]*string, len(tokens))
	symbols := make([]*string, len(tokens))
	decimals := make([]int16, len(tokens))
	supplies := make([]string, len(tokens))
	for i, t := range tokens {
		if t.Mint == "" {
			return nil, storage.ErrInvalidInput
		}
		mints[i] = t.Mint
		names[i] = t.Name
		symbols[i] = t.Symbol
		decimals[i] = int16(t.Decimals)
		supplies[i] = strconv.FormatUint(t.Supply, 10)
	}

	start := time.Now()
	_, err := b.tx.Exec(ctx, `
		INSERT INTO tokens (mint, name, symbol, decimals, supply)
		SELECT m, n, s, d, sup::numeric
		FROM unnest($1::text[], $2::text[], $3::text[], $4::smallint[], $5::text[]) AS t(m, n, s, d, sup)
		ON CONFLICT (mint) DO NOTHING
	`, mints, names, symbols, decimals, supplies)
	observe("insert_tokens", start, err)
	if err != nil {
		return nil, fmt.Errorf("insert tokens: %w", err)
	}
	return b.LookupTokens(ctx, mints)
}

// LookupTokenPairs returns known pairs with both tokens populated.
func (b *BlockTx) LookupTokenPairs(ctx context.Context, pairs []domain.MintPair) (map[domain.MintPair]domain.TokenPair, error) {
	out := make(map[domain.MintPair]domain.TokenPair, len(pairs))
	if len(pairs) == 0 {
		return out, nil
	}

	bases := make([]string, len(pairs))
	quotes := make([]string, len(pairs))
	for i, p := range pairs {
		bases[i] = p.Base
		quotes[i] = p.Quote
	}

	start := time.Now()
	rows, err := b.tx.Query(ctx, `
		SELECT tp.id,
		       b.id, b.mint, b.name, b.symbol, b.decimals, b.supply::text,
		       q.id, q.mint, q.name, q.symbol, q.decimals, q.supply::text
		FROM unnest($1::text[], $2::text[]) AS k(base, quote)
		JOIN tokens b ON b.mint = k.base
		JOIN tokens q ON q.mint = k.quote
		JOIN token_pairs tp ON tp.base_token_id = b.id AND tp.quote_token_id = q.id
	`, bases, quotes)
	if err != nil {
		observe("lookup_token_pairs", start, err)
		return nil, fmt.Errorf("lookup token pairs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			pair                    domain.TokenPair
			baseDec, quoteDec       int16
			baseSupply, quoteSupply string
		)
		err := rows.Scan(&pair.ID,
			&pair.Base.ID, &pair.Base.Mint, &pair.Base.Name, &pair.Base.Symbol, &baseDec, &baseSupply,
			&pair.Quote.ID, &pair.Quote.Mint, &pair.Quote.Name, &pair.Quote.Symbol, &quoteDec, &quoteSupply,
		)
		if err != nil {
			return nil, fmt.Errorf("scan token pair row: %w", err)
		}
		pair.Base.Decimals = uint8(baseDec)
		pair.Quote.Decimals = uint8(quoteDec)
		if pair.Base.Supply, err = parseUint(baseSupply); err != nil {
			return nil, err
		}
		if pair.Quote.Supply, err = parseUint(quoteSupply); err != nil {
			return nil, err
		}
		out[pair.Mints()] = pair
	}
	err = rows.Err()
	observe("lookup_token_pairs", start, err)
	if err != nil {
		return nil, fmt.Errorf("iterate token pair rows: %w", err)
	}
	return out, nil
}

// InsertTokenPairs creates missing pairs and returns ids for all keys.
func (b *BlockTx) InsertTokenPairs(ctx context.Context, pairs []storage.TokenPairKey) (map[storage.TokenPairKey]int64, error) {
	out := make(map[storage.TokenPairKey]int64, len(pairs))
	if len(pairs) == 0 {
		return out, nil
	}

	bases := make([]int64, len(pairs))
	quotes := make([]int64, len(pairs))
	for i, p := range pairs {
		if p.BaseID == 0 || p.QuoteID == 0 || p.BaseID == p.QuoteID {
			return nil, storage.ErrInvalidInput
		}
		bases[i] = p.BaseID
		quotes[i] = p.QuoteID
	}

	start := time.Now()
	_, err := b.tx.Exec(ctx, `
		INSERT INTO token_pairs (base_token_id, quote_token_id)
		SELECT * FROM unnest($1::bigint[], $2::bigint[])
		ON CONFLICT (base_token_id, quote_token_id) DO NOTHING
	`, bases, quotes)
	if err != nil {
		observe("insert_token_pairs", start, err)
		if isForeignKeyError(err) {
			return nil, fmt.Errorf("insert token pairs: %w: unknown token id", storage.ErrInvalidInput)
		}
		return nil, fmt.Errorf("insert token pairs: %w", err)
	}

	rows, err := b.tx.Query(ctx, `
		SELECT tp.id, tp.base_token_id, tp.quote_token_id
		FROM token_pairs tp
		JOIN unnest($1::bigint[], $2::bigint[]) AS k(base, quote)
		  ON tp.base_token_id = k.base AND tp.quote_token_id = k.quote
	`, bases, quotes)
	if err != nil {
		observe("insert_token_pairs", start, err)
		return nil, fmt.Errorf("select token pairs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id  int64
			key storage.TokenPairKey
		)
		if err := rows.Scan(&id, &key.BaseID, &key.QuoteID); err != nil {
			return nil, fmt.Errorf("scan token pair id: %w", err)
		}
		out[key] = id
	}
	err = rows.Err()
	observe("insert_token_pairs", start, err)
	if err != nil {
		return nil, fmt.Errorf("iterate token pair ids: %w", err)
	}
	return out, nil
}

// SetLastIndexedSlot upserts the progress singleton.
func (b *BlockTx) SetLastIndexedSlot(ctx context.Context, slot uint64) error {
	start := time.Now()
	_, err := b.tx.Exec(ctx, `
		INSERT INTO indexer_progress (id, last_indexed_slot, updated_at)
		VALUES (1, $1, NOW())
		ON CONFLICT (id) DO UPDATE
		SET last_indexed_slot = EXCLUDED.last_indexed_slot,
		    updated_at = NOW()
	`, int64(slot))
	observe("set_progress", start, err)
	if err != nil {
		return fmt.Errorf("set last indexed slot: %w", err)
	}
	return nil
}

// Commit commits the transaction.
func (b *BlockTx) Commit(ctx context.Context) error {
	start := time.Now()
	err := b.tx.Commit(ctx)
	observe("commit", start, err)
	if err != nil {
		if errors.Is(err, pgx.ErrTxClosed) {
			return storage.ErrTxDone
		}
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Rollback aborts the transaction. Rolling back a finished transaction is a no-op.
func (b *BlockTx) Rollback(ctx context.Context) error {
	err := b.tx.Rollback(ctx)
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("rollback tx: %w", err)
	}
	return nil
}

func scanToken(rows pgx.Rows) (domain.Token, error) {
	var (
		t      domain.Token
		dec    int16
		supply string
	)
	if err := rows.Scan(&t.ID, &t.Mint, &t.Name, &t.Symbol, &dec, &supply); err != nil {
		return t, fmt.Errorf("scan token row: %w", err)
	}
	t.Decimals = uint8(dec)
	var err error
	t.Supply, err = parseUint(supply)
	return t, err
}

func parseUint(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse numeric %q: %w", s, err)
	}
	return v, nil
}
