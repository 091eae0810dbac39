package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"solana-swap-indexer/internal/storage"
)

// SwapExporter appends committed swaps to the swaps table.
type SwapExporter struct {
	conn *Conn
}

// NewSwapExporter creates a new SwapExporter.
func NewSwapExporter(conn *Conn) *SwapExporter {
	return &SwapExporter{conn: conn}
}

// Compile-time interface check.
var _ storage.SwapSink = (*SwapExporter)(nil)

// ExportSwaps sends swaps in one batch. Re-exported rows collapse on merge.
func (e *SwapExporter) ExportSwaps(ctx context.Context, swaps []storage.SwapRecord) error {
	if len(swaps) == 0 {
		return nil
	}

	start := time.Now()
	err := e.send(ctx, swaps)
	observe("export_swaps", start, err)
	return err
}

func (e *SwapExporter) send(ctx context.Context, swaps []storage.SwapRecord) error {
	batch, err := e.conn.PrepareBatch(ctx, `
		INSERT INTO swaps (
			id, venue, slot, signature, wallet, base_mint, quote_mint, amount_base, amount_quote,
			price, is_buy, timestamp, virtual_base_reserves, virtual_quote_reserves, curve_progress
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, s := range swaps {
		var progress *decimal.Decimal
		if s.CurveProgress != nil {
			p := *s.CurveProgress
			progress = &p
		}
		err = batch.Append(
			uint64(s.ID), string(s.Venue), s.Slot, s.Signature, s.Wallet,
			s.Pair.Base, s.Pair.Quote, s.AmountBase, s.AmountQuote,
			s.Price, s.IsBuy, s.Timestamp.UTC(),
			s.VirtualBaseReserves, s.VirtualQuoteReserves, progress,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// CountBySignature returns how many rows carry signature after merges are applied.
func (e *SwapExporter) CountBySignature(ctx context.Context, signature string) (uint64, error) {
	var n uint64
	row := e.conn.QueryRow(ctx, `SELECT count() FROM swaps FINAL WHERE signature = ?`, signature)
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("count swaps: %w", err)
	}
	return n, nil
}
