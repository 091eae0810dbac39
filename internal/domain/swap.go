package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Swap is a persisted swap fact row. (Venue, TokenPairID, Signature) is unique.
type Swap struct {
	ID          int64
	Venue       Venue
	Slot        uint64
	AddressID   int64
	TokenPairID int64
	AmountBase  uint64          // raw units
	AmountQuote uint64          // raw units
	Price       decimal.Decimal // quote per base, UI units
	IsBuy       bool
	Timestamp   time.Time
	Signature   string

	// Bonding-curve venues only.
	VirtualBaseReserves  *uint64
	VirtualQuoteReserves *uint64
	CurveProgress        *decimal.Decimal
}

// CurveState is the latest bonding-curve snapshot for a token pair.
type CurveState struct {
	TokenPairID          int64
	Slot                 uint64
	Signature            string
	VirtualBaseReserves  uint64
	VirtualQuoteReserves uint64
	Progress             decimal.Decimal // percent, 0..100
	Price                decimal.Decimal // SOL per token
	MarketCap            decimal.Decimal // SOL
	UpdatedAt            time.Time
}
