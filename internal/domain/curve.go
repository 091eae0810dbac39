package domain

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// Bonding-curve constants for pump.fun style launches.
const (
	CurveTokenDecimals = 6
	CurveSolDecimals   = 9
)

var (
	// virtual token reserves left when the curve completes
	curveReservesFloor = decimal.NewFromInt(279_900_000_000_000)
	// tokens sold over the life of the curve
	curveSellableTokens = decimal.NewFromInt(793_100_000_000_000)
	curveTotalSupply    = decimal.NewFromInt(1_000_000_000)

	hundred = decimal.NewFromInt(100)
)

// DecimalFromUint64 converts a raw on-chain amount.
func DecimalFromUint64(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}

// CurveProgress returns the completion percentage derived from virtual token reserves, clamped to [0, 100].
func CurveProgress(virtualTokenReserves uint64) decimal.Decimal {
	left := DecimalFromUint64(virtualTokenReserves).Sub(curveReservesFloor)
	progress := hundred.Sub(left.Mul(hundred).Div(curveSellableTokens))
	switch {
	case progress.LessThan(decimal.Zero):
		return decimal.Zero
	case progress.GreaterThan(hundred):
		return hundred
	default:
		return progress.Round(4)
	}
}

// CurvePrice returns the SOL price of one token implied by virtual reserves.
func CurvePrice(virtualSolReserves, virtualTokenReserves uint64) decimal.Decimal {
	if virtualTokenReserves == 0 {
		return decimal.Zero
	}
	sol := DecimalFromUint64(virtualSolReserves).Shift(-CurveSolDecimals)
	tokens := DecimalFromUint64(virtualTokenReserves).Shift(-CurveTokenDecimals)
	return sol.DivRound(tokens, 18)
}

// CurveMarketCap returns the SOL market cap for the fixed launch supply.
func CurveMarketCap(price decimal.Decimal) decimal.Decimal {
	return price.Mul(curveTotalSupply)
}

// UnitPrice returns quote per base in UI units, or zero when base is empty.
func UnitPrice(amountBase uint64, baseDecimals uint8, amountQuote uint64, quoteDecimals uint8) decimal.Decimal {
	if amountBase == 0 {
		return decimal.Zero
	}
	base := DecimalFromUint64(amountBase).Shift(-int32(baseDecimals))
	quote := DecimalFromUint64(amountQuote).Shift(-int32(quoteDecimals))
	return quote.DivRound(base, 18)
}
