package domain

// SwapEvent is a decoded trade, tagged with the block it came from.
// Input/Output are always populated; Curve is set only for bonding-curve venues.
type SwapEvent struct {
	Venue     Venue
	Signature string // transaction signature
	Slot      uint64
	BlockTime int64  // unix seconds, 0 when the block has no time
	Wallet    string // trader public key

	InputMint    string
	InputAmount  uint64
	OutputMint   string
	OutputAmount uint64

	Curve *CurveTrade
}

// CurveTrade carries the bonding-curve specifics of a trade.
type CurveTrade struct {
	Mint                 string
	TokenAmount          uint64 // base, raw units
	SolAmount            uint64 // quote, lamports
	IsBuy                bool
	VirtualTokenReserves uint64
	VirtualSolReserves   uint64
}

// HasZeroAmount reports whether either leg of the trade is empty.
func (e *SwapEvent) HasZeroAmount() bool {
	return e.InputAmount == 0 || e.OutputAmount == 0
}

// MintPair returns the oriented (base, quote) pair, or false when the pair is unsupported.
func (e *SwapEvent) MintPair() (MintPair, bool) {
	return DetermineMints(e.InputMint, e.OutputMint)
}
