package domain

// Token is a persisted SPL mint row.
type Token struct {
	ID       int64
	Mint     string
	Name     *string // Metaplex metadata, nil when absent
	Symbol   *string
	Decimals uint8
	Supply   uint64 // raw units
}

// TokenPair is a persisted (base, quote) pair with both tokens resolved.
type TokenPair struct {
	ID    int64
	Base  Token
	Quote Token
}

// Mints returns the oriented mint pair the row was stored under.
func (p TokenPair) Mints() MintPair {
	return MintPair{Base: p.Base.Mint, Quote: p.Quote.Mint}
}
