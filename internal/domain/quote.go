package domain

// Canonical quote assets.
const (
	WrappedSOLMint = "So11111111111111111111111111111111111111112"
	USDCMint       = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	USDTMint       = "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB"
)

var quoteMints = map[string]struct{}{
	WrappedSOLMint: {},
	USDCMint:       {},
	USDTMint:       {},
}

// IsQuoteMint reports whether mint is a canonical quote asset.
func IsQuoteMint(mint string) bool {
	_, ok := quoteMints[mint]
	return ok
}

// MintPair is a trading pair oriented as (base, quote).
type MintPair struct {
	Base  string
	Quote string
}

// DetermineMints orients a and b so that the canonical quote asset is the quote side.
// The pair is supported only when exactly one side is canonical.
func DetermineMints(a, b string) (MintPair, bool) {
	aq, bq := IsQuoteMint(a), IsQuoteMint(b)
	switch {
	case a == "" || b == "" || a == b:
		return MintPair{}, false
	case aq && !bq:
		return MintPair{Base: b, Quote: a}, true
	case bq && !aq:
		return MintPair{Base: a, Quote: b}, true
	default:
		return MintPair{}, false
	}
}
