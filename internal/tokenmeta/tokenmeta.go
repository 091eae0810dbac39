// Package tokenmeta loads token metadata for new Token dimension rows.
package tokenmeta

import (
	"context"
	"errors"

	"solana-swap-indexer/internal/domain"
)

// ErrNotFound is returned when a mint has no on-chain account.
var ErrNotFound = errors.New("token not found")

// Loader loads metadata for a mint. The returned Token has no ID.
type Loader interface {
	Load(ctx context.Context, mint string) (*domain.Token, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, mint string) (*domain.Token, error)

func (f LoaderFunc) Load(ctx context.Context, mint string) (*domain.Token, error) {
	return f(ctx, mint)
}

// StaticLoader serves metadata from a fixed map.
type StaticLoader map[string]domain.Token

// Load returns a copy of the stored token or ErrNotFound.
func (s StaticLoader) Load(_ context.Context, mint string) (*domain.Token, error) {
	t, ok := s[mint]
	if !ok {
		return nil, ErrNotFound
	}
	t.Mint = mint
	return &t, nil
}

func strPtr(s string) *string { return &s }

// QuoteTokens holds the canonical quote assets so they never need an RPC round trip.
var QuoteTokens = StaticLoader{
	domain.WrappedSOLMint: {Name: strPtr("Wrapped SOL"), Symbol: strPtr("SOL"), Decimals: 9},
	domain.USDCMint:       {Name: strPtr("USD Coin"), Symbol: strPtr("USDC"), Decimals: 6},
	domain.USDTMint:       {Name: strPtr("USDT"), Symbol: strPtr("USDT"), Decimals: 6},
}

// Chain tries loaders in order and returns the first result that is not ErrNotFound.
func Chain(loaders ...Loader) Loader {
	return LoaderFunc(func(ctx context.Context, mint string) (*domain.Token, error) {
		for _, l := range loaders {
			t, err := l.Load(ctx, mint)
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return t, err
		}
		return nil, ErrNotFound
	})
}
