package ingestion

import (
	"context"

	"solana-swap-indexer/internal/dimension"
	"solana-swap-indexer/internal/domain"
	"solana-swap-indexer/internal/storage"
)

// scopes binds the dimension resolvers to one block transaction.
type scopes struct {
	addresses  *dimension.Scope[string, int64]
	tokens     *dimension.Scope[string, domain.Token]
	tokenPairs *dimension.Scope[domain.MintPair, domain.TokenPair]
}

func (p *Pipeline) newScopes(tx storage.BlockTx) *scopes {
	s := &scopes{}
	s.addresses = p.addresses.Scope(dimension.SourceFuncs[string, int64]{
		LookupFunc: tx.LookupAddresses,
		InsertFunc: tx.InsertAddresses,
	})
	s.tokens = p.tokenRows.Scope(dimension.SourceFuncs[string, domain.Token]{
		LookupFunc: tx.LookupTokens,
		InsertFunc: func(ctx context.Context, mints []string) (map[string]domain.Token, error) {
			return p.insertTokens(ctx, tx, mints)
		},
	})
	s.tokenPairs = p.tokenPairs.Scope(dimension.SourceFuncs[domain.MintPair, domain.TokenPair]{
		LookupFunc: tx.LookupTokenPairs,
		InsertFunc: func(ctx context.Context, pairs []domain.MintPair) (map[domain.MintPair]domain.TokenPair, error) {
			return insertTokenPairs(ctx, tx, s.tokens, pairs)
		},
	})
	return s
}

func (s *scopes) publish() {
	s.addresses.Publish()
	s.tokens.Publish()
	s.tokenPairs.Publish()
}

func (s *scopes) discard() {
	s.addresses.Discard()
	s.tokens.Discard()
	s.tokenPairs.Discard()
}

// insertTokens loads metadata for each new mint. Any load failure aborts the block.
func (p *Pipeline) insertTokens(ctx context.Context, tx storage.BlockTx, mints []string) (map[string]domain.Token, error) {
	tokens := make([]domain.Token, 0, len(mints))
	for _, mint := range mints {
		t, err := p.tokens.Load(ctx, mint)
		if err != nil {
			return nil, &storage.UnresolvedError{Dimension: DimensionToken, Keys: []string{mint}, Err: err}
		}
		t.Mint = mint
		tokens = append(tokens, *t)
	}
	return tx.InsertTokens(ctx, tokens)
}

// insertTokenPairs resolves both tokens of every pair, then creates the pairs.
func insertTokenPairs(ctx context.Context, tx storage.BlockTx, tokens *dimension.Scope[string, domain.Token], pairs []domain.MintPair) (map[domain.MintPair]domain.TokenPair, error) {
	mints := make([]string, 0, 2*len(pairs))
	for _, mp := range pairs {
		mints = append(mints, mp.Base, mp.Quote)
	}
	rows, err := tokens.Resolve(ctx, mints)
	if err != nil {
		return nil, err
	}

	keys := make([]storage.TokenPairKey, len(pairs))
	for i, mp := range pairs {
		keys[i] = storage.TokenPairKey{BaseID: rows[mp.Base].ID, QuoteID: rows[mp.Quote].ID}
	}
	ids, err := tx.InsertTokenPairs(ctx, keys)
	if err != nil {
		return nil, err
	}

	out := make(map[domain.MintPair]domain.TokenPair, len(pairs))
	for i, mp := range pairs {
		id, ok := ids[keys[i]]
		if !ok {
			continue
		}
		out[mp] = domain.TokenPair{ID: id, Base: rows[mp.Base], Quote: rows[mp.Quote]}
	}
	return out, nil
}
