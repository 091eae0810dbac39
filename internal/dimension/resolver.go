// Package dimension implements resolve-or-populate lookups for dimension tables
// fronted by a shared LRU cache.
package dimension

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"solana-swap-indexer/internal/observability"
	"solana-swap-indexer/internal/storage"
)

// Source reads and creates dimension rows inside one storage transaction.
type Source[K comparable, V any] interface {
	// Lookup returns rows for the keys that exist.
	Lookup(ctx context.Context, keys []K) (map[K]V, error)
	// Insert creates rows for keys, tolerating rows created concurrently, and returns the rows it could resolve.
	Insert(ctx context.Context, keys []K) (map[K]V, error)
}

// SourceFuncs adapts a pair of functions to Source.
type SourceFuncs[K comparable, V any] struct {
	LookupFunc func(ctx context.Context, keys []K) (map[K]V, error)
	InsertFunc func(ctx context.Context, keys []K) (map[K]V, error)
}

func (s SourceFuncs[K, V]) Lookup(ctx context.Context, keys []K) (map[K]V, error) {
	return s.LookupFunc(ctx, keys)
}

func (s SourceFuncs[K, V]) Insert(ctx context.Context, keys []K) (map[K]V, error) {
	return s.InsertFunc(ctx, keys)
}

// Resolver owns the cache of one dimension. It is safe for concurrent use.
type Resolver[K comparable, V any] struct {
	name  string
	cache *lru.Cache[K, V]
}

// NewResolver creates a resolver caching up to size rows.
func NewResolver[K comparable, V any](name string, size int) (*Resolver[K, V], error) {
	cache, err := lru.New[K, V](size)
	if err != nil {
		return nil, fmt.Errorf("create %s cache: %w", name, err)
	}
	return &Resolver[K, V]{name: name, cache: cache}, nil
}

// Name returns the dimension name.
func (r *Resolver[K, V]) Name() string {
	return r.name
}

// Cached returns the cached row for key.
func (r *Resolver[K, V]) Cached(key K) (V, bool) {
	return r.cache.Get(key)
}

// Len returns the number of cached rows.
func (r *Resolver[K, V]) Len() int {
	return r.cache.Len()
}

// Purge empties the cache.
func (r *Resolver[K, V]) Purge() {
	r.cache.Purge()
}

// Scope starts a resolution scope bound to one storage transaction.
// Rows resolved through the scope reach the shared cache only on Publish.
func (r *Resolver[K, V]) Scope(src Source[K, V]) *Scope[K, V] {
	return &Scope[K, V]{r: r, src: src, pending: make(map[K]V)}
}

// Scope resolves keys within one transaction.
type Scope[K comparable, V any] struct {
	r       *Resolver[K, V]
	src     Source[K, V]
	pending map[K]V
}

// Resolve returns a row for every key. Keys are looked up in the cache, then in
// storage, and the remainder are inserted. Keys that still have no row produce a
// *storage.UnresolvedError.
func (s *Scope[K, V]) Resolve(ctx context.Context, keys []K) (map[K]V, error) {
	out := make(map[K]V, len(keys))
	seen := make(map[K]struct{}, len(keys))
	var misses []K
	for _, k := range keys {
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		if v, ok := s.pending[k]; ok {
			out[k] = v
			continue
		}
		if v, ok := s.r.cache.Get(k); ok {
			out[k] = v
			continue
		}
		misses = append(misses, k)
	}
	observability.RecordCacheLookup(s.r.name, len(out), len(misses))
	if len(misses) == 0 {
		return out, nil
	}

	found, err := s.src.Lookup(ctx, misses)
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", s.r.name, err)
	}
	missing := s.collect(out, found, misses)
	if len(missing) == 0 {
		return out, nil
	}

	created, err := s.src.Insert(ctx, missing)
	if err != nil {
		return nil, &storage.UnresolvedError{Dimension: s.r.name, Keys: keyStrings(missing), Err: err}
	}
	if rest := s.collect(out, created, missing); len(rest) > 0 {
		return nil, &storage.UnresolvedError{Dimension: s.r.name, Keys: keyStrings(rest)}
	}
	return out, nil
}

// collect copies rows for keys from src into out and pending, returning the keys src lacked.
func (s *Scope[K, V]) collect(out, src map[K]V, keys []K) []K {
	var missing []K
	for _, k := range keys {
		v, ok := src[k]
		if !ok {
			missing = append(missing, k)
			continue
		}
		out[k] = v
		s.pending[k] = v
	}
	return missing
}

// Publish adds every row resolved from storage to the shared cache.
// Call it only after the transaction commits.
func (s *Scope[K, V]) Publish() {
	for k, v := range s.pending {
		s.r.cache.Add(k, v)
	}
	clear(s.pending)
}

// Discard drops the rows resolved from storage.
func (s *Scope[K, V]) Discard() {
	clear(s.pending)
}

func keyStrings[K comparable](keys []K) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = fmt.Sprint(k)
	}
	return out
}
