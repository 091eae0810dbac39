package scheduler

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Item is one gathered result.
type Item[K cmp.Ordered, V any] struct {
	Key   K
	Value V
}

// Gather runs fetch for every key with at most limit calls in flight and returns
// the results sorted by key, independent of completion order. The first error
// cancels the remaining calls and is returned.
func Gather[K cmp.Ordered, V any](ctx context.Context, keys []K, limit int, fetch func(context.Context, K) (V, error)) ([]Item[K, V], error) {
	if limit <= 0 {
		limit = 1
	}
	sem := semaphore.NewWeighted(int64(limit))
	g, gctx := errgroup.WithContext(ctx)

	var mu sync.Mutex
	results := make(map[K]V, len(keys))

	for _, key := range keys {
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			v, err := fetch(gctx, key)
			if err != nil {
				return err
			}
			mu.Lock()
			results[key] = v
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ordered := make([]K, 0, len(results))
	for k := range results {
		ordered = append(ordered, k)
	}
	slices.Sort(ordered)

	items := make([]Item[K, V], len(ordered))
	for i, k := range ordered {
		items[i] = Item[K, V]{Key: k, Value: results[k]}
	}
	return items, nil
}
