package piggyback

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/obsidianstack/piggyback/pkg/types"
)

// Store is the piggyback store contract. Implementations must be safe for
// concurrent use.
//
// Query returns the current records destined for origin, in the store's own
// order. An empty origin is valid. Finding nothing is not an error: the
// store returns an empty list and reserves errors for storage faults.
type Store interface {
	Query(ctx context.Context, origin string, settings []types.TimeSetting) ([]types.Record, error)
}

// StoreFunc adapts a function to the Store interface.
type StoreFunc func(ctx context.Context, origin string, settings []types.TimeSetting) ([]types.Record, error)

// Query calls f.
func (f StoreFunc) Query(ctx context.Context, origin string, settings []types.TimeSetting) ([]types.Record, error) {
	return f(ctx, origin, settings)
}

// Origins returns the ordered list of origins to query for a monitored host:
// hostname first, then address. An unset value stays the empty origin.
func Origins(hostname, address string) []string {
	return []string{hostname, address}
}

// queryOrigins queries every origin concurrently and flattens the results in
// origin order. Records are not deduplicated.
func queryOrigins(ctx context.Context, store Store, origins []string, settings []types.TimeSetting) ([]types.Record, error) {
	results := make([][]types.Record, len(origins))

	g, gctx := errgroup.WithContext(ctx)
	for i, origin := range origins {
		g.Go(func() error {
			recs, err := store.Query(gctx, origin, settings)
			if err != nil {
				return fmt.Errorf("piggyback: query origin %q: %w", origin, err)
			}
			results[i] = recs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var total int
	for _, recs := range results {
		total += len(recs)
	}
	out := make([]types.Record, 0, total)
	for _, recs := range results {
		out = append(out, recs...)
	}
	return out, nil
}
