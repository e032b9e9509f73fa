package search

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Fanout runs several queries against one provider concurrently and
// returns the answers indexed by issuance order, so downstream merging
// stays deterministic regardless of completion order. parallelism <= 0
// means unbounded.
func Fanout(ctx context.Context, p Provider, queries []string, maxResults, parallelism int) ([][]Result, error) {
	out := make([][]Result, len(queries))
	g, ctx := errgroup.WithContext(ctx)
	if parallelism > 0 {
		g.SetLimit(parallelism)
	}
	for i, query := range queries {
		g.Go(func() error {
			results, err := p.Search(ctx, query, maxResults)
			if err != nil {
				return err
			}
			out[i] = results
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
