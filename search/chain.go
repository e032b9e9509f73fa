package search

import (
	"context"

	"go.uber.org/zap"
)

// Chain tries providers in order and returns the first successful answer.
// A provider is only consulted after every provider before it errored; a
// successful empty answer still wins. When all providers fail the chain
// returns an empty list and no error, so callers degrade instead of
// aborting a run.
type Chain struct {
	providers []Provider
	logger    *zap.Logger
}

// NewChain builds a fallback chain in the given priority order.
func NewChain(logger *zap.Logger, providers ...Provider) *Chain {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chain{
		providers: providers,
		logger:    logger.With(zap.String("component", "search"), zap.String("provider", "chain")),
	}
}

func (c *Chain) Name() string { return "chain" }

// Search runs the query down the chain. The returned error is always nil;
// it is part of the signature only to satisfy Provider.
func (c *Chain) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	for _, p := range c.providers {
		results, err := p.Search(ctx, query, maxResults)
		if err != nil {
			c.logger.Warn("provider failed, falling back",
				zap.String("failed_provider", p.Name()),
				zap.String("query", query),
				zap.Error(err))
			continue
		}
		return results, nil
	}
	c.logger.Warn("all providers failed", zap.String("query", query))
	return []Result{}, nil
}

var _ Provider = (*Chain)(nil)
