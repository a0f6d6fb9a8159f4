package crawler

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/archive-harvester/internal/metrics"
)

// PeriodIndexCache memoizes one PeriodIndex per period for the lifetime of a
// run. A failed or empty lookup is cached as an empty index and never
// retried within the run. A lookup cut short by cancellation is not cached.
type PeriodIndexCache struct {
	source  IndexSource
	logger  *zap.Logger
	entries map[PeriodKey]PeriodIndex
	fetches int
}

// NewPeriodIndexCache wraps source.
func NewPeriodIndexCache(source IndexSource, logger *zap.Logger) *PeriodIndexCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PeriodIndexCache{
		source:  source,
		logger:  logger,
		entries: make(map[PeriodKey]PeriodIndex),
	}
}

// Resolve returns the index for period, consulting the source at most once.
// The only error is the context's, when it ends during the lookup.
func (c *PeriodIndexCache) Resolve(ctx context.Context, period PeriodKey) (PeriodIndex, error) {
	if idx, ok := c.entries[period]; ok {
		return idx, nil
	}
	c.fetches++
	metrics.ObservePeriodIndex()
	idx, err := c.source.Index(ctx, period)
	if err != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil {
		c.logger.Warn("period index unavailable, treating period as empty",
			zap.String("period", period.String()),
			zap.Error(err),
		)
		idx = PeriodIndex{}
	}
	if idx == nil {
		idx = PeriodIndex{}
	}
	c.entries[period] = idx
	c.logger.Debug("period index cached",
		zap.String("period", period.String()),
		zap.Int("documents", len(idx)),
	)
	return idx, nil
}

// Fetches reports how many times the source was consulted.
func (c *PeriodIndexCache) Fetches() int {
	return c.fetches
}
