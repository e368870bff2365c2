// Package cache keeps loaded tables in a bounded, expiring store.
package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/ZanzyTHEbar/dataplan-genkit"
	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sourcegraph/conc/pool"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultSize = 4
	DefaultTTL  = 10 * time.Minute
)

// TableCache wraps a TableLoader. Tables are kept for at most ttl, the least
// recently used table is evicted beyond size entries, and concurrent misses
// for one dataset share a single fetch.
type TableCache struct {
	loader dataplan.TableLoader
	store  *expirable.LRU[string, *dataplan.Table]
	flight singleflight.Group

	size            int
	ttl             time.Duration
	warmConcurrency int
	logger          *slog.Logger
}

// Option configures a TableCache.
type Option func(*TableCache)

// WithSize bounds the number of cached tables.
func WithSize(n int) Option {
	return func(c *TableCache) {
		c.size = n
	}
}

// WithTTL sets how long a table stays cached.
func WithTTL(ttl time.Duration) Option {
	return func(c *TableCache) {
		c.ttl = ttl
	}
}

// WithWarmConcurrency bounds parallel fetches during Warm.
func WithWarmConcurrency(n int) Option {
	return func(c *TableCache) {
		c.warmConcurrency = n
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *TableCache) {
		c.logger = logger
	}
}

// NewTableCache creates a cache in front of loader.
func NewTableCache(loader dataplan.TableLoader, options ...Option) (*TableCache, error) {
	if loader == nil {
		return nil, dataplan.NewConfigurationError("table cache requires a loader", nil)
	}
	c := &TableCache{
		loader:          loader,
		size:            DefaultSize,
		ttl:             DefaultTTL,
		warmConcurrency: 4,
		logger:          slog.Default(),
	}
	for _, option := range options {
		option(c)
	}
	if c.size <= 0 {
		return nil, dataplan.NewConfigurationError("cache size must be positive", nil)
	}
	if c.ttl <= 0 {
		return nil, dataplan.NewConfigurationError("cache ttl must be positive", nil)
	}
	c.logger = c.logger.With("component", "table_cache")
	c.store = expirable.NewLRU[string, *dataplan.Table](c.size, func(key string, _ *dataplan.Table) {
		c.logger.Debug("table evicted", "dataset", key)
	}, c.ttl)
	return c, nil
}

// Get returns a cached table without fetching.
func (c *TableCache) Get(ctx context.Context, dataset string) (*dataplan.Table, error) {
	if err := errbuilder.WrapIfContextDone(ctx, nil); err != nil {
		return nil, err
	}
	table, ok := c.store.Get(dataset)
	if !ok {
		return nil, errbuilder.NotFoundErr(errbuilder.GenericErr("table not found in cache", nil))
	}
	return table, nil
}

// Set stores a table.
func (c *TableCache) Set(ctx context.Context, dataset string, table *dataplan.Table) error {
	if err := errbuilder.WrapIfContextDone(ctx, nil); err != nil {
		return err
	}
	c.store.Add(dataset, table)
	return nil
}

// Load implements dataplan.TableLoader. A cached table is returned when
// present; otherwise one fetch is made on behalf of every concurrent caller.
// Failed fetches are not cached.
func (c *TableCache) Load(ctx context.Context, dataset string) (*dataplan.Table, error) {
	if table, err := c.Get(ctx, dataset); err == nil {
		c.logger.Debug("cache hit", "dataset", dataset)
		return table, nil
	} else if ctx.Err() != nil {
		return nil, dataplan.NewCancelledError(dataplan.StageLoad, ctx.Err())
	}

	fetchCtx := context.WithoutCancel(ctx)
	ch := c.flight.DoChan(dataset, func() (interface{}, error) {
		if table, ok := c.store.Get(dataset); ok {
			return table, nil
		}
		start := time.Now()
		c.logger.Info("cache miss, fetching table", "dataset", dataset)
		table, err := c.loader.Load(fetchCtx, dataset)
		if err != nil {
			return nil, err
		}
		c.store.Add(dataset, table)
		c.logger.Info("table cached", "dataset", dataset, "rows", table.Len(), "duration", time.Since(start))
		return table, nil
	})

	select {
	case <-ctx.Done():
		return nil, dataplan.NewCancelledError(dataplan.StageLoad, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*dataplan.Table), nil
	}
}

// Invalidate drops a cached table.
func (c *TableCache) Invalidate(dataset string) {
	c.store.Remove(dataset)
}

// Len returns the number of cached tables.
func (c *TableCache) Len() int {
	return c.store.Len()
}

// Warm fetches the given datasets concurrently so later requests hit the
// cache.
func (c *TableCache) Warm(ctx context.Context, datasets ...string) error {
	p := pool.New().WithErrors().WithContext(ctx).WithMaxGoroutines(c.warmConcurrency)
	for _, ds := range datasets {
		p.Go(func(ctx context.Context) error {
			_, err := c.Load(ctx, ds)
			return err
		})
	}
	return p.Wait()
}
