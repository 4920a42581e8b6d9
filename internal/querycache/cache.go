// Package querycache caches query results by (kind, argument) and invalidates
// them through a mutation→tag→query dependency graph. Stale entries are kept
// until the next read, which refetches them.
package querycache

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/fastygo/portal/domain"
	"github.com/fastygo/portal/internal/metrics"
)

const (
	defaultSize         = 1024
	defaultFetchTimeout = 10 * time.Second
)

// Key identifies a cached query result.
type Key struct {
	Kind string
	Arg  string
}

func (k Key) String() string {
	return k.Kind + "\x00" + k.Arg
}

type entry struct {
	value     any
	fetchedAt time.Time
	stale     bool
}

// Options tune a Cache.
type Options struct {
	Size   int
	MaxAge time.Duration
	// FetchTimeout bounds a shared fetch. No single caller can cancel it.
	FetchTimeout time.Duration
	Logger       *zap.Logger
	Metrics      *metrics.Metrics
}

// Cache is safe for concurrent use.
type Cache struct {
	graph        *Graph
	entries      *lru.Cache[Key, *entry]
	group        singleflight.Group
	maxAge       time.Duration
	fetchTimeout time.Duration
	logger       *zap.Logger
	metrics      *metrics.Metrics
	now          func() time.Time

	mu sync.Mutex
	// generations count invalidations per query kind, so a fetch that raced
	// with a mutation is stored already stale.
	generations map[string]uint64
}

func New(graph *Graph, opts Options) (*Cache, error) {
	if graph == nil {
		graph = NewGraph()
	}
	if opts.Size <= 0 {
		opts.Size = defaultSize
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = defaultFetchTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	entries, err := lru.New[Key, *entry](opts.Size)
	if err != nil {
		return nil, err
	}
	return &Cache{
		graph:       graph,
		entries:     entries,
		maxAge:       opts.MaxAge,
		fetchTimeout: opts.FetchTimeout,
		logger:       opts.Logger,
		metrics:      opts.Metrics,
		now:          time.Now,
		generations:  make(map[string]uint64),
	}, nil
}

// Graph returns the dependency graph the cache invalidates through.
func (c *Cache) Graph() *Graph {
	return c.graph
}

// Query returns the cached value for key, fetching it when absent or stale.
// Concurrent misses for one key share a single fetch, which keeps the values
// of ctx but not its cancellation. Each caller stops waiting when its own ctx
// is done. Errors are not cached.
func Query[T any](ctx context.Context, c *Cache, key Key, fetch func(context.Context) (T, error)) (T, error) {
	var zero T

	if v, ok := c.lookup(key); ok {
		if typed, ok := v.(T); ok {
			return typed, nil
		}
	}

	ch := c.group.DoChan(key.String(), func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout)
		defer cancel()

		gen := c.generation(key.Kind)
		v, err := fetch(fetchCtx)
		if err != nil {
			return nil, err
		}
		c.store(key, v, gen)
		return v, nil
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		typed, _ := res.Val.(T)
		return typed, nil
	}
}

// Mutate runs do and, when it succeeds, marks stale every query affected by mutation.
func Mutate[T any](ctx context.Context, c *Cache, mutation string, do func(context.Context) (T, error)) (T, error) {
	v, err := do(ctx)
	if err != nil {
		return v, err
	}
	n := c.markStale(c.graph.Affected(mutation))
	c.metrics.Invalidated(mutation, n)
	c.logger.Debug("mutation invalidated queries", zap.String("mutation", mutation), zap.Int("entries", n))
	return v, nil
}

// Invalidate marks stale every cached query providing any of tags.
func (c *Cache) Invalidate(tags ...domain.Tag) int {
	return c.markStale(c.graph.TaggedQueries(tags...))
}

// Forget drops every entry cached for arg, e.g. a token that was logged out.
func (c *Cache) Forget(arg string) int {
	var removed int
	for _, k := range c.entries.Keys() {
		if k.Arg == arg && c.entries.Remove(k) {
			removed++
		}
	}
	return removed
}

// Peek reports the cached state of key without fetching.
func (c *Cache) Peek(key Key) (value any, stale bool, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries.Peek(key)
	if !ok {
		return nil, false, false
	}
	return e.value, c.isStale(e), true
}

// Len returns the number of cached entries, fresh or stale.
func (c *Cache) Len() int {
	return c.entries.Len()
}

func (c *Cache) lookup(key Key) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries.Get(key)
	switch {
	case !ok:
		c.metrics.CacheLookup(key.Kind, "miss")
		return nil, false
	case c.isStale(e):
		c.metrics.CacheLookup(key.Kind, "stale")
		return nil, false
	}
	c.metrics.CacheLookup(key.Kind, "hit")
	return e.value, true
}

func (c *Cache) store(key Key, value any, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Add(key, &entry{
		value:     value,
		fetchedAt: c.now(),
		stale:     c.generations[key.Kind] != gen,
	})
}

func (c *Cache) generation(kind string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[kind]
}

func (c *Cache) markStale(kinds []string) int {
	if len(kinds) == 0 {
		return 0
	}
	affected := make(map[string]bool, len(kinds))

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range kinds {
		affected[k] = true
		c.generations[k]++
	}
	var n int
	for _, key := range c.entries.Keys() {
		if !affected[key.Kind] {
			continue
		}
		if e, ok := c.entries.Peek(key); ok && !e.stale {
			e.stale = true
			n++
		}
	}
	return n
}

func (c *Cache) isStale(e *entry) bool {
	if e.stale {
		return true
	}
	return c.maxAge > 0 && c.now().Sub(e.fetchedAt) > c.maxAge
}
