package db

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/singleflight"
)

// ErrCacheClosed is returned by Get after Close.
var ErrCacheClosed = errors.New("partition cache closed")

// Handle is a data-access handle bound to one tenant partition. Every
// connection in Pool has search_path set to the partition only.
type Handle struct {
	Partition string
	Pool      *pgxpool.Pool
}

// PoolFactory opens a pool scoped to a partition.
type PoolFactory func(ctx context.Context, partition string) (*pgxpool.Pool, error)

// NewPartitionPoolFactory returns a PoolFactory that opens pools against
// databaseURL with search_path pinned to the partition. There is no public
// fallback, so an unqualified table name can only resolve inside the tenant.
func NewPartitionPoolFactory(databaseURL string, maxConns, minConns int32) PoolFactory {
	return func(ctx context.Context, partition string) (*pgxpool.Pool, error) {
		quoted, err := quoteIdent(partition)
		if err != nil {
			return nil, err
		}

		cfg, err := pgxpool.ParseConfig(databaseURL)
		if err != nil {
			return nil, fmt.Errorf("parse database url: %w", err)
		}
		cfg.MaxConns = maxConns
		cfg.MinConns = minConns
		cfg.ConnConfig.RuntimeParams["search_path"] = quoted
		cfg.ConnConfig.RuntimeParams["application_name"] = "phc-server:" + partition

		pool, err := pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("create partition pool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ping partition %s: %w", partition, err)
		}
		return pool, nil
	}
}

// PartitionCache maps partition names to live handles for the lifetime of
// the process. Handles are built lazily and never evicted; the number of
// open pools therefore grows with the number of distinct tenants served.
type PartitionCache struct {
	factory PoolFactory
	obs     Observer
	timeout time.Duration

	mu      sync.RWMutex
	handles map[string]*Handle
	closed  bool

	group singleflight.Group
}

// NewPartitionCache returns an empty cache that builds handles with factory.
func NewPartitionCache(factory PoolFactory, obs Observer) *PartitionCache {
	if obs == nil {
		obs = nopObserver{}
	}
	return &PartitionCache{
		factory: factory,
		obs:     obs,
		timeout: 15 * time.Second,
		handles: make(map[string]*Handle),
	}
}

// Get returns the handle for partition, building it on first use. Concurrent
// first calls for the same partition share one construction. A failed
// construction is not cached, so the next call retries.
func (c *PartitionCache) Get(ctx context.Context, partition string) (*Handle, error) {
	if !ValidPartitionName(partition) {
		return nil, fmt.Errorf("invalid partition name %q", partition)
	}

	if h, err := c.lookup(partition); h != nil || err != nil {
		return h, err
	}

	v, err, _ := c.group.Do(partition, func() (interface{}, error) {
		if h, err := c.lookup(partition); h != nil || err != nil {
			return h, err
		}

		// The construction is shared by every waiter, so it must not die
		// with the first caller's request.
		buildCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()

		pool, err := c.factory(buildCtx, partition)
		if err != nil {
			return nil, fmt.Errorf("open partition %s: %w", partition, err)
		}

		h := &Handle{Partition: partition, Pool: pool}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			closePool(pool)
			return nil, ErrCacheClosed
		}
		c.handles[partition] = h
		n := len(c.handles)
		c.mu.Unlock()

		c.obs.HandleConstructed(partition)
		c.obs.SetHandles(n)
		return h, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Handle), nil
}

func (c *PartitionCache) lookup(partition string) (*Handle, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, ErrCacheClosed
	}
	return c.handles[partition], nil
}

// Len returns the number of cached handles.
func (c *PartitionCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.handles)
}

// Partitions returns the names of every cached handle.
func (c *PartitionCache) Partitions() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.handles))
	for name := range c.handles {
		names = append(names, name)
	}
	return names
}

// Close closes every pool. It is called once at shutdown after the HTTP
// server has drained, so no request still holds a handle.
func (c *PartitionCache) Close() {
	c.mu.Lock()
	handles := c.handles
	c.handles = make(map[string]*Handle)
	c.closed = true
	c.mu.Unlock()

	for _, h := range handles {
		closePool(h.Pool)
	}
	c.obs.SetHandles(0)
}

func closePool(pool *pgxpool.Pool) {
	if pool != nil {
		pool.Close()
	}
}
