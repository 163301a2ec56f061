// Package cache stores read models (course previews, intake lists) between
// requests. Writers delete the affected keys after the store acknowledges a write.
package cache

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	defaultMaxSize = 512
	defaultTTL     = 2 * time.Minute
)

type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, keys ...string) error
}

type entry struct {
	data     []byte
	storedAt time.Time
}

// LRU is an in-process cache; entries older than the TTL are treated as misses.
type LRU struct {
	mu    sync.Mutex
	cache *lru.Cache[string, entry]
	ttl   time.Duration
	now   func() time.Time
}

func NewLRU(size int, ttl time.Duration) (*LRU, error) {
	if size <= 0 {
		size = defaultMaxSize
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	c, err := lru.New[string, entry](size)
	if err != nil {
		return nil, err
	}
	return &LRU{cache: c, ttl: ttl, now: time.Now}, nil
}

func (c *LRU) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.cache.Get(key)
	if !ok {
		return nil, false, nil
	}
	if c.now().Sub(e.storedAt) > c.ttl {
		c.cache.Remove(key)
		return nil, false, nil
	}
	return append([]byte(nil), e.data...), true, nil
}

func (c *LRU) Set(_ context.Context, key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Add(key, entry{data: append([]byte(nil), value...), storedAt: c.now()})
	return nil
}

func (c *LRU) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		c.cache.Remove(k)
	}
	return nil
}

// Noop never stores anything.
type Noop struct{}

func (Noop) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (Noop) Set(context.Context, string, []byte) error         { return nil }
func (Noop) Delete(context.Context, ...string) error           { return nil }

var (
	_ Cache = (*LRU)(nil)
	_ Cache = (*Redis)(nil)
	_ Cache = Noop{}
)
