package services

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/soaringjerry/coachdesk/internal/cache"
	"github.com/soaringjerry/coachdesk/internal/logger"
)

// readCache fronts store reads with a Cache. Failures degrade to a store read; they are
// logged, never returned.
//
// Every key carries a generation that invalidate bumps after the write is acknowledged.
// A reader takes the generation before it goes to the store and only fills the cache if
// the generation is unchanged, so a read that raced a write cannot park the old value.
// Generations are per process.
type readCache struct {
	c   cache.Cache
	log *logger.Logger

	mu   sync.Mutex
	gens map[string]uint64
}

func newReadCache(c cache.Cache, log *logger.Logger) *readCache {
	if c == nil {
		c = cache.Noop{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &readCache{c: c, log: log, gens: make(map[string]uint64)}
}

func (rc *readCache) generation(key string) uint64 {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.gens[key]
}

// get decodes a hit into dst. On a miss it returns the generation to hand to put.
func (rc *readCache) get(ctx context.Context, rec Recorder, kind, key string, dst any) (bool, uint64) {
	gen := rc.generation(key)
	b, ok, err := rc.c.Get(ctx, key)
	if err != nil {
		rc.log.Warn("cache read failed", "key", key, "error", err)
	}
	hit := ok && err == nil && json.Unmarshal(b, dst) == nil
	rec.RecordCacheLookup(kind, hit)
	return hit, gen
}

// put stores v unless key was invalidated since gen was taken.
func (rc *readCache) put(ctx context.Context, key string, gen uint64, v any) {
	if rc.generation(key) != gen {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := rc.c.Set(ctx, key, b); err != nil {
		rc.log.Warn("cache write failed", "key", key, "error", err)
		return
	}
	// an invalidation may have landed between the check and the Set
	if rc.generation(key) != gen {
		if err := rc.c.Delete(ctx, key); err != nil {
			rc.log.Warn("cache delete failed", "key", key, "error", err)
		}
	}
}

// invalidate must run after the store has acknowledged the write.
func (rc *readCache) invalidate(ctx context.Context, keys ...string) error {
	rc.mu.Lock()
	for _, k := range keys {
		rc.gens[k]++
	}
	rc.mu.Unlock()
	return rc.c.Delete(ctx, keys...)
}
