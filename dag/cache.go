package dag

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

// CacheOption configures Cached.
type CacheOption func(*cacheConfig)

type cacheConfig struct {
	maxUses int
	ttl     time.Duration
}

// WithCacheTTL expires a cached entry ttl after it was written.
func WithCacheTTL(ttl time.Duration) CacheOption {
	return func(c *cacheConfig) { c.ttl = ttl }
}

// WithCacheMaxUses expires a cached entry after it has been served n
// times.
func WithCacheMaxUses(n int) CacheOption {
	return func(c *cacheConfig) { c.maxUses = n }
}

type cacheEntry struct {
	value     any
	writtenAt time.Time
	uses      int
}

// Cached wraps fn with a call cache keyed by the canonical JSON
// encoding of its resolved arguments: repeated calls with identical
// arguments reuse the first result instead of re-invoking fn, until
// the entry's TTL or max-use budget (if configured) expires it.
//
// Non-comparable or non-JSON-marshalable arguments fall back to a key
// built from a sorted %v listing, same as the value the entry maps to
// still comes from a real invocation either way.
func Cached(fn Callable, opts ...CacheOption) Callable {
	cfg := &cacheConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	var mu sync.Mutex
	entries := make(map[string]*cacheEntry)

	return func(ctx context.Context, args map[string]any) (any, error) {
		key := cacheKey(args)

		mu.Lock()
		if e, ok := entries[key]; ok {
			if cfg.ttl > 0 && time.Since(e.writtenAt) > cfg.ttl {
				delete(entries, key)
			} else if cfg.maxUses > 0 && e.uses >= cfg.maxUses {
				delete(entries, key)
			} else {
				e.uses++
				v := e.value
				mu.Unlock()
				return v, nil
			}
		}
		mu.Unlock()

		v, err := fn(ctx, args)
		if err != nil {
			return nil, err
		}

		mu.Lock()
		entries[key] = &cacheEntry{value: v, writtenAt: time.Now()}
		mu.Unlock()
		return v, nil
	}
}

func cacheKey(args map[string]any) string {
	b, err := json.Marshal(sortedArgs(args))
	if err == nil {
		return string(b)
	}
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	s := ""
	for _, k := range keys {
		s += fmt.Sprintf("%s=%v;", k, args[k])
	}
	return s
}

// sortedArgs renders args as a slice of [key, value] pairs sorted by
// key, so json.Marshal produces a stable encoding regardless of Go's
// randomized map iteration order.
func sortedArgs(args map[string]any) [][2]any {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([][2]any, len(keys))
	for i, k := range keys {
		out[i] = [2]any{k, args[k]}
	}
	return out
}
