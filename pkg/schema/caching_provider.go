package schema

import (
	"context"

	"github.com/fhirpath-go/fhirpath/pkg/types"
)

// CachingProvider decorates an underlying Provider with the tiered Cache
// and background Loader, giving analyzer/evaluator callers a single
// Provider that transparently benefits from caching and prefetch (spec
// §4.6 "Contract to the rest of the core").
type CachingProvider struct {
	Provider
	cache  *Cache
	loader *Loader
}

// NewCachingProvider wraps provider, starts its background loader and
// queues the essential/common warmup set. Call Close when done.
func NewCachingProvider(provider Provider, cacheOpts []Option, loaderCfg LoaderConfig) *CachingProvider {
	cache := New(cacheOpts...)
	loader := NewLoader(provider, cache, cache.Tracker(), loaderCfg)
	cp := &CachingProvider{Provider: provider, cache: cache, loader: loader}
	loader.Warmup(context.Background())
	return cp
}

// Cache exposes the underlying tiered cache so callers (and tests) can
// inspect coherence directly, e.g. after calling Invalidate.
func (c *CachingProvider) Cache() *Cache { return c.cache }

// GetType shadows the embedded Provider.GetType, routing lookups through
// the cache/loader instead of calling the underlying provider directly on
// every call.
func (c *CachingProvider) GetType(ctx context.Context, name string) (types.TypeReflectionInfo, bool, error) {
	return c.loader.FetchNow(ctx, name)
}

// Invalidate bumps the cache's global version, per spec §4.6.
func (c *CachingProvider) Invalidate() { c.cache.Invalidate() }

// Close stops the background loader and cache maintenance goroutines.
func (c *CachingProvider) Close() {
	c.loader.Shutdown()
	c.cache.Close()
}
