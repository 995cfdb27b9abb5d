package schema

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fhirpath-go/fhirpath/pkg/types"
)

// entry is what every tier actually stores: the reflection payload plus the
// cache-global version it was stored under (for invalidation) and access
// bookkeeping used by promotion/demotion.
type entry struct {
	info    types.TypeReflectionInfo
	version uint64

	accessCount atomic.Int64
	lastAccess  atomic.Int64 // UnixNano
	storedAt    int64        // UnixNano, for cold-tier TTL
}

func newEntry(info types.TypeReflectionInfo, version uint64) *entry {
	e := &entry{info: info, version: version, storedAt: time.Now().UnixNano()}
	e.lastAccess.Store(e.storedAt)
	return e
}

// CacheConfig configures tier sizes and policy knobs (spec §4.6).
type CacheConfig struct {
	HotCapacity  int
	WarmCapacity int
	ColdCapacity int
	ColdTTL      time.Duration

	PromotionThreshold int64 // warm access count before promotion to hot
	MaintenanceInterval time.Duration
}

// DefaultCacheConfig matches the magnitudes named in spec §4.6.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		HotCapacity:         100,
		WarmCapacity:        500,
		ColdCapacity:        4000,
		ColdTTL:             time.Hour,
		PromotionThreshold:  10,
		MaintenanceInterval: 60 * time.Second,
	}
}

// Option mutates a CacheConfig; used by New.
type Option func(*CacheConfig)

func WithHotCapacity(n int) Option  { return func(c *CacheConfig) { c.HotCapacity = n } }
func WithWarmCapacity(n int) Option { return func(c *CacheConfig) { c.WarmCapacity = n } }
func WithColdCapacity(n int) Option { return func(c *CacheConfig) { c.ColdCapacity = n } }
func WithColdTTL(d time.Duration) Option { return func(c *CacheConfig) { c.ColdTTL = d } }
func WithPromotionThreshold(n int64) Option {
	return func(c *CacheConfig) { c.PromotionThreshold = n }
}

// hotTable is the immutable snapshot swapped in atomically by the hot tier.
// Readers never take a lock; writers build a new map and CAS the pointer.
type hotTable struct {
	m map[string]*entry
}

// Cache is the tiered, concurrent schema-reflection cache described in spec
// §4.6: a lock-free hot tier for the most-accessed ~100 types, a concurrent
// map warm tier for the next ~500, and a TTL'd LRU cold tier behind that.
//
// Cache.Get is synchronous and best-effort (it never calls the underlying
// Provider); Get returns ok=false on any miss, including a stale (version
// mismatch) hit. Callers that need a guaranteed answer go through a
// CachingProvider, which calls the underlying Provider on a Cache miss and
// populates the cache with the result.
type Cache struct {
	cfg CacheConfig

	hot atomic.Pointer[hotTable]

	warmMu    sync.Mutex // guards warmOrder only; warm map itself is a sync.Map
	warm      sync.Map   // name -> *entry
	warmOrder *list.List // not populated: warm eviction scans each entry's lastAccess

	coldMu sync.Mutex
	cold   *list.List               // MRU-ordered list of *coldElement
	coldIx map[string]*list.Element // name -> element in cold

	version atomic.Uint64

	tracker *Tracker

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

type coldElement struct {
	name string
	e    *entry
}

// New constructs a Cache and starts its periodic maintenance goroutine.
// Call Close to stop maintenance.
func New(opts ...Option) *Cache {
	cfg := DefaultCacheConfig()
	for _, o := range opts {
		o(&cfg)
	}
	c := &Cache{
		cfg:       cfg,
		warmOrder: list.New(),
		cold:      list.New(),
		coldIx:    make(map[string]*list.Element),
		tracker:   NewTracker(1000, 10*time.Second),
		stopCh:    make(chan struct{}),
	}
	c.hot.Store(&hotTable{m: make(map[string]*entry, cfg.HotCapacity)})
	c.wg.Add(1)
	go c.maintenanceLoop()
	return c
}

func (c *Cache) Tracker() *Tracker { return c.tracker }

// Get is the synchronous, best-effort lookup described in spec §4.6. It
// checks hot, then warm (promoting on a hot-enough warm hit), then cold
// (promoting to warm), recording every access in the tracker.
func (c *Cache) Get(name string) (types.TypeReflectionInfo, bool) {
	c.tracker.Record(name)

	if e, ok := c.hot.Load().m[name]; ok {
		return c.touch(name, e)
	}

	if v, ok := c.warm.Load(name); ok {
		e := v.(*entry)
		if !c.stale(e) {
			count := e.accessCount.Add(1)
			e.lastAccess.Store(time.Now().UnixNano())
			if count >= c.cfg.PromotionThreshold {
				c.promoteToHot(name, e)
			}
			return e.info, true
		}
		c.warm.Delete(name)
	}

	c.coldMu.Lock()
	el, ok := c.coldIx[name]
	if ok {
		ce := el.Value.(*coldElement)
		if c.stale(ce.e) || c.expired(ce.e) {
			c.cold.Remove(el)
			delete(c.coldIx, name)
			ok = false
		} else {
			c.cold.MoveToFront(el)
		}
	}
	c.coldMu.Unlock()
	if ok {
		ce := el.Value.(*coldElement)
		c.promoteToWarm(name, ce.e)
		return ce.e.info, true
	}

	return types.TypeReflectionInfo{}, false
}

func (c *Cache) touch(name string, e *entry) (types.TypeReflectionInfo, bool) {
	if c.stale(e) {
		return types.TypeReflectionInfo{}, false
	}
	e.accessCount.Add(1)
	e.lastAccess.Store(time.Now().UnixNano())
	return e.info, true
}

func (c *Cache) stale(e *entry) bool { return e.version != c.version.Load() }

func (c *Cache) expired(e *entry) bool {
	if c.cfg.ColdTTL <= 0 {
		return false
	}
	return time.Since(time.Unix(0, e.storedAt)) > c.cfg.ColdTTL
}

// Set stores info for name, entering at the cold tier. The loader stores
// every fetched type this way, startup warmup included.
func (c *Cache) Set(name string, info types.TypeReflectionInfo) {
	e := newEntry(info, c.version.Load())
	c.insertCold(name, e)
}

func (c *Cache) insertCold(name string, e *entry) {
	c.coldMu.Lock()
	defer c.coldMu.Unlock()
	if el, ok := c.coldIx[name]; ok {
		el.Value.(*coldElement).e = e
		c.cold.MoveToFront(el)
		return
	}
	if c.cold.Len() >= c.cfg.ColdCapacity {
		back := c.cold.Back()
		if back != nil {
			c.cold.Remove(back)
			delete(c.coldIx, back.Value.(*coldElement).name)
		}
	}
	el := c.cold.PushFront(&coldElement{name: name, e: e})
	c.coldIx[name] = el
}

// promoteToWarm moves a cold entry into the warm tier, evicting the
// oldest-accessed warm entry (by last-access timestamp) if warm is full,
// and demoting the evicted entry back to cold per spec §4.6.
func (c *Cache) promoteToWarm(name string, e *entry) {
	c.coldMu.Lock()
	if el, ok := c.coldIx[name]; ok {
		c.cold.Remove(el)
		delete(c.coldIx, name)
	}
	c.coldMu.Unlock()

	c.evictWarmIfFull()
	c.warm.Store(name, e)
}

func (c *Cache) evictWarmIfFull() {
	if c.warmLen() < c.cfg.WarmCapacity {
		return
	}
	var oldestName string
	var oldestTime int64 = 1<<63 - 1
	var oldestEntry *entry
	c.warm.Range(func(k, v any) bool {
		e := v.(*entry)
		t := e.lastAccess.Load()
		if t < oldestTime {
			oldestTime = t
			oldestName = k.(string)
			oldestEntry = e
		}
		return true
	})
	if oldestEntry != nil {
		c.warm.Delete(oldestName)
		c.insertCold(oldestName, oldestEntry)
	}
}

func (c *Cache) warmLen() int {
	n := 0
	c.warm.Range(func(_, _ any) bool { n++; return true })
	return n
}

// promoteToHot CAS-swaps the hot table to a copy including name -> e,
// evicting the least-recently-accessed hot entry by simple LRU when full.
// Losers of the CAS race simply retry, per spec §4.6's lock-free contract.
func (c *Cache) promoteToHot(name string, e *entry) {
	c.warm.Delete(name)
	for {
		old := c.hot.Load()
		next := make(map[string]*entry, len(old.m)+1)
		for k, v := range old.m {
			next[k] = v
		}
		if len(next) >= c.cfg.HotCapacity {
			var evictName string
			var evictTime int64 = 1<<63 - 1
			for k, v := range next {
				t := v.lastAccess.Load()
				if t < evictTime {
					evictTime = t
					evictName = k
				}
			}
			if evictName != "" {
				delete(next, evictName)
			}
		}
		next[name] = e
		if c.hot.CompareAndSwap(old, &hotTable{m: next}) {
			return
		}
		// Lost the race: another writer updated hot concurrently. Retry with
		// the fresh snapshot.
	}
}

// Invalidate bumps the global version counter (spec §4.6 invalidation): any
// entry stamped with an older version is treated as absent on next access,
// without a synchronous sweep of every tier.
func (c *Cache) Invalidate() {
	c.version.Add(1)
}

// maintenanceLoop runs the periodic sweep spec §4.6 calls for roughly every
// 60s: it removes version-stale and TTL-expired cold entries. The hot and
// warm tiers are not swept.
func (c *Cache) maintenanceLoop() {
	defer c.wg.Done()
	interval := c.cfg.MaintenanceInterval
	if interval <= 0 {
		interval = 60 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-c.stopCh:
			return
		case <-t.C:
			c.sweepCold()
		}
	}
}

func (c *Cache) sweepCold() {
	c.coldMu.Lock()
	defer c.coldMu.Unlock()
	for el := c.cold.Back(); el != nil; {
		prev := el.Prev()
		ce := el.Value.(*coldElement)
		if c.stale(ce.e) || c.expired(ce.e) {
			c.cold.Remove(el)
			delete(c.coldIx, ce.name)
		}
		el = prev
	}
}

// Close stops the maintenance goroutine. Safe to call multiple times.
func (c *Cache) Close() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.wg.Wait()
}
