package schema

import (
	"container/heap"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gammazero/workerpool"
	"golang.org/x/sync/singleflight"

	"github.com/fhirpath-go/fhirpath/pkg/types"
)

// Priority orders work items in the background loader's queue, highest
// value first (spec §4.6: Essential > Common > OnDemand > Predictive).
type Priority int

const (
	PriorityPredictive Priority = iota
	PriorityOnDemand
	PriorityCommon
	PriorityEssential
)

type workItem struct {
	name     string
	priority Priority
	seq      uint64 // tiebreak: lower seq (older) first within equal priority
}

// itemHeap is a max-heap on priority, FIFO within a priority tier.
type itemHeap []workItem

func (h itemHeap) Len() int { return len(h) }
func (h itemHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}
func (h itemHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *itemHeap) Push(x any)         { *h = append(*h, x.(workItem)) }
func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// LoaderConfig configures worker count, timeouts and retry policy for the
// background loader (spec §4.6 "Background loader").
type LoaderConfig struct {
	Workers            int
	PerTypeTimeout     time.Duration
	EssentialTimeout   time.Duration
	BackoffBase        time.Duration
	BackoffMax         time.Duration
	MaxAttempts        int
	Logger             *slog.Logger
}

func DefaultLoaderConfig() LoaderConfig {
	return LoaderConfig{
		Workers:          4,
		PerTypeTimeout:   30 * time.Second,
		EssentialTimeout: 10 * time.Second,
		BackoffBase:      500 * time.Millisecond,
		BackoffMax:       30 * time.Second,
		MaxAttempts:      3,
		Logger:           slog.Default(),
	}
}

// Loader drains a priority queue with a fixed worker pool, fetching schema
// types from the underlying Provider and populating the Cache. It is the
// "Background loader" of spec §4.6.
type Loader struct {
	provider Provider
	cache    *Cache
	tracker  *Tracker
	cfg      LoaderConfig

	pool *workerpool.WorkerPool
	sf   singleflight.Group

	mu   sync.Mutex
	cond *sync.Cond
	heap itemHeap
	seq  uint64

	stopped bool
	stopCh  chan struct{}
}

func NewLoader(provider Provider, cache *Cache, tracker *Tracker, cfg LoaderConfig) *Loader {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	l := &Loader{
		provider: provider,
		cache:    cache,
		tracker:  tracker,
		cfg:      cfg,
		pool:     workerpool.New(cfg.Workers),
		stopCh:   make(chan struct{}),
	}
	l.cond = sync.NewCond(&l.mu)
	go l.dispatchLoop()
	return l
}

// Enqueue adds name to the queue at the given priority. Safe for concurrent
// callers; within this package FetchNow's predictive prefetch calls it with
// PriorityPredictive for related types (spec §4.6).
func (l *Loader) Enqueue(name string, priority Priority) {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.seq++
	heap.Push(&l.heap, workItem{name: name, priority: priority, seq: l.seq})
	l.mu.Unlock()
	l.cond.Signal()
}

// Warmup queues the essential and common type sets per spec §4.6, and
// blocks up to EssentialTimeout for the essential set to complete loading
// (a best-effort deadline, not a hard failure if missed).
func (l *Loader) Warmup(ctx context.Context) {
	var wg sync.WaitGroup
	for _, name := range EssentialTypes {
		wg.Add(1)
		n := name
		l.submit(func() {
			defer wg.Done()
			l.loadOne(context.Background(), n, PriorityEssential)
		})
	}
	for _, name := range CommonTypes {
		n := name
		l.submit(func() { l.loadOne(context.Background(), n, PriorityCommon) })
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	timeout := l.cfg.EssentialTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	select {
	case <-done:
	case <-time.After(timeout):
		l.cfg.Logger.Warn("schema loader: essential warmup deadline exceeded", "timeout", timeout)
	case <-ctx.Done():
	}
}

// dispatchLoop pops the highest-priority item and hands it to the worker
// pool, blocking when the queue is empty.
func (l *Loader) dispatchLoop() {
	for {
		l.mu.Lock()
		for l.heap.Len() == 0 && !l.stopped {
			l.cond.Wait()
		}
		if l.stopped && l.heap.Len() == 0 {
			l.mu.Unlock()
			return
		}
		item := heap.Pop(&l.heap).(workItem)
		l.mu.Unlock()

		l.submit(func() { l.loadOne(context.Background(), item.name, item.priority) })
	}
}

func (l *Loader) submit(task func()) {
	l.pool.Submit(task)
}

// loadOne fetches name from the provider via FetchNow and discards the
// result (it already landed in the cache); used by the dispatch loop and
// Warmup, which have no caller waiting on the value.
func (l *Loader) loadOne(ctx context.Context, name string, priority Priority) {
	_, _, err := l.FetchNow(ctx, name)
	if err != nil {
		l.cfg.Logger.Warn("schema loader: failed to load type", "type", name, "priority", priority, "error", err)
	}
}

// FetchNow guarantees an answer: it checks the cache, and on a miss fetches
// from the underlying Provider with a per-type timeout and exponential
// backoff retries (base/max/attempts per LoaderConfig), collapsing
// concurrent duplicate fetches for the same name via singleflight. This is
// the synchronous path spec §4.6 calls "schema_provider.fetch(name).await".
// On success it queues related types (from the access tracker) with
// Predictive priority.
func (l *Loader) FetchNow(ctx context.Context, name string) (types.TypeReflectionInfo, bool, error) {
	if info, ok := l.cache.Get(name); ok {
		return info, true, nil
	}

	v, err, _ := l.sf.Do(name, func() (any, error) {
		if info, ok := l.cache.Get(name); ok {
			return info, nil
		}

		backoff := l.cfg.BackoffBase
		attempts := l.cfg.MaxAttempts
		if attempts <= 0 {
			attempts = 3
		}
		var lastErr error
		for attempt := 0; attempt < attempts; attempt++ {
			fetchCtx, cancel := context.WithTimeout(ctx, nonZero(l.cfg.PerTypeTimeout, 30*time.Second))
			info, ok, err := l.provider.GetType(fetchCtx, name)
			cancel()
			if err == nil {
				if ok {
					l.cache.Set(name, info)
					l.queuePredictive(name)
					return info, nil
				}
				return nil, nil
			}
			lastErr = err
			if attempt < attempts-1 {
				time.Sleep(backoff)
				backoff *= 2
				if backoff > l.cfg.BackoffMax {
					backoff = l.cfg.BackoffMax
				}
			}
		}
		return nil, lastErr
	})
	if err != nil {
		return types.TypeReflectionInfo{}, false, err
	}
	if v == nil {
		return types.TypeReflectionInfo{}, false, nil
	}
	return v.(types.TypeReflectionInfo), true, nil
}

func (l *Loader) queuePredictive(name string) {
	if l.tracker == nil {
		return
	}
	for _, related := range l.tracker.RelatedTo(name) {
		if _, ok := l.cache.Get(related); !ok {
			l.Enqueue(related, PriorityPredictive)
		}
	}
}

// Shutdown drains in-flight work and stops the dispatcher and worker pool
// cleanly (spec §4.6 "A shutdown flag drains workers cleanly").
func (l *Loader) Shutdown() {
	l.mu.Lock()
	l.stopped = true
	l.mu.Unlock()
	l.cond.Broadcast()
	close(l.stopCh)
	l.pool.StopWait()
}

func nonZero(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
