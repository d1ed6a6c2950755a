package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fjod/storefront/internal/cart"
	"github.com/fjod/storefront/pkg/logger"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultIdleTimeout is how long an unused cart stays in memory.
	DefaultIdleTimeout = 30 * time.Minute

	// DefaultSweepInterval is how often idle carts are evicted.
	DefaultSweepInterval = time.Minute
)

// Factory builds and loads the cart of one session.
type Factory func(ctx context.Context, sessionID string) *cart.Store

// CartKey is the storage key of a session's cart.
func CartKey(sessionID string) string {
	return "cart:" + sessionID
}

type entry struct {
	mu       sync.Mutex
	store    *cart.Store
	lastUsed atomic.Int64 // unix nanos
	evicted  bool         // guarded by mu
}

// Registry owns one cart per session and runs operations on a session one at a time.
// Idle carts are dropped from memory; their blobs stay in storage.
type Registry struct {
	factory     Factory
	idleTimeout time.Duration
	now         func() time.Time
	log         *zap.Logger

	mu      sync.Mutex
	entries map[string]*entry
	loads   singleflight.Group

	stopSweep chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

type Option func(*Registry)

func WithIdleTimeout(d time.Duration) Option {
	return func(r *Registry) { r.idleTimeout = d }
}

func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) { r.log = logger.OrNop(l) }
}

// NewRegistry starts the eviction loop; a non-positive sweepInterval disables it.
func NewRegistry(factory Factory, sweepInterval time.Duration, opts ...Option) *Registry {
	r := &Registry{
		factory:     factory,
		idleTimeout: DefaultIdleTimeout,
		now:         time.Now,
		log:         zap.NewNop(),
		entries:     make(map[string]*entry),
		stopSweep:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}

	if sweepInterval > 0 {
		r.wg.Add(1)
		go r.sweepLoop(sweepInterval)
	}
	return r
}

// Do runs fn with the session's cart while holding the session lock.
func (r *Registry) Do(ctx context.Context, sessionID string, fn func(*cart.Store) error) error {
	for {
		e, err := r.entry(ctx, sessionID)
		if err != nil {
			return err
		}

		e.mu.Lock()
		if e.evicted {
			// lost a race with the sweeper, load again
			e.mu.Unlock()
			continue
		}
		e.lastUsed.Store(r.now().UnixNano())
		err = fn(e.store)
		e.mu.Unlock()
		return err
	}
}

// Forget drops a session's cart from memory without touching storage.
func (r *Registry) Forget(sessionID string) {
	r.mu.Lock()
	e, ok := r.entries[sessionID]
	if ok {
		delete(r.entries, sessionID)
	}
	r.mu.Unlock()

	if ok {
		e.mu.Lock()
		e.evicted = true
		e.mu.Unlock()
	}
}

// Len returns the number of carts held in memory.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Close stops the eviction loop and waits for it to finish
func (r *Registry) Close() error {
	r.closeOnce.Do(func() {
		close(r.stopSweep)
	})
	r.wg.Wait()
	return nil
}

func (r *Registry) entry(ctx context.Context, sessionID string) (*entry, error) {
	r.mu.Lock()
	e, ok := r.entries[sessionID]
	r.mu.Unlock()
	if ok {
		return e, nil
	}

	// concurrent first requests of a session share one load
	v, err, _ := r.loads.Do(sessionID, func() (interface{}, error) {
		r.mu.Lock()
		if e, ok := r.entries[sessionID]; ok {
			r.mu.Unlock()
			return e, nil
		}
		r.mu.Unlock()

		// the load outlives the request that triggered it
		e := &entry{store: r.factory(context.WithoutCancel(ctx), sessionID)}
		e.lastUsed.Store(r.now().UnixNano())

		r.mu.Lock()
		r.entries[sessionID] = e
		r.mu.Unlock()
		return e, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*entry), nil
}

func (r *Registry) sweepLoop(interval time.Duration) {
	defer r.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.evictIdle()
		case <-r.stopSweep:
			return
		}
	}
}

func (r *Registry) evictIdle() {
	cutoff := r.now().Add(-r.idleTimeout).UnixNano()

	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for id, e := range r.entries {
		if e.lastUsed.Load() > cutoff {
			continue
		}
		// a session in use is not idle
		if !e.mu.TryLock() {
			continue
		}
		e.evicted = true
		e.mu.Unlock()
		delete(r.entries, id)
		evicted++
	}
	if evicted > 0 {
		r.log.Debug("idle carts evicted", zap.Int("count", evicted), zap.Int("remaining", len(r.entries)))
	}
}
