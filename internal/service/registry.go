package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/errgroup"

	"github.com/acadvault/acadvault-api/internal/observability/metrics"
	"github.com/acadvault/acadvault-api/internal/observability/statsd"
)

// StoreFactory builds the SessionStore for a user agent identified by clientID.
type StoreFactory func(clientID string) (*SessionStore, error)

// StoreRegistryOptions groups dependencies for StoreRegistry.
type StoreRegistryOptions struct {
	Factory StoreFactory
	// Size bounds the number of live stores. Defaults to 10000.
	Size int
	// IdleTTL closes stores that have not been used for this long. Defaults to 30m.
	IdleTTL time.Duration
	// InitTimeout bounds each store's Initialize call. Defaults to 10s.
	InitTimeout time.Duration
	Metrics     statsd.Sink
	Logger      *slog.Logger
}

// StoreRegistry holds one SessionStore per user agent. Evicted stores are closed,
// which tears down their provider subscription; the persisted session survives
// and a later request simply initializes a fresh store.
type StoreRegistry struct {
	factory     StoreFactory
	initTimeout time.Duration
	metrics     statsd.Sink
	logger      *slog.Logger

	mu     sync.Mutex
	stores *expirable.LRU[string, *SessionStore]
	live   atomic.Int64
}

// NewStoreRegistry constructs a StoreRegistry.
func NewStoreRegistry(opts StoreRegistryOptions) (*StoreRegistry, error) {
	if opts.Factory == nil {
		return nil, errors.New("StoreFactory is required")
	}
	size := opts.Size
	if size <= 0 {
		size = 10000
	}
	ttl := opts.IdleTTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	initTimeout := opts.InitTimeout
	if initTimeout <= 0 {
		initTimeout = 10 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := &StoreRegistry{
		factory:     opts.Factory,
		initTimeout: initTimeout,
		metrics:     opts.Metrics,
		logger:      logger.With("component", "store_registry"),
	}
	// The eviction callback runs under the cache lock and must not touch the cache.
	r.stores = expirable.NewLRU(size, func(clientID string, s *SessionStore) {
		r.logger.Debug("closing session store", "client_id", clientID)
		s.Close()
		metrics.EmitClientStores(r.metrics, int(r.live.Add(-1)))
	}, ttl)
	return r, nil
}

// Get returns the store for clientID, creating and initializing it on first use.
// A new store is initialized in the background so callers observe it loading.
func (r *StoreRegistry) Get(clientID string) (*SessionStore, error) {
	if clientID == "" {
		return nil, errors.New("client id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.stores.Get(clientID); ok {
		// Re-adding renews the idle deadline.
		r.stores.Add(clientID, s)
		return s, nil
	}

	s, err := r.factory(clientID)
	if err != nil {
		return nil, fmt.Errorf("create session store: %w", err)
	}
	metrics.EmitClientStores(r.metrics, int(r.live.Add(1)))
	r.stores.Add(clientID, s)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.initTimeout)
		defer cancel()
		s.Initialize(ctx)
	}()
	return s, nil
}

// Remove closes and forgets the store for clientID.
func (r *StoreRegistry) Remove(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stores.Remove(clientID)
}

// Len reports the number of live stores.
func (r *StoreRegistry) Len() int {
	return int(r.live.Load())
}

// Close closes every store and waits, bounded by ctx, for their in-flight
// profile fetches to drain.
func (r *StoreRegistry) Close(ctx context.Context) error {
	r.mu.Lock()
	stores := r.stores.Values()
	r.stores.Purge()
	r.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range stores {
		g.Go(func() error {
			done := make(chan struct{})
			go func() {
				s.WaitIdle()
				close(done)
			}()
			select {
			case <-done:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("drain session stores: %w", err)
	}
	return nil
}
