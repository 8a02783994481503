// internal/state/cache.go
package state

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/vmelnikov/launchcore/internal/chain"
	"github.com/vmelnikov/launchcore/internal/domain"
)

// DefaultTTL bounds how long a sale-state snapshot is trusted without an
// authoritative re-read.
const DefaultTTL = 30 * time.Second

type entry struct {
	state     *domain.TokenSaleState
	fetchedAt time.Time
}

// Cache is a TTL cache of per-token on-chain sale state. It is explicitly
// constructed and dependency-injected; one instance may safely serve
// multiple routers. Concurrent refreshes for the same token collapse to a
// single in-flight chain read.
type Cache struct {
	reader chain.Reader
	ttl    time.Duration
	logger *zap.Logger

	mu      sync.RWMutex
	entries map[common.Address]entry

	group singleflight.Group
	clock func() time.Time
}

func NewCache(reader chain.Reader, ttl time.Duration, logger *zap.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		reader:  reader,
		ttl:     ttl,
		logger:  logger.Named("state-cache"),
		entries: make(map[common.Address]entry),
		clock:   time.Now,
	}
}

// Get returns the cached snapshot if it is younger than the TTL, otherwise
// performs an authoritative chain read and atomically swaps in the new
// snapshot. A read failure propagates to the caller; it is never retried
// here and never silently replaced with stale data.
func (c *Cache) Get(ctx context.Context, token common.Address) (*domain.TokenSaleState, error) {
	c.mu.RLock()
	e, ok := c.entries[token]
	c.mu.RUnlock()

	if ok && c.clock().Sub(e.fetchedAt) < c.ttl {
		return e.state.Clone(), nil
	}
	return c.refresh(ctx, token)
}

// GetFresh bypasses the TTL and always performs an authoritative read.
// Used at execute time, where a stale quote must not decide a trade.
func (c *Cache) GetFresh(ctx context.Context, token common.Address) (*domain.TokenSaleState, error) {
	c.Invalidate(token)
	return c.refresh(ctx, token)
}

// LastKnownGood returns the most recent snapshot regardless of age, tagged
// stale. Offered for callers that prefer degraded data after a failed
// refresh; trade decisions must not use it.
func (c *Cache) LastKnownGood(token common.Address) (*domain.TokenSaleState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[token]
	if !ok {
		return nil, false
	}
	snap := e.state.Clone()
	snap.Stale = true
	return snap, true
}

// Invalidate forces the next Get to bypass the cache. Called by the event
// pipeline on any state-changing event for the token.
func (c *Cache) Invalidate(token common.Address) {
	c.mu.Lock()
	delete(c.entries, token)
	c.mu.Unlock()
}

func (c *Cache) refresh(ctx context.Context, token common.Address) (*domain.TokenSaleState, error) {
	v, err, shared := c.group.Do(token.Hex(), func() (interface{}, error) {
		fresh, err := c.reader.SaleState(ctx, token)
		if err != nil {
			return nil, fmt.Errorf("sale state read failed for %s: %w", token.Hex(), err)
		}
		c.mu.Lock()
		c.entries[token] = entry{state: fresh, fetchedAt: c.clock()}
		c.mu.Unlock()
		return fresh, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.logger.Debug("Collapsed concurrent refresh",
			zap.String("token", token.Hex()))
	}
	return v.(*domain.TokenSaleState).Clone(), nil
}

// Len reports the number of cached snapshots.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
