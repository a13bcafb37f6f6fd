// Package contracts holds the TTL-bounded in-memory directory of tradable
// instruments for one exchange, plus the canonical⇄native symbol registry
// derived from it.
package contracts

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/avetra/crypto_trade_exec/internal/domain"
)

const defaultTTL = 10 * time.Minute

// Loader fetches the full instrument list from the exchange.
type Loader func(ctx context.Context) ([]*domain.ContractInfo, error)

// Cache owns the current contract snapshot. Reads are lock-cheap and always
// served from the last good snapshot; refreshes never fail a reader.
// Overlapping refresh calls coalesce into one network call.
type Cache struct {
	exchange string
	loader   Loader
	ttl      time.Duration
	log      *zap.Logger

	mu          sync.RWMutex
	list        []*domain.ContractInfo
	byCanonical map[string]*domain.ContractInfo
	byNative    map[string]*domain.ContractInfo
	fetchedAt   time.Time
	inflight    chan struct{}

	stopOnce sync.Once
	stopCh   chan struct{}
}

func NewCache(exchange string, loader Loader, ttl time.Duration, log *zap.Logger) *Cache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Cache{
		exchange:    exchange,
		loader:      loader,
		ttl:         ttl,
		log:         log,
		byCanonical: make(map[string]*domain.ContractInfo),
		byNative:    make(map[string]*domain.ContractInfo),
		stopCh:      make(chan struct{}),
	}
}

// Warmup best-effort primes the cache. It logs failures instead of
// returning them so adapters stay constructible while the exchange is
// briefly unreachable at boot.
func (c *Cache) Warmup(ctx context.Context) {
	if err := c.Refresh(ctx, true); err != nil {
		c.log.Warn("contract cache warmup failed",
			zap.String("exchange", c.exchange), zap.Error(err))
	}
}

// Refresh re-fetches the instrument list when the snapshot is stale or
// force is set. On failure the last good snapshot stays authoritative; the
// error is returned for observability only.
func (c *Cache) Refresh(ctx context.Context, force bool) error {
	c.mu.Lock()
	if !force && !c.staleLocked() {
		c.mu.Unlock()
		return nil
	}
	if c.inflight != nil {
		// Another refresh is loading; wait for it instead of issuing a
		// duplicate network call.
		done := c.inflight
		c.mu.Unlock()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	done := make(chan struct{})
	c.inflight = done
	c.mu.Unlock()

	list, err := c.loader(ctx)

	c.mu.Lock()
	c.inflight = nil
	if err == nil {
		c.swapLocked(list)
	}
	c.mu.Unlock()
	close(done)

	if err != nil {
		return fmt.Errorf("%s: refresh contracts: %w", c.exchange, err)
	}
	return nil
}

// StartBackground refreshes on a timer until Stop is called.
func (c *Cache) StartBackground(interval time.Duration) {
	if interval <= 0 {
		interval = c.ttl
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-c.stopCh:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				if err := c.Refresh(ctx, true); err != nil {
					// Swallowed: the last good snapshot keeps serving.
					c.log.Warn("background contract refresh failed",
						zap.String("exchange", c.exchange), zap.Error(err))
				}
				cancel()
			}
		}
	}()
}

func (c *Cache) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

// ByCanonical resolves a canonical symbol, self-healing stale snapshots
// with a staleness-checked refresh first.
func (c *Cache) ByCanonical(ctx context.Context, symbol string) (*domain.ContractInfo, bool) {
	_ = c.Refresh(ctx, false)
	c.mu.RLock()
	defer c.mu.RUnlock()
	info, ok := c.byCanonical[symbol]
	return info, ok
}

// ByExchangeSymbol resolves an exchange-native symbol.
func (c *Cache) ByExchangeSymbol(ctx context.Context, symbol string) (*domain.ContractInfo, bool) {
	_ = c.Refresh(ctx, false)
	c.mu.RLock()
	defer c.mu.RUnlock()
	info, ok := c.byNative[symbol]
	return info, ok
}

// ToExchangeSymbol translates canonical → exchange-native.
func (c *Cache) ToExchangeSymbol(ctx context.Context, canonical string) (string, error) {
	info, ok := c.ByCanonical(ctx, canonical)
	if !ok {
		return "", fmt.Errorf("%s: %s: %w", c.exchange, canonical, domain.ErrSymbolUnknown)
	}
	return info.ExchangeSymbol, nil
}

// ToCanonicalSymbol translates exchange-native → canonical.
func (c *Cache) ToCanonicalSymbol(ctx context.Context, native string) (string, error) {
	info, ok := c.ByExchangeSymbol(ctx, native)
	if !ok {
		return "", fmt.Errorf("%s: %s: %w", c.exchange, native, domain.ErrSymbolUnknown)
	}
	return info.Symbol, nil
}

// Snapshot returns the full current contract list.
func (c *Cache) Snapshot() []*domain.ContractInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*domain.ContractInfo, len(c.list))
	copy(out, c.list)
	return out
}

// FetchedAt reports when the current snapshot was loaded.
func (c *Cache) FetchedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fetchedAt
}

func (c *Cache) staleLocked() bool {
	return time.Since(c.fetchedAt) >= c.ttl
}

// swapLocked replaces the snapshot and rebuilds the symbol registry. Within
// one exchange every canonical symbol maps to exactly one native symbol and
// vice versa; later duplicates are dropped with a warning.
func (c *Cache) swapLocked(list []*domain.ContractInfo) {
	byCanonical := make(map[string]*domain.ContractInfo, len(list))
	byNative := make(map[string]*domain.ContractInfo, len(list))
	kept := make([]*domain.ContractInfo, 0, len(list))

	for _, info := range list {
		if info == nil || info.Symbol == "" || info.ExchangeSymbol == "" {
			continue
		}
		if _, dup := byCanonical[info.Symbol]; dup {
			c.log.Warn("duplicate canonical symbol dropped",
				zap.String("exchange", c.exchange), zap.String("symbol", info.Symbol))
			continue
		}
		if _, dup := byNative[info.ExchangeSymbol]; dup {
			c.log.Warn("duplicate native symbol dropped",
				zap.String("exchange", c.exchange), zap.String("symbol", info.ExchangeSymbol))
			continue
		}
		byCanonical[info.Symbol] = info
		byNative[info.ExchangeSymbol] = info
		kept = append(kept, info)
	}

	c.list = kept
	c.byCanonical = byCanonical
	c.byNative = byNative
	c.fetchedAt = time.Now()
}
