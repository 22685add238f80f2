// Package cache is the hot tier for quote snapshots and freshly computed
// scores. Redis backs it when an address is configured; otherwise an
// in-process TTL map serves the same interface.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/sawpanic/equityrun/internal/domain"
	"github.com/sawpanic/equityrun/internal/prices"
)

// opTimeout caps one cache round trip. The hot tier is best-effort; a slow
// cache must never stall a scanner tick.
const opTimeout = 500 * time.Millisecond

// Store is the raw byte cache under the typed helpers.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration)
}

type memory struct {
	mu sync.Mutex
	m  map[string]entry
}

type entry struct {
	b   []byte
	exp time.Time
}

// NewMemory returns an in-process TTL cache.
func NewMemory() Store {
	return &memory{m: make(map[string]entry)}
}

func (c *memory) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.m[key]
	if !ok || (!e.exp.IsZero() && time.Now().After(e.exp)) {
		delete(c.m, key)
		return nil, false
	}
	return e.b, true
}

func (c *memory) Set(_ context.Context, key string, val []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := entry{b: append([]byte(nil), val...)}
	if ttl > 0 {
		e.exp = time.Now().Add(ttl)
	}
	c.m[key] = e
}

type redisStore struct{ r *redis.Client }

// NewRedis returns a Redis-backed cache for the given address.
func NewRedis(addr string) Store {
	return &redisStore{r: redis.NewClient(&redis.Options{Addr: addr})}
}

func (c *redisStore) Get(ctx context.Context, key string) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	v, err := c.r.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	return v, true
}

func (c *redisStore) Set(ctx context.Context, key string, val []byte, ttl time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	_ = c.r.Set(ctx, key, val, ttl).Err()
}

// NewAuto picks Redis when an address is configured, memory otherwise.
func NewAuto(redisAddr string) Store {
	if redisAddr != "" {
		return NewRedis(redisAddr)
	}
	return NewMemory()
}

// Hot wraps a Store with typed score and quote helpers.
type Hot struct {
	store    Store
	scoreTTL time.Duration
	quoteTTL time.Duration
}

// NewHot creates the hot tier. Zero TTLs fall back to 5m for scores and 15s
// for quotes.
func NewHot(store Store, scoreTTL, quoteTTL time.Duration) *Hot {
	if scoreTTL <= 0 {
		scoreTTL = 5 * time.Minute
	}
	if quoteTTL <= 0 {
		quoteTTL = 15 * time.Second
	}
	return &Hot{store: store, scoreTTL: scoreTTL, quoteTTL: quoteTTL}
}

func scoreKey(symbol domain.Symbol, kind domain.CandidateKind) string {
	return fmt.Sprintf("score:%s:%s", symbol, kind)
}

func quoteKey(symbol domain.Symbol) string {
	return fmt.Sprintf("quote:%s", symbol)
}

// Score returns the cached score for (symbol, kind) if present and fresh.
func (h *Hot) Score(ctx context.Context, symbol domain.Symbol, kind domain.CandidateKind) (domain.MonthlyScore, bool) {
	b, ok := h.store.Get(ctx, scoreKey(symbol, kind))
	if !ok {
		return domain.MonthlyScore{}, false
	}
	var ms domain.MonthlyScore
	if err := json.Unmarshal(b, &ms); err != nil {
		return domain.MonthlyScore{}, false
	}
	return ms, true
}

// PutScore caches a computed score. Marshal failures are dropped; the cache
// is advisory.
func (h *Hot) PutScore(ctx context.Context, ms domain.MonthlyScore) {
	b, err := json.Marshal(ms)
	if err != nil {
		return
	}
	h.store.Set(ctx, scoreKey(ms.Symbol, ms.ScanKind), b, h.scoreTTL)
}

// Quote returns the cached latest quote for a symbol.
func (h *Hot) Quote(ctx context.Context, symbol domain.Symbol) (prices.Quote, bool) {
	b, ok := h.store.Get(ctx, quoteKey(symbol))
	if !ok {
		return prices.Quote{}, false
	}
	var q prices.Quote
	if err := json.Unmarshal(b, &q); err != nil {
		return prices.Quote{}, false
	}
	return q, true
}

// PutQuote caches a quote snapshot.
func (h *Hot) PutQuote(ctx context.Context, q prices.Quote) {
	b, err := json.Marshal(q)
	if err != nil {
		return
	}
	h.store.Set(ctx, quoteKey(q.Symbol), b, h.quoteTTL)
}

// CachedQuotes decorates a QuoteSource with the hot tier, so premarket ticks
// that re-check the same symbol inside the quote TTL skip the vendor call.
type CachedQuotes struct {
	src prices.QuoteSource
	hot *Hot
}

// NewCachedQuotes wraps a quote source.
func NewCachedQuotes(src prices.QuoteSource, hot *Hot) *CachedQuotes {
	return &CachedQuotes{src: src, hot: hot}
}

// FetchQuote serves from cache when fresh, otherwise fetches and fills.
func (c *CachedQuotes) FetchQuote(ctx context.Context, symbol domain.Symbol) (prices.Quote, error) {
	if q, ok := c.hot.Quote(ctx, symbol); ok {
		return q, nil
	}
	q, err := c.src.FetchQuote(ctx, symbol)
	if err != nil {
		return prices.Quote{}, err
	}
	c.hot.PutQuote(ctx, q)
	return q, nil
}
