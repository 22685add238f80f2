package news

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/equityrun/internal/domain"
	"github.com/sawpanic/equityrun/internal/netlimit"
	"github.com/sawpanic/equityrun/internal/sentiment"
)

// SourceStatus records the outcome of the most recent fetch per source.
type SourceStatus struct {
	Source    string        `json:"source"`
	OK        bool          `json:"ok"`
	Articles  int           `json:"articles"`
	Err       string        `json:"err,omitempty"`
	Duration  time.Duration `json:"duration"`
	FetchedAt time.Time     `json:"fetched_at"`
}

// Aggregator fans out to all sources concurrently, enriches the results, and
// merges them into one deduplicated set. One failing source never blocks the
// others; its error lands in the status map instead.
type Aggregator struct {
	sources  []Source
	limiter  *netlimit.Limiter
	analyzer *sentiment.Analyzer
	universe Universe

	mu     sync.RWMutex
	status map[string]SourceStatus
}

// NewAggregator wires sources to a shared rate limiter and symbol universe.
func NewAggregator(sources []Source, limiter *netlimit.Limiter, universe Universe) *Aggregator {
	return &Aggregator{
		sources:  sources,
		limiter:  limiter,
		analyzer: sentiment.New(),
		universe: universe,
		status:   make(map[string]SourceStatus, len(sources)),
	}
}

// SetUniverse swaps the symbol universe, for watchlist changes at runtime.
func (a *Aggregator) SetUniverse(u Universe) {
	a.mu.Lock()
	a.universe = u
	a.mu.Unlock()
}

func (a *Aggregator) currentUniverse() Universe {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.universe
}

// FetchAll pulls every source since the cutoff. Per-source work is bounded by
// the rate limiter and a fetch timeout; EMPTY counts as a healthy fetch with
// zero articles. The merged result is sorted by published time descending and
// deduplicated on article ID, latest fetch winning.
func (a *Aggregator) FetchAll(ctx context.Context, since time.Time) []domain.Article {
	type result struct {
		source   string
		articles []domain.Article
		err      error
		took     time.Duration
	}

	results := make(chan result, len(a.sources))
	var wg sync.WaitGroup
	for _, src := range a.sources {
		wg.Add(1)
		go func(src Source) {
			defer wg.Done()
			start := time.Now()

			if err := a.limiter.Acquire(ctx, src.Name()); err != nil {
				results <- result{source: src.Name(), err: err, took: time.Since(start)}
				return
			}
			fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
			defer cancel()

			articles, err := src.Fetch(fetchCtx, since)
			results <- result{source: src.Name(), articles: articles, err: err, took: time.Since(start)}
		}(src)
	}
	wg.Wait()
	close(results)

	universe := a.currentUniverse()
	merged := make(map[string]domain.Article)
	now := time.Now().UTC()

	for res := range results {
		st := SourceStatus{
			Source: res.source, Articles: len(res.articles),
			Duration: res.took, FetchedAt: now,
		}
		switch {
		case res.err == nil, errors.Is(res.err, domain.ErrEmpty):
			st.OK = true
		default:
			st.Err = res.err.Error()
			log.Warn().Str("source", res.source).Err(res.err).Msg("News source fetch failed")
		}
		a.mu.Lock()
		a.status[res.source] = st
		a.mu.Unlock()

		for _, art := range res.articles {
			enriched := a.enrich(art, universe)
			if prev, ok := merged[enriched.ID]; ok && !prev.FetchedAt.Before(enriched.FetchedAt) {
				continue
			}
			merged[enriched.ID] = enriched
		}
	}

	out := make([]domain.Article, 0, len(merged))
	for _, art := range merged {
		out = append(out, art)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PublishedAt.After(out[j].PublishedAt) })
	return out
}

// enrich fills symbol, catalyst tags/tier, and sentiment on a raw article.
func (a *Aggregator) enrich(art domain.Article, universe Universe) domain.Article {
	text := art.Title + "\n" + art.Body
	if art.Symbol == "" {
		art.Symbol = PrimarySymbol(text, universe)
	}
	art.CatalystTags, art.CatalystTier = TagCatalysts(art.Title, art.Body)
	art.Sentiment = a.analyzer.Score(text)
	return art
}

// Status returns a copy of the per-source status map.
func (a *Aggregator) Status() map[string]SourceStatus {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string]SourceStatus, len(a.status))
	for k, v := range a.status {
		out[k] = v
	}
	return out
}

// BySymbol filters a merged batch down to one ticker.
func BySymbol(articles []domain.Article, symbol domain.Symbol) []domain.Article {
	var out []domain.Article
	for _, a := range articles {
		if a.Symbol == symbol {
			out = append(out, a)
		}
	}
	return out
}
