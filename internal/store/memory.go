package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sawpanic/equityrun/internal/domain"
)

// NewMemorySet returns an in-memory Set. Used by tests and by runs without a
// configured database.
func NewMemorySet() Set {
	return Set{
		Bars:     &memBars{rows: make(map[barKey]domain.Bar)},
		Articles: &memArticles{rows: make(map[string]domain.Article)},
		Scores:   &memScores{rows: make(map[scoreKey]domain.MonthlyScore)},
		Alerts:   &memAlerts{rows: make(map[string]domain.Alert)},
	}
}

type barKey struct {
	symbol domain.Symbol
	ts     int64
}

type memBars struct {
	mu   sync.RWMutex
	rows map[barKey]domain.Bar
}

func (m *memBars) Put(_ context.Context, bars []domain.Bar) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range bars {
		if err := b.Validate(); err != nil {
			return err
		}
		m.rows[barKey{b.Symbol, b.TS.Unix()}] = b
	}
	return nil
}

func (m *memBars) Get(_ context.Context, symbol domain.Symbol, ts time.Time) (domain.Bar, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.rows[barKey{symbol, ts.Unix()}]
	return b, ok, nil
}

func (m *memBars) Range(_ context.Context, symbol domain.Symbol, from, to time.Time) ([]domain.Bar, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Bar
	for k, b := range m.rows {
		if k.symbol == symbol && !b.TS.Before(from) && !b.TS.After(to) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TS.Before(out[j].TS) })
	return out, nil
}

func (m *memBars) Trim(_ context.Context, olderThan time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, b := range m.rows {
		if b.TS.Before(olderThan) {
			delete(m.rows, k)
			n++
		}
	}
	return n, nil
}

type memArticles struct {
	mu   sync.RWMutex
	rows map[string]domain.Article
}

func (m *memArticles) Upsert(_ context.Context, a domain.Article) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[a.ID] = a
	return nil
}

func (m *memArticles) Get(_ context.Context, id string) (domain.Article, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.rows[id]
	return a, ok, nil
}

func (m *memArticles) BySymbol(_ context.Context, symbol domain.Symbol, since time.Time, limit int) ([]domain.Article, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Article
	for _, a := range m.rows {
		if a.Symbol == symbol && !a.PublishedAt.Before(since) {
			out = append(out, a)
		}
	}
	sortArticles(out)
	return capArticles(out, limit), nil
}

func (m *memArticles) Since(_ context.Context, since time.Time, limit int) ([]domain.Article, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Article
	for _, a := range m.rows {
		if !a.PublishedAt.Before(since) {
			out = append(out, a)
		}
	}
	sortArticles(out)
	return capArticles(out, limit), nil
}

func (m *memArticles) Trim(_ context.Context, olderThan time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, a := range m.rows {
		if a.PublishedAt.Before(olderThan) {
			delete(m.rows, id)
			n++
		}
	}
	return n, nil
}

func sortArticles(out []domain.Article) {
	sort.Slice(out, func(i, j int) bool { return out[i].PublishedAt.After(out[j].PublishedAt) })
}

func capArticles(out []domain.Article, limit int) []domain.Article {
	if limit > 0 && len(out) > limit {
		return out[:limit]
	}
	return out
}

type scoreKey struct {
	symbol domain.Symbol
	asOf   int64
	kind   domain.CandidateKind
}

type memScores struct {
	mu   sync.RWMutex
	rows map[scoreKey]domain.MonthlyScore
}

func (m *memScores) Put(_ context.Context, s domain.MonthlyScore) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[scoreKey{s.Symbol, s.AsOf.Unix(), s.ScanKind}] = s
	return nil
}

func (m *memScores) Latest(_ context.Context, symbol domain.Symbol, kind domain.CandidateKind) (domain.MonthlyScore, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var best domain.MonthlyScore
	found := false
	for k, s := range m.rows {
		if k.symbol == symbol && k.kind == kind && (!found || s.AsOf.After(best.AsOf)) {
			best = s
			found = true
		}
	}
	return best, found, nil
}

func (m *memScores) Trim(_ context.Context, olderThan time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, s := range m.rows {
		if s.AsOf.Before(olderThan) {
			delete(m.rows, k)
			n++
		}
	}
	return n, nil
}

type memAlerts struct {
	mu   sync.RWMutex
	rows map[string]domain.Alert
}

func (m *memAlerts) PutIfAbsent(_ context.Context, a domain.Alert) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.rows[a.ID]; exists {
		return false, nil
	}
	m.rows[a.ID] = a
	return true, nil
}

func (m *memAlerts) RecordDelivery(_ context.Context, id string, attempted, succeeded []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.rows[id]
	if !ok {
		return nil
	}
	a.ChannelsAttempted = append([]string(nil), attempted...)
	a.ChannelsSucceeded = append([]string(nil), succeeded...)
	m.rows[id] = a
	return nil
}

func (m *memAlerts) Ack(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.rows[id]
	if !ok {
		return nil
	}
	a.AckAt = &at
	m.rows[id] = a
	return nil
}

func (m *memAlerts) Since(_ context.Context, since time.Time) ([]domain.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Alert
	for _, a := range m.rows {
		if !a.CreatedAt.Before(since) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memAlerts) Trim(_ context.Context, olderThan time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, a := range m.rows {
		if a.CreatedAt.Before(olderThan) {
			delete(m.rows, id)
			n++
		}
	}
	return n, nil
}
