// Package store persists bars, articles, scores and alerts. Two
// implementations exist: an in-memory store for tests and DB-less runs, and a
// PostgreSQL store on sqlx. All writes are upsert-on-key, so replaying the
// same data is idempotent.
package store

import (
	"context"
	"time"

	"github.com/sawpanic/equityrun/internal/domain"
)

// Bars is the price bar table keyed by (symbol, ts).
type Bars interface {
	Put(ctx context.Context, bars []domain.Bar) error
	Get(ctx context.Context, symbol domain.Symbol, ts time.Time) (domain.Bar, bool, error)
	Range(ctx context.Context, symbol domain.Symbol, from, to time.Time) ([]domain.Bar, error)
	Trim(ctx context.Context, olderThan time.Time) (int64, error)
}

// Articles is the news table keyed by id, with a (symbol, published_at DESC)
// secondary index.
type Articles interface {
	Upsert(ctx context.Context, a domain.Article) error
	Get(ctx context.Context, id string) (domain.Article, bool, error)
	BySymbol(ctx context.Context, symbol domain.Symbol, since time.Time, limit int) ([]domain.Article, error)
	Since(ctx context.Context, since time.Time, limit int) ([]domain.Article, error)
	Trim(ctx context.Context, olderThan time.Time) (int64, error)
}

// Scores is the composite score table keyed by (symbol, as_of, scan_kind).
type Scores interface {
	Put(ctx context.Context, s domain.MonthlyScore) error
	Latest(ctx context.Context, symbol domain.Symbol, kind domain.CandidateKind) (domain.MonthlyScore, bool, error)
	Trim(ctx context.Context, olderThan time.Time) (int64, error)
}

// Alerts is the alert table keyed by id. PutIfAbsent is the dedup gate: it
// reports false when the id already exists.
type Alerts interface {
	PutIfAbsent(ctx context.Context, a domain.Alert) (bool, error)
	RecordDelivery(ctx context.Context, id string, attempted, succeeded []string) error
	Ack(ctx context.Context, id string, at time.Time) error
	Since(ctx context.Context, since time.Time) ([]domain.Alert, error)
	Trim(ctx context.Context, olderThan time.Time) (int64, error)
}

// Set bundles the four tables the coordinator owns.
type Set struct {
	Bars     Bars
	Articles Articles
	Scores   Scores
	Alerts   Alerts
}

// TrimAll applies the retention policy across every table and returns total
// rows removed.
func (s Set) TrimAll(ctx context.Context, olderThan time.Time) (int64, error) {
	var total int64
	for _, t := range []interface {
		Trim(context.Context, time.Time) (int64, error)
	}{s.Bars, s.Articles, s.Scores, s.Alerts} {
		n, err := t.Trim(ctx, olderThan)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}
