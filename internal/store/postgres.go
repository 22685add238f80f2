package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/sawpanic/equityrun/internal/domain"
)

// NewPostgresSet opens a PostgreSQL-backed Set. The schema is created if
// missing (see schema.sql for the reference DDL).
func NewPostgresSet(dsn string, timeout time.Duration) (Set, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return Set{}, fmt.Errorf("connect postgres: %w", err)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if _, err := db.Exec(schemaDDL); err != nil {
		return Set{}, fmt.Errorf("apply schema: %w", err)
	}
	return Set{
		Bars:     &pgBars{db: db, timeout: timeout},
		Articles: &pgArticles{db: db, timeout: timeout},
		Scores:   &pgScores{db: db, timeout: timeout},
		Alerts:   &pgAlerts{db: db, timeout: timeout},
	}, nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS bars (
	symbol TEXT NOT NULL,
	ts TIMESTAMPTZ NOT NULL,
	open DOUBLE PRECISION NOT NULL,
	high DOUBLE PRECISION NOT NULL,
	low DOUBLE PRECISION NOT NULL,
	close DOUBLE PRECISION NOT NULL,
	volume DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (symbol, ts)
);
CREATE TABLE IF NOT EXISTS articles (
	id TEXT PRIMARY KEY,
	symbol TEXT,
	title TEXT NOT NULL,
	body TEXT NOT NULL DEFAULT '',
	source TEXT NOT NULL,
	url TEXT NOT NULL DEFAULT '',
	published_at TIMESTAMPTZ NOT NULL,
	fetched_at TIMESTAMPTZ NOT NULL,
	polarity DOUBLE PRECISION NOT NULL DEFAULT 0,
	label TEXT NOT NULL DEFAULT 'neutral',
	catalyst_tags TEXT[] NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS articles_symbol_published_idx
	ON articles (symbol, published_at DESC);
CREATE TABLE IF NOT EXISTS scores (
	symbol TEXT NOT NULL,
	as_of TIMESTAMPTZ NOT NULL,
	scan_kind TEXT NOT NULL,
	total DOUBLE PRECISION NOT NULL,
	trend DOUBLE PRECISION NOT NULL,
	momentum DOUBLE PRECISION NOT NULL,
	sentiment DOUBLE PRECISION NOT NULL,
	divergence DOUBLE PRECISION NOT NULL,
	volume DOUBLE PRECISION NOT NULL,
	recommendation TEXT NOT NULL,
	conviction TEXT NOT NULL,
	entry DOUBLE PRECISION NOT NULL DEFAULT 0,
	stop DOUBLE PRECISION NOT NULL DEFAULT 0,
	target DOUBLE PRECISION NOT NULL DEFAULT 0,
	rr DOUBLE PRECISION NOT NULL DEFAULT 0,
	confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	PRIMARY KEY (symbol, as_of, scan_kind)
);
CREATE TABLE IF NOT EXISTS alerts (
	id TEXT PRIMARY KEY,
	symbol TEXT NOT NULL,
	kind TEXT NOT NULL,
	priority TEXT NOT NULL,
	title TEXT NOT NULL,
	body TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	channels_attempted TEXT[] NOT NULL DEFAULT '{}',
	channels_succeeded TEXT[] NOT NULL DEFAULT '{}',
	ack_at TIMESTAMPTZ
);
`

type pgBars struct {
	db      *sqlx.DB
	timeout time.Duration
}

func (r *pgBars) Put(ctx context.Context, bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin bars tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO bars (symbol, ts, open, high, low, close, volume)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (symbol, ts) DO UPDATE SET
			open = EXCLUDED.open, high = EXCLUDED.high,
			low = EXCLUDED.low, close = EXCLUDED.close,
			volume = EXCLUDED.volume`)
	if err != nil {
		return fmt.Errorf("prepare bars upsert: %w", err)
	}
	defer stmt.Close()

	for _, b := range bars {
		if err := b.Validate(); err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, b.Symbol, b.TS, b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			return fmt.Errorf("upsert bar %s@%s: %w", b.Symbol, b.TS, err)
		}
	}
	return tx.Commit()
}

func (r *pgBars) Get(ctx context.Context, symbol domain.Symbol, ts time.Time) (domain.Bar, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var b domain.Bar
	err := r.db.GetContext(ctx, &b,
		`SELECT symbol, ts, open, high, low, close, volume FROM bars WHERE symbol = $1 AND ts = $2`,
		symbol, ts)
	if err == sql.ErrNoRows {
		return domain.Bar{}, false, nil
	}
	if err != nil {
		return domain.Bar{}, false, fmt.Errorf("get bar: %w", err)
	}
	return b, true, nil
}

func (r *pgBars) Range(ctx context.Context, symbol domain.Symbol, from, to time.Time) ([]domain.Bar, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var out []domain.Bar
	err := r.db.SelectContext(ctx, &out, `
		SELECT symbol, ts, open, high, low, close, volume
		FROM bars WHERE symbol = $1 AND ts >= $2 AND ts <= $3
		ORDER BY ts ASC`, symbol, from, to)
	if err != nil {
		return nil, fmt.Errorf("range bars: %w", err)
	}
	return out, nil
}

func (r *pgBars) Trim(ctx context.Context, olderThan time.Time) (int64, error) {
	return trim(ctx, r.db, r.timeout, `DELETE FROM bars WHERE ts < $1`, olderThan)
}

type pgArticles struct {
	db      *sqlx.DB
	timeout time.Duration
}

func (r *pgArticles) Upsert(ctx context.Context, a domain.Article) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO articles (id, symbol, title, body, source, url, published_at, fetched_at, polarity, label, catalyst_tags)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			symbol = EXCLUDED.symbol, title = EXCLUDED.title, body = EXCLUDED.body,
			source = EXCLUDED.source, fetched_at = EXCLUDED.fetched_at,
			polarity = EXCLUDED.polarity, label = EXCLUDED.label,
			catalyst_tags = EXCLUDED.catalyst_tags`,
		a.ID, string(a.Symbol), a.Title, a.Body, a.Source, a.URL,
		a.PublishedAt, a.FetchedAt, a.Sentiment.Polarity, string(a.Sentiment.Label),
		pq.Array(a.CatalystTags))
	if err != nil {
		return fmt.Errorf("upsert article %s: %w", a.ID, err)
	}
	return nil
}

// articleRow maps the articles table; sentiment and tags are flattened
// columns.
type articleRow struct {
	ID          string         `db:"id"`
	Symbol      sql.NullString `db:"symbol"`
	Title       string         `db:"title"`
	Body        string         `db:"body"`
	Source      string         `db:"source"`
	URL         string         `db:"url"`
	PublishedAt time.Time      `db:"published_at"`
	FetchedAt   time.Time      `db:"fetched_at"`
	Polarity    float64        `db:"polarity"`
	Label       string         `db:"label"`
	Tags        pq.StringArray `db:"catalyst_tags"`
}

func (row articleRow) toArticle() domain.Article {
	a := domain.Article{
		ID:          row.ID,
		Title:       row.Title,
		Body:        row.Body,
		Source:      row.Source,
		URL:         row.URL,
		PublishedAt: row.PublishedAt,
		FetchedAt:   row.FetchedAt,
		Sentiment: domain.SentimentScore{
			Polarity: row.Polarity,
			Label:    domain.SentimentLabel(row.Label),
		},
		CatalystTags: []string(row.Tags),
	}
	if row.Symbol.Valid {
		a.Symbol = domain.Symbol(row.Symbol.String)
	}
	return a
}

const articleCols = `id, symbol, title, body, source, url, published_at, fetched_at, polarity, label, catalyst_tags`

func (r *pgArticles) Get(ctx context.Context, id string) (domain.Article, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var row articleRow
	err := r.db.GetContext(ctx, &row, `SELECT `+articleCols+` FROM articles WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return domain.Article{}, false, nil
	}
	if err != nil {
		return domain.Article{}, false, fmt.Errorf("get article: %w", err)
	}
	return row.toArticle(), true, nil
}

func (r *pgArticles) BySymbol(ctx context.Context, symbol domain.Symbol, since time.Time, limit int) ([]domain.Article, error) {
	return r.list(ctx, `SELECT `+articleCols+` FROM articles
		WHERE symbol = $1 AND published_at >= $2
		ORDER BY published_at DESC LIMIT $3`, symbol, since, orDefault(limit, 500))
}

func (r *pgArticles) Since(ctx context.Context, since time.Time, limit int) ([]domain.Article, error) {
	return r.list(ctx, `SELECT `+articleCols+` FROM articles
		WHERE published_at >= $1
		ORDER BY published_at DESC LIMIT $2`, since, orDefault(limit, 500))
}

func (r *pgArticles) list(ctx context.Context, query string, args ...any) ([]domain.Article, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var rows []articleRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}
	out := make([]domain.Article, len(rows))
	for i, row := range rows {
		out[i] = row.toArticle()
	}
	return out, nil
}

func (r *pgArticles) Trim(ctx context.Context, olderThan time.Time) (int64, error) {
	return trim(ctx, r.db, r.timeout, `DELETE FROM articles WHERE published_at < $1`, olderThan)
}

type pgScores struct {
	db      *sqlx.DB
	timeout time.Duration
}

func (r *pgScores) Put(ctx context.Context, s domain.MonthlyScore) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO scores (symbol, as_of, scan_kind, total, trend, momentum, sentiment, divergence, volume,
			recommendation, conviction, entry, stop, target, rr, confidence)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (symbol, as_of, scan_kind) DO UPDATE SET
			total = EXCLUDED.total, trend = EXCLUDED.trend, momentum = EXCLUDED.momentum,
			sentiment = EXCLUDED.sentiment, divergence = EXCLUDED.divergence, volume = EXCLUDED.volume,
			recommendation = EXCLUDED.recommendation, conviction = EXCLUDED.conviction,
			entry = EXCLUDED.entry, stop = EXCLUDED.stop, target = EXCLUDED.target,
			rr = EXCLUDED.rr, confidence = EXCLUDED.confidence`,
		s.Symbol, s.AsOf, s.ScanKind, s.Total,
		s.Components.Trend, s.Components.Momentum, s.Components.Sentiment,
		s.Components.Divergence, s.Components.Volume,
		s.Recommendation, s.Conviction, s.Entry, s.Stop, s.Target, s.RiskReward, s.Confidence)
	if err != nil {
		return fmt.Errorf("upsert score %s: %w", s.Symbol, err)
	}
	return nil
}

func (r *pgScores) Latest(ctx context.Context, symbol domain.Symbol, kind domain.CandidateKind) (domain.MonthlyScore, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	row := r.db.QueryRowxContext(ctx, `
		SELECT symbol, as_of, scan_kind, total, trend, momentum, sentiment, divergence, volume,
			recommendation, conviction, entry, stop, target, rr, confidence
		FROM scores WHERE symbol = $1 AND scan_kind = $2
		ORDER BY as_of DESC LIMIT 1`, symbol, kind)

	var s domain.MonthlyScore
	err := row.Scan(&s.Symbol, &s.AsOf, &s.ScanKind, &s.Total,
		&s.Components.Trend, &s.Components.Momentum, &s.Components.Sentiment,
		&s.Components.Divergence, &s.Components.Volume,
		&s.Recommendation, &s.Conviction, &s.Entry, &s.Stop, &s.Target, &s.RiskReward, &s.Confidence)
	if err == sql.ErrNoRows {
		return domain.MonthlyScore{}, false, nil
	}
	if err != nil {
		return domain.MonthlyScore{}, false, fmt.Errorf("latest score: %w", err)
	}
	return s, true, nil
}

func (r *pgScores) Trim(ctx context.Context, olderThan time.Time) (int64, error) {
	return trim(ctx, r.db, r.timeout, `DELETE FROM scores WHERE as_of < $1`, olderThan)
}

type pgAlerts struct {
	db      *sqlx.DB
	timeout time.Duration
}

func (r *pgAlerts) PutIfAbsent(ctx context.Context, a domain.Alert) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO alerts (id, symbol, kind, priority, title, body, created_at, channels_attempted, channels_succeeded)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`,
		a.ID, a.Symbol, a.Kind, a.Priority, a.Title, a.Body, a.CreatedAt,
		pq.Array(a.ChannelsAttempted), pq.Array(a.ChannelsSucceeded))
	if err != nil {
		return false, fmt.Errorf("insert alert %s: %w", a.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("alert rows affected: %w", err)
	}
	return n > 0, nil
}

func (r *pgAlerts) RecordDelivery(ctx context.Context, id string, attempted, succeeded []string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx,
		`UPDATE alerts SET channels_attempted = $2, channels_succeeded = $3 WHERE id = $1`,
		id, pq.Array(attempted), pq.Array(succeeded))
	if err != nil {
		return fmt.Errorf("record delivery %s: %w", id, err)
	}
	return nil
}

func (r *pgAlerts) Ack(ctx context.Context, id string, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `UPDATE alerts SET ack_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("ack alert %s: %w", id, err)
	}
	return nil
}

func (r *pgAlerts) Since(ctx context.Context, since time.Time) ([]domain.Alert, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryxContext(ctx, `
		SELECT id, symbol, kind, priority, title, body, created_at, channels_attempted, channels_succeeded, ack_at
		FROM alerts WHERE created_at >= $1 ORDER BY created_at DESC`, since)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var out []domain.Alert
	for rows.Next() {
		var a domain.Alert
		var attempted, succeeded pq.StringArray
		var ackAt sql.NullTime
		if err := rows.Scan(&a.ID, &a.Symbol, &a.Kind, &a.Priority, &a.Title, &a.Body,
			&a.CreatedAt, &attempted, &succeeded, &ackAt); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		a.ChannelsAttempted = []string(attempted)
		a.ChannelsSucceeded = []string(succeeded)
		if ackAt.Valid {
			t := ackAt.Time
			a.AckAt = &t
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *pgAlerts) Trim(ctx context.Context, olderThan time.Time) (int64, error) {
	return trim(ctx, r.db, r.timeout, `DELETE FROM alerts WHERE created_at < $1`, olderThan)
}

func trim(ctx context.Context, db *sqlx.DB, timeout time.Duration, query string, olderThan time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := db.ExecContext(ctx, query, olderThan)
	if err != nil {
		return 0, fmt.Errorf("trim: %w", err)
	}
	return res.RowsAffected()
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
