package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/equityrun/internal/domain"
)

func bar(sym string, ts time.Time, close float64) domain.Bar {
	return domain.Bar{
		Symbol: domain.Symbol(sym), TS: ts,
		Open: close, High: close + 1, Low: close - 1, Close: close, Volume: 1000,
	}
}

func TestBarsPutGetRoundTrip(t *testing.T) {
	s := NewMemorySet()
	ctx := context.Background()
	ts := time.Date(2026, 3, 4, 16, 0, 0, 0, time.UTC)

	b := bar("AAPL", ts, 180)
	require.NoError(t, s.Bars.Put(ctx, []domain.Bar{b}))

	got, ok, err := s.Bars.Get(ctx, "AAPL", ts)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, b, got)
}

func TestBarsPutIsIdempotent(t *testing.T) {
	s := NewMemorySet()
	ctx := context.Background()
	ts := time.Date(2026, 3, 4, 16, 0, 0, 0, time.UTC)

	require.NoError(t, s.Bars.Put(ctx, []domain.Bar{bar("AAPL", ts, 180)}))
	require.NoError(t, s.Bars.Put(ctx, []domain.Bar{bar("AAPL", ts, 181)}))

	bars, err := s.Bars.Range(ctx, "AAPL", ts.Add(-time.Hour), ts.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, bars, 1, "upsert on key, not append")
	assert.Equal(t, 181.0, bars[0].Close, "latest write wins")
}

func TestBarsRangeOrdered(t *testing.T) {
	s := NewMemorySet()
	ctx := context.Background()
	base := time.Date(2026, 3, 2, 16, 0, 0, 0, time.UTC)

	// Insert out of order.
	require.NoError(t, s.Bars.Put(ctx, []domain.Bar{
		bar("MSFT", base.AddDate(0, 0, 2), 420),
		bar("MSFT", base, 400),
		bar("MSFT", base.AddDate(0, 0, 1), 410),
	}))

	bars, err := s.Bars.Range(ctx, "MSFT", base, base.AddDate(0, 0, 5))
	require.NoError(t, err)
	require.Len(t, bars, 3)
	for i := 1; i < len(bars); i++ {
		assert.True(t, bars[i-1].TS.Before(bars[i].TS), "strictly increasing ts")
	}
}

func TestBarsRejectInvalidOHLC(t *testing.T) {
	s := NewMemorySet()
	b := domain.Bar{Symbol: "BAD", TS: time.Now(), Open: 10, High: 9, Low: 11, Close: 10, Volume: 1}
	assert.Error(t, s.Bars.Put(context.Background(), []domain.Bar{b}))
}

func TestArticlesDedupAndIndex(t *testing.T) {
	s := NewMemorySet()
	ctx := context.Background()
	now := time.Now().UTC()

	a := domain.Article{
		ID: domain.ArticleID("https://news.example/x", "rss", "ACME beats", now),
		Symbol: "ACME", Title: "ACME beats", Source: "rss",
		URL: "https://news.example/x", PublishedAt: now, FetchedAt: now,
	}
	require.NoError(t, s.Articles.Upsert(ctx, a))
	require.NoError(t, s.Articles.Upsert(ctx, a), "second upsert is a no-op row-wise")

	list, err := s.Articles.BySymbol(ctx, "ACME", now.Add(-time.Hour), 10)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	all, err := s.Articles.Since(ctx, now.Add(-time.Hour), 10)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestScoresLatestByKind(t *testing.T) {
	s := NewMemorySet()
	ctx := context.Background()
	base := time.Date(2026, 3, 4, 20, 0, 0, 0, time.UTC)

	for i, total := range []float64{70, 80, 90} {
		require.NoError(t, s.Scores.Put(ctx, domain.MonthlyScore{
			Symbol: "NVDA", AsOf: base.Add(time.Duration(i) * time.Hour),
			ScanKind: domain.KindOpportunity, Total: total,
		}))
	}

	latest, ok, err := s.Scores.Latest(ctx, "NVDA", domain.KindOpportunity)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 90.0, latest.Total)

	_, ok, err = s.Scores.Latest(ctx, "NVDA", domain.KindIntradayPump)
	require.NoError(t, err)
	assert.False(t, ok, "kind is part of the key")
}

func TestAlertsPutIfAbsent(t *testing.T) {
	s := NewMemorySet()
	ctx := context.Background()
	now := time.Now()

	a := domain.Alert{
		ID: domain.AlertID("TSLA", domain.KindIntradayPump, now, 5*time.Minute),
		Symbol: "TSLA", Kind: domain.KindIntradayPump,
		Priority: domain.PriorityCritical, CreatedAt: now,
	}
	inserted, err := s.Alerts.PutIfAbsent(ctx, a)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = s.Alerts.PutIfAbsent(ctx, a)
	require.NoError(t, err)
	assert.False(t, inserted, "same cooldown bucket dedups")
}

func TestAlertsDeliveryAndAck(t *testing.T) {
	s := NewMemorySet()
	ctx := context.Background()
	now := time.Now()

	a := domain.Alert{ID: "alert-1", Symbol: "TSLA", Kind: domain.KindIntradayPump, CreatedAt: now}
	_, err := s.Alerts.PutIfAbsent(ctx, a)
	require.NoError(t, err)

	require.NoError(t, s.Alerts.RecordDelivery(ctx, "alert-1", []string{"telegram", "desktop"}, []string{"desktop"}))
	require.NoError(t, s.Alerts.Ack(ctx, "alert-1", now.Add(time.Minute)))

	list, err := s.Alerts.Since(ctx, now.Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, []string{"telegram", "desktop"}, list[0].ChannelsAttempted)
	assert.Equal(t, []string{"desktop"}, list[0].ChannelsSucceeded)
	assert.Subset(t, list[0].ChannelsAttempted, list[0].ChannelsSucceeded)
	require.NotNil(t, list[0].AckAt)
}

func TestRetentionTrimAll(t *testing.T) {
	s := NewMemorySet()
	ctx := context.Background()
	old := time.Now().AddDate(0, 0, -120)
	fresh := time.Now()

	require.NoError(t, s.Bars.Put(ctx, []domain.Bar{bar("OLD", old, 10), bar("NEW", fresh, 20)}))
	require.NoError(t, s.Articles.Upsert(ctx, domain.Article{ID: "old", PublishedAt: old}))
	require.NoError(t, s.Scores.Put(ctx, domain.MonthlyScore{Symbol: "OLD", AsOf: old}))
	_, err := s.Alerts.PutIfAbsent(ctx, domain.Alert{ID: "old", CreatedAt: old})
	require.NoError(t, err)

	n, err := s.TrimAll(ctx, time.Now().AddDate(0, 0, -90))
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	_, ok, err := s.Bars.Get(ctx, "NEW", fresh)
	require.NoError(t, err)
	assert.True(t, ok, "fresh rows survive")
}
