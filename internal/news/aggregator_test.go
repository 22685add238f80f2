package news

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/equityrun/internal/domain"
	"github.com/sawpanic/equityrun/internal/netlimit"
)

type fakeSource struct {
	name     string
	articles []domain.Article
	err      error
}

func (f *fakeSource) Name() string { return f.name }
func (f *fakeSource) Fetch(context.Context, time.Time) ([]domain.Article, error) {
	return f.articles, f.err
}

func fakeArticle(source, title, url string, published time.Time) domain.Article {
	return domain.Article{
		ID:     domain.ArticleID(url, source, title, published),
		Title:  title,
		Source: source, URL: url,
		PublishedAt: published,
		FetchedAt:   published.Add(time.Minute),
	}
}

func fastLimiter() *netlimit.Limiter {
	return netlimit.NewLimiter(nil, netlimit.Quota{RPS: 1000, Burst: 1000})
}

func TestFetchAllMergesAndSorts(t *testing.T) {
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	agg := NewAggregator([]Source{
		&fakeSource{name: "a", articles: []domain.Article{
			fakeArticle("a", "$TSLA surges on earnings beat", "https://a.example/1", now.Add(-time.Hour)),
		}},
		&fakeSource{name: "b", articles: []domain.Article{
			fakeArticle("b", "NVDA announces buyback", "https://b.example/2", now.Add(-10*time.Minute)),
		}},
	}, fastLimiter(), testUniverse())

	articles := agg.FetchAll(context.Background(), now.Add(-24*time.Hour))
	require.Len(t, articles, 2)
	assert.True(t, articles[0].PublishedAt.After(articles[1].PublishedAt), "newest first")

	// Enrichment happened on the way through.
	assert.Equal(t, domain.Symbol("NVDA"), articles[0].Symbol)
	assert.Equal(t, domain.CatalystMedium, articles[0].CatalystTier)
	assert.Equal(t, domain.Symbol("TSLA"), articles[1].Symbol)
	assert.Equal(t, domain.CatalystHigh, articles[1].CatalystTier)
	assert.NotEmpty(t, articles[1].Sentiment.Label)
}

func TestFetchAllDedupsAcrossSources(t *testing.T) {
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	shared := fakeArticle("a", "AAPL upgrade", "https://shared.example/x", now)
	later := shared
	later.Source = "b"
	later.FetchedAt = shared.FetchedAt.Add(time.Minute)

	agg := NewAggregator([]Source{
		&fakeSource{name: "a", articles: []domain.Article{shared}},
		&fakeSource{name: "b", articles: []domain.Article{later}},
	}, fastLimiter(), testUniverse())

	articles := agg.FetchAll(context.Background(), now.Add(-time.Hour))
	require.Len(t, articles, 1, "same URL collapses to one row")
	assert.Equal(t, "b", articles[0].Source, "latest fetch wins")
}

func TestFetchAllFailedSourceIsolated(t *testing.T) {
	now := time.Now().UTC()
	agg := NewAggregator([]Source{
		&fakeSource{name: "good", articles: []domain.Article{
			fakeArticle("good", "F recall widens", "https://g.example/1", now),
		}},
		&fakeSource{name: "bad", err: fmt.Errorf("%w: bad: boom", domain.ErrNetwork)},
	}, fastLimiter(), testUniverse())

	articles := agg.FetchAll(context.Background(), now.Add(-time.Hour))
	assert.Len(t, articles, 1)

	status := agg.Status()
	require.Contains(t, status, "good")
	require.Contains(t, status, "bad")
	assert.True(t, status["good"].OK)
	assert.False(t, status["bad"].OK)
	assert.NotEmpty(t, status["bad"].Err)
}

func TestFetchAllEmptyIsHealthy(t *testing.T) {
	agg := NewAggregator([]Source{
		&fakeSource{name: "quiet", err: fmt.Errorf("%w: quiet", domain.ErrEmpty)},
	}, fastLimiter(), testUniverse())

	articles := agg.FetchAll(context.Background(), time.Now().Add(-time.Hour))
	assert.Empty(t, articles)
	assert.True(t, agg.Status()["quiet"].OK, "EMPTY is not a failure")
}

func TestBySymbol(t *testing.T) {
	now := time.Now().UTC()
	batch := []domain.Article{
		{ID: "1", Symbol: "TSLA", PublishedAt: now},
		{ID: "2", Symbol: "AAPL", PublishedAt: now},
		{ID: "3", Symbol: "TSLA", PublishedAt: now},
	}
	assert.Len(t, BySymbol(batch, "TSLA"), 2)
	assert.Empty(t, BySymbol(batch, "NVDA"))
}
