// Package news pulls headlines from RSS and HTML sources, tags catalyst
// keywords, extracts tickers, and merges everything into a deduplicated
// article set with sentiment attached.
package news

import (
	"context"
	"net/http"
	"time"

	"github.com/sawpanic/equityrun/internal/domain"
)

// fetchTimeout bounds a single source fetch inside an aggregation pass.
const fetchTimeout = 10 * time.Second

// Source is one news feed. Fetch returns raw articles; the aggregator owns
// symbol extraction, catalyst tagging, sentiment, and dedup.
type Source interface {
	// Name identifies the source in logs, rate-limit buckets, and status maps.
	Name() string
	// Fetch returns articles published since the cutoff. Implementations
	// return domain ingestion errors (NETWORK, RATE_LIMITED, EMPTY).
	Fetch(ctx context.Context, since time.Time) ([]domain.Article, error)
}

// httpDoer lets tests substitute the transport.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: fetchTimeout}
}
