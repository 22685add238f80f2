// Package prices fetches OHLCV bars from an HTTP market-data vendor. Minute
// bars are the finest granularity; there is no tick streaming.
package prices

import (
	"context"
	"time"

	"github.com/sawpanic/equityrun/internal/domain"
)

// Interval selects bar granularity.
type Interval string

const (
	IntervalDaily  Interval = "1d"
	IntervalMinute Interval = "1m"
)

// Source fetches bar series for a symbol and date range. Implementations
// return series sorted by ts with no duplicates, or one of the domain
// ingestion errors (NETWORK, RATE_LIMITED, SYMBOL_UNKNOWN, EMPTY).
//
// EMPTY during market-closed hours is expected and non-fatal for callers.
type Source interface {
	FetchDaily(ctx context.Context, symbol domain.Symbol, from, to time.Time) ([]domain.Bar, error)
	FetchIntraday(ctx context.Context, symbol domain.Symbol, from, to time.Time) ([]domain.Bar, error)
}

// Quote is a lightweight latest-price snapshot used by the premarket scanner.
type Quote struct {
	Symbol domain.Symbol `json:"symbol"`
	Price  float64       `json:"price"`
	Volume float64       `json:"volume"`
	TS     time.Time     `json:"ts"`
}

// QuoteSource fetches the most recent quote, including extended-hours prints
// when the vendor provides them.
type QuoteSource interface {
	FetchQuote(ctx context.Context, symbol domain.Symbol) (Quote, error)
}
