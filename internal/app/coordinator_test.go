package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/equityrun/internal/domain"
)

func testCoordinator(t *testing.T, mutate func(*Config)) *Coordinator {
	t.Helper()
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	cfg.Alerts.Channels.Telegram.Enabled = false
	cfg.Alerts.Channels.Email.Enabled = false
	cfg.Alerts.Channels.Audio.Enabled = false
	if mutate != nil {
		mutate(cfg)
	}
	c, err := NewCoordinator(cfg, Options{})
	require.NoError(t, err)
	return c
}

func TestStartStopIdempotent(t *testing.T) {
	c := testCoordinator(t, nil)
	ctx := context.Background()

	require.NoError(t, c.Start(ctx))
	require.NoError(t, c.Start(ctx), "second Start must be a no-op")
	c.Stop()
	c.Stop()

	require.NoError(t, c.Start(ctx), "restart after Stop")
	c.Stop()
}

func TestWatchlistMutation(t *testing.T) {
	c := testCoordinator(t, func(cfg *Config) {
		cfg.Watchlist = []string{"AAPL"}
	})

	require.NoError(t, c.AddSymbol("tsla"))
	assert.Equal(t, []domain.Symbol{"AAPL", "TSLA"}, c.Watchlist())

	require.NoError(t, c.RemoveSymbol("AAPL"))
	assert.Equal(t, []domain.Symbol{"TSLA"}, c.Watchlist())

	assert.Error(t, c.AddSymbol("not a ticker"))
}

func TestHealthShape(t *testing.T) {
	c := testCoordinator(t, nil)
	h := c.Health()

	assert.Contains(t, h, "running")
	assert.Contains(t, h, "phase")
	assert.Contains(t, h, "scanners")
	assert.Contains(t, h, "queue_depth")
	assert.Equal(t, false, h["running"])
}

// barsServer serves a synthetic rising daily series for any symbol.
func barsServer(t *testing.T, calls *atomic.Int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/bars" {
			http.NotFound(w, r)
			return
		}
		calls.Add(1)
		type wireBar struct {
			TS     int64   `json:"ts"`
			Open   float64 `json:"open"`
			High   float64 `json:"high"`
			Low    float64 `json:"low"`
			Close  float64 `json:"close"`
			Volume float64 `json:"volume"`
		}
		start := time.Now().AddDate(0, 0, -250)
		bars := make([]wireBar, 0, 250)
		price := 50.0
		for i := 0; i < 250; i++ {
			price *= 1.002
			bars = append(bars, wireBar{
				TS:   start.AddDate(0, 0, i).Unix(),
				Open: price * 0.99, High: price * 1.01, Low: price * 0.98,
				Close: price, Volume: 1e6,
			})
		}
		_ = json.NewEncoder(w).Encode(bars)
	}))
}

func TestScoreOnDemandAndCache(t *testing.T) {
	var calls atomic.Int64
	srv := barsServer(t, &calls)
	defer srv.Close()

	c := testCoordinator(t, func(cfg *Config) {
		cfg.Prices.BaseURL = srv.URL
	})
	ctx := context.Background()

	ms, err := c.Score(ctx, "aapl")
	require.NoError(t, err)
	assert.Equal(t, domain.Symbol("AAPL"), ms.Symbol)
	assert.GreaterOrEqual(t, ms.Total, 0.0)
	assert.LessOrEqual(t, ms.Total, 100.0)
	assert.EqualValues(t, 1, calls.Load())

	// Same symbol again: served from the hot cache, no vendor call.
	again, err := c.Score(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, ms.Total, again.Total)
	assert.EqualValues(t, 1, calls.Load())
}

func TestScanOnceEmptyWatchlist(t *testing.T) {
	c := testCoordinator(t, func(cfg *Config) {
		cfg.Watchlist = nil
	})
	cands, err := c.ScanOnce(context.Background())
	require.NoError(t, err)
	assert.Empty(t, cands)
}

func TestRecentAlertsEmpty(t *testing.T) {
	c := testCoordinator(t, nil)
	got, err := c.RecentAlerts(context.Background(), time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Empty(t, got)
}
