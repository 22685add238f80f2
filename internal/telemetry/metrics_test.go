package telemetry

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorGather(t *testing.T) {
	reg := NewRegistry(func() Stats {
		return Stats{
			ScannerTicks:     map[string]uint64{"intraday": 12, "premarket": 3},
			ScannerErrors:    map[string]int{"intraday": 1},
			QueueDepth:       4,
			QueueDropped:     map[string]uint64{"LOW": 2},
			AlertRetries:     7,
			DisabledChannels: 1,
			SourceUp:         map[string]bool{"yahoo-rss": true, "benzinga": false},
			WatchlistSize:    25,
		}
	})

	families, err := reg.Gather()
	require.NoError(t, err)

	byName := map[string]bool{}
	for _, mf := range families {
		byName[mf.GetName()] = true
	}
	for _, name := range []string{
		"equityrun_scanner_ticks_total",
		"equityrun_candidate_queue_depth",
		"equityrun_candidates_dropped_total",
		"equityrun_alert_retries_total",
		"equityrun_news_source_up",
		"equityrun_watchlist_size",
	} {
		assert.True(t, byName[name], "missing metric family %s", name)
	}
}

func TestServerHealthEndpoint(t *testing.T) {
	reg := NewRegistry(func() Stats { return Stats{} })
	srv := NewServer("127.0.0.1:0", func() map[string]any {
		return map[string]any{"scanners": map[string]string{"intraday": "ok"}}
	}, reg)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/health", nil)
	srv.srv.Handler.ServeHTTP(rr, req)

	require.Equal(t, 200, rr.Code)
	assert.Contains(t, rr.Body.String(), "intraday")

	rr = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/metrics", nil)
	srv.srv.Handler.ServeHTTP(rr, req)
	require.Equal(t, 200, rr.Code)
	assert.Contains(t, rr.Body.String(), "equityrun_candidate_queue_depth")
}
