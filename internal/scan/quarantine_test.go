package scan

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/equityrun/internal/domain"
	"github.com/sawpanic/equityrun/internal/prices"
	"github.com/sawpanic/equityrun/internal/store"
)

func TestSymbolTrackerQuarantinesAfterConsecutiveFailures(t *testing.T) {
	now := time.Date(2026, 8, 24, 15, 0, 0, 0, time.UTC)
	tr := newSymbolTracker(5)

	for i := 0; i < 4; i++ {
		assert.False(t, tr.Fail("TSLA", now))
	}
	assert.False(t, tr.Blocked("TSLA", now))

	assert.True(t, tr.Fail("TSLA", now), "fifth consecutive failure trips the quarantine")
	assert.True(t, tr.Blocked("TSLA", now))
	assert.False(t, tr.Fail("TSLA", now), "only the tripping failure reports true")

	// Other symbols keep their own counters.
	assert.False(t, tr.Blocked("NVDA", now))

	// The next session starts clean.
	assert.False(t, tr.Blocked("TSLA", now.AddDate(0, 0, 1)))
}

func TestSymbolTrackerSuccessResetsCount(t *testing.T) {
	now := time.Date(2026, 8, 24, 15, 0, 0, 0, time.UTC)
	tr := newSymbolTracker(5)

	for i := 0; i < 4; i++ {
		tr.Fail("TSLA", now)
	}
	tr.Succeed("TSLA", now)
	for i := 0; i < 4; i++ {
		assert.False(t, tr.Fail("TSLA", now))
	}
	assert.False(t, tr.Blocked("TSLA", now), "failures are only counted consecutively")
}

// flakySource scripts per-call errors; exhausted entries fall back to err.
// Successful calls return no bars, which every scanner treats as a clean
// no-signal tick.
type flakySource struct {
	mu    sync.Mutex
	calls int
	errs  []error
	err   error
}

func (f *flakySource) fetch() ([]domain.Bar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	if i < len(f.errs) {
		return nil, f.errs[i]
	}
	return nil, f.err
}

func (f *flakySource) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *flakySource) FetchDaily(context.Context, domain.Symbol, time.Time, time.Time) ([]domain.Bar, error) {
	return f.fetch()
}
func (f *flakySource) FetchIntraday(context.Context, domain.Symbol, time.Time, time.Time) ([]domain.Bar, error) {
	return f.fetch()
}
func (f *flakySource) FetchQuote(context.Context, domain.Symbol) (prices.Quote, error) {
	return prices.Quote{}, nil
}

func TestIntradayQuarantinesFailingSymbol(t *testing.T) {
	now := time.Date(2026, 8, 24, 14, 45, 0, 0, time.UTC)
	src := &flakySource{err: fmt.Errorf("%w: feed down", domain.ErrNetwork)}
	queue := NewQueue(16)
	s := NewIntraday(DefaultIntradayConfig(), newTestClock(t), src, NewWatchlist([]domain.Symbol{"TSLA"}), queue)
	s.now = func() time.Time { return now }

	for i := 0; i < 8; i++ {
		require.NoError(t, s.Tick(context.Background()))
	}
	assert.Equal(t, 5, src.count(), "symbol is sidelined for the session after five consecutive failures")
}

func TestIntradayFailureCountResetsOnSuccess(t *testing.T) {
	now := time.Date(2026, 8, 24, 14, 45, 0, 0, time.UTC)
	netErr := fmt.Errorf("%w: feed down", domain.ErrNetwork)
	// Four failures, one success, then failures until quarantined.
	src := &flakySource{errs: []error{netErr, netErr, netErr, netErr, nil}, err: netErr}
	queue := NewQueue(16)
	s := NewIntraday(DefaultIntradayConfig(), newTestClock(t), src, NewWatchlist([]domain.Symbol{"TSLA"}), queue)
	s.now = func() time.Time { return now }

	for i := 0; i < 12; i++ {
		require.NoError(t, s.Tick(context.Background()))
	}
	assert.Equal(t, 10, src.count(), "the success resets the streak, five more failures quarantine")
}

func TestOpportunitySweepSkipsQuarantinedSymbol(t *testing.T) {
	src := &flakySource{err: fmt.Errorf("%w: feed down", domain.ErrNetwork)}
	queue := NewQueue(16)
	o := NewOpportunity(DefaultOpportunityFilter(), 1, src, store.NewMemorySet(), NewWatchlist([]domain.Symbol{"TSLA"}), queue)
	o.now = func() time.Time { return time.Date(2026, 8, 24, 20, 15, 0, 0, time.UTC) }

	for i := 0; i < 8; i++ {
		require.NoError(t, o.Sweep(context.Background()))
	}
	assert.Equal(t, 5, src.count())
}
