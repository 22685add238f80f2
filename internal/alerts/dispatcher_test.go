package alerts

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/equityrun/internal/domain"
	"github.com/sawpanic/equityrun/internal/netlimit"
	"github.com/sawpanic/equityrun/internal/store"
)

// fakeChannel scripts per-call outcomes: each entry in errs is returned in
// order, then nil.
type fakeChannel struct {
	name    string
	enabled bool
	errs    []error
	calls   int
}

func (f *fakeChannel) Name() string  { return f.name }
func (f *fakeChannel) Enabled() bool { return f.enabled }
func (f *fakeChannel) Send(_ context.Context, _ domain.Alert) error {
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return err
	}
	return nil
}

func newTestDispatcher(t *testing.T, channels ...Channel) (*Dispatcher, store.Alerts) {
	t.Helper()
	st := store.NewMemorySet()
	d := NewDispatcher(DefaultDispatcherConfig(), st.Alerts, channels...)
	d.sleep = func(context.Context, time.Duration) error { return nil }
	// Tests dispatch bursts; the production channel budgets would throttle
	// them and obscure the behavior under test.
	d.limiter = netlimit.NewLimiter(nil, netlimit.Quota{RPS: 1000, Burst: 1000})
	return d, st.Alerts
}

func pumpCandidate(at time.Time) domain.Candidate {
	return domain.Candidate{
		Symbol:     "TSLA",
		Kind:       domain.KindIntradayPump,
		Score:      88,
		Priority:   domain.PriorityCritical,
		Reasons:    []string{"momentum breakout"},
		DetectedAt: at,
	}
}

func TestDispatchDedupWithinCooldown(t *testing.T) {
	telegram := &fakeChannel{name: "telegram", enabled: true}
	desktop := &fakeChannel{name: "desktop", enabled: true}
	d, alertStore := newTestDispatcher(t, telegram, desktop)

	base := time.Date(2026, 3, 3, 14, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return base }

	first, err := d.Dispatch(context.Background(), pumpCandidate(base))
	require.NoError(t, err)
	assert.False(t, first.Deduped)

	// 90 seconds later, same (symbol, kind), cooldown 300s: same bucket.
	d.now = func() time.Time { return base.Add(90 * time.Second) }
	second, err := d.Dispatch(context.Background(), pumpCandidate(base.Add(90*time.Second)))
	require.NoError(t, err)
	assert.True(t, second.Deduped)
	assert.Equal(t, first.AlertID, second.AlertID)

	assert.Equal(t, 1, telegram.calls, "exactly one delivery attempt per channel")
	assert.Equal(t, 1, desktop.calls)

	rows, err := alertStore.Since(context.Background(), base.Add(-time.Minute))
	require.NoError(t, err)
	assert.Len(t, rows, 1, "dedup must leave exactly one alert row")
}

func TestDispatchPerKindCooldown(t *testing.T) {
	cfg := DefaultDispatcherConfig()
	cfg.Cooldowns = map[domain.CandidateKind]time.Duration{
		domain.KindOpportunity: time.Hour,
	}
	st := store.NewMemorySet()
	d := NewDispatcher(cfg, st.Alerts, &fakeChannel{name: "desktop", enabled: true})
	d.sleep = func(context.Context, time.Duration) error { return nil }

	base := time.Date(2026, 3, 3, 0, 30, 0, 0, time.UTC)
	cand := domain.Candidate{Symbol: "NVDA", Kind: domain.KindOpportunity, Priority: domain.PriorityMedium}

	d.now = func() time.Time { return base }
	first, err := d.Dispatch(context.Background(), cand)
	require.NoError(t, err)
	require.False(t, first.Deduped)

	// 20 minutes later: inside the hour bucket.
	d.now = func() time.Time { return base.Add(20 * time.Minute) }
	second, err := d.Dispatch(context.Background(), cand)
	require.NoError(t, err)
	assert.True(t, second.Deduped)
}

func TestChannelFallbackTransientRetries(t *testing.T) {
	// Telegram fails transiently three times then succeeds; desktop succeeds
	// immediately; email is unconfigured.
	telegram := &fakeChannel{name: "telegram", enabled: true, errs: []error{
		fmt.Errorf("%w: flaky", domain.ErrChannelTransient),
		fmt.Errorf("%w: flaky", domain.ErrChannelTransient),
		fmt.Errorf("%w: flaky", domain.ErrChannelTransient),
	}}
	email := &fakeChannel{name: "email", enabled: false}
	desktop := &fakeChannel{name: "desktop", enabled: true}
	d, _ := newTestDispatcher(t, telegram, email, desktop)

	cand := domain.Candidate{
		Symbol: "ACME", Kind: domain.KindPremarketCatalyst,
		Priority: domain.PriorityHigh, Score: 80,
	}
	res, err := d.Dispatch(context.Background(), cand)
	require.NoError(t, err)

	assert.Equal(t, []string{"telegram", "desktop"}, res.Attempted)
	assert.Equal(t, []string{"telegram", "desktop"}, res.Succeeded)
	assert.Equal(t, 3, res.Retries)
	assert.EqualValues(t, 3, d.TotalRetries())
	assert.Equal(t, 4, telegram.calls)
}

func TestPermanentErrorDisablesChannel(t *testing.T) {
	telegram := &fakeChannel{name: "telegram", enabled: true, errs: []error{
		fmt.Errorf("%w: bad token", domain.ErrChannelPermanent),
	}}
	desktop := &fakeChannel{name: "desktop", enabled: true}
	d, _ := newTestDispatcher(t, telegram, desktop)

	first, err := d.Dispatch(context.Background(), domain.Candidate{
		Symbol: "AAPL", Kind: domain.KindIntradayPump, Priority: domain.PriorityCritical,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"telegram", "desktop"}, first.Attempted)
	assert.Equal(t, []string{"desktop"}, first.Succeeded)
	assert.Contains(t, d.Disabled(), "telegram")

	// Next alert for a different symbol never touches telegram.
	second, err := d.Dispatch(context.Background(), domain.Candidate{
		Symbol: "MSFT", Kind: domain.KindIntradayPump, Priority: domain.PriorityCritical,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"desktop"}, second.Attempted)
	assert.Equal(t, 1, telegram.calls)

	d.ResetChannel("telegram")
	assert.NotContains(t, d.Disabled(), "telegram")
}

func TestRoutingByPriority(t *testing.T) {
	assert.Equal(t, []string{"telegram", "email", "desktop", "audio"}, routing(domain.PriorityCritical))
	assert.Equal(t, []string{"telegram", "desktop", "audio"}, routing(domain.PriorityHigh))
	assert.Equal(t, []string{"desktop"}, routing(domain.PriorityMedium))
	assert.Empty(t, routing(domain.PriorityLow), "LOW is logged only")
}

func TestSucceededSubsetOfAttempted(t *testing.T) {
	flaky := &fakeChannel{name: "desktop", enabled: true, errs: []error{
		fmt.Errorf("%w: daemon down", domain.ErrChannelTransient),
		fmt.Errorf("%w: daemon down", domain.ErrChannelTransient),
		fmt.Errorf("%w: daemon down", domain.ErrChannelTransient),
		fmt.Errorf("%w: daemon down", domain.ErrChannelTransient),
	}}
	d, _ := newTestDispatcher(t, flaky)

	res, err := d.Dispatch(context.Background(), domain.Candidate{
		Symbol: "AMD", Kind: domain.KindIntradayPump, Priority: domain.PriorityMedium,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"desktop"}, res.Attempted)
	assert.Empty(t, res.Succeeded, "retries exhausted without success")
	for _, s := range res.Succeeded {
		assert.Contains(t, res.Attempted, s)
	}
}

func TestUnconfiguredChannelStartsDisabled(t *testing.T) {
	email := &fakeChannel{name: "email", enabled: false}
	d, _ := newTestDispatcher(t, email)
	assert.Contains(t, d.Disabled(), "email")
}
