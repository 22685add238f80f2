package scan

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/equityrun/internal/domain"
	"github.com/sawpanic/equityrun/internal/prices"
	"github.com/sawpanic/equityrun/internal/store"
)

type fakePrices struct {
	daily    []domain.Bar
	intraday []domain.Bar
	quote    prices.Quote
	dailyErr error
	quoteErr error
}

func (f *fakePrices) FetchDaily(context.Context, domain.Symbol, time.Time, time.Time) ([]domain.Bar, error) {
	return f.daily, f.dailyErr
}
func (f *fakePrices) FetchIntraday(context.Context, domain.Symbol, time.Time, time.Time) ([]domain.Bar, error) {
	return f.intraday, nil
}
func (f *fakePrices) FetchQuote(context.Context, domain.Symbol) (prices.Quote, error) {
	return f.quote, f.quoteErr
}

type fakeNews struct{ articles []domain.Article }

func (f *fakeNews) FetchAll(context.Context, time.Time) []domain.Article { return f.articles }

func minuteBars(end time.Time, closes []float64, volumes []float64) []domain.Bar {
	bars := make([]domain.Bar, len(closes))
	start := end.Add(-time.Duration(len(closes)-1) * time.Minute)
	prev := closes[0]
	for i := range closes {
		c := closes[i]
		lo, hi := prev, c
		if lo > hi {
			lo, hi = hi, lo
		}
		bars[i] = domain.Bar{
			Symbol: "X", TS: start.Add(time.Duration(i) * time.Minute),
			Open: prev, High: hi + 0.5, Low: lo - 0.5, Close: c, Volume: volumes[i],
		}
		prev = c
	}
	return bars
}

func flatDaily(n int, volume float64) []domain.Bar {
	bars := make([]domain.Bar, n)
	base := time.Date(2026, 6, 1, 20, 0, 0, 0, time.UTC)
	for i := range bars {
		bars[i] = domain.Bar{
			Symbol: "X", TS: base.AddDate(0, 0, i),
			Open: 10, High: 10.5, Low: 9.5, Close: 10, Volume: volume,
		}
	}
	return bars
}

// --- Premarket ---

func TestPremarketEmitsCriticalCatalyst(t *testing.T) {
	queue := NewQueue(16)
	article := domain.Article{
		Symbol: "ACME", Title: "ACME merger announced",
		CatalystTier: domain.CatalystCritical, CatalystTags: []string{"merger"},
		Sentiment: domain.SentimentScore{Polarity: 0.5},
	}
	src := &fakePrices{
		daily: flatDaily(35, 1e6),
		quote: prices.Quote{Symbol: "ACME", Price: 12, Volume: 5e6},
	}
	p := NewPremarket(DefaultPremarketConfig(), &fakeNews{articles: []domain.Article{article}}, src, src, queue)

	require.NoError(t, p.Tick(context.Background()))
	require.Equal(t, 1, queue.Len())

	c, err := queue.Pop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.KindPremarketCatalyst, c.Kind)
	assert.Equal(t, domain.PriorityCritical, c.Priority)
	// 60 + 20*log10(6) + 10*3 + 0.5*10 caps at 100.
	assert.Equal(t, 100.0, c.Score)
	assert.Contains(t, c.Reasons, "merger")
}

func TestPremarketSkipsWeakVolumeNonCritical(t *testing.T) {
	queue := NewQueue(16)
	article := domain.Article{
		Symbol: "ACME", Title: "ACME declares dividend",
		CatalystTier: domain.CatalystMedium,
	}
	src := &fakePrices{
		daily: flatDaily(35, 1e6),
		quote: prices.Quote{Symbol: "ACME", Price: 12, Volume: 1e6}, // ratio 1 < 3
	}
	p := NewPremarket(DefaultPremarketConfig(), &fakeNews{articles: []domain.Article{article}}, src, src, queue)

	require.NoError(t, p.Tick(context.Background()))
	assert.Zero(t, queue.Len())
}

func TestPremarketIgnoresUnresolvedSymbols(t *testing.T) {
	queue := NewQueue(16)
	p := NewPremarket(DefaultPremarketConfig(), &fakeNews{articles: []domain.Article{
		{Title: "Broad market story", CatalystTier: domain.CatalystHigh}, // no symbol
		{Symbol: "ACME", Title: "No catalyst here"},                      // no tier
	}}, &fakePrices{}, &fakePrices{}, queue)

	require.NoError(t, p.Tick(context.Background()))
	assert.Zero(t, queue.Len())
}

// --- Intraday ---

func pumpBars(end time.Time) []domain.Bar {
	closes := make([]float64, 61)
	volumes := make([]float64, 61)
	for i := range closes {
		closes[i] = 100
		volumes[i] = 1000
	}
	// Last 10 minutes ramp +4% on a closing volume spike.
	for i := 0; i < 10; i++ {
		closes[51+i] = 100 + float64(i+1)*0.4
	}
	volumes[60] = 10000
	return minuteBars(end, closes, volumes)
}

func newIntradayAt(t *testing.T, now time.Time, bars []domain.Bar, symbols []domain.Symbol) (*Intraday, *Queue) {
	t.Helper()
	queue := NewQueue(64)
	s := NewIntraday(DefaultIntradayConfig(), newTestClock(t), &fakePrices{intraday: bars}, NewWatchlist(symbols), queue)
	s.now = func() time.Time { return now }
	return s, queue
}

func TestIntradayMomentumBreakout(t *testing.T) {
	// Monday 2026-08-24 10:45 ET; the bar window starts after the opening
	// range so only the momentum setup can fire.
	now := time.Date(2026, 8, 24, 14, 45, 0, 0, time.UTC)
	s, queue := newIntradayAt(t, now, pumpBars(now), []domain.Symbol{"TSLA"})

	require.NoError(t, s.Tick(context.Background()))
	require.Equal(t, 1, queue.Len())

	c, _ := queue.Pop(context.Background())
	assert.Equal(t, domain.KindIntradayPump, c.Kind)
	assert.Equal(t, domain.Symbol("TSLA"), c.Symbol)
	assert.GreaterOrEqual(t, c.Score, 75.0)

	sig, ok := c.Payload.(IntradaySignal)
	require.True(t, ok)
	assert.Equal(t, "momentum_breakout", sig.Setup)
	assert.Equal(t, +1, sig.Direction)
	assert.Equal(t, sig.Entry-sig.ATR, sig.Stop)
	assert.InDelta(t, sig.Entry+1.8*sig.ATR, sig.Target, 1e-9)
	assert.InDelta(t, 1.8, sig.RiskReward, 1e-9)
}

func TestIntradayCooldownBlocksReentry(t *testing.T) {
	now := time.Date(2026, 8, 24, 14, 45, 0, 0, time.UTC)
	s, queue := newIntradayAt(t, now, pumpBars(now), []domain.Symbol{"TSLA"})

	require.NoError(t, s.Tick(context.Background()))
	require.NoError(t, s.Tick(context.Background()))
	assert.Equal(t, 1, queue.Len(), "cooldown and open position block the repeat")
}

func TestIntradayPositionCap(t *testing.T) {
	now := time.Date(2026, 8, 24, 14, 45, 0, 0, time.UTC)
	s, queue := newIntradayAt(t, now, pumpBars(now),
		[]domain.Symbol{"AAAA", "BBBB", "CCCC", "DDDD", "EEEE"})

	require.NoError(t, s.Tick(context.Background()))
	assert.Equal(t, 3, queue.Len(), "global cap of 3 concurrent positions")
}

func TestIntradayExitsAtCutoff(t *testing.T) {
	entryTime := time.Date(2026, 8, 24, 14, 45, 0, 0, time.UTC)
	s, queue := newIntradayAt(t, entryTime, pumpBars(entryTime), []domain.Symbol{"TSLA"})
	require.NoError(t, s.Tick(context.Background()))
	_, err := queue.Pop(context.Background())
	require.NoError(t, err)

	// 15:50 ET: past the entry cutoff.
	s.now = func() time.Time { return time.Date(2026, 8, 24, 19, 50, 0, 0, time.UTC) }
	require.NoError(t, s.Tick(context.Background()))
	require.Equal(t, 1, queue.Len())

	c, _ := queue.Pop(context.Background())
	assert.Equal(t, domain.KindIntradayExit, c.Kind)
	assert.Equal(t, domain.PriorityHigh, c.Priority)

	// Cutoff exits emit once per session.
	require.NoError(t, s.Tick(context.Background()))
	assert.Zero(t, queue.Len())
}

// --- Opportunity ---

func TestOpportunityAdmitFilter(t *testing.T) {
	o := &Opportunity{filter: DefaultOpportunityFilter()}

	strong := domain.MonthlyScore{
		Total: 90, RiskReward: 2.5,
		Components: domain.ComponentScores{Trend: 85, Momentum: 80, Sentiment: 75, Divergence: 72, Volume: 88},
	}
	bars := volatileDaily(60, 1.6)

	assert.True(t, o.admit(strong, bars))

	weakComponent := strong
	weakComponent.Components.Divergence = 60
	assert.False(t, o.admit(weakComponent, bars), "every component must clear the floor")

	weakRR := strong
	weakRR.RiskReward = 2.0
	assert.False(t, o.admit(weakRR, bars))

	lowTotal := strong
	lowTotal.Total = 80
	assert.False(t, o.admit(lowTotal, bars))

	assert.False(t, o.admit(strong, flatDaily(60, 1e6)), "flat series fails the volume and volatility gates")
}

// volatileDaily builds a series with ~30% annualized volatility and a recent
// volume pickup (last5/last20 ratio above the given target).
func volatileDaily(n int, volRatio float64) []domain.Bar {
	bars := make([]domain.Bar, n)
	base := time.Date(2026, 6, 1, 20, 0, 0, 0, time.UTC)
	price := 50.0
	for i := range bars {
		step := 1.019
		if i%2 == 1 {
			step = 1 / 1.015
		}
		price *= step
		vol := 1e6
		if i >= n-5 {
			vol = 1e6 * (volRatio*4 - 3) // lifts avg(last5)/avg(last20)
		}
		lo, hi := price/step, price
		if lo > hi {
			lo, hi = hi, lo
		}
		bars[i] = domain.Bar{
			Symbol: "X", TS: base.AddDate(0, 0, i),
			Open: price / step, High: hi + 0.1, Low: lo - 0.1, Close: price, Volume: vol,
		}
	}
	return bars
}

func TestAnnualizedVolatility(t *testing.T) {
	assert.Zero(t, AnnualizedVolatility(flatDaily(60, 1e6)))

	vol := AnnualizedVolatility(volatileDaily(120, 1.6))
	assert.Greater(t, vol, 0.15)
	assert.Less(t, vol, 0.80)
}

func TestOpportunitySweepScoresAndStores(t *testing.T) {
	bars := make([]domain.Bar, 220)
	base := time.Date(2025, 10, 1, 20, 0, 0, 0, time.UTC)
	prev := 100.0
	for i := range bars {
		c := 100 + float64(i)*0.4
		bars[i] = domain.Bar{
			Symbol: "UP", TS: base.AddDate(0, 0, i),
			Open: prev, High: c + 0.5, Low: prev - 0.5, Close: c, Volume: 1e6,
		}
		prev = c
	}

	st := store.NewMemorySet()
	queue := NewQueue(16)
	filter := OpportunityFilter{MaxAnnVol: 10} // admit everything with a score
	o := NewOpportunity(filter, 4, &fakePrices{daily: bars}, st, NewWatchlist([]domain.Symbol{"UP"}), queue)

	require.NoError(t, o.Sweep(context.Background()))

	latest, ok, err := st.Scores.Latest(context.Background(), "UP", domain.KindOpportunity)
	require.NoError(t, err)
	require.True(t, ok, "sweep persists the score")
	assert.Greater(t, latest.Total, 0.0)

	require.Equal(t, 1, queue.Len())
	c, _ := queue.Pop(context.Background())
	assert.Equal(t, domain.KindOpportunity, c.Kind)
	ms, isScore := c.Payload.(domain.MonthlyScore)
	require.True(t, isScore)
	assert.Equal(t, latest.Total, ms.Total)
}
