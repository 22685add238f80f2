package scan

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/equityrun/internal/domain"
	"github.com/sawpanic/equityrun/internal/prices"
	"github.com/sawpanic/equityrun/internal/score"
	"github.com/sawpanic/equityrun/internal/store"
)

// OpportunityFilter is the admission gate for opportunity candidates.
type OpportunityFilter struct {
	MinTotal       float64 // composite floor
	MinRiskReward  float64
	MinComponent   float64 // every component must clear this
	MinVolumeRatio float64 // avg(last5)/avg(last20)
	MinAnnVol      float64 // annualized volatility band
	MaxAnnVol      float64
}

// DefaultOpportunityFilter returns the professional-mode floors.
func DefaultOpportunityFilter() OpportunityFilter {
	return OpportunityFilter{
		MinTotal:       85,
		MinRiskReward:  2.5,
		MinComponent:   70,
		MinVolumeRatio: 1.3,
		MinAnnVol:      0.15,
		MaxAnnVol:      0.80,
	}
}

// Opportunity walks the whole watchlist through the scoring engine in a
// bounded worker pool. It is scheduled off-hours by the coordinator rather
// than ticking on the runtime, so it never competes with the intraday
// scanner for rate-limit budget.
type Opportunity struct {
	filter     OpportunityFilter
	poolSize   int
	bars       prices.Source
	articles   store.Articles
	scores     store.Scores
	engine     *score.Engine
	watch      *Watchlist
	queue      *Queue
	quarantine *symbolTracker
	now        func() time.Time
}

// NewOpportunity wires the opportunity sweep. poolSize <= 0 defaults to 10.
func NewOpportunity(filter OpportunityFilter, poolSize int, bars prices.Source, st store.Set, watch *Watchlist, queue *Queue) *Opportunity {
	if poolSize <= 0 {
		poolSize = 10
	}
	return &Opportunity{
		filter: filter, poolSize: poolSize,
		bars: bars, articles: st.Articles, scores: st.Scores,
		engine: score.NewEngine(), watch: watch, queue: queue,
		quarantine: newSymbolTracker(symbolQuarantineAfter),
		now:        time.Now,
	}
}

// Sweep scores every symbol on the watchlist and emits the ones clearing the
// filter. Per-symbol failures are logged and skipped; the sweep only fails on
// cancellation.
func (o *Opportunity) Sweep(ctx context.Context) error {
	runID := uuid.NewString()
	symbols := o.watch.Snapshot()
	start := o.now()
	log.Info().Str("run_id", runID).Int("symbols", len(symbols)).Msg("Opportunity sweep started")

	sem := make(chan struct{}, o.poolSize)
	var wg sync.WaitGroup
	var emitted sync.Map

	for _, sym := range symbols {
		if err := ctx.Err(); err != nil {
			break
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(sym domain.Symbol) {
			defer wg.Done()
			defer func() { <-sem }()
			if o.sweepOne(ctx, runID, sym) {
				emitted.Store(sym, struct{}{})
			}
		}(sym)
	}
	wg.Wait()

	count := 0
	emitted.Range(func(any, any) bool { count++; return true })
	log.Info().Str("run_id", runID).Int("candidates", count).
		Dur("took", o.now().Sub(start)).Msg("Opportunity sweep finished")
	return ctx.Err()
}

func (o *Opportunity) sweepOne(ctx context.Context, runID string, sym domain.Symbol) bool {
	now := o.now()
	if o.quarantine.Blocked(sym, now) {
		return false
	}
	bars, err := o.bars.FetchDaily(ctx, sym, now.AddDate(0, 0, -320), now)
	if err != nil {
		if o.quarantine.Fail(sym, now) {
			log.Warn().Str("symbol", string(sym)).Err(err).
				Msg("Symbol quarantined for the session after repeated failures")
		}
		if domain.Recoverable(err) {
			log.Debug().Str("symbol", string(sym)).Err(err).Msg("Opportunity fetch skipped")
		} else {
			log.Error().Str("symbol", string(sym)).Err(err).Msg("Opportunity fetch failed")
		}
		return false
	}
	o.quarantine.Succeed(sym, now)

	articles, err := o.articles.BySymbol(ctx, sym, now.AddDate(0, 0, -30), 200)
	if err != nil {
		log.Error().Str("symbol", string(sym)).Err(err).Msg("Opportunity article load failed")
		articles = nil
	}

	ms, err := o.engine.Score(score.Input{
		Symbol: sym, Kind: domain.KindOpportunity,
		Bars: bars, Articles: articles, AsOf: now,
	})
	if err != nil {
		log.Error().Str("symbol", string(sym)).Err(err).Msg("Opportunity scoring failed")
		return false
	}
	if err := o.scores.Put(ctx, ms); err != nil {
		log.Error().Str("symbol", string(sym)).Err(err).Msg("Score persist failed")
	}

	if !o.admit(ms, bars) {
		return false
	}

	o.queue.Push(domain.Candidate{
		Symbol:     sym,
		Kind:       domain.KindOpportunity,
		Score:      ms.Total,
		Priority:   domain.PriorityHigh,
		Reasons:    append([]string{"run:" + runID}, ms.Reasons...),
		DetectedAt: now,
		Payload:    ms,
	})
	log.Info().Str("symbol", string(sym)).Float64("total", ms.Total).
		Str("run_id", runID).Msg("Opportunity candidate")
	return true
}

// admit applies the full professional filter.
func (o *Opportunity) admit(ms domain.MonthlyScore, bars []domain.Bar) bool {
	if ms.Total < o.filter.MinTotal || ms.RiskReward < o.filter.MinRiskReward {
		return false
	}
	c := ms.Components
	for _, v := range []float64{c.Trend, c.Momentum, c.Sentiment, c.Divergence, c.Volume} {
		if v < o.filter.MinComponent {
			return false
		}
	}
	ratio, ok := score.VolumeRatio(bars, 5, 20)
	if !ok || ratio < o.filter.MinVolumeRatio {
		return false
	}
	vol := AnnualizedVolatility(bars)
	return vol >= o.filter.MinAnnVol && vol <= o.filter.MaxAnnVol
}

// AnnualizedVolatility is the stdev of daily log returns scaled by sqrt(252).
func AnnualizedVolatility(bars []domain.Bar) float64 {
	if len(bars) < 2 {
		return 0
	}
	rets := make([]float64, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		if bars[i-1].Close <= 0 || bars[i].Close <= 0 {
			continue
		}
		rets = append(rets, math.Log(bars[i].Close/bars[i-1].Close))
	}
	if len(rets) < 2 {
		return 0
	}
	var mean float64
	for _, r := range rets {
		mean += r
	}
	mean /= float64(len(rets))
	var variance float64
	for _, r := range rets {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(rets) - 1)
	return math.Sqrt(variance) * math.Sqrt(252)
}
