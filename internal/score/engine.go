// Package score computes the composite 0-100 monthly score from price
// history, news and social sentiment, and derives the recommendation and
// trade parameters.
package score

import (
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/equityrun/internal/domain"
	"github.com/sawpanic/equityrun/internal/sentiment"
)

// Component weights. They sum to 1.
const (
	weightTrend      = 0.30
	weightMomentum   = 0.20
	weightSentiment  = 0.25
	weightDivergence = 0.15
	weightVolume     = 0.10
)

const (
	// MinBars is the floor below which scoring degrades to HOLD.
	MinBars = 60
	// PreferredBars is full-confidence history depth.
	PreferredBars = 200

	// minRiskReward gates trade parameter emission.
	minRiskReward = 2.0
)

// Input is everything the engine needs for one symbol. Bars are daily,
// ascending; Articles cover the last 30 days; Posts the last 7.
type Input struct {
	Symbol   domain.Symbol
	Kind     domain.CandidateKind
	Bars     []domain.Bar
	Articles []domain.Article
	Posts    []sentiment.Post
	AsOf     time.Time
}

// Engine is stateless and safe for concurrent use.
type Engine struct {
	analyzer *sentiment.Analyzer
}

// NewEngine returns a scoring engine.
func NewEngine() *Engine {
	return &Engine{analyzer: sentiment.New()}
}

// Score computes the composite score. An unsorted or duplicated series is an
// INVALID_SERIES error; short history is not an error and yields a low
// confidence HOLD instead.
func (e *Engine) Score(in Input) (domain.MonthlyScore, error) {
	if err := domain.ValidateSeries(in.Bars); err != nil {
		return domain.MonthlyScore{}, err
	}
	asOf := in.AsOf
	if asOf.IsZero() {
		if len(in.Bars) > 0 {
			asOf = in.Bars[len(in.Bars)-1].TS
		} else {
			asOf = time.Now().UTC()
		}
	}
	kind := in.Kind
	if kind == "" {
		kind = domain.KindOpportunity
	}

	if len(in.Bars) < MinBars {
		return domain.MonthlyScore{
			Symbol: in.Symbol, AsOf: asOf, ScanKind: kind,
			Recommendation: domain.Hold,
			Conviction:     domain.ConvictionLow,
			Confidence:     float64(len(in.Bars)) / PreferredBars,
			Reasons:        []string{domain.ErrInsufficientHistory.Error()},
		}, nil
	}

	var reasons []string
	sentScore, sentConf, hasNews := sentimentScore(e.analyzer, in.Articles, in.Posts, asOf)
	if !hasNews {
		reasons = append(reasons, "NO_NEWS")
	}

	components := domain.ComponentScores{
		Trend:      trendScore(in.Bars),
		Momentum:   momentumScore(in.Bars),
		Sentiment:  sentScore,
		Divergence: divergenceScore(in.Bars),
		Volume:     volumeScore(in.Bars),
	}

	indicatorConf := math.Min(1, float64(len(in.Bars))/PreferredBars)
	confidence := (weightTrend+weightMomentum+weightDivergence+weightVolume)*indicatorConf +
		weightSentiment*sentConf

	ms := compose(components, in.Bars[len(in.Bars)-1].Close)
	ms.Symbol = in.Symbol
	ms.AsOf = asOf
	ms.ScanKind = kind
	ms.Confidence = confidence
	ms.Reasons = append(reasons, ms.Reasons...)

	log.Debug().Str("symbol", string(in.Symbol)).Float64("total", ms.Total).
		Str("recommendation", string(ms.Recommendation)).Msg("Scored symbol")
	return ms, nil
}

// compose aggregates component scores into the total, recommendation and
// trade parameters.
func compose(c domain.ComponentScores, lastClose float64) domain.MonthlyScore {
	total := math.Round(weightTrend*c.Trend + weightMomentum*c.Momentum +
		weightSentiment*c.Sentiment + weightDivergence*c.Divergence +
		weightVolume*c.Volume)

	ms := domain.MonthlyScore{Total: total, Components: c}
	ms.Recommendation, ms.Conviction = recommendationFor(total)

	if total >= 60 {
		entry, stop, target, rr := tradeParams(total, lastClose)
		if rr >= minRiskReward {
			ms.Entry, ms.Stop, ms.Target, ms.RiskReward = entry, stop, target, rr
		} else {
			ms.Recommendation = domain.Hold
			ms.Conviction = domain.ConvictionLow
			ms.Reasons = append(ms.Reasons, "RISK_REWARD_BELOW_MINIMUM")
		}
	}
	return ms
}

// recommendationFor maps the total to the recommendation bands.
func recommendationFor(total float64) (domain.Recommendation, domain.Conviction) {
	switch {
	case total >= 90:
		return domain.StrongBuy, domain.ConvictionVeryHigh
	case total >= 75:
		return domain.Buy, domain.ConvictionHigh
	case total >= 60:
		return domain.ModerateBuy, domain.ConvictionMedium
	case total >= 40:
		return domain.Hold, domain.ConvictionLow
	case total >= 26:
		return domain.ModerateSell, domain.ConvictionMedium
	case total >= 11:
		return domain.Sell, domain.ConvictionHigh
	default:
		return domain.StrongSell, domain.ConvictionVeryHigh
	}
}

// tradeParams derives entry, stop, target and risk/reward from the total.
// Stops tighten and targets widen as the score rises.
func tradeParams(total, lastClose float64) (entry, stop, target, rr float64) {
	var stopPct, targetPct float64
	switch {
	case total >= 90:
		stopPct, targetPct = 0.06, 0.25
	case total >= 85:
		stopPct, targetPct = 0.08, 0.20
	default:
		stopPct, targetPct = 0.10, 0.15
	}
	entry = lastClose
	stop = entry * (1 - stopPct)
	target = entry * (1 + targetPct)
	rr = math.Round((target-entry)/(entry-stop)*100) / 100
	return entry, stop, target, rr
}
