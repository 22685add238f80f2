package scan

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/equityrun/internal/domain"
	"github.com/sawpanic/equityrun/internal/market"
	"github.com/sawpanic/equityrun/internal/news"
	"github.com/sawpanic/equityrun/internal/prices"
)

// NewsFetcher is the aggregator surface the premarket scanner needs.
type NewsFetcher interface {
	FetchAll(ctx context.Context, since time.Time) []domain.Article
}

// PremarketConfig tunes the premarket catalyst scanner.
type PremarketConfig struct {
	Interval         time.Duration // 5m standard, 2m aggressive
	VolumeRatioFloor float64       // emit non-critical catalysts above this
	AvgVolumeDays    int           // lookback for the baseline daily volume
}

// DefaultPremarketConfig returns standard-mode settings.
func DefaultPremarketConfig() PremarketConfig {
	return PremarketConfig{Interval: 5 * time.Minute, VolumeRatioFloor: 3, AvgVolumeDays: 30}
}

// CatalystSignal is the payload attached to premarket candidates: the
// triggering article plus the quote snapshot that confirmed it.
type CatalystSignal struct {
	Article     domain.Article `json:"article"`
	Price       float64        `json:"price"`
	VolumeRatio float64        `json:"volume_ratio"`
}

// Premarket watches the news delta for catalyst articles and emits a
// candidate when premarket volume confirms, or unconditionally for CRITICAL
// catalysts.
type Premarket struct {
	cfg    PremarketConfig
	news   NewsFetcher
	quotes prices.QuoteSource
	bars   prices.Source
	queue  *Queue
	now    func() time.Time

	mu        sync.Mutex
	lastFetch time.Time
}

// NewPremarket wires the premarket catalyst scanner.
func NewPremarket(cfg PremarketConfig, fetcher NewsFetcher, quotes prices.QuoteSource, bars prices.Source, queue *Queue) *Premarket {
	if cfg.Interval <= 0 {
		cfg = DefaultPremarketConfig()
	}
	return &Premarket{cfg: cfg, news: fetcher, quotes: quotes, bars: bars, queue: queue, now: time.Now}
}

func (p *Premarket) Name() string                   { return "premarket" }
func (p *Premarket) Interval() time.Duration        { return p.cfg.Interval }
func (p *Premarket) Active(phase market.Phase) bool { return phase == market.PhasePremarket }

// Tick fetches the news delta since the previous tick and screens catalyst
// articles against premarket volume.
func (p *Premarket) Tick(ctx context.Context) error {
	now := p.now()

	p.mu.Lock()
	since := p.lastFetch
	if since.IsZero() {
		since = now.Add(-12 * time.Hour)
	}
	p.lastFetch = now
	p.mu.Unlock()

	for _, article := range p.news.FetchAll(ctx, since) {
		if article.CatalystTier == domain.CatalystNone || article.Symbol == "" {
			continue
		}
		p.evaluate(ctx, article)
	}
	return nil
}

func (p *Premarket) evaluate(ctx context.Context, article domain.Article) {
	price, ratio := p.volumeRatio(ctx, article.Symbol)

	critical := article.CatalystTier == domain.CatalystCritical
	if ratio < p.cfg.VolumeRatioFloor && !critical {
		return
	}

	priority := news.PriorityForTier(article.CatalystTier)
	score := math.Min(100,
		60+
			20*math.Log10(1+ratio)+
			10*float64(article.CatalystTier.Rank())+
			article.Sentiment.Polarity*10)

	reasons := append([]string{"catalyst:" + string(article.CatalystTier)}, article.CatalystTags...)
	accepted := p.queue.Push(domain.Candidate{
		Symbol:     article.Symbol,
		Kind:       domain.KindPremarketCatalyst,
		Score:      score,
		Priority:   priority,
		Reasons:    reasons,
		DetectedAt: p.now(),
		Payload:    CatalystSignal{Article: article, Price: price, VolumeRatio: ratio},
	})
	if accepted {
		log.Info().Str("symbol", string(article.Symbol)).Float64("score", score).
			Float64("volume_ratio", ratio).Str("tier", string(article.CatalystTier)).
			Msg("Premarket catalyst candidate")
	}
}

// volumeRatio returns the latest premarket quote price and its volume
// relative to the trailing average daily volume. Any fetch problem reads as
// no confirmation (ratio 0) rather than failing the tick.
func (p *Premarket) volumeRatio(ctx context.Context, symbol domain.Symbol) (price, ratio float64) {
	quote, err := p.quotes.FetchQuote(ctx, symbol)
	if err != nil {
		if !domain.Recoverable(err) {
			log.Error().Str("symbol", string(symbol)).Err(err).Msg("Premarket quote fetch failed")
		}
		return 0, 0
	}

	now := p.now()
	daily, err := p.bars.FetchDaily(ctx, symbol, now.AddDate(0, 0, -p.cfg.AvgVolumeDays-5), now)
	if err != nil || len(daily) == 0 {
		return quote.Price, 0
	}

	var sum float64
	n := 0
	for i := len(daily) - 1; i >= 0 && n < p.cfg.AvgVolumeDays; i-- {
		sum += daily[i].Volume
		n++
	}
	avg := sum / float64(n)
	if avg == 0 {
		return quote.Price, 0
	}
	return quote.Price, quote.Volume / avg
}
