package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/equityrun/internal/alerts"
	"github.com/sawpanic/equityrun/internal/cache"
	"github.com/sawpanic/equityrun/internal/domain"
	"github.com/sawpanic/equityrun/internal/market"
	"github.com/sawpanic/equityrun/internal/netlimit"
	"github.com/sawpanic/equityrun/internal/news"
	"github.com/sawpanic/equityrun/internal/prices"
	"github.com/sawpanic/equityrun/internal/scan"
	"github.com/sawpanic/equityrun/internal/score"
	"github.com/sawpanic/equityrun/internal/store"
	"github.com/sawpanic/equityrun/internal/telemetry"
)

// Options selects run-mode variants of the coordinator.
type Options struct {
	// Aggressive shortens tick intervals and loosens intraday momentum
	// thresholds. Risk parameters and per-source timeouts are unaffected.
	Aggressive bool
	// Only restricts the runtime to a single scanner: "premarket",
	// "intraday" or "opportunity". Empty runs everything.
	Only string
}

// Coordinator owns the watchlist and the lifecycle of every component. It is
// the only public entry point for the CLI and monitor surfaces.
type Coordinator struct {
	cfg  *Config
	opts Options

	clock       *market.Clock
	stores      store.Set
	hot         *cache.Hot
	priceSource prices.Source
	quotes      prices.QuoteSource
	aggregator  *news.Aggregator
	engine      *score.Engine
	watch       *scan.Watchlist
	queue       *scan.Queue
	runtime     *scan.Runtime
	opportunity *scan.Opportunity
	dispatcher  *alerts.Dispatcher
	cron        *cron.Cron

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewCoordinator builds and wires every component from the config. Nothing
// starts until Start.
func NewCoordinator(cfg *Config, opts Options) (*Coordinator, error) {
	clock, err := market.NewClock(cfg.Market.Timezone, cfg.Market.Holidays)
	if err != nil {
		return nil, fmt.Errorf("%w: market.timezone: %v", domain.ErrConfigInvalid, err)
	}

	stores := store.NewMemorySet()
	if cfg.Store.DSN != "" {
		stores, err = store.NewPostgresSet(cfg.Store.DSN, 10*time.Second)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
	}

	hot := cache.NewHot(cache.NewAuto(cfg.Cache.RedisAddr), 0, 0)

	client := prices.NewClient(cfg.Prices.BaseURL, cfg.Prices.APIKey,
		prices.WithRateLimit(cfg.Prices.RPS))

	watch := scan.NewWatchlist(cfg.Symbols())

	newsQuota := netlimit.PerMinute(cfg.News.PerMinute)
	var sources []news.Source
	for _, src := range cfg.News.RSS {
		sources = append(sources, news.NewRSSSource(src.Name, src.URL))
	}
	for _, src := range cfg.News.HTML {
		sources = append(sources, news.NewHTMLSource(src.Name, src.URL, src.Selectors))
	}
	aggregator := news.NewAggregator(sources, netlimit.NewLimiter(nil, newsQuota),
		news.NewUniverse(watch.Snapshot()))

	queue := scan.NewQueue(scan.DefaultQueueCapacity)

	c := &Coordinator{
		cfg: cfg, opts: opts,
		clock: clock, stores: stores, hot: hot,
		priceSource: client,
		quotes:      cache.NewCachedQuotes(client, hot),
		aggregator:  aggregator,
		engine:      score.NewEngine(),
		watch:       watch,
		queue:       queue,
	}
	c.buildScanners()
	c.buildDispatcher()
	return c, nil
}

func (c *Coordinator) buildScanners() {
	var scanners []scan.Scanner

	if c.opts.Only == "" || c.opts.Only == "premarket" {
		pmCfg := scan.DefaultPremarketConfig()
		pmCfg.Interval = time.Duration(c.cfg.Scan.Premarket.IntervalS) * time.Second
		if c.opts.Aggressive {
			pmCfg.Interval = 2 * time.Minute
		}
		scanners = append(scanners, scan.NewPremarket(pmCfg, c.aggregator, c.quotes, c.priceSource, c.queue))
	}

	if c.opts.Only == "" || c.opts.Only == "intraday" {
		idCfg := scan.DefaultIntradayConfig()
		if c.opts.Aggressive {
			idCfg = scan.AggressiveIntradayConfig()
		} else {
			idCfg.Interval = time.Duration(c.cfg.Scan.Intraday.IntervalS) * time.Second
			idCfg.MomentumReturn = c.cfg.Scan.Intraday.PriceThresholdPct / 100
			idCfg.MomentumVolRatio = c.cfg.Scan.Intraday.VolumeThresholdX
		}
		idCfg.Cooldown = time.Duration(c.cfg.Scan.Intraday.CooldownS) * time.Second
		idCfg.MaxPositions = c.cfg.Scan.Intraday.MaxPositions
		scanners = append(scanners, scan.NewIntraday(idCfg, c.clock, c.priceSource, c.watch, c.queue))
	}

	c.runtime = scan.NewRuntime(c.clock, scanners...)

	filter := scan.DefaultOpportunityFilter()
	filter.MinTotal = c.cfg.Scan.Opportunity.MinScore
	filter.MinRiskReward = c.cfg.Scan.Opportunity.MinRR
	c.opportunity = scan.NewOpportunity(filter, c.cfg.Scan.Opportunity.Pool,
		c.priceSource, c.stores, c.watch, c.queue)
}

func (c *Coordinator) buildDispatcher() {
	dcfg := alerts.DefaultDispatcherConfig()
	dcfg.Cooldowns = make(map[domain.CandidateKind]time.Duration, len(c.cfg.Alerts.CooldownS))
	for kind := range c.cfg.Alerts.CooldownS {
		dcfg.Cooldowns[domain.CandidateKind(kind)] = c.cfg.Cooldown(domain.CandidateKind(kind))
	}

	var channels []alerts.Channel
	if c.cfg.Alerts.Channels.Telegram.Enabled {
		channels = append(channels, alerts.NewTelegram(c.cfg.Alerts.Telegram))
	}
	if c.cfg.Alerts.Channels.Email.Enabled {
		channels = append(channels, alerts.NewEmail(c.cfg.Alerts.Email))
	}
	if c.cfg.Alerts.Channels.Desktop.Enabled {
		channels = append(channels, alerts.NewDesktop())
	}
	if c.cfg.Alerts.Channels.Audio.Enabled {
		channels = append(channels, alerts.NewAudio())
	}
	c.dispatcher = alerts.NewDispatcher(dcfg, c.stores.Alerts, channels...)
}

// Start launches the scanner runtime, dispatcher, opportunity schedule, and
// retention sweeper. Idempotent until Stop.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return nil
	}
	c.running = true

	ctx, c.cancel = context.WithCancel(ctx)

	c.runtime.Start(ctx)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.dispatcher.Run(ctx, c.queue); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("Dispatcher stopped unexpectedly")
		}
	}()

	if c.opts.Only == "" || c.opts.Only == "opportunity" {
		c.cron = cron.New(cron.WithLocation(c.clock.Location()))
		if _, err := c.cron.AddFunc(c.cfg.Scan.Opportunity.Cron, func() {
			phase := c.clock.Phase(time.Now())
			if phase != market.PhaseClosed && phase != market.PhaseAfterHours {
				log.Debug().Str("phase", string(phase)).Msg("Opportunity sweep skipped, market active")
				return
			}
			if err := c.opportunity.Sweep(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("Opportunity sweep failed")
			}
		}); err != nil {
			c.running = false
			c.cancel()
			return fmt.Errorf("%w: scan.opportunity.cron: %v", domain.ErrConfigInvalid, err)
		}
		c.cron.Start()
	}

	c.wg.Add(1)
	go c.retentionLoop(ctx)

	log.Info().Int("watchlist", len(c.watch.Snapshot())).Bool("aggressive", c.opts.Aggressive).
		Msg("Coordinator started")
	return nil
}

// Stop shuts everything down and waits for in-flight work. Idempotent.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	cancel := c.cancel
	cr := c.cron
	c.mu.Unlock()

	if cr != nil {
		<-cr.Stop().Done()
	}
	cancel()
	c.runtime.Stop()
	c.wg.Wait()
	log.Info().Msg("Coordinator stopped")
}

// retentionLoop trims rows past the retention window once a day.
func (c *Coordinator) retentionLoop(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		cutoff := time.Now().AddDate(0, 0, -c.cfg.Store.RetentionDays)
		n, err := c.stores.TrimAll(ctx, cutoff)
		if err != nil {
			log.Error().Err(err).Msg("Retention trim failed")
			continue
		}
		log.Info().Int64("rows", n).Time("cutoff", cutoff).Msg("Retention trim done")
	}
}

// AddSymbol puts a ticker on the watchlist; scanners pick it up on their next
// tick.
func (c *Coordinator) AddSymbol(raw string) error {
	s, err := domain.NormalizeSymbol(raw)
	if err != nil {
		return err
	}
	c.watch.Add(s)
	c.aggregator.SetUniverse(news.NewUniverse(c.watch.Snapshot()))
	log.Info().Str("symbol", string(s)).Msg("Symbol added to watchlist")
	return nil
}

// RemoveSymbol drops a ticker from the watchlist.
func (c *Coordinator) RemoveSymbol(raw string) error {
	s, err := domain.NormalizeSymbol(raw)
	if err != nil {
		return err
	}
	c.watch.Remove(s)
	c.aggregator.SetUniverse(news.NewUniverse(c.watch.Snapshot()))
	log.Info().Str("symbol", string(s)).Msg("Symbol removed from watchlist")
	return nil
}

// Watchlist returns the current symbol set.
func (c *Coordinator) Watchlist() []domain.Symbol {
	return c.watch.Snapshot()
}

// Score computes the monthly score for one symbol on demand, serving from
// the hot cache when a fresh result exists.
func (c *Coordinator) Score(ctx context.Context, raw string) (domain.MonthlyScore, error) {
	symbol, err := domain.NormalizeSymbol(raw)
	if err != nil {
		return domain.MonthlyScore{}, err
	}
	if ms, ok := c.hot.Score(ctx, symbol, domain.KindOpportunity); ok {
		return ms, nil
	}

	now := time.Now()
	bars, err := c.priceSource.FetchDaily(ctx, symbol, now.AddDate(0, 0, -320), now)
	if err != nil {
		return domain.MonthlyScore{}, fmt.Errorf("score %s: %w", symbol, err)
	}
	articles, err := c.stores.Articles.BySymbol(ctx, symbol, now.AddDate(0, 0, -30), 200)
	if err != nil {
		log.Warn().Str("symbol", string(symbol)).Err(err).Msg("Article load failed, scoring without news")
		articles = nil
	}

	ms, err := c.engine.Score(score.Input{
		Symbol: symbol, Kind: domain.KindOpportunity,
		Bars: bars, Articles: articles, AsOf: now,
	})
	if err != nil {
		return domain.MonthlyScore{}, err
	}
	if err := c.stores.Scores.Put(ctx, ms); err != nil {
		log.Warn().Str("symbol", string(symbol)).Err(err).Msg("Score persist failed")
	}
	c.hot.PutScore(ctx, ms)
	return ms, nil
}

// RecentAlerts reads alerts created at or after the cutoff through the store.
func (c *Coordinator) RecentAlerts(ctx context.Context, since time.Time) ([]domain.Alert, error) {
	return c.stores.Alerts.Since(ctx, since)
}

// ScanOnce runs a single opportunity sweep and returns the candidates it
// produced instead of dispatching them.
func (c *Coordinator) ScanOnce(ctx context.Context) ([]domain.Candidate, error) {
	if err := c.opportunity.Sweep(ctx); err != nil {
		return nil, err
	}

	drained, drain := context.WithCancel(context.Background())
	drain()
	var out []domain.Candidate
	for {
		cand, err := c.queue.Pop(drained)
		if err != nil {
			break
		}
		out = append(out, cand)
	}
	return out, nil
}

// Health reports per-component status for the health endpoint and CLI.
func (c *Coordinator) Health() map[string]any {
	c.mu.Lock()
	running := c.running
	c.mu.Unlock()

	scanners := map[string]any{}
	for name, st := range c.runtime.Health() {
		status := "ok"
		if st.QuarantinedTill != nil {
			status = "quarantined"
		} else if st.ConsecutiveErrs > 0 {
			status = "degraded"
		}
		scanners[name] = map[string]any{
			"status":    status,
			"ticks":     st.Ticks,
			"last_tick": st.LastTick,
			"last_err":  st.LastError,
		}
	}

	sources := map[string]any{}
	for name, st := range c.aggregator.Status() {
		status := "ok"
		if !st.OK {
			status = "failing"
		}
		sources[name] = map[string]any{"status": status, "articles": st.Articles, "err": st.Err}
	}

	return map[string]any{
		"running":           running,
		"phase":             string(c.clock.Phase(time.Now())),
		"watchlist_size":    len(c.watch.Snapshot()),
		"queue_depth":       c.queue.Len(),
		"scanners":          scanners,
		"news_sources":      sources,
		"disabled_channels": c.dispatcher.Disabled(),
	}
}

// Stats assembles the telemetry snapshot for the Prometheus collector.
func (c *Coordinator) Stats() telemetry.Stats {
	s := telemetry.Stats{
		ScannerTicks:  map[string]uint64{},
		ScannerErrors: map[string]int{},
		QueueDropped:  map[string]uint64{},
		SourceUp:      map[string]bool{},
		QueueDepth:    c.queue.Len(),
		AlertRetries:  c.dispatcher.TotalRetries(),
		WatchlistSize: len(c.watch.Snapshot()),
	}
	for name, st := range c.runtime.Health() {
		s.ScannerTicks[name] = st.Ticks
		s.ScannerErrors[name] = st.ConsecutiveErrs
	}
	for priority, n := range c.queue.Dropped() {
		s.QueueDropped[string(priority)] = n
	}
	for name, st := range c.aggregator.Status() {
		s.SourceUp[name] = st.OK
	}
	s.DisabledChannels = len(c.dispatcher.Disabled())
	return s
}
