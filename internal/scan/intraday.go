package scan

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/equityrun/internal/domain"
	"github.com/sawpanic/equityrun/internal/indicators"
	"github.com/sawpanic/equityrun/internal/market"
	"github.com/sawpanic/equityrun/internal/prices"
)

// IntradayConfig tunes the pump scanner. Aggressive mode shortens the
// interval and loosens the momentum thresholds; it never loosens risk
// parameters.
type IntradayConfig struct {
	Interval         time.Duration // 30s standard, 15s aggressive
	ScoreThreshold   float64       // 75 standard, 70 aggressive
	MomentumReturn   float64       // 10-minute return floor: 0.03 / 0.02
	MomentumVolRatio float64       // volume ratio floor: 5 / 3
	VWAPBandATR      float64       // VWAP touch band in ATRs
	Cooldown         time.Duration // per-symbol re-entry cooldown
	MaxPositions     int           // global concurrent position cap
}

// DefaultIntradayConfig returns standard-mode settings.
func DefaultIntradayConfig() IntradayConfig {
	return IntradayConfig{
		Interval:         30 * time.Second,
		ScoreThreshold:   75,
		MomentumReturn:   0.03,
		MomentumVolRatio: 5,
		VWAPBandATR:      0.5,
		Cooldown:         5 * time.Minute,
		MaxPositions:     3,
	}
}

// AggressiveIntradayConfig returns aggressive-mode settings.
func AggressiveIntradayConfig() IntradayConfig {
	cfg := DefaultIntradayConfig()
	cfg.Interval = 15 * time.Second
	cfg.ScoreThreshold = 70
	cfg.MomentumReturn = 0.02
	cfg.MomentumVolRatio = 3
	return cfg
}

// IntradaySignal is the payload attached to pump and exit candidates.
type IntradaySignal struct {
	Setup       string  `json:"setup"`
	Direction   int     `json:"direction"` // +1 long, -1 short
	Entry       float64 `json:"entry"`
	Stop        float64 `json:"stop"`
	Target      float64 `json:"target"`
	RiskReward  float64 `json:"risk_reward"`
	ATR         float64 `json:"atr"`
	VolumeRatio float64 `json:"volume_ratio"`
}

type position struct {
	openedAt time.Time
	signal   IntradaySignal
	score    float64
}

// Intraday scans one-minute bars for pump setups during the regular session.
type Intraday struct {
	cfg        IntradayConfig
	clock      *market.Clock
	bars       prices.Source
	watch      *Watchlist
	queue      *Queue
	quarantine *symbolTracker
	now        func() time.Time

	mu        sync.Mutex
	cooldowns map[domain.Symbol]time.Time
	positions map[domain.Symbol]position
	exitedDay time.Time
}

// NewIntraday wires the intraday pump scanner.
func NewIntraday(cfg IntradayConfig, clock *market.Clock, bars prices.Source, watch *Watchlist, queue *Queue) *Intraday {
	if cfg.Interval <= 0 {
		cfg = DefaultIntradayConfig()
	}
	return &Intraday{
		cfg: cfg, clock: clock, bars: bars, watch: watch, queue: queue,
		quarantine: newSymbolTracker(symbolQuarantineAfter),
		now:        time.Now,
		cooldowns:  make(map[domain.Symbol]time.Time),
		positions:  make(map[domain.Symbol]position),
	}
}

func (s *Intraday) Name() string                   { return "intraday" }
func (s *Intraday) Interval() time.Duration        { return s.cfg.Interval }
func (s *Intraday) Active(phase market.Phase) bool { return phase == market.PhaseRegular }

// Tick evaluates every watchlist symbol against the setup library. After the
// 15:45 entry cutoff it flushes exit candidates for all open positions and
// takes no new entries.
func (s *Intraday) Tick(ctx context.Context) error {
	now := s.now()
	if !now.Before(s.clock.EntryCutoff(now)) {
		s.flushExits(now)
		return nil
	}

	symbols := s.watch.Snapshot()
	var firstErr error
	for _, sym := range symbols {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.quarantine.Blocked(sym, now) {
			continue
		}
		if err := s.evaluate(ctx, sym, now); err != nil {
			if s.quarantine.Fail(sym, now) {
				log.Warn().Str("symbol", string(sym)).Err(err).
					Msg("Symbol quarantined for the session after repeated failures")
			}
			if domain.Recoverable(err) {
				log.Debug().Str("symbol", string(sym)).Err(err).Msg("Intraday fetch skipped")
				continue
			}
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		s.quarantine.Succeed(sym, now)
	}
	return firstErr
}

func (s *Intraday) evaluate(ctx context.Context, sym domain.Symbol, now time.Time) error {
	bars, err := s.bars.FetchIntraday(ctx, sym, now.Add(-60*time.Minute), now)
	if err != nil {
		return err
	}

	hit, ok := s.bestSetup(bars, now)
	if !ok || hit.score < s.cfg.ScoreThreshold {
		return nil
	}

	s.mu.Lock()
	if until, cooling := s.cooldowns[sym]; cooling && now.Before(until) {
		s.mu.Unlock()
		return nil
	}
	if _, open := s.positions[sym]; open || len(s.positions) >= s.cfg.MaxPositions {
		s.mu.Unlock()
		return nil
	}
	s.cooldowns[sym] = now.Add(s.cfg.Cooldown)
	s.positions[sym] = position{openedAt: now, signal: hit.signal, score: hit.score}
	s.mu.Unlock()

	priority := domain.PriorityMedium
	switch {
	case hit.score >= 90:
		priority = domain.PriorityCritical
	case hit.score >= 80:
		priority = domain.PriorityHigh
	}

	s.queue.Push(domain.Candidate{
		Symbol:     sym,
		Kind:       domain.KindIntradayPump,
		Score:      hit.score,
		Priority:   priority,
		Reasons:    hit.reasons,
		DetectedAt: now,
		Payload:    hit.signal,
	})
	log.Info().Str("symbol", string(sym)).Str("setup", hit.signal.Setup).
		Float64("score", hit.score).Msg("Intraday pump candidate")
	return nil
}

// flushExits emits one EXIT candidate per open position, once per session.
func (s *Intraday) flushExits(now time.Time) {
	s.mu.Lock()
	day := now.Truncate(24 * time.Hour)
	if len(s.positions) == 0 || s.exitedDay.Equal(day) {
		s.exitedDay = day
		s.mu.Unlock()
		return
	}
	open := s.positions
	s.positions = make(map[domain.Symbol]position)
	s.exitedDay = day
	s.mu.Unlock()

	for sym, pos := range open {
		s.queue.Push(domain.Candidate{
			Symbol:     sym,
			Kind:       domain.KindIntradayExit,
			Score:      pos.score,
			Priority:   domain.PriorityHigh,
			Reasons:    []string{"session entry cutoff", "setup:" + pos.signal.Setup},
			DetectedAt: now,
			Payload:    pos.signal,
		})
		log.Info().Str("symbol", string(sym)).Msg("Intraday exit at session cutoff")
	}
}

type setupHit struct {
	signal  IntradaySignal
	score   float64
	reasons []string
}

// bestSetup runs all five setup detectors and keeps the strongest.
func (s *Intraday) bestSetup(bars []domain.Bar, now time.Time) (setupHit, bool) {
	if len(bars) < 21 {
		return setupHit{}, false
	}

	atr := indicators.ATR(bars, 14)
	if !atr.Valid || atr.V <= 0 {
		return setupHit{}, false
	}
	last := bars[len(bars)-1]
	volRatio := lastVolumeRatio(bars, 20)

	detectors := []func([]domain.Bar, float64, float64) (string, int, bool){
		s.openingRange,
		s.momentumBreakout,
		s.vwapReversal,
		s.volumeSurge,
		s.bollingerBreakout,
	}
	bases := map[string]float64{
		"opening_range_breakout": 70,
		"momentum_breakout":      72,
		"vwap_reversal":          65,
		"volume_surge":           68,
		"bollinger_breakout":     66,
	}

	var best setupHit
	found := false
	for _, detect := range detectors {
		name, direction, ok := detect(bars, atr.V, volRatio)
		if !ok {
			continue
		}
		movePerATR := math.Abs(last.Close-bars[len(bars)-11].Close) / atr.V
		score := math.Min(100, bases[name]+math.Min(15, 7.5*movePerATR)+math.Min(15, 3*volRatio))
		if !found || score > best.score {
			entry := last.Close
			stop := entry - float64(direction)*atr.V
			target := entry + float64(direction)*1.8*atr.V
			rr := math.Round(math.Abs(target-entry)/math.Abs(entry-stop)*100) / 100
			best = setupHit{
				signal: IntradaySignal{
					Setup: name, Direction: direction,
					Entry: entry, Stop: stop, Target: target,
					RiskReward: rr, ATR: atr.V, VolumeRatio: volRatio,
				},
				score: score,
				reasons: []string{
					"setup:" + name,
					fmt.Sprintf("volume_ratio=%.1f", volRatio),
					fmt.Sprintf("move_atr=%.2f", movePerATR),
				},
			}
			found = true
		}
	}
	return best, found
}

// openingRange fires when price crosses the 09:30-09:35 range extreme on at
// least twice the average volume.
func (s *Intraday) openingRange(bars []domain.Bar, atr, volRatio float64) (string, int, bool) {
	last := bars[len(bars)-1]
	open := s.clock.SessionClose(last.TS).Add(-6*time.Hour - 30*time.Minute) // 09:30
	rangeEnd := open.Add(5 * time.Minute)

	var hi, lo float64
	seen := false
	for _, b := range bars {
		if b.TS.Before(open) || !b.TS.Before(rangeEnd) {
			continue
		}
		if !seen {
			hi, lo = b.High, b.Low
			seen = true
			continue
		}
		hi = math.Max(hi, b.High)
		lo = math.Min(lo, b.Low)
	}
	if !seen || volRatio < 2 {
		return "", 0, false
	}
	switch {
	case last.Close > hi:
		return "opening_range_breakout", +1, true
	case last.Close < lo:
		return "opening_range_breakout", -1, true
	}
	return "", 0, false
}

// momentumBreakout fires on a 10-minute return over the configured floor
// with heavy volume.
func (s *Intraday) momentumBreakout(bars []domain.Bar, atr, volRatio float64) (string, int, bool) {
	last := bars[len(bars)-1]
	base := bars[len(bars)-11].Close
	if base == 0 || volRatio < s.cfg.MomentumVolRatio {
		return "", 0, false
	}
	ret := (last.Close - base) / base
	switch {
	case ret >= s.cfg.MomentumReturn:
		return "momentum_breakout", +1, true
	case ret <= -s.cfg.MomentumReturn:
		return "momentum_breakout", -1, true
	}
	return "", 0, false
}

// vwapReversal fires on a touch of session VWAP within the ATR band with RSI
// at an extreme.
func (s *Intraday) vwapReversal(bars []domain.Bar, atr, volRatio float64) (string, int, bool) {
	vwap := indicators.SessionVWAP(bars)
	if !vwap.Valid {
		return "", 0, false
	}
	last := bars[len(bars)-1]
	if math.Abs(last.Close-vwap.V) > s.cfg.VWAPBandATR*atr {
		return "", 0, false
	}
	rsi := indicators.RSI(indicators.Closes(bars), 14)
	if !rsi.Valid {
		return "", 0, false
	}
	switch {
	case rsi.V < 35:
		return "vwap_reversal", +1, true
	case rsi.V > 65:
		return "vwap_reversal", -1, true
	}
	return "", 0, false
}

// volumeSurge fires on a 5x one-minute volume spike with at least a 1% move.
func (s *Intraday) volumeSurge(bars []domain.Bar, atr, volRatio float64) (string, int, bool) {
	if volRatio < 5 {
		return "", 0, false
	}
	last := bars[len(bars)-1]
	prev := bars[len(bars)-2]
	if prev.Close == 0 {
		return "", 0, false
	}
	change := (last.Close - prev.Close) / prev.Close
	if math.Abs(change) < 0.01 {
		return "", 0, false
	}
	if change > 0 {
		return "volume_surge", +1, true
	}
	return "volume_surge", -1, true
}

// bollingerBreakout fires on a close outside the 20-bar 2-sigma band with
// volume confirmation.
func (s *Intraday) bollingerBreakout(bars []domain.Bar, atr, volRatio float64) (string, int, bool) {
	bands := indicators.Bollinger(indicators.Closes(bars), 20, 2)
	if !bands.Upper.Valid || volRatio < 1.5 {
		return "", 0, false
	}
	last := bars[len(bars)-1]
	switch {
	case last.Close > bands.Upper.V:
		return "bollinger_breakout", +1, true
	case last.Close < bands.Lower.V:
		return "bollinger_breakout", -1, true
	}
	return "", 0, false
}

// lastVolumeRatio compares the last bar's volume to the trailing n-bar mean.
func lastVolumeRatio(bars []domain.Bar, n int) float64 {
	if len(bars) < n+1 {
		return 0
	}
	window := bars[len(bars)-1-n : len(bars)-1]
	var sum float64
	for _, b := range window {
		sum += b.Volume
	}
	mean := sum / float64(n)
	if mean == 0 {
		return 0
	}
	return bars[len(bars)-1].Volume / mean
}
