// Package scan hosts the scanner workers: premarket catalyst, intraday pump
// and the off-hours opportunity sweep. Scanners publish candidates onto a
// bounded priority queue consumed by the alert dispatcher.
package scan

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/equityrun/internal/market"
)

// quarantineThreshold is the consecutive-failure count that sidelines a
// scanner; it sits out quarantineTicks intervals before retrying.
const (
	quarantineThreshold = 5
	quarantineTicks     = 5
)

// Scanner is one cooperative tick loop. Tick runs at most once per interval
// and never overlaps itself; a tick that overruns simply delays the next one.
type Scanner interface {
	Name() string
	Interval() time.Duration
	// Active gates ticking on the market session phase.
	Active(phase market.Phase) bool
	Tick(ctx context.Context) error
}

// Status is one scanner's health snapshot.
type Status struct {
	Name            string     `json:"name"`
	LastTick        time.Time  `json:"last_tick,omitempty"`
	LastError       string     `json:"last_error,omitempty"`
	ConsecutiveErrs int        `json:"consecutive_errors"`
	QuarantinedTill *time.Time `json:"quarantined_till,omitempty"`
	Ticks           uint64     `json:"ticks"`
}

// Runtime drives a set of scanners, one goroutine each, gated by the market
// clock. Start is idempotent until Stop.
type Runtime struct {
	clock    *market.Clock
	scanners []Scanner
	now      func() time.Time

	mu      sync.Mutex
	status  map[string]*Status
	cancel  context.CancelFunc
	done    sync.WaitGroup
	running bool
}

// NewRuntime creates a runtime over the given scanners.
func NewRuntime(clock *market.Clock, scanners ...Scanner) *Runtime {
	status := make(map[string]*Status, len(scanners))
	for _, s := range scanners {
		status[s.Name()] = &Status{Name: s.Name()}
	}
	return &Runtime{clock: clock, scanners: scanners, status: status, now: time.Now}
}

// Start launches all scanner loops.
func (r *Runtime) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}
	r.running = true

	ctx, r.cancel = context.WithCancel(ctx)
	for _, s := range r.scanners {
		r.done.Add(1)
		go r.loop(ctx, s)
	}
	log.Info().Int("scanners", len(r.scanners)).Msg("Scanner runtime started")
}

// Stop cancels all loops and waits for in-flight ticks to finish.
func (r *Runtime) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	cancel := r.cancel
	r.mu.Unlock()

	cancel()
	r.done.Wait()
	log.Info().Msg("Scanner runtime stopped")
}

// Health returns a copy of every scanner's status.
func (r *Runtime) Health() map[string]Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]Status, len(r.status))
	for name, st := range r.status {
		out[name] = *st
	}
	return out
}

func (r *Runtime) loop(ctx context.Context, s Scanner) {
	defer r.done.Done()

	ticker := time.NewTicker(s.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		now := r.now()
		if !s.Active(r.clock.Phase(now)) {
			continue
		}
		if till := r.quarantinedTill(s.Name()); till != nil && now.Before(*till) {
			continue
		}

		err := s.Tick(ctx)
		r.record(s.Name(), s.Interval(), now, err)

		// A tick that overran the interval leaves a fire queued on the
		// ticker; drain it so ticks never bunch up.
		select {
		case <-ticker.C:
		default:
		}
	}
}

func (r *Runtime) quarantinedTill(name string) *time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status[name].QuarantinedTill
}

func (r *Runtime) record(name string, interval time.Duration, at time.Time, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := r.status[name]
	st.LastTick = at
	st.Ticks++
	if err == nil {
		st.LastError = ""
		st.ConsecutiveErrs = 0
		st.QuarantinedTill = nil
		return
	}

	st.LastError = err.Error()
	st.ConsecutiveErrs++
	log.Error().Str("scanner", name).Err(err).Int("consecutive", st.ConsecutiveErrs).
		Msg("Scanner tick failed")

	if st.ConsecutiveErrs >= quarantineThreshold && st.QuarantinedTill == nil {
		till := at.Add(time.Duration(quarantineTicks) * interval)
		st.QuarantinedTill = &till
		st.ConsecutiveErrs = 0
		log.Warn().Str("scanner", name).Time("until", till).
			Msg("Scanner quarantined after repeated failures")
	}
}
