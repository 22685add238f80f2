package alerts

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/equityrun/internal/domain"
	"github.com/sawpanic/equityrun/internal/netlimit"
	"github.com/sawpanic/equityrun/internal/store"
)

// Per-channel delivery budgets.
const (
	EmailHourlyLimit       = 30
	TelegramPerMinuteLimit = 20
)

// DispatcherConfig tunes dedup and retry behavior.
type DispatcherConfig struct {
	Cooldown       time.Duration                          // default dedup bucket width per (symbol, kind)
	Cooldowns      map[domain.CandidateKind]time.Duration // per-kind overrides
	MaxRetries     int
	InitialBackoff time.Duration
	BackoffFactor  float64
	JitterFrac     float64
}

// cooldownFor resolves the dedup bucket width for a candidate kind.
func (c DispatcherConfig) cooldownFor(kind domain.CandidateKind) time.Duration {
	if d, ok := c.Cooldowns[kind]; ok && d > 0 {
		return d
	}
	return c.Cooldown
}

// DefaultDispatcherConfig returns the standard settings.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		Cooldown:       5 * time.Minute,
		MaxRetries:     3,
		InitialBackoff: time.Second,
		BackoffFactor:  2,
		JitterFrac:     0.2,
	}
}

// Result reports what one dispatch did.
type Result struct {
	AlertID   string
	Deduped   bool
	Attempted []string
	Succeeded []string
	Retries   int
}

// Popper is the candidate source the dispatcher drains, satisfied by
// scan.Queue.
type Popper interface {
	Pop(ctx context.Context) (domain.Candidate, error)
}

// Dispatcher fans alerts out to channels by priority. CRITICAL goes to every
// channel, HIGH to everything but email, MEDIUM to desktop, LOW is logged
// only. A channel failure never aborts the other channels.
type Dispatcher struct {
	cfg      DispatcherConfig
	channels map[string]Channel
	alerts   store.Alerts
	limiter  *netlimit.Limiter
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
	rng      *rand.Rand

	mu       sync.Mutex
	disabled map[string]string // channel -> reason
	retries  uint64
}

// NewDispatcher wires the dispatcher over the given channels. Channels that
// report Enabled()==false start disabled.
func NewDispatcher(cfg DispatcherConfig, alertStore store.Alerts, channels ...Channel) *Dispatcher {
	if cfg.MaxRetries == 0 && cfg.Cooldown == 0 {
		cfg = DefaultDispatcherConfig()
	}
	d := &Dispatcher{
		cfg:      cfg,
		channels: make(map[string]Channel, len(channels)),
		alerts:   alertStore,
		limiter: netlimit.NewLimiter(map[string]netlimit.Quota{
			"email":    netlimit.PerHour(EmailHourlyLimit),
			"telegram": netlimit.PerMinute(TelegramPerMinuteLimit),
			"desktop":  {RPS: 1000, Burst: 1000},
			"audio":    {RPS: 1000, Burst: 1000},
		}, netlimit.Quota{RPS: 1000, Burst: 1000}),
		now:      time.Now,
		sleep:    sleepCtx,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		disabled: make(map[string]string),
	}
	for _, ch := range channels {
		d.channels[ch.Name()] = ch
		if !ch.Enabled() {
			d.disabled[ch.Name()] = domain.ErrChannelUnconfigured.Error()
			log.Warn().Str("channel", ch.Name()).Msg("Alert channel not configured, disabled")
		}
	}
	return d
}

// routing maps priority to channel names, in attempt order.
func routing(p domain.Priority) []string {
	switch p {
	case domain.PriorityCritical:
		return []string{"telegram", "email", "desktop", "audio"}
	case domain.PriorityHigh:
		return []string{"telegram", "desktop", "audio"}
	case domain.PriorityMedium:
		return []string{"desktop"}
	default:
		return nil
	}
}

// Run drains the candidate source until the context is cancelled.
func (d *Dispatcher) Run(ctx context.Context, src Popper) error {
	for {
		c, err := src.Pop(ctx)
		if err != nil {
			return err
		}
		if _, err := d.Dispatch(ctx, c); err != nil {
			log.Error().Str("symbol", string(c.Symbol)).Err(err).Msg("Dispatch failed")
		}
	}
}

// Dispatch delivers one candidate. Alerts already present in the store for
// the current cooldown bucket are dropped silently.
func (d *Dispatcher) Dispatch(ctx context.Context, c domain.Candidate) (Result, error) {
	alert := FromCandidate(c, d.cfg.cooldownFor(c.Kind), d.now())

	inserted, err := d.alerts.PutIfAbsent(ctx, alert)
	if err != nil {
		return Result{AlertID: alert.ID}, fmt.Errorf("alert dedup check: %w", err)
	}
	if !inserted {
		log.Debug().Str("symbol", string(alert.Symbol)).Str("id", alert.ID).
			Msg("Alert suppressed by cooldown bucket")
		return Result{AlertID: alert.ID, Deduped: true}, nil
	}

	res := Result{AlertID: alert.ID}
	for _, name := range routing(alert.Priority) {
		ch, ok := d.channels[name]
		if !ok || d.isDisabled(name) {
			continue
		}
		res.Attempted = append(res.Attempted, name)

		retries, err := d.deliver(ctx, ch, alert)
		res.Retries += retries
		if err != nil {
			d.handleFailure(name, err)
			continue
		}
		res.Succeeded = append(res.Succeeded, name)
	}

	log.Info().Str("symbol", string(alert.Symbol)).Str("priority", string(alert.Priority)).
		Strs("attempted", res.Attempted).Strs("succeeded", res.Succeeded).
		Msg("Alert dispatched")

	if err := d.alerts.RecordDelivery(ctx, alert.ID, res.Attempted, res.Succeeded); err != nil {
		return res, fmt.Errorf("record delivery: %w", err)
	}
	return res, nil
}

// deliver sends with transient-error retry: exponential backoff from the
// initial delay with ±jitter. Returns the retry count used.
func (d *Dispatcher) deliver(ctx context.Context, ch Channel, alert domain.Alert) (int, error) {
	backoff := d.cfg.InitialBackoff
	var lastErr error

	for attempt := 0; ; attempt++ {
		err := d.send(ctx, ch, alert)
		if err == nil {
			return attempt, nil
		}
		lastErr = err
		if !errors.Is(err, domain.ErrChannelTransient) || attempt >= d.cfg.MaxRetries {
			return attempt, lastErr
		}

		d.mu.Lock()
		d.retries++
		jitter := 1 + d.cfg.JitterFrac*(2*d.rng.Float64()-1)
		d.mu.Unlock()

		if err := d.sleep(ctx, time.Duration(float64(backoff)*jitter)); err != nil {
			return attempt, lastErr
		}
		backoff = time.Duration(float64(backoff) * d.cfg.BackoffFactor)
	}
}

// send applies the channel rate limit before the channel's own Send.
// Exceeding the limit is a transient failure.
func (d *Dispatcher) send(ctx context.Context, ch Channel, alert domain.Alert) error {
	if !d.limiter.Allow(ch.Name()) {
		return fmt.Errorf("%w: %s rate limit", domain.ErrChannelTransient, ch.Name())
	}
	return ch.Send(ctx, alert)
}

func (d *Dispatcher) handleFailure(name string, err error) {
	log.Warn().Str("channel", name).Err(err).Msg("Alert channel delivery failed")
	if errors.Is(err, domain.ErrChannelPermanent) || errors.Is(err, domain.ErrChannelUnconfigured) {
		d.mu.Lock()
		d.disabled[name] = err.Error()
		d.mu.Unlock()
		log.Error().Str("channel", name).Msg("Alert channel disabled")
	}
}

func (d *Dispatcher) isDisabled(name string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, off := d.disabled[name]
	return off
}

// ResetChannel re-enables a disabled channel.
func (d *Dispatcher) ResetChannel(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.disabled, name)
}

// Disabled returns the currently disabled channels and why.
func (d *Dispatcher) Disabled() map[string]string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]string, len(d.disabled))
	for k, v := range d.disabled {
		out[k] = v
	}
	return out
}

// TotalRetries returns the lifetime transient retry count.
func (d *Dispatcher) TotalRetries() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.retries
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
