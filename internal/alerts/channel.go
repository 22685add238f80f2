// Package alerts routes scanner candidates to notification channels with
// priority routing, cooldown dedup, retry with backoff, and per-channel rate
// limits.
package alerts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sawpanic/equityrun/internal/domain"
	"github.com/sawpanic/equityrun/internal/scan"
)

// Channel is one delivery surface. Send classifies failures as
// CHANNEL_UNCONFIGURED, CHANNEL_TRANSIENT or CHANNEL_PERMANENT; transient
// failures are retried, permanent ones disable the channel for the
// dispatcher's lifetime.
type Channel interface {
	Name() string
	// Enabled reports whether the channel has the configuration it needs.
	// Disabled channels are never attempted.
	Enabled() bool
	Send(ctx context.Context, a domain.Alert) error
}

// FromCandidate builds the alert row for a candidate. The ID is the
// cooldown-bucketed dedup key, so repeated candidates for the same
// (symbol, kind) inside one cooldown window produce the same alert.
func FromCandidate(c domain.Candidate, cooldown time.Duration, now time.Time) domain.Alert {
	detected := c.DetectedAt
	if detected.IsZero() {
		detected = now
	}
	a := domain.Alert{
		ID:         domain.AlertID(c.Symbol, c.Kind, now, cooldown),
		Symbol:     c.Symbol,
		Kind:       c.Kind,
		Priority:   c.Priority,
		Title:      fmt.Sprintf("%s %s (%.0f)", c.Symbol, kindLabel(c.Kind), c.Score),
		Score:      c.Score,
		DetectedAt: detected,
		CreatedAt:  now,
	}
	switch p := c.Payload.(type) {
	case scan.CatalystSignal:
		a.Price = p.Price
		a.VolumeRatio = p.VolumeRatio
		a.CatalystTags = p.Article.CatalystTags
	case scan.IntradaySignal:
		a.Price = p.Entry
		a.VolumeRatio = p.VolumeRatio
	case domain.MonthlyScore:
		a.Price = p.Entry
	}
	a.Body = formatBody(c, a)
	return a
}

func kindLabel(k domain.CandidateKind) string {
	switch k {
	case domain.KindPremarketCatalyst:
		return "premarket catalyst"
	case domain.KindIntradayPump:
		return "intraday pump"
	case domain.KindIntradayExit:
		return "intraday exit"
	case domain.KindOpportunity:
		return "opportunity"
	default:
		return strings.ToLower(string(k))
	}
}

func formatBody(c domain.Candidate, a domain.Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s score %.1f priority %s", c.Symbol, c.Kind, c.Score, c.Priority)
	if a.Price > 0 {
		fmt.Fprintf(&b, "\nprice %.2f", a.Price)
	}
	if a.VolumeRatio > 0 {
		fmt.Fprintf(&b, "\nvolume %.1fx average", a.VolumeRatio)
	}
	fmt.Fprintf(&b, "\ndetected %s", a.DetectedAt.UTC().Format(time.RFC3339))
	if len(c.Reasons) > 0 {
		fmt.Fprintf(&b, "\n%s", strings.Join(c.Reasons, ", "))
	}
	switch p := c.Payload.(type) {
	case domain.MonthlyScore:
		if p.HasTradeParams() {
			fmt.Fprintf(&b, "\nentry %.2f stop %.2f target %.2f rr %.2f", p.Entry, p.Stop, p.Target, p.RiskReward)
		}
	}
	return b.String()
}

// truncate shortens s to at most n bytes on a rune boundary.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	out := ""
	for _, r := range runes {
		if len(out)+len(string(r)) > n {
			break
		}
		out += string(r)
	}
	return out
}
