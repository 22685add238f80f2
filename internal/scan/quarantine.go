package scan

import (
	"sync"
	"time"

	"github.com/sawpanic/equityrun/internal/domain"
)

// symbolQuarantineAfter is the consecutive per-symbol failure count that
// sidelines a symbol for the remainder of the session.
const symbolQuarantineAfter = 5

// symbolTracker counts consecutive per-symbol failures. A symbol that fails
// symbolQuarantineAfter times in a row without an intervening success is
// quarantined until the session date changes; counters and the quarantine set
// reset on rollover.
type symbolTracker struct {
	mu        sync.Mutex
	threshold int
	day       string
	failures  map[domain.Symbol]int
	blocked   map[domain.Symbol]struct{}
}

func newSymbolTracker(threshold int) *symbolTracker {
	if threshold <= 0 {
		threshold = symbolQuarantineAfter
	}
	return &symbolTracker{
		threshold: threshold,
		failures:  make(map[domain.Symbol]int),
		blocked:   make(map[domain.Symbol]struct{}),
	}
}

// roll resets all state when the session date changes. Callers hold mu.
func (t *symbolTracker) roll(now time.Time) {
	day := now.Format("2006-01-02")
	if day == t.day {
		return
	}
	t.day = day
	t.failures = make(map[domain.Symbol]int)
	t.blocked = make(map[domain.Symbol]struct{})
}

// Blocked reports whether the symbol is quarantined for the current session.
func (t *symbolTracker) Blocked(sym domain.Symbol, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.roll(now)
	_, off := t.blocked[sym]
	return off
}

// Fail records one failure and reports whether this one tripped the
// quarantine.
func (t *symbolTracker) Fail(sym domain.Symbol, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.roll(now)
	t.failures[sym]++
	if t.failures[sym] < t.threshold {
		return false
	}
	if _, off := t.blocked[sym]; off {
		return false
	}
	t.blocked[sym] = struct{}{}
	return true
}

// Succeed clears the symbol's consecutive-failure count.
func (t *symbolTracker) Succeed(sym domain.Symbol, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.roll(now)
	delete(t.failures, sym)
}
