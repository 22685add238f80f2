package scan

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/sawpanic/equityrun/internal/domain"
)

// Watchlist is a copy-on-write symbol set. Readers snapshot the current slice
// with one atomic load; mutations swap in a fresh copy, so a scanner's tick
// always sees one consistent version.
type Watchlist struct {
	mu      sync.Mutex // serializes writers only
	current atomic.Pointer[[]domain.Symbol]
	version atomic.Uint64
}

// NewWatchlist builds a watchlist from the initial symbols.
func NewWatchlist(symbols []domain.Symbol) *Watchlist {
	w := &Watchlist{}
	snap := normalize(symbols)
	w.current.Store(&snap)
	return w
}

// Snapshot returns the current symbol set. Callers must not mutate it.
func (w *Watchlist) Snapshot() []domain.Symbol {
	return *w.current.Load()
}

// Version increments on every mutation.
func (w *Watchlist) Version() uint64 {
	return w.version.Load()
}

// Contains reports membership in the current snapshot.
func (w *Watchlist) Contains(s domain.Symbol) bool {
	snap := w.Snapshot()
	i := sort.Search(len(snap), func(i int) bool { return snap[i] >= s })
	return i < len(snap) && snap[i] == s
}

// Add inserts a symbol; a no-op when already present.
func (w *Watchlist) Add(s domain.Symbol) {
	w.mutate(func(set map[domain.Symbol]struct{}) {
		set[s] = struct{}{}
	})
}

// Remove deletes a symbol; a no-op when absent.
func (w *Watchlist) Remove(s domain.Symbol) {
	w.mutate(func(set map[domain.Symbol]struct{}) {
		delete(set, s)
	})
}

func (w *Watchlist) mutate(fn func(map[domain.Symbol]struct{})) {
	w.mu.Lock()
	defer w.mu.Unlock()

	old := *w.current.Load()
	set := make(map[domain.Symbol]struct{}, len(old)+1)
	for _, s := range old {
		set[s] = struct{}{}
	}
	fn(set)

	next := make([]domain.Symbol, 0, len(set))
	for s := range set {
		next = append(next, s)
	}
	sort.Slice(next, func(i, j int) bool { return next[i] < next[j] })
	w.current.Store(&next)
	w.version.Add(1)
}

func normalize(symbols []domain.Symbol) []domain.Symbol {
	set := make(map[domain.Symbol]struct{}, len(symbols))
	for _, s := range symbols {
		set[s] = struct{}{}
	}
	out := make([]domain.Symbol, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
