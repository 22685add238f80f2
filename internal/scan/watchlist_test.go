package scan

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sawpanic/equityrun/internal/domain"
)

func TestWatchlistSnapshotIsStable(t *testing.T) {
	w := NewWatchlist([]domain.Symbol{"TSLA", "AAPL", "AAPL"})
	snap := w.Snapshot()
	assert.Equal(t, []domain.Symbol{"AAPL", "TSLA"}, snap, "deduped and sorted")

	w.Add("NVDA")
	assert.Equal(t, []domain.Symbol{"AAPL", "TSLA"}, snap, "old snapshot unchanged")
	assert.Equal(t, []domain.Symbol{"AAPL", "NVDA", "TSLA"}, w.Snapshot())
}

func TestWatchlistAddRemove(t *testing.T) {
	w := NewWatchlist(nil)
	assert.Empty(t, w.Snapshot())

	w.Add("AMD")
	assert.True(t, w.Contains("AMD"))

	w.Add("AMD") // idempotent
	assert.Len(t, w.Snapshot(), 1)

	w.Remove("AMD")
	assert.False(t, w.Contains("AMD"))

	w.Remove("AMD") // no-op
	assert.Empty(t, w.Snapshot())
}

func TestWatchlistVersionBumpsOnMutation(t *testing.T) {
	w := NewWatchlist([]domain.Symbol{"AAPL"})
	v0 := w.Version()
	w.Add("TSLA")
	w.Remove("AAPL")
	assert.Equal(t, v0+2, w.Version())
}
