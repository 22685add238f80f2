package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustClock(t *testing.T, holidays []string) *Clock {
	t.Helper()
	c, err := NewClock("America/New_York", holidays)
	require.NoError(t, err)
	return c
}

func et(t *testing.T, value string) time.Time {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	ts, err := time.ParseInLocation("2006-01-02 15:04", value, loc)
	require.NoError(t, err)
	return ts
}

func TestClockPhases(t *testing.T) {
	c := mustClock(t, nil)

	cases := []struct {
		at   string
		want Phase
	}{
		{"2026-03-04 03:59", PhaseClosed},     // Wednesday pre-dawn
		{"2026-03-04 04:00", PhasePremarket},  // premarket open
		{"2026-03-04 09:29", PhasePremarket},  // last premarket minute
		{"2026-03-04 09:30", PhaseRegular},    // bell
		{"2026-03-04 15:59", PhaseRegular},    // last regular minute
		{"2026-03-04 16:00", PhaseAfterHours}, // close
		{"2026-03-04 19:59", PhaseAfterHours},
		{"2026-03-04 20:00", PhaseClosed},
		{"2026-03-07 12:00", PhaseClosed}, // Saturday midday
		{"2026-03-08 12:00", PhaseClosed}, // Sunday midday
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, c.Phase(et(t, tc.at)), "at %s", tc.at)
	}
}

func TestClockHolidayClosedAllDay(t *testing.T) {
	c := mustClock(t, []string{"2026-03-04"}) // a Wednesday

	for _, at := range []string{"2026-03-04 04:30", "2026-03-04 10:00", "2026-03-04 17:00"} {
		assert.Equal(t, PhaseClosed, c.Phase(et(t, at)), "at %s", at)
	}
	assert.False(t, c.IsTradingDay(et(t, "2026-03-04 10:00")))
	assert.True(t, c.IsTradingDay(et(t, "2026-03-05 10:00")))
}

func TestClockRejectsBadHoliday(t *testing.T) {
	_, err := NewClock("America/New_York", []string{"03/04/2026"})
	assert.Error(t, err)
}

func TestNextTransition(t *testing.T) {
	c := mustClock(t, nil)

	// Mid-regular-session: next transition is the 16:00 close.
	assert.Equal(t, et(t, "2026-03-04 16:00"), c.NextTransition(et(t, "2026-03-04 11:00")))

	// After-hours: next transition ends the extended session.
	assert.Equal(t, et(t, "2026-03-04 20:00"), c.NextTransition(et(t, "2026-03-04 18:00")))

	// Friday night rolls to Monday premarket.
	assert.Equal(t, et(t, "2026-03-09 04:00"), c.NextTransition(et(t, "2026-03-06 21:00")))
}

func TestNextTransitionSkipsHoliday(t *testing.T) {
	c := mustClock(t, []string{"2026-03-05"}) // Thursday holiday

	// Wednesday 20:30 -> Friday premarket, skipping the holiday.
	assert.Equal(t, et(t, "2026-03-06 04:00"), c.NextTransition(et(t, "2026-03-04 20:30")))
}

func TestNextOpenAndCutoff(t *testing.T) {
	c := mustClock(t, nil)

	assert.Equal(t, et(t, "2026-03-04 09:30"), c.NextOpen(et(t, "2026-03-04 06:00")))
	assert.Equal(t, et(t, "2026-03-05 09:30"), c.NextOpen(et(t, "2026-03-04 10:00")))
	assert.Equal(t, et(t, "2026-03-04 15:45"), c.EntryCutoff(et(t, "2026-03-04 10:00")))
	assert.Equal(t, et(t, "2026-03-04 16:00"), c.SessionClose(et(t, "2026-03-04 10:00")))
}
