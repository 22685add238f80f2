// Package market resolves the current US equity session phase in exchange
// time. All boundaries follow NYSE hours: premarket 04:00, open 09:30,
// close 16:00, after-hours end 20:00, Monday through Friday.
package market

import (
	"fmt"
	"time"
)

// Phase is the market session state at an instant.
type Phase string

const (
	PhaseClosed     Phase = "CLOSED"
	PhasePremarket  Phase = "PREMARKET"
	PhaseRegular    Phase = "REGULAR"
	PhaseAfterHours Phase = "AFTERHOURS"
)

// Session boundary offsets in minutes from midnight exchange time.
const (
	premarketOpenMin = 4 * 60
	regularOpenMin   = 9*60 + 30
	regularCloseMin  = 16 * 60
	afterHoursEndMin = 20 * 60
)

// Clock resolves market phases for a fixed exchange timezone and an injected
// holiday calendar. Zero holidays is valid.
type Clock struct {
	loc      *time.Location
	holidays map[string]bool // "2006-01-02" keys in exchange time
}

// NewClock loads the exchange timezone and indexes the holiday list.
// Dates must be YYYY-MM-DD.
func NewClock(timezone string, holidays []string) (*Clock, error) {
	if timezone == "" {
		timezone = "America/New_York"
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %s: %w", timezone, err)
	}
	idx := make(map[string]bool, len(holidays))
	for _, h := range holidays {
		if _, err := time.ParseInLocation("2006-01-02", h, loc); err != nil {
			return nil, fmt.Errorf("invalid holiday %q: %w", h, err)
		}
		idx[h] = true
	}
	return &Clock{loc: loc, holidays: idx}, nil
}

// Location returns the exchange timezone.
func (c *Clock) Location() *time.Location {
	return c.loc
}

// IsTradingDay reports whether the given date is a weekday and not a holiday.
func (c *Clock) IsTradingDay(t time.Time) bool {
	et := t.In(c.loc)
	switch et.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return !c.holidays[et.Format("2006-01-02")]
}

// Phase returns the session phase at the given instant. Holidays are CLOSED
// all day; DST is handled by the timezone database.
func (c *Clock) Phase(now time.Time) Phase {
	et := now.In(c.loc)
	if !c.IsTradingDay(et) {
		return PhaseClosed
	}
	mins := et.Hour()*60 + et.Minute()
	switch {
	case mins >= premarketOpenMin && mins < regularOpenMin:
		return PhasePremarket
	case mins >= regularOpenMin && mins < regularCloseMin:
		return PhaseRegular
	case mins >= regularCloseMin && mins < afterHoursEndMin:
		return PhaseAfterHours
	default:
		return PhaseClosed
	}
}

// NextTransition returns the next instant at which Phase changes.
func (c *Clock) NextTransition(now time.Time) time.Time {
	et := now.In(c.loc)
	if c.IsTradingDay(et) {
		mins := et.Hour()*60 + et.Minute()
		for _, boundary := range []int{premarketOpenMin, regularOpenMin, regularCloseMin, afterHoursEndMin} {
			if mins < boundary {
				return c.atMinutes(et, boundary)
			}
		}
	}
	// After 20:00, a weekend, or a holiday: next trading day's premarket open.
	day := time.Date(et.Year(), et.Month(), et.Day(), 0, 0, 0, 0, c.loc)
	for {
		day = day.AddDate(0, 0, 1)
		if c.IsTradingDay(day) {
			return day.Add(time.Duration(premarketOpenMin) * time.Minute)
		}
	}
}

// NextOpen returns the next regular-session open at or after now.
func (c *Clock) NextOpen(now time.Time) time.Time {
	et := now.In(c.loc)
	if c.IsTradingDay(et) {
		mins := et.Hour()*60 + et.Minute()
		if mins < regularOpenMin {
			return c.atMinutes(et, regularOpenMin)
		}
	}
	day := time.Date(et.Year(), et.Month(), et.Day(), 0, 0, 0, 0, c.loc)
	for {
		day = day.AddDate(0, 0, 1)
		if c.IsTradingDay(day) {
			return day.Add(time.Duration(regularOpenMin) * time.Minute)
		}
	}
}

// SessionClose returns 16:00 exchange time on the given date.
func (c *Clock) SessionClose(t time.Time) time.Time {
	return c.atMinutes(t.In(c.loc), regularCloseMin)
}

// EntryCutoff returns 15:45 exchange time on the given date; intraday
// scanners stop opening positions past this point.
func (c *Clock) EntryCutoff(t time.Time) time.Time {
	return c.atMinutes(t.In(c.loc), 15*60+45)
}

func (c *Clock) atMinutes(et time.Time, mins int) time.Time {
	return time.Date(et.Year(), et.Month(), et.Day(), mins/60, mins%60, 0, 0, c.loc)
}
