package domain

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// CivilDateLayout is the ISO calendar date layout used for quota bookkeeping.
const CivilDateLayout = "2006-01-02"

// CivilDate returns the calendar date of t in loc.
func CivilDate(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(CivilDateLayout)
}

// ClockOrReal returns c, or the real clock when c is nil. Components accept a
// clockwork.Clock so tests can freeze time.
func ClockOrReal(c clockwork.Clock) clockwork.Clock {
	if c == nil {
		return clockwork.NewRealClock()
	}
	return c
}
