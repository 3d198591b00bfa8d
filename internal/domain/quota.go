package domain

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// CanScanToday reports whether a new scan may be accepted at now. It is false
// only when lastScanDate equals now's civil date in loc.
func CanScanToday(lastScanDate string, now time.Time, loc *time.Location) bool {
	return lastScanDate != CivilDate(now, loc)
}

// RecordScanToday returns the civil date to persist as the last scan date.
func RecordScanToday(now time.Time, loc *time.Location) string {
	return CivilDate(now, loc)
}

// QuotaGate binds the daily scan predicate to a reference timezone and clock,
// independent of the host's local zone.
type QuotaGate struct {
	loc   *time.Location
	clock clockwork.Clock
}

// NewQuotaGate creates a gate for loc. A nil clock uses real time.
func NewQuotaGate(loc *time.Location, clock clockwork.Clock) *QuotaGate {
	if loc == nil {
		loc = time.UTC
	}
	return &QuotaGate{loc: loc, clock: ClockOrReal(clock)}
}

// CanScanToday applies CanScanToday at the gate's current time.
func (g *QuotaGate) CanScanToday(lastScanDate string) bool {
	return CanScanToday(lastScanDate, g.clock.Now(), g.loc)
}

// RecordScanToday returns today's civil date in the reference timezone.
func (g *QuotaGate) RecordScanToday() string {
	return RecordScanToday(g.clock.Now(), g.loc)
}

// DateOf returns the civil date of an epoch-millisecond timestamp.
func (g *QuotaGate) DateOf(epochMs int64) string {
	return CivilDate(time.UnixMilli(epochMs), g.loc)
}

// Location returns the reference timezone.
func (g *QuotaGate) Location() *time.Location { return g.loc }
