package reconcile

import (
	"time"

	"github.com/couchcryptid/spray-advisory/internal/domain"
	"github.com/couchcryptid/spray-advisory/internal/queue"
)

// EventsFromReport turns a drain report into delivered and dropped events.
// Retried items produce no event.
func EventsFromReport(report queue.DrainReport, at time.Time) []domain.ScanEvent {
	events := make([]domain.ScanEvent, 0, len(report.Delivered)+len(report.Dropped))
	for i := range report.Delivered {
		rec := report.Delivered[i].Clone()
		events = append(events, domain.ScanEvent{
			Kind:       domain.ScanEventDelivered,
			Record:     &rec,
			OccurredAt: at,
		})
	}
	for i := range report.Dropped {
		sub := report.Dropped[i].Submission
		events = append(events, domain.ScanEvent{
			Kind:       domain.ScanEventDropped,
			Submission: &sub,
			Error:      report.Dropped[i].LastError,
			OccurredAt: at,
		})
	}
	return events
}
