package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/couchcryptid/spray-advisory/internal/domain"
)

// ScanSlot owns the single ScanRecord, the last accepted scan date and the log
// of dropped submissions. Each write is persisted before it becomes visible.
type ScanSlot struct {
	kv domain.KeyValueStore

	mu           sync.Mutex
	record       *domain.ScanRecord
	lastScanDate string
	failures     []domain.DroppedSubmission
}

// OpenScanSlot loads the persisted scan state from kv.
func OpenScanSlot(ctx context.Context, kv domain.KeyValueStore) (*ScanSlot, error) {
	s := &ScanSlot{kv: kv}

	var rec domain.ScanRecord
	ok, err := LoadJSON(ctx, kv, domain.KeyScanRecord, &rec)
	if err != nil {
		return nil, err
	}
	if ok {
		s.record = &rec
	}
	if _, err := LoadJSON(ctx, kv, domain.KeyLastScanDate, &s.lastScanDate); err != nil {
		return nil, err
	}
	if _, err := LoadJSON(ctx, kv, domain.KeyScanFailures, &s.failures); err != nil {
		return nil, err
	}
	return s, nil
}

// Record returns a copy of the current scan record.
func (s *ScanSlot) Record() (domain.ScanRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.record == nil {
		return domain.ScanRecord{}, false
	}
	return s.record.Clone(), true
}

// Replace overwrites the scan record entirely.
func (s *ScanSlot) Replace(ctx context.Context, rec domain.ScanRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replaceLocked(ctx, rec)
}

func (s *ScanSlot) replaceLocked(ctx context.Context, rec domain.ScanRecord) error {
	rec = rec.Clone()
	if err := SaveJSON(ctx, s.kv, domain.KeyScanRecord, rec); err != nil {
		return err
	}
	s.record = &rec
	return nil
}

// Rollback undoes a placeholder write for submission id that never reached the
// queue: prev (nil for none) replaces the record if it still shows id, and the
// scan date goes back to prevDate.
func (s *ScanSlot) Rollback(ctx context.Context, id string, prev *domain.ScanRecord, prevDate string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.record != nil && s.record.ID == id {
		if prev != nil {
			if err := s.replaceLocked(ctx, *prev); err != nil {
				return err
			}
		} else {
			if err := s.kv.Delete(ctx, domain.KeyScanRecord); err != nil {
				return fmt.Errorf("clear record: %w", err)
			}
			s.record = nil
		}
	}
	if err := SaveJSON(ctx, s.kv, domain.KeyLastScanDate, prevDate); err != nil {
		return err
	}
	s.lastScanDate = prevDate
	return nil
}

// LastScanDate returns the civil date of the last accepted scan, or "".
func (s *ScanSlot) LastScanDate() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastScanDate
}

// SetLastScanDate persists the civil date of the last accepted scan.
func (s *ScanSlot) SetLastScanDate(ctx context.Context, date string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := SaveJSON(ctx, s.kv, domain.KeyLastScanDate, date); err != nil {
		return err
	}
	s.lastScanDate = date
	return nil
}

// Reconcile replaces the record with a delivered result and keeps the scan
// date at the day the submission was made. A later date already on record is
// kept so a late delivery never reopens the quota.
func (s *ScanSlot) Reconcile(ctx context.Context, rec domain.ScanRecord, scanDate string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.replaceLocked(ctx, rec); err != nil {
		return err
	}
	if scanDate <= s.lastScanDate {
		return nil
	}
	if err := SaveJSON(ctx, s.kv, domain.KeyLastScanDate, scanDate); err != nil {
		return err
	}
	s.lastScanDate = scanDate
	return nil
}

// RecordFailure logs a dropped submission. If the slot still shows that
// submission's placeholder it is relabelled as failed.
func (s *ScanSlot) RecordFailure(ctx context.Context, d domain.DroppedSubmission) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	failures := append(append([]domain.DroppedSubmission(nil), s.failures...), d)
	if err := SaveJSON(ctx, s.kv, domain.KeyScanFailures, failures); err != nil {
		return err
	}
	s.failures = failures

	if s.record != nil && s.record.ID == d.Submission.ID && s.record.IsQueued {
		failed := s.record.Clone()
		failed.Label = domain.LabelFailed
		failed.IsQueued = false
		if err := s.replaceLocked(ctx, failed); err != nil {
			return fmt.Errorf("mark placeholder failed: %w", err)
		}
	}
	return nil
}

// Failures returns dropped submissions not yet acknowledged.
func (s *ScanSlot) Failures() []domain.DroppedSubmission {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.DroppedSubmission(nil), s.failures...)
}

// AcknowledgeFailures clears the dropped-submission log and returns how many
// entries it held.
func (s *ScanSlot) AcknowledgeFailures(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.failures)
	if n == 0 {
		return 0, nil
	}
	if err := s.kv.Delete(ctx, domain.KeyScanFailures); err != nil {
		return 0, fmt.Errorf("clear failures: %w", err)
	}
	s.failures = nil
	return n, nil
}
