package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/couchcryptid/spray-advisory/internal/domain"
	"github.com/jonboulle/clockwork"
)

// FieldStore owns the single field slot and notifies subscribers after every
// mutation. Readers always get a copy.
type FieldStore struct {
	kv     domain.KeyValueStore
	clock  clockwork.Clock
	logger *slog.Logger

	mu        sync.Mutex
	field     *domain.Field
	nextID    uint64
	listeners []listener
}

type listener struct {
	id uint64
	fn func()
}

// OpenFieldStore loads any persisted field from kv.
func OpenFieldStore(ctx context.Context, kv domain.KeyValueStore, clock clockwork.Clock, logger *slog.Logger) (*FieldStore, error) {
	s := &FieldStore{kv: kv, clock: domain.ClockOrReal(clock), logger: logger}

	var f domain.Field
	ok, err := LoadJSON(ctx, kv, domain.KeyField, &f)
	if err != nil {
		return nil, err
	}
	if ok {
		if err := f.Validate(); err != nil {
			return nil, fmt.Errorf("stored field: %w", err)
		}
		s.field = &f
	}
	return s, nil
}

// Field returns a snapshot of the current field.
func (s *FieldStore) Field() (domain.Field, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.field == nil {
		return domain.Field{}, false
	}
	return s.field.Clone(), true
}

// CreateOrUpdate creates the field on first use and merges in over it
// afterwards. The id never changes. Invalid input leaves the store untouched.
// UpdatedAtEpochMs strictly increases across writes, so it identifies a
// version of the field.
func (s *FieldStore) CreateOrUpdate(ctx context.Context, in domain.FieldInput) (domain.Field, error) {
	s.mu.Lock()
	var (
		next domain.Field
		err  error
	)
	if s.field == nil {
		next, err = domain.NewField(in, s.clock.Now())
	} else {
		next, err = s.field.Apply(in, s.clock.Now())
		if err == nil && next.UpdatedAtEpochMs <= s.field.UpdatedAtEpochMs {
			next.UpdatedAtEpochMs = s.field.UpdatedAtEpochMs + 1
		}
	}
	if err == nil {
		err = SaveJSON(ctx, s.kv, domain.KeyField, next)
	}
	if err != nil {
		s.mu.Unlock()
		return domain.Field{}, err
	}
	s.field = &next
	s.mu.Unlock()

	s.logger.Debug("field saved", "field_id", next.ID, "updated_at_ms", next.UpdatedAtEpochMs)
	s.notify()
	return next.Clone(), nil
}

// Delete clears the field.
func (s *FieldStore) Delete(ctx context.Context) error {
	s.mu.Lock()
	if err := s.kv.Delete(ctx, domain.KeyField); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("delete field: %w", err)
	}
	s.field = nil
	s.mu.Unlock()

	s.logger.Debug("field deleted")
	s.notify()
	return nil
}

// MarkSynced clears the dirty flag if the current field is still the version
// stamped updatedAtMs. It reports whether the flag was cleared; a newer edit
// or a deleted field leaves the store untouched.
func (s *FieldStore) MarkSynced(ctx context.Context, updatedAtMs int64) (bool, error) {
	s.mu.Lock()
	if s.field == nil || !s.field.Dirty || s.field.UpdatedAtEpochMs != updatedAtMs {
		s.mu.Unlock()
		return false, nil
	}
	next := s.field.Clone()
	next.Dirty = false
	if err := SaveJSON(ctx, s.kv, domain.KeyField, next); err != nil {
		s.mu.Unlock()
		return false, err
	}
	s.field = &next
	s.mu.Unlock()

	s.notify()
	return true, nil
}

// Subscribe registers fn to run after every mutation, before the mutating
// call returns. The returned func removes exactly this registration.
func (s *FieldStore) Subscribe(fn func()) (unsubscribe func()) {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.listeners = append(s.listeners, listener{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, l := range s.listeners {
				if l.id == id {
					s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// notify runs listeners outside the lock so they may read the store.
func (s *FieldStore) notify() {
	s.mu.Lock()
	ls := make([]listener, len(s.listeners))
	copy(ls, s.listeners)
	s.mu.Unlock()

	for _, l := range ls {
		l.fn()
	}
}
