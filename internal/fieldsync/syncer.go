// Package fieldsync pushes local field edits downstream and clears the
// dirty flag once they are published.
package fieldsync

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/spray-advisory/internal/domain"
)

// FieldSource is the field store.
type FieldSource interface {
	Field() (domain.Field, bool)
	MarkSynced(ctx context.Context, updatedAtMs int64) (bool, error)
	Subscribe(fn func()) (unsubscribe func())
}

// FieldPublisher writes field state downstream. A deletion is published as a
// tombstone keyed by field id.
type FieldPublisher interface {
	PublishField(ctx context.Context, f domain.Field) error
	PublishFieldDeleted(ctx context.Context, id string) error
}

// Syncer publishes the field whenever the store reports a change.
type Syncer struct {
	source    FieldSource
	publisher FieldPublisher
	logger    *slog.Logger
	changed   chan struct{}

	// present is true when the last published state had a field.
	present bool
}

// New creates a Syncer.
func New(source FieldSource, publisher FieldPublisher, logger *slog.Logger) *Syncer {
	return &Syncer{
		source:    source,
		publisher: publisher,
		logger:    logger,
		changed:   make(chan struct{}, 1),
	}
}

// Run syncs once at start and then after every store change until ctx is
// cancelled.
func (s *Syncer) Run(ctx context.Context) error {
	unsubscribe := s.source.Subscribe(s.signal)
	defer unsubscribe()

	_, s.present = s.source.Field()
	s.Sync(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.changed:
			s.Sync(ctx)
		}
	}
}

// signal runs inside the store's mutating call, so it must not block.
func (s *Syncer) signal() {
	select {
	case s.changed <- struct{}{}:
	default:
	}
}

// Sync publishes the current field if it is dirty, or a tombstone if it was
// deleted since the last sync. Failures are retried on the next change.
func (s *Syncer) Sync(ctx context.Context) {
	f, ok := s.source.Field()
	if !ok {
		if !s.present {
			return
		}
		if err := s.publisher.PublishFieldDeleted(ctx, domain.FieldID); err != nil {
			s.logger.Warn("publish field deletion failed", "field_id", domain.FieldID, "error", err)
			return
		}
		s.present = false
		s.logger.Info("field deletion synced", "field_id", domain.FieldID)
		return
	}

	s.present = true
	if !f.Dirty {
		return
	}
	if err := s.publisher.PublishField(ctx, f); err != nil {
		s.logger.Warn("publish field failed", "field_id", f.ID, "error", err)
		return
	}

	synced, err := s.source.MarkSynced(ctx, f.UpdatedAtEpochMs)
	if err != nil {
		s.logger.Error("mark field synced", "field_id", f.ID, "error", err)
		return
	}
	if !synced {
		// An edit landed while publishing; its own change signal syncs it.
		s.logger.Debug("field changed during publish", "field_id", f.ID)
		return
	}
	s.logger.Info("field synced", "field_id", f.ID, "updated_at_ms", f.UpdatedAtEpochMs)
}
