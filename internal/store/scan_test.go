package store

import (
	"context"
	"testing"

	"github.com/couchcryptid/spray-advisory/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openScanSlot(t *testing.T, kv domain.KeyValueStore) *ScanSlot {
	t.Helper()
	s, err := OpenScanSlot(context.Background(), kv)
	require.NoError(t, err)
	return s
}

func queued(id string) domain.QueuedScanSubmission {
	return domain.QueuedScanSubmission{
		ID:                id,
		Payload:           domain.ScanPayload{ImagePath: "/img/" + id + ".jpg", CropType: "tomato"},
		EnqueuedAtEpochMs: baseTime.UnixMilli(),
	}
}

func TestScanSlot_ReplaceKeepsSingleRecord(t *testing.T) {
	s := openScanSlot(t, NewMemoryKV())
	ctx := context.Background()

	_, ok := s.Record()
	assert.False(t, ok)

	require.NoError(t, s.Replace(ctx, domain.ScanRecord{ID: "a", Label: "healthy"}))
	require.NoError(t, s.Replace(ctx, domain.ScanRecord{ID: "b", Label: "leaf_blast"}))

	got, ok := s.Record()
	require.True(t, ok)
	assert.Equal(t, "b", got.ID)
	assert.Equal(t, "leaf_blast", got.Label)
}

func TestScanSlot_ReconcileSetsRecordAndDate(t *testing.T) {
	kv := NewMemoryKV()
	s := openScanSlot(t, kv)
	ctx := context.Background()
	require.NoError(t, s.SetLastScanDate(ctx, "2024-06-02"))

	require.NoError(t, s.Reconcile(ctx, domain.ScanRecord{ID: "sub-1", Label: "rust"}, "2024-06-03"))

	assert.Equal(t, "2024-06-03", s.LastScanDate())
	reopened := openScanSlot(t, kv)
	assert.Equal(t, "2024-06-03", reopened.LastScanDate())
	rec, ok := reopened.Record()
	require.True(t, ok)
	assert.Equal(t, "rust", rec.Label)
}

func TestScanSlot_RecordFailureRelabelsPlaceholder(t *testing.T) {
	s := openScanSlot(t, NewMemoryKV())
	ctx := context.Background()
	q := queued("sub-1")
	require.NoError(t, s.Replace(ctx, q.Placeholder()))

	require.NoError(t, s.RecordFailure(ctx, domain.DroppedSubmission{Submission: q, LastError: "timeout"}))

	rec, _ := s.Record()
	assert.Equal(t, domain.LabelFailed, rec.Label)
	assert.False(t, rec.IsQueued)
	require.Len(t, s.Failures(), 1)
	assert.Equal(t, "timeout", s.Failures()[0].LastError)
}

func TestScanSlot_RecordFailureLeavesOtherRecord(t *testing.T) {
	s := openScanSlot(t, NewMemoryKV())
	ctx := context.Background()
	require.NoError(t, s.Replace(ctx, domain.ScanRecord{ID: "newer", Label: "healthy"}))

	require.NoError(t, s.RecordFailure(ctx, domain.DroppedSubmission{Submission: queued("sub-1")}))

	rec, _ := s.Record()
	assert.Equal(t, "healthy", rec.Label)
}

func TestScanSlot_AcknowledgeFailures(t *testing.T) {
	kv := NewMemoryKV()
	s := openScanSlot(t, kv)
	ctx := context.Background()
	require.NoError(t, s.RecordFailure(ctx, domain.DroppedSubmission{Submission: queued("sub-1")}))
	require.NoError(t, s.RecordFailure(ctx, domain.DroppedSubmission{Submission: queued("sub-2")}))

	n, err := s.AcknowledgeFailures(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Empty(t, s.Failures())
	assert.Empty(t, openScanSlot(t, kv).Failures())
}

func TestScanSlot_ReconcileNeverMovesDateBack(t *testing.T) {
	s := openScanSlot(t, NewMemoryKV())
	ctx := context.Background()
	require.NoError(t, s.SetLastScanDate(ctx, "2024-06-05"))

	require.NoError(t, s.Reconcile(ctx, domain.ScanRecord{ID: "sub-1", Label: "rust"}, "2024-06-03"))

	assert.Equal(t, "2024-06-05", s.LastScanDate())
	rec, _ := s.Record()
	assert.Equal(t, "rust", rec.Label)
}

func TestScanSlot_RollbackRestoresPreviousState(t *testing.T) {
	kv := NewMemoryKV()
	s := openScanSlot(t, kv)
	ctx := context.Background()
	prev := domain.ScanRecord{ID: "old", Label: "healthy"}
	require.NoError(t, s.Replace(ctx, prev))
	require.NoError(t, s.SetLastScanDate(ctx, "2024-06-02"))

	require.NoError(t, s.SetLastScanDate(ctx, "2024-06-03"))
	require.NoError(t, s.Replace(ctx, queued("new").Placeholder()))
	require.NoError(t, s.Rollback(ctx, "new", &prev, "2024-06-02"))

	got, ok := s.Record()
	require.True(t, ok)
	assert.Equal(t, "old", got.ID)
	assert.Equal(t, "2024-06-02", s.LastScanDate())

	reopened := openScanSlot(t, kv)
	assert.Equal(t, "2024-06-02", reopened.LastScanDate())
}

func TestScanSlot_RollbackWithoutPreviousClearsRecord(t *testing.T) {
	kv := NewMemoryKV()
	s := openScanSlot(t, kv)
	ctx := context.Background()
	require.NoError(t, s.Replace(ctx, queued("new").Placeholder()))

	require.NoError(t, s.Rollback(ctx, "new", nil, ""))

	_, ok := s.Record()
	assert.False(t, ok)
	_, ok = openScanSlot(t, kv).Record()
	assert.False(t, ok)
}

func TestScanSlot_RollbackKeepsNewerRecord(t *testing.T) {
	s := openScanSlot(t, NewMemoryKV())
	ctx := context.Background()
	require.NoError(t, s.Replace(ctx, domain.ScanRecord{ID: "other", Label: "healthy"}))

	require.NoError(t, s.Rollback(ctx, "new", nil, ""))

	got, ok := s.Record()
	require.True(t, ok)
	assert.Equal(t, "other", got.ID)
}
