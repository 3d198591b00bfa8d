package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/couchcryptid/spray-advisory/internal/domain"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2024, time.June, 3, 9, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ptr[T any](v T) *T { return &v }

func fieldInput(name string) domain.FieldInput {
	return domain.FieldInput{
		Name:      ptr(name),
		Latitude:  ptr(18.52),
		Longitude: ptr(73.85),
		PlaceText: ptr("Pune, Maharashtra"),
	}
}

func openFieldStore(t *testing.T, kv domain.KeyValueStore, clock clockwork.Clock) *FieldStore {
	t.Helper()
	s, err := OpenFieldStore(context.Background(), kv, clock, discardLogger())
	require.NoError(t, err)
	return s
}

// failingKV fails every write.
type failingKV struct {
	*MemoryKV
}

func (f failingKV) Set(context.Context, string, []byte) error { return errors.New("disk full") }
func (f failingKV) Delete(context.Context, string) error { return errors.New("disk full") }
