package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/couchcryptid/spray-advisory/internal/domain"
	"github.com/couchcryptid/spray-advisory/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ domain.KeyValueStore = (*KV)(nil)

func openTemp(t *testing.T) (*KV, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "advisory.db")
	kv, err := Open(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })
	return kv, path
}

func TestKV_GetSetDelete(t *testing.T) {
	kv, _ := openTemp(t)
	ctx := context.Background()

	_, ok, err := kv.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, kv.Set(ctx, "a", []byte(`{"v":1}`)))
	require.NoError(t, kv.Set(ctx, "a", []byte(`{"v":2}`)))

	got, ok, err := kv.Get(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `{"v":2}`, string(got))

	require.NoError(t, kv.Delete(ctx, "a"))
	require.NoError(t, kv.Delete(ctx, "a"), "deleting twice is fine")
	_, ok, err = kv.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestKV_PersistsAcrossReopen(t *testing.T) {
	kv, path := openTemp(t)
	ctx := context.Background()
	slot, err := store.OpenScanSlot(ctx, kv)
	require.NoError(t, err)
	require.NoError(t, slot.SetLastScanDate(ctx, "2024-06-03"))
	require.NoError(t, kv.Close())

	reopened, err := Open(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()

	slot, err = store.OpenScanSlot(ctx, reopened)
	require.NoError(t, err)
	assert.Equal(t, "2024-06-03", slot.LastScanDate())
}

func TestKV_InMemory(t *testing.T) {
	kv, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	defer kv.Close()

	require.NoError(t, kv.Set(context.Background(), "k", []byte("v")))
	require.NoError(t, kv.Ping(context.Background()))
}
