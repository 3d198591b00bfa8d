package mapbox

import (
	"context"
	"testing"

	"github.com/couchcryptid/spray-advisory/internal/domain"
	"github.com/couchcryptid/spray-advisory/internal/observability"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mock for cache tests ---

type countingGeocoder struct {
	searchCalls  int
	reverseCalls int
	result       domain.Place
}

func (m *countingGeocoder) Search(_ context.Context, _ string) (domain.Place, error) {
	m.searchCalls++
	return m.result, nil
}

func (m *countingGeocoder) Reverse(_ context.Context, _, _ float64) (domain.Place, error) {
	m.reverseCalls++
	return m.result, nil
}

// --- CachedGeocoder tests ---

func TestCachedGeocoder_SearchCacheHit(t *testing.T) {
	inner := &countingGeocoder{
		result: domain.Place{Latitude: 18.52, Longitude: 73.85, PlaceText: "Pune, Maharashtra"},
	}
	metrics := observability.NewMetricsForTesting()
	cached := NewCachedGeocoder(inner, 10, metrics)

	r1, err := cached.Search(context.Background(), "Pune")
	require.NoError(t, err)
	assert.Equal(t, "Pune, Maharashtra", r1.PlaceText)

	r2, err := cached.Search(context.Background(), "  pune ")
	require.NoError(t, err)
	assert.Equal(t, r1, r2)

	assert.Equal(t, 1, inner.searchCalls, "should only call inner once")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.GeocodeCache.WithLabelValues("search", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.GeocodeCache.WithLabelValues("search", "miss")))
}

func TestCachedGeocoder_ReverseCacheHit(t *testing.T) {
	inner := &countingGeocoder{result: domain.Place{PlaceText: "Pune, Maharashtra"}}
	cached := NewCachedGeocoder(inner, 10, observability.NewMetricsForTesting())

	_, err := cached.Reverse(context.Background(), 18.52041, 73.85672)
	require.NoError(t, err)
	_, err = cached.Reverse(context.Background(), 18.52039, 73.85668)
	require.NoError(t, err)

	assert.Equal(t, 1, inner.reverseCalls, "nearby pins share a cache entry")
}

func TestCachedGeocoder_EmptyResultNotCached(t *testing.T) {
	inner := &countingGeocoder{}
	cached := NewCachedGeocoder(inner, 10, observability.NewMetricsForTesting())

	_, _ = cached.Search(context.Background(), "Nowhere")
	_, _ = cached.Search(context.Background(), "Nowhere")

	assert.Equal(t, 2, inner.searchCalls)
}

// --- LRU cache unit tests ---

func TestLRUCache_Eviction(t *testing.T) {
	c := newLRUCache(2)

	c.put("a", domain.Place{PlaceText: "A"})
	c.put("b", domain.Place{PlaceText: "B"})
	c.put("c", domain.Place{PlaceText: "C"}) // evicts "a"

	_, ok := c.get("a")
	assert.False(t, ok, "a should have been evicted")

	result, ok := c.get("c")
	assert.True(t, ok)
	assert.Equal(t, "C", result.PlaceText)
}

func TestLRUCache_AccessPromotesEntry(t *testing.T) {
	c := newLRUCache(2)

	c.put("a", domain.Place{PlaceText: "A"})
	c.put("b", domain.Place{PlaceText: "B"})
	c.get("a")
	c.put("c", domain.Place{PlaceText: "C"})

	_, ok := c.get("a")
	assert.True(t, ok, "a was accessed recently, should not be evicted")
	_, ok = c.get("b")
	assert.False(t, ok, "b should have been evicted")
}

func TestLRUCache_UpdateExisting(t *testing.T) {
	c := newLRUCache(2)

	c.put("a", domain.Place{PlaceText: "A1"})
	c.put("a", domain.Place{PlaceText: "A2"})

	result, ok := c.get("a")
	assert.True(t, ok)
	assert.Equal(t, "A2", result.PlaceText)
}
