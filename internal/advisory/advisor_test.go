package advisory

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/couchcryptid/spray-advisory/internal/domain"
	"github.com/couchcryptid/spray-advisory/internal/location"
	"github.com/couchcryptid/spray-advisory/internal/observability"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, time.June, 3, 9, 20, 0, 0, time.UTC)

type stubResolver struct {
	at location.Resolved
}

func (s stubResolver) Resolve() location.Resolved { return s.at }

type mockWeather struct {
	samples []domain.HourlySample
	err     error
	lat     float64
	lng     float64
}

func (m *mockWeather) Forecast(_ context.Context, lat, lng float64) ([]domain.HourlySample, error) {
	m.lat, m.lng = lat, lng
	return m.samples, m.err
}

// hourly builds samples starting at start, one per hour, from (rain, wind) pairs.
func hourly(start time.Time, pairs ...[2]float64) []domain.HourlySample {
	out := make([]domain.HourlySample, len(pairs))
	for i, p := range pairs {
		out[i] = domain.HourlySample{
			Time:                   start.Add(time.Duration(i) * time.Hour),
			RainProbabilityPercent: p[0],
			WindSpeedKph:           p[1],
			TemperatureC:           28,
		}
	}
	return out
}

func newAdvisor(w *mockWeather) (*Advisor, *observability.Metrics) {
	m := observability.NewMetricsForTesting()
	r := stubResolver{at: location.Resolved{Source: location.SourceField, Latitude: 18.52, Longitude: 73.85, PlaceText: "Pune"}}
	a := NewAdvisor(r, w, time.UTC, clockwork.NewFakeClockAt(now), slog.New(slog.NewTextHandler(io.Discard, nil)), m)
	return a, m
}

func TestNearTerm_SkipsPastHoursAndCaps(t *testing.T) {
	start := now.Truncate(time.Hour).Add(-3 * time.Hour)
	pairs := make([][2]float64, 20)
	samples := hourly(start, pairs...)

	got := NearTerm(samples, now)

	require.Len(t, got, domain.NearTermHours)
	assert.Equal(t, now.Truncate(time.Hour), got[0].Time, "current hour is included")
}

func TestNearTerm_ShortForecast(t *testing.T) {
	samples := hourly(now.Truncate(time.Hour), [2]float64{0, 0}, [2]float64{0, 0})
	assert.Len(t, NearTerm(samples, now), 2)
	assert.Empty(t, NearTerm(nil, now))
}

func TestAdvisor_RainyAfternoon(t *testing.T) {
	base := now.Truncate(time.Hour)
	w := &mockWeather{samples: hourly(base,
		[2]float64{5, 6}, [2]float64{10, 8}, [2]float64{45, 9}, [2]float64{60, 11},
		[2]float64{15, 7}, [2]float64{5, 5},
	)}
	a, m := newAdvisor(w)

	rep, err := a.Current(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.SprayDoNotSpray, rep.Advisory.State)
	assert.Equal(t, domain.ReasonRain, rep.Advisory.Reason)
	assert.Equal(t, 60.0, rep.Advisory.MaxRainProbability)
	require.NotNil(t, rep.Advisory.NextGoodWindowStart)
	assert.Equal(t, base, *rep.Advisory.NextGoodWindowStart)
	assert.Equal(t, base.Add(time.Hour), *rep.Advisory.NextGoodWindowEnd)
	assert.Equal(t, "Don't spray", rep.Recommendation.Headline)
	assert.Equal(t, 18.52, w.lat)
	assert.Equal(t, location.SourceField, rep.Location.Source)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AdvisoriesIssued.WithLabelValues("do_not_spray")))
}

func TestAdvisor_LaterRainIgnored(t *testing.T) {
	base := now.Truncate(time.Hour)
	pairs := make([][2]float64, 14)
	pairs[13] = [2]float64{90, 30} // beyond the near-term window
	w := &mockWeather{samples: hourly(base, pairs...)}
	a, _ := newAdvisor(w)

	rep, err := a.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.SprayGood, rep.Advisory.State)
	assert.Len(t, rep.Hours, domain.NearTermHours)
}

func TestAdvisor_EmptyForecastIsGood(t *testing.T) {
	a, _ := newAdvisor(&mockWeather{})

	rep, err := a.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.SprayGood, rep.Advisory.State)
	assert.Nil(t, rep.Advisory.NextGoodWindowStart)
	assert.Equal(t, "No safe spray window in the forecast", rep.Recommendation.Window)
}

func TestAdvisor_ForecastError(t *testing.T) {
	a, _ := newAdvisor(&mockWeather{err: errors.New("503")})

	_, err := a.Current(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch forecast")
}

func TestAdvisor_Deterministic(t *testing.T) {
	base := now.Truncate(time.Hour)
	w := &mockWeather{samples: hourly(base, [2]float64{25, 4}, [2]float64{5, 13}, [2]float64{0, 0})}
	a, _ := newAdvisor(w)

	first, err := a.Current(context.Background())
	require.NoError(t, err)
	second, err := a.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first.Advisory, second.Advisory)
	assert.Equal(t, domain.SprayCaution, first.Advisory.State)
}
