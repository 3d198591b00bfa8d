// Package advisory turns the forecast for the active location into a spray
// recommendation.
package advisory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/spray-advisory/internal/domain"
	"github.com/couchcryptid/spray-advisory/internal/location"
	"github.com/couchcryptid/spray-advisory/internal/observability"
	"github.com/jonboulle/clockwork"
)

// LocationResolver yields the location forecasts are fetched for.
type LocationResolver interface {
	Resolve() location.Resolved
}

// Report is one computed advisory.
type Report struct {
	Location       location.Resolved     `json:"location"`
	Advisory       domain.SprayAdvisory  `json:"advisory"`
	Recommendation domain.Recommendation `json:"recommendation"`
	Hours          []domain.HourlySample `json:"hours"`
	GeneratedAt    time.Time             `json:"generatedAt"`
}

// Advisor fetches a forecast and classifies its near-term window.
type Advisor struct {
	resolver LocationResolver
	weather  domain.WeatherProvider
	loc      *time.Location
	clock    clockwork.Clock
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewAdvisor creates an Advisor. Recommendation text renders times in loc.
func NewAdvisor(resolver LocationResolver, weather domain.WeatherProvider, loc *time.Location, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Advisor {
	if loc == nil {
		loc = time.UTC
	}
	return &Advisor{
		resolver: resolver,
		weather:  weather,
		loc:      loc,
		clock:    domain.ClockOrReal(clock),
		logger:   logger,
		metrics:  metrics,
	}
}

// Current computes the advisory for the active location.
func (a *Advisor) Current(ctx context.Context) (Report, error) {
	return a.For(ctx, a.resolver.Resolve())
}

// For computes the advisory for an explicit location. A forecast with no
// upcoming hours yields a good advisory with no window.
func (a *Advisor) For(ctx context.Context, at location.Resolved) (Report, error) {
	samples, err := a.weather.Forecast(ctx, at.Latitude, at.Longitude)
	if err != nil {
		return Report{}, fmt.Errorf("fetch forecast: %w", err)
	}

	now := a.clock.Now()
	hours := NearTerm(samples, now)
	if len(hours) == 0 {
		a.logger.Warn("forecast has no upcoming hours", "lat", at.Latitude, "lng", at.Longitude, "samples", len(samples))
	}

	adv := domain.ClassifySprayWindow(hours)
	a.metrics.AdvisoriesIssued.WithLabelValues(string(adv.State)).Inc()
	a.logger.Debug("advisory computed",
		"source", at.Source,
		"state", adv.State,
		"reason", adv.Reason,
		"max_rain", adv.MaxRainProbability,
		"max_wind", adv.MaxWindSpeed,
	)

	return Report{
		Location:       at,
		Advisory:       adv,
		Recommendation: domain.Recommend(adv, a.loc),
		Hours:          hours,
		GeneratedAt:    now,
	}, nil
}

// NearTerm returns the samples from the start of now's hour onward, capped at
// domain.NearTermHours. Input order is kept.
func NearTerm(samples []domain.HourlySample, now time.Time) []domain.HourlySample {
	from := now.Truncate(time.Hour)
	out := make([]domain.HourlySample, 0, domain.NearTermHours)
	for _, s := range samples {
		if s.Time.Before(from) {
			continue
		}
		out = append(out, s)
		if len(out) == domain.NearTermHours {
			break
		}
	}
	return out
}
