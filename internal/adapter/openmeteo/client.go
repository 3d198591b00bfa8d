// Package openmeteo implements domain.WeatherProvider against the Open-Meteo
// hourly forecast API.
package openmeteo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/couchcryptid/spray-advisory/internal/domain"
	"github.com/couchcryptid/spray-advisory/internal/observability"
)

// Open-Meteo returns local times without an offset; requesting timezone=UTC
// makes them UTC.
const timeLayout = "2006-01-02T15:04"

// Client fetches hourly forecasts.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	forecastDays int
	metrics      *observability.Metrics
	logger       *slog.Logger
}

// NewClient creates an Open-Meteo client.
func NewClient(baseURL string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		httpClient:   &http.Client{Timeout: timeout},
		baseURL:      baseURL,
		forecastDays: 2,
		metrics:      metrics,
		logger:       logger,
	}
}

// Forecast returns hourly samples in time order. Hours without a rain or wind
// value are skipped.
func (c *Client) Forecast(ctx context.Context, lat, lng float64) ([]domain.HourlySample, error) {
	params := url.Values{
		"latitude":        {strconv.FormatFloat(lat, 'f', 4, 64)},
		"longitude":       {strconv.FormatFloat(lng, 'f', 4, 64)},
		"hourly":          {"precipitation_probability,wind_speed_10m,temperature_2m"},
		"wind_speed_unit": {"kmh"},
		"timezone":        {"UTC"},
		"forecast_days":   {strconv.Itoa(c.forecastDays)},
	}
	fullURL := c.baseURL + "/forecast?" + params.Encode()

	start := time.Now()
	defer func() {
		c.metrics.UpstreamDuration.WithLabelValues("weather").Observe(time.Since(start).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.UpstreamRequests.WithLabelValues("weather", "error").Inc()
		return nil, fmt.Errorf("forecast request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.metrics.UpstreamRequests.WithLabelValues("weather", "error").Inc()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("open-meteo API error: status %d: %s", resp.StatusCode, body)
	}

	var fr forecastResponse
	if err := json.NewDecoder(resp.Body).Decode(&fr); err != nil {
		c.metrics.UpstreamRequests.WithLabelValues("weather", "error").Inc()
		return nil, fmt.Errorf("decode response: %w", err)
	}

	samples, skipped := fr.Hourly.samples()
	if skipped > 0 {
		c.logger.Warn("forecast hours skipped", "skipped", skipped, "lat", lat, "lng", lng)
	}
	outcome := "success"
	if len(samples) == 0 {
		outcome = "empty"
	}
	c.metrics.UpstreamRequests.WithLabelValues("weather", outcome).Inc()
	return samples, nil
}

// Open-Meteo API response types. Series entries are null when the model has
// no value for that hour.

type forecastResponse struct {
	Hourly hourly `json:"hourly"`
}

type hourly struct {
	Time                     []string   `json:"time"`
	PrecipitationProbability []*float64 `json:"precipitation_probability"`
	WindSpeed10m             []*float64 `json:"wind_speed_10m"`
	Temperature2m            []*float64 `json:"temperature_2m"`
}

func (h hourly) samples() ([]domain.HourlySample, int) {
	out := make([]domain.HourlySample, 0, len(h.Time))
	skipped := 0
	for i, ts := range h.Time {
		t, err := time.Parse(timeLayout, ts)
		rain, wind, temp := at(h.PrecipitationProbability, i), at(h.WindSpeed10m, i), at(h.Temperature2m, i)
		if err != nil || rain == nil || wind == nil {
			skipped++
			continue
		}
		s := domain.HourlySample{
			Time:                   t.UTC(),
			RainProbabilityPercent: *rain,
			WindSpeedKph:           *wind,
		}
		if temp != nil {
			s.TemperatureC = *temp
		}
		out = append(out, s)
	}
	return out, skipped
}

func at(series []*float64, i int) *float64 {
	if i >= len(series) {
		return nil
	}
	return series[i]
}
