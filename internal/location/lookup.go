package location

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/couchcryptid/spray-advisory/internal/domain"
)

// ErrLookupDisabled is returned by Search when no geocoder is configured.
var ErrLookupDisabled = errors.New("place search is not configured")

// PlaceLookup serves the location editing flow: typing a place name, or
// labelling a dropped pin.
type PlaceLookup struct {
	geocoder domain.GeocodeProvider
	logger   *slog.Logger
}

// NewPlaceLookup creates a PlaceLookup. A nil geocoder disables search and
// makes Reverse fall back to a coordinate label.
func NewPlaceLookup(geocoder domain.GeocodeProvider, logger *slog.Logger) *PlaceLookup {
	return &PlaceLookup{geocoder: geocoder, logger: logger}
}

// Search resolves free text to a place.
func (l *PlaceLookup) Search(ctx context.Context, text string) (domain.Place, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.Place{}, fmt.Errorf("%w: search text is required", domain.ErrInvalidLocation)
	}
	if l.geocoder == nil {
		return domain.Place{}, ErrLookupDisabled
	}
	place, err := l.geocoder.Search(ctx, text)
	if err != nil {
		return domain.Place{}, fmt.Errorf("search %q: %w", text, err)
	}
	if place.PlaceText == "" {
		return domain.Place{}, fmt.Errorf("search %q: %w", text, domain.ErrPlaceNotFound)
	}
	return place, nil
}

// Reverse labels coordinates. Geocoding failures degrade to a coordinate
// label so a pin can always be saved.
func (l *PlaceLookup) Reverse(ctx context.Context, lat, lng float64) domain.Place {
	fallback := domain.Place{Latitude: lat, Longitude: lng, PlaceText: CoordinateLabel(lat, lng)}
	if l.geocoder == nil {
		return fallback
	}

	place, err := l.geocoder.Reverse(ctx, lat, lng)
	if err != nil {
		l.logger.Warn("reverse geocoding failed", "lat", lat, "lng", lng, "error", err)
		return fallback
	}
	if place.PlaceText == "" {
		return fallback
	}
	place.Latitude, place.Longitude = lat, lng
	return place
}

// CoordinateLabel formats coordinates for display when no place name exists.
func CoordinateLabel(lat, lng float64) string {
	return fmt.Sprintf("%.4f, %.4f", lat, lng)
}
