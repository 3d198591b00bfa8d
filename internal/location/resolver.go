package location

import "github.com/couchcryptid/spray-advisory/internal/domain"

// Source tells where a resolved location came from.
type Source string

const (
	SourceField       Source = "field"
	SourcePreferences Source = "preferences"
)

// Resolved is the active location for forecasts.
type Resolved struct {
	Source    Source  `json:"source"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	PlaceText string  `json:"placeText"`
}

// FieldReader is the read side of the field store.
type FieldReader interface {
	Field() (domain.Field, bool)
}

// PreferenceReader yields the saved default location.
type PreferenceReader interface {
	Location() domain.Place
}

// Resolver picks the field's location when one is registered and the saved
// preference otherwise.
type Resolver struct {
	fields FieldReader
	prefs  PreferenceReader
}

// NewResolver creates a Resolver.
func NewResolver(fields FieldReader, prefs PreferenceReader) *Resolver {
	return &Resolver{fields: fields, prefs: prefs}
}

// Resolve reads both sources; it has no side effects.
func (r *Resolver) Resolve() Resolved {
	if f, ok := r.fields.Field(); ok {
		return Resolved{
			Source:    SourceField,
			Latitude:  f.Latitude,
			Longitude: f.Longitude,
			PlaceText: f.PlaceText,
		}
	}
	p := r.prefs.Location()
	return Resolved{
		Source:    SourcePreferences,
		Latitude:  p.Latitude,
		Longitude: p.Longitude,
		PlaceText: p.PlaceText,
	}
}
