package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// FieldID is the identifier of the single field. It never changes across
// updates because at most one field exists.
const FieldID = "field-primary"

// Field is the user's registered plot.
type Field struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Latitude         float64         `json:"latitude"`
	Longitude        float64         `json:"longitude"`
	PlaceText        string          `json:"placeText"`
	PolygonGeoJSON   json.RawMessage `json:"polygonGeoJson,omitempty"`
	AreaUnit         *float64        `json:"areaUnit,omitempty"`
	UpdatedAtEpochMs int64           `json:"updatedAtEpochMs"`
	Dirty            bool            `json:"dirty"` // true until a remote sync confirms it
}

// FieldInput carries a partial field write. Nil members keep the current value.
type FieldInput struct {
	Name           *string         `json:"name,omitempty"`
	Latitude       *float64        `json:"latitude,omitempty"`
	Longitude      *float64        `json:"longitude,omitempty"`
	PlaceText      *string         `json:"placeText,omitempty"`
	PolygonGeoJSON json.RawMessage `json:"polygonGeoJson,omitempty"`
	AreaUnit       *float64        `json:"areaUnit,omitempty"`
}

// Clone returns a deep copy so callers cannot alias store-owned memory.
func (f Field) Clone() Field {
	out := f
	if f.PolygonGeoJSON != nil {
		out.PolygonGeoJSON = bytes.Clone(f.PolygonGeoJSON)
	}
	if f.AreaUnit != nil {
		v := *f.AreaUnit
		out.AreaUnit = &v
	}
	return out
}

// NewField builds the field from a first write. Name, both coordinates and the
// place label are required.
func NewField(in FieldInput, now time.Time) (Field, error) {
	if in.Latitude == nil || in.Longitude == nil {
		return Field{}, fmt.Errorf("%w: latitude and longitude are required", ErrInvalidField)
	}
	return Field{ID: FieldID}.Apply(in, now)
}

// Apply merges in over f, bumps the update time and marks the result dirty.
// The merged record must be valid; f itself is never modified.
func (f Field) Apply(in FieldInput, now time.Time) (Field, error) {
	out := f.Clone()
	if in.Name != nil {
		out.Name = strings.TrimSpace(*in.Name)
	}
	if in.Latitude != nil {
		out.Latitude = *in.Latitude
	}
	if in.Longitude != nil {
		out.Longitude = *in.Longitude
	}
	if in.PlaceText != nil {
		out.PlaceText = strings.TrimSpace(*in.PlaceText)
	}
	if len(in.PolygonGeoJSON) > 0 {
		out.PolygonGeoJSON = bytes.Clone(in.PolygonGeoJSON)
	}
	if in.AreaUnit != nil {
		v := *in.AreaUnit
		out.AreaUnit = &v
	}
	if err := out.Validate(); err != nil {
		return Field{}, err
	}
	out.UpdatedAtEpochMs = now.UnixMilli()
	out.Dirty = true
	return out, nil
}

// Validate checks the invariants of a stored field.
func (f Field) Validate() error {
	switch {
	case f.ID != FieldID:
		return fmt.Errorf("%w: unexpected id %q", ErrInvalidField, f.ID)
	case f.Name == "":
		return fmt.Errorf("%w: name is required", ErrInvalidField)
	case f.PlaceText == "":
		return fmt.Errorf("%w: placeText is required", ErrInvalidField)
	case f.Latitude < -90 || f.Latitude > 90:
		return fmt.Errorf("%w: latitude %v out of range", ErrInvalidField, f.Latitude)
	case f.Longitude < -180 || f.Longitude > 180:
		return fmt.Errorf("%w: longitude %v out of range", ErrInvalidField, f.Longitude)
	case f.AreaUnit != nil && *f.AreaUnit < 0:
		return fmt.Errorf("%w: areaUnit must not be negative", ErrInvalidField)
	}
	if len(f.PolygonGeoJSON) > 0 {
		return validatePolygon(f.PolygonGeoJSON)
	}
	return nil
}

// validatePolygon accepts a GeoJSON Polygon or MultiPolygon geometry, or a
// Feature wrapping one.
func validatePolygon(raw json.RawMessage) error {
	var geom struct {
		Type     string          `json:"type"`
		Geometry json.RawMessage `json:"geometry"`
	}
	if err := json.Unmarshal(raw, &geom); err != nil {
		return fmt.Errorf("%w: polygonGeoJson: %v", ErrInvalidField, err)
	}
	if geom.Type == "Feature" && len(geom.Geometry) > 0 {
		return validatePolygon(geom.Geometry)
	}
	if geom.Type != "Polygon" && geom.Type != "MultiPolygon" {
		return fmt.Errorf("%w: polygonGeoJson type must be Polygon or MultiPolygon, got %q", ErrInvalidField, geom.Type)
	}
	return nil
}
