package domain

import "context"

// WeatherProvider returns an hourly forecast in time order. Short or empty
// sequences are valid.
type WeatherProvider interface {
	Forecast(ctx context.Context, lat, lng float64) ([]HourlySample, error)
}

// Place is a geocoded location.
type Place struct {
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	PlaceText  string  `json:"placeText"`
	Confidence float64 `json:"confidence,omitempty"` // 0.0–1.0 provider score
}

// GeocodeProvider resolves free text and coordinates to places. An empty
// PlaceText with a nil error means no match.
type GeocodeProvider interface {
	// Search converts a free-text query to coordinates.
	Search(ctx context.Context, text string) (Place, error)

	// Reverse converts coordinates to a place label.
	Reverse(ctx context.Context, lat, lng float64) (Place, error)
}

// ScanClassifier is the remote image classifier. Errors wrapping
// ErrClassifierUnavailable are transient and send the scan to the offline
// queue.
type ScanClassifier interface {
	Classify(ctx context.Context, p ScanPayload) (Classification, error)
}

// ImageQualityChecker is the local pre-check run before submission.
type ImageQualityChecker interface {
	Check(ctx context.Context, imagePath string) (QualityReport, error)
}

// KeyValueStore is the durable persistence contract. Values are opaque bytes.
type KeyValueStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Persistence keys.
const (
	KeyField          = "field"
	KeyScanRecord     = "scan_record"
	KeyScanQueue      = "scan_queue"
	KeyLastScanDate   = "last_scan_date"
	KeyScanFailures   = "scan_failures"
	KeyPreferredPlace = "preferred_location"
)
