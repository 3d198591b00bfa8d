package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // REFERENCE_TIMEZONE must resolve on hosts without zoneinfo

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"
)

// Store backends.
const (
	BackendSQLite = "sqlite"
	BackendMongo  = "mongo"
	BackendMemory = "memory"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// ReferenceTimezone defines the civil day for the daily scan quota.
	ReferenceTimezone *time.Location

	// Default location used until the user saves one or registers a field.
	SeedLatitude  float64
	SeedLongitude float64
	SeedPlace     string

	StoreBackend string
	SQLitePath   string
	MongoURI     string
	MongoDB      string

	WeatherBaseURL string
	WeatherTimeout time.Duration

	ClassifierURL     string
	ClassifierTimeout time.Duration

	// Mapbox geocoding configuration.
	MapboxToken     string
	MapboxEnabled   bool
	MapboxTimeout   time.Duration
	MapboxCacheSize int
	MapboxCountry   string

	KafkaEnabled    bool
	KafkaBrokers    []string
	KafkaFieldTopic string
	KafkaScanTopic  string

	ProbeURL          string // empty when probing is off and connectivity is set by hand
	ProbeInterval     time.Duration
	ReconcileInterval time.Duration
}

// Load reads configuration from environment variables, applying defaults
// where unset. Variables in a .env file in the working directory are loaded
// first without overriding the real environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	tzName := sharedcfg.EnvOrDefault("REFERENCE_TIMEZONE", "Asia/Kolkata")
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, fmt.Errorf("invalid REFERENCE_TIMEZONE %q: %w", tzName, err)
	}

	weatherTimeout, err := parsePositiveDuration("WEATHER_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}
	classifierTimeout, err := parsePositiveDuration("CLASSIFIER_TIMEOUT", "20s")
	if err != nil {
		return nil, err
	}
	mapboxTimeout, err := parsePositiveDuration("MAPBOX_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}
	probeInterval, err := parsePositiveDuration("CONNECTIVITY_PROBE_INTERVAL", "30s")
	if err != nil {
		return nil, err
	}
	reconcileInterval, err := parsePositiveDuration("RECONCILE_INTERVAL", "5m")
	if err != nil {
		return nil, err
	}

	seedLat, err := parseFloat("SEED_LATITUDE", "18.5204")
	if err != nil {
		return nil, err
	}
	seedLng, err := parseFloat("SEED_LONGITUDE", "73.8567")
	if err != nil {
		return nil, err
	}

	mapboxToken := os.Getenv("MAPBOX_TOKEN")
	mapboxEnabled := mapboxToken != ""
	if v := os.Getenv("MAPBOX_ENABLED"); v != "" {
		mapboxEnabled = v == "true"
	}

	classifierURL := strings.TrimRight(sharedcfg.EnvOrDefault("CLASSIFIER_URL", "http://127.0.0.1:8000"), "/")

	cfg := &Config{
		HTTPAddr:          sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:          sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:         sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:   shutdownTimeout,
		ReferenceTimezone: loc,

		SeedLatitude:  seedLat,
		SeedLongitude: seedLng,
		SeedPlace:     sharedcfg.EnvOrDefault("SEED_PLACE", "Pune, Maharashtra"),

		StoreBackend: sharedcfg.EnvOrDefault("STORE_BACKEND", BackendSQLite),
		SQLitePath:   sharedcfg.EnvOrDefault("SQLITE_PATH", "data/advisory.db"),
		MongoURI:     sharedcfg.EnvOrDefault("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:      sharedcfg.EnvOrDefault("MONGO_DB", "spray_advisory"),

		WeatherBaseURL: strings.TrimRight(sharedcfg.EnvOrDefault("WEATHER_BASE_URL", "https://api.open-meteo.com/v1"), "/"),
		WeatherTimeout: weatherTimeout,

		ClassifierURL:     classifierURL,
		ClassifierTimeout: classifierTimeout,

		MapboxToken:     mapboxToken,
		MapboxEnabled:   mapboxEnabled,
		MapboxTimeout:   mapboxTimeout,
		MapboxCacheSize: parseMapboxCacheSize(),
		MapboxCountry:   sharedcfg.EnvOrDefault("MAPBOX_COUNTRY", "in"),

		KafkaEnabled:    os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers:    sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaFieldTopic: sharedcfg.EnvOrDefault("KAFKA_FIELD_TOPIC", "field-updates"),
		KafkaScanTopic:  sharedcfg.EnvOrDefault("KAFKA_SCAN_TOPIC", "scan-events"),

		ProbeURL:          parseProbeURL(classifierURL),
		ProbeInterval:     probeInterval,
		ReconcileInterval: reconcileInterval,
	}

	switch cfg.StoreBackend {
	case BackendSQLite, BackendMongo, BackendMemory:
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}
	if cfg.KafkaEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required")
		}
		if cfg.KafkaFieldTopic == "" || cfg.KafkaScanTopic == "" {
			return nil, errors.New("KAFKA_FIELD_TOPIC and KAFKA_SCAN_TOPIC are required")
		}
	}
	if cfg.MapboxEnabled && cfg.MapboxToken == "" {
		return nil, errors.New("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}

	return cfg, nil
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	s := sharedcfg.EnvOrDefault(key, def)
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s %q", key, s)
	}
	return d, nil
}

func parseProbeURL(classifierURL string) string {
	v := sharedcfg.EnvOrDefault("CONNECTIVITY_PROBE_URL", classifierURL+"/healthz")
	if v == "off" {
		return ""
	}
	return v
}

func parseFloat(key, def string) (float64, error) {
	s := sharedcfg.EnvOrDefault(key, def)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", key, s)
	}
	return v, nil
}

func parseMapboxCacheSize() int {
	if s := os.Getenv("MAPBOX_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 1000
}
