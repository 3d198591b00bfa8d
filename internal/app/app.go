// Package app wires the advisory core from configuration. Both the service
// and the CLI build on it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/couchcryptid/spray-advisory/internal/adapter/classifier"
	httpadapter "github.com/couchcryptid/spray-advisory/internal/adapter/http"
	"github.com/couchcryptid/spray-advisory/internal/adapter/imagequality"
	kafkaadapter "github.com/couchcryptid/spray-advisory/internal/adapter/kafka"
	"github.com/couchcryptid/spray-advisory/internal/adapter/mapbox"
	"github.com/couchcryptid/spray-advisory/internal/adapter/mongo"
	"github.com/couchcryptid/spray-advisory/internal/adapter/openmeteo"
	"github.com/couchcryptid/spray-advisory/internal/adapter/sqlite"
	"github.com/couchcryptid/spray-advisory/internal/advisory"
	"github.com/couchcryptid/spray-advisory/internal/config"
	"github.com/couchcryptid/spray-advisory/internal/connectivity"
	"github.com/couchcryptid/spray-advisory/internal/domain"
	"github.com/couchcryptid/spray-advisory/internal/fieldsync"
	"github.com/couchcryptid/spray-advisory/internal/location"
	"github.com/couchcryptid/spray-advisory/internal/observability"
	"github.com/couchcryptid/spray-advisory/internal/queue"
	"github.com/couchcryptid/spray-advisory/internal/reconcile"
	"github.com/couchcryptid/spray-advisory/internal/scan"
	"github.com/couchcryptid/spray-advisory/internal/store"
	"github.com/jonboulle/clockwork"
)

// Overrides replace external collaborators, mainly for tests. Nil members
// are built from configuration.
type Overrides struct {
	KV         domain.KeyValueStore
	Weather    domain.WeatherProvider
	Classifier domain.ScanClassifier
	Geocoder   domain.GeocodeProvider
	Clock      clockwork.Clock
}

// App holds the wired components.
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Metrics *observability.Metrics

	Gate        *domain.QuotaGate
	Fields      *store.FieldStore
	Slot        *store.ScanSlot
	Preferences *location.Preferences
	Resolver    *location.Resolver
	Places      *location.PlaceLookup
	Advisor     *advisory.Advisor
	Quality     *imagequality.Checker
	Classifier  domain.ScanClassifier
	Queue       *queue.Queue
	Scans       *scan.Orchestrator
	Monitor     *connectivity.Monitor
	Prober      *connectivity.Prober // nil when connectivity is set by hand
	Reconciler  *reconcile.Loop
	FieldSync   *fieldsync.Syncer // nil without Kafka

	kv     domain.KeyValueStore
	writer *kafkaadapter.Writer
	closer func(context.Context) error
}

// New builds every component. The caller must Close the returned App.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics, o Overrides) (*App, error) {
	clock := domain.ClockOrReal(o.Clock)
	a := &App{Config: cfg, Logger: logger, Metrics: metrics}

	if err := a.openKV(ctx, o.KV); err != nil {
		return nil, err
	}
	if err := a.build(ctx, clock, o); err != nil {
		a.Close(ctx) //nolint:errcheck // already failing
		return nil, err
	}
	return a, nil
}

func (a *App) openKV(ctx context.Context, kv domain.KeyValueStore) error {
	if kv != nil {
		a.kv = kv
		return nil
	}

	switch a.Config.StoreBackend {
	case config.BackendMemory:
		a.kv = store.NewMemoryKV()
	case config.BackendMongo:
		m, err := mongo.Connect(ctx, a.Config.MongoURI, a.Config.MongoDB)
		if err != nil {
			return err
		}
		a.kv, a.closer = m, m.Close
	default:
		s, err := sqlite.Open(ctx, a.Config.SQLitePath)
		if err != nil {
			return err
		}
		a.kv, a.closer = s, func(context.Context) error { return s.Close() }
	}
	a.Logger.Info("store opened", "backend", a.Config.StoreBackend)
	return nil
}

func (a *App) build(ctx context.Context, clock clockwork.Clock, o Overrides) error {
	cfg, logger, metrics := a.Config, a.Logger, a.Metrics

	var err error
	a.Gate = domain.NewQuotaGate(cfg.ReferenceTimezone, clock)
	if a.Fields, err = store.OpenFieldStore(ctx, a.kv, clock, logger); err != nil {
		return err
	}
	if a.Slot, err = store.OpenScanSlot(ctx, a.kv); err != nil {
		return err
	}
	seed := domain.Place{Latitude: cfg.SeedLatitude, Longitude: cfg.SeedLongitude, PlaceText: cfg.SeedPlace}
	if a.Preferences, err = location.OpenPreferences(ctx, a.kv, seed); err != nil {
		return err
	}
	a.Resolver = location.NewResolver(a.Fields, a.Preferences)

	geocoder := o.Geocoder
	if geocoder == nil && cfg.MapboxEnabled {
		client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxCountry, cfg.MapboxTimeout, metrics, logger)
		geocoder = mapbox.NewCachedGeocoder(client, cfg.MapboxCacheSize, metrics)
		logger.Info("mapbox geocoding enabled", "cache_size", cfg.MapboxCacheSize, "timeout", cfg.MapboxTimeout)
	}
	if geocoder != nil {
		metrics.GeocodeEnabled.Set(1)
	} else {
		logger.Info("mapbox geocoding disabled")
	}
	a.Places = location.NewPlaceLookup(geocoder, logger)

	weather := o.Weather
	if weather == nil {
		weather = openmeteo.NewClient(cfg.WeatherBaseURL, cfg.WeatherTimeout, metrics, logger)
	}
	a.Advisor = advisory.NewAdvisor(a.Resolver, weather, cfg.ReferenceTimezone, clock, logger, metrics)

	a.Classifier = o.Classifier
	if a.Classifier == nil {
		a.Classifier = classifier.NewClient(cfg.ClassifierURL, cfg.ClassifierTimeout, metrics, logger)
	}
	a.Quality = imagequality.NewChecker(imagequality.DefaultThresholds)

	a.Queue, err = queue.Open(ctx, queue.Deps{
		KV:         a.kv,
		Records:    a.Slot,
		Classifier: a.Classifier,
		Gate:       a.Gate,
		Clock:      clock,
		Logger:     logger,
		Metrics:    metrics,
	})
	if err != nil {
		return err
	}

	a.Monitor = connectivity.NewMonitor(true, logger, metrics)
	if cfg.ProbeURL != "" {
		a.Prober = connectivity.NewProber(cfg.ProbeURL, cfg.ProbeInterval, &http.Client{Timeout: 5 * time.Second}, a.Monitor, clock, logger)
	}

	// Typed nils must not reach the optional publisher fields.
	var (
		scanEvents  scan.EventPublisher
		drainEvents reconcile.EventPublisher
	)
	if cfg.KafkaEnabled {
		a.writer = kafkaadapter.NewWriter(cfg, metrics, logger)
		scanEvents, drainEvents = a.writer, a.writer
		a.FieldSync = fieldsync.New(a.Fields, a.writer, logger)
		logger.Info("kafka publishing enabled", "brokers", strings.Join(cfg.KafkaBrokers, ","))
	}

	a.Scans = scan.New(scan.Deps{
		Gate:         a.Gate,
		Quality:      a.Quality,
		Classifier:   a.Classifier,
		Queue:        a.Queue,
		Slot:         a.Slot,
		Connectivity: a.Monitor,
		Events:       scanEvents,
		Clock:        clock,
		Logger:       logger,
		Metrics:      metrics,
	})
	a.Reconciler = reconcile.New(a.Queue, a.Monitor, drainEvents, clock, logger, metrics, cfg.ReconcileInterval)
	return nil
}

// Services exposes the components behind the /api routes.
func (a *App) Services() httpadapter.Services {
	return httpadapter.Services{
		Fields:       a.Fields,
		Resolver:     a.Resolver,
		Preferences:  a.Preferences,
		Places:       a.Places,
		Advisor:      a.Advisor,
		Scans:        a.Scans,
		Failures:     a.Slot,
		Queue:        a.Queue,
		Drainer:      a.Reconciler,
		Connectivity: a.Monitor,
	}
}

// CheckReadiness reports ready once the first reconcile pass ran and the
// store answers.
func (a *App) CheckReadiness(ctx context.Context) error {
	if err := a.Reconciler.CheckReadiness(ctx); err != nil {
		return err
	}
	if p, ok := a.kv.(interface{ Ping(context.Context) error }); ok {
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("store: %w", err)
		}
	}
	return nil
}

// Run starts the background workers and blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context) {
	var wg sync.WaitGroup
	if a.Prober != nil {
		wg.Go(func() { a.Prober.Run(ctx) })
	}
	wg.Go(func() {
		if err := a.Reconciler.Run(ctx); err != nil {
			a.Logger.Error("reconcile loop error", "error", err)
		}
	})
	if a.FieldSync != nil {
		wg.Go(func() {
			if err := a.FieldSync.Run(ctx); err != nil {
				a.Logger.Error("field sync error", "error", err)
			}
		})
	}
	wg.Wait()
}

// Close releases the store and the Kafka writer.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.writer != nil {
		if err := a.writer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("kafka writer: %w", err))
		}
	}
	if a.closer != nil {
		if err := a.closer(ctx); err != nil {
			errs = append(errs, fmt.Errorf("store: %w", err))
		}
	}
	return errors.Join(errs...)
}
