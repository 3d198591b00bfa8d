// Package reconcile drains the offline scan queue in the background and
// forwards delivery outcomes downstream.
package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/spray-advisory/internal/domain"
	"github.com/couchcryptid/spray-advisory/internal/observability"
	"github.com/couchcryptid/spray-advisory/internal/queue"
	"github.com/jonboulle/clockwork"
)

// Drainer is the offline submission queue.
type Drainer interface {
	Drain(ctx context.Context) (queue.DrainReport, error)
	Len() int
}

// Connectivity reports reachability and offline to online transitions.
type Connectivity interface {
	Online() bool
	Reconnected() <-chan struct{}
}

// EventPublisher writes scan events downstream.
type EventPublisher interface {
	PublishScanEvents(ctx context.Context, events []domain.ScanEvent) error
}

// Loop drains the queue at start, on every reconnect, and on a fixed interval.
type Loop struct {
	drainer   Drainer
	conn      Connectivity
	publisher EventPublisher
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   *observability.Metrics
	interval  time.Duration
	ready     atomic.Bool

	maxPublishAttempts int
}

// New creates a Loop. A nil publisher disables event forwarding.
func New(d Drainer, conn Connectivity, pub EventPublisher, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics, interval time.Duration) *Loop {
	return &Loop{
		drainer:            d,
		conn:               conn,
		publisher:          pub,
		clock:              domain.ClockOrReal(clock),
		logger:             logger,
		metrics:            metrics,
		interval:           interval,
		maxPublishAttempts: 5,
	}
}

// CheckReadiness returns nil once the startup pass has run.
func (l *Loop) CheckReadiness(_ context.Context) error {
	if !l.ready.Load() {
		return errors.New("reconcile loop has not completed its first pass")
	}
	return nil
}

// Run blocks until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("reconcile loop started", "interval", l.interval)
	l.metrics.ReconcileRunning.Set(1)
	defer l.metrics.ReconcileRunning.Set(0)

	ticker := l.clock.NewTicker(l.interval)
	defer ticker.Stop()

	l.Reconcile(ctx, "startup")
	l.ready.Store(true)

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("reconcile loop stopping", "reason", ctx.Err())
			return nil
		case <-l.conn.Reconnected():
			l.Reconcile(ctx, "reconnected")
		case <-ticker.Chan():
			l.Reconcile(ctx, "interval")
		}
	}
}

// Reconcile runs one drain if the classifier is reachable and work is
// pending, then publishes the outcomes. It returns the drain report.
func (l *Loop) Reconcile(ctx context.Context, trigger string) queue.DrainReport {
	if l.drainer.Len() == 0 {
		return queue.DrainReport{}
	}
	if !l.conn.Online() {
		l.logger.Debug("skipping drain while offline", "trigger", trigger, "pending", l.drainer.Len())
		return queue.DrainReport{}
	}

	report, err := l.DrainNow(ctx, trigger)
	if err != nil && !errors.Is(err, domain.ErrDrainInProgress) && ctx.Err() == nil {
		l.logger.Error("drain failed", "trigger", trigger, "error", err)
	}
	return report
}

// DrainNow drains regardless of the connectivity state and publishes the
// outcomes. It returns domain.ErrDrainInProgress if a drain is running.
func (l *Loop) DrainNow(ctx context.Context, trigger string) (queue.DrainReport, error) {
	start := l.clock.Now()
	report, err := l.drainer.Drain(ctx)
	if errors.Is(err, domain.ErrDrainInProgress) {
		l.metrics.DrainsSkipped.Inc()
		l.logger.Debug("drain already running", "trigger", trigger)
		return report, err
	}
	if err != nil {
		return report, err
	}

	l.metrics.DrainDuration.Observe(l.clock.Since(start).Seconds())
	l.logger.Info("queue drained",
		"trigger", trigger,
		"attempted", report.Attempted,
		"delivered", len(report.Delivered),
		"retried", len(report.Retried),
		"dropped", len(report.Dropped),
		"remaining", l.drainer.Len(),
	)

	l.publish(ctx, EventsFromReport(report, l.clock.Now()))
	return report, nil
}

// publish retries with exponential backoff: 200ms doubling to a 5s cap.
// Delivery outcomes are already durable, so giving up only loses the event.
func (l *Loop) publish(ctx context.Context, events []domain.ScanEvent) {
	if l.publisher == nil || len(events) == 0 {
		return
	}

	backoff := 200 * time.Millisecond
	maxBackoff := 5 * time.Second

	for attempt := 1; ; attempt++ {
		err := l.publisher.PublishScanEvents(ctx, events)
		if err == nil {
			return
		}
		if ctx.Err() != nil {
			return
		}
		if attempt == l.maxPublishAttempts {
			l.logger.Error("giving up on scan events", "events", len(events), "attempts", attempt, "error", err)
			return
		}
		l.logger.Warn("publish scan events failed", "attempt", attempt, "error", err)
		if !l.sleep(ctx, backoff) {
			return
		}
		backoff = nextBackoff(backoff, maxBackoff)
	}
}

func (l *Loop) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := l.clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}
