package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/couchcryptid/spray-advisory/internal/domain"
	"github.com/couchcryptid/spray-advisory/internal/observability"
	"github.com/couchcryptid/spray-advisory/internal/store"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// ScanRecords is the part of the scan slot the queue reconciles into.
type ScanRecords interface {
	Reconcile(ctx context.Context, rec domain.ScanRecord, scanDate string) error
	RecordFailure(ctx context.Context, d domain.DroppedSubmission) error
}

// Deps are the collaborators of a Queue.
type Deps struct {
	KV         domain.KeyValueStore
	Records    ScanRecords
	Classifier domain.ScanClassifier
	Gate       *domain.QuotaGate
	Clock      clockwork.Clock
	Logger     *slog.Logger
	Metrics    *observability.Metrics
}

// Queue is the durable list of scan submissions waiting for connectivity.
// Each item moves Enqueued → Attempting → Delivered, Enqueued again with a
// higher retry count, or Dropped.
type Queue struct {
	kv         domain.KeyValueStore
	records    ScanRecords
	classifier domain.ScanClassifier
	gate       *domain.QuotaGate
	clock      clockwork.Clock
	logger     *slog.Logger
	metrics    *observability.Metrics

	mu       sync.Mutex
	items    []domain.QueuedScanSubmission
	draining atomic.Bool
}

// DrainReport summarizes one drain pass.
type DrainReport struct {
	Attempted int                           `json:"attempted"`
	Delivered []domain.ScanRecord           `json:"delivered"`
	Retried   []domain.QueuedScanSubmission `json:"retried"`
	Dropped   []domain.DroppedSubmission    `json:"dropped"`
}

// Open loads the persisted queue.
func Open(ctx context.Context, d Deps) (*Queue, error) {
	q := &Queue{
		kv:         d.KV,
		records:    d.Records,
		classifier: d.Classifier,
		gate:       d.Gate,
		clock:      domain.ClockOrReal(d.Clock),
		logger:     d.Logger,
		metrics:    d.Metrics,
	}
	if _, err := store.LoadJSON(ctx, d.KV, domain.KeyScanQueue, &q.items); err != nil {
		return nil, err
	}
	q.metrics.QueueDepth.Set(float64(len(q.items)))
	return q, nil
}

// NewSubmission builds a queue item for p with a zero retry count. It is not
// visible to Drain until passed to Add.
func (q *Queue) NewSubmission(p domain.ScanPayload) domain.QueuedScanSubmission {
	return domain.QueuedScanSubmission{
		ID:                uuid.NewString(),
		Payload:           p,
		EnqueuedAtEpochMs: q.clock.Now().UnixMilli(),
	}
}

// Add appends item to the queue.
func (q *Queue) Add(ctx context.Context, item domain.QueuedScanSubmission) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	next := append(q.snapshotLocked(), item)
	if err := q.persistLocked(ctx, next); err != nil {
		return fmt.Errorf("enqueue scan: %w", err)
	}

	q.logger.Info("scan queued", "submission_id", item.ID, "queue_depth", len(next))
	return nil
}

// Enqueue appends a new submission for p and returns it with the placeholder
// record to show until it is delivered.
func (q *Queue) Enqueue(ctx context.Context, p domain.ScanPayload) (domain.QueuedScanSubmission, domain.ScanRecord, error) {
	item := q.NewSubmission(p)
	if err := q.Add(ctx, item); err != nil {
		return domain.QueuedScanSubmission{}, domain.ScanRecord{}, err
	}
	return item, item.Placeholder(), nil
}

// Pending returns a copy of the queued submissions in order.
func (q *Queue) Pending() []domain.QueuedScanSubmission {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.snapshotLocked()
}

// Len returns the number of queued submissions.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Draining reports whether a drain is in progress.
func (q *Queue) Draining() bool {
	return q.draining.Load()
}

// Drain attempts delivery of every item queued when the call starts. Items
// enqueued meanwhile wait for the next drain. A call made while another drain
// runs returns ErrDrainInProgress without touching the queue.
func (q *Queue) Drain(ctx context.Context) (DrainReport, error) {
	if !q.draining.CompareAndSwap(false, true) {
		return DrainReport{}, domain.ErrDrainInProgress
	}
	defer q.draining.Store(false)

	var report DrainReport
	for _, item := range q.Pending() {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		report.Attempted++
		if err := q.attempt(ctx, item, &report); err != nil {
			return report, err
		}
	}
	return report, nil
}

// attempt delivers one item. The classifier call is the only step outside the
// queue lock; bookkeeping before and after it is atomic.
func (q *Queue) attempt(ctx context.Context, item domain.QueuedScanSubmission, report *DrainReport) error {
	cls, err := q.classifier.Classify(ctx, item.Payload)
	if err != nil {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			// Shutdown interrupted the attempt; it does not count as a failure.
			return ctx.Err()
		}
		return q.handleFailure(ctx, item, err, report)
	}

	rec := domain.NewScanRecord(item.ID, item.Payload, cls, q.clock.Now())
	if err := q.records.Reconcile(ctx, rec, q.gate.DateOf(item.EnqueuedAtEpochMs)); err != nil {
		return fmt.Errorf("reconcile %s: %w", item.ID, err)
	}
	if err := q.remove(ctx, item.ID); err != nil {
		return err
	}

	q.metrics.Deliveries.WithLabelValues("delivered").Inc()
	q.logger.Info("queued scan delivered",
		"submission_id", item.ID,
		"label", rec.Label,
		"confidence", rec.ConfidencePercent,
		"retry_count", item.RetryCount,
	)
	report.Delivered = append(report.Delivered, rec)
	return nil
}

func (q *Queue) handleFailure(ctx context.Context, item domain.QueuedScanSubmission, cause error, report *DrainReport) error {
	next := item.WithFailedAttempt()

	if !next.Exhausted() {
		if err := q.replace(ctx, next); err != nil {
			return err
		}
		q.metrics.Deliveries.WithLabelValues("retried").Inc()
		q.logger.Warn("queued scan delivery failed, will retry",
			"submission_id", item.ID,
			"retry_count", next.RetryCount,
			"error", cause,
		)
		report.Retried = append(report.Retried, next)
		return nil
	}

	dropped := domain.DroppedSubmission{
		Submission:       next,
		DroppedAtEpochMs: q.clock.Now().UnixMilli(),
		LastError:        cause.Error(),
	}
	if err := q.records.RecordFailure(ctx, dropped); err != nil {
		return fmt.Errorf("record dropped %s: %w", item.ID, err)
	}
	if err := q.remove(ctx, item.ID); err != nil {
		return err
	}
	q.metrics.Deliveries.WithLabelValues("dropped").Inc()
	q.logger.Error("queued scan dropped after final attempt",
		"submission_id", item.ID,
		"retry_count", next.RetryCount,
		"error", cause,
	)
	report.Dropped = append(report.Dropped, dropped)
	return nil
}

func (q *Queue) remove(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	next := make([]domain.QueuedScanSubmission, 0, len(q.items))
	for _, it := range q.items {
		if it.ID != id {
			next = append(next, it)
		}
	}
	if err := q.persistLocked(ctx, next); err != nil {
		return fmt.Errorf("remove %s: %w", id, err)
	}
	return nil
}

func (q *Queue) replace(ctx context.Context, item domain.QueuedScanSubmission) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	next := q.snapshotLocked()
	for i := range next {
		if next[i].ID == item.ID {
			next[i] = item
		}
	}
	if err := q.persistLocked(ctx, next); err != nil {
		return fmt.Errorf("requeue %s: %w", item.ID, err)
	}
	return nil
}

func (q *Queue) snapshotLocked() []domain.QueuedScanSubmission {
	return append([]domain.QueuedScanSubmission(nil), q.items...)
}

// persistLocked writes items and swaps them in only once the write succeeded.
func (q *Queue) persistLocked(ctx context.Context, items []domain.QueuedScanSubmission) error {
	if err := store.SaveJSON(ctx, q.kv, domain.KeyScanQueue, items); err != nil {
		return err
	}
	q.items = items
	q.metrics.QueueDepth.Set(float64(len(items)))
	return nil
}
