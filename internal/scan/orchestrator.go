package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/couchcryptid/spray-advisory/internal/domain"
	"github.com/couchcryptid/spray-advisory/internal/observability"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Slot is the single scan record plus the quota date.
type Slot interface {
	Record() (domain.ScanRecord, bool)
	Replace(ctx context.Context, rec domain.ScanRecord) error
	LastScanDate() string
	SetLastScanDate(ctx context.Context, date string) error
	Rollback(ctx context.Context, id string, prev *domain.ScanRecord, prevDate string) error
}

// Enqueuer accepts submissions that cannot be delivered now. An item built by
// NewSubmission is invisible to drains until Add returns.
type Enqueuer interface {
	NewSubmission(p domain.ScanPayload) domain.QueuedScanSubmission
	Add(ctx context.Context, item domain.QueuedScanSubmission) error
}

// EventPublisher forwards scan events downstream.
type EventPublisher interface {
	PublishScanEvents(ctx context.Context, events []domain.ScanEvent) error
}

// Connectivity reports and updates whether the classifier is reachable.
type Connectivity interface {
	Online() bool
	SetOnline(online bool)
}

// Request is one scan submission from the user.
type Request struct {
	ImagePath string `json:"imagePath"`
	FieldID   string `json:"fieldId,omitempty"`
	CropType  string `json:"cropType"`
	Force     bool   `json:"force,omitempty"` // skip the image quality verdict
}

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Gate         *domain.QuotaGate
	Quality      domain.ImageQualityChecker
	Classifier   domain.ScanClassifier
	Queue        Enqueuer
	Slot         Slot
	Connectivity Connectivity
	Events       EventPublisher // optional
	Clock        clockwork.Clock
	Logger       *slog.Logger
	Metrics      *observability.Metrics
}

// Orchestrator runs a scan submission through the quota gate, the image
// quality pre-check, and either direct classification or the offline queue.
type Orchestrator struct {
	gate         *domain.QuotaGate
	quality      domain.ImageQualityChecker
	classifier   domain.ScanClassifier
	queue        Enqueuer
	slot         Slot
	connectivity Connectivity
	events       EventPublisher
	clock        clockwork.Clock
	logger       *slog.Logger
	metrics      *observability.Metrics

	// mu serializes submissions so the quota check and write are atomic.
	mu sync.Mutex
}

// New creates an Orchestrator.
func New(d Deps) *Orchestrator {
	return &Orchestrator{
		gate:         d.Gate,
		quality:      d.Quality,
		classifier:   d.Classifier,
		queue:        d.Queue,
		slot:         d.Slot,
		connectivity: d.Connectivity,
		events:       d.Events,
		clock:        domain.ClockOrReal(d.Clock),
		logger:       d.Logger,
		metrics:      d.Metrics,
	}
}

// CanScanToday reports whether a submission would pass the quota gate now.
func (o *Orchestrator) CanScanToday() bool {
	return o.gate.CanScanToday(o.slot.LastScanDate())
}

// LatestScan returns the stored scan record.
func (o *Orchestrator) LatestScan() (domain.ScanRecord, bool) {
	return o.slot.Record()
}

// SubmitScan submits one image. It fails with ErrQuotaExceeded when a scan
// was already accepted today, and returns a low-quality outcome without side
// effects when the pre-check rejects the image and req.Force is unset.
// Otherwise the scan is classified online or queued, and today's quota is
// consumed either way.
func (o *Orchestrator) SubmitScan(ctx context.Context, req Request) (domain.ScanOutcome, error) {
	req.ImagePath = strings.TrimSpace(req.ImagePath)
	if req.ImagePath == "" {
		return domain.ScanOutcome{}, fmt.Errorf("%w: image path is required", domain.ErrInvalidScan)
	}

	out, err := o.submit(ctx, req)
	if err != nil {
		return out, err
	}
	o.publish(ctx, out)
	return out, nil
}

func (o *Orchestrator) submit(ctx context.Context, req Request) (domain.ScanOutcome, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.gate.CanScanToday(o.slot.LastScanDate()) {
		o.metrics.ScanSubmissions.WithLabelValues("quota_exceeded").Inc()
		return domain.ScanOutcome{}, domain.ErrQuotaExceeded
	}

	if !req.Force {
		report, err := o.quality.Check(ctx, req.ImagePath)
		if err != nil {
			o.metrics.ScanSubmissions.WithLabelValues("error").Inc()
			return domain.ScanOutcome{}, fmt.Errorf("quality check: %w", err)
		}
		if !report.Valid {
			o.metrics.ScanSubmissions.WithLabelValues("low_quality").Inc()
			o.logger.Info("scan rejected by quality check", "image", req.ImagePath, "issues", report.Issues)
			return domain.ScanOutcome{Status: domain.OutcomeLowQuality, Issues: report.Issues}, nil
		}
	}

	p := domain.ScanPayload{ImagePath: req.ImagePath, FieldID: req.FieldID, CropType: req.CropType}

	if o.connectivity.Online() {
		outcome, err := o.classifyNow(ctx, p)
		if err == nil {
			return outcome, nil
		}
		if !errors.Is(err, domain.ErrClassifierUnavailable) {
			o.metrics.ScanSubmissions.WithLabelValues("error").Inc()
			return domain.ScanOutcome{}, err
		}
		o.logger.Warn("classifier unreachable, queueing scan", "image", req.ImagePath, "error", err)
		o.connectivity.SetOnline(false)
	}

	return o.enqueue(ctx, p)
}

func (o *Orchestrator) classifyNow(ctx context.Context, p domain.ScanPayload) (domain.ScanOutcome, error) {
	cls, err := o.classifier.Classify(ctx, p)
	if err != nil {
		return domain.ScanOutcome{}, fmt.Errorf("classify scan: %w", err)
	}

	rec := domain.NewScanRecord(uuid.NewString(), p, cls, o.clock.Now())
	if err := o.slot.Replace(ctx, rec); err != nil {
		return domain.ScanOutcome{}, fmt.Errorf("store scan: %w", err)
	}
	if err := o.slot.SetLastScanDate(ctx, o.gate.RecordScanToday()); err != nil {
		return domain.ScanOutcome{}, fmt.Errorf("record quota: %w", err)
	}

	o.metrics.ScanSubmissions.WithLabelValues("completed").Inc()
	o.logger.Info("scan classified", "scan_id", rec.ID, "label", rec.Label, "confidence", rec.ConfidencePercent)
	return domain.ScanOutcome{Status: domain.OutcomeCompleted, Record: &rec}, nil
}

// enqueue hands the scan to the offline queue. Today's quota is recorded
// right away so toggling connectivity cannot buy a second scan. The quota date
// and placeholder are written before the item is added, so a drain can only
// ever reconcile over the placeholder, never the reverse.
func (o *Orchestrator) enqueue(ctx context.Context, p domain.ScanPayload) (domain.ScanOutcome, error) {
	item := o.queue.NewSubmission(p)
	placeholder := item.Placeholder()

	var prev *domain.ScanRecord
	if rec, ok := o.slot.Record(); ok {
		prev = &rec
	}
	prevDate := o.slot.LastScanDate()

	if err := o.slot.SetLastScanDate(ctx, o.gate.DateOf(item.EnqueuedAtEpochMs)); err != nil {
		o.metrics.ScanSubmissions.WithLabelValues("error").Inc()
		return domain.ScanOutcome{}, fmt.Errorf("record quota: %w", err)
	}
	if err := o.slot.Replace(ctx, placeholder); err != nil {
		o.restore(ctx, item.ID, prev, prevDate)
		o.metrics.ScanSubmissions.WithLabelValues("error").Inc()
		return domain.ScanOutcome{}, fmt.Errorf("store placeholder: %w", err)
	}
	if err := o.queue.Add(ctx, item); err != nil {
		o.restore(ctx, item.ID, prev, prevDate)
		o.metrics.ScanSubmissions.WithLabelValues("error").Inc()
		return domain.ScanOutcome{}, err
	}

	o.metrics.ScanSubmissions.WithLabelValues("queued").Inc()
	return domain.ScanOutcome{Status: domain.OutcomeQueued, Record: &placeholder}, nil
}

func (o *Orchestrator) restore(ctx context.Context, id string, prev *domain.ScanRecord, prevDate string) {
	if err := o.slot.Rollback(ctx, id, prev, prevDate); err != nil {
		o.logger.Error("rollback of failed enqueue", "submission_id", id, "error", err)
	}
}

// publish is best effort: the outcome is already durable locally.
func (o *Orchestrator) publish(ctx context.Context, out domain.ScanOutcome) {
	if o.events == nil || out.Record == nil {
		return
	}
	kind := domain.ScanEventCompleted
	if out.Status == domain.OutcomeQueued {
		kind = domain.ScanEventQueued
	}
	rec := out.Record.Clone()
	ev := domain.ScanEvent{Kind: kind, Record: &rec, OccurredAt: o.clock.Now()}
	if err := o.events.PublishScanEvents(ctx, []domain.ScanEvent{ev}); err != nil {
		o.logger.Warn("publish scan event failed", "kind", kind, "scan_id", rec.ID, "error", err)
	}
}
