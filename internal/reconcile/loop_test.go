package reconcile_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couchcryptid/spray-advisory/internal/domain"
	"github.com/couchcryptid/spray-advisory/internal/observability"
	"github.com/couchcryptid/spray-advisory/internal/queue"
	"github.com/couchcryptid/spray-advisory/internal/reconcile"
	"github.com/couchcryptid/spray-advisory/internal/store"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockDrainer struct {
	mu      sync.Mutex
	pending int
	report  queue.DrainReport
	err     error
	drains  atomic.Int32
}

func (m *mockDrainer) Drain(_ context.Context) (queue.DrainReport, error) {
	m.drains.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return queue.DrainReport{}, m.err
	}
	m.pending = 0
	return m.report, nil
}

func (m *mockDrainer) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending
}

func (m *mockDrainer) setPending(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = n
}

type mockConn struct {
	online      atomic.Bool
	reconnected chan struct{}
}

func newConn(online bool) *mockConn {
	c := &mockConn{reconnected: make(chan struct{}, 1)}
	c.online.Store(online)
	return c
}

func (c *mockConn) Online() bool                 { return c.online.Load() }
func (c *mockConn) Reconnected() <-chan struct{} { return c.reconnected }

type mockPublisher struct {
	mu       sync.Mutex
	failures int
	calls    int
	events   []domain.ScanEvent
}

func (m *mockPublisher) PublishScanEvents(_ context.Context, events []domain.ScanEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.calls <= m.failures {
		return errors.New("broker unavailable")
	}
	m.events = append(m.events, events...)
	return nil
}

func (m *mockPublisher) Published() []domain.ScanEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.ScanEvent(nil), m.events...)
}

func (m *mockPublisher) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func deliveredReport() queue.DrainReport {
	return queue.DrainReport{
		Attempted: 2,
		Delivered: []domain.ScanRecord{{ID: "sub-1", Label: "healthy", ConfidencePercent: 95}},
		Dropped: []domain.DroppedSubmission{{
			Submission: domain.QueuedScanSubmission{ID: "sub-2", RetryCount: 3},
			LastError:  "classifier unavailable",
		}},
	}
}

// --- tests ---

func TestEventsFromReport(t *testing.T) {
	at := time.Date(2024, time.June, 4, 8, 0, 0, 0, time.UTC)
	report := deliveredReport()
	report.Retried = []domain.QueuedScanSubmission{{ID: "sub-3", RetryCount: 1}}

	events := reconcile.EventsFromReport(report, at)

	require.Len(t, events, 2)
	assert.Equal(t, domain.ScanEventDelivered, events[0].Kind)
	assert.Equal(t, "sub-1", events[0].Record.ID)
	assert.Equal(t, domain.ScanEventDropped, events[1].Kind)
	assert.Equal(t, "sub-2", events[1].Submission.ID)
	assert.Equal(t, "classifier unavailable", events[1].Error)
	assert.Equal(t, at, events[1].OccurredAt)
}

func TestLoop_Reconcile_SkipsWhenOffline(t *testing.T) {
	d := &mockDrainer{pending: 1}
	l := reconcile.New(d, newConn(false), nil, clockwork.NewFakeClock(), slog.Default(), observability.NewMetricsForTesting(), time.Minute)

	l.Reconcile(context.Background(), "test")
	assert.Zero(t, d.drains.Load())
}

func TestLoop_Reconcile_SkipsEmptyQueue(t *testing.T) {
	d := &mockDrainer{}
	l := reconcile.New(d, newConn(true), nil, clockwork.NewFakeClock(), slog.Default(), observability.NewMetricsForTesting(), time.Minute)

	l.Reconcile(context.Background(), "test")
	assert.Zero(t, d.drains.Load())
}

func TestLoop_Reconcile_PublishesOutcomes(t *testing.T) {
	d := &mockDrainer{pending: 2, report: deliveredReport()}
	pub := &mockPublisher{}
	l := reconcile.New(d, newConn(true), pub, clockwork.NewFakeClock(), slog.Default(), observability.NewMetricsForTesting(), time.Minute)

	report := l.Reconcile(context.Background(), "test")

	assert.Len(t, report.Delivered, 1)
	published := pub.Published()
	require.Len(t, published, 2)
	assert.Equal(t, domain.ScanEventDelivered, published[0].Kind)
	assert.Equal(t, domain.ScanEventDropped, published[1].Kind)
}

func TestLoop_Reconcile_CountsSkippedDrain(t *testing.T) {
	d := &mockDrainer{pending: 1, err: domain.ErrDrainInProgress}
	metrics := observability.NewMetricsForTesting()
	l := reconcile.New(d, newConn(true), nil, clockwork.NewFakeClock(), slog.Default(), metrics, time.Minute)

	l.Reconcile(context.Background(), "test")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.DrainsSkipped))
}

type blockingClassifier struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingClassifier) Classify(context.Context, domain.ScanPayload) (domain.Classification, error) {
	close(b.entered)
	<-b.release
	return domain.Classification{Label: "healthy", ConfidencePercent: 95}, nil
}

func TestLoop_DrainNow_CountsContentionOnceWithRealQueue(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryKV()
	slot, err := store.OpenScanSlot(ctx, kv)
	require.NoError(t, err)
	clock := clockwork.NewFakeClock()
	metrics := observability.NewMetricsForTesting()
	cls := &blockingClassifier{entered: make(chan struct{}), release: make(chan struct{})}
	q, err := queue.Open(ctx, queue.Deps{
		KV:         kv,
		Records:    slot,
		Classifier: cls,
		Gate:       domain.NewQuotaGate(time.UTC, clock),
		Clock:      clock,
		Logger:     slog.Default(),
		Metrics:    metrics,
	})
	require.NoError(t, err)
	_, _, err = q.Enqueue(ctx, domain.ScanPayload{ImagePath: "/img/a.jpg", CropType: "tomato"})
	require.NoError(t, err)
	l := reconcile.New(q, newConn(true), nil, clock, slog.Default(), metrics, time.Minute)

	done := make(chan error, 1)
	go func() {
		_, err := l.DrainNow(ctx, "first")
		done <- err
	}()
	<-cls.entered

	_, err = l.DrainNow(ctx, "second")
	require.ErrorIs(t, err, domain.ErrDrainInProgress)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.DrainsSkipped))

	close(cls.release)
	require.NoError(t, <-done)
	assert.Zero(t, q.Len())
	assert.Equal(t, uint64(1), sampleCount(t, metrics.DrainDuration))
}

func sampleCount(t *testing.T, h prometheus.Histogram) uint64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, h.Write(&m))
	return m.GetHistogram().GetSampleCount()
}

func TestLoop_Reconcile_RetriesPublishWithBackoff(t *testing.T) {
	d := &mockDrainer{pending: 1, report: deliveredReport()}
	pub := &mockPublisher{failures: 1}
	clock := clockwork.NewFakeClock()
	l := reconcile.New(d, newConn(true), pub, clock, slog.Default(), observability.NewMetricsForTesting(), time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		l.Reconcile(ctx, "test")
		close(done)
	}()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(200 * time.Millisecond)
	<-done

	assert.Equal(t, 2, pub.Calls())
	assert.Len(t, pub.Published(), 2)
}

func TestLoop_Run_DrainsAtStartAndOnReconnect(t *testing.T) {
	d := &mockDrainer{pending: 1}
	conn := newConn(true)
	clock := clockwork.NewFakeClock()
	metrics := observability.NewMetricsForTesting()
	l := reconcile.New(d, conn, nil, clock, slog.Default(), metrics, time.Hour)

	require.Error(t, l.CheckReadiness(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	require.Eventually(t, func() bool { return d.drains.Load() == 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return l.CheckReadiness(ctx) == nil }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ReconcileRunning))

	d.setPending(1)
	conn.reconnected <- struct{}{}
	require.Eventually(t, func() bool { return d.drains.Load() == 2 }, time.Second, 5*time.Millisecond)

	d.setPending(1)
	clock.Advance(time.Hour)
	require.Eventually(t, func() bool { return d.drains.Load() == 3 }, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.ReconcileRunning))
}

func TestLoop_DrainNow_IgnoresConnectivity(t *testing.T) {
	d := &mockDrainer{pending: 1, report: deliveredReport()}
	l := reconcile.New(d, newConn(false), nil, clockwork.NewFakeClock(), slog.Default(), observability.NewMetricsForTesting(), time.Minute)

	report, err := l.DrainNow(context.Background(), "manual")
	require.NoError(t, err)
	assert.Len(t, report.Delivered, 1)
	assert.Equal(t, int32(1), d.drains.Load())
}

func TestLoop_DrainNow_ReportsInProgress(t *testing.T) {
	d := &mockDrainer{pending: 1, err: domain.ErrDrainInProgress}
	l := reconcile.New(d, newConn(true), nil, clockwork.NewFakeClock(), slog.Default(), observability.NewMetricsForTesting(), time.Minute)

	_, err := l.DrainNow(context.Background(), "manual")
	require.ErrorIs(t, err, domain.ErrDrainInProgress)
}
