package domain

import (
	"slices"
	"time"
)

// Placeholder values shown while a scan waits in the offline queue.
const (
	LabelPending      = "pending"
	LabelFailed       = "failed"
	PendingConfidence = 0.0
)

// MaxDeliveryAttempts bounds how often a queued submission is attempted. The
// attempt that brings RetryCount to this value is the last one.
const MaxDeliveryAttempts = 3

// ScanPayload is what the remote classifier needs for one image.
type ScanPayload struct {
	ImagePath string `json:"imagePath"`
	FieldID   string `json:"fieldId,omitempty"`
	CropType  string `json:"cropType"`
}

// Classification is a successful remote answer. A low confidence is still a
// success.
type Classification struct {
	Label             string   `json:"label"`
	ConfidencePercent float64  `json:"confidencePercent"`
	AdvisorySteps     []string `json:"advisorySteps,omitempty"`
}

// ScanRecord is the single most recent scan result.
type ScanRecord struct {
	ID                string   `json:"id"`
	FieldID           string   `json:"fieldId,omitempty"`
	ImagePath         string   `json:"imagePath"`
	Label             string   `json:"label"`
	ConfidencePercent float64  `json:"confidencePercent"`
	AdvisorySteps     []string `json:"advisorySteps,omitempty"`
	CreatedAtEpochMs  int64    `json:"createdAtEpochMs"`
	IsQueued          bool     `json:"isQueued"`
}

// Clone returns a copy that shares no slices with r.
func (r ScanRecord) Clone() ScanRecord {
	r.AdvisorySteps = slices.Clone(r.AdvisorySteps)
	return r
}

// NewScanRecord builds a completed record from a classification.
func NewScanRecord(id string, p ScanPayload, c Classification, createdAt time.Time) ScanRecord {
	return ScanRecord{
		ID:                id,
		FieldID:           p.FieldID,
		ImagePath:         p.ImagePath,
		Label:             c.Label,
		ConfidencePercent: c.ConfidencePercent,
		AdvisorySteps:     slices.Clone(c.AdvisorySteps),
		CreatedAtEpochMs:  createdAt.UnixMilli(),
	}
}

// QueuedScanSubmission is a durable retry unit. Values are replaced, not
// mutated: each failed attempt yields a new value via WithFailedAttempt.
type QueuedScanSubmission struct {
	ID                string      `json:"id"`
	Payload           ScanPayload `json:"payload"`
	EnqueuedAtEpochMs int64       `json:"enqueuedAtEpochMs"`
	RetryCount        int         `json:"retryCount"`
}

// WithFailedAttempt returns a copy with RetryCount incremented.
func (q QueuedScanSubmission) WithFailedAttempt() QueuedScanSubmission {
	q.RetryCount++
	return q
}

// Exhausted reports whether no further attempts are allowed.
func (q QueuedScanSubmission) Exhausted() bool {
	return q.RetryCount >= MaxDeliveryAttempts
}

// Placeholder is the record shown while q is pending. It shares q's id so a
// later drain can find it.
func (q QueuedScanSubmission) Placeholder() ScanRecord {
	return ScanRecord{
		ID:                q.ID,
		FieldID:           q.Payload.FieldID,
		ImagePath:         q.Payload.ImagePath,
		Label:             LabelPending,
		ConfidencePercent: PendingConfidence,
		CreatedAtEpochMs:  q.EnqueuedAtEpochMs,
		IsQueued:          true,
	}
}

// DroppedSubmission records a submission that exhausted its attempts. It stays
// visible until acknowledged, since it consumed the day's scan.
type DroppedSubmission struct {
	Submission       QueuedScanSubmission `json:"submission"`
	DroppedAtEpochMs int64                `json:"droppedAtEpochMs"`
	LastError        string               `json:"lastError"`
}

// QualityReport is the local image pre-check result.
type QualityReport struct {
	Valid  bool     `json:"isValid"`
	Issues []string `json:"issues,omitempty"`
}

// OutcomeStatus classifies a ScanOutcome.
type OutcomeStatus string

const (
	OutcomeCompleted  OutcomeStatus = "completed"
	OutcomeQueued     OutcomeStatus = "queued"
	OutcomeLowQuality OutcomeStatus = "low_quality"
)

// ScanOutcome is the result of a scan submission. Record is set for completed
// and queued outcomes; Issues for low quality.
type ScanOutcome struct {
	Status OutcomeStatus `json:"status"`
	Record *ScanRecord   `json:"record,omitempty"`
	Issues []string      `json:"issues,omitempty"`
}

// ScanEventKind tags events published to downstream systems.
type ScanEventKind string

const (
	ScanEventCompleted ScanEventKind = "completed" // direct online classification
	ScanEventDelivered ScanEventKind = "delivered" // reconciled from the queue
	ScanEventDropped   ScanEventKind = "dropped"
	ScanEventQueued    ScanEventKind = "queued"
)

// ScanEvent describes one scan pipeline transition.
type ScanEvent struct {
	Kind       ScanEventKind         `json:"kind"`
	Record     *ScanRecord           `json:"record,omitempty"`
	Submission *QueuedScanSubmission `json:"submission,omitempty"`
	Error      string                `json:"error,omitempty"`
	OccurredAt time.Time             `json:"occurredAt"`
}
