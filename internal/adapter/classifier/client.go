// Package classifier calls the remote crop-disease classification service.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/couchcryptid/spray-advisory/internal/domain"
	"github.com/couchcryptid/spray-advisory/internal/observability"
)

// Client implements domain.ScanClassifier. Transport failures, 5xx and 429
// responses wrap domain.ErrClassifierUnavailable so callers can queue and
// retry; any other failure is permanent for that payload.
type Client struct {
	httpClient *http.Client
	baseURL    string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a classifier client for baseURL, e.g. http://127.0.0.1:8000.
func NewClient(baseURL string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		metrics:    metrics,
		logger:     logger,
	}
}

// Classify uploads the image as multipart/form-data to POST /v1/scans.
func (c *Client) Classify(ctx context.Context, p domain.ScanPayload) (domain.Classification, error) {
	body, contentType, err := encodeForm(p)
	if err != nil {
		return domain.Classification{}, err
	}

	start := time.Now()
	defer func() {
		c.metrics.UpstreamDuration.WithLabelValues("classifier").Observe(time.Since(start).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/scans", body)
	if err != nil {
		return domain.Classification{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.UpstreamRequests.WithLabelValues("classifier", "error").Inc()
		if ctx.Err() != nil {
			return domain.Classification{}, ctx.Err()
		}
		return domain.Classification{}, fmt.Errorf("%w: %w", domain.ErrClassifierUnavailable, err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
		c.metrics.UpstreamRequests.WithLabelValues("classifier", "error").Inc()
		return domain.Classification{}, fmt.Errorf("%w: %s: %s", domain.ErrClassifierUnavailable, resp.Status, data)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.metrics.UpstreamRequests.WithLabelValues("classifier", "error").Inc()
		return domain.Classification{}, fmt.Errorf("classifier rejected scan: %s: %s", resp.Status, data)
	}

	var out scanResponse
	if err := json.Unmarshal(data, &out); err != nil {
		c.metrics.UpstreamRequests.WithLabelValues("classifier", "error").Inc()
		return domain.Classification{}, fmt.Errorf("decode classifier response: %w", err)
	}
	if out.Label == "" {
		c.metrics.UpstreamRequests.WithLabelValues("classifier", "empty").Inc()
		return domain.Classification{}, fmt.Errorf("classifier returned no label")
	}

	c.metrics.UpstreamRequests.WithLabelValues("classifier", "success").Inc()
	return domain.Classification{
		Label:             out.Label,
		ConfidencePercent: out.ConfidencePercent,
		AdvisorySteps:     out.AdvisorySteps,
	}, nil
}

func encodeForm(p domain.ScanPayload) (*bytes.Buffer, string, error) {
	f, err := os.Open(p.ImagePath)
	if err != nil {
		return nil, "", fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("image", filepath.Base(p.ImagePath))
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", fmt.Errorf("read image: %w", err)
	}
	if err := mw.WriteField("cropType", p.CropType); err != nil {
		return nil, "", err
	}
	if p.FieldID != "" {
		if err := mw.WriteField("fieldId", p.FieldID); err != nil {
			return nil, "", err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}

type scanResponse struct {
	Label             string   `json:"label"`
	ConfidencePercent float64  `json:"confidencePercent"`
	AdvisorySteps     []string `json:"advisorySteps"`
}
