package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/couchcryptid/spray-advisory/internal/advisory"
	"github.com/couchcryptid/spray-advisory/internal/domain"
	"github.com/couchcryptid/spray-advisory/internal/location"
	"github.com/couchcryptid/spray-advisory/internal/queue"
	"github.com/couchcryptid/spray-advisory/internal/scan"
	"github.com/go-chi/chi/v5"
)

// FieldService is the single-field store.
type FieldService interface {
	Field() (domain.Field, bool)
	CreateOrUpdate(ctx context.Context, in domain.FieldInput) (domain.Field, error)
	Delete(ctx context.Context) error
}

// PreferenceService manages the saved default location.
type PreferenceService interface {
	Location() domain.Place
	Save(ctx context.Context, place domain.Place) error
	Reset(ctx context.Context) error
}

// PlaceService backs place search and pin labelling.
type PlaceService interface {
	Search(ctx context.Context, text string) (domain.Place, error)
	Reverse(ctx context.Context, lat, lng float64) domain.Place
}

// ScanService submits scans and reports the stored record.
type ScanService interface {
	SubmitScan(ctx context.Context, req scan.Request) (domain.ScanOutcome, error)
	LatestScan() (domain.ScanRecord, bool)
	CanScanToday() bool
}

// FailureLog lists and acknowledges dropped submissions.
type FailureLog interface {
	Failures() []domain.DroppedSubmission
	AcknowledgeFailures(ctx context.Context) (int, error)
}

// QueueReader lists pending submissions.
type QueueReader interface {
	Pending() []domain.QueuedScanSubmission
}

// Drainer drains the offline queue on demand.
type Drainer interface {
	DrainNow(ctx context.Context, trigger string) (queue.DrainReport, error)
}

// LocationResolver yields the active forecast location.
type LocationResolver interface {
	Resolve() location.Resolved
}

// AdvisoryService produces the spray report for the active location.
type AdvisoryService interface {
	Current(ctx context.Context) (advisory.Report, error)
}

// ConnectivityService reads and overrides the online state.
type ConnectivityService interface {
	Online() bool
	SetOnline(online bool)
}

// Services are the collaborators behind the /api routes.
type Services struct {
	Fields       FieldService
	Resolver     LocationResolver
	Preferences  PreferenceService
	Places       PlaceService
	Advisor      AdvisoryService
	Scans        ScanService
	Failures     FailureLog
	Queue        QueueReader
	Drainer      Drainer
	Connectivity ConnectivityService
}

type api struct {
	Services
	logger *slog.Logger
}

// NewAPI returns the router for /api.
func NewAPI(s Services, logger *slog.Logger) http.Handler {
	a := &api{Services: s, logger: logger}

	r := chi.NewRouter()
	r.Route("/field", func(fr chi.Router) {
		fr.Get("/", a.handleGetField)
		fr.Put("/", a.handlePutField)
		fr.Delete("/", a.handleDeleteField)
	})
	r.Get("/location", a.handleGetLocation)
	r.Route("/location/preference", func(pr chi.Router) {
		pr.Get("/", a.handleGetPreference)
		pr.Put("/", a.handlePutPreference)
		pr.Delete("/", a.handleResetPreference)
	})
	r.Get("/places/search", a.handleSearchPlace)
	r.Get("/places/reverse", a.handleReversePlace)
	r.Get("/advisory", a.handleAdvisory)
	r.Route("/scans", func(sr chi.Router) {
		sr.Post("/", a.handleSubmitScan)
		sr.Get("/latest", a.handleLatestScan)
		sr.Get("/quota", a.handleQuota)
		sr.Get("/failures", a.handleFailures)
		sr.Post("/failures/ack", a.handleAckFailures)
	})
	r.Get("/queue", a.handleQueue)
	r.Post("/queue/drain", a.handleDrain)
	r.Get("/connectivity", a.handleGetConnectivity)
	r.Put("/connectivity", a.handlePutConnectivity)

	return r
}

// --- field ---

func (a *api) handleGetField(w http.ResponseWriter, _ *http.Request) {
	f, ok := a.Fields.Field()
	if !ok {
		a.writeError(w, domain.ErrNoField)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (a *api) handlePutField(w http.ResponseWriter, r *http.Request) {
	var in domain.FieldInput
	if !decode(w, r, &in) {
		return
	}
	f, err := a.Fields.CreateOrUpdate(r.Context(), in)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (a *api) handleDeleteField(w http.ResponseWriter, r *http.Request) {
	if err := a.Fields.Delete(r.Context()); err != nil {
		a.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- location ---

func (a *api) handleGetLocation(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.Resolver.Resolve())
}

func (a *api) handleGetPreference(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.Preferences.Location())
}

func (a *api) handlePutPreference(w http.ResponseWriter, r *http.Request) {
	var p domain.Place
	if !decode(w, r, &p) {
		return
	}
	if err := a.Preferences.Save(r.Context(), p); err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a.Preferences.Location())
}

func (a *api) handleResetPreference(w http.ResponseWriter, r *http.Request) {
	if err := a.Preferences.Reset(r.Context()); err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a.Preferences.Location())
}

func (a *api) handleSearchPlace(w http.ResponseWriter, r *http.Request) {
	place, err := a.Places.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, place)
}

func (a *api) handleReversePlace(w http.ResponseWriter, r *http.Request) {
	lat, errLat := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	lng, errLng := strconv.ParseFloat(r.URL.Query().Get("lng"), 64)
	if errLat != nil || errLng != nil {
		a.writeError(w, fmt.Errorf("%w: lat and lng must be numbers", domain.ErrInvalidLocation))
		return
	}
	writeJSON(w, http.StatusOK, a.Places.Reverse(r.Context(), lat, lng))
}

// --- advisory ---

func (a *api) handleAdvisory(w http.ResponseWriter, r *http.Request) {
	rep, err := a.Advisor.Current(r.Context())
	if err != nil {
		a.logger.Warn("advisory unavailable", "error", err)
		writeJSON(w, http.StatusBadGateway, errorBody{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// --- scans ---

func (a *api) handleSubmitScan(w http.ResponseWriter, r *http.Request) {
	var req scan.Request
	if !decode(w, r, &req) {
		return
	}
	out, err := a.Scans.SubmitScan(r.Context(), req)
	if err != nil {
		a.writeError(w, err)
		return
	}
	status := http.StatusCreated
	switch out.Status {
	case domain.OutcomeQueued:
		status = http.StatusAccepted
	case domain.OutcomeLowQuality:
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, out)
}

func (a *api) handleLatestScan(w http.ResponseWriter, _ *http.Request) {
	rec, ok := a.Scans.LatestScan()
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "no scan recorded"})
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *api) handleQuota(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"canScanToday": a.Scans.CanScanToday()})
}

func (a *api) handleFailures(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.Failures.Failures())
}

func (a *api) handleAckFailures(w http.ResponseWriter, r *http.Request) {
	n, err := a.Failures.AcknowledgeFailures(r.Context())
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"acknowledged": n})
}

// --- queue & connectivity ---

func (a *api) handleQueue(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.Queue.Pending())
}

func (a *api) handleDrain(w http.ResponseWriter, r *http.Request) {
	report, err := a.Drainer.DrainNow(r.Context(), "api")
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type connectivityBody struct {
	Online bool `json:"online"`
}

func (a *api) handleGetConnectivity(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, connectivityBody{Online: a.Connectivity.Online()})
}

func (a *api) handlePutConnectivity(w http.ResponseWriter, r *http.Request) {
	var body connectivityBody
	if !decode(w, r, &body) {
		return
	}
	a.Connectivity.SetOnline(body.Online)
	writeJSON(w, http.StatusOK, connectivityBody{Online: a.Connectivity.Online()})
}

// --- helpers ---

type errorBody struct {
	Error string `json:"error"`
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON body"})
		return false
	}
	return true
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidField), errors.Is(err, domain.ErrInvalidLocation),
		errors.Is(err, domain.ErrInvalidScan):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNoField), errors.Is(err, domain.ErrPlaceNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrDrainInProgress):
		return http.StatusConflict
	case errors.Is(err, domain.ErrQuotaExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrClassifierUnavailable), errors.Is(err, location.ErrLookupDisabled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (a *api) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		a.logger.Error("request failed", "error", err)
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
