// Package api exposes the analysis service over HTTP. Handlers speak JSON;
// the per-session stream is a websocket endpoint.
package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/quietloop/attune/internal/behavior"
	"github.com/quietloop/attune/internal/emotion"
	"github.com/quietloop/attune/internal/milestone"
	apperrors "github.com/quietloop/attune/internal/platform/errors"
	"github.com/quietloop/attune/internal/platform/id"
	"github.com/quietloop/attune/internal/profile"
	"github.com/quietloop/attune/internal/scoring"
	"github.com/quietloop/attune/internal/session"
	"github.com/quietloop/attune/internal/storage"
	"github.com/quietloop/attune/internal/stream"
)

// maxBodyBytes bounds request payloads.
const maxBodyBytes = 1 << 20

var errSessionIDRequired = apperrors.New(apperrors.CodeInvalidArgument, "session id is required")

// Deps holds the handler's collaborators.
type Deps struct {
	Registry *session.Registry
	Store    storage.Store
	Hub      *stream.Hub
	Catalog  *milestone.Catalog
	Clock    func() time.Time
	NewID    func() (string, error)
}

type handlers struct {
	registry *session.Registry
	store    storage.Store
	hub      *stream.Hub
	catalog  *milestone.Catalog
	clock    func() time.Time
	newID    func() (string, error)
}

// NewHandler builds the HTTP handler for the analysis service.
func NewHandler(deps Deps) http.Handler {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.NewID == nil {
		deps.NewID = id.NewID
	}
	h := handlers{
		registry: deps.Registry,
		store:    deps.Store,
		hub:      deps.Hub,
		catalog:  deps.Catalog,
		clock:    deps.Clock,
		newID:    deps.NewID,
	}

	mux := http.NewServeMux()
	mux.HandleFunc(http.MethodGet+" /up", h.handleUp)

	mux.HandleFunc(http.MethodPost+" /v1/children", h.handleCreateProfile)
	mux.HandleFunc(http.MethodGet+" /v1/children", h.handleListProfiles)
	mux.HandleFunc(http.MethodGet+" /v1/children/{childID}", h.handleGetProfile)
	mux.HandleFunc(http.MethodPut+" /v1/children/{childID}", h.handleUpdateProfile)

	mux.HandleFunc(http.MethodPost+" /v1/children/{childID}/sessions", h.handleStartSession)
	mux.HandleFunc(http.MethodPost+" /v1/sessions/{sessionID}/end", h.handleEndSession)
	mux.HandleFunc(http.MethodGet+" /v1/sessions/{sessionID}/dashboard", h.handleDashboard)
	mux.HandleFunc(http.MethodPut+" /v1/sessions/{sessionID}/metrics", h.handleIngestMetrics)
	mux.HandleFunc(http.MethodGet+" /v1/sessions/{sessionID}/alerts", h.handleSessionAlerts)
	mux.HandleFunc(http.MethodPost+" /v1/sessions/{sessionID}/alerts/{alertID}/resolve", h.handleResolveAlert)
	mux.HandleFunc(http.MethodGet+" /v1/sessions/{sessionID}/stream", h.handleStream)

	mux.HandleFunc(http.MethodPost+" /v1/children/{childID}/behavioral-observations", h.handleIngestObservations)
	mux.HandleFunc(http.MethodGet+" /v1/children/{childID}/behavioral-observations", h.handleListObservations)
	mux.HandleFunc(http.MethodPost+" /v1/children/{childID}/emotional-transitions", h.handleIngestTransitions)
	mux.HandleFunc(http.MethodPost+" /v1/children/{childID}/skill-assessments", h.handleIngestAssessments)

	mux.HandleFunc(http.MethodGet+" /v1/children/{childID}/milestones", h.handleMilestones)
	mux.HandleFunc(http.MethodGet+" /v1/children/{childID}/trends", h.handleTrends)
	mux.HandleFunc(http.MethodGet+" /v1/children/{childID}/export", h.handleExport)

	return traced(mux)
}

// traced wraps the mux with a per-request span.
func traced(next http.Handler) http.Handler {
	tracer := otel.Tracer("attune/api")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), r.Method+" "+r.URL.Path)
		span.SetAttributes(attribute.String("http.method", r.Method))
		defer span.End()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h handlers) handleUp(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

type errorResponse struct {
	Code     string            `json:"code"`
	Message  string            `json:"message"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	_ = encoder.Encode(payload)
}

// writeError maps domain errors to an HTTP status and a coded JSON body.
func writeError(w http.ResponseWriter, err error) {
	code := codeFor(err)
	status := code.HTTPStatus()
	if status >= http.StatusInternalServerError {
		log.Printf("api: internal error: %v", err)
	}
	response := errorResponse{Code: string(code), Message: err.Error()}
	var domainErr *apperrors.Error
	if errors.As(err, &domainErr) {
		response.Metadata = domainErr.Metadata
	}
	writeJSON(w, status, response)
}

func codeFor(err error) apperrors.Code {
	var domainErr *apperrors.Error
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}

	switch {
	case errors.Is(err, profile.ErrEmptyName):
		return apperrors.CodeProfileNameEmpty
	case errors.Is(err, profile.ErrInvalidAge):
		return apperrors.CodeProfileInvalidAge
	case errors.Is(err, profile.ErrInvalidSupportLevel):
		return apperrors.CodeProfileInvalidSupport
	case errors.Is(err, profile.ErrInvalidSensitivity):
		return apperrors.CodeProfileInvalidSensitivity
	case errors.Is(err, scoring.ErrInvalidSample):
		return apperrors.CodeSampleOutOfRange
	case errors.Is(err, behavior.ErrUnknownCategory):
		return apperrors.CodeUnknownCategory
	case errors.Is(err, emotion.ErrUnknownState):
		return apperrors.CodeUnknownState
	case errors.Is(err, session.ErrActiveSession):
		return apperrors.CodeActiveSessionExists
	case errors.Is(err, session.ErrClosed):
		return apperrors.CodeSessionClosed
	case errors.Is(err, session.ErrNotFound),
		errors.Is(err, storage.ErrNotFound):
		return apperrors.CodeNotFound
	case errors.Is(err, storage.ErrAlreadyExists):
		return apperrors.CodeAlreadyExists
	default:
		return apperrors.CodeUnknown
	}
}

// decodeBody decodes a bounded JSON payload, rejecting unknown fields.
func decodeBody(w http.ResponseWriter, r *http.Request, target any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		return apperrors.Wrap(apperrors.CodeInvalidPayload, "decode request body", err)
	}
	return nil
}

func pathID(r *http.Request, name string) string {
	return strings.TrimSpace(r.PathValue(name))
}

// timeRange parses optional from/to query parameters, defaulting to the
// trailing 30 days.
func timeRange(r *http.Request, now time.Time) (time.Time, time.Time, error) {
	from := now.AddDate(0, 0, -30)
	to := now

	if raw := r.URL.Query().Get("from"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, time.Time{}, apperrors.Wrap(apperrors.CodeInvalidArgument, "parse from", err)
		}
		from = parsed
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, time.Time{}, apperrors.Wrap(apperrors.CodeInvalidArgument, "parse to", err)
		}
		to = parsed
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, apperrors.New(apperrors.CodeInvalidArgument, "to precedes from")
	}
	return from, to, nil
}
