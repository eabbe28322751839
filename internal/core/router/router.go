// Package router implements the service's HTTP surface: webhook submission
// and polling, coordinate-keyed landmark retrieval, and the error
// envelope/status-code mapping shared across both.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/baroni200/overpass-landmarks/internal/core/model"
	"github.com/baroni200/overpass-landmarks/internal/core/observability"
	"github.com/baroni200/overpass-landmarks/internal/retrieval"
)

// Submitter is the submission-coordinator surface the router depends on.
type Submitter interface {
	Submit(ctx context.Context, lat, lng float64) (model.SubmitResult, error)
}

// Retriever is the landmark-retrieval surface the router depends on.
type Retriever interface {
	GetById(ctx context.Context, id uuid.UUID) (model.Response, error)
	GetByCoordinates(ctx context.Context, lat, lng float64) (model.Response, error)
}

type Handler struct {
	log       *slog.Logger
	submitter Submitter
	retriever Retriever
}

func New(log *slog.Logger, submitter Submitter, retriever Retriever) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{log: log, submitter: submitter, retriever: retriever}
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

type errorEnvelope struct {
	Error       string            `json:"error"`
	Message     string            `json:"message"`
	FieldErrors map[string]string `json:"fieldErrors,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorEnvelope{Error: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Unauthorized renders the 401 error envelope with whatever reason
// middleware.Auth determined (missing header vs. invalid token).
func Unauthorized(w http.ResponseWriter, r *http.Request, reason string) {
	writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", reason)
}

type submitRequest struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type submitResponse struct {
	ID     uuid.UUID    `json:"id"`
	Status model.Status `json:"status"`
}

// PostWebhook handles POST /webhook.
func (h *Handler) PostWebhook(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
	defer func() { observability.ObserveHTTP(r.Method, "/webhook", sw.code, time.Since(start).Seconds()) }()

	var body submitRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(sw, http.StatusBadRequest, "VALIDATION_ERROR", "malformed JSON body")
		return
	}

	result, err := h.submitter.Submit(r.Context(), body.Lat, body.Lng)
	if err != nil {
		h.writeDomainError(sw, err)
		return
	}

	writeJSON(sw, http.StatusAccepted, submitResponse{ID: result.RequestID, Status: result.Status})
}

// GetWebhookByID handles GET /webhook/{id}.
func (h *Handler) GetWebhookByID(w http.ResponseWriter, r *http.Request, rawID string) {
	start := time.Now()
	sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
	defer func() { observability.ObserveHTTP(r.Method, "/webhook/{id}", sw.code, time.Since(start).Seconds()) }()

	id, err := uuid.Parse(rawID)
	if err != nil {
		writeError(sw, http.StatusBadRequest, "INVALID_PARAMETER", "id must be a UUID")
		return
	}

	resp, err := h.retriever.GetById(r.Context(), id)
	switch {
	case errors.Is(err, retrieval.ErrNotFound):
		writeError(sw, http.StatusNotFound, "INVALID_PARAMETER", "no such webhook request")
		return
	case errors.Is(err, retrieval.ErrNotReady):
		sw.Header().Set("Content-Type", "application/json")
		sw.WriteHeader(http.StatusAccepted)
		return
	case err != nil:
		h.writeDomainError(sw, err)
		return
	}

	writeJSON(sw, http.StatusOK, resp)
}

// GetLandmarks handles GET /landmarks?lat=&lng=.
func (h *Handler) GetLandmarks(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
	defer func() { observability.ObserveHTTP(r.Method, "/landmarks", sw.code, time.Since(start).Seconds()) }()

	latRaw := r.URL.Query().Get("lat")
	lngRaw := r.URL.Query().Get("lng")
	if latRaw == "" || lngRaw == "" {
		writeError(sw, http.StatusBadRequest, "VALIDATION_ERROR", "lat and lng are required query parameters")
		return
	}

	lat, err := strconv.ParseFloat(latRaw, 64)
	if err != nil {
		writeError(sw, http.StatusBadRequest, "VALIDATION_ERROR", "lat must be a number")
		return
	}
	lng, err := strconv.ParseFloat(lngRaw, 64)
	if err != nil {
		writeError(sw, http.StatusBadRequest, "VALIDATION_ERROR", "lng must be a number")
		return
	}

	resp, err := h.retriever.GetByCoordinates(r.Context(), lat, lng)
	if err != nil {
		h.writeDomainError(sw, err)
		return
	}
	writeJSON(sw, http.StatusOK, resp)
}

// writeDomainError maps model.ErrorKind to the wire error codes and HTTP
// statuses of the error envelope.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	var me *model.Error
	if !errors.As(err, &me) {
		h.log.Error("unmapped internal error", "err", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}

	switch me.Kind {
	case model.ErrInvalidInput:
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", me.Msg)
	case model.ErrAuthFailure:
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", me.Msg)
	case model.ErrExternal:
		writeError(w, http.StatusBadGateway, "OVERPASS_ERROR", me.Msg)
	case model.ErrQueue:
		writeError(w, http.StatusBadGateway, "WEBHOOK_PROCESSING_ERROR", me.Msg)
	case model.ErrStore, model.ErrInternal:
		fallthrough
	default:
		h.log.Error("internal error", "kind", me.Kind, "err", me)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}
