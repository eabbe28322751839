package router

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/baroni200/overpass-landmarks/internal/core/model"
	"github.com/baroni200/overpass-landmarks/internal/retrieval"
)

type fakeSubmitter struct {
	result model.SubmitResult
	err    error
}

func (f *fakeSubmitter) Submit(ctx context.Context, lat, lng float64) (model.SubmitResult, error) {
	return f.result, f.err
}

type fakeRetriever struct {
	byID    model.Response
	byIDErr error

	byCoords    model.Response
	byCoordsErr error
}

func (f *fakeRetriever) GetById(ctx context.Context, id uuid.UUID) (model.Response, error) {
	return f.byID, f.byIDErr
}

func (f *fakeRetriever) GetByCoordinates(ctx context.Context, lat, lng float64) (model.Response, error) {
	return f.byCoords, f.byCoordsErr
}

func newTestHandler(sub *fakeSubmitter, ret *fakeRetriever) *Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(logger, sub, ret)
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("decode body %q: %v", rr.Body.String(), err)
	}
}

// TestPostWebhookAccepted covers the submission half of S1: a fresh
// submission is accepted with 202 and the id/status pair. The polling half
// (200 with no undocumented fields) is TestGetWebhookByIDFound.
func TestPostWebhookAccepted(t *testing.T) {
	id := uuid.New()
	sub := &fakeSubmitter{result: model.SubmitResult{RequestID: id, Status: model.StatusPending}}
	h := newTestHandler(sub, &fakeRetriever{})

	body, _ := json.Marshal(submitRequest{Lat: 48.8584, Lng: 2.2945})
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	h.PostWebhook(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rr.Code)
	}
	var got submitResponse
	decodeBody(t, rr, &got)
	if got.ID != id || got.Status != model.StatusPending {
		t.Fatalf("got %+v", got)
	}
}

func TestGetWebhookByIDFound(t *testing.T) {
	id := uuid.New()
	resp := model.Response{
		Key:       model.ResponseKey{Lat: 48.8584, Lng: 2.2945},
		Count:     1,
		RadiusM:   500,
		Landmarks: []model.LandmarkProjection{{ID: uuid.New(), Name: "Eiffel Tower", OSMType: model.OSMWay, OSMID: 1}},
	}
	h := newTestHandler(&fakeSubmitter{}, &fakeRetriever{byID: resp})

	req := httptest.NewRequest(http.MethodGet, "/webhook/"+id.String(), nil)
	rr := httptest.NewRecorder()
	h.GetWebhookByID(rr, req, id.String())

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}

	var raw map[string]any
	decodeBody(t, rr, &raw)
	if _, ok := raw["status"]; ok {
		t.Fatalf("response body must not carry a status field: %v", raw)
	}
	if _, ok := raw["key"]; !ok {
		t.Fatalf("response body missing key: %v", raw)
	}
}

// TestGetWebhookByIDPending covers the PENDING poll: 202 with an empty body.
func TestGetWebhookByIDPending(t *testing.T) {
	h := newTestHandler(&fakeSubmitter{}, &fakeRetriever{byIDErr: retrieval.ErrNotReady})

	req := httptest.NewRequest(http.MethodGet, "/webhook/"+uuid.New().String(), nil)
	rr := httptest.NewRecorder()
	h.GetWebhookByID(rr, req, uuid.New().String())

	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rr.Code)
	}
	if rr.Body.Len() != 0 {
		t.Fatalf("expected empty body while PENDING, got %q", rr.Body.String())
	}
}

func TestGetWebhookByIDNotFound(t *testing.T) {
	h := newTestHandler(&fakeSubmitter{}, &fakeRetriever{byIDErr: retrieval.ErrNotFound})

	req := httptest.NewRequest(http.MethodGet, "/webhook/"+uuid.New().String(), nil)
	rr := httptest.NewRecorder()
	h.GetWebhookByID(rr, req, uuid.New().String())

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}

func TestGetWebhookByIDMalformedID(t *testing.T) {
	h := newTestHandler(&fakeSubmitter{}, &fakeRetriever{})

	req := httptest.NewRequest(http.MethodGet, "/webhook/not-a-uuid", nil)
	rr := httptest.NewRecorder()
	h.GetWebhookByID(rr, req, "not-a-uuid")

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

// TestPostWebhookMalformedBody covers S6: invalid request bodies are
// rejected with a VALIDATION_ERROR envelope.
func TestPostWebhookMalformedBody(t *testing.T) {
	h := newTestHandler(&fakeSubmitter{}, &fakeRetriever{})

	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader([]byte("not json")))
	rr := httptest.NewRecorder()
	h.PostWebhook(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
	var env errorEnvelope
	decodeBody(t, rr, &env)
	if env.Error != "VALIDATION_ERROR" {
		t.Fatalf("error code = %q, want VALIDATION_ERROR", env.Error)
	}
}

func TestPostWebhookInvalidCoordinates(t *testing.T) {
	sub := &fakeSubmitter{err: model.NewError(model.ErrInvalidInput, "lat must be between -90 and 90", nil)}
	h := newTestHandler(sub, &fakeRetriever{})

	body, _ := json.Marshal(submitRequest{Lat: 200, Lng: 0})
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	h.PostWebhook(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
	var env errorEnvelope
	decodeBody(t, rr, &env)
	if env.Error != "VALIDATION_ERROR" {
		t.Fatalf("error code = %q, want VALIDATION_ERROR", env.Error)
	}
}

func TestGetLandmarksMissingParams(t *testing.T) {
	h := newTestHandler(&fakeSubmitter{}, &fakeRetriever{})

	req := httptest.NewRequest(http.MethodGet, "/landmarks", nil)
	rr := httptest.NewRecorder()
	h.GetLandmarks(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestGetLandmarksOK(t *testing.T) {
	resp := model.Response{
		Key:       model.ResponseKey{Lat: 1, Lng: 1},
		Count:     0,
		RadiusM:   500,
		Source:    retrieval.SourceNone,
		Landmarks: []model.LandmarkProjection{},
	}
	h := newTestHandler(&fakeSubmitter{}, &fakeRetriever{byCoords: resp})

	req := httptest.NewRequest(http.MethodGet, "/landmarks?lat=1&lng=1", nil)
	rr := httptest.NewRecorder()
	h.GetLandmarks(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
}

// TestUnauthorized covers S5: the two distinct 401 reasons are rendered
// verbatim as the error envelope message.
func TestUnauthorized(t *testing.T) {
	cases := []string{
		"Missing or invalid Authorization header",
		"Invalid token",
	}
	for _, reason := range cases {
		req := httptest.NewRequest(http.MethodPost, "/webhook", nil)
		rr := httptest.NewRecorder()
		Unauthorized(rr, req, reason)

		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", rr.Code)
		}
		var env errorEnvelope
		decodeBody(t, rr, &env)
		if env.Error != "UNAUTHORIZED" || env.Message != reason {
			t.Fatalf("got %+v, want message %q", env, reason)
		}
	}
}
