package sweeper

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	"github.com/baroni200/overpass-landmarks/internal/core/model"
	"github.com/baroni200/overpass-landmarks/internal/store"
)

type fakeQueue struct {
	enqueued []model.ProcessingMessage
}

func (q *fakeQueue) Enqueue(msg model.ProcessingMessage) error {
	q.enqueued = append(q.enqueued, msg)
	return nil
}

func TestSweepOnceRequeuesStalledRequests(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	id := uuid.New()
	old := time.Now().UTC().Add(-time.Hour)
	rows := sqlmock.NewRows([]string{"id", "key_lat", "key_lng", "radius_m", "status", "error_message", "requested_at", "updated_at", "deleted_at"}).
		AddRow(id, 1.0, 2.0, 500, "PENDING", "", old, old, nil)
	mock.ExpectQuery("SELECT id, key_lat, key_lng, radius_m, status").WillReturnRows(rows)

	q := &fakeQueue{}
	s := New(store.New(db), q, nil, 5*time.Minute, time.Minute)

	if err := s.sweepOnce(context.Background()); err != nil {
		t.Fatalf("sweepOnce: %v", err)
	}
	if len(q.enqueued) != 1 || q.enqueued[0].RequestID != id {
		t.Fatalf("enqueued = %+v; want one message for %s", q.enqueued, id)
	}
}

func TestSweepOnceNoStalledRequests(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT id, key_lat, key_lng, radius_m, status").WillReturnRows(sqlmock.NewRows(
		[]string{"id", "key_lat", "key_lng", "radius_m", "status", "error_message", "requested_at", "updated_at", "deleted_at"}))

	q := &fakeQueue{}
	s := New(store.New(db), q, nil, 5*time.Minute, time.Minute)

	if err := s.sweepOnce(context.Background()); err != nil {
		t.Fatalf("sweepOnce: %v", err)
	}
	if len(q.enqueued) != 0 {
		t.Fatalf("enqueued = %d; want 0", len(q.enqueued))
	}
}
