// Package store implements relational storage for RequestRecord and
// LandmarkRecord with soft-delete and partial-unique constraints.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/baroni200/overpass-landmarks/internal/core/model"
)

const maxErrorMessageLen = 1000

// ErrUniqueViolation is returned (wrapped) when an insert collides with the
// partial-unique index on live (key_lat, key_lng, radius_m).
var ErrUniqueViolation = errors.New("unique constraint violation")

// Queryable is satisfied by both *sql.DB and *sql.Tx, letting every read/
// write method below run either standalone or inside a transaction.
type Queryable interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// WithTx runs fn inside one transaction, the boundary the coordinator and
// worker need around their multi-step reads and writes. Commits on nil
// error, rolls back otherwise.
func (s *Store) WithTx(ctx context.Context, fn func(*Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.NewError(model.ErrStore, "begin transaction", err)
	}
	if err := fn(&Tx{tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return model.NewError(model.ErrStore, "commit transaction", err)
	}
	return nil
}

type Tx struct {
	tx *sql.Tx
}

func (s *Store) FindLiveRequestByKey(ctx context.Context, lat, lng float64, radius int) (*model.RequestRecord, error) {
	return findLiveRequestByKey(ctx, s.db, lat, lng, radius)
}
func (t *Tx) FindLiveRequestByKey(ctx context.Context, lat, lng float64, radius int) (*model.RequestRecord, error) {
	return findLiveRequestByKey(ctx, t.tx, lat, lng, radius)
}

func (s *Store) FindRequestById(ctx context.Context, id uuid.UUID) (*model.RequestRecord, error) {
	return findRequestById(ctx, s.db, id)
}
func (t *Tx) FindRequestById(ctx context.Context, id uuid.UUID) (*model.RequestRecord, error) {
	return findRequestById(ctx, t.tx, id)
}

func (s *Store) SaveRequest(ctx context.Context, r model.RequestRecord) (model.RequestRecord, error) {
	return saveRequest(ctx, s.db, r)
}
func (t *Tx) SaveRequest(ctx context.Context, r model.RequestRecord) (model.RequestRecord, error) {
	return saveRequest(ctx, t.tx, r)
}

func (s *Store) SoftDeleteRequest(ctx context.Context, id uuid.UUID) error {
	return softDeleteRequest(ctx, s.db, id)
}
func (t *Tx) SoftDeleteRequest(ctx context.Context, id uuid.UUID) error {
	return softDeleteRequest(ctx, t.tx, id)
}

func (s *Store) FindLandmarksByRequestId(ctx context.Context, requestId uuid.UUID) ([]model.LandmarkRecord, error) {
	return findLandmarksByRequestId(ctx, s.db, requestId)
}
func (t *Tx) FindLandmarksByRequestId(ctx context.Context, requestId uuid.UUID) ([]model.LandmarkRecord, error) {
	return findLandmarksByRequestId(ctx, t.tx, requestId)
}

func (s *Store) FindLiveLandmarkByOsm(ctx context.Context, osmType model.OSMType, osmId int64) (*model.LandmarkRecord, error) {
	return findLiveLandmarkByOsm(ctx, s.db, osmType, osmId)
}
func (t *Tx) FindLiveLandmarkByOsm(ctx context.Context, osmType model.OSMType, osmId int64) (*model.LandmarkRecord, error) {
	return findLiveLandmarkByOsm(ctx, t.tx, osmType, osmId)
}

func (s *Store) SaveLandmark(ctx context.Context, l model.LandmarkRecord) (model.LandmarkRecord, error) {
	return saveLandmark(ctx, s.db, l)
}
func (t *Tx) SaveLandmark(ctx context.Context, l model.LandmarkRecord) (model.LandmarkRecord, error) {
	return saveLandmark(ctx, t.tx, l)
}

func (s *Store) SoftDeleteLandmark(ctx context.Context, id uuid.UUID) error {
	return softDeleteLandmark(ctx, s.db, id)
}
func (t *Tx) SoftDeleteLandmark(ctx context.Context, id uuid.UUID) error {
	return softDeleteLandmark(ctx, t.tx, id)
}

// FindStalledPendingRequests returns live PENDING requests whose
// requested_at is older than now-threshold, for the sweeper's periodic
// requeue pass.
func (s *Store) FindStalledPendingRequests(ctx context.Context, threshold time.Duration) ([]model.RequestRecord, error) {
	const query = `
		SELECT id, key_lat, key_lng, radius_m, status, COALESCE(error_message, ''), requested_at, updated_at, deleted_at
		FROM request_record
		WHERE status = 'PENDING' AND deleted_at IS NULL AND requested_at < $1`
	cutoff := time.Now().UTC().Add(-threshold)
	rows, err := s.db.QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, model.NewError(model.ErrStore, "query stalled request_record", err)
	}
	defer rows.Close()

	var out []model.RequestRecord
	for rows.Next() {
		var r model.RequestRecord
		var deletedAt sql.NullTime
		if err := rows.Scan(&r.ID, &r.KeyLat, &r.KeyLng, &r.Radius, &r.Status, &r.ErrorMessage, &r.CreatedAt, &r.UpdatedAt, &deletedAt); err != nil {
			return nil, model.NewError(model.ErrStore, "scan stalled request_record", err)
		}
		if deletedAt.Valid {
			r.DeletedAt = &deletedAt.Time
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, model.NewError(model.ErrStore, "iterate stalled request_record", err)
	}
	return out, nil
}

func (s *Store) LinkRequestLandmark(ctx context.Context, requestId, landmarkId uuid.UUID) error {
	return linkRequestLandmark(ctx, s.db, requestId, landmarkId)
}
func (t *Tx) LinkRequestLandmark(ctx context.Context, requestId, landmarkId uuid.UUID) error {
	return linkRequestLandmark(ctx, t.tx, requestId, landmarkId)
}

func findLiveRequestByKey(ctx context.Context, q Queryable, lat, lng float64, radius int) (*model.RequestRecord, error) {
	const query = `
		SELECT id, key_lat, key_lng, radius_m, status, COALESCE(error_message, ''), requested_at, updated_at, deleted_at
		FROM request_record
		WHERE key_lat = $1 AND key_lng = $2 AND radius_m = $3 AND deleted_at IS NULL`
	row := q.QueryRowContext(ctx, query, lat, lng, radius)
	return scanRequest(row)
}

func findRequestById(ctx context.Context, q Queryable, id uuid.UUID) (*model.RequestRecord, error) {
	const query = `
		SELECT id, key_lat, key_lng, radius_m, status, COALESCE(error_message, ''), requested_at, updated_at, deleted_at
		FROM request_record
		WHERE id = $1 AND deleted_at IS NULL`
	row := q.QueryRowContext(ctx, query, id)
	return scanRequest(row)
}

func scanRequest(row *sql.Row) (*model.RequestRecord, error) {
	var r model.RequestRecord
	var deletedAt sql.NullTime
	err := row.Scan(&r.ID, &r.KeyLat, &r.KeyLng, &r.Radius, &r.Status, &r.ErrorMessage, &r.CreatedAt, &r.UpdatedAt, &deletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, model.NewError(model.ErrStore, "scan request_record", err)
	}
	if deletedAt.Valid {
		r.DeletedAt = &deletedAt.Time
	}
	return &r, nil
}

func saveRequest(ctx context.Context, q Queryable, r model.RequestRecord) (model.RequestRecord, error) {
	if len(r.ErrorMessage) > maxErrorMessageLen {
		r.ErrorMessage = r.ErrorMessage[:maxErrorMessageLen]
	}
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now

	const query = `
		INSERT INTO request_record (id, key_lat, key_lng, radius_m, status, error_message, requested_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			error_message = EXCLUDED.error_message,
			updated_at = EXCLUDED.updated_at`
	_, err := q.ExecContext(ctx, query, r.ID, r.KeyLat, r.KeyLng, r.Radius, r.Status, r.ErrorMessage, r.CreatedAt, r.UpdatedAt)
	if isUniqueViolation(err) {
		return model.RequestRecord{}, fmt.Errorf("%w: live request already exists for this key", ErrUniqueViolation)
	}
	if err != nil {
		return model.RequestRecord{}, model.NewError(model.ErrStore, "save request_record", err)
	}
	return r, nil
}

func softDeleteRequest(ctx context.Context, q Queryable, id uuid.UUID) error {
	const query = `UPDATE request_record SET deleted_at = now() WHERE id = $1 AND deleted_at IS NULL`
	if _, err := q.ExecContext(ctx, query, id); err != nil {
		return model.NewError(model.ErrStore, "soft delete request_record", err)
	}
	return nil
}

func findLandmarksByRequestId(ctx context.Context, q Queryable, requestId uuid.UUID) ([]model.LandmarkRecord, error) {
	const query = `
		SELECT l.id, l.osm_type, l.osm_id, COALESCE(l.name, ''), l.lat, l.lng, l.tags, l.created_at, l.deleted_at
		FROM landmark_record l
		JOIN request_landmark rl ON rl.landmark_id = l.id
		WHERE rl.request_id = $1 AND l.deleted_at IS NULL
		ORDER BY l.created_at ASC`
	rows, err := q.QueryContext(ctx, query, requestId)
	if err != nil {
		return nil, model.NewError(model.ErrStore, "query landmark_record", err)
	}
	defer rows.Close()

	var out []model.LandmarkRecord
	for rows.Next() {
		l, err := scanLandmarkRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, model.NewError(model.ErrStore, "iterate landmark_record", err)
	}
	return out, nil
}

func findLiveLandmarkByOsm(ctx context.Context, q Queryable, osmType model.OSMType, osmId int64) (*model.LandmarkRecord, error) {
	const query = `
		SELECT id, osm_type, osm_id, COALESCE(name, ''), lat, lng, tags, created_at, deleted_at
		FROM landmark_record
		WHERE osm_type = $1 AND osm_id = $2 AND deleted_at IS NULL`
	row := q.QueryRowContext(ctx, query, osmType, osmId)
	l, err := scanLandmarkRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanLandmarkRow(row rowScanner) (model.LandmarkRecord, error) {
	var l model.LandmarkRecord
	var tagsRaw []byte
	var deletedAt sql.NullTime
	err := row.Scan(&l.ID, &l.OSMType, &l.OSMID, &l.Name, &l.Lat, &l.Lng, &tagsRaw, &l.CreatedAt, &deletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.LandmarkRecord{}, sql.ErrNoRows
	}
	if err != nil {
		return model.LandmarkRecord{}, model.NewError(model.ErrStore, "scan landmark_record", err)
	}
	l.Tags = decodeTags(tagsRaw)
	if deletedAt.Valid {
		l.DeletedAt = &deletedAt.Time
	}
	return l, nil
}

func saveLandmark(ctx context.Context, q Queryable, l model.LandmarkRecord) (model.LandmarkRecord, error) {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	tagsRaw := encodeTags(l.Tags)

	const query = `
		INSERT INTO landmark_record (id, osm_type, osm_id, name, lat, lng, tags, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8)
		ON CONFLICT (osm_type, osm_id) WHERE deleted_at IS NULL DO NOTHING`
	_, err := q.ExecContext(ctx, query, l.ID, l.OSMType, l.OSMID, l.Name, l.Lat, l.Lng, tagsRaw, l.CreatedAt)
	if err != nil {
		return model.LandmarkRecord{}, model.NewError(model.ErrStore, "save landmark_record", err)
	}
	return l, nil
}

func softDeleteLandmark(ctx context.Context, q Queryable, id uuid.UUID) error {
	const query = `UPDATE landmark_record SET deleted_at = now() WHERE id = $1 AND deleted_at IS NULL`
	if _, err := q.ExecContext(ctx, query, id); err != nil {
		return model.NewError(model.ErrStore, "soft delete landmark_record", err)
	}
	return nil
}

func linkRequestLandmark(ctx context.Context, q Queryable, requestId, landmarkId uuid.UUID) error {
	const query = `
		INSERT INTO request_landmark (request_id, landmark_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`
	if _, err := q.ExecContext(ctx, query, requestId, landmarkId); err != nil {
		return model.NewError(model.ErrStore, "link request_landmark", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
