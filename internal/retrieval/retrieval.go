// Package retrieval implements the two read paths client requests drive,
// both cache-first with a store fallback and a cache-fill write-through.
package retrieval

import (
	"context"
	"errors"

	"github.com/baroni200/overpass-landmarks/internal/cache/hotcache"
	"github.com/baroni200/overpass-landmarks/internal/canon"
	"github.com/baroni200/overpass-landmarks/internal/core/model"
	"github.com/baroni200/overpass-landmarks/internal/store"
	"github.com/google/uuid"
)

// ErrNotFound is returned by GetById when no request exists for the id.
var ErrNotFound = errors.New("request not found")

// ErrNotReady is returned by GetById while the request is still PENDING.
var ErrNotReady = errors.New("request not ready")

const (
	SourceCache = "cache"
	SourceDB    = "db"
	SourceNone  = "none"
)

type Service struct {
	store        *store.Store
	cache        *hotcache.Cache
	radiusMeters int
}

func New(st *store.Store, cache *hotcache.Cache, radiusMeters int) *Service {
	return &Service{store: st, cache: cache, radiusMeters: radiusMeters}
}

// GetById resolves a request by id: missing, not-yet-ready, or its response.
func (s *Service) GetById(ctx context.Context, id uuid.UUID) (model.Response, error) {
	r, err := s.store.FindRequestById(ctx, id)
	if err != nil {
		return model.Response{}, err
	}
	if r == nil {
		return model.Response{}, ErrNotFound
	}
	if r.Status == model.StatusPending {
		return model.Response{}, ErrNotReady
	}

	key := r.Key()
	if projections, ok := s.cache.GetLandmarks(ctx, key); ok {
		return responseFromProjections(key, r.Radius, "", projections), nil
	}

	landmarks, err := s.store.FindLandmarksByRequestId(ctx, r.ID)
	if err != nil {
		return model.Response{}, err
	}
	projections := projectAll(landmarks)
	s.cache.PutLandmarks(ctx, key, projections)
	return responseFromProjections(key, r.Radius, "", projections), nil
}

// GetByCoordinates resolves the landmarks for a coordinate pair's canonical
// key, discriminating the result source as cache, db, or none.
func (s *Service) GetByCoordinates(ctx context.Context, lat, lng float64) (model.Response, error) {
	key, err := canon.Canonicalize(lat, lng, s.radiusMeters)
	if err != nil {
		return model.Response{}, err
	}

	if projections, ok := s.cache.GetLandmarks(ctx, key); ok {
		return responseFromProjections(key, key.Radius, SourceCache, projections), nil
	}

	live, err := s.probe(ctx, key)
	if err != nil {
		return model.Response{}, err
	}
	if live == nil {
		return responseFromProjections(key, key.Radius, SourceNone, nil), nil
	}

	landmarks, err := s.store.FindLandmarksByRequestId(ctx, live.ID)
	if err != nil {
		return model.Response{}, err
	}
	projections := projectAll(landmarks)
	if len(projections) > 0 {
		s.cache.PutLandmarks(ctx, key, projections)
	}
	return responseFromProjections(key, key.Radius, SourceDB, projections), nil
}

func (s *Service) probe(ctx context.Context, key model.CanonicalKey) (*model.RequestRecord, error) {
	if cached, ok := s.cache.GetRequest(ctx, key); ok {
		return &cached, nil
	}
	live, err := s.store.FindLiveRequestByKey(ctx, key.Lat, key.Lng, key.Radius)
	if err != nil {
		return nil, err
	}
	if live != nil {
		s.cache.PutRequest(ctx, key, *live)
	}
	return live, nil
}

func projectAll(landmarks []model.LandmarkRecord) []model.LandmarkProjection {
	out := make([]model.LandmarkProjection, 0, len(landmarks))
	for _, l := range landmarks {
		out = append(out, model.ProjectLandmark(l))
	}
	return out
}

func responseFromProjections(key model.CanonicalKey, radius int, source string, projections []model.LandmarkProjection) model.Response {
	if projections == nil {
		projections = []model.LandmarkProjection{}
	}
	return model.Response{
		Key:       model.ResponseKey{Lat: key.Lat, Lng: key.Lng},
		Count:     len(projections),
		RadiusM:   radius,
		Source:    source,
		Landmarks: projections,
	}
}
