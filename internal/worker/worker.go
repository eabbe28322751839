// Package worker implements the per-message algorithm that resolves a
// PENDING RequestRecord to FOUND, EMPTY, or ERROR, consulting the hot
// cache and store before ever calling the external fetcher.
package worker

import (
	"context"
	"log/slog"

	"github.com/baroni200/overpass-landmarks/internal/cache/hotcache"
	"github.com/baroni200/overpass-landmarks/internal/core/model"
	"github.com/baroni200/overpass-landmarks/internal/overpass"
	"github.com/baroni200/overpass-landmarks/internal/store"
)

// Fetcher is the external landmark-lookup surface the worker depends on.
type Fetcher interface {
	Fetch(ctx context.Context, lat, lng float64, radiusMeters int) ([]overpass.FetchedLandmark, error)
}

type Worker struct {
	store   *store.Store
	cache   *hotcache.Cache
	fetcher Fetcher
	log     *slog.Logger
}

func New(st *store.Store, cache *hotcache.Cache, fetcher Fetcher, log *slog.Logger) *Worker {
	if log == nil {
		log = slog.Default()
	}
	return &Worker{store: st, cache: cache, fetcher: fetcher, log: log}
}

// Process resolves one ProcessingMessage to a terminal status. A nil return
// means the caller should acknowledge the message; a non-nil return means
// it must not be acknowledged (an upstream fetch error is recorded as ERROR
// and acknowledged; a store failure withholds the ack for redelivery).
func (w *Worker) Process(ctx context.Context, msg model.ProcessingMessage) error {
	r, err := w.store.FindRequestById(ctx, msg.RequestID)
	if err != nil {
		return err
	}
	if r == nil {
		return nil // step 1: no such request, acknowledge and drop
	}
	if r.Status != model.StatusPending {
		return nil // step 2: duplicate delivery after prior completion
	}

	key := r.Key()

	if done, err := w.landmarksCacheShortcut(ctx, *r, key); err != nil {
		w.markErrorBestEffort(ctx, *r, err)
		return err
	} else if done {
		return nil
	}

	if done, err := w.dbShortcut(ctx, *r, key); err != nil {
		w.markErrorBestEffort(ctx, *r, err)
		return err
	} else if done {
		return nil
	}

	return w.externalFetch(ctx, *r, key)
}

// landmarksCacheShortcut is step 4.
func (w *Worker) landmarksCacheShortcut(ctx context.Context, r model.RequestRecord, key model.CanonicalKey) (bool, error) {
	if _, ok := w.cache.GetLandmarks(ctx, key); !ok {
		return false, nil
	}
	landmarks, err := w.store.FindLandmarksByRequestId(ctx, r.ID)
	if err != nil {
		return false, err
	}
	if len(landmarks) == 0 {
		return false, nil
	}
	r.Status = model.StatusFound
	saved, err := w.store.SaveRequest(ctx, r)
	if err != nil {
		return false, err
	}
	w.cache.PutRequest(ctx, key, saved)
	return true, nil
}

// dbShortcut is step 5: protects against cache-missed but DB-warm data.
// MUST NOT call the external service.
func (w *Worker) dbShortcut(ctx context.Context, r model.RequestRecord, key model.CanonicalKey) (bool, error) {
	other, err := w.store.FindLiveRequestByKey(ctx, key.Lat, key.Lng, key.Radius)
	if err != nil {
		return false, err
	}
	if other == nil || other.ID == r.ID || other.Status == model.StatusPending {
		return false, nil
	}

	landmarks, err := w.store.FindLandmarksByRequestId(ctx, other.ID)
	if err != nil {
		return false, err
	}
	if len(landmarks) == 0 {
		return false, nil
	}

	projections := make([]model.LandmarkProjection, 0, len(landmarks))
	for _, l := range landmarks {
		projections = append(projections, model.ProjectLandmark(l))
	}
	w.cache.PutLandmarks(ctx, key, projections)

	r.Status = model.StatusFound
	saved, err := w.store.SaveRequest(ctx, r)
	if err != nil {
		return false, err
	}
	w.cache.PutRequest(ctx, key, saved)
	return true, nil
}

// externalFetch is steps 6-7: call the upstream fetcher, persist results,
// and resolve the request's terminal status.
func (w *Worker) externalFetch(ctx context.Context, r model.RequestRecord, key model.CanonicalKey) error {
	fetched, err := w.fetcher.Fetch(ctx, key.Lat, key.Lng, key.Radius)
	if err != nil {
		r.Status = model.StatusError
		r.ErrorMessage = err.Error()
		saved, saveErr := w.store.SaveRequest(ctx, r)
		if saveErr != nil {
			return saveErr
		}
		w.cache.PutRequest(ctx, key, saved)
		return nil // step 7: acknowledge, do not loop-retry on upstream errors
	}

	var persisted []model.LandmarkRecord
	err = w.store.WithTx(ctx, func(tx *store.Tx) error {
		for _, f := range fetched {
			existing, err := tx.FindLiveLandmarkByOsm(ctx, f.OSMType, f.OSMID)
			if err != nil {
				return err
			}
			var l model.LandmarkRecord
			if existing != nil {
				l = *existing
			} else {
				saved, err := tx.SaveLandmark(ctx, model.LandmarkRecord{
					OSMType: f.OSMType, OSMID: f.OSMID, Name: f.Name, Lat: f.Lat, Lng: f.Lng, Tags: f.Tags,
				})
				if err != nil {
					return err
				}
				l = saved
			}
			if err := tx.LinkRequestLandmark(ctx, r.ID, l.ID); err != nil {
				return err
			}
			persisted = append(persisted, l)
		}

		if len(persisted) > 0 {
			r.Status = model.StatusFound
		} else {
			r.Status = model.StatusEmpty
		}
		saved, err := tx.SaveRequest(ctx, r)
		if err != nil {
			return err
		}
		r = saved
		return nil
	})
	if err != nil {
		w.markErrorBestEffort(ctx, r, err)
		return err // step 8: store failure, withhold ack for redelivery
	}

	projections := make([]model.LandmarkProjection, 0, len(persisted))
	for _, l := range persisted {
		projections = append(projections, model.ProjectLandmark(l))
	}
	w.cache.PutLandmarks(ctx, key, projections)
	w.cache.PutRequest(ctx, key, r)
	return nil
}

// markErrorBestEffort is step 8's best-effort ERROR marking; its own
// failure is logged and swallowed so the original error still drives
// whether the message is acknowledged.
func (w *Worker) markErrorBestEffort(ctx context.Context, r model.RequestRecord, cause error) {
	r.Status = model.StatusError
	r.ErrorMessage = cause.Error()
	saved, err := w.store.SaveRequest(ctx, r)
	if err != nil {
		w.log.Error("best-effort error marking failed", "requestId", r.ID, "err", err)
		return
	}
	w.cache.PutRequest(ctx, r.Key(), saved)
}
