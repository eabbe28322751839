// Package coordinator implements the submission coordinator: canonicalization,
// PENDING coalescing, idempotent replay of live terminal records, and the
// expiration-driven refresh protocol, all guarded by the store's
// partial-unique index.
package coordinator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/baroni200/overpass-landmarks/internal/cache/hotcache"
	"github.com/baroni200/overpass-landmarks/internal/canon"
	"github.com/baroni200/overpass-landmarks/internal/core/model"
	"github.com/baroni200/overpass-landmarks/internal/core/observability"
	"github.com/baroni200/overpass-landmarks/internal/store"
)

// Enqueuer is the durable queue producer surface the coordinator depends on.
type Enqueuer interface {
	Enqueue(msg model.ProcessingMessage) error
}

type Coordinator struct {
	store           *store.Store
	cache           *hotcache.Cache
	queue           Enqueuer
	log             *slog.Logger
	radiusMeters    int
	cacheExpiration time.Duration
}

func New(st *store.Store, cache *hotcache.Cache, queue Enqueuer, log *slog.Logger, radiusMeters int, cacheExpiration time.Duration) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{
		store:           st,
		cache:           cache,
		queue:           queue,
		log:             log,
		radiusMeters:    radiusMeters,
		cacheExpiration: cacheExpiration,
	}
}

// Submit canonicalizes the coordinates, coalesces against any live request
// for the resulting key, and otherwise creates and enqueues a new one.
func (c *Coordinator) Submit(ctx context.Context, lat, lng float64) (model.SubmitResult, error) {
	key, err := canon.Canonicalize(lat, lng, c.radiusMeters)
	if err != nil {
		return model.SubmitResult{}, err
	}

	var result model.SubmitResult
	var created bool

	err = c.store.WithTx(ctx, func(tx *store.Tx) error {
		live, err := c.probe(ctx, tx, key)
		if err != nil {
			return err
		}

		if live != nil {
			switch {
			case live.Status == model.StatusPending:
				result = model.SubmitResult{RequestID: live.ID, Status: model.StatusPending}
				return nil
			case time.Since(live.CreatedAt) <= c.cacheExpiration:
				result = model.SubmitResult{RequestID: live.ID, Status: live.Status}
				return nil
			default:
				if err := c.expire(ctx, tx, *live, key); err != nil {
					return err
				}
			}
		}

		rec := model.RequestRecord{
			KeyLat: key.Lat,
			KeyLng: key.Lng,
			Radius: key.Radius,
			Status: model.StatusPending,
		}
		saved, err := tx.SaveRequest(ctx, rec)
		if err != nil {
			if errors.Is(err, store.ErrUniqueViolation) {
				winner, werr := tx.FindLiveRequestByKey(ctx, key.Lat, key.Lng, key.Radius)
				if werr != nil {
					return werr
				}
				if winner == nil {
					return err
				}
				result = model.SubmitResult{RequestID: winner.ID, Status: winner.Status}
				return nil
			}
			return err
		}

		created = true
		result = model.SubmitResult{RequestID: saved.ID, Status: model.StatusPending}
		c.cache.PutRequest(ctx, key, saved)
		return nil
	})
	if err != nil {
		return model.SubmitResult{}, err
	}
	if !created {
		observability.IncSubmission(string(result.Status))
		return result, nil
	}

	msg := model.ProcessingMessage{RequestID: result.RequestID, KeyLat: key.Lat, KeyLng: key.Lng, Radius: key.Radius}
	if err := c.queue.Enqueue(msg); err != nil {
		// Postgres and Kafka are not jointly transactional: compensate by
		// soft-deleting the PENDING row we just committed.
		if derr := c.store.SoftDeleteRequest(ctx, result.RequestID); derr != nil {
			c.log.Error("failed to roll back pending request after enqueue failure", "requestId", result.RequestID, "err", derr)
		}
		c.cache.InvalidateRequest(ctx, key)
		return model.SubmitResult{}, model.NewError(model.ErrQueue, "enqueue processing message", err)
	}

	observability.IncSubmission(string(result.Status))
	return result, nil
}

// probe implements step 2: cache read, falling back to the store and
// populating the cache on a store hit.
func (c *Coordinator) probe(ctx context.Context, tx *store.Tx, key model.CanonicalKey) (*model.RequestRecord, error) {
	if cached, ok := c.cache.GetRequest(ctx, key); ok {
		return &cached, nil
	}
	live, err := tx.FindLiveRequestByKey(ctx, key.Lat, key.Lng, key.Radius)
	if err != nil {
		return nil, err
	}
	if live != nil {
		c.cache.PutRequest(ctx, key, *live)
	}
	return live, nil
}

// expire soft-deletes R and its live landmarks and evicts both cache
// namespaces so a new PENDING record can be created for the same key.
func (c *Coordinator) expire(ctx context.Context, tx *store.Tx, live model.RequestRecord, key model.CanonicalKey) error {
	landmarks, err := tx.FindLandmarksByRequestId(ctx, live.ID)
	if err != nil {
		return err
	}
	for _, lm := range landmarks {
		if err := tx.SoftDeleteLandmark(ctx, lm.ID); err != nil {
			return err
		}
	}
	if err := tx.SoftDeleteRequest(ctx, live.ID); err != nil {
		return err
	}
	c.cache.InvalidateLandmarks(ctx, key)
	c.cache.InvalidateRequest(ctx, key)
	return nil
}
