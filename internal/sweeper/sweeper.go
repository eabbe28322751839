// Package sweeper guards against a PENDING RequestRecord that was created
// but whose ProcessingMessage was lost or whose worker crashed before
// acknowledging: it periodically re-enqueues PENDING records older than a
// configured threshold.
package sweeper

import (
	"context"
	"log/slog"
	"time"

	"github.com/baroni200/overpass-landmarks/internal/core/model"
	"github.com/baroni200/overpass-landmarks/internal/core/observability"
	"github.com/baroni200/overpass-landmarks/internal/store"
)

// Enqueuer is the durable queue producer surface the sweeper depends on.
type Enqueuer interface {
	Enqueue(msg model.ProcessingMessage) error
}

// Sweeper periodically re-enqueues stalled PENDING requests. Grounded on
// the same retry-loop shape the Kafka consumer uses for its Consume retry.
type Sweeper struct {
	store     *store.Store
	queue     Enqueuer
	log       *slog.Logger
	threshold time.Duration
	interval  time.Duration
}

func New(st *store.Store, queue Enqueuer, log *slog.Logger, threshold, interval time.Duration) *Sweeper {
	if log == nil {
		log = slog.Default()
	}
	return &Sweeper{store: st, queue: queue, log: log, threshold: threshold, interval: interval}
}

// Run ticks until ctx is canceled, sweeping stalled PENDING records once
// per tick.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.sweepOnce(ctx); err != nil {
				s.log.Error("sweep pass failed", "err", err)
			}
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) error {
	stalled, err := s.store.FindStalledPendingRequests(ctx, s.threshold)
	if err != nil {
		return err
	}
	for _, r := range stalled {
		msg := model.ProcessingMessage{RequestID: r.ID, KeyLat: r.KeyLat, KeyLng: r.KeyLng, Radius: r.Radius}
		if err := s.queue.Enqueue(msg); err != nil {
			s.log.Warn("sweeper failed to re-enqueue stalled request", "requestId", r.ID, "err", err)
			continue
		}
		observability.IncSweeperRequeued()
	}
	return nil
}
