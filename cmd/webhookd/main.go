// Command webhookd runs the webhook submission/retrieval HTTP front tier,
// the processing worker pool, and the pending-request sweeper in one
// process.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/baroni200/overpass-landmarks/internal/cache/hotcache"
	"github.com/baroni200/overpass-landmarks/internal/cache/redisstore"
	"github.com/baroni200/overpass-landmarks/internal/core/config"
	"github.com/baroni200/overpass-landmarks/internal/core/httpclient"
	"github.com/baroni200/overpass-landmarks/internal/core/model"
	"github.com/baroni200/overpass-landmarks/internal/core/observability"
	"github.com/baroni200/overpass-landmarks/internal/core/router"
	"github.com/baroni200/overpass-landmarks/internal/core/server"
	"github.com/baroni200/overpass-landmarks/internal/coordinator"
	"github.com/baroni200/overpass-landmarks/internal/logger"
	"github.com/baroni200/overpass-landmarks/internal/overpass"
	"github.com/baroni200/overpass-landmarks/internal/queue/kafka"
	"github.com/baroni200/overpass-landmarks/internal/retrieval"
	"github.com/baroni200/overpass-landmarks/internal/store"
	"github.com/baroni200/overpass-landmarks/internal/sweeper"
	"github.com/baroni200/overpass-landmarks/internal/worker"
)

func main() {
	cfg := config.FromEnv()

	zl := logger.Build(logger.Config{Level: cfg.LogLevel, Component: "webhookd"}, os.Stdout)
	log := logger.NewSlog(&zl)

	if cfg.WebhookSecret == "" {
		log.Warn("webhookSecret is unset; POST /webhook will accept unauthenticated requests")
	}

	db, err := store.Open(cfg.PostgresDSN)
	if err != nil {
		log.Error("open postgres", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := store.InitializeSchema(db); err != nil {
		log.Error("initialize schema", "err", err)
		os.Exit(1)
	}
	st := store.New(db)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient, err := redisstore.New(ctx, cfg.RedisAddr)
	if err != nil {
		log.Error("connect redis", "err", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	cache := hotcache.New(redisClient, cfg.CacheTTL, cfg.CacheMaxEntries, log)

	observability.Init(prometheus.DefaultRegisterer, true)

	producer, err := kafka.NewProducer(kafka.NewConfig(cfg.KafkaBrokers, cfg.QueueTopic, cfg.ConsumerGroup))
	if err != nil {
		log.Error("create kafka producer", "err", err)
		os.Exit(1)
	}
	defer producer.Close()

	overpassClient := overpass.New(httpclient.NewOutbound(), cfg.OverpassURL, cfg.ExternalTimeout, cfg.ExternalTransportRetries)

	coord := coordinator.New(st, cache, producer, log, cfg.QueryRadiusMeters, cfg.CacheExpiration)
	retr := retrieval.New(st, cache, cfg.QueryRadiusMeters)
	w := worker.New(st, cache, overpassClient, log)

	consumers := make([]*kafka.Consumer, 0, cfg.WorkerConcurrency)
	for i := 0; i < cfg.WorkerConcurrency; i++ {
		consumer := kafka.NewConsumer(kafka.NewConfig(cfg.KafkaBrokers, cfg.QueueTopic, cfg.ConsumerGroup), handlerFor(w), log)
		if err := consumer.Start(ctx); err != nil {
			log.Error("start kafka consumer", "err", err)
			os.Exit(1)
		}
		defer consumer.Stop()
		consumers = append(consumers, consumer)
	}

	sw := sweeper.New(st, producer, log, cfg.PendingSweepThreshold, cfg.PendingSweepInterval)
	go sw.Run(ctx)

	handler := router.New(log, coord, retr)

	if err := server.Run(ctx, cfg, log, handler, firstConsumer(consumers)); err != nil {
		log.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func handlerFor(w *worker.Worker) kafka.Handler {
	return func(ctx context.Context, msg model.ProcessingMessage) error {
		return w.Process(ctx, msg)
	}
}

// firstConsumer reports readiness from the first consumer in the pool only;
// the assignments of the other consumers are not consulted.
func firstConsumer(consumers []*kafka.Consumer) *kafka.Consumer {
	if len(consumers) == 0 {
		return nil
	}
	return consumers[0]
}
