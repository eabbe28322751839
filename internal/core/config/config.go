package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Addr        string
	LogLevel    string
	MetricsAddr string

	OverpassURL string

	RedisAddr string

	KafkaBrokers  string
	QueueTopic    string
	ConsumerGroup string

	PostgresDSN string

	QueryRadiusMeters int

	CacheExpiration time.Duration
	CacheTTL        time.Duration
	CacheMaxEntries int

	ExternalTimeout          time.Duration
	ExternalTransportRetries int

	WorkerConcurrency int

	WebhookSecret string

	PendingSweepThreshold time.Duration
	PendingSweepInterval  time.Duration
}

func FromEnv() Config {
	return Config{
		Addr:        getenv("ADDR", ":8090"),
		LogLevel:    getenv("LOG_LEVEL", "info"),
		MetricsAddr: getenv("METRICS_ADDR", ":9090"),

		OverpassURL: getenv("OVERPASS_URL", "https://overpass-api.de/api/interpreter"),

		RedisAddr: getenv("REDIS_ADDR", "localhost:6379"),

		KafkaBrokers:  getenv("KAFKA_BROKERS", "localhost:9092"),
		QueueTopic:    getenv("QUEUE_TOPIC", "webhook-processing"),
		ConsumerGroup: getenv("CONSUMER_GROUP", "webhook-processor-group"),

		PostgresDSN: getenv("POSTGRES_DSN", "postgres://localhost:5432/overpass_landmarks?sslmode=disable"),

		QueryRadiusMeters: getint("QUERY_RADIUS_METERS", 500),

		CacheExpiration: getduration("CACHE_EXPIRATION", 60*24*time.Hour),
		CacheTTL:        getduration("CACHE_TTL_SECONDS", 600*time.Second),
		CacheMaxEntries: getint("CACHE_MAX_ENTRIES", 10000),

		ExternalTimeout:          getduration("EXTERNAL_TIMEOUT_SECONDS", 30*time.Second),
		ExternalTransportRetries: getint("EXTERNAL_TRANSPORT_RETRIES", 2),

		WorkerConcurrency: getint("WORKER_CONCURRENCY", 3),

		WebhookSecret: getenv("WEBHOOK_SECRET", ""),

		PendingSweepThreshold: getduration("PENDING_SWEEP_THRESHOLD", 5*time.Minute),
		PendingSweepInterval:  getduration("PENDING_SWEEP_INTERVAL", time.Minute),
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
