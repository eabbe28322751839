package kafka

import (
	"strings"
	"time"
)

// Config holds the connection and consumer-group tuning for the durable
// queue adapter.
type Config struct {
	Brokers []string
	Topic   string
	GroupID string

	SessionTimeout   time.Duration
	Heartbeat        time.Duration
	RebalanceTimeout time.Duration
}

func NewConfig(brokers, topic, groupID string) Config {
	return Config{
		Brokers:          split(brokers),
		Topic:            topic,
		GroupID:          groupID,
		SessionTimeout:   30 * time.Second,
		Heartbeat:        3 * time.Second,
		RebalanceTimeout: 30 * time.Second,
	}
}

func split(s string) []string {
	var out []string
	for p := range strings.SplitSeq(s, ",") {
		if x := strings.TrimSpace(p); x != "" {
			out = append(out, x)
		}
	}
	return out
}
