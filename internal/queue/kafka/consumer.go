package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"

	"github.com/baroni200/overpass-landmarks/internal/core/model"
	"github.com/baroni200/overpass-landmarks/internal/core/observability"
)

// Handler processes one ProcessingMessage. A nil error marks the message
// for acknowledgement; a non-nil error leaves it unacknowledged so the
// queue redelivers it (bounded by the broker's retention).
type Handler func(ctx context.Context, msg model.ProcessingMessage) error

// Consumer wraps a sarama consumer group with manual offset marking, only
// performed after the handler acknowledges.
type Consumer struct {
	log     *slog.Logger
	cfg     Config
	handler Handler

	assigned atomic.Bool
	assignMu sync.RWMutex
	assign   map[int32]struct{}

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func NewConsumer(cfg Config, handler Handler, log *slog.Logger) *Consumer {
	if log == nil {
		log = slog.Default()
	}
	return &Consumer{
		log:     log,
		cfg:     cfg,
		handler: handler,
		assign:  map[int32]struct{}{},
	}
}

func (c *Consumer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	sc := sarama.NewConfig()
	sc.Version = sarama.V2_5_0_0
	sc.Consumer.Group.Session.Timeout = c.cfg.SessionTimeout
	sc.Consumer.Group.Heartbeat.Interval = c.cfg.Heartbeat
	sc.Consumer.Group.Rebalance.Timeout = c.cfg.RebalanceTimeout
	sc.Consumer.Offsets.Initial = sarama.OffsetOldest
	sc.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(c.cfg.Brokers, c.cfg.GroupID, sc)
	if err != nil {
		return fmt.Errorf("consumer group: %w", err)
	}

	h := &groupHandler{
		setup: func(sess sarama.ConsumerGroupSession) {
			claims := sess.Claims()
			c.assignMu.Lock()
			c.assigned.Store(true)
			c.assign = map[int32]struct{}{}
			for _, parts := range claims {
				for _, p := range parts {
					c.assign[p] = struct{}{}
				}
			}
			c.assignMu.Unlock()
		},
		cleanup: func(sarama.ConsumerGroupSession) {
			c.assignMu.Lock()
			c.assigned.Store(false)
			c.assign = map[int32]struct{}{}
			c.assignMu.Unlock()
		},
		process: c.processMessage,
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() {
			if err := group.Close(); err != nil {
				c.log.Error("kafka consumer group close", "err", err)
			}
		}()
		for {
			if err := group.Consume(ctx, []string{c.cfg.Topic}, h); err != nil {
				observability.IncQueueConsumerError("consume")
				c.log.Error("kafka consume error", "err", err)
				select {
				case <-time.After(2 * time.Second):
				case <-ctx.Done():
					return
				}
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for err := range group.Errors() {
			observability.IncQueueConsumerError("group")
			c.log.Error("kafka group error", "err", err)
		}
	}()

	c.log.Info("kafka processing worker started", "topic", c.cfg.Topic, "group", c.cfg.GroupID)
	return nil
}

func (c *Consumer) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
}

// Readiness implements health.ReadinessReporter.
func (c *Consumer) Readiness() (bool, []int32) {
	if !c.assigned.Load() {
		return false, nil
	}
	c.assignMu.RLock()
	defer c.assignMu.RUnlock()
	parts := make([]int32, 0, len(c.assign))
	for p := range c.assign {
		parts = append(parts, p)
	}
	return true, parts
}

func (c *Consumer) processMessage(ctx context.Context, raw *sarama.ConsumerMessage) error {
	start := time.Now()
	if !raw.Timestamp.IsZero() {
		observability.SetQueueLag(raw.Partition, int64(time.Since(raw.Timestamp).Seconds()))
	}

	var msg model.ProcessingMessage
	if err := json.Unmarshal(raw.Value, &msg); err != nil {
		observability.ObserveWorkerProcessed("decode_error", time.Since(start).Seconds())
		return fmt.Errorf("decode processing message: %w", err)
	}

	err := c.handler(ctx, msg)
	if err != nil {
		observability.ObserveWorkerProcessed("error", time.Since(start).Seconds())
		return err
	}
	observability.ObserveWorkerProcessed("ok", time.Since(start).Seconds())
	return nil
}

type groupHandler struct {
	setup   func(sarama.ConsumerGroupSession)
	cleanup func(sarama.ConsumerGroupSession)
	process func(context.Context, *sarama.ConsumerMessage) error
}

func (h *groupHandler) Setup(sess sarama.ConsumerGroupSession) error {
	if h.setup != nil {
		h.setup(sess)
	}
	return nil
}

func (h *groupHandler) Cleanup(sess sarama.ConsumerGroupSession) error {
	if h.cleanup != nil {
		h.cleanup(sess)
	}
	return nil
}

func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := sess.Context()
	for msg := range claim.Messages() {
		if err := h.process(ctx, msg); err != nil {
			// leave unacknowledged so the broker redelivers this message
			return err
		}
		sess.MarkMessage(msg, "")
	}
	return nil
}
