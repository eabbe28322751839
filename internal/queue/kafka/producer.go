package kafka

import (
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"

	"github.com/baroni200/overpass-landmarks/internal/core/model"
)

// Producer enqueues ProcessingMessages, partitioned by requestId so
// redeliveries of the same id serialize on one partition.
type Producer struct {
	sp    sarama.SyncProducer
	topic string
}

func NewProducer(cfg Config) (*Producer, error) {
	sc := sarama.NewConfig()
	sc.Version = sarama.V2_5_0_0
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Return.Successes = true
	sc.Producer.Partitioner = sarama.NewHashPartitioner

	sp, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("kafka sync producer: %w", err)
	}
	return &Producer{sp: sp, topic: cfg.Topic}, nil
}

// Enqueue blocks until the message is durably accepted. Failure surfaces
// as a model.Error of kind ErrQueue.
func (p *Producer) Enqueue(msg model.ProcessingMessage) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return model.NewError(model.ErrQueue, "encode processing message", err)
	}

	pm := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(msg.RequestID.String()),
		Value: sarama.ByteEncoder(raw),
	}
	if _, _, err := p.sp.SendMessage(pm); err != nil {
		return model.NewError(model.ErrQueue, "enqueue processing message", err)
	}
	return nil
}

func (p *Producer) Close() error {
	if err := p.sp.Close(); err != nil {
		return fmt.Errorf("kafka producer close: %w", err)
	}
	return nil
}
