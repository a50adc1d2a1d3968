package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mfreeman451/lineradar/pkg/config"
	"github.com/segmentio/kafka-go"
)

type kafkaMessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSender writes requests to a topic keyed by escalation id, so every
// step of one escalation lands on the same partition.
type KafkaSender struct {
	writer kafkaMessageWriter
}

func NewKafkaSender(cfg *config.KafkaConfig) (*KafkaSender, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, errKafkaConfig
	}

	return &KafkaSender{writer: &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		RequiredAcks:           kafka.RequireOne,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: false,
		WriteTimeout:           10 * time.Second,
	}}, nil
}

func (*KafkaSender) Name() string {
	return "kafka"
}

func (k *KafkaSender) Send(ctx context.Context, req *Request) error {
	value, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(req.EscalationID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "channel", Value: []byte(req.Channel)},
			{Key: "priority", Value: []byte(req.Priority)},
		},
		Time: req.At,
	}

	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write kafka message: %w", err)
	}

	return nil
}

func (k *KafkaSender) Close() error {
	return k.writer.Close()
}
