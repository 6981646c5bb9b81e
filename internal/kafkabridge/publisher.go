package kafkabridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// messageWriter is satisfied by *kafka.Writer.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes deployment events to the topic, keyed by deployment so
// events of one deployment stay ordered.
type Publisher struct {
	w     messageWriter
	topic string
}

func NewPublisher(brokers []string, topic string) (*Publisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}
	if topic == "" {
		return nil, errors.New("topic must not be empty")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}
	return &Publisher{w: w, topic: topic}, nil
}

func (p *Publisher) Publish(ctx context.Context, deployment, kind string) (Message, error) {
	msg := Message{
		ID:         uuid.NewString(),
		Deployment: deployment,
		Kind:       kind,
		Timestamp:  time.Now().UTC(),
	}
	if err := msg.validate(); err != nil {
		return Message{}, err
	}
	value, err := json.Marshal(msg)
	if err != nil {
		return Message{}, err
	}
	if err := p.w.WriteMessages(ctx, kafka.Message{Key: []byte(deployment), Value: value}); err != nil {
		return Message{}, fmt.Errorf("writing to %s: %w", p.topic, err)
	}
	return msg, nil
}

func (p *Publisher) Close() error {
	return p.w.Close()
}
