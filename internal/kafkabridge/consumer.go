package kafkabridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/ccastromar/availability-gate/internal/logx"
	"github.com/ccastromar/availability-gate/internal/metrics"
	"github.com/ccastromar/availability-gate/internal/mgmt"
)

type Config struct {
	Brokers []string
	Topic   string
	GroupID string
}

// Emitter is the part of the management registry the consumer drives.
type Emitter interface {
	RegisterResource(name string) error
	Emit(name, kind string) (mgmt.Event, error)
}

// messageFetcher is satisfied by *kafka.Reader.
type messageFetcher interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer replays deployment events from Kafka into an Emitter.
type Consumer struct {
	reader  messageFetcher
	emitter Emitter
	topic   string
}

func NewConsumer(cfg Config, em Emitter) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("topic must not be empty")
	}
	if em == nil {
		return nil, errors.New("emitter must not be nil")
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		Topic:       cfg.Topic,
		StartOffset: kafka.LastOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	return newConsumer(reader, em, cfg.Topic), nil
}

func newConsumer(r messageFetcher, em Emitter, topic string) *Consumer {
	return &Consumer{reader: r, emitter: em, topic: topic}
}

// Run consumes until ctx is done. It returns nil on cancellation and the
// reader error otherwise.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.reader.Close()
	logx.Info("Kafka", "consuming deployment events from %s", c.topic)

	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			metrics.KafkaMessages.Inc(map[string]string{"result": "error"})
			return fmt.Errorf("fetching from %s: %w", c.topic, err)
		}

		c.handle(m)

		if err := c.reader.CommitMessages(ctx, m); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logx.Warn("Kafka", "commit offset %d on %s: %v", m.Offset, c.topic, err)
		}
	}
}

func (c *Consumer) handle(m kafka.Message) {
	var msg Message
	if err := json.Unmarshal(m.Value, &msg); err != nil {
		metrics.KafkaMessages.Inc(map[string]string{"result": "invalid"})
		logx.Warn("Kafka", "skipping undecodable message at offset %d: %v", m.Offset, err)
		return
	}
	if err := msg.validate(); err != nil {
		metrics.KafkaMessages.Inc(map[string]string{"result": "invalid"})
		logx.Warn("Kafka", "skipping message %s at offset %d: %v", msg.ID, m.Offset, err)
		return
	}

	name := mgmt.DeploymentName(msg.Deployment)
	if err := c.emitter.RegisterResource(name); err != nil && !errors.Is(err, mgmt.ErrAlreadyExists) {
		metrics.KafkaMessages.Inc(map[string]string{"result": "invalid"})
		logx.Warn("Kafka", "cannot register %s: %v", name, err)
		return
	}
	ev, err := c.emitter.Emit(name, msg.Kind)
	if err != nil {
		metrics.KafkaMessages.Inc(map[string]string{"result": "error"})
		logx.Warn("Kafka", "emit %s for %s: %v", msg.Kind, name, err)
		return
	}
	metrics.KafkaMessages.Inc(map[string]string{"result": "emitted"})
	logx.Debug("Kafka", "replayed %s (%s) as event #%d", msg.Kind, msg.ID, ev.Sequence)
}
