// Package kafkabridge carries deployment events between processes over Kafka
// and replays them into the local management registry.
package kafkabridge

import (
	"errors"
	"strings"
	"time"
)

// Message is the JSON payload of a deployment event on the topic.
type Message struct {
	ID         string    `json:"id"`
	Deployment string    `json:"deployment"`
	Kind       string    `json:"kind"`
	Timestamp  time.Time `json:"timestamp"`
}

func (m Message) validate() error {
	if strings.TrimSpace(m.Deployment) == "" {
		return errors.New("deployment is empty")
	}
	if strings.TrimSpace(m.Kind) == "" {
		return errors.New("kind is empty")
	}
	return nil
}
