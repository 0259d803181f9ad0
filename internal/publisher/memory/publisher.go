// Package memory records published lead events in memory for tests and local runs.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// PublishedMessage is one recorded publish. Data is the JSON body a Pub/Sub
// subscriber would have received.
type PublishedMessage struct {
	ID      string
	Topic   string
	Payload any
	Data    []byte
}

// Decode unmarshals the message body into v.
func (m PublishedMessage) Decode(v any) error {
	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("decode message %s: %w", m.ID, err)
	}
	return nil
}

// Publisher keeps every message per topic in publish order. Payloads are
// JSON-encoded on publish so unserializable events fail here the same way
// they would against Pub/Sub.
type Publisher struct {
	mu     sync.RWMutex
	seq    int
	topics map[string][]PublishedMessage
}

// New returns a memory Publisher.
func New() *Publisher {
	return &Publisher{topics: make(map[string][]PublishedMessage)}
}

// Publish records the payload and returns its message ID.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	if topic == "" {
		return "", errors.New("topic is required")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	msg := PublishedMessage{
		ID:      fmt.Sprintf("memory-%d", p.seq),
		Topic:   topic,
		Payload: payload,
		Data:    data,
	}
	p.topics[topic] = append(p.topics[topic], msg)
	return msg.ID, nil
}

// Topic returns a copy of the messages published to topic.
func (p *Publisher) Topic(topic string) []PublishedMessage {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]PublishedMessage(nil), p.topics[topic]...)
}

// Count reports how many messages were published across all topics.
func (p *Publisher) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.seq
}
