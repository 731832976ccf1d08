// Package memory provides the in-process publisher used when Pub/Sub is
// disabled.
package memory

import (
	"context"
	"fmt"
	"sync"
)

const defaultRetain = 256

// Publisher retains recent publishes in memory. It is the default event
// egress for single-host deployments and doubles as a capture point in
// tests. Retention is bounded so a long-lived daemon does not grow without
// limit.
type Publisher struct {
	mu       sync.RWMutex
	seq      int
	retain   int
	messages []PublishedMessage
}

// PublishedMessage captures one publish call.
type PublishedMessage struct {
	Topic   string
	Payload any
}

// New returns a memory Publisher retaining the most recent publishes.
func New() *Publisher {
	return &Publisher{retain: defaultRetain}
}

// Publish records the message and returns a pseudo ID.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	p.messages = append(p.messages, PublishedMessage{Topic: topic, Payload: payload})
	if len(p.messages) > p.retain {
		p.messages = p.messages[len(p.messages)-p.retain:]
	}
	return fmt.Sprintf("memory-%d", p.seq), nil
}

// Messages returns a copy of the retained publishes, oldest first.
func (p *Publisher) Messages() []PublishedMessage {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]PublishedMessage, len(p.messages))
	copy(out, p.messages)
	return out
}
