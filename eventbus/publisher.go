// Package eventbus publishes finance lifecycle events to a message broker.
// The Plugin turns engine hooks into JSON events; a Publisher delivers them.
package eventbus

import (
	"context"
	"log/slog"
	"sync"
)

// Publisher defines the interface for publishing events to a message broker.
type Publisher interface {
	// Publish sends a message to the event bus.
	Publish(ctx context.Context, routingKey string, payload []byte) error

	// Close closes the publisher connection.
	Close() error
}

// NoopPublisher is a no-op publisher for testing/development.
type NoopPublisher struct {
	logger *slog.Logger
}

// NewNoopPublisher creates a publisher that does nothing.
func NewNoopPublisher(logger *slog.Logger) *NoopPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &NoopPublisher{logger: logger}
}

// Publish logs the message but doesn't actually publish.
func (p *NoopPublisher) Publish(_ context.Context, routingKey string, payload []byte) error {
	p.logger.Debug("noop publish",
		"routing_key", routingKey,
		"size", len(payload),
	)
	return nil
}

// Close is a no-op.
func (p *NoopPublisher) Close() error {
	return nil
}

// Message is a payload captured by MemoryPublisher.
type Message struct {
	RoutingKey string
	Payload    []byte
}

// MemoryPublisher keeps every published message in memory.
type MemoryPublisher struct {
	mu       sync.Mutex
	messages []Message
}

// Publish records the message.
func (p *MemoryPublisher) Publish(_ context.Context, routingKey string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, Message{RoutingKey: routingKey, Payload: append([]byte(nil), payload...)})
	return nil
}

// Messages returns a copy of the recorded messages.
func (p *MemoryPublisher) Messages() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Message(nil), p.messages...)
}

// Close is a no-op.
func (p *MemoryPublisher) Close() error { return nil }
