package broadcaster

import (
	"context"
	"sync"
	"time"

	"agrimandi-auction-service/internal/ports/outbound"

	"github.com/rs/zerolog"
)

// MemoryBroadcaster implements the broadcaster interface with an
// in-process topic map. It serves single-instance deployments and
// tests; semantics match the redis implementation, minus cross-process
// delivery.
type MemoryBroadcaster struct {
	topics       map[string]map[string]chan outbound.Event // topic -> clientID -> channel
	clientTopics map[string]map[string]bool                // clientID -> topic -> joined
	mu           sync.RWMutex
	logger       zerolog.Logger
}

type MemoryBroadcasterParams struct {
	Logger zerolog.Logger
}

func NewMemoryBroadcaster(params MemoryBroadcasterParams) *MemoryBroadcaster {
	return &MemoryBroadcaster{
		topics:       make(map[string]map[string]chan outbound.Event),
		clientTopics: make(map[string]map[string]bool),
		logger:       params.Logger.With().Str("component", "memory_broadcaster").Logger(),
	}
}

// Subscribe adds a client to a topic; joining twice is a no-op
func (m *MemoryBroadcaster) Subscribe(ctx context.Context, topic string, clientID string, eventChan chan outbound.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.topics[topic] == nil {
		m.topics[topic] = make(map[string]chan outbound.Event)
	}
	m.topics[topic][clientID] = eventChan

	if m.clientTopics[clientID] == nil {
		m.clientTopics[clientID] = make(map[string]bool)
	}
	m.clientTopics[clientID][topic] = true

	m.logger.Debug().Str("client_id", clientID).Str("topic", topic).Msg("Client subscribed to topic")
	return nil
}

// Unsubscribe removes a client from a topic
func (m *MemoryBroadcaster) Unsubscribe(ctx context.Context, topic string, clientID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.removeLocked(topic, clientID)
	return nil
}

// UnsubscribeAll removes a client from every topic it joined
func (m *MemoryBroadcaster) UnsubscribeAll(ctx context.Context, clientID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for topic := range m.clientTopics[clientID] {
		m.removeLocked(topic, clientID)
	}
	return nil
}

// Publish delivers an event to all subscribers of a topic. Slow
// consumers drop events rather than block the publisher.
func (m *MemoryBroadcaster) Publish(ctx context.Context, topic string, event outbound.Event) error {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().Unix()
	}
	event.Topic = topic

	m.mu.RLock()
	defer m.mu.RUnlock()

	for clientID, ch := range m.topics[topic] {
		select {
		case ch <- event:
		default:
			m.logger.Warn().Str("client_id", clientID).Str("topic", topic).Msg("Subscriber channel full, dropping event")
		}
	}

	return nil
}

// IsSubscribed checks if a client is subscribed to a topic
func (m *MemoryBroadcaster) IsSubscribed(ctx context.Context, topic string, clientID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	topics, exists := m.clientTopics[clientID]
	if !exists {
		return false
	}
	return topics[topic]
}

// Close tears down all subscriptions
func (m *MemoryBroadcaster) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.topics = make(map[string]map[string]chan outbound.Event)
	m.clientTopics = make(map[string]map[string]bool)
	return nil
}

// removeLocked removes one membership. Caller holds the write lock.
func (m *MemoryBroadcaster) removeLocked(topic string, clientID string) {
	if subs, exists := m.topics[topic]; exists {
		delete(subs, clientID)
		if len(subs) == 0 {
			delete(m.topics, topic)
		}
	}
	if topics, exists := m.clientTopics[clientID]; exists {
		delete(topics, topic)
		if len(topics) == 0 {
			delete(m.clientTopics, clientID)
		}
	}
}
