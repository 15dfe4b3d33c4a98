package broadcaster

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"agrimandi-auction-service/internal/ports/outbound"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisBroadcaster implements the broadcaster interface on redis
// pub/sub. Topics map one-to-one onto redis channels (auction:<id>,
// user:<id>), so several service instances sharing one redis deliver
// each other's events. Subscriber channels are owned by the caller
// and never closed here.
type RedisBroadcaster struct {
	client       *redis.Client
	subscribers  map[string]chan outbound.Event // clientID -> local channel
	pubsubs      map[string]*redis.PubSub       // clientID -> pubsub instance
	clientTopics map[string]map[string]bool     // clientID -> topic -> joined
	mu           sync.RWMutex
	ctx          context.Context
	cancel       context.CancelFunc
	logger       zerolog.Logger
}

type RedisBroadcasterParams struct {
	RedisClient *redis.Client
	Logger      zerolog.Logger
}

func NewRedisBroadcaster(params RedisBroadcasterParams) *RedisBroadcaster {
	ctx, cancel := context.WithCancel(context.Background())

	return &RedisBroadcaster{
		client:       params.RedisClient,
		subscribers:  make(map[string]chan outbound.Event),
		pubsubs:      make(map[string]*redis.PubSub),
		clientTopics: make(map[string]map[string]bool),
		ctx:          ctx,
		cancel:       cancel,
		logger:       params.Logger.With().Str("component", "redis_broadcaster").Logger(),
	}
}

// Subscribe adds a client to a topic. Joining the same topic twice is
// a no-op; all of a client's topics feed the same local channel.
func (r *RedisBroadcaster) Subscribe(ctx context.Context, topic string, clientID string, eventChan chan outbound.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.clientTopics[clientID] != nil && r.clientTopics[clientID][topic] {
		r.logger.Debug().
			Str("client_id", clientID).
			Str("topic", topic).
			Msg("Client already subscribed to topic")
		return nil
	}

	if r.subscribers[clientID] == nil {
		r.subscribers[clientID] = eventChan
	}
	if r.clientTopics[clientID] == nil {
		r.clientTopics[clientID] = make(map[string]bool)
	}
	r.clientTopics[clientID][topic] = true

	pubsub, exists := r.pubsubs[clientID]
	if !exists {
		pubsub = r.client.Subscribe(ctx)
		r.pubsubs[clientID] = pubsub
		go r.forwardRedisMessages(pubsub, clientID, r.subscribers[clientID])
	}

	if err := pubsub.Subscribe(ctx, topic); err != nil {
		r.logger.Error().Err(err).Str("client_id", clientID).Str("topic", topic).Msg("Failed to subscribe to redis channel")
		return err
	}

	r.logger.Info().
		Str("client_id", clientID).
		Str("topic", topic).
		Msg("Client subscribed to topic")
	return nil
}

// Unsubscribe removes a client from a topic
func (r *RedisBroadcaster) Unsubscribe(ctx context.Context, topic string, clientID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	topics, exists := r.clientTopics[clientID]
	if !exists || !topics[topic] {
		return nil
	}

	delete(topics, topic)

	if len(topics) == 0 {
		r.dropClientLocked(clientID)
	} else if pubsub, ok := r.pubsubs[clientID]; ok {
		if err := pubsub.Unsubscribe(ctx, topic); err != nil {
			r.logger.Error().Err(err).Str("client_id", clientID).Str("topic", topic).Msg("Error unsubscribing from redis channel")
		}
	}

	r.logger.Info().
		Str("client_id", clientID).
		Str("topic", topic).
		Msg("Client unsubscribed from topic")
	return nil
}

// UnsubscribeAll removes a client from every topic it joined; called
// on connection teardown.
func (r *RedisBroadcaster) UnsubscribeAll(ctx context.Context, clientID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.clientTopics[clientID]; !exists {
		return nil
	}
	r.dropClientLocked(clientID)

	r.logger.Info().Str("client_id", clientID).Msg("Client unsubscribed from all topics")
	return nil
}

// Publish delivers an event to all subscribers of a topic via redis
func (r *RedisBroadcaster) Publish(ctx context.Context, topic string, event outbound.Event) error {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().Unix()
	}
	event.Topic = topic

	eventJSON, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	result := r.client.Publish(ctx, topic, eventJSON)
	if err := result.Err(); err != nil {
		r.logger.Error().Err(err).Str("topic", topic).Msg("Failed to publish to redis")
		return fmt.Errorf("failed to publish to redis: %w", err)
	}

	r.logger.Debug().
		Str("event_type", string(event.Type)).
		Str("topic", topic).
		Int64("subscriber_count", result.Val()).
		Msg("Published event")
	return nil
}

// IsSubscribed checks if a client is subscribed to a topic
func (r *RedisBroadcaster) IsSubscribed(ctx context.Context, topic string, clientID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	topics, exists := r.clientTopics[clientID]
	if !exists {
		return false
	}
	return topics[topic]
}

// Close tears down all subscriptions and the redis connection
func (r *RedisBroadcaster) Close() error {
	r.cancel()

	r.mu.Lock()
	defer r.mu.Unlock()

	for clientID := range r.clientTopics {
		r.dropClientLocked(clientID)
	}

	return r.client.Close()
}

// dropClientLocked removes a client's pubsub and channel tracking.
// Caller holds the write lock.
func (r *RedisBroadcaster) dropClientLocked(clientID string) {
	delete(r.clientTopics, clientID)
	delete(r.subscribers, clientID)

	if pubsub, exists := r.pubsubs[clientID]; exists {
		if err := pubsub.Close(); err != nil {
			r.logger.Error().Err(err).Str("client_id", clientID).Msg("Error closing redis pubsub")
		}
		delete(r.pubsubs, clientID)
	}
}

// forwardRedisMessages forwards redis pub/sub messages to the client's
// local channel. Slow consumers drop events rather than block the
// forwarder.
func (r *RedisBroadcaster) forwardRedisMessages(pubsub *redis.PubSub, clientID string, localChan chan outbound.Event) {
	defer func() {
		if err := recover(); err != nil {
			r.logger.Error().Interface("panic", err).Str("client_id", clientID).Msg("Redis message forwarder panic")
		}
	}()

	ch := pubsub.Channel()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				r.logger.Debug().Str("client_id", clientID).Msg("Redis channel closed for client")
				return
			}

			var event outbound.Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				r.logger.Error().Err(err).Str("client_id", clientID).Msg("Failed to unmarshal redis message")
				continue
			}

			select {
			case localChan <- event:
			default:
				r.logger.Warn().Str("client_id", clientID).Msg("Local channel full, dropping event")
			}

		case <-r.ctx.Done():
			return
		}
	}
}
