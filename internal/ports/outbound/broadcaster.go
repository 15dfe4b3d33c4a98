package outbound

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// EventType represents the type of event being broadcasted
type EventType string

const (
	EventTypeNewBid   EventType = "bid.new"
	EventTypeOutbid   EventType = "bid.outbid"
	EventTypeBidError EventType = "bid.error"
)

// Event represents a fan-out event published to a topic
type Event struct {
	Type      EventType              `json:"type"`
	Topic     string                 `json:"topic"`
	Data      map[string]interface{} `json:"data"`
	Timestamp int64                  `json:"timestamp"`
}

// AuctionTopic is the broadcast group shared by all watchers of one auction
func AuctionTopic(auctionID uuid.UUID) string {
	return fmt.Sprintf("auction:%s", auctionID)
}

// UserTopic is the private per-user channel used for outbid notices
func UserTopic(userID uuid.UUID) string {
	return fmt.Sprintf("user:%s", userID)
}

// Broadcaster defines the interface for routing events to topic
// subscribers. Membership is ephemeral; it is torn down with the
// subscriber's connection and never persisted.
type Broadcaster interface {
	// Subscribe adds a client's event channel to a topic. Subscribing
	// twice to the same topic is a no-op. Events for every topic a
	// client joins are delivered to the same channel.
	Subscribe(ctx context.Context, topic string, clientID string, eventChan chan Event) error

	// Unsubscribe removes a client from a topic
	Unsubscribe(ctx context.Context, topic string, clientID string) error

	// UnsubscribeAll removes a client from every topic it joined
	UnsubscribeAll(ctx context.Context, clientID string) error

	// Publish delivers an event to all subscribers of a topic
	Publish(ctx context.Context, topic string, event Event) error

	// IsSubscribed checks if a client is subscribed to a topic
	IsSubscribed(ctx context.Context, topic string, clientID string) bool

	// Close tears down all subscriptions
	Close() error
}
