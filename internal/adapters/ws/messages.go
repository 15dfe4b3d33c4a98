package ws

import (
	"encoding/json"
	"fmt"
	"time"

	"agrimandi-auction-service/internal/domain/shared"

	"github.com/google/uuid"
)

type MessageType string

const (
	// Client to Server message types
	MessageTypeJoinAuction  MessageType = "joinAuction"
	MessageTypeJoinUserRoom MessageType = "joinUserRoom"
	MessageTypePlaceBid     MessageType = "placeBid"
	MessageTypePing         MessageType = "ping"

	// Server to Client message types
	MessageTypeNewBid   MessageType = "newBid"
	MessageTypeOutbid   MessageType = "outbid"
	MessageTypeBidError MessageType = "bidError"
	MessageTypeJoined   MessageType = "joined"
	MessageTypePong     MessageType = "pong"
)

// ClientMessage represents a message sent from client to server.
// UserID on joinUserRoom is optional and, when present, must match
// the connection's authenticated user.
type ClientMessage struct {
	Type      MessageType `json:"type"`
	AuctionID *uuid.UUID  `json:"auction_id,omitempty"`
	UserID    *uuid.UUID  `json:"user_id,omitempty"`
	Amount    float64     `json:"amount,omitempty"`
}

// ServerMessage represents a message sent from server to client
type ServerMessage struct {
	Type      MessageType            `json:"type"`
	AuctionID *uuid.UUID             `json:"auction_id,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Error     *string                `json:"error,omitempty"`
	Timestamp int64                  `json:"timestamp"`
}

func NewServerMessage(msgType MessageType) *ServerMessage {
	return &ServerMessage{
		Type:      msgType,
		Data:      make(map[string]interface{}),
		Timestamp: time.Now().Unix(),
	}
}

// NewErrorMessage builds a bidError notice for the originating
// connection only; admission failures are never broadcast.
func NewErrorMessage(reason string, auctionID *uuid.UUID) *ServerMessage {
	return &ServerMessage{
		Type:      MessageTypeBidError,
		AuctionID: auctionID,
		Error:     &reason,
		Timestamp: time.Now().Unix(),
	}
}

// ParseClientMessage parses a JSON message from client
func ParseClientMessage(data []byte) (*ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse client message: %w", err)
	}

	if msg.Type == "" {
		return nil, shared.ErrMessageTypeRequired
	}

	return &msg, nil
}

// Validate validates a client message
func (m *ClientMessage) Validate() error {
	switch m.Type {
	case MessageTypeJoinAuction:
		return m.validateAuctionID()

	case MessageTypeJoinUserRoom:
		// user_id is optional; the session identity is authoritative

	case MessageTypePlaceBid:
		if err := m.validateAuctionID(); err != nil {
			return err
		}
		if m.Amount <= 0 {
			return shared.ErrInvalidAmount
		}

	case MessageTypePing:

	default:
		return shared.ErrUnknownMessageType
	}

	return nil
}

func (m *ClientMessage) validateAuctionID() error {
	if m.AuctionID == nil || *m.AuctionID == uuid.Nil {
		return shared.ErrAuctionIDRequired
	}
	return nil
}
