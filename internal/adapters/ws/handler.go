package ws

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"agrimandi-auction-service/internal/domain/shared"
	"agrimandi-auction-service/internal/ports/inbound"
	"agrimandi-auction-service/internal/ports/outbound"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// WsHandler manages websocket connections and routes the realtime
// auction events: room-wide newBid broadcasts, private outbid notices
// and per-connection bidError replies.
//
// Connections authenticate at upgrade time; joinUserRoom and placeBid
// always bind to the session identity, never to a client-supplied id.
type WsHandler struct {
	clients       map[string]*WsClient // clientID -> Client
	clientsMu     sync.RWMutex
	eventChannels map[string]chan outbound.Event // clientID -> local event channel
	channelsMu    sync.RWMutex
	upgrader      websocket.Upgrader
	bidService    inbound.BidService
	identity      outbound.IdentityProvider
	broadcaster   outbound.Broadcaster
	logger        zerolog.Logger
}

type WsHandlerParams struct {
	Upgrader    websocket.Upgrader
	BidService  inbound.BidService
	Identity    outbound.IdentityProvider
	Broadcaster outbound.Broadcaster
	Logger      zerolog.Logger
}

// NewHandler creates a new WebSocket handler
func NewHandler(params WsHandlerParams) *WsHandler {
	return &WsHandler{
		clients:       make(map[string]*WsClient),
		eventChannels: make(map[string]chan outbound.Event),
		upgrader:      params.Upgrader,
		bidService:    params.BidService,
		identity:      params.Identity,
		broadcaster:   params.Broadcaster,
		logger:        params.Logger.With().Str("component", "ws_handler").Logger(),
	}
}

// HandleWebSocket authenticates and upgrades an incoming connection
func (h *WsHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		http.Error(w, "authentication token is required", http.StatusUnauthorized)
		return
	}

	user, err := h.identity.VerifyToken(r.Context(), token)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket authentication failed")
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	client := NewClient(WsClientParams{
		User:    user,
		Conn:    conn,
		Handler: h,
		Logger:  h.logger,
	})

	h.registerClient(client)
	h.createEventChannel(client.id)

	client.Start()
	go h.listenForClientEvents(client)

	go func() {
		<-client.ctx.Done()
		h.unregisterClient(client)
	}()

	h.logger.Info().
		Str("client_id", client.id).
		Str("user_id", user.ID.String()).
		Msg("WebSocket client connected")
}

// HandleClientMessage routes a validated client message
func (h *WsHandler) HandleClientMessage(client *WsClient, msg *ClientMessage) error {
	switch msg.Type {
	case MessageTypeJoinAuction:
		return h.handleJoinAuction(client, msg)

	case MessageTypeJoinUserRoom:
		return h.handleJoinUserRoom(client, msg)

	case MessageTypePlaceBid:
		return h.handlePlaceBid(client, msg)

	default:
		h.logger.Warn().
			Str("client_id", client.id).
			Str("message_type", string(msg.Type)).
			Msg("Unknown message type from client")
		return shared.ErrUnknownMessageType
	}
}

// handleJoinAuction adds the connection to an auction's watch group.
// Watching is read-only, so no ownership or role check applies.
func (h *WsHandler) handleJoinAuction(client *WsClient, msg *ClientMessage) error {
	eventChan := h.getEventChannel(client.id)
	if eventChan == nil {
		return shared.ErrClientChannelMissing
	}

	topic := outbound.AuctionTopic(*msg.AuctionID)
	if err := h.broadcaster.Subscribe(context.Background(), topic, client.id, eventChan); err != nil {
		h.logger.Error().Err(err).
			Str("client_id", client.id).
			Str("auction_id", msg.AuctionID.String()).
			Msg("Failed to join auction watch group")
		return err
	}

	response := NewServerMessage(MessageTypeJoined)
	response.AuctionID = msg.AuctionID
	response.Data["topic"] = topic

	h.logger.Info().
		Str("client_id", client.id).
		Str("auction_id", msg.AuctionID.String()).
		Msg("Client joined auction watch group")
	return client.Send(response)
}

// handleJoinUserRoom subscribes the connection to its own private
// channel. The channel identity comes from the authenticated session;
// a client-supplied id that names someone else is rejected.
func (h *WsHandler) handleJoinUserRoom(client *WsClient, msg *ClientMessage) error {
	if msg.UserID != nil && *msg.UserID != client.UserID() {
		h.logger.Warn().
			Str("client_id", client.id).
			Str("requested_user_id", msg.UserID.String()).
			Str("session_user_id", client.UserID().String()).
			Msg("Rejected user room join for foreign identity")
		return shared.ErrUserChannelMismatch
	}

	eventChan := h.getEventChannel(client.id)
	if eventChan == nil {
		return shared.ErrClientChannelMissing
	}

	topic := outbound.UserTopic(client.UserID())
	if err := h.broadcaster.Subscribe(context.Background(), topic, client.id, eventChan); err != nil {
		return err
	}

	response := NewServerMessage(MessageTypeJoined)
	response.Data["topic"] = topic

	h.logger.Info().
		Str("client_id", client.id).
		Str("user_id", client.UserID().String()).
		Msg("Client joined private user channel")
	return client.Send(response)
}

// handlePlaceBid delegates to the admission engine and dispatches the
// two notification streams: room-wide newBid and, when a different
// bidder was dethroned, a private outbid notice. Failures go back to
// the originating connection only.
func (h *WsHandler) handlePlaceBid(client *WsClient, msg *ClientMessage) error {
	if msg.UserID != nil && *msg.UserID != client.UserID() {
		return client.Send(NewErrorMessage(shared.ErrUserChannelMismatch.Error(), msg.AuctionID))
	}

	result, err := h.bidService.AdmitBid(context.Background(), inbound.PlaceBidRequest{
		AuctionID: *msg.AuctionID,
		BidderID:  client.UserID(),
		Amount:    msg.Amount,
	})
	if err != nil {
		return client.Send(NewErrorMessage(err.Error(), msg.AuctionID))
	}

	ctx := context.Background()

	newBidEvent := outbound.Event{
		Type: outbound.EventTypeNewBid,
		Data: map[string]interface{}{
			"auction_id": result.AuctionID.String(),
			"buyer_id":   result.BidderID.String(),
			"amount":     result.Amount,
		},
	}
	if err := h.broadcaster.Publish(ctx, outbound.AuctionTopic(result.AuctionID), newBidEvent); err != nil {
		// The bid is already persisted; a delivery failure must not
		// undo the admission.
		h.logger.Error().Err(err).
			Str("auction_id", result.AuctionID.String()).
			Msg("Failed to broadcast new bid")
	}

	if result.Outbid {
		outbidEvent := outbound.Event{
			Type: outbound.EventTypeOutbid,
			Data: map[string]interface{}{
				"auction_id": result.AuctionID.String(),
				"message":    fmt.Sprintf("You have been outbid on crop %s", result.Crop),
				"new_amount": result.Amount,
			},
		}
		if err := h.broadcaster.Publish(ctx, outbound.UserTopic(*result.PreviousLeaderID), outbidEvent); err != nil {
			h.logger.Error().Err(err).
				Str("auction_id", result.AuctionID.String()).
				Str("previous_leader_id", result.PreviousLeaderID.String()).
				Msg("Failed to deliver outbid notice")
		}
	}

	h.logger.Info().
		Str("client_id", client.id).
		Str("auction_id", result.AuctionID.String()).
		Float64("amount", result.Amount).
		Bool("outbid", result.Outbid).
		Msg("Bid placed")
	return nil
}

// listenForClientEvents forwards broadcast events to the websocket
func (h *WsHandler) listenForClientEvents(client *WsClient) {
	eventChan := h.getEventChannel(client.id)
	if eventChan == nil {
		h.logger.Error().Str("client_id", client.id).Msg("No event channel found for client")
		return
	}

	for {
		select {
		case event := <-eventChan:
			if err := client.Send(h.convertEventToMessage(event)); err != nil {
				h.logger.Error().Err(err).
					Str("client_id", client.id).
					Msg("Failed to forward event to WebSocket client")
			}

		case <-client.ctx.Done():
			return
		}
	}
}

func (h *WsHandler) convertEventToMessage(event outbound.Event) *ServerMessage {
	msg := NewServerMessage(MessageTypeNewBid)
	switch event.Type {
	case outbound.EventTypeNewBid:
		msg.Type = MessageTypeNewBid
	case outbound.EventTypeOutbid:
		msg.Type = MessageTypeOutbid
	default:
		msg.Type = MessageTypeBidError
	}
	msg.Data = event.Data
	msg.Timestamp = event.Timestamp
	return msg
}

// GetConnectedClients returns the number of connected clients
func (h *WsHandler) GetConnectedClients() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

func (h *WsHandler) createEventChannel(clientID string) chan outbound.Event {
	h.channelsMu.Lock()
	defer h.channelsMu.Unlock()

	if eventChan, exists := h.eventChannels[clientID]; exists {
		return eventChan
	}

	eventChan := make(chan outbound.Event, 100)
	h.eventChannels[clientID] = eventChan
	return eventChan
}

func (h *WsHandler) getEventChannel(clientID string) chan outbound.Event {
	h.channelsMu.RLock()
	defer h.channelsMu.RUnlock()

	return h.eventChannels[clientID]
}

func (h *WsHandler) removeEventChannel(clientID string) {
	h.channelsMu.Lock()
	defer h.channelsMu.Unlock()

	if eventChan, exists := h.eventChannels[clientID]; exists {
		close(eventChan)
		delete(h.eventChannels, clientID)
	}
}

func (h *WsHandler) registerClient(client *WsClient) {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	h.clients[client.id] = client
}

func (h *WsHandler) unregisterClient(client *WsClient) {
	h.clientsMu.Lock()
	delete(h.clients, client.id)
	total := len(h.clients)
	h.clientsMu.Unlock()

	// Memberships are ephemeral: a reconnecting client re-joins.
	if err := h.broadcaster.UnsubscribeAll(context.Background(), client.id); err != nil {
		h.logger.Error().Err(err).Str("client_id", client.id).Msg("Failed to clear subscriptions")
	}

	client.Stop()
	h.removeEventChannel(client.id)

	h.logger.Info().
		Str("client_id", client.id).
		Str("user_id", client.UserID().String()).
		Int("total_clients", total).
		Msg("WebSocket client disconnected")
}

func bearerToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}
