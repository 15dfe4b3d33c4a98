package ws

import (
	"context"
	"fmt"
	"sync"
	"time"

	"agrimandi-auction-service/internal/config"
	"agrimandi-auction-service/internal/domain/shared"

	"github.com/alitto/pond"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// WsClient is one authenticated websocket connection. Incoming
// messages are handled on a per-client worker pool; outgoing messages
// funnel through a buffered send channel so a single writer owns the
// connection.
type WsClient struct {
	id         string
	user       *shared.User
	conn       *websocket.Conn
	sendChan   chan *ServerMessage
	ctx        context.Context
	cancel     context.CancelFunc
	handler    *WsHandler
	workerPool *pond.WorkerPool
	stopped    bool
	mu         sync.Mutex
	logger     zerolog.Logger
}

type WsClientParams struct {
	User    *shared.User
	Conn    *websocket.Conn
	Handler *WsHandler
	Logger  zerolog.Logger
}

// NewClient creates a new WebSocket client
func NewClient(params WsClientParams) *WsClient {
	ctx, cancel := context.WithCancel(context.Background())

	pool := pond.New(
		config.WSMaxWorkers,
		config.WSMaxCapacity,
		pond.Context(ctx),
		pond.Strategy(pond.Balanced()),
	)

	id := uuid.New().String()
	return &WsClient{
		id:         id,
		user:       params.User,
		conn:       params.Conn,
		sendChan:   make(chan *ServerMessage, 100),
		ctx:        ctx,
		cancel:     cancel,
		handler:    params.Handler,
		workerPool: pool,
		logger: params.Logger.With().
			Str("client_id", id).
			Str("user_id", params.User.ID.String()).
			Logger(),
	}
}

// UserID returns the authenticated user id bound to this connection
func (c *WsClient) UserID() uuid.UUID {
	return c.user.ID
}

func (c *WsClient) Start() {
	go c.messageSender()
	go c.messageReceiver()
}

func (c *WsClient) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return
	}
	c.stopped = true

	c.cancel()
	c.conn.Close()
	close(c.sendChan)

	if c.workerPool != nil {
		c.workerPool.Stop()
	}
}

// Send queues a message for delivery to the client
func (c *WsClient) Send(msg *ServerMessage) error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return fmt.Errorf("client is stopped")
	}
	c.mu.Unlock()

	select {
	case c.sendChan <- msg:
		return nil
	default:
		select {
		case c.sendChan <- msg:
			return nil
		case <-time.After(100 * time.Millisecond):
			return fmt.Errorf("client send channel is full")
		}
	}
}

func (c *WsClient) messageSender() {
	for {
		select {
		case msg := <-c.sendChan:
			if msg == nil {
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				c.logger.Error().Err(err).Msg("Failed to send message to client")
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *WsClient) messageReceiver() {
	for {
		select {
		case <-c.ctx.Done():
			return
		default:
			_, message, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					c.logger.Error().Err(err).Msg("WebSocket read error")
				} else {
					c.logger.Info().Str("error", err.Error()).Msg("WebSocket connection closed")
				}
				c.cancel()
				return
			}

			c.workerPool.Submit(func() {
				if err := c.handleMessage(message); err != nil {
					c.logger.Warn().Err(err).Msg("Failed to handle client message")
					if sendErr := c.Send(NewErrorMessage(err.Error(), nil)); sendErr != nil {
						c.logger.Error().Err(sendErr).Msg("Failed to send error notice")
					}
				}
			})
		}
	}
}

func (c *WsClient) handleMessage(data []byte) error {
	msg, err := ParseClientMessage(data)
	if err != nil {
		return fmt.Errorf("invalid message format: %w", err)
	}

	if err := msg.Validate(); err != nil {
		return fmt.Errorf("message validation failed: %w", err)
	}

	if msg.Type == MessageTypePing {
		return c.Send(NewServerMessage(MessageTypePong))
	}

	if c.handler == nil {
		return fmt.Errorf("handler not available")
	}
	return c.handler.HandleClientMessage(c, msg)
}
