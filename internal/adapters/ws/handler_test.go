package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"agrimandi-auction-service/internal/adapters/broadcaster"
	"agrimandi-auction-service/internal/adapters/memory"
	"agrimandi-auction-service/internal/app"
	"agrimandi-auction-service/internal/domain/auction"
	"agrimandi-auction-service/internal/domain/shared"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// staticIdentity resolves tokens from a fixed map
type staticIdentity struct {
	users map[string]*shared.User
}

func (s *staticIdentity) VerifyToken(ctx context.Context, token string) (*shared.User, error) {
	user, ok := s.users[token]
	if !ok {
		return nil, shared.ErrUnauthenticated
	}
	return user, nil
}

type wsTestEnv struct {
	server *httptest.Server
	repo   *memory.AuctionRepository
	users  map[string]*shared.User
}

func newWsTestEnv(t *testing.T) *wsTestEnv {
	t.Helper()

	users := map[string]*shared.User{
		"buyer-1-token": {ID: uuid.New(), Name: "Meena", Role: shared.RoleBuyer, Verified: true},
		"buyer-2-token": {ID: uuid.New(), Name: "Arjun", Role: shared.RoleBuyer, Verified: true},
	}

	repo := memory.NewAuctionRepository()
	handler := NewHandler(WsHandlerParams{
		Upgrader: websocket.Upgrader{},
		BidService: app.NewBidService(app.BidServiceParams{
			AuctionRepo: repo,
			Logger:      zerolog.Nop(),
		}),
		Identity: &staticIdentity{users: users},
		Broadcaster: broadcaster.NewMemoryBroadcaster(broadcaster.MemoryBroadcasterParams{
			Logger: zerolog.Nop(),
		}),
		Logger: zerolog.Nop(),
	})

	server := httptest.NewServer(http.HandlerFunc(handler.HandleWebSocket))
	t.Cleanup(server.Close)

	return &wsTestEnv{server: server, repo: repo, users: users}
}

func (e *wsTestEnv) seedAuction(t *testing.T, basePrice float64, status auction.Status) *auction.Auction {
	t.Helper()

	now := time.Now().UTC()
	a := &auction.Auction{
		ID:         uuid.New(),
		FarmerID:   uuid.New(),
		Crop:       "wheat",
		QuantityKg: 100,
		BasePrice:  basePrice,
		Status:     status,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	require.NoError(t, e.repo.Create(context.Background(), a))
	return a
}

func (e *wsTestEnv) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(e.server.URL, "http") + "/?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) *ServerMessage {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg ServerMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return &msg
}

func expectSilence(t *testing.T, conn *websocket.Conn) {
	t.Helper()

	// Probe the raw connection instead of the websocket: a timed-out
	// websocket read permanently poisons the gorilla conn, breaking
	// every later read in the same test.
	raw := conn.UnderlyingConn()
	require.NoError(t, raw.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	n, err := raw.Read(make([]byte, 1))
	require.Error(t, err, "unexpected message on connection")
	require.Zero(t, n, "unexpected message on connection")
	require.NoError(t, raw.SetReadDeadline(time.Time{}))
}

func joinAuction(t *testing.T, conn *websocket.Conn, auctionID uuid.UUID) {
	t.Helper()

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: MessageTypeJoinAuction, AuctionID: &auctionID}))
	require.Equal(t, MessageTypeJoined, readMessage(t, conn).Type)
}

func joinUserRoom(t *testing.T, conn *websocket.Conn) {
	t.Helper()

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: MessageTypeJoinUserRoom}))
	require.Equal(t, MessageTypeJoined, readMessage(t, conn).Type)
}

func placeBid(t *testing.T, conn *websocket.Conn, auctionID uuid.UUID, amount float64) {
	t.Helper()

	require.NoError(t, conn.WriteJSON(ClientMessage{
		Type:      MessageTypePlaceBid,
		AuctionID: &auctionID,
		Amount:    amount,
	}))
}

func TestHandleWebSocket_RejectsUnauthenticated(t *testing.T) {
	env := newWsTestEnv(t)

	t.Run("missing_token", func(t *testing.T) {
		wsURL := "ws" + strings.TrimPrefix(env.server.URL, "http")
		_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
		require.Error(t, err)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("unknown_token", func(t *testing.T) {
		wsURL := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/?token=forged"
		_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
		require.Error(t, err)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("bearer_header_accepted", func(t *testing.T) {
		wsURL := "ws" + strings.TrimPrefix(env.server.URL, "http")
		header := http.Header{"Authorization": []string{"Bearer buyer-1-token"}}
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
		require.NoError(t, err)
		conn.Close()
	})
}

// A full bidding session: a too-low bid is answered privately, a valid
// bid reaches everyone in the room, and a dethroned leader gets a
// private outbid notice.
func TestBiddingSession(t *testing.T) {
	env := newWsTestEnv(t)
	a := env.seedAuction(t, 50, auction.StatusOpen)

	first := env.dial(t, "buyer-1-token")
	joinAuction(t, first, a.ID)
	joinUserRoom(t, first)

	second := env.dial(t, "buyer-2-token")
	joinAuction(t, second, a.ID)
	joinUserRoom(t, second)

	// Below base price: private bidError, nothing broadcast
	placeBid(t, first, a.ID, 40)
	rejection := readMessage(t, first)
	require.Equal(t, MessageTypeBidError, rejection.Type)
	require.NotNil(t, rejection.Error)
	expectSilence(t, second)

	// Valid bid: room-wide newBid, no outbid notice for an empty history
	placeBid(t, first, a.ID, 60)
	firstSees := readMessage(t, first)
	require.Equal(t, MessageTypeNewBid, firstSees.Type)
	require.Equal(t, env.users["buyer-1-token"].ID.String(), firstSees.Data["buyer_id"])
	require.Equal(t, 60.0, firstSees.Data["amount"])

	secondSees := readMessage(t, second)
	require.Equal(t, MessageTypeNewBid, secondSees.Type)
	require.Equal(t, 60.0, secondSees.Data["amount"])

	// Second buyer outbids: both see the newBid, only the dethroned
	// leader gets the outbid notice
	placeBid(t, second, a.ID, 70)

	require.Equal(t, MessageTypeNewBid, readMessage(t, second).Type)
	expectSilence(t, second)

	require.Equal(t, MessageTypeNewBid, readMessage(t, first).Type)
	outbid := readMessage(t, first)
	require.Equal(t, MessageTypeOutbid, outbid.Type)
	require.Equal(t, a.ID.String(), outbid.Data["auction_id"])
	require.Equal(t, 70.0, outbid.Data["new_amount"])
	require.Contains(t, outbid.Data["message"], "wheat")
}

// The leader raising their own bid must not be told they outbid
// themselves.
func TestSelfRebidSendsNoOutbidNotice(t *testing.T) {
	env := newWsTestEnv(t)
	a := env.seedAuction(t, 50, auction.StatusOpen)

	conn := env.dial(t, "buyer-1-token")
	joinAuction(t, conn, a.ID)
	joinUserRoom(t, conn)

	placeBid(t, conn, a.ID, 60)
	require.Equal(t, MessageTypeNewBid, readMessage(t, conn).Type)

	placeBid(t, conn, a.ID, 80)
	require.Equal(t, MessageTypeNewBid, readMessage(t, conn).Type)
	expectSilence(t, conn)
}

func TestPlaceBidOnClosedAuction(t *testing.T) {
	env := newWsTestEnv(t)
	a := env.seedAuction(t, 50, auction.StatusClosed)

	bidder := env.dial(t, "buyer-1-token")
	watcher := env.dial(t, "buyer-2-token")
	joinAuction(t, watcher, a.ID)

	placeBid(t, bidder, a.ID, 100)
	rejection := readMessage(t, bidder)
	require.Equal(t, MessageTypeBidError, rejection.Type)

	expectSilence(t, watcher)
}

func TestJoinUserRoomForeignIdentityRejected(t *testing.T) {
	env := newWsTestEnv(t)

	conn := env.dial(t, "buyer-1-token")
	foreign := env.users["buyer-2-token"].ID
	require.NoError(t, conn.WriteJSON(ClientMessage{Type: MessageTypeJoinUserRoom, UserID: &foreign}))

	reply := readMessage(t, conn)
	require.Equal(t, MessageTypeBidError, reply.Type)
	require.NotNil(t, reply.Error)
	require.Contains(t, *reply.Error, shared.ErrUserChannelMismatch.Error())
}

func TestPing(t *testing.T) {
	env := newWsTestEnv(t)

	conn := env.dial(t, "buyer-1-token")
	require.NoError(t, conn.WriteJSON(ClientMessage{Type: MessageTypePing}))
	require.Equal(t, MessageTypePong, readMessage(t, conn).Type)
}

func TestMalformedMessageGetsErrorReply(t *testing.T) {
	env := newWsTestEnv(t)

	conn := env.dial(t, "buyer-1-token")
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"subscribe"}`)))

	reply := readMessage(t, conn)
	require.Equal(t, MessageTypeBidError, reply.Type)
	require.NotNil(t, reply.Error)
}
