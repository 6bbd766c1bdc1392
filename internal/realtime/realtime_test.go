package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"bazaar-backend/internal/models"
	"bazaar-backend/internal/repository"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store    *repository.InMemoryStore
	sellerID uuid.UUID
	buyerID  uuid.UUID
	itemID   uuid.UUID
	conv     *models.Conversation
}

func newFixture(t *testing.T) *fixture {
	ctx := context.Background()
	f := &fixture{
		store:    repository.NewInMemoryStore(),
		sellerID: uuid.New(),
		buyerID:  uuid.New(),
		itemID:   uuid.New(),
	}
	_, err := f.store.CreateUserIfAbsent(ctx, &models.User{ID: f.sellerID, Address: "0x" + strings.Repeat("a", 40)})
	require.NoError(t, err)
	require.NoError(t, f.store.CreateItem(ctx, &models.Item{
		ID:       f.itemID,
		SellerID: f.sellerID,
		Title:    "Bicicleta",
		Price:    decimal.NewFromInt(100),
		Status:   models.ItemAvailable,
	}))
	conv, err := f.store.GetOrCreateConversation(ctx, &models.Conversation{
		ID:       uuid.New(),
		ItemID:   f.itemID,
		BuyerID:  f.buyerID,
		SellerID: f.sellerID,
	})
	require.NoError(t, err)
	f.conv = conv
	return f
}

func TestParseChannel(t *testing.T) {
	id := uuid.New()

	kind, got, err := ParseChannel(ConversationChannel(id))
	require.NoError(t, err)
	assert.Equal(t, KindConversation, kind)
	assert.Equal(t, id, got)

	kind, got, err = ParseChannel(ItemChannel(id))
	require.NoError(t, err)
	assert.Equal(t, KindItem, kind)
	assert.Equal(t, id, got)

	_, _, err = ParseChannel("presence-lobby")
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	_, _, err = ParseChannel("private-item-nope")
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestAuthorize(t *testing.T) {
	f := newFixture(t)
	auth := NewAuthorizer(f.store)
	ctx := context.Background()
	stranger := uuid.New()

	assert.NoError(t, auth.Authorize(ctx, f.buyerID, ConversationChannel(f.conv.ID)))
	assert.NoError(t, auth.Authorize(ctx, f.sellerID, ConversationChannel(f.conv.ID)))
	assert.ErrorIs(t, auth.Authorize(ctx, stranger, ConversationChannel(f.conv.ID)), models.ErrForbidden)

	assert.NoError(t, auth.Authorize(ctx, f.sellerID, ItemChannel(f.itemID)))
	assert.NoError(t, auth.Authorize(ctx, f.buyerID, ItemChannel(f.itemID)))
	assert.ErrorIs(t, auth.Authorize(ctx, stranger, ItemChannel(f.itemID)), models.ErrForbidden)

	assert.ErrorIs(t, auth.Authorize(ctx, f.buyerID, ConversationChannel(uuid.New())), models.ErrNotFound)
}

func TestHubFanOut(t *testing.T) {
	hub := NewHub()

	var (
		mu  sync.Mutex
		got []Event
	)
	collect := func(evt Event) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, evt)
	}
	unsub1 := hub.Subscribe(collect)
	unsub2 := hub.Subscribe(collect)

	require.NoError(t, hub.Publish(context.Background(), "private-item-x", EventNewOffer, map[string]string{"offerId": "1"}))
	assert.Len(t, got, 2)
	assert.Equal(t, EventNewOffer, got[0].Name)
	assert.JSONEq(t, `{"offerId":"1"}`, string(got[0].Data))

	unsub1()
	unsub2()
	require.NoError(t, hub.Publish(context.Background(), "private-item-x", EventNewOffer, nil))
	assert.Len(t, got, 2)
}

type failingPublisher struct{}

func (failingPublisher) Publish(ctx context.Context, channel, event string, data any) error {
	return assert.AnError
}

func TestNotifySwallowsErrors(t *testing.T) {
	assert.NotPanics(t, func() {
		Notify(context.Background(), failingPublisher{}, "c", "e", nil)
		Notify(context.Background(), nil, "c", "e", nil)
	})
}

func dialSession(t *testing.T, hub *Hub, auth *Authorizer, userID uuid.UUID) *websocket.Conn {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.ServeSession(context.Background(), conn, userID, auth)
	}))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) serverMessage {
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg serverMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestSessionSubscribeAndReceive(t *testing.T) {
	f := newFixture(t)
	hub := NewHub()
	conn := dialSession(t, hub, NewAuthorizer(f.store), f.buyerID)

	channel := ConversationChannel(f.conv.ID)
	require.NoError(t, conn.WriteJSON(clientMessage{Type: "subscribe", Channel: channel}))
	ack := readMessage(t, conn)
	assert.Equal(t, "subscribed", ack.Type)
	assert.Equal(t, channel, ack.Channel)

	// Eventos de canais não assinados não chegam
	require.NoError(t, hub.Publish(context.Background(), ConversationChannel(uuid.New()), EventNewMessage, nil))
	require.NoError(t, hub.Publish(context.Background(), channel, EventNewMessage, map[string]string{"messageId": "m1"}))

	evt := readMessage(t, conn)
	assert.Equal(t, "event", evt.Type)
	assert.Equal(t, EventNewMessage, evt.Event)
	assert.JSONEq(t, `{"messageId":"m1"}`, string(evt.Data))
}

func TestHubCloseEndsSessions(t *testing.T) {
	f := newFixture(t)
	hub := NewHub()
	conn := dialSession(t, hub, NewAuthorizer(f.store), f.buyerID)

	require.NoError(t, conn.WriteJSON(clientMessage{Type: "ping"}))
	assert.Equal(t, "pong", readMessage(t, conn).Type)

	hub.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg serverMessage
	err := conn.ReadJSON(&msg)
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "%v", err)

	// Sessões abertas depois do Close terminam na hora
	late := dialSession(t, hub, NewAuthorizer(f.store), f.buyerID)
	require.NoError(t, late.SetReadDeadline(time.Now().Add(2*time.Second)))
	err = late.ReadJSON(&msg)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "%v", err)
}

func TestSessionRejectsNonParticipant(t *testing.T) {
	f := newFixture(t)
	hub := NewHub()
	conn := dialSession(t, hub, NewAuthorizer(f.store), uuid.New())

	require.NoError(t, conn.WriteJSON(clientMessage{Type: "subscribe", Channel: ConversationChannel(f.conv.ID)}))
	msg := readMessage(t, conn)
	assert.Equal(t, "error", msg.Type)
	assert.Equal(t, "acesso negado ao canal", msg.Message)

	require.NoError(t, conn.WriteJSON(clientMessage{Type: "ping"}))
	assert.Equal(t, "pong", readMessage(t, conn).Type)
}
