package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"bazaar-backend/internal/metrics"
	"bazaar-backend/internal/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 64
	authorizeWait  = 5 * time.Second
)

// Mensagens do cliente: subscribe, unsubscribe, ping
type clientMessage struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
}

// Mensagens do servidor: subscribed, unsubscribed, event, error, pong
type serverMessage struct {
	Type    string          `json:"type"`
	Channel string          `json:"channel,omitempty"`
	Event   string          `json:"event,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
}

type session struct {
	conn   *websocket.Conn
	userID uuid.UUID
	auth   *Authorizer
	send   chan serverMessage

	mu       sync.RWMutex
	channels map[string]struct{}
}

// ServeSession atende uma conexão WebSocket já autenticada até ela fechar
func (h *Hub) ServeSession(ctx context.Context, conn *websocket.Conn, userID uuid.UUID, auth *Authorizer) {
	s := &session{
		conn:     conn,
		userID:   userID,
		auth:     auth,
		send:     make(chan serverMessage, sendBuffer),
		channels: make(map[string]struct{}),
	}

	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(h.ctx, cancel)
	unsubscribe := h.Subscribe(s.deliver)
	metrics.RealtimeConnections.Inc()
	defer func() {
		stop()
		unsubscribe()
		cancel()
		metrics.RealtimeConnections.Dec()
		conn.Close()
	}()

	go s.writeLoop(ctx)
	s.readLoop(ctx)
}

func (s *session) subscribed(channel string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.channels[channel]
	return ok
}

// deliver roda dentro do Publish do hub; se o cliente estiver lento o
// evento é descartado.
func (s *session) deliver(evt Event) {
	if !s.subscribed(evt.Channel) {
		return
	}
	select {
	case s.send <- serverMessage{Type: "event", Channel: evt.Channel, Event: evt.Name, Data: evt.Data}:
	default:
		log.Debugw("evento descartado, cliente lento", "user", s.userID, "channel", evt.Channel)
	}
}

func (s *session) reply(ctx context.Context, msg serverMessage) {
	select {
	case s.send <- msg:
	case <-ctx.Done():
	}
}

func (s *session) readLoop(ctx context.Context) {
	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg clientMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debugw("conexão encerrada", "user", s.userID, "error", err)
			}
			return
		}

		switch msg.Type {
		case "subscribe":
			s.handleSubscribe(ctx, msg.Channel)
		case "unsubscribe":
			s.mu.Lock()
			delete(s.channels, msg.Channel)
			s.mu.Unlock()
			s.reply(ctx, serverMessage{Type: "unsubscribed", Channel: msg.Channel})
		case "ping":
			s.reply(ctx, serverMessage{Type: "pong"})
		default:
			s.reply(ctx, serverMessage{Type: "error", Message: "tipo de mensagem desconhecido"})
		}
	}
}

func (s *session) handleSubscribe(ctx context.Context, channel string) {
	actx, cancel := context.WithTimeout(ctx, authorizeWait)
	defer cancel()

	if err := s.auth.Authorize(actx, s.userID, channel); err != nil {
		message := "erro interno"
		switch {
		case errors.Is(err, models.ErrForbidden):
			message = "acesso negado ao canal"
		case errors.Is(err, models.ErrNotFound):
			message = "canal não encontrado"
		case errors.Is(err, models.ErrInvalidInput):
			message = "canal inválido"
		default:
			log.Errorw("falha ao autorizar canal", "user", s.userID, "channel", channel, "error", err)
		}
		s.reply(ctx, serverMessage{Type: "error", Channel: channel, Message: message})
		return
	}

	s.mu.Lock()
	s.channels[channel] = struct{}{}
	s.mu.Unlock()
	s.reply(ctx, serverMessage{Type: "subscribed", Channel: channel})
}

func (s *session) writeLoop(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteJSON(msg); err != nil {
				s.conn.Close()
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.conn.Close()
				return
			}
		case <-ctx.Done():
			_ = s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "servidor encerrando"),
				time.Now().Add(writeWait))
			// Desbloqueia o readLoop
			s.conn.Close()
			return
		}
	}
}
