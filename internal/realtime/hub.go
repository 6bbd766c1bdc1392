package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"bazaar-backend/internal/metrics"

	"github.com/hannahhoward/go-pubsub"
	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("realtime")

// Event é uma dica de atualização: os clientes recarregam o recurso,
// o payload nunca é a fonte da verdade.
type Event struct {
	Channel string          `json:"channel"`
	Name    string          `json:"event"`
	Data    json.RawMessage `json:"data"`
}

// Publisher é o que os serviços usam para notificar os clientes
type Publisher interface {
	Publish(ctx context.Context, channel, event string, data any) error
}

// Hub distribui eventos para as sessões conectadas nesta instância
type Hub struct {
	ps *pubsub.PubSub

	// ctx encerra todas as sessões quando o hub é fechado
	ctx    context.Context
	cancel context.CancelFunc
}

type subscriberFn func(Event)

var _ Publisher = (*Hub)(nil)

// NewHub cria o hub local
func NewHub() *Hub {
	ps := pubsub.New(func(event pubsub.Event, subFn pubsub.SubscriberFn) error {
		evt, ok := event.(Event)
		if !ok {
			return fmt.Errorf("tipo de evento inesperado: %T", event)
		}
		sub, ok := subFn.(subscriberFn)
		if !ok {
			return fmt.Errorf("tipo de assinante inesperado: %T", subFn)
		}
		sub(evt)
		return nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{ps: ps, ctx: ctx, cancel: cancel}
}

// Close encerra as sessões abertas e as que ainda forem abertas
func (h *Hub) Close() {
	h.cancel()
}

// Publish serializa os dados e entrega o evento aos assinantes locais
func (h *Hub) Publish(ctx context.Context, channel, event string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("falha ao serializar evento %s: %w", event, err)
	}
	return h.Dispatch(Event{Channel: channel, Name: event, Data: raw})
}

// Dispatch entrega um evento já serializado
func (h *Hub) Dispatch(evt Event) error {
	metrics.RealtimeEvents.WithLabelValues(evt.Name).Inc()
	return h.ps.Publish(evt)
}

// Subscribe registra fn para todos os eventos; fn não deve bloquear
func (h *Hub) Subscribe(fn func(Event)) pubsub.Unsubscribe {
	return h.ps.Subscribe(subscriberFn(fn))
}

// Notify publica sem propagar erro: entrega é melhor esforço e nunca
// derruba a operação que gerou o evento.
func Notify(ctx context.Context, p Publisher, channel, event string, data any) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, channel, event, data); err != nil {
		metrics.RealtimePublishErrors.Inc()
		log.Warnw("falha ao publicar evento", "channel", channel, "event", event, "error", err)
	}
}
