package realtime

import (
	"fmt"
	"strings"

	"bazaar-backend/internal/models"

	"github.com/google/uuid"
)

// Nomes de evento enviados aos clientes
const (
	EventNewMessage         = "new-message"
	EventNewOffer           = "new-offer"
	EventOfferAccepted      = "offer-accepted"
	EventSettlementRecorded = "settlement-recorded"
	EventFeedbackAdded      = "feedback-added"
)

const (
	conversationPrefix = "private-conversation-"
	itemPrefix         = "private-item-"
)

// ChannelKind é o tipo de recurso por trás de um canal
type ChannelKind int

const (
	KindConversation ChannelKind = iota + 1
	KindItem
)

// ConversationChannel é o canal dos dois participantes de uma conversa
func ConversationChannel(id uuid.UUID) string {
	return conversationPrefix + id.String()
}

// ItemChannel é o canal do vendedor e dos compradores interessados em um item
func ItemChannel(id uuid.UUID) string {
	return itemPrefix + id.String()
}

// ParseChannel separa o tipo e o ID de um nome de canal
func ParseChannel(name string) (ChannelKind, uuid.UUID, error) {
	var (
		kind ChannelKind
		raw  string
	)
	switch {
	case strings.HasPrefix(name, conversationPrefix):
		kind, raw = KindConversation, strings.TrimPrefix(name, conversationPrefix)
	case strings.HasPrefix(name, itemPrefix):
		kind, raw = KindItem, strings.TrimPrefix(name, itemPrefix)
	default:
		return 0, uuid.Nil, fmt.Errorf("canal desconhecido %q: %w", name, models.ErrInvalidInput)
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		return 0, uuid.Nil, fmt.Errorf("canal %q com ID inválido: %w", name, models.ErrInvalidInput)
	}
	return kind, id, nil
}
