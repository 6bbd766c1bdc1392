package realtime

import (
	"context"
	"fmt"

	"bazaar-backend/internal/models"

	"github.com/google/uuid"
)

type authorizerStore interface {
	GetItem(ctx context.Context, id uuid.UUID) (*models.Item, error)
	GetConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error)
	ListConversationsForItem(ctx context.Context, itemID uuid.UUID) ([]*models.Conversation, error)
}

// Authorizer decide quem pode assinar cada canal
type Authorizer struct {
	store authorizerStore
}

// NewAuthorizer cria o autorizador de canais
func NewAuthorizer(store authorizerStore) *Authorizer {
	return &Authorizer{store: store}
}

// Authorize devolve nil se o usuário pode assinar o canal.
// Conversas: apenas os dois participantes. Itens: o vendedor ou quem já
// tem uma conversa sobre o item.
func (a *Authorizer) Authorize(ctx context.Context, userID uuid.UUID, channel string) error {
	kind, id, err := ParseChannel(channel)
	if err != nil {
		return err
	}

	switch kind {
	case KindConversation:
		conv, err := a.store.GetConversation(ctx, id)
		if err != nil {
			return err
		}
		if !conv.HasParticipant(userID) {
			return fmt.Errorf("usuário não participa da conversa: %w", models.ErrForbidden)
		}
		return nil

	case KindItem:
		item, err := a.store.GetItem(ctx, id)
		if err != nil {
			return err
		}
		if item.SellerID == userID {
			return nil
		}
		convs, err := a.store.ListConversationsForItem(ctx, id)
		if err != nil {
			return err
		}
		for _, c := range convs {
			if c.BuyerID == userID {
				return nil
			}
		}
		return fmt.Errorf("usuário sem conversa sobre o item: %w", models.ErrForbidden)
	}
	return fmt.Errorf("canal %q: %w", channel, models.ErrInvalidInput)
}
