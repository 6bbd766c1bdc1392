package repository

import (
	"context"

	"bazaar-backend/internal/models"

	"github.com/google/uuid"
)

// UserStore define a interface para operações de usuário no DB
type UserStore interface {
	// CreateUserIfAbsent grava o usuário se o endereço ainda não existir e
	// devolve o registro persistido (novo ou o que já existia).
	CreateUserIfAbsent(ctx context.Context, user *models.User) (*models.User, error)
	GetUserByAddress(ctx context.Context, address string) (*models.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	UpdateUserProfile(ctx context.Context, id uuid.UUID, upd models.ProfileUpdate) (*models.User, error)
	SetHumanityProof(ctx context.Context, id uuid.UUID, proof models.HumanityProof) (*models.User, error)
}

// ItemStore define a interface para operações de anúncios no DB
type ItemStore interface {
	CreateItem(ctx context.Context, item *models.Item) error
	GetItem(ctx context.Context, id uuid.UUID) (*models.Item, error)
	// UpdateItemListing só altera o anúncio se ele ainda pertence ao vendedor
	// e continua AVAILABLE.
	UpdateItemListing(ctx context.Context, id, sellerID uuid.UUID, listing models.ItemListing) (*models.Item, error)
	ListItemsBySeller(ctx context.Context, sellerID uuid.UUID) ([]*models.Item, error)
}

// ConversationStore define a interface para conversas e mensagens
type ConversationStore interface {
	// GetOrCreateConversation é idempotente por (item, comprador)
	GetOrCreateConversation(ctx context.Context, conv *models.Conversation) (*models.Conversation, error)
	GetConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error)
	ListConversationsForUser(ctx context.Context, userID uuid.UUID) ([]*models.ConversationSummary, error)
	ListConversationsForItem(ctx context.Context, itemID uuid.UUID) ([]*models.Conversation, error)
	CreateMessage(ctx context.Context, msg *models.Message) error
	ListMessages(ctx context.Context, conversationID uuid.UUID) ([]*models.Message, error)
}

// OfferStore define a máquina de estados das ofertas.
// Todas as transições são atômicas na camada de armazenamento.
type OfferStore interface {
	// ProposeOffer remove toda outra oferta PENDING do item e grava a nova,
	// desde que o item ainda esteja AVAILABLE. Devolve quantas foram removidas.
	ProposeOffer(ctx context.Context, offer *models.Offer) (int, error)
	// AcceptOffer passa a oferta para ACCEPTED e o item para SOLD juntos.
	AcceptOffer(ctx context.Context, offerID uuid.UUID) (*models.Offer, error)
	GetOffer(ctx context.Context, id uuid.UUID) (*models.Offer, error)
	GetAcceptedOffer(ctx context.Context, itemID uuid.UUID) (*models.Offer, error)
	ListOffersForItem(ctx context.Context, itemID uuid.UUID) ([]*models.Offer, error)
	ListOffersForConversation(ctx context.Context, conversationID uuid.UUID) ([]*models.Offer, error)
}

// SettlementStore define a gravação e confirmação de pagamentos
type SettlementStore interface {
	// RecordSettlement grava a referência se o item ainda não tiver nenhuma
	// e marca o item como SOLD.
	RecordSettlement(ctx context.Context, s models.Settlement) (*models.Item, error)
	ListUnconfirmedSettlements(ctx context.Context, limit int) ([]*models.PendingSettlement, error)
	ConfirmSettlement(ctx context.Context, itemID uuid.UUID, ref string) error
	// RevokeSettlement apaga a referência (se ainda for a mesma) para que o
	// comprador possa tentar novamente.
	RevokeSettlement(ctx context.Context, itemID uuid.UUID, ref string) error
}

// FeedbackStore define a interface para avaliações
type FeedbackStore interface {
	CreateFeedback(ctx context.Context, fb *models.Feedback) error
	GetFeedbackByItem(ctx context.Context, itemID uuid.UUID) (*models.Feedback, error)
}

// Store é uma interface agregada para todas as operações de store
// Facilita a injeção de dependência
type Store interface {
	UserStore
	ItemStore
	ConversationStore
	OfferStore
	SettlementStore
	FeedbackStore
}
