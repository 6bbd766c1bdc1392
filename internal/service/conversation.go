package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"bazaar-backend/internal/metrics"
	"bazaar-backend/internal/models"
	"bazaar-backend/internal/realtime"
	"bazaar-backend/internal/repository"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

const maxMessageLength = 2000

// ConversationService mantém as conversas entre comprador e vendedor
type ConversationService struct {
	store     repository.Store
	publisher realtime.Publisher
}

// NewConversationService cria o serviço de conversas
func NewConversationService(store repository.Store, publisher realtime.Publisher) *ConversationService {
	return &ConversationService{store: store, publisher: publisher}
}

// ConversationView é a conversa completa vista por um participante
type ConversationView struct {
	Conversation *models.Conversation `json:"conversation"`
	Item         *models.Item         `json:"item"`
	Buyer        *models.User         `json:"buyer"`
	Seller       *models.User         `json:"seller"`
	Messages     []*models.Message    `json:"messages"`
	Offers       []*models.Offer      `json:"offers"`
}

// GetOrCreate devolve a conversa do comprador sobre o item, criando-a na
// primeira vez. O vendedor não conversa consigo mesmo.
func (s *ConversationService) GetOrCreate(ctx context.Context, itemID, buyerID uuid.UUID) (*models.Conversation, error) {
	item, err := s.store.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item.SellerID == buyerID {
		return nil, fmt.Errorf("vendedor não pode abrir conversa sobre o próprio item: %w", models.ErrInvalidOperation)
	}

	return s.store.GetOrCreateConversation(ctx, &models.Conversation{
		ID:       uuid.New(),
		ItemID:   item.ID,
		BuyerID:  buyerID,
		SellerID: item.SellerID,
	})
}

// ListForUser lista as conversas do usuário, a mais recente primeiro
func (s *ConversationService) ListForUser(ctx context.Context, userID uuid.UUID) ([]*models.ConversationSummary, error) {
	return s.store.ListConversationsForUser(ctx, userID)
}

// getForParticipant busca a conversa e confere que o chamador participa dela
func (s *ConversationService) getForParticipant(ctx context.Context, conversationID, callerID uuid.UUID) (*models.Conversation, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(callerID) {
		return nil, fmt.Errorf("usuário não participa da conversa: %w", models.ErrForbidden)
	}
	return conv, nil
}

// Get devolve a conversa com participantes, item, mensagens e ofertas
func (s *ConversationService) Get(ctx context.Context, conversationID, callerID uuid.UUID) (*ConversationView, error) {
	conv, err := s.getForParticipant(ctx, conversationID, callerID)
	if err != nil {
		return nil, err
	}

	view := &ConversationView{Conversation: conv}
	if view.Item, err = s.store.GetItem(ctx, conv.ItemID); err != nil {
		return nil, err
	}
	if view.Buyer, err = s.store.GetUserByID(ctx, conv.BuyerID); err != nil {
		return nil, err
	}
	if view.Seller, err = s.store.GetUserByID(ctx, conv.SellerID); err != nil {
		return nil, err
	}
	if view.Messages, err = s.store.ListMessages(ctx, conv.ID); err != nil {
		return nil, err
	}
	if view.Offers, err = s.store.ListOffersForConversation(ctx, conv.ID); err != nil {
		return nil, err
	}
	return view, nil
}

// Messages devolve as mensagens em ordem de criação
func (s *ConversationService) Messages(ctx context.Context, conversationID, callerID uuid.UUID) ([]*models.Message, error) {
	if _, err := s.getForParticipant(ctx, conversationID, callerID); err != nil {
		return nil, err
	}
	return s.store.ListMessages(ctx, conversationID)
}

// AppendMessage grava a mensagem e avisa o outro participante
func (s *ConversationService) AppendMessage(ctx context.Context, conversationID, senderID uuid.UUID, content string) (*models.Message, error) {
	conv, err := s.getForParticipant(ctx, conversationID, senderID)
	if err != nil {
		return nil, err
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("mensagem vazia: %w", models.ErrInvalidInput)
	}
	if utf8.RuneCountInString(content) > maxMessageLength {
		return nil, fmt.Errorf("mensagem com mais de %d caracteres: %w", maxMessageLength, models.ErrInvalidInput)
	}

	msg := &models.Message{
		ID:             ulid.Make().String(),
		ConversationID: conv.ID,
		SenderID:       senderID,
		Content:        content,
	}
	if err := s.store.CreateMessage(ctx, msg); err != nil {
		return nil, err
	}
	metrics.MessagesSent.Inc()

	realtime.Notify(ctx, s.publisher, realtime.ConversationChannel(conv.ID), realtime.EventNewMessage, map[string]any{
		"conversationId": conv.ID,
		"messageId":      msg.ID,
		"senderId":       senderID,
	})
	return msg, nil
}
