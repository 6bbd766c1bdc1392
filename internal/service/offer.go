package service

import (
	"context"
	"errors"
	"fmt"

	"bazaar-backend/internal/chain"
	"bazaar-backend/internal/metrics"
	"bazaar-backend/internal/models"
	"bazaar-backend/internal/realtime"
	"bazaar-backend/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OfferService é a máquina de estados das ofertas: propor, aceitar, consultar.
// Cada item tem no máximo uma oferta viva; a proposta mais recente vence.
type OfferService struct {
	store     repository.Store
	chains    *chain.Registry
	publisher realtime.Publisher
}

// NewOfferService cria o serviço de ofertas
func NewOfferService(store repository.Store, chains *chain.Registry, publisher realtime.Publisher) *OfferService {
	return &OfferService{store: store, chains: chains, publisher: publisher}
}

// MakeOffer registra a proposta do comprador e retira qualquer outra oferta
// pendente sobre o mesmo item.
func (s *OfferService) MakeOffer(ctx context.Context, conversationID, buyerID uuid.UUID, amount decimal.Decimal, chainID int64) (*models.Offer, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.BuyerID != buyerID {
		return nil, fmt.Errorf("apenas o comprador da conversa pode propor: %w", models.ErrForbidden)
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("valor da oferta deve ser positivo: %w", models.ErrInvalidInput)
	}
	c, ok := s.chains.Get(chainID)
	if !ok {
		return nil, fmt.Errorf("rede %d não suportada: %w", chainID, models.ErrInvalidInput)
	}
	if err := validateMoney("valor da oferta", amount, c.TokenDecimals); err != nil {
		return nil, err
	}

	offer := &models.Offer{
		ID:             uuid.New(),
		ConversationID: conv.ID,
		ItemID:         conv.ItemID,
		BuyerID:        conv.BuyerID,
		SellerID:       conv.SellerID,
		Amount:         amount,
		ChainID:        chainID,
	}
	superseded, err := s.store.ProposeOffer(ctx, offer)
	if err != nil {
		return nil, err
	}

	metrics.OffersProposed.Inc()
	metrics.OffersSuperseded.Add(float64(superseded))
	log.Infow("oferta proposta", "offer", offer.ID, "item", offer.ItemID, "amount", amount.String(), "superseded", superseded)

	payload := map[string]any{
		"conversationId": conv.ID,
		"itemId":         conv.ItemID,
		"offerId":        offer.ID,
	}
	realtime.Notify(ctx, s.publisher, realtime.ConversationChannel(conv.ID), realtime.EventNewOffer, payload)
	realtime.Notify(ctx, s.publisher, realtime.ItemChannel(conv.ItemID), realtime.EventNewOffer, payload)
	return offer, nil
}

// AcceptOffer aceita a oferta pendente e marca o item como SOLD, juntos
func (s *OfferService) AcceptOffer(ctx context.Context, offerID, sellerID uuid.UUID) (*models.Offer, error) {
	offer, err := s.store.GetOffer(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if offer.SellerID != sellerID {
		return nil, fmt.Errorf("apenas o vendedor pode aceitar a oferta: %w", models.ErrForbidden)
	}

	accepted, err := s.store.AcceptOffer(ctx, offerID)
	if err != nil {
		return nil, err
	}

	metrics.OffersAccepted.Inc()
	log.Infow("oferta aceita", "offer", accepted.ID, "item", accepted.ItemID)

	payload := map[string]any{
		"conversationId": accepted.ConversationID,
		"itemId":         accepted.ItemID,
		"offerId":        accepted.ID,
	}
	realtime.Notify(ctx, s.publisher, realtime.ConversationChannel(accepted.ConversationID), realtime.EventOfferAccepted, payload)
	realtime.Notify(ctx, s.publisher, realtime.ItemChannel(accepted.ItemID), realtime.EventOfferAccepted, payload)
	return accepted, nil
}

// GetOfferStatus devolve a oferta aceita do item, ou nil se não houver
func (s *OfferService) GetOfferStatus(ctx context.Context, itemID uuid.UUID) (*models.Offer, error) {
	offer, err := s.store.GetAcceptedOffer(ctx, itemID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, nil
	}
	return offer, err
}

// ListForConversation lista as ofertas da conversa para um participante
func (s *OfferService) ListForConversation(ctx context.Context, conversationID, callerID uuid.UUID) ([]*models.Offer, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(callerID) {
		return nil, fmt.Errorf("usuário não participa da conversa: %w", models.ErrForbidden)
	}
	return s.store.ListOffersForConversation(ctx, conversationID)
}
