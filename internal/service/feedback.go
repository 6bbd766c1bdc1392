package service

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"bazaar-backend/internal/auth"
	"bazaar-backend/internal/metrics"
	"bazaar-backend/internal/models"
	"bazaar-backend/internal/realtime"
	"bazaar-backend/internal/repository"

	"github.com/google/uuid"
)

const maxCommentLength = 1000

// FeedbackService guarda a avaliação única do comprador depois da venda
type FeedbackService struct {
	store     repository.Store
	publisher realtime.Publisher
}

// NewFeedbackService cria o serviço de avaliações
func NewFeedbackService(store repository.Store, publisher realtime.Publisher) *FeedbackService {
	return &FeedbackService{store: store, publisher: publisher}
}

// FeedbackInput são os dados enviados pelo comprador
type FeedbackInput struct {
	Rating       int
	Comment      string
	Signature    string
	ProofTokenID *string
}

// FeedbackPayload é o texto canônico que a carteira do comprador assina
type FeedbackPayload struct {
	Message string `json:"message"`
	Digest  string `json:"digest"`
}

// CanonicalPayload monta o texto a ser assinado para a avaliação
func CanonicalPayload(itemID uuid.UUID, rating int, comment string) FeedbackPayload {
	msg := fmt.Sprintf("Bazaar feedback\nitem: %s\nrating: %d\ncomment: %s", itemID, rating, strings.TrimSpace(comment))
	return FeedbackPayload{
		Message: msg,
		Digest:  "0x" + hex.EncodeToString(auth.Keccak256([]byte(msg))),
	}
}

// Payload devolve o texto canônico de um item existente
func (s *FeedbackService) Payload(ctx context.Context, itemID uuid.UUID, rating int, comment string) (*FeedbackPayload, error) {
	if _, err := s.store.GetItem(ctx, itemID); err != nil {
		return nil, err
	}
	if rating < 1 || rating > 5 {
		return nil, fmt.Errorf("nota deve estar entre 1 e 5: %w", models.ErrInvalidInput)
	}
	p := CanonicalPayload(itemID, rating, comment)
	return &p, nil
}

// AddFeedback grava a avaliação. A assinatura é guardada sem verificação.
func (s *FeedbackService) AddFeedback(ctx context.Context, itemID, buyerID uuid.UUID, in FeedbackInput) (*models.Feedback, error) {
	item, err := s.store.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item.Status != models.ItemSold || !item.HasSettlement() {
		return nil, fmt.Errorf("item '%s' ainda não foi pago: %w", itemID, models.ErrInvalidState)
	}
	if item.SettlementStatus == nil || *item.SettlementStatus != models.SettlementConfirmed {
		return nil, fmt.Errorf("pagamento do item '%s' ainda não foi confirmado: %w", itemID, models.ErrInvalidState)
	}

	offer, err := s.store.GetAcceptedOffer(ctx, itemID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("item '%s' sem oferta aceita: %w", itemID, models.ErrInvalidState)
		}
		return nil, err
	}
	if offer.BuyerID != buyerID {
		return nil, fmt.Errorf("apenas o comprador pode avaliar: %w", models.ErrForbidden)
	}

	if in.Rating < 1 || in.Rating > 5 {
		return nil, fmt.Errorf("nota deve estar entre 1 e 5: %w", models.ErrInvalidInput)
	}
	if strings.TrimSpace(in.Signature) == "" {
		return nil, fmt.Errorf("assinatura é obrigatória: %w", models.ErrInvalidInput)
	}
	comment := strings.TrimSpace(in.Comment)
	if utf8.RuneCountInString(comment) > maxCommentLength {
		return nil, fmt.Errorf("comentário com mais de %d caracteres: %w", maxCommentLength, models.ErrInvalidInput)
	}

	fb := &models.Feedback{
		ID:           uuid.New(),
		ItemID:       itemID,
		BuyerID:      buyerID,
		SellerID:     item.SellerID,
		Rating:       in.Rating,
		Comment:      comment,
		Signature:    strings.TrimSpace(in.Signature),
		ProofTokenID: in.ProofTokenID,
	}
	if err := s.store.CreateFeedback(ctx, fb); err != nil {
		return nil, err
	}
	metrics.FeedbackCreated.Inc()

	realtime.Notify(ctx, s.publisher, realtime.ItemChannel(itemID), realtime.EventFeedbackAdded, map[string]any{
		"itemId":     itemID,
		"feedbackId": fb.ID,
	})
	return fb, nil
}

// GetFeedback busca a avaliação do item
func (s *FeedbackService) GetFeedback(ctx context.Context, itemID uuid.UUID) (*models.Feedback, error) {
	return s.store.GetFeedbackByItem(ctx, itemID)
}
