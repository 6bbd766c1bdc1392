package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"bazaar-backend/internal/chain"
	"bazaar-backend/internal/metrics"
	"bazaar-backend/internal/models"
	"bazaar-backend/internal/realtime"
	"bazaar-backend/internal/repository"

	"github.com/google/uuid"
)

// TransferVerifier confere no ledger a transferência informada pelo comprador
type TransferVerifier interface {
	Enabled(chainID int64) bool
	Inspect(ctx context.Context, t chain.Transfer) (chain.Verdict, error)
}

// SettlementService registra o pagamento de um item com oferta aceita
type SettlementService struct {
	store     repository.Store
	verifier  TransferVerifier
	publisher realtime.Publisher
}

// NewSettlementService cria o coordenador de pagamentos. verifier pode ser
// nil: nesse caso a referência do cliente é aceita como confirmada.
func NewSettlementService(store repository.Store, verifier TransferVerifier, publisher realtime.Publisher) *SettlementService {
	return &SettlementService{store: store, verifier: verifier, publisher: publisher}
}

// expectedTransfer monta o pagamento que a oferta aceita exige
func expectedTransfer(ctx context.Context, users repository.UserStore, offer *models.Offer, ref string) (chain.Transfer, error) {
	buyer, err := users.GetUserByID(ctx, offer.BuyerID)
	if err != nil {
		return chain.Transfer{}, err
	}
	seller, err := users.GetUserByID(ctx, offer.SellerID)
	if err != nil {
		return chain.Transfer{}, err
	}
	return chain.Transfer{
		ChainID: offer.ChainID,
		TxHash:  ref,
		From:    buyer.Address,
		To:      seller.Address,
		Amount:  offer.Amount,
	}, nil
}

// RecordSettlement grava a referência da transferência do comprador.
// Uma única consulta ao ledger é feita antes de gravar: transferência
// revertida ou divergente da oferta falha com ErrTransferFailed e nada muda.
// Se ainda não estiver final, o pagamento fica UNCONFIRMED para o Confirmer.
func (s *SettlementService) RecordSettlement(ctx context.Context, itemID, buyerID uuid.UUID, txRef string) (*models.Item, error) {
	item, err := s.store.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}

	offer, err := s.store.GetAcceptedOffer(ctx, itemID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("item '%s' sem oferta aceita: %w", itemID, models.ErrInvalidState)
		}
		return nil, err
	}
	if offer.BuyerID != buyerID {
		return nil, fmt.Errorf("apenas o comprador da oferta aceita pode pagar: %w", models.ErrForbidden)
	}
	if item.HasSettlement() {
		return nil, fmt.Errorf("item '%s' já possui pagamento registrado: %w", itemID, models.ErrConflict)
	}

	ref := strings.ToLower(strings.TrimSpace(txRef))
	if !chain.ValidTxHash(ref) {
		return nil, fmt.Errorf("referência de transação inválida: %w", models.ErrInvalidInput)
	}

	status := models.SettlementConfirmed
	if s.verifier != nil && s.verifier.Enabled(offer.ChainID) {
		status, err = s.inspect(ctx, offer, ref)
		if err != nil {
			return nil, err
		}
	}

	recorded, err := s.store.RecordSettlement(ctx, models.Settlement{
		ItemID:  itemID,
		Ref:     ref,
		ChainID: offer.ChainID,
		Status:  status,
	})
	if err != nil {
		return nil, err
	}

	metrics.SettlementsRecorded.WithLabelValues(string(status)).Inc()
	log.Infow("pagamento registrado", "item", itemID, "ref", ref, "chain", offer.ChainID, "status", status)

	payload := map[string]any{
		"itemId":           itemID,
		"offerId":          offer.ID,
		"settlementStatus": status,
	}
	realtime.Notify(ctx, s.publisher, realtime.ItemChannel(itemID), realtime.EventSettlementRecorded, payload)
	realtime.Notify(ctx, s.publisher, realtime.ConversationChannel(offer.ConversationID), realtime.EventSettlementRecorded, payload)
	return recorded, nil
}

func (s *SettlementService) inspect(ctx context.Context, offer *models.Offer, ref string) (models.SettlementStatus, error) {
	transfer, err := expectedTransfer(ctx, s.store, offer, ref)
	if err != nil {
		return "", err
	}

	verdict, err := s.verifier.Inspect(ctx, transfer)
	if err != nil {
		// Falha de transporte não é recusa: o Confirmer tenta de novo depois
		log.Warnw("ledger indisponível, pagamento fica pendente", "item", offer.ItemID, "ref", ref, "error", err)
		return models.SettlementUnconfirmed, nil
	}

	switch verdict.Status {
	case chain.StatusFailed:
		metrics.SettlementsRejected.Inc()
		return "", fmt.Errorf("%s: %w", verdict.Reason, models.ErrTransferFailed)
	case chain.StatusConfirmed:
		return models.SettlementConfirmed, nil
	default:
		return models.SettlementUnconfirmed, nil
	}
}
