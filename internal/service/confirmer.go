package service

import (
	"context"
	"errors"
	"time"

	"bazaar-backend/internal/chain"
	"bazaar-backend/internal/metrics"
	"bazaar-backend/internal/models"
	"bazaar-backend/internal/realtime"
	"bazaar-backend/internal/repository"

	"github.com/google/uuid"
	"github.com/jpillora/backoff"
)

const confirmerBatch = 100

type pendingCheck struct {
	ref  string
	bo   *backoff.Backoff
	next time.Time
}

// Confirmer confere em segundo plano os pagamentos UNCONFIRMED.
// Confirmado vira CONFIRMED; recusado, ou sem recibo depois de
// receiptTimeout, tem a referência apagada para o comprador tentar de novo.
// Cada item tem seu próprio backoff.
type Confirmer struct {
	store     repository.Store
	verifier  TransferVerifier
	publisher realtime.Publisher
	interval  time.Duration
	maxWait   time.Duration
	// receiptTimeout conta a partir de SettledAt
	receiptTimeout time.Duration
	now            func() time.Time

	checks map[uuid.UUID]*pendingCheck
}

// NewConfirmer cria o confirmador
func NewConfirmer(store repository.Store, verifier TransferVerifier, publisher realtime.Publisher, interval, receiptTimeout time.Duration) *Confirmer {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if receiptTimeout <= 0 {
		receiptTimeout = 24 * time.Hour
	}
	return &Confirmer{
		store:          store,
		verifier:       verifier,
		publisher:      publisher,
		interval:       interval,
		maxWait:        10 * time.Minute,
		receiptTimeout: receiptTimeout,
		now:            time.Now,
		checks:         make(map[uuid.UUID]*pendingCheck),
	}
}

// Run roda até o contexto ser cancelado
func (c *Confirmer) Run(ctx context.Context) error {
	log.Infow("confirmador de pagamentos iniciado", "interval", c.interval)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		if err := c.Tick(ctx); err != nil && ctx.Err() == nil {
			log.Errorw("falha na rodada do confirmador", "error", err)
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil
		}
	}
}

// Tick faz uma rodada: consulta cada pagamento pendente cujo backoff venceu
func (c *Confirmer) Tick(ctx context.Context) error {
	pending, err := c.store.ListUnconfirmedSettlements(ctx, confirmerBatch)
	if err != nil {
		return err
	}

	seen := make(map[uuid.UUID]struct{}, len(pending))
	now := c.now()
	for _, p := range pending {
		if p.Item.SettlementRef == nil {
			continue
		}
		itemID, ref := p.Item.ID, *p.Item.SettlementRef
		seen[itemID] = struct{}{}

		check, ok := c.checks[itemID]
		if !ok || check.ref != ref {
			check = &pendingCheck{
				ref: ref,
				bo:  &backoff.Backoff{Min: c.interval, Max: c.maxWait, Factor: 2, Jitter: true},
			}
			c.checks[itemID] = check
		}
		if now.Before(check.next) {
			continue
		}

		done := c.check(ctx, p, ref, now)
		if done {
			delete(c.checks, itemID)
			continue
		}
		check.next = now.Add(check.bo.Duration())
	}

	for id := range c.checks {
		if _, ok := seen[id]; !ok {
			delete(c.checks, id)
		}
	}
	return nil
}

// check devolve true quando o pagamento saiu do estado UNCONFIRMED
func (c *Confirmer) check(ctx context.Context, p *models.PendingSettlement, ref string, now time.Time) bool {
	itemID := p.Item.ID

	// Rede sem verificação: a referência do cliente é aceita
	if c.verifier == nil || !c.verifier.Enabled(p.Offer.ChainID) {
		return c.confirm(ctx, p, ref)
	}

	transfer, err := expectedTransfer(ctx, c.store, p.Offer, ref)
	if err != nil {
		log.Errorw("falha ao montar transferência esperada", "item", itemID, "error", err)
		metrics.SettlementChecks.WithLabelValues("error").Inc()
		return false
	}

	verdict, err := c.verifier.Inspect(ctx, transfer)
	if err != nil {
		log.Warnw("falha ao consultar ledger", "item", itemID, "ref", ref, "error", err)
		metrics.SettlementChecks.WithLabelValues("error").Inc()
		return false
	}
	metrics.SettlementChecks.WithLabelValues(verdict.Status.String()).Inc()

	switch verdict.Status {
	case chain.StatusConfirmed:
		return c.confirm(ctx, p, ref)
	case chain.StatusFailed:
		return c.revoke(ctx, p, ref, verdict.Reason)
	default:
		// Transação descartada, substituída ou inventada nunca ganha recibo
		if !verdict.Mined && p.Item.SettledAt != nil && now.Sub(*p.Item.SettledAt) >= c.receiptTimeout {
			return c.revoke(ctx, p, ref, "recibo não encontrado após "+c.receiptTimeout.String())
		}
		return false
	}
}

func (c *Confirmer) confirm(ctx context.Context, p *models.PendingSettlement, ref string) bool {
	err := c.store.ConfirmSettlement(ctx, p.Item.ID, ref)
	if err != nil && !errors.Is(err, models.ErrConflict) {
		log.Errorw("falha ao confirmar pagamento", "item", p.Item.ID, "error", err)
		return false
	}
	if err == nil {
		log.Infow("pagamento confirmado", "item", p.Item.ID, "ref", ref)
		c.notify(ctx, p, models.SettlementConfirmed)
	}
	return true
}

func (c *Confirmer) revoke(ctx context.Context, p *models.PendingSettlement, ref, reason string) bool {
	err := c.store.RevokeSettlement(ctx, p.Item.ID, ref)
	if err != nil && !errors.Is(err, models.ErrConflict) {
		log.Errorw("falha ao revogar pagamento", "item", p.Item.ID, "error", err)
		return false
	}
	if err == nil {
		log.Warnw("pagamento recusado pelo ledger, referência apagada", "item", p.Item.ID, "ref", ref, "reason", reason)
		c.notify(ctx, p, "")
	}
	return true
}

func (c *Confirmer) notify(ctx context.Context, p *models.PendingSettlement, status models.SettlementStatus) {
	payload := map[string]any{
		"itemId":  p.Item.ID,
		"offerId": p.Offer.ID,
	}
	if status != "" {
		payload["settlementStatus"] = status
	}
	realtime.Notify(ctx, c.publisher, realtime.ItemChannel(p.Item.ID), realtime.EventSettlementRecorded, payload)
	realtime.Notify(ctx, c.publisher, realtime.ConversationChannel(p.Offer.ConversationID), realtime.EventSettlementRecorded, payload)
}
