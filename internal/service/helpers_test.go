package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"bazaar-backend/internal/chain"
	"bazaar-backend/internal/models"
	"bazaar-backend/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	celo     int64 = 44787
	validRef       = "0x1111111111111111111111111111111111111111111111111111111111111111"
)

type published struct {
	Channel string
	Event   string
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *recordingPublisher) Publish(ctx context.Context, channel, event string, data any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{Channel: channel, Event: event})
	return nil
}

func (p *recordingPublisher) has(channel, event string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.events {
		if e.Channel == channel && e.Event == event {
			return true
		}
	}
	return false
}

type fakeVerifier struct {
	mu      sync.Mutex
	enabled bool
	verdict chain.Verdict
	err     error
	calls   []chain.Transfer
}

func (f *fakeVerifier) Enabled(chainID int64) bool {
	return f.enabled
}

func (f *fakeVerifier) Inspect(ctx context.Context, t chain.Transfer) (chain.Verdict, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, t)
	return f.verdict, f.err
}

func (f *fakeVerifier) set(status chain.Status, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verdict = chain.Verdict{Status: status, Reason: "teste"}
	f.err = err
}

func (f *fakeVerifier) setVerdict(v chain.Verdict) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verdict = v
	f.err = nil
}

type testEnv struct {
	ctx       context.Context
	store     *repository.InMemoryStore
	pub       *recordingPublisher
	verifier  *fakeVerifier
	users     *UserService
	items     *ItemService
	convs     *ConversationService
	offers    *OfferService
	settle    *SettlementService
	feedback  *FeedbackService
	confirmer *Confirmer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := repository.NewInMemoryStore()
	pub := &recordingPublisher{}
	verifier := &fakeVerifier{}
	users := NewUserService(store, 128, time.Minute, nil)

	return &testEnv{
		ctx:       context.Background(),
		store:     store,
		pub:       pub,
		verifier:  verifier,
		users:     users,
		items:     NewItemService(store, users),
		convs:     NewConversationService(store, pub),
		offers:    NewOfferService(store, chain.DefaultRegistry(), pub),
		settle:    NewSettlementService(store, verifier, pub),
		feedback:  NewFeedbackService(store, pub),
		confirmer: NewConfirmer(store, verifier, pub, time.Second, time.Hour),
	}
}

var addressSeq int

func (e *testEnv) newUser(t *testing.T) *models.User {
	t.Helper()
	addressSeq++
	addr := fmt.Sprintf("0x%040x", addressSeq)
	u, err := e.users.ResolveUser(e.ctx, addr)
	require.NoError(t, err)
	return u
}

func (e *testEnv) newItem(t *testing.T, seller *models.User, price string) *models.Item {
	t.Helper()
	item, err := e.items.CreateItem(e.ctx, seller.ID, models.ItemListing{
		Title:       "Bicicleta",
		Description: "Aro 29",
		Price:       decimal.RequireFromString(price),
	})
	require.NoError(t, err)
	return item
}

func (e *testEnv) newConversation(t *testing.T, item *models.Item, buyer *models.User) *models.Conversation {
	t.Helper()
	conv, err := e.convs.GetOrCreate(e.ctx, item.ID, buyer.ID)
	require.NoError(t, err)
	return conv
}

func (e *testEnv) offer(t *testing.T, conv *models.Conversation, amount string) *models.Offer {
	t.Helper()
	o, err := e.offers.MakeOffer(e.ctx, conv.ID, conv.BuyerID, decimal.RequireFromString(amount), celo)
	require.NoError(t, err)
	return o
}

// soldItem monta o cenário até a oferta aceita
func (e *testEnv) soldItem(t *testing.T) (seller, buyer *models.User, item *models.Item, offer *models.Offer) {
	t.Helper()
	seller = e.newUser(t)
	buyer = e.newUser(t)
	item = e.newItem(t, seller, "100")
	conv := e.newConversation(t, item, buyer)
	offer = e.offer(t, conv, "80")
	_, err := e.offers.AcceptOffer(e.ctx, offer.ID, seller.ID)
	require.NoError(t, err)
	return seller, buyer, item, offer
}

// assertItemInvariants confere: no máximo uma oferta ACCEPTED, no máximo uma
// oferta viva, e SOLD se e somente se houver oferta aceita ou pagamento.
func assertItemInvariants(t *testing.T, e *testEnv, itemID uuid.UUID) {
	t.Helper()
	item, err := e.store.GetItem(e.ctx, itemID)
	require.NoError(t, err)
	offers, err := e.store.ListOffersForItem(e.ctx, itemID)
	require.NoError(t, err)

	accepted, pending := 0, 0
	for _, o := range offers {
		switch o.Status {
		case models.OfferAccepted:
			accepted++
		case models.OfferPending:
			pending++
		}
	}
	assert.LessOrEqual(t, accepted, 1, "mais de uma oferta aceita")
	assert.LessOrEqual(t, accepted+pending, 1, "mais de uma oferta viva")

	sold := item.Status == models.ItemSold
	assert.Equal(t, accepted == 1 || item.HasSettlement(), sold, "status do item inconsistente")
}

func addr(c byte) string {
	return "0x" + strings.Repeat(string(c), 40)
}
