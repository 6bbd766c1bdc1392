package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"bazaar-backend/internal/models"

	"github.com/google/uuid"
)

type conversationKey struct {
	itemID  uuid.UUID
	buyerID uuid.UUID
}

// InMemoryStore é uma implementação em-memória da interface Store.
// Um único RWMutex torna cada operação atômica, o que reproduz as garantias
// de transação do PostgresStore para testes e desenvolvimento local.
type InMemoryStore struct {
	mu sync.RWMutex

	usersByID        map[uuid.UUID]*models.User
	usersByAddress   map[string]*models.User
	usersByNullifier map[string]uuid.UUID

	items map[uuid.UUID]*models.Item
	// referência de pagamento -> item
	settlementRefs map[string]uuid.UUID

	conversations      map[uuid.UUID]*models.Conversation
	conversationsByKey map[conversationKey]uuid.UUID
	messages           map[uuid.UUID][]*models.Message

	offers   map[uuid.UUID]*models.Offer
	feedback map[uuid.UUID]*models.Feedback

	now func() time.Time
}

var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore cria uma nova instância do store em memória
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		usersByID:          make(map[uuid.UUID]*models.User),
		usersByAddress:     make(map[string]*models.User),
		usersByNullifier:   make(map[string]uuid.UUID),
		items:              make(map[uuid.UUID]*models.Item),
		settlementRefs:     make(map[string]uuid.UUID),
		conversations:      make(map[uuid.UUID]*models.Conversation),
		conversationsByKey: make(map[conversationKey]uuid.UUID),
		messages:           make(map[uuid.UUID][]*models.Message),
		offers:             make(map[uuid.UUID]*models.Offer),
		feedback:           make(map[uuid.UUID]*models.Feedback),
		now:                time.Now,
	}
}

func copyUser(u *models.User) *models.User {
	c := *u
	return &c
}

func copyItem(i *models.Item) *models.Item {
	c := *i
	return &c
}

func copyOffer(o *models.Offer) *models.Offer {
	c := *o
	return &c
}

func copyConversation(c *models.Conversation) *models.Conversation {
	cc := *c
	return &cc
}

// --- UserStore ---

func (s *InMemoryStore) CreateUserIfAbsent(ctx context.Context, user *models.User) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.usersByAddress[user.Address]; ok {
		return copyUser(existing), nil
	}

	stored := copyUser(user)
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = s.now()
	}
	s.usersByID[stored.ID] = stored
	s.usersByAddress[stored.Address] = stored
	return copyUser(stored), nil
}

func (s *InMemoryStore) GetUserByAddress(ctx context.Context, address string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.usersByAddress[address]
	if !exists {
		return nil, fmt.Errorf("usuário '%s' %w", address, models.ErrNotFound)
	}
	return copyUser(user), nil
}

func (s *InMemoryStore) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.usersByID[id]
	if !exists {
		return nil, fmt.Errorf("usuário com ID '%s' %w", id, models.ErrNotFound)
	}
	return copyUser(user), nil
}

func (s *InMemoryStore) UpdateUserProfile(ctx context.Context, id uuid.UUID, upd models.ProfileUpdate) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.usersByID[id]
	if !exists {
		return nil, fmt.Errorf("usuário com ID '%s' %w", id, models.ErrNotFound)
	}
	if upd.Username != nil {
		user.Username = *upd.Username
	}
	if upd.Bio != nil {
		user.Bio = *upd.Bio
	}
	if upd.AvatarURL != nil {
		user.AvatarURL = *upd.AvatarURL
	}
	return copyUser(user), nil
}

func (s *InMemoryStore) SetHumanityProof(ctx context.Context, id uuid.UUID, proof models.HumanityProof) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.usersByID[id]
	if !exists {
		return nil, fmt.Errorf("usuário com ID '%s' %w", id, models.ErrNotFound)
	}
	if owner, taken := s.usersByNullifier[proof.NullifierHash]; taken && owner != id {
		return nil, fmt.Errorf("nullifier já vinculado a outro usuário: %w", models.ErrConflict)
	}

	if user.NullifierHash != nil {
		delete(s.usersByNullifier, *user.NullifierHash)
	}
	now := s.now()
	user.NullifierHash = &proof.NullifierHash
	user.MerkleRoot = &proof.MerkleRoot
	user.VerificationLevel = &proof.VerificationLevel
	user.VerifiedAt = &now
	s.usersByNullifier[proof.NullifierHash] = id
	return copyUser(user), nil
}

// --- ItemStore ---

func (s *InMemoryStore) CreateItem(ctx context.Context, item *models.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByID[item.SellerID]; !exists {
		return fmt.Errorf("vendedor '%s' %w", item.SellerID, models.ErrNotFound)
	}
	now := s.now()
	item.CreatedAt = now
	item.UpdatedAt = now
	s.items[item.ID] = copyItem(item)
	return nil
}

func (s *InMemoryStore) GetItem(ctx context.Context, id uuid.UUID) (*models.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, exists := s.items[id]
	if !exists {
		return nil, fmt.Errorf("item '%s' %w", id, models.ErrNotFound)
	}
	return copyItem(item), nil
}

func (s *InMemoryStore) UpdateItemListing(ctx context.Context, id, sellerID uuid.UUID, listing models.ItemListing) (*models.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, exists := s.items[id]
	if !exists {
		return nil, fmt.Errorf("item '%s' %w", id, models.ErrNotFound)
	}
	if item.SellerID != sellerID {
		return nil, fmt.Errorf("item '%s' pertence a outro vendedor: %w", id, models.ErrForbidden)
	}
	if item.Status != models.ItemAvailable {
		return nil, fmt.Errorf("item '%s' não está mais disponível: %w", id, models.ErrInvalidState)
	}

	item.Title = listing.Title
	item.Description = listing.Description
	item.Price = listing.Price
	item.ImageURL = listing.ImageURL
	item.Location = listing.Location
	item.UpdatedAt = s.now()
	return copyItem(item), nil
}

func (s *InMemoryStore) ListItemsBySeller(ctx context.Context, sellerID uuid.UUID) ([]*models.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := []*models.Item{}
	for _, item := range s.items {
		if item.SellerID == sellerID {
			items = append(items, copyItem(item))
		}
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	return items, nil
}

// --- ConversationStore ---

func (s *InMemoryStore) GetOrCreateConversation(ctx context.Context, conv *models.Conversation) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := conversationKey{itemID: conv.ItemID, buyerID: conv.BuyerID}
	if id, exists := s.conversationsByKey[key]; exists {
		return copyConversation(s.conversations[id]), nil
	}

	stored := copyConversation(conv)
	stored.CreatedAt = s.now()
	s.conversations[stored.ID] = stored
	s.conversationsByKey[key] = stored.ID
	return copyConversation(stored), nil
}

func (s *InMemoryStore) GetConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, exists := s.conversations[id]
	if !exists {
		return nil, fmt.Errorf("conversa '%s' %w", id, models.ErrNotFound)
	}
	return copyConversation(conv), nil
}

func (s *InMemoryStore) ListConversationsForUser(ctx context.Context, userID uuid.UUID) ([]*models.ConversationSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summaries := []*models.ConversationSummary{}
	for _, conv := range s.conversations {
		if !conv.HasParticipant(userID) {
			continue
		}
		summary := &models.ConversationSummary{Conversation: *conv}
		if msgs := s.messages[conv.ID]; len(msgs) > 0 {
			last := *msgs[len(msgs)-1]
			summary.LastMessage = &last
		}
		summaries = append(summaries, summary)
	}
	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].LastActivity().After(summaries[j].LastActivity())
	})
	return summaries, nil
}

func (s *InMemoryStore) ListConversationsForItem(ctx context.Context, itemID uuid.UUID) ([]*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	convs := []*models.Conversation{}
	for _, conv := range s.conversations {
		if conv.ItemID == itemID {
			convs = append(convs, copyConversation(conv))
		}
	}
	return convs, nil
}

func (s *InMemoryStore) CreateMessage(ctx context.Context, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.conversations[msg.ConversationID]; !exists {
		return fmt.Errorf("conversa '%s' %w", msg.ConversationID, models.ErrNotFound)
	}

	// O horário é atribuído aqui e nunca retrocede dentro da conversa
	createdAt := s.now()
	if msgs := s.messages[msg.ConversationID]; len(msgs) > 0 {
		if last := msgs[len(msgs)-1].CreatedAt; !createdAt.After(last) {
			createdAt = last.Add(time.Microsecond)
		}
	}
	msg.CreatedAt = createdAt

	stored := *msg
	s.messages[msg.ConversationID] = append(s.messages[msg.ConversationID], &stored)
	return nil
}

func (s *InMemoryStore) ListMessages(ctx context.Context, conversationID uuid.UUID) ([]*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.messages[conversationID]
	out := make([]*models.Message, 0, len(msgs))
	for _, m := range msgs {
		c := *m
		out = append(out, &c)
	}
	return out, nil
}

// --- OfferStore ---

func (s *InMemoryStore) ProposeOffer(ctx context.Context, offer *models.Offer) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, exists := s.items[offer.ItemID]
	if !exists {
		return 0, fmt.Errorf("item '%s' %w", offer.ItemID, models.ErrNotFound)
	}
	if item.Status != models.ItemAvailable {
		return 0, fmt.Errorf("item '%s' não aceita novas ofertas: %w", offer.ItemID, models.ErrInvalidState)
	}

	superseded := 0
	for id, other := range s.offers {
		if other.ItemID == offer.ItemID && other.Status == models.OfferPending {
			delete(s.offers, id)
			superseded++
		}
	}

	now := s.now()
	offer.Status = models.OfferPending
	offer.CreatedAt = now
	offer.UpdatedAt = now
	s.offers[offer.ID] = copyOffer(offer)
	return superseded, nil
}

func (s *InMemoryStore) AcceptOffer(ctx context.Context, offerID uuid.UUID) (*models.Offer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	offer, exists := s.offers[offerID]
	if !exists {
		return nil, fmt.Errorf("oferta '%s' %w", offerID, models.ErrNotFound)
	}
	if offer.Status != models.OfferPending {
		return nil, fmt.Errorf("oferta '%s' está %s: %w", offerID, offer.Status, models.ErrInvalidState)
	}
	item, exists := s.items[offer.ItemID]
	if !exists {
		return nil, fmt.Errorf("item '%s' %w", offer.ItemID, models.ErrNotFound)
	}
	if item.Status != models.ItemAvailable {
		return nil, fmt.Errorf("item '%s' está %s: %w", item.ID, item.Status, models.ErrInvalidState)
	}

	now := s.now()
	offer.Status = models.OfferAccepted
	offer.UpdatedAt = now
	item.Status = models.ItemSold
	item.UpdatedAt = now
	return copyOffer(offer), nil
}

func (s *InMemoryStore) GetOffer(ctx context.Context, id uuid.UUID) (*models.Offer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	offer, exists := s.offers[id]
	if !exists {
		return nil, fmt.Errorf("oferta '%s' %w", id, models.ErrNotFound)
	}
	return copyOffer(offer), nil
}

func (s *InMemoryStore) GetAcceptedOffer(ctx context.Context, itemID uuid.UUID) (*models.Offer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, offer := range s.offers {
		if offer.ItemID == itemID && offer.Status == models.OfferAccepted {
			return copyOffer(offer), nil
		}
	}
	return nil, fmt.Errorf("oferta aceita para o item '%s' %w", itemID, models.ErrNotFound)
}

func (s *InMemoryStore) listOffers(match func(*models.Offer) bool) []*models.Offer {
	offers := []*models.Offer{}
	for _, offer := range s.offers {
		if match(offer) {
			offers = append(offers, copyOffer(offer))
		}
	}
	sort.Slice(offers, func(i, j int) bool {
		return offers[i].CreatedAt.Before(offers[j].CreatedAt)
	})
	return offers
}

func (s *InMemoryStore) ListOffersForItem(ctx context.Context, itemID uuid.UUID) ([]*models.Offer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.listOffers(func(o *models.Offer) bool { return o.ItemID == itemID }), nil
}

func (s *InMemoryStore) ListOffersForConversation(ctx context.Context, conversationID uuid.UUID) ([]*models.Offer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.listOffers(func(o *models.Offer) bool { return o.ConversationID == conversationID }), nil
}

// --- SettlementStore ---

func (s *InMemoryStore) RecordSettlement(ctx context.Context, st models.Settlement) (*models.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, exists := s.items[st.ItemID]
	if !exists {
		return nil, fmt.Errorf("item '%s' %w", st.ItemID, models.ErrNotFound)
	}
	if item.SettlementRef != nil {
		return nil, fmt.Errorf("item '%s' já possui pagamento registrado: %w", st.ItemID, models.ErrConflict)
	}
	if owner, used := s.settlementRefs[st.Ref]; used && owner != st.ItemID {
		return nil, fmt.Errorf("referência '%s' já usada em outro item: %w", st.Ref, models.ErrConflict)
	}

	accepted := false
	for _, offer := range s.offers {
		if offer.ItemID == st.ItemID && offer.Status == models.OfferAccepted {
			accepted = true
			break
		}
	}
	if !accepted {
		return nil, fmt.Errorf("item '%s' sem oferta aceita: %w", st.ItemID, models.ErrInvalidState)
	}

	now := s.now()
	ref := st.Ref
	chainID := st.ChainID
	status := st.Status
	item.Status = models.ItemSold
	item.SettlementRef = &ref
	item.SettlementChainID = &chainID
	item.SettlementStatus = &status
	item.SettledAt = &now
	item.UpdatedAt = now
	s.settlementRefs[ref] = item.ID
	return copyItem(item), nil
}

func (s *InMemoryStore) ListUnconfirmedSettlements(ctx context.Context, limit int) ([]*models.PendingSettlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pending := []*models.PendingSettlement{}
	for _, item := range s.items {
		if item.SettlementStatus == nil || *item.SettlementStatus != models.SettlementUnconfirmed {
			continue
		}
		for _, offer := range s.offers {
			if offer.ItemID == item.ID && offer.Status == models.OfferAccepted {
				pending = append(pending, &models.PendingSettlement{Item: copyItem(item), Offer: copyOffer(offer)})
				break
			}
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].Item.SettledAt.Before(*pending[j].Item.SettledAt)
	})
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

func (s *InMemoryStore) ConfirmSettlement(ctx context.Context, itemID uuid.UUID, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, exists := s.items[itemID]
	if !exists {
		return fmt.Errorf("item '%s' %w", itemID, models.ErrNotFound)
	}
	if item.SettlementRef == nil || *item.SettlementRef != ref {
		return fmt.Errorf("referência '%s' não é mais a do item '%s': %w", ref, itemID, models.ErrConflict)
	}
	status := models.SettlementConfirmed
	item.SettlementStatus = &status
	item.UpdatedAt = s.now()
	return nil
}

func (s *InMemoryStore) RevokeSettlement(ctx context.Context, itemID uuid.UUID, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, exists := s.items[itemID]
	if !exists {
		return fmt.Errorf("item '%s' %w", itemID, models.ErrNotFound)
	}
	if item.SettlementRef == nil || *item.SettlementRef != ref {
		return fmt.Errorf("referência '%s' não é mais a do item '%s': %w", ref, itemID, models.ErrConflict)
	}
	delete(s.settlementRefs, ref)
	item.SettlementRef = nil
	item.SettlementChainID = nil
	item.SettlementStatus = nil
	item.SettledAt = nil
	item.UpdatedAt = s.now()
	return nil
}

// --- FeedbackStore ---

func (s *InMemoryStore) CreateFeedback(ctx context.Context, fb *models.Feedback) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.feedback[fb.ItemID]; exists {
		return fmt.Errorf("item '%s' já possui avaliação: %w", fb.ItemID, models.ErrConflict)
	}
	fb.CreatedAt = s.now()
	stored := *fb
	s.feedback[fb.ItemID] = &stored
	return nil
}

func (s *InMemoryStore) GetFeedbackByItem(ctx context.Context, itemID uuid.UUID) (*models.Feedback, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fb, exists := s.feedback[itemID]
	if !exists {
		return nil, fmt.Errorf("avaliação do item '%s' %w", itemID, models.ErrNotFound)
	}
	c := *fb
	return &c, nil
}
