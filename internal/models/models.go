package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ItemStatus é o ciclo de vida de um anúncio
type ItemStatus string

const (
	ItemAvailable ItemStatus = "AVAILABLE"
	ItemSold      ItemStatus = "SOLD"
)

// OfferStatus é o estado de uma oferta
type OfferStatus string

const (
	OfferPending  OfferStatus = "PENDING"
	OfferAccepted OfferStatus = "ACCEPTED"
)

// SettlementStatus indica se a referência de pagamento já foi confirmada na rede
type SettlementStatus string

const (
	SettlementUnconfirmed SettlementStatus = "UNCONFIRMED"
	SettlementConfirmed   SettlementStatus = "CONFIRMED"
)

// User representa um usuário identificado pela carteira
type User struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Address   string    `json:"address" db:"address"`
	Username  string    `json:"username" db:"username"`
	Bio       string    `json:"bio" db:"bio"`
	AvatarURL string    `json:"avatarUrl" db:"avatar_url"`

	// Prova de humanidade (opcional)
	NullifierHash     *string    `json:"nullifierHash,omitempty" db:"nullifier_hash"`
	MerkleRoot        *string    `json:"merkleRoot,omitempty" db:"merkle_root"`
	VerificationLevel *string    `json:"verificationLevel,omitempty" db:"verification_level"`
	VerifiedAt        *time.Time `json:"verifiedAt,omitempty" db:"verified_at"`

	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// IsVerified informa se o usuário tem uma prova de humanidade registrada
func (u *User) IsVerified() bool {
	return u.NullifierHash != nil
}

// HumanityProof é o resultado aceito pelo verificador externo
type HumanityProof struct {
	NullifierHash     string
	MerkleRoot        string
	VerificationLevel string
}

// ProfileUpdate contém os campos editáveis do perfil; nil mantém o valor atual
type ProfileUpdate struct {
	Username  *string
	Bio       *string
	AvatarURL *string
}

// Location é a geolocalização opcional de um anúncio
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	PlaceName string  `json:"placeName"`
}

// Item representa um anúncio
type Item struct {
	ID          uuid.UUID       `json:"id"`
	SellerID    uuid.UUID       `json:"sellerId"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	ImageURL    *string         `json:"imageUrl,omitempty"`
	Location    *Location       `json:"location,omitempty"`
	Status      ItemStatus      `json:"status"`

	SettlementRef     *string           `json:"settlementRef,omitempty"`
	SettlementChainID *int64            `json:"settlementChainId,omitempty"`
	SettlementStatus  *SettlementStatus `json:"settlementStatus,omitempty"`
	SettledAt         *time.Time        `json:"settledAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// HasSettlement informa se já existe uma referência de pagamento gravada
func (i *Item) HasSettlement() bool {
	return i.SettlementRef != nil
}

// ItemListing são os campos que o vendedor define ao criar ou editar um anúncio
type ItemListing struct {
	Title       string
	Description string
	Price       decimal.Decimal
	ImageURL    *string
	Location    *Location
}

// Conversation é o canal entre um comprador e um vendedor sobre um item
type Conversation struct {
	ID        uuid.UUID `json:"id" db:"id"`
	ItemID    uuid.UUID `json:"itemId" db:"item_id"`
	BuyerID   uuid.UUID `json:"buyerId" db:"buyer_id"`
	SellerID  uuid.UUID `json:"sellerId" db:"seller_id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// HasParticipant informa se o usuário é comprador ou vendedor da conversa
func (c *Conversation) HasParticipant(userID uuid.UUID) bool {
	return c.BuyerID == userID || c.SellerID == userID
}

// ConversationSummary é uma conversa anotada com a mensagem mais recente
type ConversationSummary struct {
	Conversation
	LastMessage *Message `json:"lastMessage,omitempty"`
}

// LastActivity é o instante usado para ordenar a lista de conversas
func (c *ConversationSummary) LastActivity() time.Time {
	if c.LastMessage != nil {
		return c.LastMessage.CreatedAt
	}
	return c.CreatedAt
}

// Message é imutável depois de criada
type Message struct {
	ID             string    `json:"id" db:"id"`
	ConversationID uuid.UUID `json:"conversationId" db:"conversation_id"`
	SenderID       uuid.UUID `json:"senderId" db:"sender_id"`
	Content        string    `json:"content" db:"content"`
	CreatedAt      time.Time `json:"createdAt" db:"created_at"`
}

// Offer é uma proposta de preço feita pelo comprador dentro de uma conversa
type Offer struct {
	ID             uuid.UUID       `json:"id"`
	ConversationID uuid.UUID       `json:"conversationId"`
	ItemID         uuid.UUID       `json:"itemId"`
	BuyerID        uuid.UUID       `json:"buyerId"`
	SellerID       uuid.UUID       `json:"sellerId"`
	Amount         decimal.Decimal `json:"amount"`
	ChainID        int64           `json:"chainId"`
	Status         OfferStatus     `json:"status"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// Settlement é a referência de pagamento reportada pelo comprador
type Settlement struct {
	ItemID  uuid.UUID
	Ref     string
	ChainID int64
	Status  SettlementStatus
}

// PendingSettlement é um pagamento gravado que ainda aguarda confirmação
type PendingSettlement struct {
	Item  *Item
	Offer *Offer
}

// Feedback é a avaliação única do comprador depois da venda
type Feedback struct {
	ID           uuid.UUID `json:"id" db:"id"`
	ItemID       uuid.UUID `json:"itemId" db:"item_id"`
	BuyerID      uuid.UUID `json:"buyerId" db:"buyer_id"`
	SellerID     uuid.UUID `json:"sellerId" db:"seller_id"`
	Rating       int       `json:"rating" db:"rating"`
	Comment      string    `json:"comment" db:"comment"`
	Signature    string    `json:"signature" db:"signature"`
	ProofTokenID *string   `json:"proofTokenId,omitempty" db:"proof_token_id"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
}
