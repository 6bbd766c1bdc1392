package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"bazaar-backend/internal/models"
	"bazaar-backend/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ItemService mantém os anúncios
type ItemService struct {
	store repository.Store
	users *UserService
}

// NewItemService cria o serviço de anúncios
func NewItemService(store repository.Store, users *UserService) *ItemService {
	return &ItemService{store: store, users: users}
}

// Valores monetários cabem em NUMERIC(36, 18)
const moneyScale = 18

var maxMoney = decimal.New(1, 36-moneyScale)

// validateMoney recusa valores fora da coluna ou com mais casas decimais que places
func validateMoney(what string, d decimal.Decimal, places int32) error {
	if places > moneyScale {
		places = moneyScale
	}
	if d.Abs().GreaterThanOrEqual(maxMoney) {
		return fmt.Errorf("%s acima do limite de %s: %w", what, maxMoney, models.ErrInvalidInput)
	}
	if !d.Equal(d.Truncate(places)) {
		return fmt.Errorf("%s aceita no máximo %d casas decimais: %w", what, places, models.ErrInvalidInput)
	}
	return nil
}

func validateListing(l *models.ItemListing) error {
	l.Title = strings.TrimSpace(l.Title)
	if l.Title == "" {
		return fmt.Errorf("título é obrigatório: %w", models.ErrInvalidInput)
	}
	if l.Price.IsNegative() {
		return fmt.Errorf("preço não pode ser negativo: %w", models.ErrInvalidInput)
	}
	if err := validateMoney("preço", l.Price, moneyScale); err != nil {
		return err
	}
	if loc := l.Location; loc != nil {
		if loc.Latitude < -90 || loc.Latitude > 90 || loc.Longitude < -180 || loc.Longitude > 180 {
			return fmt.Errorf("localização fora do intervalo: %w", models.ErrInvalidInput)
		}
	}
	return nil
}

// CreateItem publica um anúncio do vendedor
func (s *ItemService) CreateItem(ctx context.Context, sellerID uuid.UUID, listing models.ItemListing) (*models.Item, error) {
	if err := validateListing(&listing); err != nil {
		return nil, err
	}

	now := time.Now()
	item := &models.Item{
		ID:          uuid.New(),
		SellerID:    sellerID,
		Title:       listing.Title,
		Description: listing.Description,
		Price:       listing.Price,
		ImageURL:    listing.ImageURL,
		Location:    listing.Location,
		Status:      models.ItemAvailable,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateItem(ctx, item); err != nil {
		return nil, err
	}
	log.Infow("anúncio criado", "item", item.ID, "seller", sellerID)
	return item, nil
}

// GetItem busca um anúncio
func (s *ItemService) GetItem(ctx context.Context, id uuid.UUID) (*models.Item, error) {
	return s.store.GetItem(ctx, id)
}

// UpdateItem edita o anúncio enquanto ele estiver AVAILABLE
func (s *ItemService) UpdateItem(ctx context.Context, callerID, itemID uuid.UUID, listing models.ItemListing) (*models.Item, error) {
	if err := validateListing(&listing); err != nil {
		return nil, err
	}
	return s.store.UpdateItemListing(ctx, itemID, callerID, listing)
}

// ListBySeller lista os anúncios de uma carteira
func (s *ItemService) ListBySeller(ctx context.Context, address string) ([]*models.Item, error) {
	seller, err := s.users.GetUserByAddress(ctx, address)
	if err != nil {
		return nil, err
	}
	return s.store.ListItemsBySeller(ctx, seller.ID)
}
