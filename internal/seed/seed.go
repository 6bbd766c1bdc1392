package seed

import (
	"context"
	"fmt"

	"bazaar-backend/internal/auth"
	"bazaar-backend/internal/models"
	"bazaar-backend/internal/service"

	logging "github.com/ipfs/go-log/v2"
	"github.com/shopspring/decimal"
)

var log = logging.Logger("seed")

// Services são os serviços usados para popular a base
type Services struct {
	Users *service.UserService
	Items *service.ItemService
	Convs *service.ConversationService
}

// Result resume o que foi criado
type Result struct {
	Users         []*models.User
	Items         []*models.Item
	Conversations []*models.Conversation
}

type sampleItem struct {
	title       string
	description string
	price       string
	location    models.Location
}

var sampleItems = []sampleItem{
	{"iPhone 12 Pro", "Barely used iPhone 12 Pro, great condition!", "699.99",
		models.Location{Latitude: 37.7749, Longitude: -122.4194, PlaceName: "San Francisco, CA"}},
	{"Vintage Leather Jacket", "Cool vintage leather jacket, size M", "89.99",
		models.Location{Latitude: 40.7128, Longitude: -74.0060, PlaceName: "New York, NY"}},
	{"The Great Gatsby", "Classic novel by F. Scott Fitzgerald, paperback", "9.99",
		models.Location{Latitude: 41.8781, Longitude: -87.6298, PlaceName: "Chicago, IL"}},
	{"Garden Tools Set", "Complete set of garden tools, perfect for beginners", "49.99",
		models.Location{Latitude: 34.0522, Longitude: -118.2437, PlaceName: "Los Angeles, CA"}},
	{"Mountain Bike", "High-quality mountain bike, barely used", "299.99",
		models.Location{Latitude: 42.3601, Longitude: -71.0589, PlaceName: "Boston, MA"}},
}

// Run cria cinco usuários com carteiras aleatórias, um anúncio para cada e
// três conversas com mensagens.
func Run(ctx context.Context, svc Services) (*Result, error) {
	res := &Result{}

	for i := range sampleItems {
		_, address, err := auth.NewWallet()
		if err != nil {
			return nil, fmt.Errorf("falha ao gerar carteira: %w", err)
		}
		user, err := svc.Users.ResolveUser(ctx, address)
		if err != nil {
			return nil, err
		}
		username := fmt.Sprintf("user%d", i+1)
		bio := fmt.Sprintf("I'm user %d, and I love trading on the bazaar!", i+1)
		user, err = svc.Users.UpdateProfile(ctx, user.ID, models.ProfileUpdate{Username: &username, Bio: &bio})
		if err != nil {
			return nil, err
		}
		res.Users = append(res.Users, user)
	}

	for i, sample := range sampleItems {
		loc := sample.location
		item, err := svc.Items.CreateItem(ctx, res.Users[i].ID, models.ItemListing{
			Title:       sample.title,
			Description: sample.description,
			Price:       decimal.RequireFromString(sample.price),
			Location:    &loc,
		})
		if err != nil {
			return nil, err
		}
		res.Items = append(res.Items, item)
	}

	for i := 0; i < 3; i++ {
		seller := res.Users[i]
		buyer := res.Users[(i+1)%len(res.Users)]
		item := res.Items[i]

		conv, err := svc.Convs.GetOrCreate(ctx, item.ID, buyer.ID)
		if err != nil {
			return nil, err
		}
		messages := []struct {
			sender  *models.User
			content string
		}{
			{buyer, fmt.Sprintf("Hi, is this %s still available?", item.Title)},
			{seller, "Yes, it is! Are you interested in buying?"},
			{buyer, "Great! Can we arrange a meeting to see it?"},
		}
		for _, m := range messages {
			if _, err := svc.Convs.AppendMessage(ctx, conv.ID, m.sender.ID, m.content); err != nil {
				return nil, err
			}
		}
		res.Conversations = append(res.Conversations, conv)
	}

	log.Infow("dados de exemplo inseridos", "users", len(res.Users), "items", len(res.Items), "conversations", len(res.Conversations))
	return res, nil
}
