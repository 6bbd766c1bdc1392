package seed

import (
	"context"
	"testing"
	"time"

	"bazaar-backend/internal/repository"
	"bazaar-backend/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun(t *testing.T) {
	ctx := context.Background()
	store := repository.NewInMemoryStore()
	users := service.NewUserService(store, 16, time.Minute, nil)
	convs := service.NewConversationService(store, nil)

	res, err := Run(ctx, Services{
		Users: users,
		Items: service.NewItemService(store, users),
		Convs: convs,
	})
	require.NoError(t, err)
	require.Len(t, res.Users, 5)
	require.Len(t, res.Items, 5)
	require.Len(t, res.Conversations, 3)

	assert.Equal(t, "user1", res.Users[0].Username)
	assert.Equal(t, service.DefaultAvatarURL(res.Users[0].Address), res.Users[0].AvatarURL)
	assert.Equal(t, "Boston, MA", res.Items[4].Location.PlaceName)

	first := res.Conversations[0]
	assert.Equal(t, res.Users[0].ID, first.SellerID)
	assert.Equal(t, res.Users[1].ID, first.BuyerID)

	msgs, err := convs.Messages(ctx, first.ID, first.BuyerID)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "Hi, is this iPhone 12 Pro still available?", msgs[0].Content)
}
