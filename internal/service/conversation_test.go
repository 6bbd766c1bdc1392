package service

import (
	"strings"
	"testing"

	"bazaar-backend/internal/models"
	"bazaar-backend/internal/realtime"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrCreateConversationIsIdempotent(t *testing.T) {
	e := newTestEnv(t)
	seller, buyer := e.newUser(t), e.newUser(t)
	item := e.newItem(t, seller, "100")

	first := e.newConversation(t, item, buyer)
	second := e.newConversation(t, item, buyer)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, seller.ID, first.SellerID)
	assert.Equal(t, buyer.ID, first.BuyerID)
}

func TestGetOrCreateConversationFailures(t *testing.T) {
	e := newTestEnv(t)
	seller := e.newUser(t)
	item := e.newItem(t, seller, "100")

	_, err := e.convs.GetOrCreate(e.ctx, item.ID, seller.ID)
	assert.ErrorIs(t, err, models.ErrInvalidOperation)

	_, err = e.convs.GetOrCreate(e.ctx, uuid.New(), seller.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestAppendMessage(t *testing.T) {
	e := newTestEnv(t)
	seller, buyer, stranger := e.newUser(t), e.newUser(t), e.newUser(t)
	conv := e.newConversation(t, e.newItem(t, seller, "100"), buyer)

	msg, err := e.convs.AppendMessage(e.ctx, conv.ID, buyer.ID, "  Ainda disponível?  ")
	require.NoError(t, err)
	assert.Equal(t, "Ainda disponível?", msg.Content)
	assert.NotEmpty(t, msg.ID)
	assert.True(t, e.pub.has(realtime.ConversationChannel(conv.ID), realtime.EventNewMessage))

	_, err = e.convs.AppendMessage(e.ctx, conv.ID, seller.ID, "Sim!")
	require.NoError(t, err)

	_, err = e.convs.AppendMessage(e.ctx, conv.ID, stranger.ID, "oi")
	assert.ErrorIs(t, err, models.ErrForbidden)

	_, err = e.convs.AppendMessage(e.ctx, conv.ID, buyer.ID, "   ")
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = e.convs.AppendMessage(e.ctx, uuid.New(), buyer.ID, "oi")
	assert.ErrorIs(t, err, models.ErrNotFound)

	msgs, err := e.convs.Messages(e.ctx, conv.ID, seller.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "Ainda disponível?", msgs[0].Content)
	assert.Equal(t, "Sim!", msgs[1].Content)
	assert.True(t, msgs[1].CreatedAt.After(msgs[0].CreatedAt))

	_, err = e.convs.Messages(e.ctx, conv.ID, stranger.ID)
	assert.ErrorIs(t, err, models.ErrForbidden)
}

func TestAppendMessageLimitCountsCharacters(t *testing.T) {
	e := newTestEnv(t)
	seller, buyer := e.newUser(t), e.newUser(t)
	conv := e.newConversation(t, e.newItem(t, seller, "100"), buyer)

	msg, err := e.convs.AppendMessage(e.ctx, conv.ID, buyer.ID, strings.Repeat("ã", maxMessageLength))
	require.NoError(t, err)
	assert.Len(t, []rune(msg.Content), maxMessageLength)

	_, err = e.convs.AppendMessage(e.ctx, conv.ID, buyer.ID, strings.Repeat("a", maxMessageLength+1))
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestListForUserOrdersByLastMessage(t *testing.T) {
	e := newTestEnv(t)
	seller, buyer := e.newUser(t), e.newUser(t)
	older := e.newConversation(t, e.newItem(t, seller, "10"), buyer)
	newer := e.newConversation(t, e.newItem(t, seller, "20"), buyer)

	_, err := e.convs.AppendMessage(e.ctx, newer.ID, buyer.ID, "primeiro")
	require.NoError(t, err)
	_, err = e.convs.AppendMessage(e.ctx, older.ID, seller.ID, "mais recente")
	require.NoError(t, err)

	list, err := e.convs.ListForUser(e.ctx, buyer.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, older.ID, list[0].ID)
	require.NotNil(t, list[0].LastMessage)
	assert.Equal(t, "mais recente", list[0].LastMessage.Content)

	sellerList, err := e.convs.ListForUser(e.ctx, seller.ID)
	require.NoError(t, err)
	assert.Len(t, sellerList, 2)

	empty, err := e.convs.ListForUser(e.ctx, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestGetConversationView(t *testing.T) {
	e := newTestEnv(t)
	seller, buyer := e.newUser(t), e.newUser(t)
	item := e.newItem(t, seller, "100")
	conv := e.newConversation(t, item, buyer)
	e.offer(t, conv, "90")

	view, err := e.convs.Get(e.ctx, conv.ID, buyer.ID)
	require.NoError(t, err)
	assert.Equal(t, item.ID, view.Item.ID)
	assert.Equal(t, buyer.Address, view.Buyer.Address)
	assert.Equal(t, seller.Address, view.Seller.Address)
	assert.Empty(t, view.Messages)
	assert.Len(t, view.Offers, 1)

	_, err = e.convs.Get(e.ctx, conv.ID, e.newUser(t).ID)
	assert.ErrorIs(t, err, models.ErrForbidden)
}
