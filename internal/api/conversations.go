package api

import (
	"net/http"

	"bazaar-backend/internal/models"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// ConversationListEntry é uma linha da caixa de entrada
type ConversationListEntry struct {
	*models.ConversationSummary
	Role string `json:"role"`
}

// === Handlers de Conversa ===

// handleOpenConversation (POST /items/{id}/conversations)
func (h *Handler) handleOpenConversation(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	itemID, ok := h.uuidParam(w, r, "id")
	if !ok {
		return
	}

	conv, err := h.Convs.GetOrCreate(r.Context(), itemID, user.ID)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, conv)
}

// handleListConversations (GET /conversations)
func (h *Handler) handleListConversations(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	summaries, err := h.Convs.ListForUser(r.Context(), user.ID)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}

	entries := lo.Map(summaries, func(s *models.ConversationSummary, _ int) ConversationListEntry {
		role := "buyer"
		if s.SellerID == user.ID {
			role = "seller"
		}
		return ConversationListEntry{ConversationSummary: s, Role: role}
	})
	h.respondWithJSON(w, http.StatusOK, entries)
}

// handleGetConversation (GET /conversations/{id})
func (h *Handler) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	convID, ok := h.uuidParam(w, r, "id")
	if !ok {
		return
	}

	view, err := h.Convs.Get(r.Context(), convID, user.ID)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, view)
}

// handleListMessages (GET /conversations/{id}/messages)
func (h *Handler) handleListMessages(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	convID, ok := h.uuidParam(w, r, "id")
	if !ok {
		return
	}

	msgs, err := h.Convs.Messages(r.Context(), convID, user.ID)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, msgs)
}

// handleSendMessage (POST /conversations/{id}/messages)
func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	convID, ok := h.uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		Content string `json:"content" validate:"required"`
	}
	if !h.decodeJSON(w, r, &req) {
		return
	}

	msg, err := h.Convs.AppendMessage(r.Context(), convID, user.ID, req.Content)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	h.respondWithJSON(w, http.StatusCreated, msg)
}

// handleMakeOffer (POST /conversations/{id}/offers)
func (h *Handler) handleMakeOffer(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	convID, ok := h.uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		Amount  decimal.Decimal `json:"amount"`
		ChainID int64           `json:"chainId" validate:"required"`
	}
	if !h.decodeJSON(w, r, &req) {
		return
	}

	offer, err := h.Offers.MakeOffer(r.Context(), convID, user.ID, req.Amount, req.ChainID)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	h.respondWithJSON(w, http.StatusCreated, offer)
}
