package api

import (
	"net/http"
	"strconv"

	"bazaar-backend/internal/models"
	"bazaar-backend/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type (
	locationRequest struct {
		Latitude  float64 `json:"latitude" validate:"gte=-90,lte=90"`
		Longitude float64 `json:"longitude" validate:"gte=-180,lte=180"`
		PlaceName string  `json:"placeName" validate:"max=200"`
	}

	listingRequest struct {
		Title       string           `json:"title" validate:"required,max=120"`
		Description string           `json:"description" validate:"max=5000"`
		Price       decimal.Decimal  `json:"price"`
		ImageURL    *string          `json:"imageUrl" validate:"omitempty,url"`
		Location    *locationRequest `json:"location"`
	}
)

func (req listingRequest) listing() models.ItemListing {
	l := models.ItemListing{
		Title:       req.Title,
		Description: req.Description,
		Price:       req.Price,
		ImageURL:    req.ImageURL,
	}
	if req.Location != nil {
		l.Location = &models.Location{
			Latitude:  req.Location.Latitude,
			Longitude: req.Location.Longitude,
			PlaceName: req.Location.PlaceName,
		}
	}
	return l
}

// === Handlers de Anúncio ===

// handleCreateItem (POST /items)
func (h *Handler) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	var req listingRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	item, err := h.Items.CreateItem(r.Context(), user.ID, req.listing())
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	h.respondWithJSON(w, http.StatusCreated, item)
}

// handleGetItem (GET /items/{id})
func (h *Handler) handleGetItem(w http.ResponseWriter, r *http.Request) {
	itemID, ok := h.uuidParam(w, r, "id")
	if !ok {
		return
	}
	item, err := h.Items.GetItem(r.Context(), itemID)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, item)
}

// handleUpdateItem (PATCH /items/{id})
func (h *Handler) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	itemID, ok := h.uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req listingRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	item, err := h.Items.UpdateItem(r.Context(), user.ID, itemID, req.listing())
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, item)
}

// handleListSellerItems (GET /users/{address}/items)
func (h *Handler) handleListSellerItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.Items.ListBySeller(r.Context(), chi.URLParam(r, "address"))
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, items)
}

// handleImageUploadURL (POST /items/image-upload-url)
func (h *Handler) handleImageUploadURL(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	if h.S3 == nil {
		h.respondWithError(w, http.StatusServiceUnavailable, "unavailable", "Upload de imagens não configurado")
		return
	}

	var req struct {
		ContentType string `json:"contentType" validate:"required"`
	}
	if !h.decodeJSON(w, r, &req) {
		return
	}

	upload, err := h.S3.NewImageUpload(r.Context(), user.ID, req.ContentType)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, upload)
}

// === Handlers de Oferta e Pagamento ===

// handleAcceptOffer (POST /offers/{id}/accept)
func (h *Handler) handleAcceptOffer(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	offerID, ok := h.uuidParam(w, r, "id")
	if !ok {
		return
	}

	offer, err := h.Offers.AcceptOffer(r.Context(), offerID, user.ID)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, offer)
}

// handleOfferStatus (GET /items/{id}/offer-status)
func (h *Handler) handleOfferStatus(w http.ResponseWriter, r *http.Request) {
	itemID, ok := h.uuidParam(w, r, "id")
	if !ok {
		return
	}
	item, err := h.Items.GetItem(r.Context(), itemID)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	offer, err := h.Offers.GetOfferStatus(r.Context(), itemID)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, struct {
		Item          *models.Item  `json:"item"`
		AcceptedOffer *models.Offer `json:"acceptedOffer"`
	}{Item: item, AcceptedOffer: offer})
}

// handleRecordSettlement (POST /items/{id}/settlement)
func (h *Handler) handleRecordSettlement(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	itemID, ok := h.uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		TxHash string `json:"txHash" validate:"required"`
	}
	if !h.decodeJSON(w, r, &req) {
		return
	}

	item, err := h.Settlements.RecordSettlement(r.Context(), itemID, user.ID, req.TxHash)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, item)
}

// === Handlers de Avaliação ===

// handleGetFeedback (GET /items/{id}/feedback)
func (h *Handler) handleGetFeedback(w http.ResponseWriter, r *http.Request) {
	itemID, ok := h.uuidParam(w, r, "id")
	if !ok {
		return
	}
	fb, err := h.Feedback.GetFeedback(r.Context(), itemID)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, fb)
}

// handleAddFeedback (POST /items/{id}/feedback)
func (h *Handler) handleAddFeedback(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	itemID, ok := h.uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		Rating       int     `json:"rating" validate:"required"`
		Comment      string  `json:"comment"`
		Signature    string  `json:"signature" validate:"required"`
		ProofTokenID *string `json:"proofTokenId"`
	}
	if !h.decodeJSON(w, r, &req) {
		return
	}

	fb, err := h.Feedback.AddFeedback(r.Context(), itemID, user.ID, service.FeedbackInput{
		Rating:       req.Rating,
		Comment:      req.Comment,
		Signature:    req.Signature,
		ProofTokenID: req.ProofTokenID,
	})
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	h.respondWithJSON(w, http.StatusCreated, fb)
}

// handleFeedbackPayload (GET /items/{id}/feedback/payload?rating=&comment=)
func (h *Handler) handleFeedbackPayload(w http.ResponseWriter, r *http.Request) {
	itemID, ok := h.uuidParam(w, r, "id")
	if !ok {
		return
	}
	rating, err := strconv.Atoi(r.URL.Query().Get("rating"))
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, "invalid_input", "Parâmetro 'rating' deve ser um número")
		return
	}

	payload, err := h.Feedback.Payload(r.Context(), itemID, rating, r.URL.Query().Get("comment"))
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, payload)
}
