package api

import (
	"net/http"
	"time"

	"bazaar-backend/internal/models"
	"bazaar-backend/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"
)

type (
	// PublicProfile é o perfil exposto para outros usuários
	PublicProfile struct {
		Address   string    `json:"address"`
		Username  string    `json:"username"`
		Bio       string    `json:"bio"`
		AvatarURL string    `json:"avatarUrl"`
		Verified  bool      `json:"verified"`
		CreatedAt time.Time `json:"createdAt"`
	}

	// ChainInfo descreve uma rede aceita para pagamento
	ChainInfo struct {
		ID                  int64  `json:"id"`
		Name                string `json:"name"`
		TokenAddress        string `json:"tokenAddress"`
		TokenDecimals       int32  `json:"tokenDecimals"`
		ProofTokenAddress   string `json:"proofTokenAddress,omitempty"`
		VerificationEnabled bool   `json:"verificationEnabled"`
	}
)

func publicProfile(u *models.User) PublicProfile {
	return PublicProfile{
		Address:   u.Address,
		Username:  u.Username,
		Bio:       u.Bio,
		AvatarURL: u.AvatarURL,
		Verified:  u.IsVerified(),
		CreatedAt: u.CreatedAt,
	}
}

// === Handlers de Autenticação ===

// handleChallenge (GET /auth/challenge?address=)
func (h *Handler) handleChallenge(w http.ResponseWriter, r *http.Request) {
	address := r.URL.Query().Get("address")
	if address == "" {
		h.respondWithError(w, http.StatusBadRequest, "invalid_input", "Parâmetro 'address' é obrigatório")
		return
	}

	challenge, err := h.SignIn.Challenge(r.Context(), address)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, challenge)
}

// handleSignIn (POST /auth/signin)
func (h *Handler) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ChallengeToken string `json:"challengeToken" validate:"required"`
		Signature      string `json:"signature" validate:"required"`
	}
	if !h.decodeJSON(w, r, &req) {
		return
	}

	result, err := h.SignIn.SignIn(r.Context(), req.ChallengeToken, req.Signature)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, result)
}

// handleListChains (GET /chains)
func (h *Handler) handleListChains(w http.ResponseWriter, r *http.Request) {
	chains := lo.FilterMap(h.Chains.IDs(), func(id int64, _ int) (ChainInfo, bool) {
		c, ok := h.Chains.Get(id)
		if !ok {
			return ChainInfo{}, false
		}
		return ChainInfo{
			ID:                  c.ID,
			Name:                c.Name,
			TokenAddress:        c.TokenAddress,
			TokenDecimals:       c.TokenDecimals,
			ProofTokenAddress:   c.ProofTokenAddress,
			VerificationEnabled: c.VerificationEnabled(),
		}, true
	})
	h.respondWithJSON(w, http.StatusOK, chains)
}

// === Handlers de Usuário ===

// handleGetMe (GET /users/me)
func (h *Handler) handleGetMe(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	h.respondWithJSON(w, http.StatusOK, user)
}

// handleUpdateMe (PATCH /users/me)
func (h *Handler) handleUpdateMe(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	var req struct {
		Username  *string `json:"username" validate:"omitempty,max=50"`
		Bio       *string `json:"bio" validate:"omitempty,max=500"`
		AvatarURL *string `json:"avatarUrl" validate:"omitempty,url"`
	}
	if !h.decodeJSON(w, r, &req) {
		return
	}

	updated, err := h.Users.UpdateProfile(r.Context(), user.ID, models.ProfileUpdate{
		Username:  req.Username,
		Bio:       req.Bio,
		AvatarURL: req.AvatarURL,
	})
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, updated)
}

// handleVerifyHumanity (POST /users/me/humanity)
func (h *Handler) handleVerifyHumanity(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	var req service.HumanityRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	verified, err := h.Users.VerifyHumanity(r.Context(), user.ID, req)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, verified)
}

// handleGetProfile (GET /users/{address})
func (h *Handler) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	user, err := h.Users.GetUserByAddress(r.Context(), chi.URLParam(r, "address"))
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, publicProfile(user))
}
