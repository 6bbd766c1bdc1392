package api

import (
	"net/http"
)

// handleRealtime (GET /realtime): abre a sessão WebSocket do usuário
func (h *Handler) handleRealtime(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade já respondeu ao cliente
		log.Debugw("falha no upgrade WebSocket", "user", user.ID, "error", err)
		return
	}
	log.Debugw("sessão realtime aberta", "user", user.ID)

	// Bloqueia até a conexão fechar
	h.Hub.ServeSession(r.Context(), conn, user.ID, h.ChannelAuth)
}

// handleRealtimeAuth (POST /realtime/auth): confere se o usuário pode assinar o canal
func (h *Handler) handleRealtimeAuth(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	var req struct {
		Channel string `json:"channel" validate:"required"`
	}
	if !h.decodeJSON(w, r, &req) {
		return
	}

	if err := h.ChannelAuth.Authorize(r.Context(), user.ID, req.Channel); err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"channel":    req.Channel,
		"authorized": true,
	})
}
