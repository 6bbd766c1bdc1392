package api

import (
	"context"
	"net/http"
	"strings"

	"bazaar-backend/internal/models"
)

// contextKey é um tipo privado para evitar colisões de chaves no contexto
type contextKey string

const userContextKey = contextKey("user")

// bearerToken lê o token do header Authorization. Navegadores não conseguem
// enviar headers no handshake WebSocket, então ?access_token= também vale.
func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		token := r.URL.Query().Get("access_token")
		return token, token != ""
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return "", false
	}
	return parts[1], parts[1] != ""
}

// AuthMiddleware é um middleware para validar o token JWT de sessão
func (h *Handler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString, ok := bearerToken(r)
		if !ok {
			h.respondWithError(w, http.StatusUnauthorized, "unauthorized", "Token de autorização não fornecido")
			return
		}

		userID, err := h.Tokens.ValidateSession(tokenString)
		if err != nil {
			log.Debugw("token rejeitado", "error", err)
			h.respondWithError(w, http.StatusUnauthorized, "unauthorized", "Token inválido")
			return
		}

		// Verifica se o usuário ainda existe no DB
		user, err := h.Users.GetUser(r.Context(), userID)
		if err != nil {
			h.respondWithError(w, http.StatusUnauthorized, "unauthorized", "Usuário do token não encontrado")
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// currentUser devolve o usuário autenticado; se faltar já responde 401
func (h *Handler) currentUser(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	user, ok := r.Context().Value(userContextKey).(*models.User)
	if !ok || user == nil {
		h.respondWithError(w, http.StatusUnauthorized, "unauthorized", "Contexto de usuário inválido")
		return nil, false
	}
	return user, true
}
