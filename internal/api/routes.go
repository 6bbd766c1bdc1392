package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Routes configura e retorna o roteador Chi
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	// Middlewares globais
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   h.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300, // Tempo de cache da preflight
	}))

	r.Get("/healthz", h.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	// Rotas da API V1
	r.Route("/v1", func(r chi.Router) {
		// Endpoints públicos (sem autenticação)
		r.Get("/auth/challenge", h.handleChallenge)
		r.Post("/auth/signin", h.handleSignIn)
		r.Get("/chains", h.handleListChains)

		r.Get("/items/{id}", h.handleGetItem)
		r.Get("/items/{id}/offer-status", h.handleOfferStatus)
		r.Get("/items/{id}/feedback", h.handleGetFeedback)
		r.Get("/items/{id}/feedback/payload", h.handleFeedbackPayload)

		// Endpoints protegidos (requerem autenticação)
		r.Group(func(r chi.Router) {
			r.Use(h.AuthMiddleware)

			r.Get("/users/me", h.handleGetMe)
			r.Patch("/users/me", h.handleUpdateMe)
			r.Post("/users/me/humanity", h.handleVerifyHumanity)

			r.Post("/items", h.handleCreateItem)
			r.Post("/items/image-upload-url", h.handleImageUploadURL)
			r.Patch("/items/{id}", h.handleUpdateItem)
			r.Post("/items/{id}/conversations", h.handleOpenConversation)
			r.Post("/items/{id}/settlement", h.handleRecordSettlement)
			r.Post("/items/{id}/feedback", h.handleAddFeedback)

			r.Get("/conversations", h.handleListConversations)
			r.Get("/conversations/{id}", h.handleGetConversation)
			r.Get("/conversations/{id}/messages", h.handleListMessages)
			r.Post("/conversations/{id}/messages", h.handleSendMessage)
			r.Post("/conversations/{id}/offers", h.handleMakeOffer)

			r.Post("/offers/{id}/accept", h.handleAcceptOffer)

			r.Get("/realtime", h.handleRealtime)
			r.Post("/realtime/auth", h.handleRealtimeAuth)
		})

		// Perfis públicos; o chi dá preferência à rota estática /users/me
		r.Get("/users/{address}", h.handleGetProfile)
		r.Get("/users/{address}/items", h.handleListSellerItems)
	})

	return r
}
