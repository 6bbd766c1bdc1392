package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"bazaar-backend/internal/auth"
	"bazaar-backend/internal/chain"
	"bazaar-backend/internal/models"
	"bazaar-backend/internal/realtime"
	"bazaar-backend/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("api")

// Services reúne as dependências do Handler
type Services struct {
	Users       *service.UserService
	SignIn      *service.SignInService
	Items       *service.ItemService
	Convs       *service.ConversationService
	Offers      *service.OfferService
	Settlements *service.SettlementService
	Feedback    *service.FeedbackService
	// S3 é opcional: sem ele o upload de imagens responde 503
	S3     *service.S3Service
	Tokens *auth.TokenService
	Chains *chain.Registry

	Hub         *realtime.Hub
	ChannelAuth *realtime.Authorizer

	// HealthCheck é chamado por /healthz; nil responde sempre ok
	HealthCheck func(ctx context.Context) error
	CORSOrigins []string
}

// Handler gerencia as dependências para os handlers HTTP
type Handler struct {
	Services
	validate *validator.Validate
	upgrader websocket.Upgrader
}

// NewHandler cria uma nova instância do Handler
func NewHandler(svc Services) *Handler {
	h := &Handler{
		Services: svc,
		validate: validator.New(),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// === Funções Auxiliares de Resposta ===

type errorBody struct {
	Code    int    `json:"code"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func (h *Handler) respondWithError(w http.ResponseWriter, code int, kind, message string) {
	h.respondWithJSON(w, code, map[string]errorBody{
		"error": {Code: code, Kind: kind, Message: message},
	})
}

func (h *Handler) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Errorw("erro ao serializar JSON", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"code":500,"kind":"internal","message":"Erro interno ao serializar resposta"}}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

// errorStatus traduz os erros de domínio em status HTTP
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, models.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, models.ErrInvalidState):
		return http.StatusConflict, "invalid_state"
	case errors.Is(err, models.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, models.ErrTransferFailed):
		return http.StatusPaymentRequired, "transfer_failed"
	case errors.Is(err, models.ErrInvalidOperation):
		return http.StatusUnprocessableEntity, "invalid_operation"
	case errors.Is(err, models.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// respondWithServiceError responde com o erro vindo da camada de serviço.
// Erros internos não vazam detalhes para o cliente.
func (h *Handler) respondWithServiceError(w http.ResponseWriter, r *http.Request, err error) {
	code, kind := errorStatus(err)
	message := err.Error()
	if code == http.StatusInternalServerError {
		log.Errorw("erro interno", "method", r.Method, "path", r.URL.Path, "error", err)
		message = "Erro interno"
	}
	h.respondWithError(w, code, kind, message)
}

// decodeJSON lê e valida o corpo; em caso de erro já responde 400
func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "invalid_input", "Payload JSON inválido")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "invalid_input", "Dados inválidos: "+err.Error())
		return false
	}
	return true
}

// uuidParam lê um parâmetro de rota UUID; em caso de erro já responde 400
func (h *Handler) uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, "invalid_input", "Parâmetro '"+name+"' não é um UUID válido")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.CORSOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// === Handlers de Operação ===

// handleHealth (GET /healthz)
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if h.HealthCheck != nil {
		if err := h.HealthCheck(r.Context()); err != nil {
			log.Warnw("health check falhou", "error", err)
			h.respondWithError(w, http.StatusServiceUnavailable, "unavailable", "Banco de dados indisponível")
			return
		}
	}
	h.respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
