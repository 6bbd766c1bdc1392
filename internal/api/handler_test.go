package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bazaar-backend/internal/auth"
	"bazaar-backend/internal/chain"
	"bazaar-backend/internal/models"
	"bazaar-backend/internal/realtime"
	"bazaar-backend/internal/repository"
	"bazaar-backend/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	*httptest.Server
	users  *service.UserService
	tokens *auth.TokenService
	seq    int
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := repository.NewInMemoryStore()
	hub := realtime.NewHub()
	tokens, err := auth.NewTokenService("segredo-de-teste")
	require.NoError(t, err)
	chains := chain.DefaultRegistry()

	users := service.NewUserService(store, 64, time.Minute, nil)
	h := NewHandler(Services{
		Users:       users,
		SignIn:      service.NewSignInService(users, tokens),
		Items:       service.NewItemService(store, users),
		Convs:       service.NewConversationService(store, hub),
		Offers:      service.NewOfferService(store, chains, hub),
		Settlements: service.NewSettlementService(store, nil, hub),
		Feedback:    service.NewFeedbackService(store, hub),
		Tokens:      tokens,
		Chains:      chains,
		Hub:         hub,
		ChannelAuth: realtime.NewAuthorizer(store),
		CORSOrigins: []string{"http://localhost:3000"},
	})

	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, users: users, tokens: tokens}
}

// login cria um usuário novo e devolve o token de sessão
func (s *testServer) login(t *testing.T) (*models.User, string) {
	t.Helper()
	s.seq++
	user, err := s.users.ResolveUser(context.Background(), fmt.Sprintf("0x%040x", s.seq))
	require.NoError(t, err)
	token, err := s.tokens.NewSessionToken(user.ID)
	require.NoError(t, err)
	return user, token
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, s.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v), string(data))
	return v
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err  error
		code int
		kind string
	}{
		{fmt.Errorf("x: %w", models.ErrNotFound), http.StatusNotFound, "not_found"},
		{models.ErrForbidden, http.StatusForbidden, "forbidden"},
		{models.ErrInvalidState, http.StatusConflict, "invalid_state"},
		{models.ErrConflict, http.StatusConflict, "conflict"},
		{models.ErrTransferFailed, http.StatusPaymentRequired, "transfer_failed"},
		{models.ErrInvalidOperation, http.StatusUnprocessableEntity, "invalid_operation"},
		{models.ErrInvalidInput, http.StatusBadRequest, "invalid_input"},
		{errors.New("banco caiu"), http.StatusInternalServerError, "internal"},
	}
	for _, tt := range tests {
		code, kind := errorStatus(tt.err)
		assert.Equal(t, tt.code, code, tt.err.Error())
		assert.Equal(t, tt.kind, kind, tt.err.Error())
	}
}

func TestWalletSignInOverHTTP(t *testing.T) {
	s := newTestServer(t)
	sk, address, err := auth.NewWallet()
	require.NoError(t, err)

	code, body := s.do(t, http.MethodGet, "/v1/auth/challenge?address="+address, "", nil)
	require.Equal(t, http.StatusOK, code, string(body))
	challenge := decode[service.ChallengeResponse](t, body)

	sig, err := auth.SignPersonal(sk, []byte(challenge.Message))
	require.NoError(t, err)
	code, body = s.do(t, http.MethodPost, "/v1/auth/signin", "", map[string]string{
		"challengeToken": challenge.ChallengeToken,
		"signature":      sig,
	})
	require.Equal(t, http.StatusOK, code, string(body))
	session := decode[service.SignInResult](t, body)

	code, body = s.do(t, http.MethodPost, "/v1/auth/signin", "", map[string]string{
		"challengeToken": challenge.ChallengeToken,
		"signature":      sig,
	})
	assert.Equal(t, http.StatusForbidden, code, string(body))

	code, body = s.do(t, http.MethodGet, "/v1/users/me", session.Token, nil)
	require.Equal(t, http.StatusOK, code, string(body))
	me := decode[models.User](t, body)
	assert.Equal(t, address, me.Address)
	assert.Equal(t, service.DefaultUsername(address), me.Username)

	code, _ = s.do(t, http.MethodGet, "/v1/auth/challenge?address=nope", "", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	s := newTestServer(t)

	code, body := s.do(t, http.MethodGet, "/v1/conversations", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "unauthorized", decode[errorEnvelope](t, body).Error.Kind)

	code, _ = s.do(t, http.MethodGet, "/v1/conversations", "nao-e-um-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	// Token de desafio não serve como sessão
	challengeToken, err := s.tokens.NewChallengeToken("0x"+fmt.Sprintf("%040x", 99), "abc", time.Now())
	require.NoError(t, err)
	code, _ = s.do(t, http.MethodGet, "/v1/users/me", challengeToken, nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	_, token := s.login(t)
	code, _ = s.do(t, http.MethodGet, "/v1/conversations?access_token="+token, "", nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestMarketplaceFlowOverHTTP(t *testing.T) {
	s := newTestServer(t)
	seller, sellerToken := s.login(t)
	_, buyerToken := s.login(t)
	_, strangerToken := s.login(t)

	code, body := s.do(t, http.MethodPost, "/v1/items", sellerToken, map[string]interface{}{
		"title":    "Bicicleta",
		"price":    "100",
		"location": map[string]interface{}{"latitude": -23.55, "longitude": -46.63, "placeName": "São Paulo"},
	})
	require.Equal(t, http.StatusCreated, code, string(body))
	item := decode[models.Item](t, body)
	itemPath := "/v1/items/" + item.ID.String()

	code, body = s.do(t, http.MethodGet, "/v1/users/"+seller.Address+"/items", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, decode[[]models.Item](t, body), 1)

	code, body = s.do(t, http.MethodPost, itemPath+"/conversations", sellerToken, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "invalid_operation", decode[errorEnvelope](t, body).Error.Kind)

	code, body = s.do(t, http.MethodPost, itemPath+"/conversations", buyerToken, nil)
	require.Equal(t, http.StatusOK, code, string(body))
	conv := decode[models.Conversation](t, body)
	convPath := "/v1/conversations/" + conv.ID.String()

	code, _ = s.do(t, http.MethodPost, convPath+"/messages", buyerToken, map[string]string{"content": "Faz por 80?"})
	require.Equal(t, http.StatusCreated, code)
	code, body = s.do(t, http.MethodPost, convPath+"/messages", strangerToken, map[string]string{"content": "oi"})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "forbidden", decode[errorEnvelope](t, body).Error.Kind)

	code, body = s.do(t, http.MethodPost, convPath+"/offers", buyerToken, map[string]interface{}{"amount": "80", "chainId": 44787})
	require.Equal(t, http.StatusCreated, code, string(body))
	offer := decode[models.Offer](t, body)

	code, _ = s.do(t, http.MethodPost, "/v1/offers/"+offer.ID.String()+"/accept", buyerToken, nil)
	assert.Equal(t, http.StatusForbidden, code)
	code, body = s.do(t, http.MethodPost, "/v1/offers/"+offer.ID.String()+"/accept", sellerToken, nil)
	require.Equal(t, http.StatusOK, code, string(body))

	code, _ = s.do(t, http.MethodPost, convPath+"/offers", buyerToken, map[string]interface{}{"amount": "90", "chainId": 44787})
	assert.Equal(t, http.StatusConflict, code)

	ref := "0x" + fmt.Sprintf("%064x", 12345)
	code, body = s.do(t, http.MethodPost, itemPath+"/settlement", buyerToken, map[string]string{"txHash": ref})
	require.Equal(t, http.StatusOK, code, string(body))
	settled := decode[models.Item](t, body)
	assert.Equal(t, models.ItemSold, settled.Status)

	code, body = s.do(t, http.MethodPost, itemPath+"/settlement", buyerToken, map[string]string{"txHash": ref})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "conflict", decode[errorEnvelope](t, body).Error.Kind)

	code, body = s.do(t, http.MethodGet, itemPath+"/offer-status", "", nil)
	require.Equal(t, http.StatusOK, code)
	status := decode[struct {
		AcceptedOffer *models.Offer `json:"acceptedOffer"`
	}](t, body)
	require.NotNil(t, status.AcceptedOffer)
	assert.Equal(t, offer.ID, status.AcceptedOffer.ID)

	code, body = s.do(t, http.MethodGet, itemPath+"/feedback/payload?rating=5&comment=top", "", nil)
	require.Equal(t, http.StatusOK, code, string(body))
	payload := decode[service.FeedbackPayload](t, body)
	assert.Equal(t, service.CanonicalPayload(item.ID, 5, "top"), payload)

	code, body = s.do(t, http.MethodPost, itemPath+"/feedback", buyerToken, map[string]interface{}{
		"rating": 5, "comment": "top", "signature": "0xsig",
	})
	require.Equal(t, http.StatusCreated, code, string(body))

	code, body = s.do(t, http.MethodGet, itemPath+"/feedback", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 5, decode[models.Feedback](t, body).Rating)

	code, body = s.do(t, http.MethodGet, "/v1/conversations", sellerToken, nil)
	require.Equal(t, http.StatusOK, code)
	inbox := decode[[]map[string]interface{}](t, body)
	require.Len(t, inbox, 1)
	assert.Equal(t, "seller", inbox[0]["role"])
}

func TestBadRequests(t *testing.T) {
	s := newTestServer(t)
	_, token := s.login(t)

	code, body := s.do(t, http.MethodGet, "/v1/items/nao-uuid", "", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid_input", decode[errorEnvelope](t, body).Error.Kind)

	code, _ = s.do(t, http.MethodPost, "/v1/items", token, map[string]string{"description": "sem título"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = s.do(t, http.MethodGet, "/v1/items/"+"6f1c0b7e-3f7a-4c1d-9a55-3c7b1f0e9a11", "", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = s.do(t, http.MethodPost, "/v1/items/image-upload-url", token, map[string]string{"contentType": "image/png"})
	assert.Equal(t, http.StatusServiceUnavailable, code)

	code, body = s.do(t, http.MethodPost, "/v1/items", token, map[string]interface{}{"title": "Mesa", "price": "1000000000000000000"})
	assert.Equal(t, http.StatusBadRequest, code, string(body))
}

func TestRealtimeAuthEndpoint(t *testing.T) {
	s := newTestServer(t)
	_, sellerToken := s.login(t)
	_, buyerToken := s.login(t)
	_, strangerToken := s.login(t)

	_, body := s.do(t, http.MethodPost, "/v1/items", sellerToken, map[string]interface{}{"title": "Mesa", "price": 50})
	item := decode[models.Item](t, body)
	_, body = s.do(t, http.MethodPost, "/v1/items/"+item.ID.String()+"/conversations", buyerToken, nil)
	conv := decode[models.Conversation](t, body)
	channel := realtime.ConversationChannel(conv.ID)

	code, _ := s.do(t, http.MethodPost, "/v1/realtime/auth", buyerToken, map[string]string{"channel": channel})
	assert.Equal(t, http.StatusOK, code)
	code, _ = s.do(t, http.MethodPost, "/v1/realtime/auth", sellerToken, map[string]string{"channel": realtime.ItemChannel(item.ID)})
	assert.Equal(t, http.StatusOK, code)
	code, _ = s.do(t, http.MethodPost, "/v1/realtime/auth", strangerToken, map[string]string{"channel": channel})
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = s.do(t, http.MethodPost, "/v1/realtime/auth", strangerToken, map[string]string{"channel": "public-x"})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestOpsEndpoints(t *testing.T) {
	s := newTestServer(t)

	code, _ := s.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, code)

	code, body := s.do(t, http.MethodGet, "/v1/chains", "", nil)
	require.Equal(t, http.StatusOK, code)
	chains := decode[[]ChainInfo](t, body)
	require.Len(t, chains, 2)
	assert.Equal(t, int64(44787), chains[0].ID)
	assert.False(t, chains[0].VerificationEnabled)

	code, body = s.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(body), "go_goroutines")
}
