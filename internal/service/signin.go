package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"bazaar-backend/internal/auth"
	"bazaar-backend/internal/models"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Nonces já usados por instância; o desafio expira antes de sair do cache
const usedNonceCapacity = 65536

// SignInService implementa a entrada com carteira: desafio assinado pelo
// usuário e troca por um token de sessão.
type SignInService struct {
	users  *UserService
	tokens *auth.TokenService
	now    func() time.Time

	mu   sync.Mutex
	used *expirable.LRU[string, struct{}]
}

// NewSignInService cria o serviço de entrada
func NewSignInService(users *UserService, tokens *auth.TokenService) *SignInService {
	return &SignInService{
		users:  users,
		tokens: tokens,
		now:    time.Now,
		used:   expirable.NewLRU[string, struct{}](usedNonceCapacity, nil, auth.ChallengeLifetime),
	}
}

// consumeNonce marca o desafio como usado; false se já tinha sido
func (s *SignInService) consumeNonce(nonce string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.used.Contains(nonce) {
		return false
	}
	s.used.Add(nonce, struct{}{})
	return true
}

// ChallengeResponse é o que o cliente precisa para assinar
type ChallengeResponse struct {
	Message        string `json:"message"`
	ChallengeToken string `json:"challengeToken"`
}

// Challenge gera a mensagem a ser assinada pela carteira
func (s *SignInService) Challenge(ctx context.Context, address string) (*ChallengeResponse, error) {
	addr, err := auth.NormalizeAddress(address)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", err.Error(), models.ErrInvalidInput)
	}

	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	nonce := hex.EncodeToString(buf)
	issuedAt := s.now().Truncate(time.Second)

	token, err := s.tokens.NewChallengeToken(addr, nonce, issuedAt)
	if err != nil {
		return nil, err
	}
	return &ChallengeResponse{
		Message:        auth.ChallengeMessage(addr, nonce, issuedAt),
		ChallengeToken: token,
	}, nil
}

// SignInResult é a sessão emitida
type SignInResult struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// SignIn confere a assinatura do desafio e devolve o token de sessão
func (s *SignInService) SignIn(ctx context.Context, challengeToken, signature string) (*SignInResult, error) {
	ch, err := s.tokens.ValidateChallenge(challengeToken)
	if err != nil {
		return nil, fmt.Errorf("desafio inválido: %w", models.ErrForbidden)
	}

	msg := []byte(auth.ChallengeMessage(ch.Address, ch.Nonce, ch.IssuedAt))
	signer, err := auth.RecoverAddress(auth.PersonalSignHash(msg), signature)
	if err != nil {
		return nil, fmt.Errorf("assinatura inválida: %w", models.ErrInvalidInput)
	}
	if signer != ch.Address {
		return nil, fmt.Errorf("assinatura não pertence a %s: %w", ch.Address, models.ErrForbidden)
	}
	if !s.consumeNonce(ch.Nonce) {
		return nil, fmt.Errorf("desafio já utilizado: %w", models.ErrForbidden)
	}

	user, err := s.users.ResolveUser(ctx, ch.Address)
	if err != nil {
		return nil, err
	}
	token, err := s.tokens.NewSessionToken(user.ID)
	if err != nil {
		log.Errorw("falha ao gerar token de sessão", "user", user.ID, "error", err)
		return nil, fmt.Errorf("erro interno ao gerar token")
	}
	return &SignInResult{Token: token, User: user}, nil
}
