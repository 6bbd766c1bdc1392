package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	tokenTypeSession   = "session"
	tokenTypeChallenge = "challenge"

	sessionLifetime = 24 * time.Hour
	// ChallengeLifetime é a validade de um desafio de entrada
	ChallengeLifetime = 5 * time.Minute
)

// TokenService lida com a lógica de JWT
type TokenService struct {
	jwtSecret []byte
	now       func() time.Time
}

// NewTokenService cria um novo serviço de token
func NewTokenService(secret string) (*TokenService, error) {
	if secret == "" {
		return nil, fmt.Errorf("segredo JWT não pode ser vazio")
	}
	return &TokenService{
		jwtSecret: []byte(secret),
		now:       time.Now,
	}, nil
}

// NewSessionToken cria o token de sessão de um usuário (sub = ID do usuário)
func (s *TokenService) NewSessionToken(userID uuid.UUID) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"sub": userID.String(),
		"typ": tokenTypeSession,
		"iat": now.Unix(),
		"exp": now.Add(sessionLifetime).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// NewChallengeToken amarra um nonce a um endereço por alguns minutos.
// O cliente devolve este token junto com a assinatura da mensagem.
func (s *TokenService) NewChallengeToken(address, nonce string, issuedAt time.Time) (string, error) {
	claims := jwt.MapClaims{
		"sub":   address,
		"typ":   tokenTypeChallenge,
		"nonce": nonce,
		"iat":   issuedAt.Unix(),
		"exp":   issuedAt.Add(ChallengeLifetime).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// ValidateToken verifica a validade de um token string
func (s *TokenService) ValidateToken(tokenString string) (*jwt.Token, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		// Verifica o método de assinatura
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("método de assinatura inesperado: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.now))

	if err != nil {
		return nil, fmt.Errorf("falha ao parsear token: %w", err)
	}

	if !token.Valid {
		return nil, fmt.Errorf("token inválido")
	}

	return token, nil
}

// ValidateSession valida um token de sessão e devolve o ID do usuário
func (s *TokenService) ValidateSession(tokenString string) (uuid.UUID, error) {
	token, err := s.ValidateToken(tokenString)
	if err != nil {
		return uuid.Nil, err
	}
	claims, err := typedClaims(token, tokenTypeSession)
	if err != nil {
		return uuid.Nil, err
	}

	sub, err := claims.GetSubject()
	if err != nil {
		return uuid.Nil, fmt.Errorf("não foi possível obter 'sub' do token: %w", err)
	}

	userID, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, fmt.Errorf("'sub' do token não é um UUID válido: %w", err)
	}

	return userID, nil
}

// Challenge é o conteúdo de um token de desafio já validado
type Challenge struct {
	Address  string
	Nonce    string
	IssuedAt time.Time
}

// ValidateChallenge valida um token de desafio
func (s *TokenService) ValidateChallenge(tokenString string) (*Challenge, error) {
	token, err := s.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	claims, err := typedClaims(token, tokenTypeChallenge)
	if err != nil {
		return nil, err
	}

	address, err := claims.GetSubject()
	if err != nil || address == "" {
		return nil, fmt.Errorf("desafio sem endereço")
	}
	nonce, _ := claims["nonce"].(string)
	if nonce == "" {
		return nil, fmt.Errorf("desafio sem nonce")
	}
	iat, err := claims.GetIssuedAt()
	if err != nil || iat == nil {
		return nil, fmt.Errorf("desafio sem data de emissão")
	}

	return &Challenge{Address: address, Nonce: nonce, IssuedAt: iat.Time}, nil
}

func typedClaims(token *jwt.Token, typ string) (jwt.MapClaims, error) {
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("não foi possível ler claims do token")
	}
	if got, _ := claims["typ"].(string); got != typ {
		return nil, fmt.Errorf("tipo de token inesperado: %q", got)
	}
	return claims, nil
}
