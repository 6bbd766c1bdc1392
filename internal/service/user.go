package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"bazaar-backend/internal/auth"
	"bazaar-backend/internal/metrics"
	"bazaar-backend/internal/models"
	"bazaar-backend/internal/repository"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("service")

const (
	maxUsernameLength = 50
	maxBioLength      = 500
)

// UserService resolve carteiras em usuários e mantém os perfis
type UserService struct {
	store    repository.UserStore
	cache    *expirable.LRU[string, *models.User]
	verifier HumanityVerifier
}

// NewUserService cria um novo serviço de usuário. verifier pode ser nil,
// caso em que a verificação de humanidade fica indisponível.
func NewUserService(store repository.UserStore, cacheSize int, cacheTTL time.Duration, verifier HumanityVerifier) *UserService {
	if cacheSize <= 0 {
		cacheSize = 1024
	}
	return &UserService{
		store:    store,
		cache:    expirable.NewLRU[string, *models.User](cacheSize, nil, cacheTTL),
		verifier: verifier,
	}
}

// DefaultUsername é o nome dado a um usuário novo
func DefaultUsername(address string) string {
	return "User_" + address[:6]
}

// DefaultAvatarURL é o avatar gerado a partir do endereço
func DefaultAvatarURL(address string) string {
	return "https://api.dicebear.com/6.x/avataaars/svg?seed=" + address
}

func cloneUser(u *models.User) *models.User {
	c := *u
	return &c
}

// ResolveUser devolve o usuário da carteira, criando-o na primeira vez.
// Duas chamadas simultâneas com o mesmo endereço novo criam um único usuário.
func (s *UserService) ResolveUser(ctx context.Context, address string) (*models.User, error) {
	addr, err := auth.NormalizeAddress(address)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", err.Error(), models.ErrInvalidInput)
	}

	if cached, ok := s.cache.Get(addr); ok {
		metrics.UserCacheLookups.WithLabelValues("hit").Inc()
		return cloneUser(cached), nil
	}
	metrics.UserCacheLookups.WithLabelValues("miss").Inc()

	user, err := s.store.CreateUserIfAbsent(ctx, &models.User{
		ID:        uuid.New(),
		Address:   addr,
		Username:  DefaultUsername(addr),
		AvatarURL: DefaultAvatarURL(addr),
		CreatedAt: time.Now(),
	})
	if err != nil {
		return nil, err
	}

	s.cache.Add(addr, cloneUser(user))
	return user, nil
}

// GetUser busca um usuário pelo ID
func (s *UserService) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return s.store.GetUserByID(ctx, id)
}

// GetUserByAddress busca um perfil público sem criar usuário
func (s *UserService) GetUserByAddress(ctx context.Context, address string) (*models.User, error) {
	addr, err := auth.NormalizeAddress(address)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", err.Error(), models.ErrInvalidInput)
	}
	if cached, ok := s.cache.Get(addr); ok {
		metrics.UserCacheLookups.WithLabelValues("hit").Inc()
		return cloneUser(cached), nil
	}
	metrics.UserCacheLookups.WithLabelValues("miss").Inc()
	return s.store.GetUserByAddress(ctx, addr)
}

// UpdateProfile altera o perfil do próprio usuário
func (s *UserService) UpdateProfile(ctx context.Context, callerID uuid.UUID, upd models.ProfileUpdate) (*models.User, error) {
	if upd.Username != nil {
		name := strings.TrimSpace(*upd.Username)
		if name == "" || len(name) > maxUsernameLength {
			return nil, fmt.Errorf("nome de usuário deve ter entre 1 e %d caracteres: %w", maxUsernameLength, models.ErrInvalidInput)
		}
		upd.Username = &name
	}
	if upd.Bio != nil && len(*upd.Bio) > maxBioLength {
		return nil, fmt.Errorf("bio deve ter no máximo %d caracteres: %w", maxBioLength, models.ErrInvalidInput)
	}

	user, err := s.store.UpdateUserProfile(ctx, callerID, upd)
	if err != nil {
		return nil, err
	}
	s.cache.Remove(user.Address)
	return user, nil
}

// VerifyHumanity confere a prova com o verificador externo e a vincula ao usuário.
// O mesmo nullifier não pode ficar em dois usuários.
func (s *UserService) VerifyHumanity(ctx context.Context, callerID uuid.UUID, req HumanityRequest) (*models.User, error) {
	if s.verifier == nil {
		return nil, fmt.Errorf("verificação de humanidade não configurada: %w", models.ErrInvalidOperation)
	}

	user, err := s.store.GetUserByID(ctx, callerID)
	if err != nil {
		return nil, err
	}

	proof, err := s.verifier.Verify(ctx, req, user.Address)
	if err != nil {
		return nil, err
	}

	updated, err := s.store.SetHumanityProof(ctx, callerID, *proof)
	if err != nil {
		return nil, err
	}
	s.cache.Remove(updated.Address)
	log.Infow("humanidade verificada", "user", callerID, "level", proof.VerificationLevel)
	return updated, nil
}
