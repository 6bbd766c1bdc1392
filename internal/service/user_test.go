package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"bazaar-backend/internal/auth"
	"bazaar-backend/internal/models"
	"bazaar-backend/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveUserCreatesWithDefaults(t *testing.T) {
	e := newTestEnv(t)

	u, err := e.users.ResolveUser(e.ctx, "0xABCDEF0123456789ABCDEF0123456789ABCDEF01")
	require.NoError(t, err)
	assert.Equal(t, "0xabcdef0123456789abcdef0123456789abcdef01", u.Address)
	assert.Equal(t, "User_0xabcd", u.Username)
	assert.Equal(t, "https://api.dicebear.com/6.x/avataaars/svg?seed=0xabcdef0123456789abcdef0123456789abcdef01", u.AvatarURL)

	again, err := e.users.ResolveUser(e.ctx, "0xabcdef0123456789abcdef0123456789abcdef01")
	require.NoError(t, err)
	assert.Equal(t, u.ID, again.ID)
}

func TestResolveUserRejectsMalformedAddress(t *testing.T) {
	e := newTestEnv(t)
	_, err := e.users.ResolveUser(e.ctx, "not-an-address")
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestResolveUserConcurrentFirstContact(t *testing.T) {
	store := repository.NewInMemoryStore()
	users := NewUserService(store, 1, time.Minute, nil)

	const n = 32
	ids := make([]uuid.UUID, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			u, err := users.ResolveUser(context.Background(), addr('c'))
			if assert.NoError(t, err) {
				ids[i] = u.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestUpdateProfileInvalidatesCache(t *testing.T) {
	e := newTestEnv(t)
	u := e.newUser(t)

	name := "  vendedora  "
	bio := "Vendo coisas"
	updated, err := e.users.UpdateProfile(e.ctx, u.ID, models.ProfileUpdate{Username: &name, Bio: &bio})
	require.NoError(t, err)
	assert.Equal(t, "vendedora", updated.Username)

	resolved, err := e.users.ResolveUser(e.ctx, u.Address)
	require.NoError(t, err)
	assert.Equal(t, "vendedora", resolved.Username)
	assert.Equal(t, "Vendo coisas", resolved.Bio)
	assert.Equal(t, u.AvatarURL, resolved.AvatarURL)

	empty := "   "
	_, err = e.users.UpdateProfile(e.ctx, u.ID, models.ProfileUpdate{Username: &empty})
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestGetUserByAddressDoesNotCreate(t *testing.T) {
	e := newTestEnv(t)
	_, err := e.users.GetUserByAddress(e.ctx, addr('d'))
	assert.ErrorIs(t, err, models.ErrNotFound)
}

type stubHumanityVerifier struct{}

func (stubHumanityVerifier) Verify(ctx context.Context, req HumanityRequest, signal string) (*models.HumanityProof, error) {
	return &models.HumanityProof{
		NullifierHash:     req.NullifierHash,
		MerkleRoot:        req.MerkleRoot,
		VerificationLevel: req.VerificationLevel,
	}, nil
}

func TestVerifyHumanity(t *testing.T) {
	store := repository.NewInMemoryStore()
	users := NewUserService(store, 16, time.Minute, stubHumanityVerifier{})
	ctx := context.Background()

	alice, err := users.ResolveUser(ctx, addr('a'))
	require.NoError(t, err)
	bob, err := users.ResolveUser(ctx, addr('b'))
	require.NoError(t, err)

	req := HumanityRequest{NullifierHash: "0xnull", MerkleRoot: "0xroot", Proof: "0xproof", VerificationLevel: "orb"}
	verified, err := users.VerifyHumanity(ctx, alice.ID, req)
	require.NoError(t, err)
	assert.True(t, verified.IsVerified())
	assert.Equal(t, "orb", *verified.VerificationLevel)

	// O cache não pode devolver a versão antiga
	resolved, err := users.ResolveUser(ctx, alice.Address)
	require.NoError(t, err)
	assert.True(t, resolved.IsVerified())

	_, err = users.VerifyHumanity(ctx, bob.ID, req)
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestVerifyHumanityWithoutVerifier(t *testing.T) {
	e := newTestEnv(t)
	u := e.newUser(t)
	_, err := e.users.VerifyHumanity(e.ctx, u.ID, HumanityRequest{})
	assert.ErrorIs(t, err, models.ErrInvalidOperation)
}

func TestHTTPHumanityVerifier(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v2/verify/app_test", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		if got["nullifier_hash"] == "0xused" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"code":"max_verifications_reached","detail":"já verificado"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	v := NewHTTPHumanityVerifier(srv.URL+"/", "app_test", "verify-seller")
	req := HumanityRequest{NullifierHash: "0xnull", MerkleRoot: "0xroot", Proof: "0xproof", VerificationLevel: "device"}

	proof, err := v.Verify(context.Background(), req, addr('a'))
	require.NoError(t, err)
	assert.Equal(t, "0xnull", proof.NullifierHash)
	assert.Equal(t, "verify-seller", got["action"])
	assert.Equal(t, addr('a'), got["signal"])

	req.NullifierHash = "0xused"
	_, err = v.Verify(context.Background(), req, addr('a'))
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestWalletSignIn(t *testing.T) {
	e := newTestEnv(t)
	tokens, err := auth.NewTokenService("segredo")
	require.NoError(t, err)
	signin := NewSignInService(e.users, tokens)

	sk, address, err := auth.NewWallet()
	require.NoError(t, err)

	ch, err := signin.Challenge(e.ctx, address)
	require.NoError(t, err)
	assert.Contains(t, ch.Message, address)

	sig, err := auth.SignPersonal(sk, []byte(ch.Message))
	require.NoError(t, err)

	res, err := signin.SignIn(e.ctx, ch.ChallengeToken, sig)
	require.NoError(t, err)
	assert.Equal(t, address, res.User.Address)

	userID, err := tokens.ValidateSession(res.Token)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, userID)

	// O mesmo desafio assinado não entra duas vezes
	_, err = signin.SignIn(e.ctx, ch.ChallengeToken, sig)
	assert.ErrorIs(t, err, models.ErrForbidden)

	again, err := signin.Challenge(e.ctx, address)
	require.NoError(t, err)
	sig2, err := auth.SignPersonal(sk, []byte(again.Message))
	require.NoError(t, err)
	_, err = signin.SignIn(e.ctx, again.ChallengeToken, sig2)
	require.NoError(t, err)

	// Outra carteira assinando o mesmo desafio
	otherKey, _, err := auth.NewWallet()
	require.NoError(t, err)
	forged, err := auth.SignPersonal(otherKey, []byte(ch.Message))
	require.NoError(t, err)
	_, err = signin.SignIn(e.ctx, ch.ChallengeToken, forged)
	assert.ErrorIs(t, err, models.ErrForbidden)

	_, err = signin.SignIn(e.ctx, "lixo", sig)
	assert.ErrorIs(t, err, models.ErrForbidden)
}
