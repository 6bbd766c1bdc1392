package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"bazaar-backend/internal/models"
)

// HumanityRequest é a prova de pessoa única gerada no cliente
type HumanityRequest struct {
	NullifierHash     string `json:"nullifier_hash" validate:"required"`
	MerkleRoot        string `json:"merkle_root" validate:"required"`
	Proof             string `json:"proof" validate:"required"`
	VerificationLevel string `json:"verification_level" validate:"required"`
}

// HumanityVerifier confere uma prova contra o serviço externo
type HumanityVerifier interface {
	Verify(ctx context.Context, req HumanityRequest, signal string) (*models.HumanityProof, error)
}

// HTTPHumanityVerifier chama a API de verificação na nuvem (estilo World ID)
type HTTPHumanityVerifier struct {
	baseURL string
	appID   string
	action  string
	client  *http.Client
}

// NewHTTPHumanityVerifier cria o verificador
func NewHTTPHumanityVerifier(baseURL, appID, action string) *HTTPHumanityVerifier {
	return &HTTPHumanityVerifier{
		baseURL: strings.TrimRight(baseURL, "/"),
		appID:   appID,
		action:  action,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type verifyRequest struct {
	HumanityRequest
	Action string `json:"action"`
	Signal string `json:"signal"`
}

type verifyError struct {
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

// Verify envia a prova; o sinal amarra a prova ao endereço do usuário
func (v *HTTPHumanityVerifier) Verify(ctx context.Context, req HumanityRequest, signal string) (*models.HumanityProof, error) {
	body, err := json.Marshal(verifyRequest{HumanityRequest: req, Action: v.action, Signal: signal})
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/api/v2/verify/%s", v.baseURL, v.appID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("falha ao contatar verificador: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return &models.HumanityProof{
			NullifierHash:     req.NullifierHash,
			MerkleRoot:        req.MerkleRoot,
			VerificationLevel: req.VerificationLevel,
		}, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		var ve verifyError
		_ = json.NewDecoder(resp.Body).Decode(&ve)
		if ve.Code == "max_verifications_reached" {
			return nil, fmt.Errorf("prova já utilizada: %w", models.ErrConflict)
		}
		return nil, fmt.Errorf("prova recusada (%s): %w", ve.Code, models.ErrInvalidInput)
	default:
		return nil, fmt.Errorf("verificador respondeu %d", resp.StatusCode)
	}
}
