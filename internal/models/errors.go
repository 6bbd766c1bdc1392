package models

import "errors"

// Erros de domínio. Camadas acima usam errors.Is para mapear cada um
// para a resposta HTTP correspondente.
var (
	ErrNotFound         = errors.New("não encontrado")
	ErrForbidden        = errors.New("operação não permitida para este usuário")
	ErrInvalidState     = errors.New("estado inválido para esta operação")
	ErrConflict         = errors.New("conflito")
	ErrTransferFailed   = errors.New("transferência não concluída")
	ErrInvalidOperation = errors.New("operação inválida")
	ErrInvalidInput     = errors.New("dados inválidos")
)
