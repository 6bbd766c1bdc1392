package chain

import (
	"context"
	"fmt"
	"math/big"
	"regexp"
	"strings"

	logging "github.com/ipfs/go-log/v2"
	"github.com/shopspring/decimal"
)

var log = logging.Logger("chain")

// TransferTopic é keccak256("Transfer(address,address,uint256)")
const TransferTopic = "0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"

var txHashPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// ValidTxHash informa se a referência tem o formato de um hash de transação
func ValidTxHash(ref string) bool {
	return txHashPattern.MatchString(ref)
}

// Transfer é o pagamento esperado: From paga Amount do token da rede para To
type Transfer struct {
	ChainID int64
	TxHash  string
	From    string
	To      string
	Amount  decimal.Decimal
}

type Status int

const (
	// StatusPending: ainda não minerada ou sem confirmações suficientes
	StatusPending Status = iota
	StatusConfirmed
	// StatusFailed é definitivo: revertida ou não corresponde ao esperado
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusConfirmed:
		return "confirmed"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Verdict é o resultado de uma inspeção
type Verdict struct {
	Status Status
	Reason string
	// Mined indica que o recibo existe; pendente sem recibo pode nunca chegar
	Mined bool
}

// Verifier confere pagamentos contra o ledger de cada rede habilitada
type Verifier struct {
	registry *Registry
	ledgers  map[int64]Ledger
}

// NewVerifier usa os ledgers já conectados, um por chain id
func NewVerifier(registry *Registry, ledgers map[int64]Ledger) *Verifier {
	return &Verifier{registry: registry, ledgers: ledgers}
}

// DialVerifier conecta a todas as redes com rpc_url configurada
func DialVerifier(ctx context.Context, registry *Registry) (*Verifier, func(), error) {
	ledgers := make(map[int64]Ledger)
	var clients []*Client
	closeAll := func() {
		for _, c := range clients {
			c.Close()
		}
	}

	for _, id := range registry.IDs() {
		c, _ := registry.Get(id)
		if !c.VerificationEnabled() {
			log.Infow("verificação on-chain desativada", "chain", c.ID, "name", c.Name)
			continue
		}
		cl, err := Dial(ctx, c)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		clients = append(clients, cl)
		ledgers[id] = cl
		log.Infow("conectado ao nó da rede", "chain", c.ID, "name", c.Name)
	}
	return NewVerifier(registry, ledgers), closeAll, nil
}

// Enabled informa se pagamentos na rede são conferidos no ledger
func (v *Verifier) Enabled(chainID int64) bool {
	_, ok := v.ledgers[chainID]
	return ok
}

// Inspect faz uma única consulta não bloqueante ao ledger.
// Erros de transporte são devolvidos como erro, nunca como StatusFailed.
func (v *Verifier) Inspect(ctx context.Context, t Transfer) (Verdict, error) {
	c, ok := v.registry.Get(t.ChainID)
	if !ok {
		return Verdict{}, fmt.Errorf("rede %d não configurada", t.ChainID)
	}
	ledger, ok := v.ledgers[t.ChainID]
	if !ok {
		return Verdict{}, fmt.Errorf("rede %d sem verificação on-chain", t.ChainID)
	}

	receipt, err := ledger.TransactionReceipt(ctx, t.TxHash)
	if err != nil {
		return Verdict{}, fmt.Errorf("falha ao buscar recibo de %s: %w", t.TxHash, err)
	}
	if receipt == nil {
		return Verdict{Status: StatusPending, Reason: "transação ainda não minerada"}, nil
	}
	if receipt.Status == 0 {
		return Verdict{Status: StatusFailed, Reason: "transação revertida", Mined: true}, nil
	}

	if reason := matchTransfer(c, receipt, t); reason != "" {
		return Verdict{Status: StatusFailed, Reason: reason, Mined: true}, nil
	}

	head, err := ledger.BlockNumber(ctx)
	if err != nil {
		return Verdict{}, fmt.Errorf("falha ao buscar altura da rede %d: %w", t.ChainID, err)
	}
	mined := uint64(receipt.BlockNumber)
	if head < mined || head-mined+1 < c.MinConfirmations {
		return Verdict{Status: StatusPending, Reason: "aguardando confirmações", Mined: true}, nil
	}
	return Verdict{Status: StatusConfirmed, Mined: true}, nil
}

// matchTransfer procura um evento Transfer do token da rede com o pagador,
// o recebedor e pelo menos o valor esperado. Devolve o motivo da recusa.
func matchTransfer(c *Chain, receipt *Receipt, t Transfer) string {
	units := t.Amount.Shift(c.TokenDecimals)
	if !units.IsPositive() || !units.IsInteger() {
		return fmt.Sprintf("valor %s não é representável com %d casas decimais", t.Amount, c.TokenDecimals)
	}
	expected := units.BigInt()
	from := strings.ToLower(t.From)
	to := strings.ToLower(t.To)

	sawToken := false
	for _, l := range receipt.Logs {
		if strings.ToLower(l.Address) != c.TokenAddress {
			continue
		}
		if len(l.Topics) != 3 || strings.ToLower(l.Topics[0]) != TransferTopic {
			continue
		}
		sawToken = true

		if topicAddress(l.Topics[1]) != from || topicAddress(l.Topics[2]) != to {
			continue
		}
		value, ok := parseUint256(l.Data)
		if !ok {
			continue
		}
		if value.Cmp(expected) >= 0 {
			return ""
		}
	}

	if !sawToken {
		return "nenhuma transferência do token da rede na transação"
	}
	return "transferência não corresponde ao pagador, recebedor ou valor da oferta"
}

// topicAddress extrai o endereço dos 20 bytes finais de um tópico de 32 bytes
func topicAddress(topic string) string {
	topic = strings.ToLower(topic)
	if len(topic) != 66 {
		return ""
	}
	return "0x" + topic[26:]
}

func parseUint256(data string) (*big.Int, bool) {
	hex := strings.TrimPrefix(data, "0x")
	if hex == "" {
		return new(big.Int), true
	}
	return new(big.Int).SetString(hex, 16)
}
