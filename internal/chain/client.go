package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/filecoin-project/go-jsonrpc"
)

// HexUint64 é um inteiro codificado como quantidade hex do JSON-RPC ("0x1a")
type HexUint64 uint64

func (h *HexUint64) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if !strings.HasPrefix(s, "0x") {
		return fmt.Errorf("quantidade hex sem prefixo 0x: %q", s)
	}
	if s == "0x" {
		*h = 0
		return nil
	}
	v, err := strconv.ParseUint(s[2:], 16, 64)
	if err != nil {
		return fmt.Errorf("quantidade hex inválida %q: %w", s, err)
	}
	*h = HexUint64(v)
	return nil
}

func (h HexUint64) MarshalJSON() ([]byte, error) {
	return json.Marshal("0x" + strconv.FormatUint(uint64(h), 16))
}

// Log é um evento emitido por um contrato na transação
type Log struct {
	Address string   `json:"address"`
	Topics  []string `json:"topics"`
	Data    string   `json:"data"`
}

// Receipt é o recibo de uma transação minerada
type Receipt struct {
	TransactionHash string    `json:"transactionHash"`
	BlockNumber     HexUint64 `json:"blockNumber"`
	Status          HexUint64 `json:"status"`
	From            string    `json:"from"`
	To              string    `json:"to"`
	Logs            []Log     `json:"logs"`
}

// Ledger é o subconjunto do JSON-RPC de uma rede EVM que usamos
type Ledger interface {
	BlockNumber(ctx context.Context) (uint64, error)
	// TransactionReceipt devolve nil, nil enquanto a transação não foi minerada
	TransactionReceipt(ctx context.Context, txHash string) (*Receipt, error)
}

type ethRPC struct {
	ChainID               func(ctx context.Context) (HexUint64, error)               `rpc_method:"eth_chainId"`
	BlockNumber           func(ctx context.Context) (HexUint64, error)               `rpc_method:"eth_blockNumber"`
	GetTransactionReceipt func(ctx context.Context, txHash string) (*Receipt, error) `rpc_method:"eth_getTransactionReceipt"`
}

// Client fala com o nó de uma rede via JSON-RPC sobre HTTP
type Client struct {
	rpc    ethRPC
	closer jsonrpc.ClientCloser
}

var _ Ledger = (*Client)(nil)

// Dial cria o cliente e confere que o nó responde pelo chain id esperado
func Dial(ctx context.Context, c *Chain) (*Client, error) {
	cl := &Client{}
	closer, err := jsonrpc.NewMergeClient(ctx, c.RPCURL, "eth",
		[]interface{}{&cl.rpc},
		http.Header{},
		jsonrpc.WithTimeout(15*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("falha ao conectar ao nó da rede %d: %w", c.ID, err)
	}
	cl.closer = closer

	id, err := cl.rpc.ChainID(ctx)
	if err != nil {
		closer()
		return nil, fmt.Errorf("falha ao consultar chain id da rede %d: %w", c.ID, err)
	}
	if int64(id) != c.ID {
		closer()
		return nil, fmt.Errorf("nó em %s responde pela rede %d, esperado %d", c.RPCURL, id, c.ID)
	}
	return cl, nil
}

func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	n, err := c.rpc.BlockNumber(ctx)
	return uint64(n), err
}

func (c *Client) TransactionReceipt(ctx context.Context, txHash string) (*Receipt, error) {
	return c.rpc.GetTransactionReceipt(ctx, txHash)
}

// Close encerra o cliente
func (c *Client) Close() {
	if c.closer != nil {
		c.closer()
	}
}
