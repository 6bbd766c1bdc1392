package chain

import (
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// Chain descreve uma rede aceita para pagamento
type Chain struct {
	ID   int64  `toml:"id"`
	Name string `toml:"name"`
	// RPCURL vazio desativa a verificação on-chain desta rede
	RPCURL            string `toml:"rpc_url"`
	TokenAddress      string `toml:"token_address"`
	TokenDecimals     int32  `toml:"token_decimals"`
	ProofTokenAddress string `toml:"proof_token_address"`
	MinConfirmations  uint64 `toml:"min_confirmations"`
}

// VerificationEnabled informa se pagamentos nesta rede são conferidos no ledger
func (c *Chain) VerificationEnabled() bool {
	return c.RPCURL != ""
}

// Registry é o conjunto de redes configuradas, indexado pelo chain id
type Registry struct {
	chains map[int64]*Chain
}

type registryFile struct {
	Chains []Chain `toml:"chain"`
}

// NewRegistry valida e indexa as redes
func NewRegistry(chains ...Chain) (*Registry, error) {
	r := &Registry{chains: make(map[int64]*Chain, len(chains))}
	for i := range chains {
		c := chains[i]
		if c.ID <= 0 {
			return nil, fmt.Errorf("rede %q sem id válido", c.Name)
		}
		if _, dup := r.chains[c.ID]; dup {
			return nil, fmt.Errorf("rede %d declarada duas vezes", c.ID)
		}
		if c.TokenAddress == "" {
			return nil, fmt.Errorf("rede %d sem token_address", c.ID)
		}
		if c.TokenDecimals == 0 {
			c.TokenDecimals = 18
		}
		if c.MinConfirmations == 0 {
			c.MinConfirmations = 1
		}
		c.TokenAddress = strings.ToLower(c.TokenAddress)
		c.ProofTokenAddress = strings.ToLower(c.ProofTokenAddress)
		r.chains[c.ID] = &c
	}
	return r, nil
}

// LoadRegistry lê as redes de um arquivo TOML com blocos [[chain]]
func LoadRegistry(path string) (*Registry, error) {
	var f registryFile
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, fmt.Errorf("falha ao ler registro de redes %s: %w", path, err)
	}
	if len(f.Chains) == 0 {
		return nil, fmt.Errorf("nenhuma rede em %s", path)
	}
	return NewRegistry(f.Chains...)
}

// DefaultRegistry são as redes de teste usadas pelo app, sem verificação on-chain
func DefaultRegistry() *Registry {
	r, err := NewRegistry(
		Chain{
			ID:                44787,
			Name:              "Celo Alfajores",
			TokenAddress:      "0x874069Fa1Eb16D44d622F2e0Ca25eeA172369bC1",
			ProofTokenAddress: "0xE8F4699baba6C86DA9729b1B0a1DA1Bd4136eFeF",
		},
		Chain{
			ID:           84532,
			Name:         "Base Sepolia",
			TokenAddress: "0x5dEaC602762362FE5f135FA5904351916053cF70",
		},
	)
	if err != nil {
		panic(err)
	}
	return r
}

// Get devolve a rede pelo id
func (r *Registry) Get(id int64) (*Chain, bool) {
	c, ok := r.chains[id]
	return c, ok
}

// IDs devolve os ids configurados em ordem crescente
func (r *Registry) IDs() []int64 {
	ids := make([]int64, 0, len(r.chains))
	for id := range r.chains {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
