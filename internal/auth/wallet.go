package auth

import (
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"

	gocrypto "github.com/filecoin-project/go-crypto"
	"golang.org/x/crypto/sha3"
)

var addressPattern = regexp.MustCompile(`^0x[0-9a-f]{40}$`)

// NormalizeAddress devolve o endereço em minúsculas ou erro se não for 0x + 40 hex
func NormalizeAddress(address string) (string, error) {
	addr := strings.ToLower(strings.TrimSpace(address))
	if !addressPattern.MatchString(addr) {
		return "", fmt.Errorf("endereço de carteira inválido: %q", address)
	}
	return addr, nil
}

// Keccak256 é o hash usado pelas redes EVM
func Keccak256(data ...[]byte) []byte {
	hasher := sha3.NewLegacyKeccak256()
	for _, d := range data {
		hasher.Write(d)
	}
	return hasher.Sum(nil)
}

// PersonalSignHash é o digest EIP-191 que as carteiras assinam em personal_sign
func PersonalSignHash(message []byte) []byte {
	prefix := fmt.Sprintf("\x19Ethereum Signed Message:\n%d", len(message))
	return Keccak256([]byte(prefix), message)
}

// AddressFromPublicKey deriva o endereço a partir da chave pública
// secp256k1 não comprimida (65 bytes, prefixo 0x04).
func AddressFromPublicKey(pub []byte) (string, error) {
	if len(pub) != 65 {
		return "", fmt.Errorf("chave pública com tamanho inesperado: %d", len(pub))
	}
	return "0x" + hex.EncodeToString(Keccak256(pub[1:])[12:]), nil
}

// DecodeSignature lê uma assinatura hex de 65 bytes (r || s || v).
// Carteiras usam v = 27/28; a recuperação espera 0/1.
func DecodeSignature(signature string) ([]byte, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(signature), "0x"))
	if err != nil {
		return nil, fmt.Errorf("assinatura não é hex válido: %w", err)
	}
	if len(raw) != 65 {
		return nil, fmt.Errorf("assinatura deve ter 65 bytes, recebido %d", len(raw))
	}
	if raw[64] >= 27 {
		raw[64] -= 27
	}
	return raw, nil
}

// RecoverAddress recupera o endereço que assinou o digest
func RecoverAddress(hash []byte, signature string) (string, error) {
	sig, err := DecodeSignature(signature)
	if err != nil {
		return "", err
	}
	pub, err := gocrypto.EcRecover(hash, sig)
	if err != nil {
		return "", fmt.Errorf("falha ao recuperar chave pública: %w", err)
	}
	return AddressFromPublicKey(pub)
}

// ChallengeMessage é o texto que o usuário assina para entrar
func ChallengeMessage(address, nonce string, issuedAt time.Time) string {
	return fmt.Sprintf(
		"Bazaar quer que você entre com sua carteira:\n%s\n\nNonce: %s\nEmitido em: %s",
		address, nonce, issuedAt.UTC().Format(time.RFC3339),
	)
}

// SignPersonal assina a mensagem como uma carteira faria em personal_sign.
// Usado pelo comando seed e pelos testes.
func SignPersonal(privateKey []byte, message []byte) (string, error) {
	sig, err := gocrypto.Sign(privateKey, PersonalSignHash(message))
	if err != nil {
		return "", err
	}
	sig[64] += 27
	return "0x" + hex.EncodeToString(sig), nil
}

// NewWallet gera uma chave privada e devolve o endereço correspondente
func NewWallet() (privateKey []byte, address string, err error) {
	privateKey, err = gocrypto.GenerateKey()
	if err != nil {
		return nil, "", err
	}
	address, err = AddressFromPublicKey(gocrypto.PublicKey(privateKey))
	if err != nil {
		return nil, "", err
	}
	return privateKey, address, nil
}
