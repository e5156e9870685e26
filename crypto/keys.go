package crypto

import (
	"crypto/ecdsa"
	"crypto/rand"
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// --- Key Management ---

type PrivateKey struct {
	*ecdsa.PrivateKey
}

func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := ecdsa.GenerateKey(crypto.S256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// Bytes returns the byte representation of the private key.
func (k *PrivateKey) Bytes() []byte {
	return crypto.FromECDSA(k.PrivateKey)
}

// Address returns the account controlled by the key.
func (k *PrivateKey) Address() common.Address {
	return crypto.PubkeyToAddress(k.PrivateKey.PublicKey)
}

func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	key, err := crypto.ToECDSA(b)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// PrivateKeyFromHex parses a 0x-prefixed or bare hex private key.
func PrivateKeyFromHex(value string) (*PrivateKey, error) {
	value = strings.TrimSpace(value)
	if !strings.HasPrefix(value, "0x") && !strings.HasPrefix(value, "0X") {
		value = "0x" + value
	}
	raw, err := hexutil.Decode(value)
	if err != nil {
		return nil, errors.New("crypto: malformed hex private key")
	}
	return PrivateKeyFromBytes(raw)
}

// DevKey derives a deterministic key from name. It is meant for local
// scenarios and tests only; anyone knowing the name controls the account.
func DevKey(name string) *PrivateKey {
	seed := crypto.Keccak256([]byte("loanchain-dev:" + name))
	key, err := crypto.ToECDSA(seed)
	if err != nil {
		panic(err)
	}
	return &PrivateKey{key}
}
