package types

import (
	"crypto/ecdsa"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

var (
	// ErrMissingSignature is returned when the sender of an unsigned
	// transaction is requested.
	ErrMissingSignature = errors.New("types: transaction is not signed")
	// ErrInvalidSignature is returned when the signature does not recover to
	// a public key.
	ErrInvalidSignature = errors.New("types: invalid transaction signature")
)

// Transaction is a signed call against the chain. An empty Data field with a
// positive Value is a plain native-currency transfer (or a contract's receive
// path); otherwise Data carries ABI encoded calldata for the contract at To.
type Transaction struct {
	ChainID uint64         `json:"chainId"`
	Nonce   uint64         `json:"nonce"`
	To      common.Address `json:"to"`
	Value   *big.Int       `json:"value"`
	Data    hexutil.Bytes  `json:"data"`

	// Signatures
	R *big.Int `json:"r"`
	S *big.Int `json:"s"`
	V *big.Int `json:"v"`

	from *common.Address
}

type txSigningPayload struct {
	ChainID uint64
	Nonce   uint64
	To      common.Address
	Value   *big.Int
	Data    []byte
}

type txEnvelope struct {
	ChainID uint64
	Nonce   uint64
	To      common.Address
	Value   *big.Int
	Data    []byte
	V, R, S *big.Int
}

func (tx *Transaction) value() *big.Int {
	if tx.Value == nil {
		return new(big.Int)
	}
	return tx.Value
}

// SigHash returns the keccak256 digest of the RLP encoded signing payload.
// It is the message the sender signs and does not identify a transaction.
func (tx *Transaction) SigHash() (common.Hash, error) {
	encoded, err := rlp.EncodeToBytes(txSigningPayload{
		ChainID: tx.ChainID,
		Nonce:   tx.Nonce,
		To:      tx.To,
		Value:   tx.value(),
		Data:    tx.Data,
	})
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(encoded), nil
}

// Hash returns the transaction identifier: keccak256 over the RLP encoded
// signed envelope. Two senders issuing identical calls get distinct hashes.
func (tx *Transaction) Hash() (common.Hash, error) {
	if tx.R == nil || tx.S == nil || tx.V == nil {
		return common.Hash{}, ErrMissingSignature
	}
	encoded, err := rlp.EncodeToBytes(txEnvelope{
		ChainID: tx.ChainID,
		Nonce:   tx.Nonce,
		To:      tx.To,
		Value:   tx.value(),
		Data:    tx.Data,
		V:       tx.V,
		R:       tx.R,
		S:       tx.S,
	})
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(encoded), nil
}

// Sign signs the transaction with privKey and caches the sender.
func (tx *Transaction) Sign(privKey *ecdsa.PrivateKey) error {
	hash, err := tx.SigHash()
	if err != nil {
		return err
	}
	sig, err := crypto.Sign(hash.Bytes(), privKey)
	if err != nil {
		return err
	}
	tx.R = new(big.Int).SetBytes(sig[:32])
	tx.S = new(big.Int).SetBytes(sig[32:64])
	tx.V = new(big.Int).SetBytes([]byte{sig[64] + 27})
	from := crypto.PubkeyToAddress(privKey.PublicKey)
	tx.from = &from
	return nil
}

// From recovers the sender address from the signature.
func (tx *Transaction) From() (common.Address, error) {
	if tx.from != nil {
		return *tx.from, nil
	}
	if tx.R == nil || tx.S == nil || tx.V == nil {
		return common.Address{}, ErrMissingSignature
	}
	if tx.V.Uint64() < 27 || tx.R.BitLen() > 256 || tx.S.BitLen() > 256 {
		return common.Address{}, ErrInvalidSignature
	}
	hash, err := tx.SigHash()
	if err != nil {
		return common.Address{}, err
	}
	sig := make([]byte, 65)
	copy(sig[32-len(tx.R.Bytes()):32], tx.R.Bytes())
	copy(sig[64-len(tx.S.Bytes()):64], tx.S.Bytes())
	sig[64] = byte(tx.V.Uint64() - 27)
	pubKey, err := crypto.SigToPub(hash.Bytes(), sig)
	if err != nil {
		return common.Address{}, ErrInvalidSignature
	}
	from := crypto.PubkeyToAddress(*pubKey)
	tx.from = &from
	return from, nil
}
