package wallet

import (
	"crypto/ecdsa"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer is the interface for signing with the root key.
type Signer interface {
	// Address returns the Ethereum address of the signer
	Address() common.Address

	// SignMessage signs an arbitrary message (EIP-191 personal sign)
	SignMessage(message []byte) ([]byte, error)
}

// KeySigner holds a decrypted secp256k1 key.
type KeySigner struct {
	// mu protects key from concurrent access. Prevents signing operations from
	// racing with Lock() which zeros the key material.
	mu      sync.RWMutex
	address common.Address
	key     *ecdsa.PrivateKey // nil when locked
}

var _ Signer = (*KeySigner)(nil)

// Address returns the address of the signer
func (ks *KeySigner) Address() common.Address {
	return ks.address
}

// SignMessage signs an arbitrary message using EIP-191 personal sign
func (ks *KeySigner) SignMessage(message []byte) ([]byte, error) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()

	if ks.key == nil {
		return nil, ErrAccountLocked
	}

	sig, err := crypto.Sign(PersonalHash(message), ks.key)
	if err != nil {
		return nil, err
	}

	// crypto.Sign yields V in {0,1}; ecrecover and wallets expect {27,28}.
	sig[64] += 27

	return sig, nil
}

// Lock zeros the private key material. Safe to call multiple times. After
// Lock, all signing operations return ErrAccountLocked.
func (ks *KeySigner) Lock() {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	if ks.key != nil {
		ks.key.D.SetInt64(0)
		ks.key = nil
	}
}

// PersonalHash is keccak256("\x19Ethereum Signed Message:\n" + len + message).
func PersonalHash(message []byte) []byte {
	prefix := fmt.Sprintf("\x19Ethereum Signed Message:\n%d", len(message))
	return crypto.Keccak256([]byte(prefix), message)
}

// RecoverPersonal returns the address that produced a SignMessage signature.
func RecoverPersonal(message, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("invalid signature length %d", len(sig))
	}
	normalized := make([]byte, len(sig))
	copy(normalized, sig)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}
	pub, err := crypto.SigToPub(PersonalHash(message), normalized)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(*pub), nil
}
