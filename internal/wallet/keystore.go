package wallet

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
)

var (
	ErrAccountLocked = errors.New("account is locked")
	ErrInvalidKey    = errors.New("invalid private key")
	ErrDecryptKey    = errors.New("could not decrypt key")
)

// ScryptParams selects the keystore KDF cost.
type ScryptParams struct {
	N int
	P int
}

// StandardScrypt returns go-ethereum's secure defaults.
func StandardScrypt() ScryptParams {
	return ScryptParams{N: keystore.StandardScryptN, P: keystore.StandardScryptP}
}

// LightScrypt trades KDF cost for speed; meant for tests and development.
func LightScrypt() ScryptParams {
	return ScryptParams{N: keystore.LightScryptN, P: keystore.LightScryptP}
}

// RootKey is the root signer's encrypted key material. KeyJSON is the
// Web3 Secret Storage document persisted with the keyring state.
type RootKey struct {
	Address common.Address
	KeyJSON []byte
}

// GenerateRootKey creates a fresh secp256k1 key and encrypts it with passphrase.
func GenerateRootKey(passphrase string, params ScryptParams) (*RootKey, error) {
	privateKey, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate private key: %w", err)
	}
	return encryptRootKey(&keystore.Key{
		Id:         uuid.New(),
		Address:    crypto.PubkeyToAddress(privateKey.PublicKey),
		PrivateKey: privateKey,
	}, passphrase, params)
}

// ImportRootKey encrypts an existing hex private key with passphrase.
func ImportRootKey(privateKeyHex, passphrase string, params ScryptParams) (*RootKey, error) {
	privateKeyHex = strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x")

	privateKey, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return encryptRootKey(&keystore.Key{
		Id:         uuid.New(),
		Address:    crypto.PubkeyToAddress(privateKey.PublicKey),
		PrivateKey: privateKey,
	}, passphrase, params)
}

func encryptRootKey(key *keystore.Key, passphrase string, params ScryptParams) (*RootKey, error) {
	keyJSON, err := keystore.EncryptKey(key, passphrase, params.N, params.P)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt private key: %w", err)
	}
	return &RootKey{Address: key.Address, KeyJSON: keyJSON}, nil
}

// UnlockRootKey decrypts keyJSON and returns a signer holding the key.
// The caller should Lock the signer once done with it.
func UnlockRootKey(keyJSON []byte, passphrase string) (*KeySigner, error) {
	key, err := keystore.DecryptKey(keyJSON, passphrase)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptKey, err)
	}
	return &KeySigner{
		address: key.Address,
		key:     key.PrivateKey,
	}, nil
}
