// Package useroptest installs fake factory and EntryPoint contracts on a
// testutil.FakeChain.
package useroptest

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/yolodolo42/scwkeyring/internal/chain"
	"github.com/yolodolo42/scwkeyring/internal/testutil"
	"github.com/yolodolo42/scwkeyring/internal/userop"
)

// Contracts answers getAddress, getNonce and getUserOpHash for one chain.
type Contracts struct {
	Chain chain.ChainConfig

	mu     sync.Mutex
	nonces map[common.Address]*big.Int
}

// Install registers the contract handlers for cfg on fc.
func Install(fc *testutil.FakeChain, cfg chain.ChainConfig) *Contracts {
	c := &Contracts{Chain: cfg, nonces: make(map[common.Address]*big.Int)}

	getAddress := userop.FactoryABI.Methods["getAddress"]
	fc.HandleView(cfg.AccountFactory, getAddress.ID, func(input []byte) ([]byte, error) {
		args, err := getAddress.Inputs.Unpack(input[4:])
		if err != nil {
			return nil, err
		}
		owner := args[0].(common.Address)
		return getAddress.Outputs.Pack(c.AccountAddress(owner))
	})

	getNonce := userop.EntryPointABI.Methods["getNonce"]
	fc.HandleView(cfg.EntryPoint, getNonce.ID, func(input []byte) ([]byte, error) {
		args, err := getNonce.Inputs.Unpack(input[4:])
		if err != nil {
			return nil, err
		}
		return getNonce.Outputs.Pack(c.Nonce(args[0].(common.Address)))
	})

	getUserOpHash := userop.EntryPointABI.Methods["getUserOpHash"]
	fc.HandleView(cfg.EntryPoint, getUserOpHash.ID, func(input []byte) ([]byte, error) {
		return getUserOpHash.Outputs.Pack(c.hashInput(input))
	})

	return c
}

// AccountAddress is the address the fake factory reports for owner.
func (c *Contracts) AccountAddress(owner common.Address) common.Address {
	return common.BytesToAddress(crypto.Keccak256(c.Chain.AccountFactory.Bytes(), owner.Bytes())[12:])
}

// SetNonce sets the EntryPoint nonce for sender.
func (c *Contracts) SetNonce(sender common.Address, nonce int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nonces[sender] = big.NewInt(nonce)
}

func (c *Contracts) Nonce(sender common.Address) *big.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n, ok := c.nonces[sender]; ok {
		return new(big.Int).Set(n)
	}
	return new(big.Int)
}

// ExpectedHash is what the fake EntryPoint returns for op.
func (c *Contracts) ExpectedHash(op *userop.UserOperation) common.Hash {
	input, err := userop.EntryPointABI.Pack("getUserOpHash", *op)
	if err != nil {
		panic(fmt.Sprintf("pack getUserOpHash: %v", err))
	}
	return common.Hash(c.hashInput(input))
}

// hashInput binds the encoded operation to the entry point and chain.
func (c *Contracts) hashInput(input []byte) [32]byte {
	var out [32]byte
	copy(out[:], crypto.Keccak256(input[4:], c.Chain.EntryPoint.Bytes(), c.Chain.BigChainID().Bytes()))
	return out
}
