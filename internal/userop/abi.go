package userop

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// SimpleAccountFactory v0.6
const factoryABIJSON = `[
  {"inputs":[{"internalType":"address","name":"owner","type":"address"},{"internalType":"uint256","name":"salt","type":"uint256"}],
   "name":"createAccount","outputs":[{"internalType":"contract SimpleAccount","name":"ret","type":"address"}],"stateMutability":"nonpayable","type":"function"},
  {"inputs":[{"internalType":"address","name":"owner","type":"address"},{"internalType":"uint256","name":"salt","type":"uint256"}],
   "name":"getAddress","outputs":[{"internalType":"address","name":"","type":"address"}],"stateMutability":"view","type":"function"}
]`

// SimpleAccount v0.6
const accountABIJSON = `[
  {"inputs":[{"internalType":"address","name":"dest","type":"address"},{"internalType":"uint256","name":"value","type":"uint256"},{"internalType":"bytes","name":"func","type":"bytes"}],
   "name":"execute","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`

// EntryPoint v0.6, only the views used here.
const entryPointABIJSON = `[
  {"inputs":[{"internalType":"address","name":"sender","type":"address"},{"internalType":"uint192","name":"key","type":"uint192"}],
   "name":"getNonce","outputs":[{"internalType":"uint256","name":"nonce","type":"uint256"}],"stateMutability":"view","type":"function"},
  {"inputs":[{"components":[
      {"internalType":"address","name":"sender","type":"address"},
      {"internalType":"uint256","name":"nonce","type":"uint256"},
      {"internalType":"bytes","name":"initCode","type":"bytes"},
      {"internalType":"bytes","name":"callData","type":"bytes"},
      {"internalType":"uint256","name":"callGasLimit","type":"uint256"},
      {"internalType":"uint256","name":"verificationGasLimit","type":"uint256"},
      {"internalType":"uint256","name":"preVerificationGas","type":"uint256"},
      {"internalType":"uint256","name":"maxFeePerGas","type":"uint256"},
      {"internalType":"uint256","name":"maxPriorityFeePerGas","type":"uint256"},
      {"internalType":"bytes","name":"paymasterAndData","type":"bytes"},
      {"internalType":"bytes","name":"signature","type":"bytes"}
  ],"internalType":"struct UserOperation","name":"userOp","type":"tuple"}],
   "name":"getUserOpHash","outputs":[{"internalType":"bytes32","name":"","type":"bytes32"}],"stateMutability":"view","type":"function"}
]`

var (
	FactoryABI    = mustParseABI(factoryABIJSON)
	AccountABI    = mustParseABI(accountABIJSON)
	EntryPointABI = mustParseABI(entryPointABIJSON)
)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("invalid contract ABI: %v", err))
	}
	return parsed
}

// salt is always zero: one account per owner per factory.
var accountSalt = big.NewInt(0)

// InitCode is factory ‖ createAccount(owner, 0).
func InitCode(factory, owner common.Address) ([]byte, error) {
	call, err := FactoryABI.Pack("createAccount", owner, accountSalt)
	if err != nil {
		return nil, fmt.Errorf("failed to encode createAccount: %w", err)
	}
	return append(factory.Bytes(), call...), nil
}

// ExecuteCallData encodes execute(to, value, data) on the account.
func ExecuteCallData(to common.Address, value *big.Int, data []byte) ([]byte, error) {
	if value == nil {
		value = new(big.Int)
	}
	if data == nil {
		data = []byte{}
	}
	call, err := AccountABI.Pack("execute", to, value, data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode execute: %w", err)
	}
	return call, nil
}
