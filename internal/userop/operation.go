// Package userop builds and signs EntryPoint v0.6 user operations.
package userop

import (
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Default gas limits applied before sponsorship.
var (
	DefaultPreVerificationGas   = big.NewInt(50_000)
	DefaultVerificationGasLimit = big.NewInt(400_000)
	DefaultCallGasLimit         = big.NewInt(100_000)
)

// UserOperation is the EntryPoint v0.6 UserOperation struct. Field names
// match the ABI tuple components so the value packs directly.
type UserOperation struct {
	Sender               common.Address `abi:"sender"`
	Nonce                *big.Int       `abi:"nonce"`
	InitCode             []byte         `abi:"initCode"`
	CallData             []byte         `abi:"callData"`
	CallGasLimit         *big.Int       `abi:"callGasLimit"`
	VerificationGasLimit *big.Int       `abi:"verificationGasLimit"`
	PreVerificationGas   *big.Int       `abi:"preVerificationGas"`
	MaxFeePerGas         *big.Int       `abi:"maxFeePerGas"`
	MaxPriorityFeePerGas *big.Int       `abi:"maxPriorityFeePerGas"`
	PaymasterAndData     []byte         `abi:"paymasterAndData"`
	Signature            []byte         `abi:"signature"`
}

// Draft returns an operation with zero gas fields and empty sponsorship and
// signature.
func Draft(sender common.Address, nonce *big.Int, initCode, callData []byte) *UserOperation {
	return &UserOperation{
		Sender:               sender,
		Nonce:                nonce,
		InitCode:             initCode,
		CallData:             callData,
		CallGasLimit:         new(big.Int),
		VerificationGasLimit: new(big.Int),
		PreVerificationGas:   new(big.Int),
		MaxFeePerGas:         new(big.Int),
		MaxPriorityFeePerGas: new(big.Int),
		PaymasterAndData:     []byte{},
		Signature:            []byte{},
	}
}

// ApplyDefaultGas fills the fixed gas limits.
func (op *UserOperation) ApplyDefaultGas() {
	op.PreVerificationGas = new(big.Int).Set(DefaultPreVerificationGas)
	op.VerificationGasLimit = new(big.Int).Set(DefaultVerificationGasLimit)
	op.CallGasLimit = new(big.Int).Set(DefaultCallGasLimit)
}

func copyBig(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}

// userOperationJSON is the bundler wire form.
type userOperationJSON struct {
	Sender               common.Address `json:"sender"`
	Nonce                *hexutil.Big   `json:"nonce"`
	InitCode             hexutil.Bytes  `json:"initCode"`
	CallData             hexutil.Bytes  `json:"callData"`
	CallGasLimit         *hexutil.Big   `json:"callGasLimit"`
	VerificationGasLimit *hexutil.Big   `json:"verificationGasLimit"`
	PreVerificationGas   *hexutil.Big   `json:"preVerificationGas"`
	MaxFeePerGas         *hexutil.Big   `json:"maxFeePerGas"`
	MaxPriorityFeePerGas *hexutil.Big   `json:"maxPriorityFeePerGas"`
	PaymasterAndData     hexutil.Bytes  `json:"paymasterAndData"`
	Signature            hexutil.Bytes  `json:"signature"`
}

func (op UserOperation) MarshalJSON() ([]byte, error) {
	return json.Marshal(userOperationJSON{
		Sender:               op.Sender,
		Nonce:                (*hexutil.Big)(copyBig(op.Nonce)),
		InitCode:             op.InitCode,
		CallData:             op.CallData,
		CallGasLimit:         (*hexutil.Big)(copyBig(op.CallGasLimit)),
		VerificationGasLimit: (*hexutil.Big)(copyBig(op.VerificationGasLimit)),
		PreVerificationGas:   (*hexutil.Big)(copyBig(op.PreVerificationGas)),
		MaxFeePerGas:         (*hexutil.Big)(copyBig(op.MaxFeePerGas)),
		MaxPriorityFeePerGas: (*hexutil.Big)(copyBig(op.MaxPriorityFeePerGas)),
		PaymasterAndData:     op.PaymasterAndData,
		Signature:            op.Signature,
	})
}

func (op *UserOperation) UnmarshalJSON(data []byte) error {
	var raw userOperationJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*op = UserOperation{
		Sender:               raw.Sender,
		Nonce:                raw.Nonce.ToInt(),
		InitCode:             raw.InitCode,
		CallData:             raw.CallData,
		CallGasLimit:         raw.CallGasLimit.ToInt(),
		VerificationGasLimit: raw.VerificationGasLimit.ToInt(),
		PreVerificationGas:   raw.PreVerificationGas.ToInt(),
		MaxFeePerGas:         raw.MaxFeePerGas.ToInt(),
		MaxPriorityFeePerGas: raw.MaxPriorityFeePerGas.ToInt(),
		PaymasterAndData:     raw.PaymasterAndData,
		Signature:            raw.Signature,
	}
	return nil
}
