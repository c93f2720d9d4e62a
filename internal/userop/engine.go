package userop

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/yolodolo42/scwkeyring/internal/chain"
	"github.com/yolodolo42/scwkeyring/internal/errs"
	"github.com/yolodolo42/scwkeyring/internal/retry"
	"github.com/yolodolo42/scwkeyring/internal/wallet"
)

// Engine hashes operations through the EntryPoint and signs them with the
// root key.
type Engine struct {
	registry    *chain.Registry
	reader      chain.Reader
	retry       retry.Policy
	callTimeout time.Duration
}

func NewEngine(registry *chain.Registry, reader chain.Reader, policy retry.Policy, callTimeout time.Duration) *Engine {
	if callTimeout <= 0 {
		callTimeout = DefaultCallTimeout
	}
	return &Engine{
		registry:    registry,
		reader:      reader,
		retry:       policy,
		callTimeout: callTimeout,
	}
}

// Hash returns EntryPoint.getUserOpHash(op) for the chain. The EntryPoint
// mixes in its own address and the chain id.
func (e *Engine) Hash(ctx context.Context, chainID uint64, op *UserOperation) (common.Hash, error) {
	cfg, err := e.registry.Lookup(chainID)
	if err != nil {
		return common.Hash{}, err
	}

	input, err := EntryPointABI.Pack("getUserOpHash", *op)
	if err != nil {
		return common.Hash{}, errs.Wrap(errs.KindInternal, err, "encode getUserOpHash")
	}

	out, err := viewCall(ctx, e.reader, e.retry, e.callTimeout, chainID, cfg.EntryPoint, input)
	if err != nil {
		return common.Hash{}, errs.Wrap(errs.KindInternal, err, "compute user operation hash on %s", cfg.Name)
	}

	values, err := EntryPointABI.Unpack("getUserOpHash", out)
	if err != nil || len(values) != 1 {
		return common.Hash{}, errs.New(errs.KindInternal, "unexpected getUserOpHash result %x", out)
	}
	raw, ok := values[0].([32]byte)
	if !ok {
		return common.Hash{}, errs.New(errs.KindInternal, "unexpected getUserOpHash result %x", out)
	}
	return common.Hash(raw), nil
}

// Sign hashes op and stores a personal-message signature over the hash bytes
// in op.Signature. It returns the hash that was signed.
func (e *Engine) Sign(ctx context.Context, chainID uint64, op *UserOperation, signer wallet.Signer) (common.Hash, error) {
	if signer == nil {
		return common.Hash{}, errs.New(errs.KindSigningError, "root key is not available")
	}

	hash, err := e.Hash(ctx, chainID, op)
	if err != nil {
		return common.Hash{}, err
	}

	sig, err := signer.SignMessage(hash.Bytes())
	if err != nil {
		return common.Hash{}, errs.Wrap(errs.KindSigningError, err, "sign user operation")
	}
	op.Signature = sig
	return hash, nil
}
