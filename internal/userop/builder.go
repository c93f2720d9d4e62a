package userop

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
	"github.com/yolodolo42/scwkeyring/internal/chain"
	"github.com/yolodolo42/scwkeyring/internal/errs"
	"github.com/yolodolo42/scwkeyring/internal/retry"
)

const DefaultCallTimeout = 10 * time.Second

// Call is the destination call executed through the account.
type Call struct {
	To    common.Address
	Value *big.Int
	Data  []byte
}

// Builder assembles draft user operations from chain state.
type Builder struct {
	registry    *chain.Registry
	reader      chain.Reader
	retry       retry.Policy
	callTimeout time.Duration
}

// NewBuilder creates a builder reading chain state through reader.
// A zero callTimeout uses DefaultCallTimeout.
func NewBuilder(registry *chain.Registry, reader chain.Reader, policy retry.Policy, callTimeout time.Duration) *Builder {
	if callTimeout <= 0 {
		callTimeout = DefaultCallTimeout
	}
	return &Builder{
		registry:    registry,
		reader:      reader,
		retry:       policy,
		callTimeout: callTimeout,
	}
}

// AccountAddress returns the counterfactual account address for owner from
// the chain's factory.
func (b *Builder) AccountAddress(ctx context.Context, chainID uint64, owner common.Address) (common.Address, error) {
	cfg, err := b.registry.Lookup(chainID)
	if err != nil {
		return common.Address{}, err
	}

	input, err := FactoryABI.Pack("getAddress", owner, accountSalt)
	if err != nil {
		return common.Address{}, errs.Wrap(errs.KindInternal, err, "encode getAddress")
	}

	out, err := b.view(ctx, chainID, cfg.AccountFactory, input)
	if err != nil {
		return common.Address{}, errs.Wrap(errs.KindInternal, err, "derive account address on %s", cfg.Name)
	}

	values, err := FactoryABI.Unpack("getAddress", out)
	if err != nil || len(values) != 1 {
		return common.Address{}, errs.New(errs.KindInternal, "unexpected getAddress result %x", out)
	}
	addr, ok := values[0].(common.Address)
	if !ok || addr == (common.Address{}) {
		return common.Address{}, errs.New(errs.KindInternal, "factory returned no address")
	}
	return addr, nil
}

// Build returns the unsigned draft for call from sender, which is owned by owner.
func (b *Builder) Build(ctx context.Context, chainID uint64, sender, owner common.Address, call Call) (*UserOperation, error) {
	cfg, err := b.registry.Lookup(chainID)
	if err != nil {
		return nil, err
	}

	deployed, err := b.isDeployed(ctx, chainID, sender)
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, err, "check deployment of %s", sender.Hex())
	}

	initCode := []byte{}
	if !deployed {
		initCode, err = InitCode(cfg.AccountFactory, owner)
		if err != nil {
			return nil, errs.Wrap(errs.KindInternal, err, "build init code")
		}
	}

	nonce, err := b.nonce(ctx, chainID, cfg.EntryPoint, sender)
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, err, "read nonce of %s", sender.Hex())
	}

	callData, err := ExecuteCallData(call.To, call.Value, call.Data)
	if err != nil {
		return nil, errs.Wrap(errs.KindInvalidParams, err, "encode call")
	}

	log.Debug().
		Uint64("chain_id", chainID).
		Str("sender", sender.Hex()).
		Bool("deployed", deployed).
		Str("nonce", nonce.String()).
		Msg("built draft user operation")

	return Draft(sender, nonce, initCode, callData), nil
}

func (b *Builder) isDeployed(ctx context.Context, chainID uint64, addr common.Address) (bool, error) {
	var code []byte
	err := retry.Do(ctx, b.retry, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, b.callTimeout)
		defer cancel()

		var err error
		code, err = b.reader.CodeAt(callCtx, chainID, addr)
		return retry.StopOnRPCError(err)
	})
	if err != nil {
		return false, err
	}
	return len(code) > 0, nil
}

func (b *Builder) nonce(ctx context.Context, chainID uint64, entryPoint, sender common.Address) (*big.Int, error) {
	input, err := EntryPointABI.Pack("getNonce", sender, new(big.Int))
	if err != nil {
		return nil, err
	}

	out, err := b.view(ctx, chainID, entryPoint, input)
	if err != nil {
		return nil, err
	}

	values, err := EntryPointABI.Unpack("getNonce", out)
	if err != nil {
		return nil, fmt.Errorf("decode getNonce: %w", err)
	}
	nonce, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected getNonce result %x", out)
	}
	return nonce, nil
}

// view runs a retried eth_call against to.
func (b *Builder) view(ctx context.Context, chainID uint64, to common.Address, input []byte) ([]byte, error) {
	return viewCall(ctx, b.reader, b.retry, b.callTimeout, chainID, to, input)
}

func viewCall(ctx context.Context, reader chain.Reader, policy retry.Policy, timeout time.Duration, chainID uint64, to common.Address, input []byte) ([]byte, error) {
	var out []byte
	err := retry.Do(ctx, policy, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		var err error
		out, err = reader.CallContract(callCtx, chainID, ethereum.CallMsg{To: &to, Data: input})
		return retry.StopOnRPCError(err)
	})
	return out, err
}
