package keyring

import (
	"context"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
	"github.com/yolodolo42/scwkeyring/internal/chain"
	"github.com/yolodolo42/scwkeyring/internal/errs"
	"github.com/yolodolo42/scwkeyring/internal/userop"
	"github.com/yolodolo42/scwkeyring/internal/wallet"
)

// SubmitRequest runs a signing request to completion: build, price,
// sponsor, sign and submit. Local checks happen before any remote call.
// A caller that cancels after sponsorship gets an error and nothing is
// submitted.
func (k *Keyring) SubmitRequest(ctx context.Context, req Request) (SubmitResponse, error) {
	method, err := ParseSigningMethod(req.Request.Method)
	if err != nil {
		return SubmitResponse{}, err
	}

	from, tx, err := decodeTransactionParams(req.Request.Params)
	if err != nil {
		return SubmitResponse{}, err
	}

	chainID, err := k.requestChain(req.Scope, tx)
	if err != nil {
		return SubmitResponse{}, err
	}
	if _, err := k.registry.Lookup(chainID); err != nil {
		return SubmitResponse{}, err
	}

	account, err := k.accountByAddress(from)
	if err != nil {
		return SubmitResponse{}, err
	}

	owner, err := k.rootSigner()
	if err != nil {
		return SubmitResponse{}, err
	}

	logger := log.With().
		Str("request_id", req.ID).
		Str("method", method.String()).
		Str("sender", from.Hex()).
		Uint64("chain_id", chainID).
		Logger()

	op, err := k.builder.Build(ctx, chainID, from, owner.Address(), userop.Call{
		To:    *tx.To,
		Value: tx.value(),
		Data:  tx.data(),
	})
	if err != nil {
		return SubmitResponse{}, err
	}

	price, err := k.bundler.GasPrice(ctx, chainID)
	if err != nil {
		return SubmitResponse{}, err
	}
	price.Apply(op)

	sponsorship, err := k.bundler.Sponsor(ctx, chainID, op)
	if err != nil {
		logger.Warn().Err(err).Msg("sponsorship failed, not submitting")
		return SubmitResponse{}, err
	}
	sponsorship.Apply(op)

	hash, err := k.signer.Sign(ctx, chainID, op, owner)
	if err != nil {
		return SubmitResponse{}, err
	}

	if err := ctx.Err(); err != nil {
		logger.Info().Msg("request cancelled before submission, discarding operation")
		return SubmitResponse{}, errs.Wrap(errs.KindInternal, err, "request cancelled before submission")
	}

	opHash, err := k.bundler.Send(ctx, chainID, op)
	if err != nil {
		logger.Error().Err(err).Str("kind", errs.KindOf(err).String()).Msg("submission failed")
		return SubmitResponse{}, err
	}

	logger.Info().
		Str("signed_hash", hash.Hex()).
		Str("user_op_hash", opHash.Hex()).
		Msg("user operation sent")

	sent := OperationSent{
		RequestID:  req.ID,
		AccountID:  account.ID,
		Sender:     from.Hex(),
		ChainID:    chainID,
		Method:     method.String(),
		UserOpHash: opHash.Hex(),
	}
	k.notify(ctx, "UserOperationSent", func(ctx context.Context) error {
		return k.notifier.UserOperationSent(ctx, sent)
	})

	return SubmitResponse{Pending: false, Result: opHash.Hex()}, nil
}

// requestChain picks the request scope, then tx.chainId, then the active chain.
func (k *Keyring) requestChain(scope string, tx *TransactionParams) (uint64, error) {
	if strings.TrimSpace(scope) != "" {
		id, err := chain.ParseChainID(scope)
		if err != nil {
			return 0, errs.Wrap(errs.KindUnsupportedChain, err, "request scope %q", scope)
		}
		return id, nil
	}
	if tx.ChainID != nil && tx.ChainID.Sign() > 0 {
		if !tx.ChainID.IsUint64() {
			return 0, errs.New(errs.KindUnsupportedChain, "chain id %s out of range", tx.ChainID.String())
		}
		return tx.ChainID.Uint64(), nil
	}
	return k.cfg.DefaultChainID, nil
}

func (k *Keyring) accountByAddress(address common.Address) (Account, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	for _, id := range k.st.Order {
		w := k.st.Wallets[id]
		if common.HexToAddress(w.Account.Address) == address {
			return w.Account.clone(), nil
		}
	}
	return Account{}, errs.New(errs.KindNotFound, "no account for address %s", address.Hex())
}

// rootSigner returns the unlocked root key, decrypting it on first use.
func (k *Keyring) rootSigner() (*wallet.KeySigner, error) {
	k.mu.RLock()
	unlocked := k.unlocked
	var rec *signerRecord
	if k.st.Signer != nil {
		cp := *k.st.Signer
		rec = &cp
	}
	k.mu.RUnlock()

	if unlocked != nil {
		return unlocked, nil
	}
	if rec == nil {
		return nil, errs.New(errs.KindSigningError, "no root signer")
	}

	signer, err := wallet.UnlockRootKey(rec.Key, k.cfg.Passphrase)
	if err != nil {
		return nil, errs.Wrap(errs.KindSigningError, err, "load root signer")
	}
	if signer.Address() != rec.Address {
		signer.Lock()
		return nil, errs.New(errs.KindSigningError, "root key does not match signer address %s", rec.Address.Hex())
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if k.unlocked != nil {
		signer.Lock()
		return k.unlocked, nil
	}
	k.unlocked = signer
	return signer, nil
}
