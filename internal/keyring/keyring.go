// Package keyring manages the root signer and the smart contract accounts it
// owns, and answers signing requests through the user operation pipeline.
package keyring

import (
	"context"
	"encoding/json"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/yolodolo42/scwkeyring/internal/bundler"
	"github.com/yolodolo42/scwkeyring/internal/chain"
	"github.com/yolodolo42/scwkeyring/internal/errs"
	"github.com/yolodolo42/scwkeyring/internal/state"
	"github.com/yolodolo42/scwkeyring/internal/userop"
	"github.com/yolodolo42/scwkeyring/internal/wallet"
)

// OperationBuilder derives account addresses and draft operations.
type OperationBuilder interface {
	AccountAddress(ctx context.Context, chainID uint64, owner common.Address) (common.Address, error)
	Build(ctx context.Context, chainID uint64, sender, owner common.Address, call userop.Call) (*userop.UserOperation, error)
}

// OperationSigner hashes and signs operations.
type OperationSigner interface {
	Sign(ctx context.Context, chainID uint64, op *userop.UserOperation, signer wallet.Signer) (common.Hash, error)
}

// Bundler is the bundler and paymaster endpoint.
type Bundler interface {
	GasPrice(ctx context.Context, chainID uint64) (*bundler.GasPrice, error)
	Sponsor(ctx context.Context, chainID uint64, op *userop.UserOperation) (*bundler.Sponsorship, error)
	Send(ctx context.Context, chainID uint64, op *userop.UserOperation) (common.Hash, error)
}

// Config holds keyring settings.
type Config struct {
	// DefaultChainID is the active chain when a request names none.
	DefaultChainID uint64
	// Passphrase encrypts the root key inside the persisted state.
	Passphrase string
	Scrypt     wallet.ScryptParams
}

// Deps are the keyring collaborators.
type Deps struct {
	Store    state.Store
	Registry *chain.Registry
	Builder  OperationBuilder
	Signer   OperationSigner
	Bundler  Bundler
	Notifier Notifier
}

// Keyring is the account manager. All state is private; callers get copies.
type Keyring struct {
	cfg      Config
	store    state.Store
	registry *chain.Registry
	builder  OperationBuilder
	signer   OperationSigner
	bundler  Bundler
	notifier Notifier

	// opMu serializes create, update and delete across read, mutate,
	// persist and notify.
	opMu sync.Mutex

	// mu guards st and unlocked. Never held across a remote call.
	mu       sync.RWMutex
	st       *keyringState
	unlocked *wallet.KeySigner
}

// New loads persisted state and returns a ready keyring.
func New(ctx context.Context, deps Deps, cfg Config) (*Keyring, error) {
	if deps.Store == nil || deps.Registry == nil || deps.Builder == nil || deps.Signer == nil || deps.Bundler == nil {
		return nil, errs.New(errs.KindInternal, "keyring: store, registry, builder, signer and bundler are required")
	}
	if deps.Notifier == nil {
		deps.Notifier = NopNotifier{}
	}
	if cfg.Scrypt.N == 0 {
		cfg.Scrypt = wallet.StandardScrypt()
	}

	k := &Keyring{
		cfg:      cfg,
		store:    deps.Store,
		registry: deps.Registry,
		builder:  deps.Builder,
		signer:   deps.Signer,
		bundler:  deps.Bundler,
		notifier: deps.Notifier,
	}

	st, err := k.load(ctx)
	if err != nil {
		return nil, err
	}
	k.st = st
	return k, nil
}

func (k *Keyring) load(ctx context.Context) (*keyringState, error) {
	blob, err := k.store.Load(ctx)
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, err, "load keyring state")
	}
	st := newKeyringState()
	if len(blob) > 0 {
		if err := json.Unmarshal(blob, st); err != nil {
			return nil, errs.Wrap(errs.KindInternal, err, "decode keyring state")
		}
	}
	st.normalize()
	return st, nil
}

// commit persists next and, only when that succeeds, makes it current.
func (k *Keyring) commit(ctx context.Context, next *keyringState) error {
	blob, err := json.Marshal(next)
	if err != nil {
		return errs.Wrap(errs.KindInternal, err, "encode keyring state")
	}
	if err := k.store.Save(ctx, blob); err != nil {
		return errs.Wrap(errs.KindInternal, err, "save keyring state")
	}

	k.mu.Lock()
	k.st = next
	k.mu.Unlock()
	return nil
}

// snapshot returns a private copy of the current state.
func (k *Keyring) snapshot() *keyringState {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.st.clone()
}

// Close zeros the unlocked root key.
func (k *Keyring) Close() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.unlocked != nil {
		k.unlocked.Lock()
		k.unlocked = nil
	}
}

// DefaultChainID is the configured active chain.
func (k *Keyring) DefaultChainID() uint64 {
	return k.cfg.DefaultChainID
}

// ListAccounts returns every account in insertion order.
func (k *Keyring) ListAccounts() []Account {
	k.mu.RLock()
	defer k.mu.RUnlock()

	out := make([]Account, 0, len(k.st.Order))
	for _, id := range k.st.Order {
		out = append(out, k.st.Wallets[id].Account.clone())
	}
	return out
}

// GetAccount returns the account with id.
func (k *Keyring) GetAccount(id string) (Account, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	w, ok := k.st.Wallets[id]
	if !ok {
		return Account{}, errs.New(errs.KindNotFound, "account %q not found", id)
	}
	return w.Account.clone(), nil
}

// Signer returns the root signer, if one has been created.
func (k *Keyring) Signer() (SignerInfo, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	if k.st.Signer == nil {
		return SignerInfo{}, false
	}
	return SignerInfo{
		ID:      k.st.Signer.ID,
		Name:    k.st.Signer.Name,
		Type:    string(AccountTypeEOA),
		Address: k.st.Signer.Address.Hex(),
		Methods: append([]string(nil), k.st.Signer.Methods...),
	}, true
}

// CreateAccount derives a new account for the root signer on the active
// chain. options["chainId"] overrides the active chain.
func (k *Keyring) CreateAccount(ctx context.Context, name string, options map[string]any) (Account, error) {
	if strings.TrimSpace(name) == "" {
		return Account{}, errs.New(errs.KindInvalidParams, "account name is required")
	}

	k.opMu.Lock()
	defer k.opMu.Unlock()

	next := k.snapshot()
	if nameTaken(next, name, "") {
		return Account{}, errs.New(errs.KindDuplicateName, "account name %q already in use", name)
	}

	chainID, override, err := chainFromOptions(options)
	if err != nil {
		return Account{}, err
	}
	if !override {
		chainID = k.cfg.DefaultChainID
	}
	cfg, err := k.registry.Lookup(chainID)
	if err != nil {
		return Account{}, err
	}

	owner, err := k.ensureSigner(next)
	if err != nil {
		return Account{}, err
	}

	address, err := k.builder.AccountAddress(ctx, cfg.ChainID, owner.Address)
	if err != nil {
		return Account{}, err
	}
	if other, ok := addressHeld(next, address); ok {
		log.Warn().
			Str("address", address.Hex()).
			Str("existing_account", other).
			Msg("account address already held under another id")
	}

	account := Account{
		ID:      uuid.NewString(),
		Name:    name,
		Address: address.Hex(),
		Type:    AccountTypeERC4337,
		Options: copyOptions(options),
		Methods: append([]string(nil), SupportedMethods...),
	}
	next.Wallets[account.ID] = walletRecord{Account: account, SignerID: owner.ID}
	next.Order = append(next.Order, account.ID)

	if err := k.commit(ctx, next); err != nil {
		return Account{}, err
	}

	log.Info().
		Str("account_id", account.ID).
		Str("name", account.Name).
		Str("address", account.Address).
		Uint64("chain_id", cfg.ChainID).
		Msg("account created")

	k.notify(ctx, "AccountCreated", func(ctx context.Context) error {
		return k.notifier.AccountCreated(ctx, account.clone())
	})
	return account.clone(), nil
}

// ensureSigner adds a fresh root signer to st when it has none. The key is
// only kept if st is committed.
func (k *Keyring) ensureSigner(st *keyringState) (*signerRecord, error) {
	if st.Signer != nil {
		return st.Signer, nil
	}

	key, err := wallet.GenerateRootKey(k.cfg.Passphrase, k.cfg.Scrypt)
	if err != nil {
		return nil, errs.Wrap(errs.KindSigningError, err, "generate root signer")
	}
	st.Signer = &signerRecord{
		ID:      uuid.NewString(),
		Name:    signerName,
		Address: key.Address,
		Key:     key.KeyJSON,
		Methods: append([]string(nil), SupportedMethods...),
	}
	log.Info().Str("address", key.Address.Hex()).Msg("root signer generated")
	return st.Signer, nil
}

// ImportSigner installs an existing private key as the root signer. It is
// only allowed before any signer exists, since every account is owned by it.
func (k *Keyring) ImportSigner(ctx context.Context, privateKeyHex string) (SignerInfo, error) {
	k.opMu.Lock()
	defer k.opMu.Unlock()

	next := k.snapshot()
	if next.Signer != nil {
		return SignerInfo{}, errs.New(errs.KindUnsupported, "root signer %s already exists", next.Signer.Address.Hex())
	}

	key, err := wallet.ImportRootKey(privateKeyHex, k.cfg.Passphrase, k.cfg.Scrypt)
	if err != nil {
		return SignerInfo{}, errs.Wrap(errs.KindInvalidParams, err, "import root signer")
	}
	next.Signer = &signerRecord{
		ID:      uuid.NewString(),
		Name:    signerName,
		Address: key.Address,
		Key:     key.KeyJSON,
		Methods: append([]string(nil), SupportedMethods...),
	}
	if err := k.commit(ctx, next); err != nil {
		return SignerInfo{}, err
	}

	log.Info().Str("address", key.Address.Hex()).Msg("root signer imported")
	info, _ := k.Signer()
	return info, nil
}

// FilterAccountChains keeps the EVM chain ids. The account is not consulted.
func (k *Keyring) FilterAccountChains(_ string, chains []string) []string {
	out := make([]string, 0, len(chains))
	for _, c := range chains {
		if chain.IsEVMChain(c) {
			out = append(out, c)
		}
	}
	return out
}

// UpdateAccount renames an account. All other fields are kept from the
// stored record whatever the caller sent.
func (k *Keyring) UpdateAccount(ctx context.Context, account Account) error {
	k.opMu.Lock()
	defer k.opMu.Unlock()

	next := k.snapshot()
	rec, ok := next.Wallets[account.ID]
	if !ok {
		return errs.New(errs.KindNotFound, "account %q not found", account.ID)
	}
	if strings.TrimSpace(account.Name) == "" {
		return errs.New(errs.KindInvalidParams, "account name is required")
	}
	if nameTaken(next, account.Name, account.ID) {
		return errs.New(errs.KindDuplicateName, "account name %q already in use", account.Name)
	}

	rec.Account.Name = account.Name
	next.Wallets[account.ID] = rec

	if err := k.commit(ctx, next); err != nil {
		return err
	}

	log.Info().Str("account_id", account.ID).Str("name", account.Name).Msg("account updated")

	updated := rec.Account.clone()
	k.notify(ctx, "AccountUpdated", func(ctx context.Context) error {
		return k.notifier.AccountUpdated(ctx, updated)
	})
	return nil
}

// DeleteAccount removes an account. Unknown ids are not an error.
func (k *Keyring) DeleteAccount(ctx context.Context, id string) error {
	k.opMu.Lock()
	defer k.opMu.Unlock()

	next := k.snapshot()
	rec, ok := next.Wallets[id]
	if !ok {
		return nil
	}
	delete(next.Wallets, id)
	next.Order = slices.DeleteFunc(next.Order, func(v string) bool { return v == id })

	if err := k.commit(ctx, next); err != nil {
		return err
	}

	log.Info().Str("account_id", id).Msg("account deleted")

	deleted := rec.Account.clone()
	k.notify(ctx, "AccountDeleted", func(ctx context.Context) error {
		return k.notifier.AccountDeleted(ctx, deleted)
	})
	return nil
}

// ListRequests returns pending requests ordered by id.
func (k *Keyring) ListRequests() []Request {
	k.mu.RLock()
	defer k.mu.RUnlock()

	out := make([]Request, 0, len(k.st.Requests))
	for _, r := range k.st.Requests {
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b Request) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// GetRequest returns the pending request with id.
func (k *Keyring) GetRequest(id string) (Request, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	r, ok := k.st.Requests[id]
	if !ok {
		return Request{}, errs.New(errs.KindNotFound, "request %q not found", id)
	}
	return r, nil
}

// ApproveRequest always fails: requests are answered inside SubmitRequest.
func (k *Keyring) ApproveRequest(_ context.Context, id string) error {
	return errs.New(errs.KindUnsupported, "approveRequest is not supported by a synchronous keyring (request %q)", id)
}

// RejectRequest always fails: requests are answered inside SubmitRequest.
func (k *Keyring) RejectRequest(_ context.Context, id string) error {
	return errs.New(errs.KindUnsupported, "rejectRequest is not supported by a synchronous keyring (request %q)", id)
}

// notify delivers a host notification; failures are logged only.
func (k *Keyring) notify(ctx context.Context, event string, fn func(context.Context) error) {
	if err := fn(ctx); err != nil {
		log.Warn().Err(err).Str("event", event).Msg("host notification failed")
	}
}

func nameTaken(st *keyringState, name, excludeID string) bool {
	for id, w := range st.Wallets {
		if id != excludeID && w.Account.Name == name {
			return true
		}
	}
	return false
}

func addressHeld(st *keyringState, address common.Address) (string, bool) {
	for _, id := range st.Order {
		if common.HexToAddress(st.Wallets[id].Account.Address) == address {
			return id, true
		}
	}
	return "", false
}

func copyOptions(options map[string]any) map[string]any {
	out := make(map[string]any, len(options))
	maps.Copy(out, options)
	return out
}
