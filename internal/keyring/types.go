package keyring

import (
	"context"
	"encoding/json"
	"maps"
	"slices"

	"github.com/ethereum/go-ethereum/common"
)

// AccountType is the CAIP-style account kind.
type AccountType string

const (
	AccountTypeEOA     AccountType = "eip155:eoa"
	AccountTypeERC4337 AccountType = "eip155:erc4337"
)

const signerName = "ERC4337Signer"

// SupportedMethods are the signing methods accounts and the signer advertise.
var SupportedMethods = []string{
	MethodSendTransaction.String(),
	MethodSignTransaction.String(),
}

// Account is a smart contract account owned by the root signer. Only Name
// may change after creation.
type Account struct {
	ID      string         `json:"id"`
	Name    string         `json:"name"`
	Address string         `json:"address"`
	Type    AccountType    `json:"type"`
	Options map[string]any `json:"options"`
	Methods []string       `json:"methods"`
}

func (a Account) clone() Account {
	cp := a
	cp.Options = maps.Clone(a.Options)
	if cp.Options == nil {
		cp.Options = map[string]any{}
	}
	cp.Methods = append([]string(nil), a.Methods...)
	return cp
}

// RPCRequest is the method call carried by a keyring request.
type RPCRequest struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Request is a keyring signing request. Scope is a CAIP-2 chain id and may
// be empty.
type Request struct {
	ID      string     `json:"id"`
	Scope   string     `json:"scope"`
	Account string     `json:"account"`
	Request RPCRequest `json:"request"`
}

// SubmitResponse is the result of SubmitRequest. Requests are always
// answered synchronously so Pending is false.
type SubmitResponse struct {
	Pending bool   `json:"pending"`
	Result  string `json:"result"`
}

// OperationSent describes a user operation accepted by the bundler.
type OperationSent struct {
	RequestID  string `json:"requestId"`
	AccountID  string `json:"accountId"`
	Sender     string `json:"sender"`
	ChainID    uint64 `json:"chainId"`
	Method     string `json:"method"`
	UserOpHash string `json:"userOpHash"`
}

// SignerInfo is the public view of the root signer.
type SignerInfo struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Type    string   `json:"type"`
	Address string   `json:"address"`
	Methods []string `json:"methods"`
}

// Notifier receives host notifications. Calls are best effort: errors are
// logged and never undo the persisted change.
type Notifier interface {
	AccountCreated(ctx context.Context, account Account) error
	AccountUpdated(ctx context.Context, account Account) error
	AccountDeleted(ctx context.Context, account Account) error
	UserOperationSent(ctx context.Context, sent OperationSent) error
}

// NopNotifier discards notifications.
type NopNotifier struct{}

func (NopNotifier) AccountCreated(context.Context, Account) error          { return nil }
func (NopNotifier) AccountUpdated(context.Context, Account) error          { return nil }
func (NopNotifier) AccountDeleted(context.Context, Account) error          { return nil }
func (NopNotifier) UserOperationSent(context.Context, OperationSent) error { return nil }

// persisted form; never leaves the package

type walletRecord struct {
	Account  Account `json:"account"`
	SignerID string  `json:"signerId"`
}

type signerRecord struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Address common.Address  `json:"address"`
	Key     json.RawMessage `json:"key"` // encrypted keystore JSON
	Methods []string        `json:"methods"`
}

type keyringState struct {
	Wallets  map[string]walletRecord `json:"wallets"`
	Order    []string                `json:"order"`
	Requests map[string]Request      `json:"requests"`
	Signer   *signerRecord           `json:"signer,omitempty"`
}

func newKeyringState() *keyringState {
	return &keyringState{
		Wallets:  make(map[string]walletRecord),
		Order:    []string{},
		Requests: make(map[string]Request),
	}
}

func (s *keyringState) clone() *keyringState {
	cp := &keyringState{
		Wallets:  make(map[string]walletRecord, len(s.Wallets)),
		Order:    append([]string{}, s.Order...),
		Requests: maps.Clone(s.Requests),
	}
	for id, w := range s.Wallets {
		cp.Wallets[id] = walletRecord{Account: w.Account.clone(), SignerID: w.SignerID}
	}
	if s.Signer != nil {
		sig := *s.Signer
		sig.Key = append(json.RawMessage(nil), s.Signer.Key...)
		sig.Methods = append([]string(nil), s.Signer.Methods...)
		cp.Signer = &sig
	}
	return cp
}

// normalize repairs nil maps and an order list out of sync with the wallets.
func (s *keyringState) normalize() {
	if s.Wallets == nil {
		s.Wallets = make(map[string]walletRecord)
	}
	if s.Requests == nil {
		s.Requests = make(map[string]Request)
	}

	seen := make(map[string]bool, len(s.Order))
	order := make([]string, 0, len(s.Wallets))
	for _, id := range s.Order {
		if _, ok := s.Wallets[id]; ok && !seen[id] {
			seen[id] = true
			order = append(order, id)
		}
	}
	var missing []string
	for id := range s.Wallets {
		if !seen[id] {
			missing = append(missing, id)
		}
	}
	slices.Sort(missing)
	s.Order = append(order, missing...)
}
