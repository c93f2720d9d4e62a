package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/yolodolo42/scwkeyring/internal/errs"
	"github.com/yolodolo42/scwkeyring/internal/keyring"
)

// Method is a keyring API method.
type Method int

const (
	MethodListAccounts Method = iota + 1
	MethodGetAccount
	MethodCreateAccount
	MethodFilterAccountChains
	MethodUpdateAccount
	MethodDeleteAccount
	MethodListRequests
	MethodGetRequest
	MethodSubmitRequest
	MethodApproveRequest
	MethodRejectRequest
)

var methodNames = map[Method]string{
	MethodListAccounts:        "keyring_listAccounts",
	MethodGetAccount:          "keyring_getAccount",
	MethodCreateAccount:       "keyring_createAccount",
	MethodFilterAccountChains: "keyring_filterAccountChains",
	MethodUpdateAccount:       "keyring_updateAccount",
	MethodDeleteAccount:       "keyring_deleteAccount",
	MethodListRequests:        "keyring_listRequests",
	MethodGetRequest:          "keyring_getRequest",
	MethodSubmitRequest:       "keyring_submitRequest",
	MethodApproveRequest:      "keyring_approveRequest",
	MethodRejectRequest:       "keyring_rejectRequest",
}

var methodsByName = func() map[string]Method {
	out := make(map[string]Method, len(methodNames))
	for m, name := range methodNames {
		out[name] = m
	}
	return out
}()

func (m Method) String() string {
	if name, ok := methodNames[m]; ok {
		return name
	}
	return fmt.Sprintf("Method(%d)", int(m))
}

// ParseMethod decodes a keyring method name.
func ParseMethod(name string) (Method, bool) {
	m, ok := methodsByName[name]
	return m, ok
}

// Keyring is the account manager surface the handler drives.
type Keyring interface {
	ListAccounts() []keyring.Account
	GetAccount(id string) (keyring.Account, error)
	CreateAccount(ctx context.Context, name string, options map[string]any) (keyring.Account, error)
	FilterAccountChains(id string, chains []string) []string
	UpdateAccount(ctx context.Context, account keyring.Account) error
	DeleteAccount(ctx context.Context, id string) error
	ListRequests() []keyring.Request
	GetRequest(id string) (keyring.Request, error)
	SubmitRequest(ctx context.Context, req keyring.Request) (keyring.SubmitResponse, error)
	ApproveRequest(ctx context.Context, id string) error
	RejectRequest(ctx context.Context, id string) error
}

var _ Keyring = (*keyring.Keyring)(nil)

type idParams struct {
	ID string `json:"id"`
}

type createAccountParams struct {
	Name    string         `json:"name"`
	Options map[string]any `json:"options"`
}

type filterChainsParams struct {
	ID     string   `json:"id"`
	Chains []string `json:"chains"`
}

type updateAccountParams struct {
	Account *keyring.Account `json:"account"`
}

// KeyringHandler serves the keyring_* methods and declines everything else.
type KeyringHandler struct {
	kr Keyring
}

func NewKeyringHandler(kr Keyring) *KeyringHandler {
	return &KeyringHandler{kr: kr}
}

func (h *KeyringHandler) Handle(ctx context.Context, req Request) (any, error) {
	method, ok := ParseMethod(req.Method)
	if !ok {
		return nil, NotSupported(req.Method)
	}

	switch method {
	case MethodListAccounts:
		return h.kr.ListAccounts(), nil

	case MethodGetAccount:
		id, err := decodeID(req.Params)
		if err != nil {
			return nil, err
		}
		return h.kr.GetAccount(id)

	case MethodCreateAccount:
		var p createAccountParams
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		return h.kr.CreateAccount(ctx, p.Name, p.Options)

	case MethodFilterAccountChains:
		var p filterChainsParams
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		return h.kr.FilterAccountChains(p.ID, p.Chains), nil

	case MethodUpdateAccount:
		var p updateAccountParams
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		if p.Account == nil {
			return nil, errs.New(errs.KindInvalidParams, "%s: account is required", method)
		}
		return nil, h.kr.UpdateAccount(ctx, *p.Account)

	case MethodDeleteAccount:
		id, err := decodeID(req.Params)
		if err != nil {
			return nil, err
		}
		return nil, h.kr.DeleteAccount(ctx, id)

	case MethodListRequests:
		return h.kr.ListRequests(), nil

	case MethodGetRequest:
		id, err := decodeID(req.Params)
		if err != nil {
			return nil, err
		}
		return h.kr.GetRequest(id)

	case MethodSubmitRequest:
		var p keyring.Request
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		if p.Request.Method == "" {
			return nil, errs.New(errs.KindInvalidParams, "%s: request.method is required", method)
		}
		return h.kr.SubmitRequest(ctx, p)

	case MethodApproveRequest:
		id, err := decodeID(req.Params)
		if err != nil {
			return nil, err
		}
		return nil, h.kr.ApproveRequest(ctx, id)

	case MethodRejectRequest:
		id, err := decodeID(req.Params)
		if err != nil {
			return nil, err
		}
		return nil, h.kr.RejectRequest(ctx, id)
	}

	// unreachable while every Method has a case above
	return nil, NotSupported(req.Method)
}

// decodeParams reads a params object into v.
func decodeParams(raw json.RawMessage, v any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return errs.New(errs.KindInvalidParams, "params are required")
	}
	if raw[0] != '{' {
		return errs.New(errs.KindInvalidParams, "params must be an object")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return errs.Wrap(errs.KindInvalidParams, err, "invalid params")
	}
	return nil
}

func decodeID(raw json.RawMessage) (string, error) {
	var p idParams
	if err := decodeParams(raw, &p); err != nil {
		return "", err
	}
	if p.ID == "" {
		return "", errs.New(errs.KindInvalidParams, "id is required")
	}
	return p.ID, nil
}
