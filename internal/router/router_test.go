package router

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yolodolo42/scwkeyring/internal/errs"
	"github.com/yolodolo42/scwkeyring/internal/keyring"
)

// stubKeyring records the last call and answers from its fields.
type stubKeyring struct {
	lastMethod string
	lastID     string
	lastName   string
	lastOpts   map[string]any
	lastChains []string
	lastAcct   keyring.Account
	lastReq    keyring.Request

	accounts []keyring.Account
	err      error
}

func (s *stubKeyring) ListAccounts() []keyring.Account {
	s.lastMethod = "ListAccounts"
	return s.accounts
}

func (s *stubKeyring) GetAccount(id string) (keyring.Account, error) {
	s.lastMethod, s.lastID = "GetAccount", id
	if s.err != nil {
		return keyring.Account{}, s.err
	}
	return keyring.Account{ID: id}, nil
}

func (s *stubKeyring) CreateAccount(_ context.Context, name string, options map[string]any) (keyring.Account, error) {
	s.lastMethod, s.lastName, s.lastOpts = "CreateAccount", name, options
	return keyring.Account{ID: "new", Name: name}, s.err
}

func (s *stubKeyring) FilterAccountChains(id string, chains []string) []string {
	s.lastMethod, s.lastID, s.lastChains = "FilterAccountChains", id, chains
	return chains[:1]
}

func (s *stubKeyring) UpdateAccount(_ context.Context, account keyring.Account) error {
	s.lastMethod, s.lastAcct = "UpdateAccount", account
	return s.err
}

func (s *stubKeyring) DeleteAccount(_ context.Context, id string) error {
	s.lastMethod, s.lastID = "DeleteAccount", id
	return s.err
}

func (s *stubKeyring) ListRequests() []keyring.Request {
	s.lastMethod = "ListRequests"
	return []keyring.Request{}
}

func (s *stubKeyring) GetRequest(id string) (keyring.Request, error) {
	s.lastMethod, s.lastID = "GetRequest", id
	return keyring.Request{}, errs.New(errs.KindNotFound, "request %q not found", id)
}

func (s *stubKeyring) SubmitRequest(_ context.Context, req keyring.Request) (keyring.SubmitResponse, error) {
	s.lastMethod, s.lastReq = "SubmitRequest", req
	return keyring.SubmitResponse{Result: "0xabc"}, s.err
}

func (s *stubKeyring) ApproveRequest(_ context.Context, id string) error {
	s.lastMethod, s.lastID = "ApproveRequest", id
	return errs.New(errs.KindUnsupported, "unsupported")
}

func (s *stubKeyring) RejectRequest(_ context.Context, id string) error {
	s.lastMethod, s.lastID = "RejectRequest", id
	return errs.New(errs.KindUnsupported, "unsupported")
}

func call(method, params string) Request {
	return Request{Origin: "https://dapp.example", ID: json.RawMessage(`1`), Method: method, Params: json.RawMessage(params)}
}

func TestRouter(t *testing.T) {
	ctx := context.Background()

	decline := HandlerFunc(func(_ context.Context, req Request) (any, error) {
		return nil, NotSupported(req.Method)
	})

	t.Run("falls through declining handlers", func(t *testing.T) {
		var seen []string
		r := New(
			Logging(),
			HandlerFunc(func(_ context.Context, req Request) (any, error) {
				seen = append(seen, "second")
				return nil, NotSupported(req.Method)
			}),
			HandlerFunc(func(_ context.Context, req Request) (any, error) {
				seen = append(seen, "third")
				return "ok", nil
			}),
			HandlerFunc(func(context.Context, Request) (any, error) {
				seen = append(seen, "fourth")
				return nil, nil
			}),
		)
		result, err := r.Handle(ctx, call("x", ""))
		require.NoError(t, err)
		assert.Equal(t, "ok", result)
		assert.Equal(t, []string{"second", "third"}, seen)
	})

	t.Run("other errors end the chain", func(t *testing.T) {
		boom := errs.New(errs.KindNotFound, "gone")
		reached := false
		r := New(
			HandlerFunc(func(context.Context, Request) (any, error) { return nil, boom }),
			HandlerFunc(func(context.Context, Request) (any, error) { reached = true; return nil, nil }),
		)
		_, err := r.Handle(ctx, call("x", ""))
		assert.ErrorIs(t, err, errs.NotFound)
		assert.False(t, reached)
	})

	t.Run("plain errors are not declines", func(t *testing.T) {
		r := New(HandlerFunc(func(context.Context, Request) (any, error) { return nil, errors.New("boom") }), decline)
		_, err := r.Handle(ctx, call("x", ""))
		assert.EqualError(t, err, "boom")
	})

	t.Run("all declined", func(t *testing.T) {
		r := New(Logging(), decline)
		_, err := r.Handle(ctx, call("eth_chainId", ""))
		assert.ErrorIs(t, err, errs.MethodNotSupported)
		assert.Contains(t, err.Error(), "eth_chainId")

		_, err = New().Handle(ctx, call("x", ""))
		assert.ErrorIs(t, err, errs.MethodNotSupported)
	})
}

func TestParseMethod(t *testing.T) {
	for m := MethodListAccounts; m <= MethodRejectRequest; m++ {
		got, ok := ParseMethod(m.String())
		require.True(t, ok, m.String())
		assert.Equal(t, m, got)
	}
	_, ok := ParseMethod("keyring_exportAccount")
	assert.False(t, ok)
	assert.Equal(t, "Method(99)", Method(99).String())
}

func TestKeyringHandler(t *testing.T) {
	ctx := context.Background()

	t.Run("dispatches every method", func(t *testing.T) {
		tests := []struct {
			method string
			params string
			want   string
		}{
			{"keyring_listAccounts", "", "ListAccounts"},
			{"keyring_getAccount", `{"id":"a1"}`, "GetAccount"},
			{"keyring_createAccount", `{"name":"alice","options":{"chainId":"0x14a33"}}`, "CreateAccount"},
			{"keyring_filterAccountChains", `{"id":"a1","chains":["eip155:1","eip155:5"]}`, "FilterAccountChains"},
			{"keyring_updateAccount", `{"account":{"id":"a1","name":"bob"}}`, "UpdateAccount"},
			{"keyring_deleteAccount", `{"id":"a1"}`, "DeleteAccount"},
			{"keyring_listRequests", "", "ListRequests"},
			{"keyring_getRequest", `{"id":"r1"}`, "GetRequest"},
			{"keyring_submitRequest", `{"id":"r1","scope":"eip155:84531","account":"a1","request":{"method":"eth_sendTransaction","params":[]}}`, "SubmitRequest"},
			{"keyring_approveRequest", `{"id":"r1"}`, "ApproveRequest"},
			{"keyring_rejectRequest", `{"id":"r1"}`, "RejectRequest"},
		}
		for _, tt := range tests {
			t.Run(tt.method, func(t *testing.T) {
				kr := &stubKeyring{}
				_, _ = NewKeyringHandler(kr).Handle(ctx, call(tt.method, tt.params))
				assert.Equal(t, tt.want, kr.lastMethod)
			})
		}
	})

	t.Run("decodes params", func(t *testing.T) {
		kr := &stubKeyring{}
		h := NewKeyringHandler(kr)

		result, err := h.Handle(ctx, call("keyring_createAccount", `{"name":"alice","options":{"chainId":"0x14a33"}}`))
		require.NoError(t, err)
		assert.Equal(t, "alice", kr.lastName)
		assert.Equal(t, map[string]any{"chainId": "0x14a33"}, kr.lastOpts)
		assert.Equal(t, keyring.Account{ID: "new", Name: "alice"}, result)

		result, err = h.Handle(ctx, call("keyring_filterAccountChains", `{"id":"a1","chains":["eip155:1","eip155:5"]}`))
		require.NoError(t, err)
		assert.Equal(t, []string{"eip155:1"}, result)

		_, err = h.Handle(ctx, call("keyring_updateAccount", `{"account":{"id":"a1","name":"bob"}}`))
		require.NoError(t, err)
		assert.Equal(t, keyring.Account{ID: "a1", Name: "bob"}, kr.lastAcct)

		result, err = h.Handle(ctx, call("keyring_submitRequest",
			`{"id":"r1","scope":"eip155:84531","account":"a1","request":{"method":"eth_sendTransaction","params":["0x1",{}]}}`))
		require.NoError(t, err)
		assert.Equal(t, keyring.SubmitResponse{Result: "0xabc"}, result)
		assert.Equal(t, "eip155:84531", kr.lastReq.Scope)
		assert.JSONEq(t, `["0x1",{}]`, string(kr.lastReq.Request.Params))
	})

	t.Run("keyring errors pass through", func(t *testing.T) {
		kr := &stubKeyring{err: errs.New(errs.KindDuplicateName, "taken")}
		_, err := NewKeyringHandler(kr).Handle(ctx, call("keyring_createAccount", `{"name":"alice"}`))
		assert.ErrorIs(t, err, errs.DuplicateName)

		_, err = NewKeyringHandler(kr).Handle(ctx, call("keyring_approveRequest", `{"id":"r1"}`))
		assert.ErrorIs(t, err, errs.Unsupported)
	})

	t.Run("malformed params", func(t *testing.T) {
		h := NewKeyringHandler(&stubKeyring{})
		for _, tt := range []struct{ method, params string }{
			{"keyring_getAccount", ""},
			{"keyring_getAccount", `null`},
			{"keyring_getAccount", `["a1"]`},
			{"keyring_getAccount", `{}`},
			{"keyring_deleteAccount", `{"id":7}`},
			{"keyring_updateAccount", `{}`},
			{"keyring_createAccount", `{"name":1}`},
			{"keyring_submitRequest", `{"id":"r1"}`},
		} {
			_, err := h.Handle(ctx, call(tt.method, tt.params))
			assert.ErrorIs(t, err, errs.InvalidParams, "%s %s", tt.method, tt.params)
		}
	})

	t.Run("unknown methods decline", func(t *testing.T) {
		kr := &stubKeyring{}
		_, err := NewKeyringHandler(kr).Handle(ctx, call("eth_accounts", ""))
		assert.ErrorIs(t, err, errs.MethodNotSupported)
		assert.Empty(t, kr.lastMethod)
	})
}
