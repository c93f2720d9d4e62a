// Package bundlertest provides an in-process fake bundler and paymaster.
package bundlertest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// OpHash is the default eth_sendUserOperation result.
	OpHash = common.HexToHash("0xabc0000000000000000000000000000000000000000000000000000000000def")

	// PaymasterAndData is the default sponsorship.
	PaymasterAndData = "0x000000000000000000000000000000000000beef0102030405"
)

// Error is a JSON-RPC error reply.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Handler answers one method. A non-nil *Error becomes the error reply.
type Handler func(params []json.RawMessage) (any, *Error)

type request struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      json.RawMessage   `json:"id"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
}

// Server is a fake bundler endpoint. It accepts any path so the client's
// {namespace}/rpc form reaches it.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	handlers map[string]Handler
	calls    map[string]int
	params   map[string][]json.RawMessage
	paths    []string
	apiKeys  []string
}

// NewServer starts a server answering all three methods with defaults.
func NewServer(t *testing.T) *Server {
	t.Helper()
	s := &Server{
		handlers: map[string]Handler{
			"pimlico_getUserOperationGasPrice": GasPrice("0x3b9aca00", "0x5f5e100"),
			"pm_sponsorUserOperation":          Sponsor(PaymasterAndData),
			"eth_sendUserOperation":            Result(OpHash.Hex()),
		},
		calls:  make(map[string]int),
		params: make(map[string][]json.RawMessage),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	var req request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.calls[req.Method]++
	s.params[req.Method] = req.Params
	s.paths = append(s.paths, r.URL.Path)
	s.apiKeys = append(s.apiKeys, r.URL.Query().Get("apikey"))
	h, ok := s.handlers[req.Method]
	s.mu.Unlock()

	resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
	if !ok {
		resp["error"] = Error{Code: -32601, Message: "method not found"}
	} else if result, rpcErr := h(req.Params); rpcErr != nil {
		resp["error"] = rpcErr
	} else {
		resp["result"] = result
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// Handle replaces the handler for method.
func (s *Server) Handle(method string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = h
}

// Calls returns how many requests hit method.
func (s *Server) Calls(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

// LastParams returns the params of the latest call to method.
func (s *Server) LastParams(method string) []json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.params[method]
}

// Paths returns the request paths seen so far.
func (s *Server) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.paths...)
}

// APIKeys returns the apikey query values seen so far.
func (s *Server) APIKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.apiKeys...)
}

// Result always answers with v.
func Result(v any) Handler {
	return func([]json.RawMessage) (any, *Error) { return v, nil }
}

// Fail always answers with an error reply.
func Fail(code int, message string) Handler {
	return func([]json.RawMessage) (any, *Error) { return nil, &Error{Code: code, Message: message} }
}

// GasPrice answers with the same tier for slow, standard and fast.
func GasPrice(maxFee, maxPriority string) Handler {
	tier := map[string]string{"maxFeePerGas": maxFee, "maxPriorityFeePerGas": maxPriority}
	return Result(map[string]any{"slow": tier, "standard": tier, "fast": tier})
}

// Sponsor answers with paymasterAndData only.
func Sponsor(paymasterAndData string) Handler {
	return Result(map[string]string{"paymasterAndData": paymasterAndData})
}
