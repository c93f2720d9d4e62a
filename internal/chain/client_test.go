package chain

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yolodolo42/scwkeyring/internal/errs"
)

type rpcRequest struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
}

// newNodeServer fakes the handful of eth_ methods the client uses.
func newNodeServer(t *testing.T, chainIDHex string, calls map[string]int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		calls[req.Method]++

		var result any
		switch req.Method {
		case "eth_chainId":
			result = chainIDHex
		case "eth_call":
			result = "0x000000000000000000000000000000000000000000000000000000000000002a"
		case "eth_getCode":
			result = "0x6001"
		default:
			result = nil
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": result})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient(t *testing.T) {
	t.Run("view calls against verified chain", func(t *testing.T) {
		calls := map[string]int{}
		srv := newNodeServer(t, "0x14a33", calls)

		registry, err := NewRegistry(ChainConfig{ChainID: 84531, RPCURL: srv.URL})
		require.NoError(t, err)
		client := NewClient(registry)
		defer client.Close()

		to := common.HexToAddress("0x1000000000000000000000000000000000000001")
		out, err := client.CallContract(context.Background(), 84531, ethereum.CallMsg{To: &to})
		require.NoError(t, err)
		assert.Len(t, out, 32)
		assert.Equal(t, byte(42), out[31])

		code, err := client.CodeAt(context.Background(), 84531, to)
		require.NoError(t, err)
		assert.Equal(t, []byte{0x60, 0x01}, code)

		// connection is cached, chain id verified once
		assert.Equal(t, 1, calls["eth_chainId"])
	})

	t.Run("rejects chain id mismatch", func(t *testing.T) {
		calls := map[string]int{}
		srv := newNodeServer(t, "0x1", calls)

		registry, err := NewRegistry(ChainConfig{ChainID: 84531, RPCURL: srv.URL})
		require.NoError(t, err)
		client := NewClient(registry)
		defer client.Close()

		_, err = client.CodeAt(context.Background(), 84531, common.Address{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "chain ID mismatch")
	})

	t.Run("unknown chain is unsupported", func(t *testing.T) {
		registry, err := NewRegistry()
		require.NoError(t, err)
		client := NewClient(registry)

		_, err = client.CodeAt(context.Background(), 424242, common.Address{})
		assert.ErrorIs(t, err, errs.UnsupportedChain)
	})
}
