package keyring

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/yolodolo42/scwkeyring/internal/chain"
	"github.com/yolodolo42/scwkeyring/internal/errs"
)

// SigningMethod is a request method routed through the user operation
// pipeline.
type SigningMethod int

const (
	MethodSendTransaction SigningMethod = iota + 1
	MethodSignTransaction
	// MethodSignTransactionAlias is the internal name used by the host.
	MethodSignTransactionAlias
)

func (m SigningMethod) String() string {
	switch m {
	case MethodSendTransaction:
		return "eth_sendTransaction"
	case MethodSignTransaction:
		return "eth_signTransaction"
	case MethodSignTransactionAlias:
		return "sign_transaction"
	default:
		return fmt.Sprintf("SigningMethod(%d)", int(m))
	}
}

// ParseSigningMethod decodes a request method name.
func ParseSigningMethod(name string) (SigningMethod, error) {
	switch name {
	case "eth_sendTransaction":
		return MethodSendTransaction, nil
	case "eth_signTransaction":
		return MethodSignTransaction, nil
	case "sign_transaction":
		return MethodSignTransactionAlias, nil
	default:
		return 0, errs.New(errs.KindUnsupportedMethod, "EVM method not supported: %s", name)
	}
}

// Quantity accepts a JSON number, a decimal string or a 0x-prefixed hex string.
type Quantity struct {
	big.Int
}

func (q *Quantity) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}

	var s string
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
	} else {
		s = string(data)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	digits, base := s, 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		digits, base = s[2:], 16
	}
	if digits == "" {
		q.SetInt64(0)
		return nil
	}
	if _, ok := q.SetString(digits, base); !ok {
		return fmt.Errorf("invalid quantity %q", s)
	}
	if q.Sign() < 0 {
		return fmt.Errorf("negative quantity %q", s)
	}
	return nil
}

// TransactionParams is the transaction object of eth_sendTransaction.
type TransactionParams struct {
	To      *common.Address `json:"to"`
	Value   *Quantity       `json:"value"`
	Data    hexutil.Bytes   `json:"data"`
	Input   hexutil.Bytes   `json:"input"`
	ChainID *Quantity       `json:"chainId"`
}

func (t *TransactionParams) value() *big.Int {
	if t.Value == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(&t.Value.Int)
}

func (t *TransactionParams) data() []byte {
	if len(t.Data) > 0 {
		return t.Data
	}
	if len(t.Input) > 0 {
		return t.Input
	}
	return []byte{}
}

// decodeTransactionParams reads [from, tx, opts?].
func decodeTransactionParams(raw json.RawMessage) (common.Address, *TransactionParams, error) {
	var params []json.RawMessage
	if err := json.Unmarshal(raw, &params); err != nil {
		return common.Address{}, nil, errs.Wrap(errs.KindInvalidParams, err, "params must be [from, transaction]")
	}
	if len(params) < 2 {
		return common.Address{}, nil, errs.New(errs.KindInvalidParams, "params must be [from, transaction]")
	}

	var from string
	if err := json.Unmarshal(params[0], &from); err != nil || !common.IsHexAddress(from) {
		return common.Address{}, nil, errs.New(errs.KindInvalidParams, "invalid from address %s", string(params[0]))
	}

	var tx TransactionParams
	if err := json.Unmarshal(params[1], &tx); err != nil {
		return common.Address{}, nil, errs.Wrap(errs.KindInvalidParams, err, "invalid transaction")
	}
	if tx.To == nil {
		return common.Address{}, nil, errs.New(errs.KindInvalidParams, "transaction has no recipient")
	}
	return common.HexToAddress(from), &tx, nil
}

// chainFromOptions reads an optional "chainId" account option.
func chainFromOptions(options map[string]any) (uint64, bool, error) {
	v, ok := options["chainId"]
	if !ok || v == nil {
		return 0, false, nil
	}

	var s string
	switch t := v.(type) {
	case string:
		s = t
	case float64:
		if t <= 0 || t != float64(uint64(t)) {
			return 0, false, errs.New(errs.KindInvalidParams, "invalid chainId option %v", t)
		}
		return uint64(t), true, nil
	case json.Number:
		s = t.String()
	default:
		return 0, false, errs.New(errs.KindInvalidParams, "invalid chainId option %v", t)
	}

	id, err := chain.ParseChainID(s)
	if err != nil {
		return 0, false, errs.Wrap(errs.KindInvalidParams, err, "invalid chainId option")
	}
	return id, true, nil
}
