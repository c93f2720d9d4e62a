package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

// ViewFunc answers an eth_call. input includes the 4-byte selector.
type ViewFunc func(input []byte) ([]byte, error)

type viewKey struct {
	to       common.Address
	selector [4]byte
}

// ErrNoHandler is returned for calls nobody registered.
var ErrNoHandler = errors.New("execution reverted")

// FakeChain stands in for chain RPC in tests. View calls are routed by
// (contract, selector); code lookups come from a per-address map.
type FakeChain struct {
	mu       sync.Mutex
	views    map[viewKey]ViewFunc
	code     map[common.Address][]byte
	calls    map[[4]byte]int
	codeHits int
	failures []error
}

func NewFakeChain() *FakeChain {
	return &FakeChain{
		views: make(map[viewKey]ViewFunc),
		code:  make(map[common.Address][]byte),
		calls: make(map[[4]byte]int),
	}
}

// HandleView registers fn for calls to `to` whose input starts with selector.
func (f *FakeChain) HandleView(to common.Address, selector []byte, fn ViewFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.views[viewKey{to: to, selector: toSelector(selector)}] = fn
}

// SetCode marks addr as deployed.
func (f *FakeChain) SetCode(addr common.Address, code []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.code[addr] = code
}

// FailNext makes the next calls (of any kind) return errs in order.
func (f *FakeChain) FailNext(errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, errs...)
}

// Calls returns how many eth_calls hit selector, including failed ones.
func (f *FakeChain) Calls(selector []byte) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[toSelector(selector)]
}

// CodeCalls returns how many eth_getCode lookups happened.
func (f *FakeChain) CodeCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.codeHits
}

func (f *FakeChain) CallContract(ctx context.Context, chainID uint64, msg ethereum.CallMsg) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if msg.To == nil || len(msg.Data) < 4 {
		return nil, fmt.Errorf("fake chain: malformed call")
	}

	f.mu.Lock()
	sel := toSelector(msg.Data[:4])
	f.calls[sel]++
	if err := f.popFailure(); err != nil {
		f.mu.Unlock()
		return nil, err
	}
	fn, ok := f.views[viewKey{to: *msg.To, selector: sel}]
	f.mu.Unlock()

	if !ok {
		return nil, ErrNoHandler
	}
	return fn(msg.Data)
}

func (f *FakeChain) CodeAt(ctx context.Context, chainID uint64, address common.Address) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.codeHits++
	if err := f.popFailure(); err != nil {
		return nil, err
	}
	return f.code[address], nil
}

// popFailure must be called with mu held.
func (f *FakeChain) popFailure() error {
	if len(f.failures) == 0 {
		return nil
	}
	err := f.failures[0]
	f.failures = f.failures[1:]
	return err
}

func toSelector(b []byte) [4]byte {
	var sel [4]byte
	copy(sel[:], b)
	return sel
}
