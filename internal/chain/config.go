package chain

import (
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/yolodolo42/scwkeyring/internal/errs"
)

// CAIP-2 namespace for EVM chains.
const evmNamespace = "eip155"

var (
	// SimpleAccountFactory v0.6, deployed at the same address on every default chain.
	DefaultAccountFactory = common.HexToAddress("0x9406Cc6185a346906296840746125a0E44976454")
	// EntryPoint v0.6.
	DefaultEntryPoint = common.HexToAddress("0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789")
)

// ChainConfig holds configuration for an EVM chain.
type ChainConfig struct {
	Name             string
	ChainID          uint64
	RPCURL           string
	AccountFactory   common.Address
	EntryPoint       common.Address
	BundlerNamespace string
	IsTestnet        bool
}

// BigChainID returns the chain id as a big.Int for RPC validation.
func (c ChainConfig) BigChainID() *big.Int {
	return new(big.Int).SetUint64(c.ChainID)
}

// CAIP2 returns the chain id in "eip155:<decimal>" form.
func (c ChainConfig) CAIP2() string {
	return fmt.Sprintf("%s:%d", evmNamespace, c.ChainID)
}

// DefaultChains returns the default chain configurations keyed by chain id.
func DefaultChains() map[uint64]ChainConfig {
	def := func(name string, id uint64, rpc, namespace string, testnet bool) ChainConfig {
		return ChainConfig{
			Name:             name,
			ChainID:          id,
			RPCURL:           rpc,
			AccountFactory:   DefaultAccountFactory,
			EntryPoint:       DefaultEntryPoint,
			BundlerNamespace: namespace,
			IsTestnet:        testnet,
		}
	}
	chains := []ChainConfig{
		def("Base Goerli Testnet", 84531, "https://goerli.base.org", "base-goerli", true),
		def("Base Sepolia Testnet", 84532, "https://sepolia.base.org", "base-sepolia", true),
		def("Sepolia Testnet", 11155111, "https://rpc.sepolia.org", "sepolia", true),
		def("Ethereum Mainnet", 1, "https://eth.llamarpc.com", "ethereum", false),
		def("Base", 8453, "https://mainnet.base.org", "base", false),
		def("Optimism", 10, "https://mainnet.optimism.io", "optimism", false),
		def("Arbitrum One", 42161, "https://arb1.arbitrum.io/rpc", "arbitrum", false),
		def("Polygon", 137, "https://polygon-rpc.com", "polygon", false),
	}

	out := make(map[uint64]ChainConfig, len(chains))
	for _, c := range chains {
		out[c.ChainID] = c
	}
	return out
}

// Registry is the immutable chain-id → ChainConfig table built at start.
type Registry struct {
	chains map[uint64]ChainConfig
}

// NewRegistry builds a registry from the default table with overrides applied
// on top. An override replaces only the fields it sets.
func NewRegistry(overrides ...ChainConfig) (*Registry, error) {
	chains := DefaultChains()
	for _, o := range overrides {
		if o.ChainID == 0 {
			return nil, fmt.Errorf("chain override without chain_id")
		}
		merged, ok := chains[o.ChainID]
		if !ok {
			merged = ChainConfig{
				ChainID:        o.ChainID,
				Name:           fmt.Sprintf("Chain %d", o.ChainID),
				AccountFactory: DefaultAccountFactory,
				EntryPoint:     DefaultEntryPoint,
			}
		}
		if o.Name != "" {
			merged.Name = o.Name
		}
		if o.RPCURL != "" {
			merged.RPCURL = o.RPCURL
		}
		if o.AccountFactory != (common.Address{}) {
			merged.AccountFactory = o.AccountFactory
		}
		if o.EntryPoint != (common.Address{}) {
			merged.EntryPoint = o.EntryPoint
		}
		if o.BundlerNamespace != "" {
			merged.BundlerNamespace = o.BundlerNamespace
		}
		if o.IsTestnet {
			merged.IsTestnet = true
		}
		if merged.RPCURL == "" || merged.BundlerNamespace == "" {
			return nil, fmt.Errorf("chain %d: rpc_url and bundler_namespace are required", o.ChainID)
		}
		chains[o.ChainID] = merged
	}
	return &Registry{chains: chains}, nil
}

// Lookup returns the configuration for a chain id.
func (r *Registry) Lookup(chainID uint64) (ChainConfig, error) {
	cfg, ok := r.chains[chainID]
	if !ok {
		return ChainConfig{}, errs.New(errs.KindUnsupportedChain, "unsupported chain: %d", chainID)
	}
	return cfg, nil
}

// List returns all configured chains ordered by chain id.
func (r *Registry) List() []ChainConfig {
	out := make([]ChainConfig, 0, len(r.chains))
	for _, c := range r.chains {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChainID < out[j].ChainID })
	return out
}

// ParseChainID accepts "0x14a33", "84531" or "eip155:84531".
func ParseChainID(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty chain id")
	}
	if ns, ref, ok := strings.Cut(s, ":"); ok {
		if ns != evmNamespace {
			return 0, fmt.Errorf("not an EVM chain: %s", s)
		}
		s = ref
	}
	var (
		id  uint64
		err error
	)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		id, err = strconv.ParseUint(s[2:], 16, 64)
	} else {
		id, err = strconv.ParseUint(s, 10, 64)
	}
	if err != nil {
		return 0, fmt.Errorf("invalid chain id %q: %w", s, err)
	}
	if id == 0 {
		return 0, fmt.Errorf("invalid chain id %q", s)
	}
	return id, nil
}

// IsEVMChain reports whether a CAIP-2 chain id names an EVM chain.
func IsEVMChain(caip2 string) bool {
	return strings.HasPrefix(caip2, evmNamespace+":")
}
