// Package bundler talks to the per-chain bundler and paymaster JSON-RPC
// endpoint.
package bundler

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog/log"
	"github.com/yolodolo42/scwkeyring/internal/chain"
	"github.com/yolodolo42/scwkeyring/internal/errs"
	"github.com/yolodolo42/scwkeyring/internal/retry"
	"github.com/yolodolo42/scwkeyring/internal/userop"
)

const (
	DefaultBaseURL       = "https://api.pimlico.io/v1"
	DefaultTimeout       = 15 * time.Second
	DefaultSubmitTimeout = 30 * time.Second

	methodGasPrice = "pimlico_getUserOperationGasPrice"
	methodSponsor  = "pm_sponsorUserOperation"
	methodSend     = "eth_sendUserOperation"
)

// Config configures the bundler endpoint.
type Config struct {
	BaseURL       string
	APIKey        string
	Timeout       time.Duration // gas price and sponsorship, per call
	SubmitTimeout time.Duration // eth_sendUserOperation
	Retry         retry.Policy  // gas price only
	HTTPClient    *http.Client
}

// GasPriceTier is one fee tier of the gas price reply.
type GasPriceTier struct {
	MaxFeePerGas         *hexutil.Big `json:"maxFeePerGas"`
	MaxPriorityFeePerGas *hexutil.Big `json:"maxPriorityFeePerGas"`
}

// GasPrice is the pimlico_getUserOperationGasPrice reply.
type GasPrice struct {
	Slow     GasPriceTier `json:"slow"`
	Standard GasPriceTier `json:"standard"`
	Fast     GasPriceTier `json:"fast"`
}

// Apply copies the fast tier into op and sets the default gas limits.
func (g *GasPrice) Apply(op *userop.UserOperation) {
	op.MaxFeePerGas = new(big.Int).Set(g.Fast.MaxFeePerGas.ToInt())
	op.MaxPriorityFeePerGas = new(big.Int).Set(g.Fast.MaxPriorityFeePerGas.ToInt())
	op.ApplyDefaultGas()
}

// Sponsorship is the pm_sponsorUserOperation reply. The gas limits are
// optional; when present the paymaster signed over them.
type Sponsorship struct {
	PaymasterAndData     hexutil.Bytes `json:"paymasterAndData"`
	PreVerificationGas   *hexutil.Big  `json:"preVerificationGas,omitempty"`
	VerificationGasLimit *hexutil.Big  `json:"verificationGasLimit,omitempty"`
	CallGasLimit         *hexutil.Big  `json:"callGasLimit,omitempty"`
}

// Apply copies the sponsorship into op.
func (s *Sponsorship) Apply(op *userop.UserOperation) {
	op.PaymasterAndData = common.CopyBytes(s.PaymasterAndData)
	if s.PreVerificationGas != nil {
		op.PreVerificationGas = new(big.Int).Set(s.PreVerificationGas.ToInt())
	}
	if s.VerificationGasLimit != nil {
		op.VerificationGasLimit = new(big.Int).Set(s.VerificationGasLimit.ToInt())
	}
	if s.CallGasLimit != nil {
		op.CallGasLimit = new(big.Int).Set(s.CallGasLimit.ToInt())
	}
}

// Client holds one rpc.Client per chain, created on first use.
type Client struct {
	registry *chain.Registry
	cfg      Config
	clients  map[uint64]*rpc.Client
	mu       sync.Mutex
}

// New creates a client. Zero fields in cfg take the package defaults.
func New(registry *chain.Registry, cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = DefaultSubmitTimeout
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultPolicy()
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	return &Client{
		registry: registry,
		cfg:      cfg,
		clients:  make(map[uint64]*rpc.Client),
	}
}

// Endpoint returns {baseURL}/{namespace}/rpc?apikey={key}.
func Endpoint(baseURL, namespace, apiKey string) string {
	u := strings.TrimRight(baseURL, "/") + "/" + url.PathEscape(namespace) + "/rpc"
	if apiKey != "" {
		u += "?apikey=" + url.QueryEscape(apiKey)
	}
	return u
}

func (c *Client) getClient(ctx context.Context, chainID uint64) (*rpc.Client, chain.ChainConfig, error) {
	cfg, err := c.registry.Lookup(chainID)
	if err != nil {
		return nil, chain.ChainConfig{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if client, ok := c.clients[chainID]; ok {
		return client, cfg, nil
	}

	client, err := rpc.DialOptions(ctx, Endpoint(c.cfg.BaseURL, cfg.BundlerNamespace, c.cfg.APIKey),
		rpc.WithHTTPClient(c.cfg.HTTPClient))
	if err != nil {
		return nil, cfg, errs.Wrap(errs.KindBundlerError, err, "connect to bundler for %s", cfg.Name)
	}
	c.clients[chainID] = client
	return client, cfg, nil
}

// GasPrice fetches the fee tiers. Transient failures are retried.
func (c *Client) GasPrice(ctx context.Context, chainID uint64) (*GasPrice, error) {
	client, cfg, err := c.getClient(ctx, chainID)
	if err != nil {
		return nil, err
	}

	var price GasPrice
	err = retry.Do(ctx, c.cfg.Retry, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
		return retry.StopOnRPCError(client.CallContext(callCtx, &price, methodGasPrice))
	})
	if err != nil {
		return nil, errs.Wrap(errs.KindBundlerError, err, "%s on %s", methodGasPrice, cfg.Name)
	}
	if price.Fast.MaxFeePerGas == nil || price.Fast.MaxPriorityFeePerGas == nil {
		return nil, errs.New(errs.KindBundlerError, "%s on %s: reply has no fast tier", methodGasPrice, cfg.Name)
	}

	log.Debug().
		Uint64("chain_id", chainID).
		Str("max_fee", price.Fast.MaxFeePerGas.String()).
		Str("max_priority_fee", price.Fast.MaxPriorityFeePerGas.String()).
		Msg("bundler gas price")
	return &price, nil
}

// Sponsor asks the paymaster to sponsor op. It is never retried.
func (c *Client) Sponsor(ctx context.Context, chainID uint64, op *userop.UserOperation) (*Sponsorship, error) {
	client, cfg, err := c.getClient(ctx, chainID)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var sponsorship Sponsorship
	err = client.CallContext(callCtx, &sponsorship, methodSponsor, op, cfg.EntryPoint)
	switch {
	case err != nil && callCtx.Err() != nil:
		return nil, errs.Wrap(errs.KindBundlerError, errors.Join(err, callCtx.Err()), "%s on %s did not complete", methodSponsor, cfg.Name)
	case err != nil:
		return nil, errs.Wrap(errs.KindSponsorshipFailed, err, "%s on %s", methodSponsor, cfg.Name)
	case len(sponsorship.PaymasterAndData) == 0:
		return nil, errs.New(errs.KindSponsorshipFailed, "%s on %s: paymaster returned no paymasterAndData", methodSponsor, cfg.Name)
	}

	log.Debug().
		Uint64("chain_id", chainID).
		Str("sender", op.Sender.Hex()).
		Int("paymaster_data_len", len(sponsorship.PaymasterAndData)).
		Msg("user operation sponsored")
	return &sponsorship, nil
}

// Send submits the signed op and returns the user operation hash. It is
// never retried. A submission that hits its deadline may still have been
// accepted and is reported as AmbiguousSubmission.
func (c *Client) Send(ctx context.Context, chainID uint64, op *userop.UserOperation) (common.Hash, error) {
	client, cfg, err := c.getClient(ctx, chainID)
	if err != nil {
		return common.Hash{}, err
	}

	// nothing has left the process yet
	if err := ctx.Err(); err != nil {
		return common.Hash{}, errs.Wrap(errs.KindBundlerError, err, "%s on %s not attempted", methodSend, cfg.Name)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.SubmitTimeout)
	defer cancel()

	var hash common.Hash
	err = client.CallContext(callCtx, &hash, methodSend, op, cfg.EntryPoint)
	switch {
	case err != nil && callCtx.Err() != nil:
		return common.Hash{}, errs.Wrap(errs.KindAmbiguousSubmission, errors.Join(err, callCtx.Err()),
			"%s on %s did not complete; the operation may have been accepted", methodSend, cfg.Name)
	case err != nil:
		return common.Hash{}, errs.Wrap(errs.KindBundlerError, err, "%s on %s", methodSend, cfg.Name)
	case hash == (common.Hash{}):
		return common.Hash{}, errs.New(errs.KindBundlerError, "%s on %s: empty user operation hash", methodSend, cfg.Name)
	}

	log.Info().
		Uint64("chain_id", chainID).
		Str("sender", op.Sender.Hex()).
		Str("user_op_hash", hash.Hex()).
		Msg("user operation submitted")
	return hash, nil
}

// Close closes all client connections
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, client := range c.clients {
		client.Close()
	}
	c.clients = make(map[uint64]*rpc.Client)
}
