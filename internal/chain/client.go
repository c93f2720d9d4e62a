package chain

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Reader performs the read-only chain calls the keyring depends on.
type Reader interface {
	// CallContract executes a view call against the latest block.
	CallContract(ctx context.Context, chainID uint64, msg ethereum.CallMsg) ([]byte, error)

	// CodeAt returns the deployed bytecode at address (empty if none).
	CodeAt(ctx context.Context, chainID uint64, address common.Address) ([]byte, error)
}

// Client manages connections to multiple EVM chains
type Client struct {
	registry *Registry
	clients  map[uint64]*ethclient.Client
	mu       sync.Mutex
}

// NewClient creates a new multi-chain client over the registry
func NewClient(registry *Registry) *Client {
	return &Client{
		registry: registry,
		clients:  make(map[uint64]*ethclient.Client),
	}
}

var _ Reader = (*Client)(nil)

// getClient returns an ethclient for the given chain, creating one if needed.
// Holds the lock across dialing so concurrent callers never open duplicate
// connections for the same chain.
func (c *Client) getClient(ctx context.Context, chainID uint64) (*ethclient.Client, error) {
	config, err := c.registry.Lookup(chainID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if client, exists := c.clients[chainID]; exists {
		return client, nil
	}

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	client, err := ethclient.DialContext(dialCtx, config.RPCURL)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", config.Name, err)
	}

	// Verify chain ID
	idCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	remoteID, err := client.ChainID(idCtx)
	cancel()
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to read chain id from %s: %w", config.Name, err)
	}
	if remoteID.Cmp(config.BigChainID()) != 0 {
		client.Close()
		return nil, fmt.Errorf("chain ID mismatch: expected %d, got %s", config.ChainID, remoteID.String())
	}

	c.clients[chainID] = client
	return client, nil
}

// CallContract executes a contract call (read-only)
func (c *Client) CallContract(ctx context.Context, chainID uint64, msg ethereum.CallMsg) ([]byte, error) {
	client, err := c.getClient(ctx, chainID)
	if err != nil {
		return nil, err
	}

	return client.CallContract(ctx, msg, nil)
}

// CodeAt returns the code deployed at address
func (c *Client) CodeAt(ctx context.Context, chainID uint64, address common.Address) ([]byte, error) {
	client, err := c.getClient(ctx, chainID)
	if err != nil {
		return nil, err
	}

	return client.CodeAt(ctx, address, nil)
}

// Close closes all client connections
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, client := range c.clients {
		client.Close()
	}
	c.clients = make(map[uint64]*ethclient.Client)
}
