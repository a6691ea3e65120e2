// Package chain implements domain.ChainClient against a live EVM chain
// using go-ethereum's ethclient and abi/bind packages, with no generated
// contract bindings: calls are packed and dispatched against abi.ABI
// values parsed once at construction, the same way internal/action packs
// calldata for the actions the brain can choose.
package chain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/agentrunner/internal/config"
	agentcrypto "github.com/alanyoungcy/agentrunner/internal/crypto"
	"github.com/alanyoungcy/agentrunner/internal/domain"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Client is the go-ethereum-backed implementation of domain.ChainClient.
// One Client instance serves every agent instance on a single chain.
type Client struct {
	rpc    *ethclient.Client
	signer *agentcrypto.Signer

	registryAddr common.Address
	registry     *bind.BoundContract
	registryABI  abi.ABI
	erc20ABI     abi.ABI
	routerABI    abi.ABI

	routerAddr    common.Address
	wrappedNative string
	stablecoins   []string

	gasBufferPercent int
	txTimeout        time.Duration
}

var _ domain.ChainClient = (*Client)(nil)

// New dials the configured RPC endpoint and parses the ABIs this client
// calls against. It does not check that the registry address holds
// contract code; a bad address surfaces as a call error on first use.
func New(ctx context.Context, cfg config.ChainConfig, signer *agentcrypto.Signer) (*Client, error) {
	rpc, err := ethclient.DialContext(ctx, cfg.RPCUrl)
	if err != nil {
		return nil, fmt.Errorf("chain: dial %s: %w", cfg.RPCUrl, err)
	}

	registryABI, err := abi.JSON(strings.NewReader(agentRegistryABI))
	if err != nil {
		return nil, fmt.Errorf("chain: parse registry abi: %w", err)
	}
	erc20ABIParsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("chain: parse erc20 abi: %w", err)
	}
	routerABIParsed, err := abi.JSON(strings.NewReader(routerABI))
	if err != nil {
		return nil, fmt.Errorf("chain: parse router abi: %w", err)
	}

	registryAddr := common.HexToAddress(cfg.AgentRegistry)

	bufferPercent := cfg.GasBufferPercent
	if bufferPercent <= 0 {
		bufferPercent = 20
	}
	timeout := cfg.TxTimeout.Duration
	if timeout <= 0 {
		timeout = 90 * time.Second
	}

	return &Client{
		rpc:              rpc,
		signer:           signer,
		registryAddr:     registryAddr,
		registry:         bind.NewBoundContract(registryAddr, registryABI, rpc, rpc, rpc),
		registryABI:      registryABI,
		erc20ABI:         erc20ABIParsed,
		routerABI:        routerABIParsed,
		routerAddr:       common.HexToAddress(cfg.RouterAddress),
		wrappedNative:    cfg.WrappedNative,
		stablecoins:      cfg.Stablecoins,
		gasBufferPercent: bufferPercent,
		txTimeout:        timeout,
	}, nil
}

// Close releases the underlying RPC connection.
func (c *Client) Close() {
	c.rpc.Close()
}

func (c *Client) erc20At(addr common.Address) *bind.BoundContract {
	return bind.NewBoundContract(addr, c.erc20ABI, c.rpc, c.rpc, c.rpc)
}

func (c *Client) routerAt(addr common.Address) *bind.BoundContract {
	return bind.NewBoundContract(addr, c.routerABI, c.rpc, c.rpc, c.rpc)
}
