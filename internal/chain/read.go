package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/alanyoungcy/agentrunner/internal/domain"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

func (c *Client) call(ctx context.Context, contract *bind.BoundContract, method string, args ...any) ([]any, error) {
	var out []any
	opts := &bind.CallOpts{Context: ctx}
	if err := contract.Call(opts, &out, method, args...); err != nil {
		return nil, fmt.Errorf("chain: call %s: %w", method, err)
	}
	return out, nil
}

// ReadAgentType reads the on-chain agent-type tag. An empty tag or a call
// error (new registry not yet populated) is reported as "unknown" so the
// scheduler falls through to its config/strategy fallback chain.
func (c *Client) ReadAgentType(ctx context.Context, tokenId domain.TokenId) (string, error) {
	out, err := c.call(ctx, c.registry, "agentType", big.NewInt(int64(tokenId)))
	if err != nil {
		return "unknown", nil
	}
	tag, _ := out[0].(string)
	if tag == "" {
		return "unknown", nil
	}
	return tag, nil
}

var subscriptionStatusByCode = map[uint8]domain.SubscriptionStatus{
	0: domain.SubscriptionActive,
	1: domain.SubscriptionGracePeriod,
	2: domain.SubscriptionExpired,
	3: domain.SubscriptionCanceled,
}

// ReadSubscriptionStatus reads the token's subscription state.
func (c *Client) ReadSubscriptionStatus(ctx context.Context, tokenId domain.TokenId) (domain.SubscriptionStatus, error) {
	out, err := c.call(ctx, c.registry, "subscriptionStatus", big.NewInt(int64(tokenId)))
	if err != nil {
		return "", err
	}
	code, ok := out[0].(uint8)
	if !ok {
		return "", fmt.Errorf("chain: subscriptionStatus: unexpected return type %T", out[0])
	}
	status, ok := subscriptionStatusByCode[code]
	if !ok {
		return "", fmt.Errorf("chain: subscriptionStatus: unknown code %d", code)
	}
	return status, nil
}

// ReadCooldownSeconds reads the per-token action cooldown.
func (c *Client) ReadCooldownSeconds(ctx context.Context, tokenId domain.TokenId) (int64, error) {
	out, err := c.call(ctx, c.registry, "cooldownSeconds", big.NewInt(int64(tokenId)))
	if err != nil {
		return 0, err
	}
	n, ok := out[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("chain: cooldownSeconds: unexpected return type %T", out[0])
	}
	return n.Int64(), nil
}

// ReadAllowance reads an ERC-20 allowance, used by the get_allowance
// read-only action.
func (c *Client) ReadAllowance(ctx context.Context, token, owner, spender string) (string, error) {
	out, err := c.call(ctx, c.erc20At(common.HexToAddress(token)), "allowance",
		common.HexToAddress(owner), common.HexToAddress(spender))
	if err != nil {
		return "", err
	}
	n, ok := out[0].(*big.Int)
	if !ok {
		return "", fmt.Errorf("chain: allowance: unexpected return type %T", out[0])
	}
	return n.String(), nil
}

// GetAmountsOut quotes a router swap path.
func (c *Client) GetAmountsOut(ctx context.Context, router string, amountIn string, path []string) ([]string, error) {
	amount, ok := new(big.Int).SetString(amountIn, 10)
	if !ok {
		return nil, fmt.Errorf("chain: getAmountsOut: invalid amountIn %q", amountIn)
	}
	addrs := make([]common.Address, len(path))
	for i, p := range path {
		addrs[i] = common.HexToAddress(p)
	}

	routerAddr := c.routerAddr
	if router != "" {
		routerAddr = common.HexToAddress(router)
	}

	out, err := c.call(ctx, c.routerAt(routerAddr), "getAmountsOut", amount, addrs)
	if err != nil {
		return nil, err
	}
	amounts, ok := out[0].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("chain: getAmountsOut: unexpected return type %T", out[0])
	}
	result := make([]string, len(amounts))
	for i, a := range amounts {
		result[i] = a.String()
	}
	return result, nil
}

// Observe takes the full on-chain snapshot a cognitive cycle starts from:
// vault, renter/operator leases, pause state, held tokens, native balance,
// a best-effort wrapped-native/stablecoin price, gas price and block info.
func (c *Client) Observe(ctx context.Context, tokenId domain.TokenId) (domain.Observation, error) {
	id := big.NewInt(int64(tokenId))

	vaultOut, err := c.call(ctx, c.registry, "vaultOf", id)
	if err != nil {
		return domain.Observation{}, err
	}
	vault, ok := vaultOut[0].(common.Address)
	if !ok {
		return domain.Observation{}, fmt.Errorf("chain: vaultOf: unexpected return type %T", vaultOut[0])
	}

	renter, err := c.readLease(ctx, "renterOf", id)
	if err != nil {
		return domain.Observation{}, err
	}
	operator, err := c.readLease(ctx, "operatorOf", id)
	if err != nil {
		return domain.Observation{}, err
	}

	pausedOut, err := c.call(ctx, c.registry, "isPaused", id)
	if err != nil {
		return domain.Observation{}, err
	}
	paused, _ := pausedOut[0].(bool)

	heldOut, err := c.call(ctx, c.registry, "heldTokens", id)
	if err != nil {
		return domain.Observation{}, err
	}
	heldAddrs, _ := heldOut[0].([]common.Address)
	vaultTokens := make([]string, len(heldAddrs))
	for i, a := range heldAddrs {
		vaultTokens[i] = a.Hex()
	}

	nativeBalance, err := c.rpc.BalanceAt(ctx, vault, nil)
	if err != nil {
		return domain.Observation{}, fmt.Errorf("chain: native balance at %s: %w", vault.Hex(), err)
	}

	gasPrice, err := c.rpc.SuggestGasPrice(ctx)
	if err != nil {
		return domain.Observation{}, fmt.Errorf("chain: suggest gas price: %w", err)
	}

	header, err := c.rpc.HeaderByNumber(ctx, nil)
	if err != nil {
		return domain.Observation{}, fmt.Errorf("chain: latest header: %w", err)
	}

	prices := c.observePrices(ctx)

	return domain.Observation{
		TokenId:       tokenId,
		Status:        map[string]any{"paused": paused},
		Vault:         vault.Hex(),
		Renter:        renter,
		Operator:      operator,
		BlockNumber:   header.Number.Uint64(),
		BlockTime:     time.Unix(int64(header.Time), 0),
		ObservedAt:    time.Now(),
		VaultTokens:   vaultTokens,
		NativeBalance: nativeBalance.String(),
		Prices:        prices,
		GasPriceWei:   gasPrice.String(),
		Paused:        paused,
	}, nil
}

// observePrices best-effort quotes one unit of wrapped native against the
// first configured stablecoin; a missing router/stablecoin configuration
// or a reverted quote (no liquidity yet) just yields an empty map rather
// than failing the whole observation.
func (c *Client) observePrices(ctx context.Context) map[string]string {
	if c.wrappedNative == "" || len(c.stablecoins) == 0 || c.routerAddr == (common.Address{}) {
		return map[string]string{}
	}
	one := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	path := []string{c.wrappedNative, c.stablecoins[0]}
	amounts, err := c.GetAmountsOut(ctx, c.routerAddr.Hex(), one.String(), path)
	if err != nil || len(amounts) == 0 {
		return map[string]string{}
	}
	return map[string]string{
		strings.ToLower(c.stablecoins[0]): amounts[len(amounts)-1],
	}
}

func (c *Client) readLease(ctx context.Context, method string, id *big.Int) (domain.AgentTokenExpiration, error) {
	out, err := c.call(ctx, c.registry, method, id)
	if err != nil {
		return domain.AgentTokenExpiration{}, err
	}
	addr, ok := out[0].(common.Address)
	if !ok {
		return domain.AgentTokenExpiration{}, fmt.Errorf("chain: %s: unexpected account type %T", method, out[0])
	}
	expires, ok := out[1].(*big.Int)
	if !ok {
		return domain.AgentTokenExpiration{}, fmt.Errorf("chain: %s: unexpected expiresAt type %T", method, out[1])
	}
	return domain.AgentTokenExpiration{
		Address:   addr.Hex(),
		ExpiresAt: time.Unix(expires.Int64(), 0),
	}, nil
}
