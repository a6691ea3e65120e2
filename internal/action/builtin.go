package action

import (
	"context"
	"fmt"
	"math/big"

	"github.com/alanyoungcy/agentrunner/internal/domain"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// OneShotActions is the set of action names treated as "done" once
// acted-on, per §4.7-l, unless the decision explicitly says done=false.
var OneShotActions = map[string]bool{
	"swap": true,
	"wrap": true,
}

func selector(sig string) []byte {
	return ethcrypto.Keccak256([]byte(sig))[:4]
}

func packArgs(types []string, values ...any) ([]byte, error) {
	args := make(abi.Arguments, 0, len(types))
	for _, t := range types {
		ty, err := abi.NewType(t, "", nil)
		if err != nil {
			return nil, fmt.Errorf("action: abi type %q: %w", t, err)
		}
		args = append(args, abi.Argument{Type: ty})
	}
	return args.Pack(values...)
}

func parseUint(s string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("action: invalid uint256 %q", s)
	}
	return n, nil
}

func requireString(params map[string]any, key string) (string, error) {
	v, ok := params[key].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("action: missing or non-string param %q", key)
	}
	return v, nil
}

// NewBuiltinRegistry builds the registry of actions every agent instance
// starts with: swap and wrap (one-shot, non-read-only), approve (non-
// read-only, used to raise allowance ahead of a swap), and the three
// read-only tools the LLM brain exposes (get_market_data, get_portfolio,
// get_allowance).
func NewBuiltinRegistry(routerAddress, wrappedNative string) *Registry {
	r := NewRegistry()

	r.Register(&Action{
		Name:        "swap",
		Description: "Swap an exact input amount of one token for another via the configured router.",
		Parameters: Schema{
			Type: "object",
			Properties: map[string]Property{
				"tokenIn":   {Type: TypeString, Description: "address of the token to sell"},
				"tokenOut":  {Type: TypeString, Description: "address of the token to buy"},
				"amountIn":  {Type: TypeString, Description: "decimal uint256 amount of tokenIn"},
				"minOut":    {Type: TypeString, Description: "decimal uint256 minimum acceptable amountOut"},
				"router":    {Type: TypeString, Description: "override router address; defaults to the configured router"},
			},
			Required: []string{"tokenIn", "tokenOut", "amountIn", "minOut"},
		},
		Encode: func(ctx context.Context, rc Context, params map[string]any) (domain.ActionPayloads, error) {
			tokenIn, err := requireString(params, "tokenIn")
			if err != nil {
				return nil, err
			}
			tokenOut, err := requireString(params, "tokenOut")
			if err != nil {
				return nil, err
			}
			amountIn, err := requireString(params, "amountIn")
			if err != nil {
				return nil, err
			}
			minOut, err := requireString(params, "minOut")
			if err != nil {
				return nil, err
			}
			router := routerAddress
			if v, ok := params["router"].(string); ok && v != "" {
				router = v
			}

			amountInBig, err := parseUint(amountIn)
			if err != nil {
				return nil, err
			}
			minOutBig, err := parseUint(minOut)
			if err != nil {
				return nil, err
			}
			path := []common.Address{common.HexToAddress(tokenIn), common.HexToAddress(tokenOut)}
			deadline := big.NewInt(9_999_999_999)

			data, err := packArgs(
				[]string{"uint256", "uint256", "address[]", "address", "uint256"},
				amountInBig, minOutBig, path, common.HexToAddress(rc.Vault), deadline,
			)
			if err != nil {
				return nil, err
			}
			calldata := append(selector("swapExactTokensForTokens(uint256,uint256,address[],address,uint256)"), data...)

			return domain.ActionPayloads{{
				Target: router,
				Value:  "0",
				Data:   "0x" + common.Bytes2Hex(calldata),
			}}, nil
		},
	})

	r.Register(&Action{
		Name:        "wrap",
		Description: "Wrap native currency into the wrapped-native ERC-20.",
		Parameters: Schema{
			Type: "object",
			Properties: map[string]Property{
				"amount": {Type: TypeString, Description: "decimal wei amount of native currency to wrap"},
			},
			Required: []string{"amount"},
		},
		Encode: func(ctx context.Context, rc Context, params map[string]any) (domain.ActionPayloads, error) {
			amount, err := requireString(params, "amount")
			if err != nil {
				return nil, err
			}
			if _, err := parseUint(amount); err != nil {
				return nil, err
			}
			calldata := selector("deposit()")
			return domain.ActionPayloads{{
				Target: wrappedNative,
				Value:  amount,
				Data:   "0x" + common.Bytes2Hex(calldata),
			}}, nil
		},
	})

	r.Register(&Action{
		Name:        "approve",
		Description: "Approve a spender to transfer up to amount of a token on the vault's behalf.",
		Parameters: Schema{
			Type: "object",
			Properties: map[string]Property{
				"token":   {Type: TypeString},
				"spender": {Type: TypeString},
				"amount":  {Type: TypeString},
			},
			Required: []string{"token", "spender", "amount"},
		},
		Encode: func(ctx context.Context, rc Context, params map[string]any) (domain.ActionPayloads, error) {
			token, err := requireString(params, "token")
			if err != nil {
				return nil, err
			}
			spender, err := requireString(params, "spender")
			if err != nil {
				return nil, err
			}
			amount, err := requireString(params, "amount")
			if err != nil {
				return nil, err
			}
			amountBig, err := parseUint(amount)
			if err != nil {
				return nil, err
			}
			data, err := packArgs([]string{"address", "uint256"}, common.HexToAddress(spender), amountBig)
			if err != nil {
				return nil, err
			}
			calldata := append(selector("approve(address,uint256)"), data...)
			return domain.ActionPayloads{{
				Target: token,
				Value:  "0",
				Data:   "0x" + common.Bytes2Hex(calldata),
			}}, nil
		},
	})

	r.Register(&Action{
		Name:        "get_market_data",
		Description: "Read the vault's held token list; prices and gas price are not included.",
		ReadOnly:    true,
		Parameters:  Schema{Type: "object", Properties: map[string]Property{}},
		Execute: func(ctx context.Context, rc Context, params map[string]any) (any, error) {
			return map[string]any{"vaultTokens": rc.VaultTokens}, nil
		},
	})

	r.Register(&Action{
		Name:        "get_portfolio",
		Description: "Read the vault's native balance and held token list.",
		ReadOnly:    true,
		Parameters:  Schema{Type: "object", Properties: map[string]Property{}},
		Execute: func(ctx context.Context, rc Context, params map[string]any) (any, error) {
			return map[string]any{
				"nativeBalance": rc.NativeBalance,
				"vaultTokens":   rc.VaultTokens,
			}, nil
		},
	})

	r.Register(&Action{
		Name:        "get_allowance",
		Description: "Read the current ERC-20 allowance the vault has granted to a spender.",
		ReadOnly:    true,
		Parameters: Schema{
			Type: "object",
			Properties: map[string]Property{
				"token":   {Type: TypeString},
				"spender": {Type: TypeString},
			},
			Required: []string{"token", "spender"},
		},
		Execute: func(ctx context.Context, rc Context, params map[string]any) (any, error) {
			token, err := requireString(params, "token")
			if err != nil {
				return nil, err
			}
			spender, err := requireString(params, "spender")
			if err != nil {
				return nil, err
			}
			if rc.ReadAllowance == nil {
				return nil, fmt.Errorf("action: get_allowance: no chain callback injected")
			}
			allowance, err := rc.ReadAllowance(ctx, token, rc.Vault, spender)
			if err != nil {
				return nil, err
			}
			return map[string]any{"token": token, "spender": spender, "allowance": allowance}, nil
		},
	})

	return r
}

// ExtractActionTokens collects the token-like addresses referenced by
// params, used by the cycle to build the guardrails context's
// actionTokens field.
func ExtractActionTokens(params map[string]any) []string {
	var out []string
	for _, key := range []string{"tokenIn", "tokenOut", "token"} {
		if v, ok := params[key].(string); ok && v != "" {
			out = append(out, v)
		}
	}
	return out
}

// SpendAmount computes the guardrails context's spendAmount: payload.value
// when positive, else amountIn from params.
func SpendAmount(payload domain.ActionPayload, params map[string]any) string {
	if payload.Value != "" && payload.Value != "0" {
		return payload.Value
	}
	if v, ok := params["amountIn"].(string); ok && v != "" {
		return v
	}
	return "0"
}
