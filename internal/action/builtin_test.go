package action

import (
	"context"
	"strings"
	"testing"

	"github.com/alanyoungcy/agentrunner/internal/domain"
)

const (
	testRouter  = "0x1111111111111111111111111111111111111111"
	testWNative = "0x2222222222222222222222222222222222222222"
)

func TestBuiltinRegistryContents(t *testing.T) {
	r := NewBuiltinRegistry(testRouter, testWNative)

	for _, name := range []string{"swap", "wrap", "approve"} {
		if _, ok := r.Get(name); !ok {
			t.Errorf("expected builtin action %q to be registered", name)
		}
	}
	for _, name := range []string{"get_market_data", "get_portfolio", "get_allowance"} {
		a, ok := r.Get(name)
		if !ok || !a.ReadOnly {
			t.Errorf("expected %q to be a registered read-only action", name)
		}
	}
	if len(r.NonReadOnly()) != 3 {
		t.Fatalf("expected 3 non-read-only builtin actions, got %d", len(r.NonReadOnly()))
	}
}

func TestSwapEncodeUsesConfiguredRouterByDefault(t *testing.T) {
	r := NewBuiltinRegistry(testRouter, testWNative)
	a, _ := r.Get("swap")

	payloads, err := ValidateAndEncode(context.Background(), a, Context{Vault: "0x3333333333333333333333333333333333333333"}, map[string]any{
		"tokenIn":  "0x4444444444444444444444444444444444444444",
		"tokenOut": "0x5555555555555555555555555555555555555555",
		"amountIn": "1000",
		"minOut":   "900",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(payloads) != 1 {
		t.Fatalf("expected a single payload, got %d", len(payloads))
	}
	if !strings.EqualFold(payloads[0].Target, testRouter) {
		t.Fatalf("expected default router %s, got %s", testRouter, payloads[0].Target)
	}
	if payloads[0].Value != "0" {
		t.Fatalf("expected zero-value swap call, got %s", payloads[0].Value)
	}
	if !strings.HasPrefix(payloads[0].Data, "0x") || len(payloads[0].Data) < 10 {
		t.Fatalf("expected packed calldata with a selector, got %q", payloads[0].Data)
	}
}

func TestSwapEncodeHonorsRouterOverride(t *testing.T) {
	r := NewBuiltinRegistry(testRouter, testWNative)
	a, _ := r.Get("swap")
	override := "0x9999999999999999999999999999999999999999"

	payloads, err := ValidateAndEncode(context.Background(), a, Context{Vault: "0x3333333333333333333333333333333333333333"}, map[string]any{
		"tokenIn":  "0x4444444444444444444444444444444444444444",
		"tokenOut": "0x5555555555555555555555555555555555555555",
		"amountIn": "1000",
		"minOut":   "900",
		"router":   override,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.EqualFold(payloads[0].Target, override) {
		t.Fatalf("expected router override %s, got %s", override, payloads[0].Target)
	}
}

func TestSwapEncodeRejectsInvalidAmount(t *testing.T) {
	r := NewBuiltinRegistry(testRouter, testWNative)
	a, _ := r.Get("swap")

	_, err := ValidateAndEncode(context.Background(), a, Context{}, map[string]any{
		"tokenIn":  "0x4444444444444444444444444444444444444444",
		"tokenOut": "0x5555555555555555555555555555555555555555",
		"amountIn": "not-a-number",
		"minOut":   "900",
	})
	if err == nil {
		t.Fatal("expected error for non-numeric amountIn")
	}
}

func TestWrapEncodeCarriesValue(t *testing.T) {
	r := NewBuiltinRegistry(testRouter, testWNative)
	a, _ := r.Get("wrap")

	payloads, err := ValidateAndEncode(context.Background(), a, Context{}, map[string]any{"amount": "500"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payloads[0].Target != testWNative {
		t.Fatalf("expected wrap target %s, got %s", testWNative, payloads[0].Target)
	}
	if payloads[0].Value != "500" {
		t.Fatalf("expected wrap value 500, got %s", payloads[0].Value)
	}
}

func TestApproveEncode(t *testing.T) {
	r := NewBuiltinRegistry(testRouter, testWNative)
	a, _ := r.Get("approve")

	payloads, err := ValidateAndEncode(context.Background(), a, Context{}, map[string]any{
		"token":   "0x4444444444444444444444444444444444444444",
		"spender": testRouter,
		"amount":  "100",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payloads[0].Target != "0x4444444444444444444444444444444444444444" {
		t.Fatalf("expected approve target to be the token, got %s", payloads[0].Target)
	}
}

func TestGetAllowanceExecuteRequiresCallback(t *testing.T) {
	r := NewBuiltinRegistry(testRouter, testWNative)
	a, _ := r.Get("get_allowance")

	_, err := a.Execute(context.Background(), Context{}, map[string]any{
		"token": "0x4444444444444444444444444444444444444444", "spender": testRouter,
	})
	if err == nil {
		t.Fatal("expected error when no ReadAllowance callback is injected")
	}
}

func TestGetAllowanceExecuteUsesCallback(t *testing.T) {
	r := NewBuiltinRegistry(testRouter, testWNative)
	a, _ := r.Get("get_allowance")

	const vault = "0x3333333333333333333333333333333333333333"
	rc := Context{
		Vault: vault,
		ReadAllowance: func(ctx context.Context, token, owner, spender string) (string, error) {
			if owner != vault {
				t.Fatalf("expected owner to be the vault address, got %s", owner)
			}
			return "12345", nil
		},
	}
	result, err := a.Execute(context.Background(), rc, map[string]any{
		"token": "0x4444444444444444444444444444444444444444", "spender": testRouter,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m, ok := result.(map[string]any)
	if !ok || m["allowance"] != "12345" {
		t.Fatalf("expected allowance 12345 in result, got %v", result)
	}
}

func TestExtractActionTokens(t *testing.T) {
	tokens := ExtractActionTokens(map[string]any{
		"tokenIn": "0xa", "tokenOut": "0xb", "unrelated": "x",
	})
	if len(tokens) != 2 {
		t.Fatalf("expected 2 extracted tokens, got %v", tokens)
	}
}

func TestSpendAmountPrefersPayloadValue(t *testing.T) {
	amt := SpendAmount(domain.ActionPayload{Value: "100"}, map[string]any{"amountIn": "50"})
	if amt != "100" {
		t.Fatalf("expected payload value to take precedence, got %s", amt)
	}
}

func TestSpendAmountFallsBackToAmountIn(t *testing.T) {
	amt := SpendAmount(domain.ActionPayload{Value: "0"}, map[string]any{"amountIn": "50"})
	if amt != "50" {
		t.Fatalf("expected fallback to amountIn, got %s", amt)
	}
}
