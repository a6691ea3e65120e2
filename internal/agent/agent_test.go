package agent

import (
	"context"
	"testing"

	"github.com/alanyoungcy/agentrunner/internal/domain"
)

type observingChain struct {
	domain.ChainClient
}

func (observingChain) ReadAllowance(ctx context.Context, token, owner, spender string) (string, error) {
	return "42", nil
}

func (observingChain) GetAmountsOut(ctx context.Context, router, amountIn string, path []string) ([]string, error) {
	return []string{amountIn, "99"}, nil
}

func TestBuildContextCarriesObservationAndChainCallbacks(t *testing.T) {
	a := &Agent{TokenId: 1, Chain: observingChain{}}
	obs := domain.Observation{
		Vault:         "0xvault",
		VaultTokens:   []string{"0xusdc"},
		NativeBalance: "1000",
	}

	rc := a.BuildContext(obs)
	if rc.Vault != "0xvault" {
		t.Fatalf("expected vault to carry through, got %s", rc.Vault)
	}
	if len(rc.VaultTokens) != 1 || rc.VaultTokens[0] != "0xusdc" {
		t.Fatalf("expected vault tokens to carry through, got %v", rc.VaultTokens)
	}
	if rc.NativeBalance != "1000" {
		t.Fatalf("expected native balance to carry through, got %s", rc.NativeBalance)
	}
	if rc.ReadAllowance == nil || rc.GetAmountsOut == nil {
		t.Fatal("expected chain callbacks to be bound")
	}

	allowance, err := rc.ReadAllowance(context.Background(), "0xtoken", "0xowner", "0xspender")
	if err != nil || allowance != "42" {
		t.Fatalf("expected ReadAllowance to delegate to the chain client, got %s, %v", allowance, err)
	}
}
