package chain

import (
	"context"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/alanyoungcy/agentrunner/internal/domain"
)

func TestABIsParse(t *testing.T) {
	for name, raw := range map[string]string{
		"registry": agentRegistryABI,
		"erc20":    erc20ABI,
		"router":   routerABI,
	} {
		if _, err := abi.JSON(strings.NewReader(raw)); err != nil {
			t.Fatalf("%s abi failed to parse: %v", name, err)
		}
	}
}

func TestSubscriptionStatusByCode(t *testing.T) {
	want := map[uint8]domain.SubscriptionStatus{
		0: domain.SubscriptionActive,
		1: domain.SubscriptionGracePeriod,
		2: domain.SubscriptionExpired,
		3: domain.SubscriptionCanceled,
	}
	if len(subscriptionStatusByCode) != len(want) {
		t.Fatalf("expected %d codes, got %d", len(want), len(subscriptionStatusByCode))
	}
	for code, status := range want {
		if got := subscriptionStatusByCode[code]; got != status {
			t.Errorf("code %d: want %s, got %s", code, status, got)
		}
	}
}

func TestObservePricesUnconfigured(t *testing.T) {
	c := &Client{}
	prices := c.observePrices(nil)
	if len(prices) != 0 {
		t.Fatalf("expected no prices with unconfigured router, got %v", prices)
	}
}

// The following cover validation that rejects bad input before any RPC
// call is made, so a zero-value Client (nil rpc) is safe to exercise.

func TestGetAmountsOutRejectsInvalidAmount(t *testing.T) {
	c := &Client{}
	if _, err := c.GetAmountsOut(context.Background(), "", "not-a-number", []string{"0xa", "0xb"}); err == nil {
		t.Fatal("expected error for a non-numeric amountIn")
	}
}

func TestExecuteActionRejectsInvalidValue(t *testing.T) {
	c := &Client{}
	_, err := c.ExecuteAction(context.Background(), 1, domain.ActionPayload{Target: "0xabc", Value: "not-a-number", Data: "0x"})
	if err == nil {
		t.Fatal("expected error for a non-numeric action value")
	}
}

func TestExecuteBatchActionRejectsInvalidValueAtIndex(t *testing.T) {
	c := &Client{}
	_, err := c.ExecuteBatchAction(context.Background(), 1, domain.ActionPayloads{
		{Target: "0xabc", Value: "1", Data: "0x"},
		{Target: "0xdef", Value: "not-a-number", Data: "0x"},
	})
	if err == nil {
		t.Fatal("expected error for the second payload's non-numeric value")
	}
}
