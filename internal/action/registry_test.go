package action

import (
	"context"
	"testing"

	"github.com/alanyoungcy/agentrunner/internal/domain"
)

func TestRegistryOrderPreserved(t *testing.T) {
	r := NewRegistry()
	r.Register(&Action{Name: "b"})
	r.Register(&Action{Name: "a"})
	r.Register(&Action{Name: "c"})

	names := make([]string, 0, 3)
	for _, a := range r.All() {
		names = append(names, a.Name)
	}
	want := []string{"b", "a", "c"}
	for i, n := range want {
		if names[i] != n {
			t.Fatalf("expected registration order %v, got %v", want, names)
		}
	}
}

func TestRegistryOverwritePreservesPosition(t *testing.T) {
	r := NewRegistry()
	r.Register(&Action{Name: "a", Description: "first"})
	r.Register(&Action{Name: "b"})
	r.Register(&Action{Name: "a", Description: "second"})

	names := make([]string, 0, 2)
	for _, a := range r.All() {
		names = append(names, a.Name)
	}
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Fatalf("expected overwrite to preserve original position, got %v", names)
	}
	a, _ := r.Get("a")
	if a.Description != "second" {
		t.Fatalf("expected overwrite to replace the action, got description %q", a.Description)
	}
}

func TestRegistryReadOnlySplit(t *testing.T) {
	r := NewRegistry()
	r.Register(&Action{Name: "swap", ReadOnly: false})
	r.Register(&Action{Name: "get_portfolio", ReadOnly: true})

	ro := r.ReadOnly()
	if len(ro) != 1 || ro[0].Name != "get_portfolio" {
		t.Fatalf("expected only get_portfolio in ReadOnly(), got %v", ro)
	}
	nro := r.NonReadOnly()
	if len(nro) != 1 || nro[0].Name != "swap" {
		t.Fatalf("expected only swap in NonReadOnly(), got %v", nro)
	}
}

func TestValidateAndEncodeRejectsReadOnly(t *testing.T) {
	a := &Action{Name: "get_portfolio", ReadOnly: true, Parameters: Schema{Type: "object"}}
	_, err := ValidateAndEncode(context.Background(), a, Context{}, map[string]any{})
	if err == nil {
		t.Fatal("expected error encoding a read-only action")
	}
}

func TestValidateAndEncodeRejectsInvalidParams(t *testing.T) {
	a := &Action{
		Name:       "swap",
		Parameters: Schema{Type: "object", Required: []string{"amountIn"}},
		Encode: func(ctx context.Context, rc Context, params map[string]any) (domain.ActionPayloads, error) {
			t.Fatal("encode must not run when validation fails")
			return nil, nil
		},
	}
	_, err := ValidateAndEncode(context.Background(), a, Context{}, map[string]any{})
	if err == nil {
		t.Fatal("expected validation error")
	}
}

func TestValidateAndEncodeSucceeds(t *testing.T) {
	called := false
	a := &Action{
		Name:       "swap",
		Parameters: Schema{Type: "object", Properties: map[string]Property{"amountIn": {Type: TypeString}}, Required: []string{"amountIn"}},
		Encode: func(ctx context.Context, rc Context, params map[string]any) (domain.ActionPayloads, error) {
			called = true
			return domain.ActionPayloads{{Target: "0xrouter"}}, nil
		},
	}
	payloads, err := ValidateAndEncode(context.Background(), a, Context{}, map[string]any{"amountIn": "100"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("expected Encode to be invoked")
	}
	if len(payloads) != 1 || payloads[0].Target != "0xrouter" {
		t.Fatalf("unexpected payloads: %v", payloads)
	}
}
