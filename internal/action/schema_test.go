package action

import "testing"

func testSchema() Schema {
	return Schema{
		Type: "object",
		Properties: map[string]Property{
			"tokenIn":  {Type: TypeString},
			"amountIn": {Type: TypeString},
			"count":    {Type: TypeInteger},
			"ratio":    {Type: TypeNumber, Enum: []any{0.1, 0.5, 1.0}},
		},
		Required: []string{"tokenIn", "amountIn"},
	}
}

func TestValidateOK(t *testing.T) {
	err := testSchema().Validate(map[string]any{
		"tokenIn":  "0xabc",
		"amountIn": "100",
	})
	if err != nil {
		t.Fatalf("expected valid params, got %v", err)
	}
}

func TestValidateMissingRequired(t *testing.T) {
	err := testSchema().Validate(map[string]any{"tokenIn": "0xabc"})
	if err == nil {
		t.Fatal("expected missing-required error")
	}
}

func TestValidateUnknownParam(t *testing.T) {
	err := testSchema().Validate(map[string]any{
		"tokenIn": "0xabc", "amountIn": "1", "bogus": "x",
	})
	if err == nil {
		t.Fatal("expected unknown-parameter error")
	}
}

func TestValidateReservedPrefixSkipped(t *testing.T) {
	err := testSchema().Validate(map[string]any{
		"tokenIn": "0xabc", "amountIn": "1", "__vaultTokens": []any{"0x1"},
	})
	if err != nil {
		t.Fatalf("expected reserved-prefixed keys to be skipped, got %v", err)
	}
}

func TestValidateWrongType(t *testing.T) {
	err := testSchema().Validate(map[string]any{
		"tokenIn": "0xabc", "amountIn": "1", "count": "not-an-int",
	})
	if err == nil {
		t.Fatal("expected type-mismatch error")
	}
}

func TestValidateIntegerAcceptsWholeFloat(t *testing.T) {
	err := testSchema().Validate(map[string]any{
		"tokenIn": "0xabc", "amountIn": "1", "count": float64(3),
	})
	if err != nil {
		t.Fatalf("expected whole-number float to satisfy integer type, got %v", err)
	}
}

func TestValidateIntegerRejectsFractionalFloat(t *testing.T) {
	err := testSchema().Validate(map[string]any{
		"tokenIn": "0xabc", "amountIn": "1", "count": 3.5,
	})
	if err == nil {
		t.Fatal("expected fractional float to fail integer type check")
	}
}

func TestValidateEnumViolation(t *testing.T) {
	err := testSchema().Validate(map[string]any{
		"tokenIn": "0xabc", "amountIn": "1", "ratio": 0.9,
	})
	if err == nil {
		t.Fatal("expected enum violation")
	}
}

func TestValidateEnumMatch(t *testing.T) {
	err := testSchema().Validate(map[string]any{
		"tokenIn": "0xabc", "amountIn": "1", "ratio": 0.5,
	})
	if err != nil {
		t.Fatalf("expected enum match to pass, got %v", err)
	}
}

func TestValidateAccumulatesMultipleErrors(t *testing.T) {
	err := testSchema().Validate(map[string]any{"bogus": "x"})
	verr, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	if len(verr.Errors) < 3 {
		t.Fatalf("expected unknown-param + 2 missing-required errors, got %v", verr.Errors)
	}
}
