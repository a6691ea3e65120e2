package brain

import (
	"encoding/json"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/alanyoungcy/agentrunner/internal/action"
)

func TestToolDefinitionsOnlyIncludesReadOnlyActions(t *testing.T) {
	reg := action.NewRegistry()
	reg.Register(&action.Action{Name: "swap", ReadOnly: false})
	reg.Register(&action.Action{Name: "get_portfolio", ReadOnly: true, Description: "returns token balances"})

	tools := toolDefinitions(reg)
	if len(tools) != 1 {
		t.Fatalf("expected exactly 1 read-only tool, got %d", len(tools))
	}
	if tools[0].Function.Name != "get_portfolio" {
		t.Fatalf("expected get_portfolio, got %s", tools[0].Function.Name)
	}
	if tools[0].Type != openai.ToolTypeFunction {
		t.Fatalf("expected function tool type, got %s", tools[0].Type)
	}
}

func TestSchemaToJSONRoundTrips(t *testing.T) {
	s := action.Schema{
		Type: "object",
		Properties: map[string]action.Property{
			"token": {Type: action.TypeString, Description: "token address"},
		},
		Required: []string{"token"},
	}
	raw := schemaToJSON(s)

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("expected valid JSON, got error: %v", err)
	}
	if decoded["type"] != "object" {
		t.Fatalf("expected type object, got %v", decoded["type"])
	}
	required, ok := decoded["required"].([]any)
	if !ok || len(required) != 1 || required[0] != "token" {
		t.Fatalf("expected required=[token], got %v", decoded["required"])
	}
}
