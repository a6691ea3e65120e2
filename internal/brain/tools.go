package brain

import (
	"encoding/json"

	openai "github.com/sashabaranov/go-openai"

	"github.com/alanyoungcy/agentrunner/internal/action"
)

// toolDefinitions converts every read-only action into an OpenAI function
// tool definition, deriving the JSON schema from the action's own
// action.Schema rather than hand-writing a parallel one.
func toolDefinitions(actions *action.Registry) []openai.Tool {
	readOnly := actions.ReadOnly()
	tools := make([]openai.Tool, 0, len(readOnly))
	for _, a := range readOnly {
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        a.Name,
				Description: a.Description,
				Parameters:  schemaToJSON(a.Parameters),
			},
		})
	}
	return tools
}

func schemaToJSON(s action.Schema) json.RawMessage {
	type jsonProp struct {
		Type        string `json:"type"`
		Description string `json:"description,omitempty"`
		Enum        []any  `json:"enum,omitempty"`
	}
	props := make(map[string]jsonProp, len(s.Properties))
	for name, p := range s.Properties {
		props[name] = jsonProp{Type: string(p.Type), Description: p.Description, Enum: p.Enum}
	}
	out := struct {
		Type       string              `json:"type"`
		Properties map[string]jsonProp `json:"properties"`
		Required   []string            `json:"required,omitempty"`
	}{
		Type:       "object",
		Properties: props,
		Required:   s.Required,
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return json.RawMessage(`{"type":"object","properties":{}}`)
	}
	return raw
}
