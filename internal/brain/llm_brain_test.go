package brain

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/alanyoungcy/agentrunner/internal/action"
	"github.com/alanyoungcy/agentrunner/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeCompleter struct {
	responses []openai.ChatCompletionResponse
	errs      []error
	calls     int
}

func (f *fakeCompleter) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return openai.ChatCompletionResponse{}, f.errs[i]
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return openai.ChatCompletionResponse{}, errors.New("fakeCompleter: no more scripted responses")
}

func messageResponse(content string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{
			Message: openai.ChatCompletionMessage{Content: content},
		}},
	}
}

func TestThinkParsesFinalMessage(t *testing.T) {
	client := &fakeCompleter{responses: []openai.ChatCompletionResponse{
		messageResponse(`{"action": "wait", "confidence": 0.8, "reasoning": "nothing to do"}`),
	}}
	b := NewLLMBrain(client, Config{Goal: "hold until told otherwise", Model: "gpt-4o"}, testLogger())

	d, err := b.Think(context.Background(), domain.Observation{}, nil, action.NewRegistry(), action.Context{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Action != "wait" || d.Confidence != 0.8 {
		t.Fatalf("unexpected decision: %+v", d)
	}
}

func TestThinkRunsToolCallLoop(t *testing.T) {
	reg := action.NewRegistry()
	reg.Register(&action.Action{
		Name:     "get_portfolio",
		ReadOnly: true,
		Execute: func(ctx context.Context, rc action.Context, params map[string]any) (any, error) {
			return map[string]any{"usdc": "100"}, nil
		},
	})

	toolCallResp := openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{
			Message: openai.ChatCompletionMessage{
				ToolCalls: []openai.ToolCall{{
					ID:       "call-1",
					Function: openai.FunctionCall{Name: "get_portfolio", Arguments: "{}"},
				}},
			},
		}},
	}
	client := &fakeCompleter{responses: []openai.ChatCompletionResponse{
		toolCallResp,
		messageResponse(`{"action": "wait", "confidence": 0.9}`),
	}}
	b := NewLLMBrain(client, Config{Goal: "check my balance", Model: "gpt-4o"}, testLogger())

	d, err := b.Think(context.Background(), domain.Observation{}, nil, reg, action.Context{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Action != "wait" {
		t.Fatalf("unexpected decision: %+v", d)
	}
	if client.calls != 2 {
		t.Fatalf("expected exactly 2 completion calls, got %d", client.calls)
	}
}

func TestThinkFallsBackToWaitOnModelError(t *testing.T) {
	client := &fakeCompleter{errs: []error{errors.New("rate limited")}}
	b := NewLLMBrain(client, Config{Goal: "swap when price is right", Model: "gpt-4o"}, testLogger())

	d, err := b.Think(context.Background(), domain.Observation{}, nil, action.NewRegistry(), action.Context{})
	if err != nil {
		t.Fatalf("Think should never propagate model errors, got %v", err)
	}
	if d.Action != waitAction || d.Confidence != 0 {
		t.Fatalf("expected a zero-confidence wait decision, got %+v", d)
	}
}

func TestThinkRetriesWithFallbackModelOnZeroConfidence(t *testing.T) {
	client := &fakeCompleter{responses: []openai.ChatCompletionResponse{
		messageResponse(`{"action": "wait", "confidence": 0}`),
		messageResponse(`{"action": "swap", "confidence": 0.7}`),
	}}
	b := NewLLMBrain(client, Config{Goal: "swap opportunistically", Model: "gpt-4o", FallbackModel: "gpt-4o-mini"}, testLogger())

	d, err := b.Think(context.Background(), domain.Observation{}, nil, action.NewRegistry(), action.Context{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Action != "swap" || d.Confidence != 0.7 {
		t.Fatalf("expected the fallback model's decision to win, got %+v", d)
	}
	if client.calls != 2 {
		t.Fatalf("expected primary + fallback calls, got %d", client.calls)
	}
}

func TestThinkExceedingToolStepsReturnsWaitNotError(t *testing.T) {
	reg := action.NewRegistry()
	reg.Register(&action.Action{
		Name:     "get_portfolio",
		ReadOnly: true,
		Execute: func(ctx context.Context, rc action.Context, params map[string]any) (any, error) {
			return map[string]any{}, nil
		},
	})
	toolCallResp := openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{
			Message: openai.ChatCompletionMessage{
				ToolCalls: []openai.ToolCall{{ID: "x", Function: openai.FunctionCall{Name: "get_portfolio", Arguments: "{}"}}},
			},
		}},
	}
	responses := make([]openai.ChatCompletionResponse, 0, 2)
	for i := 0; i < 2; i++ {
		responses = append(responses, toolCallResp)
	}
	client := &fakeCompleter{responses: responses}
	b := NewLLMBrain(client, Config{Goal: "loop forever", Model: "gpt-4o", MaxToolSteps: 2}, testLogger())

	d, err := b.Think(context.Background(), domain.Observation{}, nil, reg, action.Context{})
	if err != nil {
		t.Fatalf("Think should never propagate errors, got %v", err)
	}
	if d.Action != waitAction {
		t.Fatalf("expected exceeded-steps to normalise to wait, got %+v", d)
	}
}

func TestExecuteToolUnknownActionReturnsError(t *testing.T) {
	b := NewLLMBrain(&fakeCompleter{}, Config{Model: "gpt-4o"}, testLogger())
	out := b.executeTool(context.Background(), action.NewRegistry(), action.Context{}, openai.ToolCall{
		Function: openai.FunctionCall{Name: "nonexistent", Arguments: "{}"},
	})
	if out == "" {
		t.Fatal("expected an error string for an unknown tool")
	}
}

func TestExecuteToolRejectsNonReadOnlyAction(t *testing.T) {
	reg := action.NewRegistry()
	reg.Register(&action.Action{Name: "swap", ReadOnly: false})
	b := NewLLMBrain(&fakeCompleter{}, Config{Model: "gpt-4o"}, testLogger())
	out := b.executeTool(context.Background(), reg, action.Context{}, openai.ToolCall{
		Function: openai.FunctionCall{Name: "swap", Arguments: "{}"},
	})
	var parsed map[string]any
	_ = json.Unmarshal([]byte(out), &parsed)
	if out == "" {
		t.Fatal("expected an error string for a non-read-only tool invocation")
	}
}
