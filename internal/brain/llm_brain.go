package brain

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"

	"github.com/alanyoungcy/agentrunner/internal/action"
	"github.com/alanyoungcy/agentrunner/internal/domain"
)

const defaultMaxToolSteps = 5

// ChatCompleter is the subset of *openai.Client the LLM brain depends on.
// Narrowing it to an interface keeps the tool-calling loop unit-testable
// without a live API key.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// LLMBrain is the OpenAI-backed Brain implementation.
type LLMBrain struct {
	client        ChatCompleter
	model         string
	fallbackModel string
	maxToolSteps  int
	minConfidence float64
	goal          string
	env           Environment
	log           *slog.Logger
}

// Config captures the per-token construction parameters a Brain is built
// from: goal text, model, fallback model, max tool-calling steps, and the
// minimum confidence below which Think turns a non-wait decision into a wait.
type Config struct {
	Goal          string
	Model         string
	FallbackModel string
	MaxToolSteps  int
	MinConfidence float64
	Env           Environment
}

// NewLLMBrain constructs an LLMBrain bound to a single agent instance's
// goal. client is typically an *openai.Client; it is accepted as an
// interface so callers can substitute a fake in tests.
func NewLLMBrain(client ChatCompleter, cfg Config, log *slog.Logger) *LLMBrain {
	maxSteps := cfg.MaxToolSteps
	if maxSteps <= 0 {
		maxSteps = defaultMaxToolSteps
	}
	return &LLMBrain{
		client:        client,
		model:         cfg.Model,
		fallbackModel: cfg.FallbackModel,
		maxToolSteps:  maxSteps,
		minConfidence: cfg.MinConfidence,
		goal:          cfg.Goal,
		env:           cfg.Env,
		log:           log.With(slog.String("component", "brain")),
	}
}

// Think runs the bounded tool-calling loop against the configured model
// and parses the final response into a Decision. Model or tool-execution
// errors are never propagated: per §4.5 they become a zero-confidence wait
// so the scheduler treats them as "nothing to do this cycle" rather than
// an infrastructure failure.
func (b *LLMBrain) Think(ctx context.Context, observation domain.Observation, memories []domain.MemoryEntry, actions *action.Registry, rc action.Context) (domain.Decision, error) {
	d, err := b.complete(ctx, b.model, observation, memories, actions, rc)
	if err != nil {
		b.log.WarnContext(ctx, "primary model failed", slog.String("model", b.model), slog.String("error", err.Error()))
		return b.fallbackDecision(err), nil
	}

	if d.Confidence == 0 && b.fallbackModel != "" && b.fallbackModel != b.model {
		b.log.InfoContext(ctx, "zero-confidence decision, retrying with fallback model", slog.String("fallback", b.fallbackModel))
		if fd, ferr := b.complete(ctx, b.fallbackModel, observation, memories, actions, rc); ferr == nil {
			d = fd
		}
	}

	if !d.IsWait() && d.Confidence < b.minConfidence {
		b.log.InfoContext(ctx, "decision below minimum confidence, waiting instead",
			slog.String("action", d.Action), slog.Float64("confidence", d.Confidence))
		d.Action = waitAction
		d.Params = map[string]any{}
		d.Done = nil
	}

	d = applyCadenceFilter(d, b.goal)
	return d, nil
}

func (b *LLMBrain) fallbackDecision(err error) domain.Decision {
	return domain.Decision{
		Action:     waitAction,
		Params:     map[string]any{},
		Confidence: 0,
		Message:    sanitizeError(err),
	}
}

// sanitizeError strips provider-internal detail from an error before it
// becomes a user-facing message; raw errors still land in the run row's
// "error" column via the cycle orchestrator, never here.
func sanitizeError(err error) string {
	return "the decision engine was unable to respond this cycle"
}

func (b *LLMBrain) complete(ctx context.Context, model string, observation domain.Observation, memories []domain.MemoryEntry, actions *action.Registry, rc action.Context) (domain.Decision, error) {
	systemPrompt := buildSystemPrompt(b.goal, b.env, actions)
	userPrompt := buildUserPrompt(observation, memories)
	tools := toolDefinitions(actions)

	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: userPrompt},
	}

	for step := 0; step < b.maxToolSteps; step++ {
		resp, err := b.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:    model,
			Messages: messages,
			Tools:    tools,
		})
		if err != nil {
			return domain.Decision{}, fmt.Errorf("brain: chat completion: %w", err)
		}
		if len(resp.Choices) == 0 {
			return domain.Decision{}, fmt.Errorf("brain: no choices returned")
		}

		choice := resp.Choices[0]
		if len(choice.Message.ToolCalls) == 0 {
			return ParseDecision(choice.Message.Content), nil
		}

		messages = append(messages, choice.Message)
		for _, tc := range choice.Message.ToolCalls {
			result := b.executeTool(ctx, actions, rc, tc)
			messages = append(messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    result,
				ToolCallID: tc.ID,
			})
		}
	}

	return domain.Decision{}, fmt.Errorf("brain: exceeded %d tool-calling steps", b.maxToolSteps)
}

func (b *LLMBrain) executeTool(ctx context.Context, actions *action.Registry, rc action.Context, tc openai.ToolCall) string {
	a, ok := actions.Get(tc.Function.Name)
	if !ok || !a.ReadOnly || a.Execute == nil {
		return fmt.Sprintf("error: unknown tool %q", tc.Function.Name)
	}

	var params map[string]any
	if err := json.Unmarshal([]byte(tc.Function.Arguments), &params); err != nil {
		return fmt.Sprintf("error: invalid arguments: %v", err)
	}

	result, err := a.Execute(ctx, rc, params)
	if err != nil {
		return fmt.Sprintf("error: %v", err)
	}
	out, err := json.Marshal(result)
	if err != nil {
		return fmt.Sprintf("error: could not encode result: %v", err)
	}
	return string(out)
}

// Compile-time interface check.
var _ Brain = (*LLMBrain)(nil)
