// Package brain implements the decision engine contract: think(observation,
// memories, actions) -> Decision, plus the LLM-backed brain that drives it
// with tool-calling and a tolerant multi-strategy JSON parser.
package brain

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/alanyoungcy/agentrunner/internal/action"
	"github.com/alanyoungcy/agentrunner/internal/domain"
)

// Brain is the decision engine contract. Brains are stateless across
// tokens; per-token configuration (goal text, provider, model, max steps,
// min confidence) is captured at construction time by whoever builds the
// Brain for a given agent.
//
// rc carries the runtime context (vault, balances, and the chain-bound
// callbacks a read-only tool's Execute needs) built by whoever owns the
// chain client — the Agent, in practice. The spec's think(observation,
// memories, actions) is pseudocode for the decision it makes; rc is the
// Go-level plumbing required to let tool calls reach the chain.
type Brain interface {
	Think(ctx context.Context, observation domain.Observation, memories []domain.MemoryEntry, actions *action.Registry, rc action.Context) (domain.Decision, error)
}

// Environment is the small fixed block of chain facts every system prompt
// carries regardless of goal, so the model always knows what it is acting
// on top of.
type Environment struct {
	ChainID       int64
	RouterAddress string
	WrappedNative string
	Stablecoins   []string
}

const waitAction = "wait"

var fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// ParseDecision turns a brain's raw completion text into a Decision using
// the four-strategy fallback described in §4.5:
//  1. JSON inside a fenced code block (text outside the fence becomes the
//     message when it's long enough to be a real comment).
//  2. A direct JSON parse of the whole text.
//  3. The substring between the first '{' and the last '}'.
//  4. Otherwise, non-empty non-JSON text is a conversational message with
//     action="wait", done=true.
//
// The result is always field-normalised: a blank action becomes "wait",
// params defaults to an empty map, confidence is clamped to [0,1]. Action
// names are not checked against the action set here; the cycle blocks a
// name with no registered action.
func ParseDecision(text string) domain.Decision {
	text = strings.TrimSpace(text)

	if m := fencedJSON.FindStringSubmatch(text); m != nil {
		if d, ok := tryParseJSON(m[1]); ok {
			outside := strings.TrimSpace(strings.Replace(text, m[0], "", 1))
			if d.Message == "" && len(outside) > 20 {
				d.Message = outside
			}
			return normalize(d)
		}
	}

	if d, ok := tryParseJSON(text); ok {
		return normalize(d)
	}

	if start, end := strings.Index(text, "{"), strings.LastIndex(text, "}"); start >= 0 && end > start {
		if d, ok := tryParseJSON(text[start : end+1]); ok {
			return normalize(d)
		}
	}

	if text != "" {
		return normalize(domain.Decision{Action: waitAction, Message: text, Done: boolPtr(true)})
	}

	return normalize(domain.Decision{Action: waitAction})
}

func tryParseJSON(s string) (domain.Decision, bool) {
	var d domain.Decision
	if err := json.Unmarshal([]byte(s), &d); err != nil {
		return domain.Decision{}, false
	}
	return d, true
}

// normalize applies field-normalisation rules from §4.5: unknown action
// defaults are left to the caller (an action-name lookup happens in the
// cycle package), params defaults to an empty mapping, confidence clamps
// to [0,1], and a zero value with no action at all becomes "wait".
func normalize(d domain.Decision) domain.Decision {
	if strings.TrimSpace(d.Action) == "" {
		d.Action = waitAction
	}
	if d.Params == nil {
		d.Params = map[string]any{}
	}
	if d.Confidence < 0 {
		d.Confidence = 0
	}
	if d.Confidence > 1 {
		d.Confidence = 1
	}
	return d
}

func boolPtr(b bool) *bool { return &b }
