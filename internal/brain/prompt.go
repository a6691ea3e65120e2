package brain

import (
	"fmt"
	"sort"
	"strings"

	"github.com/alanyoungcy/agentrunner/internal/action"
	"github.com/alanyoungcy/agentrunner/internal/domain"
)

// buildSystemPrompt carries the goal, the fixed environment block, a rules
// block, and the names of every non-read-only action the brain may invoke.
func buildSystemPrompt(goal string, env Environment, actions *action.Registry) string {
	var b strings.Builder

	b.WriteString("You are the autonomous decision engine for an on-chain agent instance.\n")
	b.WriteString("Goal: ")
	b.WriteString(strings.TrimSpace(goal))
	b.WriteString("\n\n")

	b.WriteString("Environment:\n")
	fmt.Fprintf(&b, "  chainId: %d\n", env.ChainID)
	fmt.Fprintf(&b, "  router: %s\n", env.RouterAddress)
	fmt.Fprintf(&b, "  wrappedNative: %s\n", env.WrappedNative)
	if len(env.Stablecoins) > 0 {
		fmt.Fprintf(&b, "  stablecoins: %s\n", strings.Join(env.Stablecoins, ", "))
	}
	b.WriteString("\n")

	b.WriteString("Rules:\n")
	b.WriteString("- Only act when the goal calls for it; otherwise respond with action=\"wait\".\n")
	b.WriteString("- Use the provided tools to check balances, allowances, and prices before committing to a trade.\n")
	b.WriteString("- Respond with a single JSON object: {action, params, reasoning, confidence, done, nextCheckMs}.\n")
	b.WriteString("- confidence is your certainty in [0,1]. A low-confidence decision will not be executed.\n")
	b.WriteString("- Set done=true once the goal is satisfied so the agent instance can stop.\n\n")

	names := make([]string, 0)
	for _, a := range actions.NonReadOnly() {
		names = append(names, a.Name)
	}
	sort.Strings(names)
	b.WriteString("Available non-read-only actions: ")
	b.WriteString(strings.Join(names, ", "))
	b.WriteString("\n")

	return b.String()
}

// buildUserPrompt renders the observation and the most recent memory
// entries (goals excluded — the goal already lives in the system prompt).
func buildUserPrompt(obs domain.Observation, memories []domain.MemoryEntry) string {
	var b strings.Builder

	b.WriteString("Current observation:\n")
	fmt.Fprintf(&b, "  block: %d at %s\n", obs.BlockNumber, obs.BlockTime.Format("2006-01-02T15:04:05Z"))
	fmt.Fprintf(&b, "  vault: %s\n", obs.Vault)
	fmt.Fprintf(&b, "  vaultTokens: %s\n", strings.Join(obs.VaultTokens, ", "))
	fmt.Fprintf(&b, "  nativeBalance: %s\n", obs.NativeBalance)
	fmt.Fprintf(&b, "  gasPriceWei: %s\n", obs.GasPriceWei)
	fmt.Fprintf(&b, "  paused: %t\n", obs.Paused)
	if len(obs.Prices) > 0 {
		b.WriteString("  prices:\n")
		keys := make([]string, 0, len(obs.Prices))
		for k := range obs.Prices {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "    %s: %s\n", k, obs.Prices[k])
		}
	}

	recent := recentNonGoalMemories(memories, 10)
	if len(recent) == 0 {
		b.WriteString("\nNo recent memory entries.\n")
		return b.String()
	}

	b.WriteString("\nRecent memory (most recent first):\n")
	for _, m := range recent {
		fmt.Fprintf(&b, "  [%s] %s action=%s", m.Timestamp.Format("15:04:05"), m.Type, m.Action)
		if m.Result != nil {
			fmt.Fprintf(&b, " success=%t", m.Result.Success)
			if m.Result.Error != "" {
				fmt.Fprintf(&b, " error=%q", m.Result.Error)
			}
		}
		if m.Reasoning != "" {
			fmt.Fprintf(&b, " reasoning=%q", m.Reasoning)
		}
		b.WriteString("\n")
	}

	return b.String()
}

// recentNonGoalMemories returns the first n entries of memories that are
// not of type MemoryGoal, preserving order (callers pass recall(20) results
// which already come back newest-first).
func recentNonGoalMemories(memories []domain.MemoryEntry, n int) []domain.MemoryEntry {
	out := make([]domain.MemoryEntry, 0, n)
	for _, m := range memories {
		if m.Type == domain.MemoryGoal {
			continue
		}
		out = append(out, m)
		if len(out) == n {
			break
		}
	}
	return out
}
