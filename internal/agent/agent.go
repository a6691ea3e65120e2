// Package agent wires a single token id's chain client, brain, and action
// registry together, and caches that wiring across cognitive cycles.
package agent

import (
	"github.com/alanyoungcy/agentrunner/internal/action"
	"github.com/alanyoungcy/agentrunner/internal/brain"
	"github.com/alanyoungcy/agentrunner/internal/domain"
)

// Agent is the per-token composition the cycle orchestrator drives. It
// holds no cyclic reference back to the AgentManager (capability-style
// composition, per spec §9): the Brain receives only the action set and
// observation/memory data the cycle hands it, never the Agent itself.
type Agent struct {
	TokenId domain.TokenId
	Chain   domain.ChainClient
	Brain   brain.Brain
	Actions *action.Registry
}

// BuildContext wires an observation's vault data and the chain client's
// read-only callbacks into the action.Context a tool call or encoder
// needs. This is the one place the reserved-prefix callbacks
// (ReadAllowance, GetAmountsOut) get bound to the agent's chain client.
func (a *Agent) BuildContext(obs domain.Observation) action.Context {
	return action.Context{
		Vault:         obs.Vault,
		VaultTokens:   obs.VaultTokens,
		NativeBalance: obs.NativeBalance,
		ReadAllowance: a.Chain.ReadAllowance,
		GetAmountsOut: a.Chain.GetAmountsOut,
	}
}
