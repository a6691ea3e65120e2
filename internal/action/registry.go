package action

import (
	"context"
	"fmt"

	"github.com/alanyoungcy/agentrunner/internal/domain"
)

// Context carries runtime-injected data an encoder may need beyond the
// brain-supplied params: vault address, and callbacks keyed under the
// reserved prefix (§6). Every encoder and readonly Execute receives it.
type Context struct {
	Vault    string
	ReadAllowance  func(ctx context.Context, token, owner, spender string) (string, error)
	GetAmountsOut  func(ctx context.Context, router, amountIn string, path []string) ([]string, error)
	VaultTokens    []string
	NativeBalance  string
}

// EncodeFunc turns validated params into one or more on-chain payloads. It
// runs synchronously from the caller's perspective — a Go function call is
// already an implicit "future" that may itself suspend on ctx-aware I/O, so
// no separate promise type is introduced; see DESIGN.md.
type EncodeFunc func(ctx context.Context, rc Context, params map[string]any) (domain.ActionPayloads, error)

// ExecuteFunc runs a read-only action and returns an arbitrary JSON-able
// result, used both by the HTTP collaborator and by the LLM brain's tool
// calling loop.
type ExecuteFunc func(ctx context.Context, rc Context, params map[string]any) (any, error)

// Action is a named, schema-described capability.
type Action struct {
	Name        string
	Description string
	ReadOnly    bool
	Parameters  Schema
	Encode      EncodeFunc
	Execute     ExecuteFunc
}

// Registry holds the set of actions available to an agent instance.
type Registry struct {
	actions map[string]*Action
	order   []string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{actions: make(map[string]*Action)}
}

// Register adds an action. Registering a name twice overwrites the prior
// entry while preserving its original position.
func (r *Registry) Register(a *Action) {
	if _, exists := r.actions[a.Name]; !exists {
		r.order = append(r.order, a.Name)
	}
	r.actions[a.Name] = a
}

// Get resolves an action by name.
func (r *Registry) Get(name string) (*Action, bool) {
	a, ok := r.actions[name]
	return a, ok
}

// All returns every registered action in registration order.
func (r *Registry) All() []*Action {
	out := make([]*Action, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.actions[name])
	}
	return out
}

// ReadOnly returns every action flagged read-only, in registration order.
func (r *Registry) ReadOnly() []*Action {
	var out []*Action
	for _, name := range r.order {
		if a := r.actions[name]; a.ReadOnly {
			out = append(out, a)
		}
	}
	return out
}

// NonReadOnly returns every action that is not read-only, in registration
// order — the set the LLM brain's system prompt lists by name.
func (r *Registry) NonReadOnly() []*Action {
	var out []*Action
	for _, name := range r.order {
		if a := r.actions[name]; !a.ReadOnly {
			out = append(out, a)
		}
	}
	return out
}

// ValidateAndEncode validates params against the action's schema and, only
// if validation succeeds, invokes Encode.
func ValidateAndEncode(ctx context.Context, a *Action, rc Context, params map[string]any) (domain.ActionPayloads, error) {
	if a.ReadOnly {
		return nil, fmt.Errorf("action: %s is read-only, cannot encode", a.Name)
	}
	if err := a.Parameters.Validate(params); err != nil {
		return nil, err
	}
	return a.Encode(ctx, rc, params)
}
