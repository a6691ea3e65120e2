package domain

import "context"

// ChainClient is the external contract the scheduler and cycle depend on.
// Its network-level mechanics (RPC transport, retry, connection pooling)
// are out of scope here; only the operation surface matters.
type ChainClient interface {
	Observe(ctx context.Context, tokenId TokenId) (Observation, error)
	ReadAgentType(ctx context.Context, tokenId TokenId) (string, error)
	ReadSubscriptionStatus(ctx context.Context, tokenId TokenId) (SubscriptionStatus, error)
	ReadAllowance(ctx context.Context, token, owner, spender string) (string, error)
	GetAmountsOut(ctx context.Context, router string, amountIn string, path []string) ([]string, error)
	ReadCooldownSeconds(ctx context.Context, tokenId TokenId) (int64, error)
	ExecuteAction(ctx context.Context, tokenId TokenId, payload ActionPayload) (ExecuteResult, error)
	ExecuteBatchAction(ctx context.Context, tokenId TokenId, payload ActionPayloads) (ExecuteResult, error)
	EnableOperatorWithPermit(ctx context.Context, in UpsertAutopilotInput) (ExecuteResult, error)
	ClearOperator(ctx context.Context, tokenId TokenId) (ExecuteResult, error)
}
