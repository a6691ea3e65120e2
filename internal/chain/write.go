package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/alanyoungcy/agentrunner/internal/domain"
	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

// submit packs method/args against the registry ABI, estimates gas with
// the configured buffer applied, signs and sends the transaction, then
// blocks for its receipt (bounded by txTimeout).
func (c *Client) submit(ctx context.Context, method string, args ...any) (domain.ExecuteResult, error) {
	data, err := c.registryABI.Pack(method, args...)
	if err != nil {
		return domain.ExecuteResult{}, fmt.Errorf("chain: pack %s: %w", method, err)
	}

	from := c.signer.Address()
	estimate, err := c.rpc.EstimateGas(ctx, ethereum.CallMsg{
		From: from,
		To:   &c.registryAddr,
		Data: data,
	})
	if err != nil {
		return domain.ExecuteResult{}, fmt.Errorf("chain: estimate gas for %s: %w", method, err)
	}

	opts, err := c.signer.TransactOpts()
	if err != nil {
		return domain.ExecuteResult{}, fmt.Errorf("chain: %s: %w", method, err)
	}
	opts.Context = ctx
	opts.GasLimit = estimate * uint64(100+c.gasBufferPercent) / 100

	tx, err := c.registry.RawTransact(opts, data)
	if err != nil {
		return domain.ExecuteResult{}, fmt.Errorf("chain: send %s: %w", method, err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, c.txTimeout)
	defer cancel()
	receipt, err := bind.WaitMined(waitCtx, c.rpc, tx)
	if err != nil {
		return domain.ExecuteResult{Hash: tx.Hash().Hex()}, fmt.Errorf("chain: wait for %s receipt: %w", method, err)
	}

	return domain.ExecuteResult{
		Hash:          receipt.TxHash.Hex(),
		ReceiptStatus: receipt.Status,
		ReceiptBlock:  receipt.BlockNumber.Uint64(),
		GasUsed:       receipt.GasUsed,
	}, nil
}

// ExecuteAction submits a single action payload through the registry's
// operator-gated execute() pass-through.
func (c *Client) ExecuteAction(ctx context.Context, tokenId domain.TokenId, payload domain.ActionPayload) (domain.ExecuteResult, error) {
	value, ok := new(big.Int).SetString(payload.Value, 10)
	if !ok {
		return domain.ExecuteResult{}, fmt.Errorf("chain: execute: invalid value %q", payload.Value)
	}
	return c.submit(ctx, "execute",
		big.NewInt(int64(tokenId)),
		common.HexToAddress(payload.Target),
		value,
		common.FromHex(payload.Data),
	)
}

// ExecuteBatchAction submits a batch of action payloads through the
// registry's executeBatch().
func (c *Client) ExecuteBatchAction(ctx context.Context, tokenId domain.TokenId, payloads domain.ActionPayloads) (domain.ExecuteResult, error) {
	targets := make([]common.Address, len(payloads))
	values := make([]*big.Int, len(payloads))
	datas := make([][]byte, len(payloads))
	for i, p := range payloads {
		targets[i] = common.HexToAddress(p.Target)
		value, ok := new(big.Int).SetString(p.Value, 10)
		if !ok {
			return domain.ExecuteResult{}, fmt.Errorf("chain: executeBatch: invalid value %q at index %d", p.Value, i)
		}
		values[i] = value
		datas[i] = common.FromHex(p.Data)
	}
	return c.submit(ctx, "executeBatch", big.NewInt(int64(tokenId)), targets, values, datas)
}

// EnableOperatorWithPermit registers this service's signer as the token's
// operator using an EIP-2612 permit signature (see crypto.Signer.SignPermit),
// avoiding a separate approve transaction.
func (c *Client) EnableOperatorWithPermit(ctx context.Context, in domain.UpsertAutopilotInput) (domain.ExecuteResult, error) {
	var permitExpires, permitDeadline int64
	if in.PermitExpires != nil {
		permitExpires = in.PermitExpires.Unix()
	}
	if in.PermitDeadline != nil {
		permitDeadline = in.PermitDeadline.Unix()
	}
	return c.submit(ctx, "enableOperatorWithPermit",
		big.NewInt(int64(in.TokenId)),
		common.HexToAddress(in.Operator),
		big.NewInt(permitExpires),
		big.NewInt(permitDeadline),
		common.FromHex(in.Sig),
	)
}

// ClearOperator revokes the current operator lease for a token.
func (c *Client) ClearOperator(ctx context.Context, tokenId domain.TokenId) (domain.ExecuteResult, error) {
	return c.submit(ctx, "clearOperator", big.NewInt(int64(tokenId)))
}
