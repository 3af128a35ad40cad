package domain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ChainClient reads wallet state and manages spend approvals on one chain.
// Every method is a blocking RPC; callers attach timeouts via ctx.
type ChainClient interface {
	// BalanceOf returns the owner's spendable balance of the asset. For the
	// native asset this is the account balance, otherwise an ERC-20 read.
	BalanceOf(ctx context.Context, asset Asset, owner common.Address) (*big.Int, error)
	// Allowance returns the amount of the asset spender may currently move
	// on the owner's behalf. Native assets need no allowance.
	Allowance(ctx context.Context, asset Asset, owner, spender common.Address) (*big.Int, error)
	// Approve submits an ERC-20 approval for spender and returns the
	// transaction hash. The caller must wait for its receipt before relying
	// on the allowance.
	Approve(ctx context.Context, asset Asset, spender common.Address, amount *big.Int, signer Signer) (string, error)
	// WaitForReceipt blocks until the transaction reaches a terminal status.
	WaitForReceipt(ctx context.Context, txHash string) (TxStatus, uint64, error)
	// GasPrice returns the current suggested gas price in wei.
	GasPrice(ctx context.Context) (*big.Int, error)
}
