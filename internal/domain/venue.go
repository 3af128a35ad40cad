package domain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// VenueClient is the per-venue adapter boundary. Implementations wrap one
// liquidity venue on one chain and are registered with the venue registry
// keyed by (name, chain id).
type VenueClient interface {
	// Name returns the venue identifier (e.g. "uniswap_v2", "sushiswap").
	Name() string
	// ChainID returns the chain the adapter operates on.
	ChainID() int64
	// Router returns the routing contract trades are submitted through. The
	// orchestrator grants ERC-20 allowances to this address.
	Router() common.Address
	// GetPools returns snapshot(s) of the venue's pools for the asset pair.
	// It returns ErrDataUnavailable when the venue has no pool for the pair.
	GetPools(ctx context.Context, a, b Asset) ([]LiquidityPool, error)
	// GetQuote returns the output amount for swapping amountIn of assetIn
	// into assetOut through the given pool, net of the pool fee.
	GetQuote(ctx context.Context, assetIn, assetOut Asset, amountIn *big.Int, pool LiquidityPool) (*big.Int, error)
	// EstimateGas returns the gas units one leg is expected to consume.
	EstimateGas(ctx context.Context, leg TradeLeg) (uint64, error)
	// ExecuteTrade submits the leg through the venue's router using the
	// signer and returns the transaction hash.
	ExecuteTrade(ctx context.Context, leg TradeLeg, signer Signer) (string, error)
}
