package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// QuoteModel identifies the pricing math a pool follows.
type QuoteModel string

const (
	// QuoteModelConstantProduct covers x*y=k pools (Uniswap v2 and forks).
	QuoteModelConstantProduct QuoteModel = "constant_product"
	// QuoteModelConcentrated covers tick-based concentrated liquidity pools
	// (Uniswap v3 and forks), quoted through the venue's quoter contract.
	QuoteModelConcentrated QuoteModel = "concentrated"
)

// LiquidityPool is an immutable snapshot of a venue's reserve for one asset
// pair. Scans never mutate a snapshot in place; a refreshed snapshot replaces
// the old one.
type LiquidityPool struct {
	Venue    string
	ChainID  int64
	Address  common.Address
	Model    QuoteModel
	Token0   Asset
	Token1   Asset
	Reserve0 *big.Int
	Reserve1 *big.Int
	// FeeBps is the swap fee in basis points (30 for the canonical 0.3% pool).
	FeeBps    int64
	FetchedAt time.Time
}

// HasAsset reports whether the pool trades the given asset.
func (p LiquidityPool) HasAsset(a Asset) bool {
	return p.Token0.Equal(a) || p.Token1.Equal(a)
}

// ReserveOf returns the pool's reserve of the given asset, or nil if the pool
// does not trade it. Concentrated pools report their quoter-visible virtual
// reserves here, which is only a depth proxy.
func (p LiquidityPool) ReserveOf(a Asset) *big.Int {
	switch {
	case p.Token0.Equal(a):
		return p.Reserve0
	case p.Token1.Equal(a):
		return p.Reserve1
	default:
		return nil
	}
}
