// Package domain defines the core types of the arbitrage engine and the
// interfaces through which it talks to venues, oracles, signers, stores and
// caches. All monetary amounts are big.Int values in the asset's smallest
// unit; conversion to human-readable form happens only at the presentation
// boundary.
package domain

import (
	"github.com/ethereum/go-ethereum/common"
)

// Asset is a token observed on a specific chain. Immutable once observed.
type Asset struct {
	Address  common.Address
	Symbol   string
	Decimals uint8
	ChainID  int64
}

// IsNative reports whether the asset is the chain's native currency,
// represented by the zero address.
func (a Asset) IsNative() bool {
	return a.Address == (common.Address{})
}

// Equal reports whether two assets are the same token on the same chain.
func (a Asset) Equal(b Asset) bool {
	return a.Address == b.Address && a.ChainID == b.ChainID
}

// Key returns a stable map key for the asset.
func (a Asset) Key() string {
	return a.Address.Hex()
}
