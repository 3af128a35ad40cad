package domain

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

func TestNormalizeTo18(t *testing.T) {
	// 1 USDC (6 decimals) becomes 1e18 at the common scale.
	one := big.NewInt(1_000_000)
	want, _ := new(big.Int).SetString("1000000000000000000", 10)
	assert.Equal(t, want, NormalizeTo18(one, 6))

	// 18-decimal amounts pass through unchanged.
	assert.Equal(t, big.NewInt(42), NormalizeTo18(big.NewInt(42), 18))

	// Higher precisions truncate down.
	assert.Equal(t, big.NewInt(15), NormalizeTo18(big.NewInt(1_599), 20))

	assert.Nil(t, NormalizeTo18(nil, 6))
}

func TestNormalizeTo18DoesNotMutateInput(t *testing.T) {
	in := big.NewInt(7)
	NormalizeTo18(in, 6)
	assert.Equal(t, big.NewInt(7), in)
}

func TestRescaleAmount(t *testing.T) {
	assert.Equal(t, big.NewInt(5_000), RescaleAmount(big.NewInt(5), 0, 3))
	assert.Equal(t, big.NewInt(5), RescaleAmount(big.NewInt(5_999), 3, 0))
	assert.Equal(t, big.NewInt(5), RescaleAmount(big.NewInt(5), 6, 6))
	assert.Nil(t, RescaleAmount(nil, 6, 18))
}

func TestConvertByPrice(t *testing.T) {
	// 2 WETH at $2500 into USDC at $1: 5000 USDC in 6-decimal units.
	twoWETH, _ := new(big.Int).SetString("2000000000000000000", 10)
	got := ConvertByPrice(twoWETH, 18, 6, 2500.0, 1.0)
	assert.Equal(t, big.NewInt(5_000_000_000), got)
}

func TestConvertByPriceSamePrecision(t *testing.T) {
	// 1 WETH at $2600 into LINK at $13: 200 LINK.
	oneWETH, _ := new(big.Int).SetString("1000000000000000000", 10)
	want, _ := new(big.Int).SetString("200000000000000000000", 10)
	assert.Equal(t, want, ConvertByPrice(oneWETH, 18, 18, 2600.0, 13.0))
}

func TestConvertByPriceRejectsBadInputs(t *testing.T) {
	assert.Nil(t, ConvertByPrice(nil, 18, 6, 2500, 1))
	assert.Nil(t, ConvertByPrice(big.NewInt(1), 18, 6, 0, 1))
	assert.Nil(t, ConvertByPrice(big.NewInt(1), 18, 6, 2500, -1))
}

func TestAssetIdentity(t *testing.T) {
	assert.True(t, testWETH.Equal(testWETH))
	assert.False(t, testWETH.Equal(testLINK))

	other := testWETH
	other.ChainID = 1
	assert.False(t, testWETH.Equal(other))

	native := Asset{Address: common.Address{}, Symbol: "MATIC", Decimals: 18, ChainID: 137}
	assert.True(t, native.IsNative())
	assert.False(t, testWETH.IsNative())

	assert.Equal(t, testWETH.Address.Hex(), testWETH.Key())
}
