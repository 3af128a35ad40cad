package uniswapv2

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetAmountOutMatchesPairContract(t *testing.T) {
	// 1000 in against 100000/100000 reserves with the standard 30 bps fee.
	// inWithFee = 1000*9970 = 9970000, numerator = 9970000*100000,
	// denominator = 100000*10000 + 9970000 = 1009970000, out = 987.
	got := GetAmountOut(big.NewInt(1_000), big.NewInt(100_000), big.NewInt(100_000), 30)
	assert.Equal(t, big.NewInt(987), got)
}

func TestGetAmountOutZeroFee(t *testing.T) {
	// With no fee and balanced reserves the output is in*rOut/(rIn+in).
	got := GetAmountOut(big.NewInt(1_000), big.NewInt(100_000), big.NewInt(100_000), 0)
	assert.Equal(t, big.NewInt(990), got)
}

func TestGetAmountOutLargeReserves(t *testing.T) {
	in, _ := new(big.Int).SetString("1000000000000000000", 10)          // 1e18
	rIn, _ := new(big.Int).SetString("5000000000000000000000", 10)      // 5000e18
	rOut, _ := new(big.Int).SetString("12500000000000000000000000", 10) // 12.5Me18

	got := GetAmountOut(in, rIn, rOut, 30)

	// Spot price is 2500 out per in; the fee and price impact shave it below,
	// but a 0.02% probe against those reserves should stay within a few bps.
	spot := new(big.Int).Mul(in, big.NewInt(2_500))
	floor, _ := new(big.Int).SetString("2491000000000000000000", 10)
	assert.Equal(t, -1, got.Cmp(spot))
	assert.Equal(t, 1, got.Cmp(floor))
}

func TestGetAmountOutDegenerateInputs(t *testing.T) {
	zero := new(big.Int)
	assert.Equal(t, zero, GetAmountOut(nil, big.NewInt(1), big.NewInt(1), 30))
	assert.Equal(t, zero, GetAmountOut(big.NewInt(0), big.NewInt(1), big.NewInt(1), 30))
	assert.Equal(t, zero, GetAmountOut(big.NewInt(1), big.NewInt(0), big.NewInt(1), 30))
	assert.Equal(t, zero, GetAmountOut(big.NewInt(1), big.NewInt(1), nil, 30))
}

func TestGetAmountOutDoesNotMutateInputs(t *testing.T) {
	in := big.NewInt(1_000)
	rIn := big.NewInt(100_000)
	rOut := big.NewInt(100_000)
	GetAmountOut(in, rIn, rOut, 30)
	assert.Equal(t, big.NewInt(1_000), in)
	assert.Equal(t, big.NewInt(100_000), rIn)
	assert.Equal(t, big.NewInt(100_000), rOut)
}
