package uniswapv2

import (
	"math/big"

	"github.com/jmcalloway/dexarb/internal/domain"
)

// GetAmountOut computes the constant-product swap output:
//
//	out = (in * (10000 - feeBps) * reserveOut) / (reserveIn * 10000 + in * (10000 - feeBps))
//
// All math is integer; the result truncates toward zero like the pair
// contract does. Returns zero when either reserve is empty.
func GetAmountOut(amountIn, reserveIn, reserveOut *big.Int, feeBps int64) *big.Int {
	if amountIn == nil || amountIn.Sign() <= 0 ||
		reserveIn == nil || reserveIn.Sign() <= 0 ||
		reserveOut == nil || reserveOut.Sign() <= 0 {
		return new(big.Int)
	}

	inWithFee := new(big.Int).Mul(amountIn, big.NewInt(domain.BpsDenominator-feeBps))
	numerator := new(big.Int).Mul(inWithFee, reserveOut)
	denominator := new(big.Int).Mul(reserveIn, big.NewInt(domain.BpsDenominator))
	denominator.Add(denominator, inWithFee)

	return numerator.Quo(numerator, denominator)
}
