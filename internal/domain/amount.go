package domain

import (
	"math"
	"math/big"
)

// NormalizedDecimals is the common scale risk accounting uses so amounts of
// assets with different precisions can be compared and accumulated.
const NormalizedDecimals = 18

// NormalizeTo18 rescales amount from the asset's own decimals to the common
// 18-decimal scale. Amounts with more than 18 decimals are scaled down with
// truncation.
func NormalizeTo18(amount *big.Int, decimals uint8) *big.Int {
	if amount == nil {
		return nil
	}
	out := new(big.Int).Set(amount)
	switch {
	case decimals < NormalizedDecimals:
		exp := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(NormalizedDecimals-decimals)), nil)
		out.Mul(out, exp)
	case decimals > NormalizedDecimals:
		exp := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals-NormalizedDecimals)), nil)
		out.Quo(out, exp)
	}
	return out
}

// RescaleAmount rescales amount from one decimal precision to another,
// truncating when scaling down.
func RescaleAmount(amount *big.Int, from, to uint8) *big.Int {
	if amount == nil {
		return nil
	}
	out := new(big.Int).Set(amount)
	switch {
	case from < to:
		exp := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(to-from)), nil)
		out.Mul(out, exp)
	case from > to:
		exp := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(from-to)), nil)
		out.Quo(out, exp)
	}
	return out
}

// priceScale fixes oracle prices to 8 decimal places before they enter
// integer amount math.
const priceScale = 1e8

// ConvertByPrice converts an amount of one asset into another via their USD
// prices: out = amount * fromPrice / toPrice, rescaled to the target
// precision. Oracle prices arrive as floats; they are fixed to priceScale
// once at this boundary so no float touches the amount arithmetic itself.
func ConvertByPrice(amount *big.Int, fromDec, toDec uint8, fromPriceUSD, toPriceUSD float64) *big.Int {
	if amount == nil || fromPriceUSD <= 0 || toPriceUSD <= 0 {
		return nil
	}
	pf := big.NewInt(int64(math.Round(fromPriceUSD * priceScale)))
	pt := big.NewInt(int64(math.Round(toPriceUSD * priceScale)))
	if pt.Sign() <= 0 {
		return nil
	}
	out := new(big.Int).Mul(amount, pf)
	out.Quo(out, pt)
	return RescaleAmount(out, fromDec, toDec)
}
