package domain

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testWETH = Asset{
		Address:  common.HexToAddress("0x7ceB23fD6bC0adD59E62ac25578270cFf1b9f619"),
		Symbol:   "WETH",
		Decimals: 18,
		ChainID:  137,
	}
	testLINK = Asset{
		Address:  common.HexToAddress("0x53E0bca35eC356BD5ddDFebbD1Fc0fD03FaBad39"),
		Symbol:   "LINK",
		Decimals: 18,
		ChainID:  137,
	}
	testUSDC = Asset{
		Address:  common.HexToAddress("0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"),
		Symbol:   "USDC",
		Decimals: 6,
		ChainID:  137,
	}
)

func roundTrip(probe, out *big.Int) Opportunity {
	return Opportunity{
		ID:          "opp-1",
		AssetA:      testWETH,
		AssetB:      testLINK,
		ProbeAmount: probe,
		Legs: []TradeLeg{
			{
				Venue:        "alpha",
				AssetIn:      testWETH,
				AssetOut:     testLINK,
				AmountIn:     probe,
				MinAmountOut: big.NewInt(1),
			},
			{
				Venue:        "beta",
				AssetIn:      testLINK,
				AssetOut:     testWETH,
				AmountIn:     big.NewInt(1),
				MinAmountOut: out,
			},
		},
	}
}

func TestProfitBpsOf(t *testing.T) {
	tests := []struct {
		name string
		in   *big.Int
		out  *big.Int
		want int64
	}{
		{"one percent gain", big.NewInt(10_000), big.NewInt(10_100), 100},
		{"one percent loss", big.NewInt(10_000), big.NewInt(9_900), -100},
		{"break even", big.NewInt(10_000), big.NewInt(10_000), 0},
		{"truncates toward zero", big.NewInt(3), big.NewInt(4), 3333},
		{"zero input", big.NewInt(0), big.NewInt(100), 0},
		{"nil input", nil, big.NewInt(100), 0},
		{"nil output", big.NewInt(100), nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ProfitBpsOf(tt.in, tt.out))
		})
	}
}

func TestApplySlippageBps(t *testing.T) {
	assert.Equal(t, big.NewInt(9_950), ApplySlippageBps(big.NewInt(10_000), 50))
	assert.Equal(t, big.NewInt(10_000), ApplySlippageBps(big.NewInt(10_000), 0))

	// Out-of-range tolerances clamp instead of producing negative amounts.
	assert.Equal(t, big.NewInt(10_000), ApplySlippageBps(big.NewInt(10_000), -5))
	assert.Equal(t, big.NewInt(0), ApplySlippageBps(big.NewInt(10_000), 20_000))

	assert.Nil(t, ApplySlippageBps(nil, 50))
}

func TestOpportunityValidate(t *testing.T) {
	opp := roundTrip(big.NewInt(1_000), big.NewInt(1_010))
	require.NoError(t, opp.Validate())
}

func TestOpportunityValidateRejectsBrokenChain(t *testing.T) {
	opp := roundTrip(big.NewInt(1_000), big.NewInt(1_010))
	opp.Legs[1].AssetIn = testUSDC
	err := opp.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not chain")
}

func TestOpportunityValidateRejectsOpenRoundTrip(t *testing.T) {
	opp := roundTrip(big.NewInt(1_000), big.NewInt(1_010))
	opp.Legs[1].AssetOut = testUSDC
	err := opp.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "round trip ends in USDC")
}

func TestOpportunityValidateRejectsSingleLeg(t *testing.T) {
	opp := roundTrip(big.NewInt(1_000), big.NewInt(1_010))
	opp.Legs = opp.Legs[:1]
	assert.Error(t, opp.Validate())
}

func TestOpportunityValidateRejectsMissingAmounts(t *testing.T) {
	opp := roundTrip(big.NewInt(1_000), big.NewInt(1_010))
	opp.ProbeAmount = nil
	assert.Error(t, opp.Validate())

	opp = roundTrip(big.NewInt(1_000), big.NewInt(1_010))
	opp.Legs[0].AmountIn = big.NewInt(0)
	assert.Error(t, opp.Validate())
}

func TestOpportunityValidateRejectsForeignOrigin(t *testing.T) {
	opp := roundTrip(big.NewInt(1_000), big.NewInt(1_010))
	opp.AssetA = testUSDC
	err := opp.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "origin asset")
}

func TestSameVenue(t *testing.T) {
	opp := roundTrip(big.NewInt(1_000), big.NewInt(1_010))
	assert.False(t, opp.SameVenue())

	opp.Legs[1].Venue = "alpha"
	assert.True(t, opp.SameVenue())
}
