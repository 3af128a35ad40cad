package domain

import "math/big"

// RiskLevel is the discrete band a risk score maps into.
type RiskLevel string

const (
	RiskLevelLow      RiskLevel = "low"
	RiskLevelMedium   RiskLevel = "medium"
	RiskLevelHigh     RiskLevel = "high"
	RiskLevelCritical RiskLevel = "critical"
)

// RiskLevelFor maps an additive score to its level. The boundaries are fixed
// constants so assessments stay deterministic across deployments.
func RiskLevelFor(score int) RiskLevel {
	switch {
	case score <= 20:
		return RiskLevelLow
	case score <= 40:
		return RiskLevelMedium
	case score <= 70:
		return RiskLevelHigh
	default:
		return RiskLevelCritical
	}
}

// RiskAssessment is the risk gate's verdict for one opportunity. Produced
// fresh per assessment and never stored beyond logging and auditing.
type RiskAssessment struct {
	Score         int
	Level         RiskLevel
	ShouldExecute bool
	// Reasons lists every scoring dimension that fired, in evaluation order.
	Reasons []string
	// AdjustedSize is the approved input amount, shrunk from the original in
	// proportion to the score. Always <= the opportunity's probe amount.
	AdjustedSize *big.Int
	// AdjustedSlippageBps is the approved slippage tolerance, tightened as
	// the score rises and floored at a minimum non-zero tolerance.
	AdjustedSlippageBps int64
}
