package domain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// PricePoint is a best-effort spot observation for one asset.
type PricePoint struct {
	PriceUSD  float64
	Change24h float64
	Volume24h float64
	Timestamp time.Time
}

// PriceOracle supplies best-effort spot price, volume and volatility per
// asset. Informational only: no engine amount math runs on these floats.
type PriceOracle interface {
	GetPrice(ctx context.Context, asset common.Address) (PricePoint, error)
}

// ConfidenceOracle scores an opportunity with an externally trained model.
// A failed prediction is non-fatal; assessment proceeds without it.
type ConfidenceOracle interface {
	Predict(ctx context.Context, opp Opportunity) (Prediction, error)
}
