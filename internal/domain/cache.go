package domain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// PriceCache stores the latest spot observation per asset. The websocket
// feed writes it; the price oracle reads through it.
type PriceCache interface {
	SetPrice(ctx context.Context, asset common.Address, point PricePoint) error
	// GetPrice returns ErrNotFound when no observation exists.
	GetPrice(ctx context.Context, asset common.Address) (PricePoint, error)
}

// OpportunityPublisher broadcasts detected opportunities to out-of-process
// observers (dashboards, recorders). Publishing is fire-and-forget; the
// in-process pipeline uses the scanner's bounded channel instead.
type OpportunityPublisher interface {
	Publish(ctx context.Context, opp Opportunity) error
}

// RateLimiter bounds outbound calls per key (one key per venue RPC).
type RateLimiter interface {
	// Allow reports whether one more call under key may proceed now.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
