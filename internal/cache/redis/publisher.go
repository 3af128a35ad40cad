package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jmcalloway/dexarb/internal/domain"
)

// opportunityChannel is the Pub/Sub channel scan results are broadcast on.
const opportunityChannel = "dexarb:opportunities"

// Publisher implements domain.OpportunityPublisher over Redis Pub/Sub.
// Delivery is fire-and-forget for out-of-process observers; the in-process
// pipeline never depends on it.
type Publisher struct {
	rdb *redis.Client
}

// NewPublisher creates a Publisher backed by the given Client.
func NewPublisher(c *Client) *Publisher {
	return &Publisher{rdb: c.Underlying()}
}

// opportunityMessage is the wire shape. Amounts are decimal strings so
// consumers in any language can parse them without big-integer JSON quirks.
type opportunityMessage struct {
	ID         string    `json:"id"`
	AssetA     string    `json:"asset_a"`
	AssetB     string    `json:"asset_b"`
	BuyVenue   string    `json:"buy_venue"`
	SellVenue  string    `json:"sell_venue"`
	ProfitBps  int64     `json:"profit_bps"`
	Profit     string    `json:"profit"`
	Probe      string    `json:"probe"`
	Confidence float64   `json:"confidence"`
	DetectedAt time.Time `json:"detected_at"`
}

// Publish broadcasts one opportunity.
func (p *Publisher) Publish(ctx context.Context, opp domain.Opportunity) error {
	payload, err := json.Marshal(opportunityMessage{
		ID:         opp.ID,
		AssetA:     opp.AssetA.Symbol,
		AssetB:     opp.AssetB.Symbol,
		BuyVenue:   opp.BuyPool.Venue,
		SellVenue:  opp.SellPool.Venue,
		ProfitBps:  opp.ProfitBps,
		Profit:     bigString(opp.ProfitAmount),
		Probe:      bigString(opp.ProbeAmount),
		Confidence: opp.Confidence,
		DetectedAt: opp.DetectedAt,
	})
	if err != nil {
		return fmt.Errorf("redis: marshal opportunity %s: %w", opp.ID, err)
	}
	if err := p.rdb.Publish(ctx, opportunityChannel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish opportunity %s: %w", opp.ID, err)
	}
	return nil
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// Compile-time interface check.
var _ domain.OpportunityPublisher = (*Publisher)(nil)
