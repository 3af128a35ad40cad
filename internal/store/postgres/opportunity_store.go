package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jmcalloway/dexarb/internal/domain"
)

// OpportunityStore implements domain.OpportunityStore using PostgreSQL.
// Scan-friendly summary columns sit beside a JSONB payload carrying the full
// structure, so reads reconstruct the opportunity without a join per leg.
type OpportunityStore struct {
	pool *pgxpool.Pool
}

// NewOpportunityStore creates an OpportunityStore backed by the given pool.
func NewOpportunityStore(pool *pgxpool.Pool) *OpportunityStore {
	return &OpportunityStore{pool: pool}
}

// Create stores a detected opportunity.
func (s *OpportunityStore) Create(ctx context.Context, opp domain.Opportunity) error {
	const query = `
		INSERT INTO opportunities (
			id, asset_a, asset_b, buy_venue, sell_venue,
			profit_bps, profit_amount, probe_amount,
			gas_estimate, confidence, detected_at, payload
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING`

	payload, err := json.Marshal(encodeOpportunity(opp))
	if err != nil {
		return fmt.Errorf("postgres: marshal opportunity %s: %w", opp.ID, err)
	}

	_, err = s.pool.Exec(ctx, query,
		opp.ID, opp.AssetA.Symbol, opp.AssetB.Symbol,
		opp.BuyPool.Venue, opp.SellPool.Venue,
		opp.ProfitBps, textAmount(opp.ProfitAmount), textAmount(opp.ProbeAmount),
		int64(opp.GasEstimate), opp.Confidence, opp.DetectedAt, payload,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert opportunity %s: %w", opp.ID, err)
	}
	return nil
}

// GetByID returns one opportunity, or domain.ErrNotFound.
func (s *OpportunityStore) GetByID(ctx context.Context, id string) (domain.Opportunity, error) {
	const query = `SELECT payload FROM opportunities WHERE id = $1`

	var payload []byte
	err := s.pool.QueryRow(ctx, query, id).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Opportunity{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Opportunity{}, fmt.Errorf("postgres: get opportunity %s: %w", id, err)
	}
	return decodePayload(payload)
}

// ListRecent returns the most recently detected opportunities, newest first.
func (s *OpportunityStore) ListRecent(ctx context.Context, limit int) ([]domain.Opportunity, error) {
	query := `SELECT payload FROM opportunities ORDER BY detected_at DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list opportunities: %w", err)
	}
	defer rows.Close()

	var opps []domain.Opportunity
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("postgres: scan opportunity: %w", err)
		}
		opp, err := decodePayload(payload)
		if err != nil {
			return nil, err
		}
		opps = append(opps, opp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list opportunities: %w", err)
	}
	return opps, nil
}

// Wire DTOs. Amounts travel as base-10 strings so the JSONB payload stays
// language-neutral.

type assetJSON struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
	ChainID  int64  `json:"chain_id"`
}

type poolJSON struct {
	Venue     string    `json:"venue"`
	ChainID   int64     `json:"chain_id"`
	Address   string    `json:"address"`
	Model     string    `json:"model"`
	Token0    assetJSON `json:"token0"`
	Token1    assetJSON `json:"token1"`
	Reserve0  string    `json:"reserve0"`
	Reserve1  string    `json:"reserve1"`
	FeeBps    int64     `json:"fee_bps"`
	FetchedAt time.Time `json:"fetched_at"`
}

type legJSON struct {
	Venue        string    `json:"venue"`
	AssetIn      assetJSON `json:"asset_in"`
	AssetOut     assetJSON `json:"asset_out"`
	AmountIn     string    `json:"amount_in"`
	MinAmountOut string    `json:"min_amount_out"`
	Pool         poolJSON  `json:"pool"`
}

type opportunityJSON struct {
	ID           string             `json:"id"`
	AssetA       assetJSON          `json:"asset_a"`
	AssetB       assetJSON          `json:"asset_b"`
	BuyPool      poolJSON           `json:"buy_pool"`
	SellPool     poolJSON           `json:"sell_pool"`
	ProbeAmount  string             `json:"probe_amount"`
	ProfitBps    int64              `json:"profit_bps"`
	ProfitAmount string             `json:"profit_amount"`
	Legs         []legJSON          `json:"legs"`
	GasEstimate  uint64             `json:"gas_estimate"`
	Confidence   float64            `json:"confidence"`
	DetectedAt   time.Time          `json:"detected_at"`
	Prediction   *domain.Prediction `json:"prediction,omitempty"`
}

func encodeOpportunity(opp domain.Opportunity) opportunityJSON {
	legs := make([]legJSON, len(opp.Legs))
	for i, leg := range opp.Legs {
		legs[i] = legJSON{
			Venue:        leg.Venue,
			AssetIn:      encodeAsset(leg.AssetIn),
			AssetOut:     encodeAsset(leg.AssetOut),
			AmountIn:     textAmount(leg.AmountIn),
			MinAmountOut: textAmount(leg.MinAmountOut),
			Pool:         encodePool(leg.Pool),
		}
	}
	return opportunityJSON{
		ID:           opp.ID,
		AssetA:       encodeAsset(opp.AssetA),
		AssetB:       encodeAsset(opp.AssetB),
		BuyPool:      encodePool(opp.BuyPool),
		SellPool:     encodePool(opp.SellPool),
		ProbeAmount:  textAmount(opp.ProbeAmount),
		ProfitBps:    opp.ProfitBps,
		ProfitAmount: textAmount(opp.ProfitAmount),
		Legs:         legs,
		GasEstimate:  opp.GasEstimate,
		Confidence:   opp.Confidence,
		DetectedAt:   opp.DetectedAt,
		Prediction:   opp.Prediction,
	}
}

func decodePayload(payload []byte) (domain.Opportunity, error) {
	var enc opportunityJSON
	if err := json.Unmarshal(payload, &enc); err != nil {
		return domain.Opportunity{}, fmt.Errorf("postgres: decode opportunity payload: %w", err)
	}

	legs := make([]domain.TradeLeg, len(enc.Legs))
	for i, leg := range enc.Legs {
		legs[i] = domain.TradeLeg{
			Venue:        leg.Venue,
			AssetIn:      decodeAsset(leg.AssetIn),
			AssetOut:     decodeAsset(leg.AssetOut),
			AmountIn:     parseAmount(leg.AmountIn),
			MinAmountOut: parseAmount(leg.MinAmountOut),
			Pool:         decodePool(leg.Pool),
		}
	}
	return domain.Opportunity{
		ID:           enc.ID,
		AssetA:       decodeAsset(enc.AssetA),
		AssetB:       decodeAsset(enc.AssetB),
		BuyPool:      decodePool(enc.BuyPool),
		SellPool:     decodePool(enc.SellPool),
		ProbeAmount:  parseAmount(enc.ProbeAmount),
		ProfitBps:    enc.ProfitBps,
		ProfitAmount: parseAmount(enc.ProfitAmount),
		Legs:         legs,
		GasEstimate:  enc.GasEstimate,
		Confidence:   enc.Confidence,
		DetectedAt:   enc.DetectedAt,
		Prediction:   enc.Prediction,
	}, nil
}

func encodeAsset(a domain.Asset) assetJSON {
	return assetJSON{Address: a.Address.Hex(), Symbol: a.Symbol, Decimals: a.Decimals, ChainID: a.ChainID}
}

func decodeAsset(a assetJSON) domain.Asset {
	return domain.Asset{Address: common.HexToAddress(a.Address), Symbol: a.Symbol, Decimals: a.Decimals, ChainID: a.ChainID}
}

func encodePool(p domain.LiquidityPool) poolJSON {
	return poolJSON{
		Venue:     p.Venue,
		ChainID:   p.ChainID,
		Address:   p.Address.Hex(),
		Model:     string(p.Model),
		Token0:    encodeAsset(p.Token0),
		Token1:    encodeAsset(p.Token1),
		Reserve0:  textAmount(p.Reserve0),
		Reserve1:  textAmount(p.Reserve1),
		FeeBps:    p.FeeBps,
		FetchedAt: p.FetchedAt,
	}
}

func decodePool(p poolJSON) domain.LiquidityPool {
	return domain.LiquidityPool{
		Venue:     p.Venue,
		ChainID:   p.ChainID,
		Address:   common.HexToAddress(p.Address),
		Model:     domain.QuoteModel(p.Model),
		Token0:    decodeAsset(p.Token0),
		Token1:    decodeAsset(p.Token1),
		Reserve0:  parseAmount(p.Reserve0),
		Reserve1:  parseAmount(p.Reserve1),
		FeeBps:    p.FeeBps,
		FetchedAt: p.FetchedAt,
	}
}

// textAmount renders a big integer as its base-10 string, "0" for nil.
func textAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// parseAmount is the inverse of textAmount; malformed text yields zero
// rather than an error since the column is written by textAmount only.
func parseAmount(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return new(big.Int)
	}
	return v
}

// Compile-time interface check.
var _ domain.OpportunityStore = (*OpportunityStore)(nil)
