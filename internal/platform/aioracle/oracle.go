// Package aioracle scores opportunities with an OpenAI-compatible chat
// model. Predictions are advisory: the risk gate folds high confidence into
// its score, and any oracle failure leaves the opportunity unannotated.
package aioracle

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/jmcalloway/dexarb/internal/config"
	"github.com/jmcalloway/dexarb/internal/domain"
)

const systemPrompt = `You score on-chain arbitrage opportunities between two
decentralized exchange pools. Respond with a single JSON object and nothing
else: {"confidence": <0..1>, "risk_score": <0..1>,
"execution_probability": <0..1>}. Confidence is how likely the quoted spread
is real rather than a pricing artifact; risk_score is the chance of losing
money executing it; execution_probability is the chance both legs confirm
before the spread closes.`

// Oracle implements domain.ConfidenceOracle over the chat completions API.
type Oracle struct {
	api     *openai.Client
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

// New creates an Oracle from configuration. Returns an error when no API key
// is set; callers treat a nil oracle as disabled.
func New(cfg config.AIConfig, logger *slog.Logger) (*Oracle, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("aioracle: API key is required")
	}

	clientCfg := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	timeout := cfg.Timeout.Duration
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Oracle{
		api:     openai.NewClientWithConfig(clientCfg),
		model:   model,
		timeout: timeout,
		logger:  logger.With(slog.String("component", "aioracle")),
	}, nil
}

// predictionJSON is the model's required response shape.
type predictionJSON struct {
	Confidence           float64 `json:"confidence"`
	RiskScore            float64 `json:"risk_score"`
	ExecutionProbability float64 `json:"execution_probability"`
}

// Predict asks the model to score the opportunity. The request carries only
// summary figures, never keys or balances.
func (o *Oracle) Predict(ctx context.Context, opp domain.Opportunity) (domain.Prediction, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	resp, err := o.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: describeOpportunity(opp)},
		},
		MaxTokens:   200,
		Temperature: 0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return domain.Prediction{}, fmt.Errorf("aioracle: predict %s: %w", opp.ID, err)
	}
	if len(resp.Choices) == 0 {
		return domain.Prediction{}, fmt.Errorf("aioracle: predict %s: empty response", opp.ID)
	}

	var decoded predictionJSON
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(content), &decoded); err != nil {
		return domain.Prediction{}, fmt.Errorf("aioracle: decode prediction for %s: %w", opp.ID, err)
	}

	pred := domain.Prediction{
		Confidence:           clamp01(decoded.Confidence),
		RiskScore:            clamp01(decoded.RiskScore),
		ExecutionProbability: clamp01(decoded.ExecutionProbability),
	}

	o.logger.Debug("scored opportunity",
		slog.String("opportunity_id", opp.ID),
		slog.Float64("confidence", pred.Confidence),
		slog.Float64("risk_score", pred.RiskScore),
	)
	return pred, nil
}

// describeOpportunity renders the summary the model sees. Amounts stay in
// base units as decimal strings.
func describeOpportunity(opp domain.Opportunity) string {
	var b strings.Builder
	fmt.Fprintf(&b, "pair: %s/%s\n", opp.AssetA.Symbol, opp.AssetB.Symbol)
	fmt.Fprintf(&b, "buy venue: %s (fee %d bps)\n", opp.BuyPool.Venue, opp.BuyPool.FeeBps)
	fmt.Fprintf(&b, "sell venue: %s (fee %d bps)\n", opp.SellPool.Venue, opp.SellPool.FeeBps)
	fmt.Fprintf(&b, "gross profit: %d bps on probe %s %s base units\n",
		opp.ProfitBps, opp.ProbeAmount, opp.AssetA.Symbol)
	fmt.Fprintf(&b, "gas estimate: %d units\n", opp.GasEstimate)
	fmt.Fprintf(&b, "buy pool reserves: %s / %s\n", opp.BuyPool.Reserve0, opp.BuyPool.Reserve1)
	fmt.Fprintf(&b, "sell pool reserves: %s / %s\n", opp.SellPool.Reserve0, opp.SellPool.Reserve1)
	fmt.Fprintf(&b, "detected at: %s\n", opp.DetectedAt.UTC().Format(time.RFC3339))
	return b.String()
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Compile-time interface check.
var _ domain.ConfidenceOracle = (*Oracle)(nil)
