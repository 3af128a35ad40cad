package aioracle

import (
	"context"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcalloway/dexarb/internal/config"
	"github.com/jmcalloway/dexarb/internal/domain"
)

func newChatServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": ` + content + `}}]
		}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestOracle(t *testing.T, baseURL string) *Oracle {
	t.Helper()
	cfg := config.AIConfig{
		Enabled: true,
		APIKey:  "test-key",
		BaseURL: baseURL + "/v1",
		Model:   "gpt-4o-mini",
	}
	cfg.Timeout.Duration = 5 * time.Second
	o := mustOracle(t, cfg)
	return o
}

func mustOracle(t *testing.T, cfg config.AIConfig) *Oracle {
	t.Helper()
	o, err := New(cfg, slog.Default())
	require.NoError(t, err)
	return o
}

func sampleOpportunity() domain.Opportunity {
	return domain.Opportunity{
		ID:          "opp-1",
		AssetA:      domain.Asset{Symbol: "WETH", Decimals: 18},
		AssetB:      domain.Asset{Symbol: "LINK", Decimals: 18},
		BuyPool:     domain.LiquidityPool{Venue: "alpha", FeeBps: 30, Reserve0: big.NewInt(1), Reserve1: big.NewInt(2)},
		SellPool:    domain.LiquidityPool{Venue: "beta", FeeBps: 30, Reserve0: big.NewInt(3), Reserve1: big.NewInt(4)},
		ProbeAmount: big.NewInt(1e9),
		ProfitBps:   120,
		DetectedAt:  time.Now().UTC(),
	}
}

func TestPredictDecodesScores(t *testing.T) {
	srv := newChatServer(t, `"{\"confidence\": 0.82, \"risk_score\": 0.2, \"execution_probability\": 0.7}"`)
	o := newTestOracle(t, srv.URL)

	pred, err := o.Predict(context.Background(), sampleOpportunity())
	require.NoError(t, err)

	assert.Equal(t, 0.82, pred.Confidence)
	assert.Equal(t, 0.2, pred.RiskScore)
	assert.Equal(t, 0.7, pred.ExecutionProbability)
}

func TestPredictClampsOutOfRangeScores(t *testing.T) {
	srv := newChatServer(t, `"{\"confidence\": 1.4, \"risk_score\": -0.3, \"execution_probability\": 0.5}"`)
	o := newTestOracle(t, srv.URL)

	pred, err := o.Predict(context.Background(), sampleOpportunity())
	require.NoError(t, err)

	assert.Equal(t, 1.0, pred.Confidence)
	assert.Equal(t, 0.0, pred.RiskScore)
}

func TestPredictRejectsMalformedResponse(t *testing.T) {
	srv := newChatServer(t, `"not json"`)
	o := newTestOracle(t, srv.URL)

	_, err := o.Predict(context.Background(), sampleOpportunity())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode prediction")
}

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New(config.AIConfig{}, slog.Default())
	require.Error(t, err)
}
