// Package uniswapv2 implements domain.VenueClient for constant-product
// (x*y=k) venues: Uniswap v2 and its forks (SushiSwap, QuickSwap, ...).
// Pool reserves are read on-chain; quotes are computed locally from the
// snapshot with the pair contract's integer math.
package uniswapv2

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"golang.org/x/time/rate"

	"github.com/jmcalloway/dexarb/internal/domain"
)

const (
	factoryABIJSON = `[{"name":"getPair","type":"function","stateMutability":"view","inputs":[{"name":"tokenA","type":"address"},{"name":"tokenB","type":"address"}],"outputs":[{"name":"pair","type":"address"}]}]`
	pairABIJSON    = `[{"name":"getReserves","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"reserve0","type":"uint112"},{"name":"reserve1","type":"uint112"},{"name":"blockTimestampLast","type":"uint32"}]}]`
	routerABIJSON  = `[{"name":"swapExactTokensForTokens","type":"function","stateMutability":"nonpayable","inputs":[{"name":"amountIn","type":"uint256"},{"name":"amountOutMin","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"outputs":[{"name":"amounts","type":"uint256[]"}]}]`

	// fallbackSwapGas is used when eth_estimateGas reverts (typically a
	// missing allowance during scanning, before any approval exists).
	fallbackSwapGas = 150_000

	// swapDeadline is how far in the future each swap's on-chain deadline is set.
	swapDeadline = 2 * time.Minute
)

var (
	factoryABI = mustABI(factoryABIJSON)
	pairABI    = mustABI(pairABIJSON)
	routerABI  = mustABI(routerABIJSON)
)

func mustABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(err)
	}
	return parsed
}

// Config holds the venue's deployment addresses and limits.
type Config struct {
	Name    string
	ChainID int64
	Factory common.Address
	Router  common.Address
	FeeBps  int64
	// Owner is the trading wallet, used as the from-address for gas
	// estimation so allowance-dependent estimates are realistic.
	Owner common.Address
	// RPCRateLimit caps outbound RPC calls per second; zero disables the cap.
	RPCRateLimit int
}

// Client is a constant-product venue adapter.
type Client struct {
	cfg     Config
	eth     *ethclient.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// New creates a Client for one v2-style deployment.
func New(cfg Config, eth *ethclient.Client, logger *slog.Logger) *Client {
	limit := rate.Inf
	if cfg.RPCRateLimit > 0 {
		limit = rate.Limit(cfg.RPCRateLimit)
	}
	return &Client{
		cfg:     cfg,
		eth:     eth,
		limiter: rate.NewLimiter(limit, max(cfg.RPCRateLimit, 1)),
		logger:  logger.With(slog.String("component", "venue"), slog.String("venue", cfg.Name)),
	}
}

// Name implements domain.VenueClient.
func (c *Client) Name() string { return c.cfg.Name }

// ChainID implements domain.VenueClient.
func (c *Client) ChainID() int64 { return c.cfg.ChainID }

// Router implements domain.VenueClient.
func (c *Client) Router() common.Address { return c.cfg.Router }

// GetPools returns the single v2 pair for the asset pair, or
// ErrDataUnavailable when the factory has none.
func (c *Client) GetPools(ctx context.Context, a, b domain.Asset) ([]domain.LiquidityPool, error) {
	pairAddr, err := c.getPair(ctx, a.Address, b.Address)
	if err != nil {
		return nil, err
	}
	if pairAddr == (common.Address{}) {
		return nil, fmt.Errorf("%s: no pair for %s/%s: %w", c.cfg.Name, a.Symbol, b.Symbol, domain.ErrDataUnavailable)
	}

	reserve0, reserve1, err := c.getReserves(ctx, pairAddr)
	if err != nil {
		return nil, err
	}

	// The pair contract orders token0 < token1 by address; mirror that
	// locally instead of spending another RPC on token0().
	token0, token1 := a, b
	if bytes.Compare(b.Address.Bytes(), a.Address.Bytes()) < 0 {
		token0, token1 = b, a
	}

	pool := domain.LiquidityPool{
		Venue:     c.cfg.Name,
		ChainID:   c.cfg.ChainID,
		Address:   pairAddr,
		Model:     domain.QuoteModelConstantProduct,
		Token0:    token0,
		Token1:    token1,
		Reserve0:  reserve0,
		Reserve1:  reserve1,
		FeeBps:    c.cfg.FeeBps,
		FetchedAt: time.Now().UTC(),
	}
	return []domain.LiquidityPool{pool}, nil
}

// GetQuote computes the output amount from the pool snapshot using the pair
// contract's constant-product math.
func (c *Client) GetQuote(ctx context.Context, assetIn, assetOut domain.Asset, amountIn *big.Int, pool domain.LiquidityPool) (*big.Int, error) {
	reserveIn := pool.ReserveOf(assetIn)
	reserveOut := pool.ReserveOf(assetOut)
	if reserveIn == nil || reserveOut == nil {
		return nil, fmt.Errorf("%s: pool %s does not trade %s/%s: %w",
			c.cfg.Name, pool.Address.Hex(), assetIn.Symbol, assetOut.Symbol, domain.ErrDataUnavailable)
	}
	if reserveIn.Sign() == 0 || reserveOut.Sign() == 0 {
		return nil, fmt.Errorf("%s: pool %s has empty reserves: %w",
			c.cfg.Name, pool.Address.Hex(), domain.ErrDataUnavailable)
	}
	return GetAmountOut(amountIn, reserveIn, reserveOut, pool.FeeBps), nil
}

// EstimateGas estimates one swap leg through the router. When the node
// rejects the estimate (usually because no allowance exists yet) a
// conservative constant is returned instead of an error so scanning can
// still price the opportunity.
func (c *Client) EstimateGas(ctx context.Context, leg domain.TradeLeg) (uint64, error) {
	data, err := c.swapCalldata(leg, c.cfg.Owner)
	if err != nil {
		return 0, err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	gas, err := c.eth.EstimateGas(ctx, ethereum.CallMsg{
		From: c.cfg.Owner,
		To:   &c.cfg.Router,
		Data: data,
	})
	if err != nil {
		c.logger.Debug("gas estimate failed, using fallback",
			slog.String("pair", leg.AssetIn.Symbol+"/"+leg.AssetOut.Symbol),
			slog.String("error", err.Error()),
		)
		return fallbackSwapGas, nil
	}
	return gas, nil
}

// ExecuteTrade submits one swap leg through the router via the signer.
func (c *Client) ExecuteTrade(ctx context.Context, leg domain.TradeLeg, signer domain.Signer) (string, error) {
	data, err := c.swapCalldata(leg, signer.Address())
	if err != nil {
		return "", err
	}

	gas, err := c.EstimateGas(ctx, leg)
	if err != nil {
		return "", err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}
	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("%s: suggest gas price: %w", c.cfg.Name, err)
	}

	hash, err := signer.SignAndSubmit(ctx, domain.TxRequest{
		To:       c.cfg.Router,
		Value:    new(big.Int),
		Data:     data,
		Gas:      gas,
		GasPrice: gasPrice,
	})
	if err != nil {
		return "", fmt.Errorf("%s: submit swap: %w", c.cfg.Name, err)
	}
	return hash.Hex(), nil
}

// swapCalldata packs swapExactTokensForTokens for the leg.
func (c *Client) swapCalldata(leg domain.TradeLeg, recipient common.Address) ([]byte, error) {
	deadline := big.NewInt(time.Now().Add(swapDeadline).Unix())
	path := []common.Address{leg.AssetIn.Address, leg.AssetOut.Address}
	data, err := routerABI.Pack("swapExactTokensForTokens",
		leg.AmountIn, leg.MinAmountOut, path, recipient, deadline)
	if err != nil {
		return nil, fmt.Errorf("%s: pack swap: %w", c.cfg.Name, err)
	}
	return data, nil
}

func (c *Client) getPair(ctx context.Context, a, b common.Address) (common.Address, error) {
	data, err := factoryABI.Pack("getPair", a, b)
	if err != nil {
		return common.Address{}, fmt.Errorf("%s: pack getPair: %w", c.cfg.Name, err)
	}
	out, err := c.call(ctx, c.cfg.Factory, data)
	if err != nil {
		return common.Address{}, fmt.Errorf("%s: getPair: %w", c.cfg.Name, err)
	}
	vals, err := factoryABI.Unpack("getPair", out)
	if err != nil {
		return common.Address{}, fmt.Errorf("%s: unpack getPair: %w", c.cfg.Name, err)
	}
	return vals[0].(common.Address), nil
}

func (c *Client) getReserves(ctx context.Context, pair common.Address) (*big.Int, *big.Int, error) {
	data, err := pairABI.Pack("getReserves")
	if err != nil {
		return nil, nil, fmt.Errorf("%s: pack getReserves: %w", c.cfg.Name, err)
	}
	out, err := c.call(ctx, pair, data)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: getReserves: %w", c.cfg.Name, err)
	}
	vals, err := pairABI.Unpack("getReserves", out)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: unpack getReserves: %w", c.cfg.Name, err)
	}
	return vals[0].(*big.Int), vals[1].(*big.Int), nil
}

func (c *Client) call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return c.eth.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
}
