// Package uniswapv3 implements domain.VenueClient for concentrated-liquidity
// venues (Uniswap v3 and forks). Quotes go through the venue's QuoterV2
// contract via eth_call since tick-level math cannot be reproduced from a
// reserve snapshot; the pool's token balances serve as the liquidity proxy.
package uniswapv3

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
	factoryABIJSON = `[{"name":"getPool","type":"function","stateMutability":"view","inputs":[{"name":"tokenA","type":"address"},{"name":"tokenB","type":"address"},{"name":"fee","type":"uint24"}],"outputs":[{"name":"pool","type":"address"}]}]`
	erc20ABIJSON   = `[{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}]`
	quoterABIJSON  = `[{"name":"quoteExactInputSingle","type":"function","stateMutability":"nonpayable","inputs":[{"name":"params","type":"tuple","components":[{"name":"tokenIn","type":"address"},{"name":"tokenOut","type":"address"},{"name":"amountIn","type":"uint256"},{"name":"fee","type":"uint24"},{"name":"sqrtPriceLimitX96","type":"uint160"}]}],"outputs":[{"name":"amountOut","type":"uint256"},{"name":"sqrtPriceX96After","type":"uint160"},{"name":"initializedTicksCrossed","type":"uint32"},{"name":"gasEstimate","type":"uint256"}]}]`
	routerABIJSON  = `[{"name":"exactInputSingle","type":"function","stateMutability":"payable","inputs":[{"name":"params","type":"tuple","components":[{"name":"tokenIn","type":"address"},{"name":"tokenOut","type":"address"},{"name":"fee","type":"uint24"},{"name":"recipient","type":"address"},{"name":"deadline","type":"uint256"},{"name":"amountIn","type":"uint256"},{"name":"amountOutMinimum","type":"uint256"},{"name":"sqrtPriceLimitX96","type":"uint160"}]}],"outputs":[{"name":"amountOut","type":"uint256"}]}]`

	fallbackSwapGas = 180_000

	swapDeadline = 2 * time.Minute
)

var (
	factoryABI = mustABI(factoryABIJSON)
	erc20ABI   = mustABI(erc20ABIJSON)
	quoterABI  = mustABI(quoterABIJSON)
	routerABI  = mustABI(routerABIJSON)
)

func mustABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(err)
	}
	return parsed
}

// quoteParams mirrors IQuoterV2.QuoteExactInputSingleParams.
type quoteParams struct {
	TokenIn           common.Address
	TokenOut          common.Address
	AmountIn          *big.Int
	Fee               *big.Int
	SqrtPriceLimitX96 *big.Int
}

// swapParams mirrors ISwapRouter.ExactInputSingleParams.
type swapParams struct {
	TokenIn           common.Address
	TokenOut          common.Address
	Fee               *big.Int
	Recipient         common.Address
	Deadline          *big.Int
	AmountIn          *big.Int
	AmountOutMinimum  *big.Int
	SqrtPriceLimitX96 *big.Int
}

// Config holds the venue's deployment addresses and limits.
type Config struct {
	Name    string
	ChainID int64
	Factory common.Address
	Router  common.Address
	Quoter  common.Address
	// FeeTiers lists the fee tiers to probe, in hundredths of a basis point
	// (500, 3000, 10000).
	FeeTiers []int64
	Owner    common.Address
	// RPCRateLimit caps outbound RPC calls per second; zero disables the cap.
	RPCRateLimit int
}

// Client is a concentrated-liquidity venue adapter.
type Client struct {
	cfg     Config
	eth     *ethclient.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// New creates a Client for one v3-style deployment.
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

// GetPools probes every configured fee tier and returns one snapshot per
// deployed pool. ErrDataUnavailable when no tier has a pool.
func (c *Client) GetPools(ctx context.Context, a, b domain.Asset) ([]domain.LiquidityPool, error) {
	token0, token1 := a, b
	if bytes.Compare(b.Address.Bytes(), a.Address.Bytes()) < 0 {
		token0, token1 = b, a
	}

	var pools []domain.LiquidityPool
	for _, tier := range c.cfg.FeeTiers {
		poolAddr, err := c.getPool(ctx, a.Address, b.Address, tier)
		if err != nil {
			return nil, err
		}
		if poolAddr == (common.Address{}) {
			continue
		}

		bal0, err := c.balanceOf(ctx, token0.Address, poolAddr)
		if err != nil {
			return nil, err
		}
		bal1, err := c.balanceOf(ctx, token1.Address, poolAddr)
		if err != nil {
			return nil, err
		}

		pools = append(pools, domain.LiquidityPool{
			Venue:     c.cfg.Name,
			ChainID:   c.cfg.ChainID,
			Address:   poolAddr,
			Model:     domain.QuoteModelConcentrated,
			Token0:    token0,
			Token1:    token1,
			Reserve0:  bal0,
			Reserve1:  bal1,
			FeeBps:    tier / 100,
			FetchedAt: time.Now().UTC(),
		})
	}
	if len(pools) == 0 {
		return nil, fmt.Errorf("%s: no pool for %s/%s: %w", c.cfg.Name, a.Symbol, b.Symbol, domain.ErrDataUnavailable)
	}
	return pools, nil
}

// GetQuote asks the QuoterV2 contract for the exact-input output amount.
func (c *Client) GetQuote(ctx context.Context, assetIn, assetOut domain.Asset, amountIn *big.Int, pool domain.LiquidityPool) (*big.Int, error) {
	if !pool.HasAsset(assetIn) || !pool.HasAsset(assetOut) {
		return nil, fmt.Errorf("%s: pool %s does not trade %s/%s: %w",
			c.cfg.Name, pool.Address.Hex(), assetIn.Symbol, assetOut.Symbol, domain.ErrDataUnavailable)
	}

	data, err := quoterABI.Pack("quoteExactInputSingle", quoteParams{
		TokenIn:           assetIn.Address,
		TokenOut:          assetOut.Address,
		AmountIn:          amountIn,
		Fee:               big.NewInt(pool.FeeBps * 100),
		SqrtPriceLimitX96: new(big.Int),
	})
	if err != nil {
		return nil, fmt.Errorf("%s: pack quote: %w", c.cfg.Name, err)
	}

	out, err := c.call(ctx, c.cfg.Quoter, data)
	if err != nil {
		return nil, fmt.Errorf("%s: quote %s->%s: %w", c.cfg.Name, assetIn.Symbol, assetOut.Symbol, err)
	}
	vals, err := quoterABI.Unpack("quoteExactInputSingle", out)
	if err != nil {
		return nil, fmt.Errorf("%s: unpack quote: %w", c.cfg.Name, err)
	}
	return vals[0].(*big.Int), nil
}

// EstimateGas estimates one swap leg through the router, falling back to a
// conservative constant when the node rejects the estimate.
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

func (c *Client) swapCalldata(leg domain.TradeLeg, recipient common.Address) ([]byte, error) {
	data, err := routerABI.Pack("exactInputSingle", swapParams{
		TokenIn:           leg.AssetIn.Address,
		TokenOut:          leg.AssetOut.Address,
		Fee:               big.NewInt(leg.Pool.FeeBps * 100),
		Recipient:         recipient,
		Deadline:          big.NewInt(time.Now().Add(swapDeadline).Unix()),
		AmountIn:          leg.AmountIn,
		AmountOutMinimum:  leg.MinAmountOut,
		SqrtPriceLimitX96: new(big.Int),
	})
	if err != nil {
		return nil, fmt.Errorf("%s: pack swap: %w", c.cfg.Name, err)
	}
	return data, nil
}

func (c *Client) getPool(ctx context.Context, a, b common.Address, tier int64) (common.Address, error) {
	data, err := factoryABI.Pack("getPool", a, b, big.NewInt(tier))
	if err != nil {
		return common.Address{}, fmt.Errorf("%s: pack getPool: %w", c.cfg.Name, err)
	}
	out, err := c.call(ctx, c.cfg.Factory, data)
	if err != nil {
		return common.Address{}, fmt.Errorf("%s: getPool: %w", c.cfg.Name, err)
	}
	vals, err := factoryABI.Unpack("getPool", out)
	if err != nil {
		return common.Address{}, fmt.Errorf("%s: unpack getPool: %w", c.cfg.Name, err)
	}
	return vals[0].(common.Address), nil
}

func (c *Client) balanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	data, err := erc20ABI.Pack("balanceOf", owner)
	if err != nil {
		return nil, fmt.Errorf("%s: pack balanceOf: %w", c.cfg.Name, err)
	}
	out, err := c.call(ctx, token, data)
	if err != nil {
		return nil, fmt.Errorf("%s: balanceOf: %w", c.cfg.Name, err)
	}
	vals, err := erc20ABI.Unpack("balanceOf", out)
	if err != nil {
		return nil, fmt.Errorf("%s: unpack balanceOf: %w", c.cfg.Name, err)
	}
	return vals[0].(*big.Int), nil
}

func (c *Client) call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return c.eth.CallContract(ctx, ethereum.CallMsg{From: c.cfg.Owner, To: &to, Data: data}, nil)
}
