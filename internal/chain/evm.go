// Package chain implements domain.ChainClient against an EVM JSON-RPC
// endpoint using go-ethereum's ethclient.
package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/jmcalloway/dexarb/internal/domain"
)

const erc20ABIJSON = `[
	{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"allowance","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"approve","type":"function","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

var erc20ABI = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		panic(err)
	}
	return parsed
}()

// approveGas covers a standard ERC-20 approval.
const approveGas = 60_000

// Config holds the client's RPC behaviour.
type Config struct {
	// CallTimeout bounds every single read RPC.
	CallTimeout time.Duration
	// ReceiptPollInterval is the cadence of receipt polling.
	ReceiptPollInterval time.Duration
}

// Client implements domain.ChainClient.
type Client struct {
	eth    *ethclient.Client
	cfg    Config
	logger *slog.Logger
}

// Dial connects to the RPC endpoint and verifies the advertised chain id.
func Dial(ctx context.Context, rpcURL string, wantChainID int64, cfg Config, logger *slog.Logger) (*Client, *ethclient.Client, error) {
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, nil, fmt.Errorf("chain: dial %s: %w", rpcURL, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, cfg.CallTimeout)
	defer cancel()
	chainID, err := eth.ChainID(callCtx)
	if err != nil {
		eth.Close()
		return nil, nil, fmt.Errorf("chain: chain id: %w", err)
	}
	if chainID.Int64() != wantChainID {
		eth.Close()
		return nil, nil, fmt.Errorf("chain: endpoint is chain %d, config expects %d", chainID.Int64(), wantChainID)
	}

	c := &Client{
		eth:    eth,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "chain")),
	}
	return c, eth, nil
}

// BalanceOf implements domain.ChainClient.
func (c *Client) BalanceOf(ctx context.Context, asset domain.Asset, owner common.Address) (*big.Int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()

	if asset.IsNative() {
		bal, err := c.eth.BalanceAt(ctx, owner, nil)
		if err != nil {
			return nil, fmt.Errorf("chain: native balance: %w", err)
		}
		return bal, nil
	}

	data, err := erc20ABI.Pack("balanceOf", owner)
	if err != nil {
		return nil, fmt.Errorf("chain: pack balanceOf: %w", err)
	}
	out, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &asset.Address, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("chain: balanceOf %s: %w", asset.Symbol, err)
	}
	vals, err := erc20ABI.Unpack("balanceOf", out)
	if err != nil {
		return nil, fmt.Errorf("chain: unpack balanceOf: %w", err)
	}
	return vals[0].(*big.Int), nil
}

// Allowance implements domain.ChainClient.
func (c *Client) Allowance(ctx context.Context, asset domain.Asset, owner, spender common.Address) (*big.Int, error) {
	if asset.IsNative() {
		// Native transfers need no allowance; report unlimited.
		return new(big.Int).Lsh(big.NewInt(1), 255), nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()

	data, err := erc20ABI.Pack("allowance", owner, spender)
	if err != nil {
		return nil, fmt.Errorf("chain: pack allowance: %w", err)
	}
	out, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &asset.Address, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("chain: allowance %s: %w", asset.Symbol, err)
	}
	vals, err := erc20ABI.Unpack("allowance", out)
	if err != nil {
		return nil, fmt.Errorf("chain: unpack allowance: %w", err)
	}
	return vals[0].(*big.Int), nil
}

// Approve implements domain.ChainClient.
func (c *Client) Approve(ctx context.Context, asset domain.Asset, spender common.Address, amount *big.Int, signer domain.Signer) (string, error) {
	if asset.IsNative() {
		return "", fmt.Errorf("chain: native asset needs no approval")
	}

	data, err := erc20ABI.Pack("approve", spender, amount)
	if err != nil {
		return "", fmt.Errorf("chain: pack approve: %w", err)
	}

	gasPrice, err := c.GasPrice(ctx)
	if err != nil {
		return "", err
	}

	hash, err := signer.SignAndSubmit(ctx, domain.TxRequest{
		To:       asset.Address,
		Value:    new(big.Int),
		Data:     data,
		Gas:      approveGas,
		GasPrice: gasPrice,
	})
	if err != nil {
		return "", fmt.Errorf("chain: submit approve %s: %w", asset.Symbol, err)
	}

	c.logger.Info("approval submitted",
		slog.String("asset", asset.Symbol),
		slog.String("spender", spender.Hex()),
		slog.String("tx", hash.Hex()),
	)
	return hash.Hex(), nil
}

// WaitForReceipt polls until the transaction reaches a terminal status or
// ctx expires. The caller bounds the wait with its own deadline.
func (c *Client) WaitForReceipt(ctx context.Context, txHash string) (domain.TxStatus, uint64, error) {
	hash := common.HexToHash(txHash)
	ticker := time.NewTicker(c.cfg.ReceiptPollInterval)
	defer ticker.Stop()

	for {
		callCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
		receipt, err := c.eth.TransactionReceipt(callCtx, hash)
		cancel()

		switch {
		case err == nil:
			if receipt.Status == types.ReceiptStatusSuccessful {
				return domain.TxStatusSuccess, receipt.GasUsed, nil
			}
			return domain.TxStatusReverted, receipt.GasUsed, nil
		case errors.Is(err, ethereum.NotFound):
			// Still pending.
		default:
			c.logger.Warn("receipt poll failed",
				slog.String("tx", txHash),
				slog.String("error", err.Error()),
			)
		}

		select {
		case <-ctx.Done():
			return "", 0, fmt.Errorf("chain: wait for %s: %w", txHash, ctx.Err())
		case <-ticker.C:
		}
	}
}

// GasPrice implements domain.ChainClient.
func (c *Client) GasPrice(ctx context.Context) (*big.Int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()
	price, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain: gas price: %w", err)
	}
	return price, nil
}
