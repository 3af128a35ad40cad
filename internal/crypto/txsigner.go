package crypto

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/jmcalloway/dexarb/internal/domain"
)

// TxSigner implements domain.Signer for EVM chains. It owns the private key
// and the nonce sequence: the nonce is fetched from the node once, then
// incremented locally under a mutex so concurrent callers cannot collide.
type TxSigner struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chainID    *big.Int
	eth        *ethclient.Client
	logger     *slog.Logger

	mu        sync.Mutex
	nonce     uint64
	nonceInit bool
}

// NewTxSigner creates a TxSigner from a hex-encoded secp256k1 private key.
func NewTxSigner(privateKeyHex string, chainID int64, eth *ethclient.Client, logger *slog.Logger) (*TxSigner, error) {
	keyHex, err := normalizeKeyHex(privateKeyHex)
	if err != nil {
		return nil, err
	}
	pk, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("crypto: parse private key: %w", err)
	}

	return &TxSigner{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
		chainID:    big.NewInt(chainID),
		eth:        eth,
		logger:     logger.With(slog.String("component", "signer")),
	}, nil
}

// Address implements domain.Signer.
func (s *TxSigner) Address() common.Address {
	return s.address
}

// SignAndSubmit implements domain.Signer. The whole assign-sign-broadcast
// sequence runs under one lock so the local nonce stays in step with what
// the node has seen. On a failed broadcast the nonce is not advanced.
func (s *TxSigner) SignAndSubmit(ctx context.Context, req domain.TxRequest) (common.Hash, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.nonceInit {
		nonce, err := s.eth.PendingNonceAt(ctx, s.address)
		if err != nil {
			return common.Hash{}, fmt.Errorf("crypto: fetch nonce: %w", err)
		}
		s.nonce = nonce
		s.nonceInit = true
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    s.nonce,
		To:       &req.To,
		Value:    req.Value,
		Gas:      req.Gas,
		GasPrice: req.GasPrice,
		Data:     req.Data,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(s.chainID), s.privateKey)
	if err != nil {
		return common.Hash{}, fmt.Errorf("crypto: %w: %v", domain.ErrSigningFailed, err)
	}

	if err := s.eth.SendTransaction(ctx, signed); err != nil {
		// Resync on the next call: the node may know a nonce we do not.
		s.nonceInit = false
		return common.Hash{}, fmt.Errorf("crypto: broadcast: %w", err)
	}
	s.nonce++

	s.logger.Debug("transaction submitted",
		slog.String("tx", signed.Hash().Hex()),
		slog.Uint64("nonce", signed.Nonce()),
		slog.String("to", req.To.Hex()),
	)
	return signed.Hash(), nil
}
