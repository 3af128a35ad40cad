package domain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// TxRequest is an unsigned transaction intent. The nonce is deliberately
// absent: sequencing is the signer's responsibility and nothing outside the
// signer may influence it.
type TxRequest struct {
	To       common.Address
	Value    *big.Int
	Data     []byte
	Gas      uint64
	GasPrice *big.Int
}

// Signer is the custody boundary. Implementations hold key material, assign
// nonces, sign, and broadcast; nothing outside this interface ever sees a
// private key.
type Signer interface {
	// Address returns the wallet address the signer controls.
	Address() common.Address
	// SignAndSubmit assigns the next nonce, signs the request and broadcasts
	// it, returning the transaction hash.
	SignAndSubmit(ctx context.Context, req TxRequest) (common.Hash, error)
}
