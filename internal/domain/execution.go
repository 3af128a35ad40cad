package domain

import (
	"math/big"
	"time"
)

// ExecState is the orchestrator's per-opportunity state machine:
// detected → validated → {rejected | approved} → executing → {settled | failed}.
type ExecState string

const (
	ExecStateDetected  ExecState = "detected"
	ExecStateValidated ExecState = "validated"
	ExecStateRejected  ExecState = "rejected"
	ExecStateApproved  ExecState = "approved"
	ExecStateExecuting ExecState = "executing"
	ExecStateSettled   ExecState = "settled"
	ExecStateFailed    ExecState = "failed"
)

// TxStatus is the terminal confirmation status of a submitted transaction.
type TxStatus string

const (
	TxStatusSuccess  TxStatus = "success"
	TxStatusReverted TxStatus = "reverted"
)

// ExecutionResult is always produced, even on early abort: an abort before
// any submission carries an empty transaction list and zero profit.
type ExecutionResult struct {
	ID            string
	OpportunityID string
	Success       bool
	State         ExecState
	// TxHashes lists successfully confirmed transactions in leg order. On
	// failure it is a strict prefix of the leg sequence; the failing leg's
	// hash is carried in Error instead.
	TxHashes []string
	// Profit is the realized origin-asset balance delta, negative on loss.
	Profit    *big.Int
	GasUsed   uint64
	Duration  time.Duration
	Error     string
	StartedAt time.Time
}
