package domain

import "errors"

var (
	// ErrDataUnavailable marks a missing pool or quote; the scanner skips the
	// combination and moves on.
	ErrDataUnavailable = errors.New("market data unavailable")
	// ErrStaleOpportunity marks an opportunity whose age or profit degradation
	// exceeded its bound during revalidation.
	ErrStaleOpportunity = errors.New("opportunity stale")
	// ErrInsufficientFunds is returned before any submission when the wallet
	// cannot cover the first leg's input.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrGasProfitNegative is returned when buffered gas cost consumes the
	// entire nominal profit.
	ErrGasProfitNegative = errors.New("gas cost exceeds profit")
	// ErrRiskRejected is returned when the risk gate vetoes execution.
	ErrRiskRejected = errors.New("rejected by risk gate")
	// ErrTradingDisabled short-circuits the pipeline when the global trading
	// flag is off or the emergency stop has been pulled.
	ErrTradingDisabled = errors.New("trading disabled")
	// ErrExecutionInFlight is returned when an execution is refused because
	// another one is already in progress. Requests are never queued.
	ErrExecutionInFlight = errors.New("execution already in flight")
	// ErrLegExecutionFailed marks a leg whose transaction did not reach a
	// successful terminal status; remaining legs are aborted.
	ErrLegExecutionFailed = errors.New("leg execution failed")

	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrRateLimited   = errors.New("rate limited")
	ErrSigningFailed = errors.New("signing failed")
)
