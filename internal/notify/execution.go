package notify

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/jmcalloway/dexarb/internal/domain"
)

// Event types emitted by the engine. NotifyConfig.Events filters on these.
const (
	EventExecutionSettled = "execution.settled"
	EventExecutionFailed  = "execution.failed"
	EventRiskRejected     = "risk.rejected"
	EventEmergencyStop    = "emergency.stop"
)

// ExecutionReporter adapts the Notifier to the orchestrator's result hook.
type ExecutionReporter struct {
	notifier *Notifier
}

// NewExecutionReporter creates an ExecutionReporter over the Notifier.
func NewExecutionReporter(notifier *Notifier) *ExecutionReporter {
	return &ExecutionReporter{notifier: notifier}
}

// OnResult formats and dispatches one execution result. Delivery errors are
// logged by the Notifier; the trading loop never blocks on them.
func (r *ExecutionReporter) OnResult(ctx context.Context, res domain.ExecutionResult) {
	event, title := classify(res)
	_ = r.notifier.Notify(ctx, event, title, formatResult(res))
}

// NotifyEmergencyStop announces an operator-initiated halt or resume.
func (r *ExecutionReporter) NotifyEmergencyStop(ctx context.Context, stopped bool, reason string) {
	title := "Trading resumed"
	if stopped {
		title = "EMERGENCY STOP engaged"
	}
	msg := reason
	if msg == "" {
		msg = "no reason given"
	}
	_ = r.notifier.Notify(ctx, EventEmergencyStop, title, msg)
}

func classify(res domain.ExecutionResult) (event, title string) {
	switch {
	case res.Success:
		return EventExecutionSettled, "Arbitrage settled"
	case res.State == domain.ExecStateRejected:
		return EventRiskRejected, "Opportunity rejected"
	default:
		return EventExecutionFailed, "Execution failed"
	}
}

// formatResult renders a compact plain-text summary shared by all channels.
func formatResult(res domain.ExecutionResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "execution: %s\n", res.ID)
	fmt.Fprintf(&b, "opportunity: %s\n", res.OpportunityID)
	fmt.Fprintf(&b, "state: %s\n", res.State)
	if res.Profit != nil && res.Profit.Sign() != 0 {
		fmt.Fprintf(&b, "profit: %s base units\n", profitText(res.Profit))
	}
	if res.GasUsed > 0 {
		fmt.Fprintf(&b, "gas used: %d\n", res.GasUsed)
	}
	if len(res.TxHashes) > 0 {
		fmt.Fprintf(&b, "confirmed: %s\n", strings.Join(res.TxHashes, ", "))
	}
	if res.Error != "" {
		fmt.Fprintf(&b, "error: %s\n", res.Error)
	}
	fmt.Fprintf(&b, "duration: %s", res.Duration.Round(time.Millisecond))
	return b.String()
}

func profitText(profit *big.Int) string {
	if profit.Sign() < 0 {
		return profit.String() + " (loss)"
	}
	return "+" + profit.String()
}
