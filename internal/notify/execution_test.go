package notify

import (
	"context"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcalloway/dexarb/internal/domain"
)

type recordingSender struct {
	titles   []string
	messages []string
}

func (s *recordingSender) Send(_ context.Context, title, message string) error {
	s.titles = append(s.titles, title)
	s.messages = append(s.messages, message)
	return nil
}

func (s *recordingSender) Name() string { return "recording" }

func TestOnResultSettled(t *testing.T) {
	sender := &recordingSender{}
	reporter := NewExecutionReporter(NewNotifier([]Sender{sender}, nil, slog.Default()))

	reporter.OnResult(context.Background(), domain.ExecutionResult{
		ID:            "exec-1",
		OpportunityID: "opp-1",
		Success:       true,
		State:         domain.ExecStateSettled,
		TxHashes:      []string{"0xaa", "0xbb"},
		Profit:        big.NewInt(12345),
		GasUsed:       280_000,
		Duration:      1417 * time.Millisecond,
	})

	require.Len(t, sender.titles, 1)
	assert.Equal(t, "Arbitrage settled", sender.titles[0])
	assert.Contains(t, sender.messages[0], "profit: +12345 base units")
	assert.Contains(t, sender.messages[0], "confirmed: 0xaa, 0xbb")
	assert.Contains(t, sender.messages[0], "duration: 1.417s")
}

func TestOnResultRejectedFilteredOut(t *testing.T) {
	sender := &recordingSender{}
	// Only settled executions are allowed through.
	notifier := NewNotifier([]Sender{sender}, []string{EventExecutionSettled}, slog.Default())
	reporter := NewExecutionReporter(notifier)

	reporter.OnResult(context.Background(), domain.ExecutionResult{
		ID:    "exec-2",
		State: domain.ExecStateRejected,
		Error: "risk gate rejected opportunity: profit threshold",
	})

	assert.Empty(t, sender.titles)
}

func TestOnResultFailureCarriesError(t *testing.T) {
	sender := &recordingSender{}
	reporter := NewExecutionReporter(NewNotifier([]Sender{sender}, nil, slog.Default()))

	reporter.OnResult(context.Background(), domain.ExecutionResult{
		ID:       "exec-3",
		State:    domain.ExecStateFailed,
		TxHashes: []string{"0xaa"},
		Profit:   big.NewInt(-5000),
		Error:    "leg 2 reverted: 0xdead",
	})

	require.Len(t, sender.titles, 1)
	assert.Equal(t, "Execution failed", sender.titles[0])
	assert.Contains(t, sender.messages[0], "profit: -5000 (loss) base units")
	assert.Contains(t, sender.messages[0], "error: leg 2 reverted: 0xdead")
}

func TestNotifyEmergencyStop(t *testing.T) {
	sender := &recordingSender{}
	reporter := NewExecutionReporter(NewNotifier([]Sender{sender}, nil, slog.Default()))

	reporter.NotifyEmergencyStop(context.Background(), true, "manual halt")
	reporter.NotifyEmergencyStop(context.Background(), false, "")

	require.Len(t, sender.titles, 2)
	assert.Equal(t, "EMERGENCY STOP engaged", sender.titles[0])
	assert.Equal(t, "manual halt", sender.messages[0])
	assert.Equal(t, "Trading resumed", sender.titles[1])
	assert.Equal(t, "no reason given", sender.messages[1])
}
