package domain

import (
	"context"
	"time"
)

// OpportunityStore persists detected opportunities for later analysis.
type OpportunityStore interface {
	Create(ctx context.Context, opp Opportunity) error
	GetByID(ctx context.Context, id string) (Opportunity, error)
	ListRecent(ctx context.Context, limit int) ([]Opportunity, error)
}

// ExecutionStore persists execution results and their submitted legs.
type ExecutionStore interface {
	Create(ctx context.Context, res ExecutionResult) error
	GetByID(ctx context.Context, id string) (ExecutionResult, error)
	ListRecent(ctx context.Context, limit int) ([]ExecutionResult, error)
	// ListBetween returns executions started within [from, to), oldest first.
	// Used by the archiver to build day batches.
	ListBetween(ctx context.Context, from, to time.Time) ([]ExecutionResult, error)
}

// BlacklistAction is an audited blacklist mutation.
type BlacklistAction struct {
	Kind      string // "asset" or "venue"
	Value     string
	Added     bool // false for removal
	Reason    string
	Timestamp time.Time
}

// BlacklistAuditStore records every blacklist mutation so operators can
// reconstruct why an asset or venue was excluded.
type BlacklistAuditStore interface {
	Record(ctx context.Context, action BlacklistAction) error
	List(ctx context.Context, limit int) ([]BlacklistAction, error)
}
