package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jmcalloway/dexarb/internal/domain"
)

// ExecutionStore implements domain.ExecutionStore using PostgreSQL.
type ExecutionStore struct {
	pool *pgxpool.Pool
}

// NewExecutionStore creates an ExecutionStore backed by the given pool.
func NewExecutionStore(pool *pgxpool.Pool) *ExecutionStore {
	return &ExecutionStore{pool: pool}
}

const executionCols = `id, opportunity_id, success, state, tx_hashes,
	profit, gas_used, duration_ms, error, started_at`

// Create stores one execution result.
func (s *ExecutionStore) Create(ctx context.Context, res domain.ExecutionResult) error {
	const query = `
		INSERT INTO executions (
			id, opportunity_id, success, state, tx_hashes,
			profit, gas_used, duration_ms, error, started_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	hashes := res.TxHashes
	if hashes == nil {
		hashes = []string{}
	}

	_, err := s.pool.Exec(ctx, query,
		res.ID, res.OpportunityID, res.Success, string(res.State), hashes,
		textAmount(res.Profit), int64(res.GasUsed), res.Duration.Milliseconds(),
		res.Error, res.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert execution %s: %w", res.ID, err)
	}
	return nil
}

// GetByID returns one execution result, or domain.ErrNotFound.
func (s *ExecutionStore) GetByID(ctx context.Context, id string) (domain.ExecutionResult, error) {
	query := `SELECT ` + executionCols + ` FROM executions WHERE id = $1`

	res, err := scanExecution(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ExecutionResult{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.ExecutionResult{}, fmt.Errorf("postgres: get execution %s: %w", id, err)
	}
	return res, nil
}

// ListRecent returns the most recent executions, newest first.
func (s *ExecutionStore) ListRecent(ctx context.Context, limit int) ([]domain.ExecutionResult, error) {
	query := `SELECT ` + executionCols + ` FROM executions ORDER BY started_at DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}
	return s.list(ctx, query, args...)
}

// ListBetween returns executions started within [from, to), oldest first.
func (s *ExecutionStore) ListBetween(ctx context.Context, from, to time.Time) ([]domain.ExecutionResult, error) {
	query := `SELECT ` + executionCols + ` FROM executions
		WHERE started_at >= $1 AND started_at < $2
		ORDER BY started_at ASC`
	return s.list(ctx, query, from, to)
}

func (s *ExecutionStore) list(ctx context.Context, query string, args ...any) ([]domain.ExecutionResult, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list executions: %w", err)
	}
	defer rows.Close()

	var out []domain.ExecutionResult
	for rows.Next() {
		res, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan execution: %w", err)
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list executions: %w", err)
	}
	return out, nil
}

func scanExecution(row pgx.Row) (domain.ExecutionResult, error) {
	var (
		res        domain.ExecutionResult
		state      string
		profit     string
		gasUsed    int64
		durationMs int64
	)
	err := row.Scan(
		&res.ID, &res.OpportunityID, &res.Success, &state, &res.TxHashes,
		&profit, &gasUsed, &durationMs, &res.Error, &res.StartedAt,
	)
	if err != nil {
		return domain.ExecutionResult{}, err
	}
	res.State = domain.ExecState(state)
	res.Profit = parseAmount(profit)
	res.GasUsed = uint64(gasUsed)
	res.Duration = time.Duration(durationMs) * time.Millisecond
	return res, nil
}

// Compile-time interface check.
var _ domain.ExecutionStore = (*ExecutionStore)(nil)
