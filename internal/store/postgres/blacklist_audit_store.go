package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jmcalloway/dexarb/internal/domain"
)

// BlacklistAuditStore implements domain.BlacklistAuditStore using PostgreSQL.
// Blacklists themselves live in memory for the process lifetime; this table
// is the append-only audit trail of every mutation.
type BlacklistAuditStore struct {
	pool *pgxpool.Pool
}

// NewBlacklistAuditStore creates a BlacklistAuditStore backed by the pool.
func NewBlacklistAuditStore(pool *pgxpool.Pool) *BlacklistAuditStore {
	return &BlacklistAuditStore{pool: pool}
}

// Record appends one blacklist mutation.
func (s *BlacklistAuditStore) Record(ctx context.Context, action domain.BlacklistAction) error {
	const query = `
		INSERT INTO blacklist_audit (kind, value, added, reason, ts)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := s.pool.Exec(ctx, query,
		action.Kind, action.Value, action.Added, action.Reason, action.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("postgres: record blacklist %s %s: %w", action.Kind, action.Value, err)
	}
	return nil
}

// List returns the most recent mutations, newest first.
func (s *BlacklistAuditStore) List(ctx context.Context, limit int) ([]domain.BlacklistAction, error) {
	query := `SELECT kind, value, added, reason, ts FROM blacklist_audit ORDER BY ts DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list blacklist audit: %w", err)
	}
	defer rows.Close()

	var actions []domain.BlacklistAction
	for rows.Next() {
		var a domain.BlacklistAction
		if err := rows.Scan(&a.Kind, &a.Value, &a.Added, &a.Reason, &a.Timestamp); err != nil {
			return nil, fmt.Errorf("postgres: scan blacklist audit: %w", err)
		}
		actions = append(actions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list blacklist audit: %w", err)
	}
	return actions, nil
}

// Compile-time interface check.
var _ domain.BlacklistAuditStore = (*BlacklistAuditStore)(nil)
