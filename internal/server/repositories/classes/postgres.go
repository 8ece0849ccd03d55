package classes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/classhub/internal/common"
	"github.com/dmitrijs2005/classhub/internal/dbx"
	"github.com/dmitrijs2005/classhub/internal/server/models"
)

// PostgresRepository implements the quota ledger over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Get returns the quota counters of one class.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.Class, error) {
	query := `SELECT id, quota_bytes, used_bytes FROM classes WHERE id = $1`

	result := &models.Class{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(&result.ID, &result.QuotaBytes, &result.UsedBytes)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select class: %w", err)
	}
	return result, nil
}

// Reserve performs the quota check and the hold in a single conditional
// UPDATE, so two concurrent reservations against the same class can never
// both pass the check and jointly overshoot the quota.
func (r *PostgresRepository) Reserve(ctx context.Context, id string, bytes int64) error {
	query := `
		UPDATE classes
		SET used_bytes = used_bytes + $2
		WHERE id = $1 AND used_bytes + $2 <= quota_bytes
	`
	res, err := r.db.ExecContext(ctx, query, id, bytes)
	if err != nil {
		return fmt.Errorf("failed to reserve quota: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 1 {
		return nil
	}

	// No row updated: either the class is unknown or it has no room.
	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("%w: class %s cannot fit %d more bytes", common.ErrQuotaExceeded, id, bytes)
}

// AdjustUsed adds delta to used_bytes. Callers pass the post-sanitization
// correction on commit or the negated reservation on rollback.
func (r *PostgresRepository) AdjustUsed(ctx context.Context, id string, delta int64) error {
	query := `UPDATE classes SET used_bytes = used_bytes + $2 WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, id, delta)
	if err != nil {
		return fmt.Errorf("failed to adjust used bytes: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}
