package uploads

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/classhub/internal/common"
	"github.com/dmitrijs2005/classhub/internal/dbx"
	"github.com/dmitrijs2005/classhub/internal/server/models"
)

// PostgresRepository implements upload persistence over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, upload *models.Upload) error {
	query := `
		INSERT INTO uploads (id, class_id, status, reserved_bytes)
		VALUES ($1, $2, $3, $4)
	`
	_, err := r.db.ExecContext(ctx, query, upload.ID, upload.ClassID, upload.Status, upload.ReservedBytes)
	if err != nil {
		return fmt.Errorf("failed to insert upload: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Upload, error) {
	query := `
		SELECT id, class_id, status, reserved_bytes, COALESCE(error_reason, ''), created_at, updated_at
		FROM uploads WHERE id = $1
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) GetForUpdate(ctx context.Context, id string) (*models.Upload, error) {
	query := `
		SELECT id, class_id, status, reserved_bytes, COALESCE(error_reason, ''), created_at, updated_at
		FROM uploads WHERE id = $1 FOR UPDATE
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) scanOne(row *sql.Row) (*models.Upload, error) {
	result := &models.Upload{}
	err := row.Scan(&result.ID, &result.ClassID, &result.Status, &result.ReservedBytes,
		&result.ErrorReason, &result.CreatedAt, &result.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select upload: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) MarkProcessing(ctx context.Context, id string) (bool, error) {
	query := `
		UPDATE uploads SET status = 'processing', updated_at = now()
		WHERE id = $1 AND status IN ('queued', 'processing')
	`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("failed to mark upload processing: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	return n == 1, nil
}

func (r *PostgresRepository) FinishCompleted(ctx context.Context, id string) error {
	query := `
		UPDATE uploads SET status = 'completed', reserved_bytes = 0, updated_at = now()
		WHERE id = $1 AND status = 'processing'
	`
	return r.execGuarded(ctx, query, id)
}

func (r *PostgresRepository) FinishFailed(ctx context.Context, id string, reason string) error {
	query := `
		UPDATE uploads SET status = 'failed', error_reason = $2, reserved_bytes = 0, updated_at = now()
		WHERE id = $1 AND status IN ('queued', 'processing')
	`
	return r.execGuarded(ctx, query, id, reason)
}

func (r *PostgresRepository) execGuarded(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update upload: %w", err)
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

func (r *PostgresRepository) SelectStuck(ctx context.Context, cutoff time.Time) ([]*models.Upload, error) {
	query := `
		SELECT id, class_id, status, reserved_bytes, COALESCE(error_reason, ''), created_at, updated_at
		FROM uploads WHERE status = 'processing' AND updated_at < $1
		ORDER BY updated_at
	`
	rows, err := r.db.QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to select stuck uploads: %w", err)
	}
	defer rows.Close()

	var result []*models.Upload
	for rows.Next() {
		u := &models.Upload{}
		err := rows.Scan(&u.ID, &u.ClassID, &u.Status, &u.ReservedBytes,
			&u.ErrorReason, &u.CreatedAt, &u.UpdatedAt)
		if err != nil {
			return nil, err
		}
		result = append(result, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
