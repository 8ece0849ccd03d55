package files

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/classhub/internal/dbx"
	"github.com/dmitrijs2005/classhub/internal/server/models"
)

// PostgresRepository implements file metadata persistence over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Insert(ctx context.Context, file *models.FileMetadata) error {
	query := `
		INSERT INTO upload_files (upload_id, stored_file_name, original_name, mime_type, size)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	err := r.db.QueryRowContext(ctx, query,
		file.UploadID, file.StoredFileName, file.OriginalName, file.MimeType, file.Size).Scan(&file.ID)
	if err != nil {
		return fmt.Errorf("failed to insert file metadata: %w", err)
	}
	return nil
}

func (r *PostgresRepository) SelectByUploadID(ctx context.Context, uploadID string) ([]*models.FileMetadata, error) {
	query := `
		SELECT id, upload_id, stored_file_name, original_name, mime_type, size, created_at
		FROM upload_files WHERE upload_id = $1
		ORDER BY id
	`
	rows, err := r.db.QueryContext(ctx, query, uploadID)
	if err != nil {
		return nil, fmt.Errorf("failed to select files: %w", err)
	}
	return scanAll(rows)
}

func (r *PostgresRepository) SelectByClassID(ctx context.Context, classID string) ([]*models.FileMetadata, error) {
	query := `
		SELECT f.id, f.upload_id, f.stored_file_name, f.original_name, f.mime_type, f.size, f.created_at
		FROM upload_files f
		JOIN uploads u ON u.id = f.upload_id
		WHERE u.class_id = $1 AND u.status = 'completed'
		ORDER BY f.created_at DESC, f.id DESC
	`
	rows, err := r.db.QueryContext(ctx, query, classID)
	if err != nil {
		return nil, fmt.Errorf("failed to select class files: %w", err)
	}
	return scanAll(rows)
}

func scanAll(rows *sql.Rows) ([]*models.FileMetadata, error) {
	defer rows.Close()

	var result []*models.FileMetadata
	for rows.Next() {
		f := &models.FileMetadata{}
		err := rows.Scan(&f.ID, &f.UploadID, &f.StoredFileName, &f.OriginalName, &f.MimeType, &f.Size, &f.CreatedAt)
		if err != nil {
			return nil, err
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
