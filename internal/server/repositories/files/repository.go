package files

import (
	"context"

	"github.com/dmitrijs2005/classhub/internal/server/models"
)

// Repository persists metadata of successfully processed files.
type Repository interface {
	Insert(ctx context.Context, file *models.FileMetadata) error
	SelectByUploadID(ctx context.Context, uploadID string) ([]*models.FileMetadata, error)

	// SelectByClassID lists files of all completed uploads of a class,
	// newest first. Backs the class file listing.
	SelectByClassID(ctx context.Context, classID string) ([]*models.FileMetadata, error)
}
