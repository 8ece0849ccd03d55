package uploads

import (
	"context"
	"time"

	"github.com/dmitrijs2005/classhub/internal/server/models"
)

// Repository persists upload lifecycle records. Status transitions are
// guarded UPDATEs so that concurrent workers and the reaper cannot move an
// upload out of a terminal state or finalize it twice.
type Repository interface {
	Create(ctx context.Context, upload *models.Upload) error
	GetByID(ctx context.Context, id string) (*models.Upload, error)

	// GetForUpdate locks the upload row for the duration of the enclosing
	// transaction. Only meaningful when the repository is bound to a tx.
	GetForUpdate(ctx context.Context, id string) (*models.Upload, error)

	// MarkProcessing moves a queued or processing upload to processing and
	// bumps updated_at. Returns false when the upload is terminal or gone,
	// which tells the caller the job is a stale redelivery.
	MarkProcessing(ctx context.Context, id string) (bool, error)

	// FinishCompleted moves a processing upload to completed and clears the
	// reservation. Fails with ErrorNotFound when no processing row matches.
	FinishCompleted(ctx context.Context, id string) error

	// FinishFailed moves a queued or processing upload to failed with the
	// given reason and clears the reservation.
	FinishFailed(ctx context.Context, id string, reason string) error

	// SelectStuck returns processing uploads not touched since cutoff.
	SelectStuck(ctx context.Context, cutoff time.Time) ([]*models.Upload, error)
}
