package classes

import (
	"context"

	"github.com/dmitrijs2005/classhub/internal/server/models"
)

// Repository is the storage-quota ledger of classes. Reserve and AdjustUsed
// are only ever called inside transactions that also move the owning
// upload's state, so ledger and upload stay consistent.
type Repository interface {
	Get(ctx context.Context, id string) (*models.Class, error)

	// Reserve atomically checks used+bytes <= quota and, if it fits,
	// increments used_bytes by bytes. Returns common.ErrQuotaExceeded when
	// the class has no room, with no mutation performed.
	Reserve(ctx context.Context, id string, bytes int64) error

	// AdjustUsed adds delta (possibly negative) to used_bytes.
	AdjustUsed(ctx context.Context, id string, delta int64) error
}
