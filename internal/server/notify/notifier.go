package notify

import (
	"context"
	"time"

	"github.com/dmitrijs2005/classhub/internal/logging"
	"github.com/dmitrijs2005/classhub/internal/server/cache"
)

// Notifier invalidates the class listing cache and publishes a state-change
// event. Both actions are best effort: a dead cache or broker must never
// fail the state transition that already committed.
type Notifier struct {
	cache     cache.Cache
	publisher Publisher
	logger    logging.Logger
}

// NewNotifier constructs a Notifier.
func NewNotifier(c cache.Cache, p Publisher, l logging.Logger) *Notifier {
	return &Notifier{cache: c, publisher: p, logger: l}
}

// UploadChanged invalidates the listing of the upload's class and publishes
// the new status.
func (n *Notifier) UploadChanged(ctx context.Context, classID, uploadID, status, reason string) {
	if err := n.cache.Delete(ctx, cache.ListingKey(classID)); err != nil {
		n.logger.Warn(ctx, "listing cache invalidation failed", "class_id", classID, "error", err)
	}

	event := &Event{
		ClassID:  classID,
		UploadID: uploadID,
		Status:   status,
		Reason:   reason,
		At:       time.Now().UTC(),
	}
	if err := n.publisher.Publish(ctx, event); err != nil {
		n.logger.Warn(ctx, "event publish failed", "class_id", classID, "upload_id", uploadID, "error", err)
	}
}
