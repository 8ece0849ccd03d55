// Package services contains the server-side business logic: upload
// submission with quota reservation, the worker loop that validates and
// commits uploads, and the reaper that resolves stuck ones.
package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/classhub/internal/dbx"
	"github.com/dmitrijs2005/classhub/internal/logging"
	"github.com/dmitrijs2005/classhub/internal/server/cache"
	"github.com/dmitrijs2005/classhub/internal/server/config"
	"github.com/dmitrijs2005/classhub/internal/server/models"
	"github.com/dmitrijs2005/classhub/internal/server/notify"
	"github.com/dmitrijs2005/classhub/internal/server/queue"
	"github.com/dmitrijs2005/classhub/internal/server/repositories/repomanager"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// FileInput describes one spooled file of a submission. TempPath points at
// bytes the transport layer already wrote to the temp directory.
type FileInput struct {
	TempPath        string
	OriginalName    string
	ClaimedMimeType string
	DeclaredSize    int64
}

// IngestService accepts uploads. Submit reserves quota against the declared
// sizes and enqueues a processing job; the request path never runs the
// pipeline itself.
type IngestService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	queue       queue.Queue
	cache       cache.Cache
	notifier    *notify.Notifier
	listingTTL  time.Duration
	logger      logging.Logger
	listings    singleflight.Group
}

// NewIngestService constructs an IngestService.
func NewIngestService(db *sql.DB, m repomanager.RepositoryManager, q queue.Queue,
	c cache.Cache, n *notify.Notifier, cfg *config.Config, logger logging.Logger) *IngestService {
	return &IngestService{
		db:          db,
		repomanager: m,
		queue:       q,
		cache:       c,
		notifier:    n,
		listingTTL:  cfg.ListingCacheTTL,
		logger:      logger,
	}
}

// Submit reserves quota for the declared total size, records a queued upload
// and enqueues the processing job. The reservation and the upload row are
// written in one transaction, so a failed reservation leaves no trace.
func (s *IngestService) Submit(ctx context.Context, classID string, files []FileInput) (*models.Upload, error) {
	if len(files) == 0 {
		return nil, errors.New("submission contains no files")
	}

	var total int64
	for _, f := range files {
		total += f.DeclaredSize
	}

	upload := &models.Upload{
		ID:            uuid.NewString(),
		ClassID:       classID,
		Status:        models.UploadStatusQueued,
		ReservedBytes: total,
	}

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Classes(tx).Reserve(ctx, classID, total); err != nil {
			return err
		}
		return s.repomanager.Uploads(tx).Create(ctx, upload)
	})
	if err != nil {
		return nil, err
	}

	job := &models.ProcessingJob{UploadID: upload.ID, ClassID: classID}
	for _, f := range files {
		job.Files = append(job.Files, models.ProcessingFile{
			TempPath:        f.TempPath,
			OriginalName:    f.OriginalName,
			ClaimedMimeType: f.ClaimedMimeType,
			DeclaredSize:    f.DeclaredSize,
		})
	}

	if err := s.queue.Enqueue(ctx, job); err != nil {
		s.compensateEnqueueFailure(ctx, upload, total)
		return nil, fmt.Errorf("failed to enqueue upload %s: %w", upload.ID, err)
	}

	s.notifier.UploadChanged(ctx, classID, upload.ID, upload.Status, "")
	s.logger.Info(ctx, "upload accepted",
		"upload_id", upload.ID, "class_id", classID, "files", len(files), "reserved_bytes", total)
	return upload, nil
}

// compensateEnqueueFailure releases the reservation and fails the upload
// when the job could not reach the queue. Without this the hold would leak
// until an operator noticed.
func (s *IngestService) compensateEnqueueFailure(ctx context.Context, upload *models.Upload, total int64) {
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Classes(tx).AdjustUsed(ctx, upload.ClassID, -total); err != nil {
			return err
		}
		return s.repomanager.Uploads(tx).FinishFailed(ctx, upload.ID, models.ReasonEnqueueFailed)
	})
	if err != nil {
		s.logger.Error(ctx, "failed to release reservation after enqueue failure",
			"upload_id", upload.ID, "class_id", upload.ClassID, "error", err)
		return
	}
	s.notifier.UploadChanged(ctx, upload.ClassID, upload.ID, models.UploadStatusFailed, models.ReasonEnqueueFailed)
}

// Status returns the current state of one upload.
func (s *IngestService) Status(ctx context.Context, uploadID string) (*models.Upload, error) {
	return s.repomanager.Uploads(s.db).GetByID(ctx, uploadID)
}

// ListFiles returns all files of a class's completed uploads. Listings are
// served from the cache; concurrent misses for the same class collapse into
// a single database query.
func (s *IngestService) ListFiles(ctx context.Context, classID string) ([]*models.FileMetadata, error) {
	key := cache.ListingKey(classID)

	if data, ok, err := s.cache.Get(ctx, key); err != nil {
		s.logger.Warn(ctx, "listing cache read failed", "class_id", classID, "error", err)
	} else if ok {
		var cached []*models.FileMetadata
		if err := json.Unmarshal(data, &cached); err == nil {
			return cached, nil
		}
		s.logger.Warn(ctx, "listing cache entry corrupt, rebuilding", "class_id", classID)
	}

	v, err, _ := s.listings.Do(key, func() (any, error) {
		listing, err := s.repomanager.Files(s.db).SelectByClassID(ctx, classID)
		if err != nil {
			return nil, err
		}
		if data, err := json.Marshal(listing); err == nil {
			if err := s.cache.Set(ctx, key, data, s.listingTTL); err != nil {
				s.logger.Warn(ctx, "listing cache write failed", "class_id", classID, "error", err)
			}
		}
		return listing, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]*models.FileMetadata), nil
}
