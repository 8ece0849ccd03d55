package services

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/dmitrijs2005/classhub/internal/common"
	"github.com/dmitrijs2005/classhub/internal/dbx"
	"github.com/dmitrijs2005/classhub/internal/logging"
	"github.com/dmitrijs2005/classhub/internal/server/config"
	"github.com/dmitrijs2005/classhub/internal/server/models"
	"github.com/dmitrijs2005/classhub/internal/server/notify"
	"github.com/dmitrijs2005/classhub/internal/server/repositories/repomanager"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reaperRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "classhub_reaper_runs_total",
		Help: "Completed reaper sweeps.",
	})

	uploadsReapedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "classhub_uploads_reaped_total",
		Help: "Stuck uploads failed by the reaper.",
	})
)

// Reaper periodically fails uploads stuck in processing longer than the
// configured timeout and releases their reservations. Together with queue
// recovery this guarantees no reservation is held forever after a worker
// crash.
type Reaper struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	notifier    *notify.Notifier
	logger      logging.Logger
	interval    time.Duration
	timeout     time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewReaper constructs a Reaper.
func NewReaper(db *sql.DB, m repomanager.RepositoryManager, n *notify.Notifier,
	cfg *config.Config, logger logging.Logger) *Reaper {
	return &Reaper{
		db:          db,
		repomanager: m,
		notifier:    n,
		logger:      logger.With("component", "reaper"),
		interval:    cfg.ReaperInterval,
		timeout:     cfg.ProcessingTimeout,
	}
}

// Start launches the periodic sweep goroutine.
func (r *Reaper) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	r.wg.Add(1)
	go r.run(runCtx)

	r.logger.Info(ctx, "reaper started", "interval", r.interval, "processing_timeout", r.timeout)
}

// Stop cancels the sweep goroutine and waits for it to finish.
func (r *Reaper) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	r.logger.Info(context.Background(), "reaper stopped")
}

func (r *Reaper) run(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil {
				r.logger.Error(ctx, "reaper sweep failed", "error", err)
			}
		}
	}
}

// RunOnce performs one sweep and returns the number of uploads it failed.
// Safe to call concurrently with the background loop; sweeps serialize.
func (r *Reaper) RunOnce(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-r.timeout)
	stuck, err := r.repomanager.Uploads(r.db).SelectStuck(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	reaped := 0
	for _, u := range stuck {
		done, err := r.reap(ctx, u.ID)
		if err != nil {
			r.logger.Error(ctx, "failed to reap upload", "upload_id", u.ID, "error", err)
			continue
		}
		if !done {
			// A worker resolved the upload between the sweep query and
			// the locked re-read.
			continue
		}
		r.notifier.UploadChanged(ctx, u.ClassID, u.ID, models.UploadStatusFailed, models.ReasonProcessingTimeout)
		r.logger.Warn(ctx, "stuck upload failed by reaper",
			"upload_id", u.ID, "class_id", u.ClassID, "released_bytes", u.ReservedBytes)
		reaped++
	}

	reaperRunsTotal.Inc()
	uploadsReapedTotal.Add(float64(reaped))
	return reaped, nil
}

// reap resolves one stuck upload. The row is re-read under lock, so an
// upload a worker resolved between the sweep query and this transaction is
// left alone.
func (r *Reaper) reap(ctx context.Context, uploadID string) (bool, error) {
	reaped := false
	err := dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		uploadsRepo := r.repomanager.Uploads(tx)
		upload, err := uploadsRepo.GetForUpdate(ctx, uploadID)
		if errors.Is(err, common.ErrorNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if upload.Status != models.UploadStatusProcessing {
			return nil
		}
		if upload.ReservedBytes > 0 {
			if err := r.repomanager.Classes(tx).AdjustUsed(ctx, upload.ClassID, -upload.ReservedBytes); err != nil {
				return err
			}
		}
		if err := uploadsRepo.FinishFailed(ctx, uploadID, models.ReasonProcessingTimeout); err != nil {
			return err
		}
		reaped = true
		return nil
	})
	return reaped, err
}
