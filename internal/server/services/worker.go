package services

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/dmitrijs2005/classhub/internal/common"
	"github.com/dmitrijs2005/classhub/internal/dbx"
	"github.com/dmitrijs2005/classhub/internal/filex"
	"github.com/dmitrijs2005/classhub/internal/logging"
	"github.com/dmitrijs2005/classhub/internal/server/config"
	"github.com/dmitrijs2005/classhub/internal/server/models"
	"github.com/dmitrijs2005/classhub/internal/server/notify"
	"github.com/dmitrijs2005/classhub/internal/server/pipeline"
	"github.com/dmitrijs2005/classhub/internal/server/queue"
	"github.com/dmitrijs2005/classhub/internal/server/repositories/repomanager"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	uploadsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "classhub_uploads_processed_total",
		Help: "Uploads resolved by the worker, labeled by outcome.",
	}, []string{"result"})

	uploadFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "classhub_upload_failures_total",
		Help: "Failed uploads, labeled by error reason.",
	}, []string{"reason"})

	bytesCommittedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "classhub_bytes_committed_total",
		Help: "Post-sanitization bytes committed to class storage.",
	})

	processingDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "classhub_upload_processing_duration_seconds",
		Help:    "Wall-clock duration of processing one upload job.",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 120},
	})
)

// errSuperseded signals that another actor (usually the reaper) resolved the
// upload while the worker was processing it.
var errSuperseded = errors.New("upload already resolved")

// Worker pulls processing jobs from the queue and drives each one through
// the pipeline to a durable commit or rollback. A job is acked only after
// the upload row reached a terminal state, so a crash mid-flight leaves the
// job in the pending list for recovery.
type Worker struct {
	db             *sql.DB
	repomanager    repomanager.RepositoryManager
	queue          queue.Queue
	pipeline       *pipeline.Pipeline
	notifier       *notify.Notifier
	logger         logging.Logger
	workers        int
	dequeueTimeout time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorker constructs a Worker.
func NewWorker(db *sql.DB, m repomanager.RepositoryManager, q queue.Queue,
	p *pipeline.Pipeline, n *notify.Notifier, cfg *config.Config, logger logging.Logger) *Worker {
	return &Worker{
		db:             db,
		repomanager:    m,
		queue:          q,
		pipeline:       p,
		notifier:       n,
		logger:         logger.With("component", "worker"),
		workers:        cfg.Workers,
		dequeueTimeout: cfg.DequeueTimeout,
	}
}

// Start launches the configured number of worker loops.
func (w *Worker) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	for i := 0; i < w.workers; i++ {
		w.wg.Add(1)
		go w.loop(runCtx)
	}
	w.logger.Info(ctx, "worker started", "workers", w.workers)
}

// Stop cancels the loops and waits for in-flight jobs to finish.
func (w *Worker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	w.logger.Info(context.Background(), "worker stopped")
}

func (w *Worker) loop(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := w.queue.Dequeue(ctx, w.dequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error(ctx, "dequeue failed", "error", err)
			time.Sleep(time.Second)
			continue
		}
		if job == nil {
			continue
		}

		start := time.Now()
		if err := w.Process(ctx, job); err != nil {
			// Infrastructure trouble: the job stays unacked and the upload
			// stays processing; the reaper resolves it.
			w.logger.Error(ctx, "job processing failed",
				"upload_id", job.UploadID, "class_id", job.ClassID, "error", err)
			uploadsProcessedTotal.WithLabelValues("errored").Inc()
			continue
		}
		processingDurationSeconds.Observe(time.Since(start).Seconds())
	}
}

// Process drives one job to resolution. A nil return means the job was
// durably resolved (committed, rolled back, or recognized as stale) and
// acked; an error means nothing durable happened yet.
func (w *Worker) Process(ctx context.Context, job *models.ProcessingJob) error {
	upload, err := w.repomanager.Uploads(w.db).GetByID(ctx, job.UploadID)
	if errors.Is(err, common.ErrorNotFound) {
		w.logger.Warn(ctx, "job for unknown upload, dropping", "upload_id", job.UploadID)
		w.cleanupTemp(ctx, job)
		return w.queue.Ack(ctx, job)
	}
	if err != nil {
		return err
	}
	if upload.Terminal() {
		// Stale redelivery of an already resolved upload.
		w.cleanupTemp(ctx, job)
		return w.queue.Ack(ctx, job)
	}

	ok, err := w.repomanager.Uploads(w.db).MarkProcessing(ctx, job.UploadID)
	if err != nil {
		return err
	}
	if !ok {
		w.cleanupTemp(ctx, job)
		return w.queue.Ack(ctx, job)
	}
	w.notifier.UploadChanged(ctx, job.ClassID, job.UploadID, models.UploadStatusProcessing, "")

	// Files of one upload are processed sequentially; the first failure
	// aborts the whole job, partial success is not allowed.
	var results []*pipeline.Result
	for _, f := range job.Files {
		res, runErr := w.pipeline.Run(ctx, job.ClassID, f)
		if runErr != nil {
			if common.IsValidationError(runErr) {
				return w.rollback(ctx, job, results, runErr)
			}
			w.cleanupPlaced(ctx, results)
			return runErr
		}
		results = append(results, res)
	}

	return w.commit(ctx, job, results)
}

// commit inserts the metadata rows, settles the quota ledger against the
// authoritative sanitized sizes and completes the upload, all in one
// transaction.
func (w *Worker) commit(ctx context.Context, job *models.ProcessingJob, results []*pipeline.Result) error {
	err := dbx.WithTx(ctx, w.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		uploadsRepo := w.repomanager.Uploads(tx)
		upload, err := uploadsRepo.GetForUpdate(ctx, job.UploadID)
		if err != nil {
			return err
		}
		if upload.Status != models.UploadStatusProcessing {
			return errSuperseded
		}

		filesRepo := w.repomanager.Files(tx)
		var total int64
		for i, res := range results {
			total += res.Size
			err := filesRepo.Insert(ctx, &models.FileMetadata{
				UploadID:       job.UploadID,
				StoredFileName: res.StoredFileName,
				OriginalName:   job.Files[i].OriginalName,
				MimeType:       res.MimeType,
				Size:           res.Size,
			})
			if err != nil {
				return err
			}
		}

		// Sanitization changes byte counts, so the settlement delta against
		// the reservation may be positive or negative.
		if err := w.repomanager.Classes(tx).AdjustUsed(ctx, job.ClassID, total-upload.ReservedBytes); err != nil {
			return err
		}
		return uploadsRepo.FinishCompleted(ctx, job.UploadID)
	})

	if errors.Is(err, errSuperseded) {
		w.cleanupPlaced(ctx, results)
		return w.queue.Ack(ctx, job)
	}
	if err != nil {
		w.cleanupPlaced(ctx, results)
		return err
	}

	if err := w.queue.Ack(ctx, job); err != nil {
		w.logger.Warn(ctx, "ack failed after commit", "upload_id", job.UploadID, "error", err)
	}
	w.notifier.UploadChanged(ctx, job.ClassID, job.UploadID, models.UploadStatusCompleted, "")
	uploadsProcessedTotal.WithLabelValues("completed").Inc()
	var total int64
	for _, res := range results {
		total += res.Size
	}
	bytesCommittedTotal.Add(float64(total))
	w.logger.Info(ctx, "upload completed", "upload_id", job.UploadID, "class_id", job.ClassID, "files", len(results))
	return nil
}

// rollback releases the full reservation, fails the upload with a specific
// reason and cleans up whatever the pipeline left on disk.
func (w *Worker) rollback(ctx context.Context, job *models.ProcessingJob, results []*pipeline.Result, cause error) error {
	w.cleanupPlaced(ctx, results)
	w.cleanupTemp(ctx, job)

	reason := failureReason(cause)
	err := dbx.WithTx(ctx, w.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		uploadsRepo := w.repomanager.Uploads(tx)
		upload, err := uploadsRepo.GetForUpdate(ctx, job.UploadID)
		if err != nil {
			return err
		}
		if upload.Terminal() {
			return errSuperseded
		}
		if upload.ReservedBytes > 0 {
			if err := w.repomanager.Classes(tx).AdjustUsed(ctx, job.ClassID, -upload.ReservedBytes); err != nil {
				return err
			}
		}
		return uploadsRepo.FinishFailed(ctx, job.UploadID, reason)
	})

	if errors.Is(err, errSuperseded) {
		return w.queue.Ack(ctx, job)
	}
	if err != nil {
		return err
	}

	if err := w.queue.Ack(ctx, job); err != nil {
		w.logger.Warn(ctx, "ack failed after rollback", "upload_id", job.UploadID, "error", err)
	}
	w.notifier.UploadChanged(ctx, job.ClassID, job.UploadID, models.UploadStatusFailed, reason)
	uploadsProcessedTotal.WithLabelValues("failed").Inc()
	uploadFailuresTotal.WithLabelValues(reason).Inc()
	w.logger.Info(ctx, "upload rejected",
		"upload_id", job.UploadID, "class_id", job.ClassID, "reason", reason, "error", cause)
	return nil
}

// failureReason maps a validation error to the stable reason identifier
// stored on the upload.
func failureReason(err error) string {
	switch {
	case errors.Is(err, common.ErrUnsupportedType):
		return models.ReasonUnsupportedType
	case errors.Is(err, common.ErrTypeMismatch):
		return models.ReasonInvalidType
	case errors.Is(err, common.ErrThreatDetected):
		return models.ReasonThreatDetected
	case errors.Is(err, common.ErrScanFailed):
		return models.ReasonScanFailed
	default:
		return models.ReasonSanitizationFailed
	}
}

// cleanupTemp removes remaining spooled files. Best effort: cleanup must
// never fail over a file that is already gone.
func (w *Worker) cleanupTemp(ctx context.Context, job *models.ProcessingJob) {
	for _, f := range job.Files {
		if err := filex.RemoveIfExists(f.TempPath); err != nil {
			w.logger.Warn(ctx, "temp file cleanup failed", "path", f.TempPath, "error", err)
		}
	}
}

// cleanupPlaced removes files already moved into storage by an aborted job.
func (w *Worker) cleanupPlaced(ctx context.Context, results []*pipeline.Result) {
	for _, res := range results {
		if err := filex.RemoveIfExists(res.Path); err != nil {
			w.logger.Warn(ctx, "placed file cleanup failed", "path", res.Path, "error", err)
		}
	}
}
