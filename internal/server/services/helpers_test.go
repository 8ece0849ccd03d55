package services

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/classhub/internal/logging"
	"github.com/dmitrijs2005/classhub/internal/server/cache"
	"github.com/dmitrijs2005/classhub/internal/server/config"
	"github.com/dmitrijs2005/classhub/internal/server/models"
	"github.com/dmitrijs2005/classhub/internal/server/notify"
	"github.com/dmitrijs2005/classhub/internal/server/pipeline"
	"github.com/dmitrijs2005/classhub/internal/server/queue"
	"github.com/dmitrijs2005/classhub/internal/server/repositories/repomanager"
	"github.com/stretchr/testify/require"
)

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.Workers = 1
	cfg.DequeueTimeout = 50 * time.Millisecond
	return cfg
}

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock
}

var uploadCols = []string{"id", "class_id", "status", "reserved_bytes", "coalesce", "created_at", "updated_at"}

func uploadRow(id, classID, status string, reserved int64) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(uploadCols).AddRow(id, classID, status, reserved, "", now, now)
}

func uploadRowEmpty() *sqlmock.Rows {
	return sqlmock.NewRows(uploadCols)
}

// expectGetByID matches the plain (unlocked) upload select.
func expectGetByID(mock sqlmock.Sqlmock, id string, rows *sqlmock.Rows) {
	mock.ExpectQuery(`FROM uploads WHERE id = \$1\s*$`).WithArgs(id).WillReturnRows(rows)
}

func expectGetForUpdate(mock sqlmock.Sqlmock, id string, rows *sqlmock.Rows) {
	mock.ExpectQuery(`FROM uploads WHERE id = \$1 FOR UPDATE`).WithArgs(id).WillReturnRows(rows)
}

func expectMarkProcessing(mock sqlmock.Sqlmock, id string, affected int64) {
	mock.ExpectExec(`UPDATE uploads SET status = 'processing'`).
		WithArgs(id).WillReturnResult(sqlmock.NewResult(0, affected))
}

func expectAdjustUsed(mock sqlmock.Sqlmock, classID string, delta int64) {
	mock.ExpectExec(`UPDATE classes SET used_bytes = used_bytes \+ \$2 WHERE id = \$1`).
		WithArgs(classID, delta).WillReturnResult(sqlmock.NewResult(0, 1))
}

func expectFinishCompleted(mock sqlmock.Sqlmock, id string) {
	mock.ExpectExec(`UPDATE uploads SET status = 'completed'`).
		WithArgs(id).WillReturnResult(sqlmock.NewResult(0, 1))
}

func expectFinishFailed(mock sqlmock.Sqlmock, id, reason string) {
	mock.ExpectExec(`UPDATE uploads SET status = 'failed'`).
		WithArgs(id, reason).WillReturnResult(sqlmock.NewResult(0, 1))
}

func expectInsertFile(mock sqlmock.Sqlmock, id int64) {
	mock.ExpectQuery(`INSERT INTO upload_files`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(id))
}

// testWorker builds a Worker over a mocked database, a memory queue and a
// working pipeline with a scripted scanner.
func testWorker(t *testing.T, db *sql.DB, scannerExit string) (*Worker, *queue.MemoryQueue, *notify.MemoryPublisher, string) {
	t.Helper()

	storage := t.TempDir()
	scannerPath := filepath.Join(t.TempDir(), "scanner.sh")
	require.NoError(t, os.WriteFile(scannerPath, []byte("#!/bin/sh\nexit "+scannerExit+"\n"), 0o755))

	logger := testLogger()
	scanner := pipeline.NewScanner(scannerPath, t.TempDir(), time.Second, logger)
	images := pipeline.NewImageSanitizer(1<<20, 85)
	pdfs := pipeline.NewPDFSanitizer("definitely-not-ghostscript", time.Second, logger)
	p := pipeline.New(storage, scanner, images, pdfs, logger)

	q := queue.NewMemoryQueue()
	pub := notify.NewMemoryPublisher()
	notifier := notify.NewNotifier(cache.NewMemoryCache(), pub, logger)

	w := NewWorker(db, &repomanager.PostgresRepositoryManager{}, q, p, notifier, testConfig(), logger)
	return w, q, pub, storage
}

// deliver enqueues and dequeues a job so it lands in the pending list, the
// state it has when a worker picks it up.
func deliver(t *testing.T, q *queue.MemoryQueue, job *models.ProcessingJob) *models.ProcessingJob {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, job))
	got, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, got)
	return got
}

func spoolFile(t *testing.T, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "spool.tmp")
	require.NoError(t, os.WriteFile(path, content, 0o600))
	return path
}
