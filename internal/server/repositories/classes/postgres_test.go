package classes

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/classhub/internal/common"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func TestGet_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := regexp.MustCompile(`SELECT id, quota_bytes, used_bytes FROM classes WHERE id = \$1`)

	rows := sqlmock.NewRows([]string{"id", "quota_bytes", "used_bytes"}).
		AddRow("c1", int64(1000), int64(250))

	mock.ExpectQuery(q.String()).WithArgs("c1").WillReturnRows(rows)

	got, err := repo.Get(context.Background(), "c1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != "c1" || got.QuotaBytes != 1000 || got.UsedBytes != 250 {
		t.Fatalf("unexpected class: %+v", got)
	}
}

func TestGet_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := regexp.MustCompile(`SELECT id, quota_bytes, used_bytes FROM classes WHERE id = \$1`)

	mock.ExpectQuery(q.String()).WithArgs("missing").WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), "missing")
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want ErrorNotFound, got %v", err)
	}
}

func TestReserve_SuccessRowsAffected1(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := regexp.MustCompile(`UPDATE classes\s+SET used_bytes = used_bytes \+ \$2\s+WHERE id = \$1 AND used_bytes \+ \$2 <= quota_bytes`)

	mock.ExpectExec(q.String()).
		WithArgs("c1", int64(100)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Reserve(context.Background(), "c1", 100); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestReserve_QuotaExceeded(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	upd := regexp.MustCompile(`UPDATE classes\s+SET used_bytes = used_bytes \+ \$2\s+WHERE id = \$1 AND used_bytes \+ \$2 <= quota_bytes`)
	sel := regexp.MustCompile(`SELECT id, quota_bytes, used_bytes FROM classes WHERE id = \$1`)

	mock.ExpectExec(upd.String()).
		WithArgs("c1", int64(999)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(sel.String()).
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "quota_bytes", "used_bytes"}).
			AddRow("c1", int64(1000), int64(900)))

	err := repo.Reserve(context.Background(), "c1", 999)
	if !errors.Is(err, common.ErrQuotaExceeded) {
		t.Fatalf("want ErrQuotaExceeded, got %v", err)
	}
}

func TestReserve_ClassNotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	upd := regexp.MustCompile(`UPDATE classes\s+SET used_bytes = used_bytes \+ \$2\s+WHERE id = \$1 AND used_bytes \+ \$2 <= quota_bytes`)
	sel := regexp.MustCompile(`SELECT id, quota_bytes, used_bytes FROM classes WHERE id = \$1`)

	mock.ExpectExec(upd.String()).
		WithArgs("nope", int64(10)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(sel.String()).
		WithArgs("nope").
		WillReturnError(sql.ErrNoRows)

	err := repo.Reserve(context.Background(), "nope", 10)
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want ErrorNotFound, got %v", err)
	}
}

func TestReserve_DBExecError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := regexp.MustCompile(`UPDATE classes\s+SET used_bytes = used_bytes \+ \$2`)

	mock.ExpectExec(q.String()).
		WithArgs("c1", int64(1)).
		WillReturnError(errors.New("db is down"))

	err := repo.Reserve(context.Background(), "c1", 1)
	if err == nil || !regexp.MustCompile(`failed to reserve quota: .*db is down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped exec error, got %v", err)
	}
}

func TestAdjustUsed_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := regexp.MustCompile(`UPDATE classes SET used_bytes = used_bytes \+ \$2 WHERE id = \$1`)

	mock.ExpectExec(q.String()).
		WithArgs("c1", int64(-100)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.AdjustUsed(context.Background(), "c1", -100); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAdjustUsed_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := regexp.MustCompile(`UPDATE classes SET used_bytes = used_bytes \+ \$2 WHERE id = \$1`)

	mock.ExpectExec(q.String()).
		WithArgs("missing", int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.AdjustUsed(context.Background(), "missing", 5)
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want ErrorNotFound, got %v", err)
	}
}

func TestAdjustUsed_RowsAffectedError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := regexp.MustCompile(`UPDATE classes SET used_bytes = used_bytes \+ \$2 WHERE id = \$1`)

	mock.ExpectExec(q.String()).
		WithArgs("c1", int64(5)).
		WillReturnResult(sqlmock.NewErrorResult(errors.New("rows-err")))

	err := repo.AdjustUsed(context.Background(), "c1", 5)
	if err == nil || !regexp.MustCompile(`rows affected error: .*rows-err`).MatchString(err.Error()) {
		t.Fatalf("expected rows affected error, got %v", err)
	}
}
