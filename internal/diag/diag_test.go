package diag

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/bracketline/eventserve/internal/cache"
	"github.com/bracketline/eventserve/internal/store"
)

func testLogger(t *testing.T) (*Logger, sqlmock.Sqlmock, cache.Cache) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	c := cache.NewMemory()
	l := New(store.New(db), c)
	l.SetClock(func() time.Time {
		return time.Date(2025, 8, 15, 12, 0, 0, 0, time.UTC)
	})
	return l, mock, c
}

func TestLog(t *testing.T) {
	l, mock, _ := testLogger(t)
	now := time.Date(2025, 8, 15, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec("INSERT INTO diag").
		WithArgs(now, "error", "POST /", "db write failed", `{"action":"create"}`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM diag").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(10))

	l.Log(context.Background(), "error", "POST /", "db write failed",
		map[string]interface{}{"action": "create"})

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestLog_RedactsSecrets(t *testing.T) {
	l, mock, _ := testLogger(t)
	now := time.Date(2025, 8, 15, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec("INSERT INTO diag").
		WithArgs(now, "warn", "auth", "auth failed",
			`{"adminKey":"[REDACTED]","tenant":"root"}`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM diag").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	l.Log(context.Background(), "warn", "auth", "auth failed",
		map[string]interface{}{"adminKey": "s3cret", "tenant": "root"})

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestLog_SanitizesMessage(t *testing.T) {
	l, mock, _ := testLogger(t)
	now := time.Date(2025, 8, 15, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec("INSERT INTO diag").
		WithArgs(now, "info", "api", "scriptalert(1)/script", "{}").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM diag").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	l.Log(context.Background(), "info", "api", "<script>alert(1)</script>", nil)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestLog_HardCap(t *testing.T) {
	l, mock, _ := testLogger(t)

	mock.ExpectExec("INSERT INTO diag").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM diag").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3005))
	mock.ExpectExec("DELETE FROM diag").
		WithArgs(5).
		WillReturnResult(sqlmock.NewResult(0, 5))

	l.Log(context.Background(), "info", "api", "entry", nil)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestLog_DailyPruneEvery50th(t *testing.T) {
	l, mock, c := testLogger(t)
	ctx := context.Background()

	// Advance the shared counter so this write is the 50th.
	for i := 0; i < 49; i++ {
		c.Incr(ctx, counterKey, counterTTL)
	}

	mock.ExpectExec("INSERT INTO diag").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM diag").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(100))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM diag WHERE ts").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(900))
	mock.ExpectExec("DELETE FROM diag WHERE seq IN").
		WithArgs(100).
		WillReturnResult(sqlmock.NewResult(0, 100))

	l.Log(ctx, "info", "api", "entry", nil)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestLog_AppendFailureIsSwallowed(t *testing.T) {
	l, mock, _ := testLogger(t)

	mock.ExpectExec("INSERT INTO diag").
		WillReturnError(context.DeadlineExceeded)

	// Must not panic or propagate; caps are skipped on append failure.
	l.Log(context.Background(), "info", "api", "entry", nil)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
