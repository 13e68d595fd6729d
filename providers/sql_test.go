package providers

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

func newTestSQLProvider(t *testing.T) (*SQLProvider, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return &SQLProvider{db: sqlx.NewDb(db, "sqlmock"), table: "cache_entries"}, mock
}

func TestSQLProvider_GetHit(t *testing.T) {
	p, mock := newTestSQLProvider(t)

	rows := sqlmock.NewRows([]string{"value", "expires_at"}).
		AddRow([]byte("v1"), time.Now().Add(time.Hour))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT value, expires_at FROM cache_entries WHERE key = $1")).
		WithArgs("k1").
		WillReturnRows(rows)

	v, ok, err := p.Get(context.Background(), "k1")
	if err != nil || !ok {
		t.Fatalf("Get: (%v, %v)", ok, err)
	}
	if string(v) != "v1" {
		t.Fatalf("got %q, want v1", v)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestSQLProvider_GetMiss(t *testing.T) {
	p, mock := newTestSQLProvider(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT value, expires_at FROM cache_entries WHERE key = $1")).
		WithArgs("absent").
		WillReturnRows(sqlmock.NewRows([]string{"value", "expires_at"}))

	v, ok, err := p.Get(context.Background(), "absent")
	if err != nil {
		t.Fatalf("a miss must not error: %v", err)
	}
	if ok || v != nil {
		t.Fatalf("got (%q, %v), want clean miss", v, ok)
	}
}

func TestSQLProvider_GetExpiredRowRemovedAndMiss(t *testing.T) {
	p, mock := newTestSQLProvider(t)

	rows := sqlmock.NewRows([]string{"value", "expires_at"}).
		AddRow([]byte("stale"), time.Now().Add(-time.Minute))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT value, expires_at FROM cache_entries WHERE key = $1")).
		WithArgs("k").
		WillReturnRows(rows)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM cache_entries WHERE key = $1")).
		WithArgs("k").
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, ok, err := p.Get(context.Background(), "k")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected an expired row to read as a miss")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestSQLProvider_SetUpserts(t *testing.T) {
	p, mock := newTestSQLProvider(t)

	mock.ExpectExec("INSERT INTO cache_entries").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := p.Set(context.Background(), "k", []byte("v"), time.Minute, []string{"users"}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestSQLProvider_RemoveByTagTwoStep(t *testing.T) {
	p, mock := newTestSQLProvider(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT key FROM cache_entries WHERE tags && ARRAY[$1]")).
		WithArgs("users").
		WillReturnRows(sqlmock.NewRows([]string{"key"}).AddRow("a").AddRow("b"))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM cache_entries WHERE key = ANY($1)")).
		WillReturnResult(sqlmock.NewResult(0, 2))

	if err := p.RemoveByTag(context.Background(), "users"); err != nil {
		t.Fatalf("RemoveByTag: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestSQLProvider_RemoveByTagNoMatchesSkipsDelete(t *testing.T) {
	p, mock := newTestSQLProvider(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT key FROM cache_entries WHERE tags && ARRAY[$1]")).
		WithArgs("empty-tag").
		WillReturnRows(sqlmock.NewRows([]string{"key"}))

	if err := p.RemoveByTag(context.Background(), "empty-tag"); err != nil {
		t.Fatalf("RemoveByTag: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestSQLProvider_Exists(t *testing.T) {
	p, mock := newTestSQLProvider(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM cache_entries WHERE key = $1)")).
		WithArgs("k").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := p.Exists(context.Background(), "k")
	if err != nil || !ok {
		t.Fatalf("Exists: (%v, %v)", ok, err)
	}
}
