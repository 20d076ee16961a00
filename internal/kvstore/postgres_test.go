package kvstore

import (
	"context"
	"errors"
	"reflect"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func newMockStore(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return NewPostgresFromDB(conn), mock
}

func TestPostgresGet(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(getQuery)).
		WithArgs("favorites").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(`[{"id":"m1"}]`))

	value, ok, err := store.Get(context.Background(), "favorites")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok || value != `[{"id":"m1"}]` {
		t.Fatalf("expected stored value, got %q (exists=%v)", value, ok)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPostgresGetMissing(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(getQuery)).
		WithArgs("reminders").
		WillReturnRows(sqlmock.NewRows([]string{"value"}))

	_, ok, err := store.Get(context.Background(), "reminders")
	if err != nil {
		t.Fatalf("missing key must not be an error, got %v", err)
	}
	if ok {
		t.Fatalf("expected key to be absent")
	}
}

func TestPostgresGetError(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(getQuery)).
		WithArgs("favorites").
		WillReturnError(errors.New("connection reset"))

	if _, _, err := store.Get(context.Background(), "favorites"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestPostgresSetAndRemove(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(upsertQuery)).
		WithArgs("isDarkMode", "true").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(deleteQuery)).
		WithArgs("isDarkMode").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ctx := context.Background()
	if err := store.Set(ctx, "isDarkMode", "true"); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if err := store.Remove(ctx, "isDarkMode"); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPostgresKeys(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(keysQuery)).
		WillReturnRows(sqlmock.NewRows([]string{"key"}).AddRow("favorites").AddRow("reminders"))

	keys, err := store.Keys(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(keys, []string{"favorites", "reminders"}) {
		t.Fatalf("unexpected keys: %v", keys)
	}
}

func TestPostgresMigrate(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(createTableQuery)).WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
}

func TestPostgresSetManyCommits(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(upsertQuery)).
		WithArgs("doctors", "[]").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(upsertQuery)).
		WithArgs("doctorsCacheTime", `"2025-11-28T10:00:00Z"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.SetMany(context.Background(), map[string]string{
		"doctorsCacheTime": `"2025-11-28T10:00:00Z"`,
		"doctors":          "[]",
	})
	if err != nil {
		t.Fatalf("set many failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPostgresSetManyRollsBackOnFailure(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(upsertQuery)).
		WithArgs("consultations", "[]").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(upsertQuery)).
		WithArgs("prescriptions", "[]").
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := store.SetMany(context.Background(), map[string]string{
		"consultations": "[]",
		"prescriptions": "[]",
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expected rollback without commit: %v", err)
	}
}
