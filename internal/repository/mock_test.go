package repository

import (
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

// newMockDB はsqlmockを使ったDBとモックを返す。終了時に全ての期待が満たされたことを検証する。
func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet sqlmock expectations: %v", err)
		}
		db.Close()
	})
	return db, mock
}

func newMockSQLX(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := newMockDB(t)
	return sqlx.NewDb(db, "postgres"), mock
}

var userColumnNames = []string{
	"id", "email", "name", "role",
	"monthly_search_limit", "monthly_download_limit",
	"current_month_searches", "current_month_downloads",
	"created_at", "updated_at",
}

var sessionColumnNames = []string{
	"id", "session_id", "user_id", "login_time", "logout_time", "is_active",
	"last_activity", "duration", "ip_address", "user_agent", "location", "device", "browser",
}
