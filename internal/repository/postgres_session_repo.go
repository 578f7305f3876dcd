package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/resumetrack/internal/model"
)

// ErrActiveSessionConflict は並行するOpenにより、同一ユーザーのアクティブセッションが
// 一意制約に違反した場合に返される。呼び出し側で再試行できる。
var ErrActiveSessionConflict = errors.New("another active session was opened concurrently")

// PostgreSQLのSQLSTATE。
const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

const sessionColumns = `id, session_id, user_id, login_time, logout_time, is_active,
	last_activity, duration, ip_address, user_agent, location, device, browser`

// PostgresSessionRepo はPostgreSQLを使用したセッションリポジトリ。
type PostgresSessionRepo struct {
	db *sql.DB
}

// NewPostgresSessionRepo はPostgresSessionRepoを生成する。
func NewPostgresSessionRepo(db *sql.DB) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: db}
}

// Open は既存のアクティブセッションをクローズしてから新しいセッションを作成する。
// 両操作は同一トランザクションで行う。
func (r *PostgresSessionRepo) Open(ctx context.Context, session *model.Session) ([]string, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// 1. 既存のアクティブセッションをクローズ
	rows, err := tx.QueryContext(ctx,
		`UPDATE user_sessions
		 SET is_active = false,
		     logout_time = $2,
		     duration = GREATEST(0, FLOOR(EXTRACT(EPOCH FROM ($2::timestamptz - login_time))))::bigint
		 WHERE user_id = $1 AND is_active
		 RETURNING session_id`,
		session.UserID, session.LoginTime,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to close active sessions: %w", err)
	}
	var closed []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan closed session: %w", err)
		}
		closed = append(closed, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to iterate closed sessions: %w", err)
	}
	rows.Close()

	// 2. 新しいセッションを作成
	err = tx.QueryRowContext(ctx,
		`INSERT INTO user_sessions
		   (session_id, user_id, login_time, is_active, last_activity,
		    ip_address, user_agent, location, device, browser)
		 VALUES ($1, $2, $3, true, $3, $4, $5, $6, $7, $8)
		 RETURNING id`,
		session.SessionID, session.UserID, session.LoginTime,
		session.IPAddress, session.UserAgent, session.Location, session.Device, session.Browser,
	).Scan(&session.ID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) {
			switch pqErr.Code {
			case pqUniqueViolation:
				return nil, ErrActiveSessionConflict
			case pqForeignKeyViolation:
				return nil, model.NewUserNotFoundError()
			}
		}
		return nil, fmt.Errorf("failed to insert session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	session.IsActive = true
	session.LastActivity = session.LoginTime
	return closed, nil
}

// FindBySessionID はセッションIDでセッションを取得する。見つからない場合はnilを返す。
func (r *PostgresSessionRepo) FindBySessionID(ctx context.Context, sessionID string) (*model.Session, error) {
	session, err := scanSession(r.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM user_sessions WHERE session_id = $1`,
		sessionID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	return session, nil
}

// Close はアクティブなセッションをクローズする。
// 既にクローズ済み、または存在しない場合はnilを返す。
func (r *PostgresSessionRepo) Close(ctx context.Context, sessionID string, now time.Time) (*model.Session, error) {
	session, err := scanSession(r.db.QueryRowContext(ctx,
		`UPDATE user_sessions
		 SET is_active = false,
		     logout_time = $2,
		     duration = GREATEST(0, FLOOR(EXTRACT(EPOCH FROM ($2::timestamptz - login_time))))::bigint
		 WHERE session_id = $1 AND is_active
		 RETURNING `+sessionColumns,
		sessionID, now,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to close session: %w", err)
	}
	return session, nil
}

// Touch はlast_activityを更新する。
func (r *PostgresSessionRepo) Touch(ctx context.Context, sessionID string, now time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE user_sessions SET last_activity = $2 WHERE session_id = $1`,
		sessionID, now,
	)
	if err != nil {
		return false, fmt.Errorf("failed to touch session: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

// CloseIdle は放置されたアクティブセッションをクローズする。
// 最後の操作時刻をログアウト時刻とみなして経過秒数を算出する。
func (r *PostgresSessionRepo) CloseIdle(ctx context.Context, idleBefore time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE user_sessions
		 SET is_active = false,
		     logout_time = last_activity,
		     duration = GREATEST(0, FLOOR(EXTRACT(EPOCH FROM (last_activity - login_time))))::bigint
		 WHERE is_active AND last_activity < $1`,
		idleBefore,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to close idle sessions: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows, nil
}

func scanSession(row rowScanner) (*model.Session, error) {
	s := &model.Session{}
	var logoutTime sql.NullTime
	var duration sql.NullInt64
	err := row.Scan(
		&s.ID, &s.SessionID, &s.UserID, &s.LoginTime, &logoutTime, &s.IsActive,
		&s.LastActivity, &duration,
		&s.IPAddress, &s.UserAgent, &s.Location, &s.Device, &s.Browser,
	)
	if err != nil {
		return nil, err
	}
	if logoutTime.Valid {
		s.LogoutTime = &logoutTime.Time
	}
	if duration.Valid {
		s.Duration = &duration.Int64
	}
	return s, nil
}

// compile-time interface check
var _ SessionRepository = (*PostgresSessionRepo)(nil)
