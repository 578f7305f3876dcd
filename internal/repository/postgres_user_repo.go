package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/resumetrack/internal/model"
)

const userColumns = `id, email, name, role,
	monthly_search_limit, monthly_download_limit,
	current_month_searches, current_month_downloads,
	created_at, updated_at`

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id int64) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return user, nil
}

// ResetMonthlyUsage は当月カウンタを0に戻す。
// updated_atがlastSeenのままの場合のみ更新するため、並行するリセットや加算を上書きしない。
func (r *PostgresUserRepo) ResetMonthlyUsage(ctx context.Context, id int64, lastSeen, now time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users
		 SET current_month_searches = 0, current_month_downloads = 0, updated_at = $2
		 WHERE id = $1 AND updated_at = $3`,
		id, now, lastSeen,
	)
	if err != nil {
		return false, fmt.Errorf("failed to reset monthly usage: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

// IncrementUsage は指定操作のカウンタを原子的に1加算する。
func (r *PostgresUserRepo) IncrementUsage(ctx context.Context, id int64, action model.UsageAction, now time.Time) (bool, error) {
	counter, _, err := usageColumns(action)
	if err != nil {
		return false, err
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET `+counter+` = `+counter+` + 1, updated_at = $2 WHERE id = $1`,
		id, now,
	)
	if err != nil {
		return false, fmt.Errorf("failed to increment usage: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

// ConsumeUsage はカウンタが上限未満の場合のみ1加算する。
// 判定と加算を1つのUPDATE文で行うため、並行リクエストでも上限を超えない。
func (r *PostgresUserRepo) ConsumeUsage(ctx context.Context, id int64, action model.UsageAction, now time.Time) (*model.User, error) {
	counter, limit, err := usageColumns(action)
	if err != nil {
		return nil, err
	}

	user, err := scanUser(r.db.QueryRowContext(ctx,
		`UPDATE users SET `+counter+` = `+counter+` + 1, updated_at = $2
		 WHERE id = $1 AND `+counter+` < `+limit+`
		 RETURNING `+userColumns,
		id, now,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to consume usage: %w", err)
	}
	return user, nil
}

// usageColumns は操作種別に対応するカウンタ列と上限列を返す。
// 列名はこの対応表からのみ決定し、外部入力をSQLに埋め込まない。
func usageColumns(action model.UsageAction) (counter, limit string, err error) {
	switch action {
	case model.UsageSearch:
		return "current_month_searches", "monthly_search_limit", nil
	case model.UsageDownload:
		return "current_month_downloads", "monthly_download_limit", nil
	}
	return "", "", fmt.Errorf("unsupported usage action: %q", action)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	user := &model.User{}
	var role string
	err := row.Scan(
		&user.ID, &user.Email, &user.Name, &role,
		&user.MonthlySearchLimit, &user.MonthlyDownloadLimit,
		&user.CurrentMonthSearches, &user.CurrentMonthDownloads,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	user.Role = model.Role(role)
	return user, nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
