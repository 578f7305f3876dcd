package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/resumetrack/internal/model"
)

// PostgresActivityRepo はPostgreSQLを使用したアクティビティリポジトリ。
type PostgresActivityRepo struct {
	db *sql.DB
}

// NewPostgresActivityRepo はPostgresActivityRepoを生成する。
func NewPostgresActivityRepo(db *sql.DB) *PostgresActivityRepo {
	return &PostgresActivityRepo{db: db}
}

// Create はアクティビティを追加する。
// session_idの外部キー制約により、存在しないセッションへの記録は失敗する。
func (r *PostgresActivityRepo) Create(ctx context.Context, a *model.Activity) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO user_activities
		   (user_id, session_id, activity_type, description, timestamp, metadata,
		    search_query, job_category, skills_searched, experience_level,
		    results_count, time_spent, resume_id, resume_file_name, download_path,
		    view_duration, page_url, feature_used)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		 RETURNING id`,
		a.UserID, a.SessionID, string(a.ActivityType), a.Description, a.Timestamp, nullJSON(a.Metadata),
		nullString(a.SearchQuery), nullString(a.JobCategory), nullString(a.SkillsSearched), nullString(a.ExperienceLevel),
		a.ResultsCount, a.TimeSpent, nullString(a.ResumeID), nullString(a.ResumeFileName), nullString(a.DownloadPath),
		a.ViewDuration, nullString(a.PageURL), nullString(a.FeatureUsed),
	).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("failed to insert activity: %w", err)
	}
	return nil
}

// nullString は空文字列をNULLとして扱う。
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// nullJSON は空のJSONをNULLとして扱う。
func nullJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

// compile-time interface check
var _ ActivityRepository = (*PostgresActivityRepo)(nil)
