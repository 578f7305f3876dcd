package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/hitoshi/resumetrack/internal/model"
)

// PostgresAnalyticsRepo はsqlxで集計用の読み取りクエリを実行するリポジトリ。
type PostgresAnalyticsRepo struct {
	db *sqlx.DB
}

// NewPostgresAnalyticsRepo はPostgresAnalyticsRepoを生成する。
func NewPostgresAnalyticsRepo(db *sqlx.DB) *PostgresAnalyticsRepo {
	return &PostgresAnalyticsRepo{db: db}
}

type sessionRow struct {
	ID           int64         `db:"id"`
	SessionID    string        `db:"session_id"`
	UserID       int64         `db:"user_id"`
	LoginTime    time.Time     `db:"login_time"`
	LogoutTime   sql.NullTime  `db:"logout_time"`
	IsActive     bool          `db:"is_active"`
	LastActivity time.Time     `db:"last_activity"`
	Duration     sql.NullInt64 `db:"duration"`
	IPAddress    string        `db:"ip_address"`
	UserAgent    string        `db:"user_agent"`
	Location     string        `db:"location"`
	Device       string        `db:"device"`
	Browser      string        `db:"browser"`
}

func (r sessionRow) toModel() model.Session {
	s := model.Session{
		ID:           r.ID,
		SessionID:    r.SessionID,
		UserID:       r.UserID,
		LoginTime:    r.LoginTime,
		IsActive:     r.IsActive,
		LastActivity: r.LastActivity,
		ClientContext: model.ClientContext{
			IPAddress: r.IPAddress,
			UserAgent: r.UserAgent,
			Location:  r.Location,
			Device:    r.Device,
			Browser:   r.Browser,
		},
	}
	if r.LogoutTime.Valid {
		t := r.LogoutTime.Time
		s.LogoutTime = &t
	}
	if r.Duration.Valid {
		d := r.Duration.Int64
		s.Duration = &d
	}
	return s
}

type activityRow struct {
	ID              int64          `db:"id"`
	UserID          int64          `db:"user_id"`
	SessionID       string         `db:"session_id"`
	ActivityType    string         `db:"activity_type"`
	Description     string         `db:"description"`
	Timestamp       time.Time      `db:"timestamp"`
	Metadata        []byte         `db:"metadata"`
	SearchQuery     sql.NullString `db:"search_query"`
	JobCategory     sql.NullString `db:"job_category"`
	SkillsSearched  sql.NullString `db:"skills_searched"`
	ExperienceLevel sql.NullString `db:"experience_level"`
	ResultsCount    sql.NullInt32  `db:"results_count"`
	TimeSpent       sql.NullInt32  `db:"time_spent"`
	ResumeID        sql.NullString `db:"resume_id"`
	ResumeFileName  sql.NullString `db:"resume_file_name"`
	DownloadPath    sql.NullString `db:"download_path"`
	ViewDuration    sql.NullInt32  `db:"view_duration"`
	PageURL         sql.NullString `db:"page_url"`
	FeatureUsed     sql.NullString `db:"feature_used"`
}

func (r activityRow) toModel() model.Activity {
	a := model.Activity{
		ID:           r.ID,
		UserID:       r.UserID,
		SessionID:    r.SessionID,
		ActivityType: model.ActivityType(r.ActivityType),
		Description:  r.Description,
		Timestamp:    r.Timestamp,
		ActivityDetails: model.ActivityDetails{
			SearchQuery:     r.SearchQuery.String,
			JobCategory:     r.JobCategory.String,
			SkillsSearched:  r.SkillsSearched.String,
			ExperienceLevel: r.ExperienceLevel.String,
			ResultsCount:    nullIntPtr(r.ResultsCount),
			TimeSpent:       nullIntPtr(r.TimeSpent),
			ResumeID:        r.ResumeID.String,
			ResumeFileName:  r.ResumeFileName.String,
			DownloadPath:    r.DownloadPath.String,
			ViewDuration:    nullIntPtr(r.ViewDuration),
			PageURL:         r.PageURL.String,
			FeatureUsed:     r.FeatureUsed.String,
		},
	}
	if len(r.Metadata) > 0 {
		a.Metadata = json.RawMessage(r.Metadata)
	}
	return a
}

func nullIntPtr(n sql.NullInt32) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int32)
	return &v
}

// ListSessionsSince はsince以降に開始したセッションをlogin_time降順で返す。
func (r *PostgresAnalyticsRepo) ListSessionsSince(ctx context.Context, userID int64, since time.Time) ([]model.Session, error) {
	var rows []sessionRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT `+sessionColumns+`
		 FROM user_sessions
		 WHERE user_id = $1 AND login_time >= $2
		 ORDER BY login_time DESC`,
		userID, since,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	sessions := make([]model.Session, len(rows))
	for i, row := range rows {
		sessions[i] = row.toModel()
	}
	return sessions, nil
}

// ListActivitiesSince はsince以降のアクティビティをtimestamp降順で返す。
func (r *PostgresAnalyticsRepo) ListActivitiesSince(ctx context.Context, userID int64, since time.Time) ([]model.Activity, error) {
	var rows []activityRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT id, user_id, session_id, activity_type, description, timestamp, metadata,
		        search_query, job_category, skills_searched, experience_level,
		        results_count, time_spent, resume_id, resume_file_name, download_path,
		        view_duration, page_url, feature_used
		 FROM user_activities
		 WHERE user_id = $1 AND timestamp >= $2
		 ORDER BY timestamp DESC, id DESC`,
		userID, since,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list activities: %w", err)
	}

	activities := make([]model.Activity, len(rows))
	for i, row := range rows {
		activities[i] = row.toModel()
	}
	return activities, nil
}

// SystemCounts はsince以降のシステム全体の件数を1クエリで返す。
// activeUsersはsince以降にセッションを開始したユーザーの重複なし件数。
func (r *PostgresAnalyticsRepo) SystemCounts(ctx context.Context, since time.Time) (*SystemCounts, error) {
	var counts SystemCounts
	err := r.db.GetContext(ctx, &counts,
		`SELECT
		   (SELECT COUNT(*) FROM users) AS total_users,
		   (SELECT COUNT(DISTINCT user_id) FROM user_sessions WHERE login_time >= $1) AS active_users,
		   (SELECT COUNT(*) FROM users WHERE created_at >= $1) AS new_registrations,
		   (SELECT COUNT(*) FROM user_sessions WHERE login_time >= $1) AS total_sessions,
		   (SELECT COUNT(*) FROM user_activities WHERE timestamp >= $1) AS total_activities,
		   (SELECT COUNT(*) FROM user_activities WHERE timestamp >= $1 AND activity_type = 'SEARCH_RESUME') AS total_searches,
		   (SELECT COUNT(*) FROM user_activities WHERE timestamp >= $1 AND activity_type = 'DOWNLOAD_RESUME') AS total_downloads,
		   (SELECT COUNT(*) FROM user_activities WHERE timestamp >= $1 AND activity_type = 'UPLOAD_RESUME') AS total_uploads`,
		since,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to count system analytics: %w", err)
	}
	return &counts, nil
}

// compile-time interface check
var _ AnalyticsRepository = (*PostgresAnalyticsRepo)(nil)
