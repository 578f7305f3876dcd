// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/hitoshi/resumetrack/internal/model"
)

// UserRepository はユーザーの利用上限フィールドを扱う永続化インターフェース。
// ユーザーの作成・削除はID基盤の責務であり、ここでは扱わない。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.User, error)

	// ResetMonthlyUsage は当月カウンタを0に戻し、updated_atをnowに更新する。
	// 読み取り時点のupdated_at（lastSeen）から変化していない場合のみ更新する。
	// 別リクエストが先にリセット・加算していた場合はfalseを返す。
	ResetMonthlyUsage(ctx context.Context, id int64, lastSeen, now time.Time) (bool, error)

	// IncrementUsage は指定操作のカウンタをSQL上で原子的に1加算する。
	// 上限の再検証は行わない。ユーザーが存在しない場合はfalseを返す。
	IncrementUsage(ctx context.Context, id int64, action model.UsageAction, now time.Time) (bool, error)

	// ConsumeUsage はカウンタが上限未満の場合のみ1加算し、更新後のユーザーを返す。
	// 上限に達している、またはユーザーが存在しない場合はnilを返す。
	ConsumeUsage(ctx context.Context, id int64, action model.UsageAction, now time.Time) (*model.User, error)
}

// SessionRepository はログインセッションの永続化インターフェース。
type SessionRepository interface {
	// Open はユーザーのアクティブなセッションを全てクローズし、新しいセッションを作成する。
	// 同一トランザクションで実行し、クローズしたセッションIDを返す。
	Open(ctx context.Context, session *model.Session) ([]string, error)

	// FindBySessionID はセッションIDでセッションを取得する。見つからない場合はnilを返す。
	FindBySessionID(ctx context.Context, sessionID string) (*model.Session, error)

	// Close はアクティブなセッションをクローズし、クローズ後のセッションを返す。
	// 既にクローズ済み、または存在しない場合はnilを返す。
	Close(ctx context.Context, sessionID string, now time.Time) (*model.Session, error)

	// Touch はlast_activityをnowに更新する。セッションが存在しない場合はfalseを返す。
	Touch(ctx context.Context, sessionID string, now time.Time) (bool, error)

	// CloseIdle はlast_activityがidleBeforeより古いアクティブセッションをクローズする。
	// logout_timeにはlast_activityを用い、クローズした件数を返す。
	CloseIdle(ctx context.Context, idleBefore time.Time) (int64, error)
}

// ActivityRepository はアクティビティログの永続化インターフェース。
// 追記のみで、更新・削除は提供しない。
type ActivityRepository interface {
	// Create はアクティビティを追加し、採番されたIDを設定する。
	Create(ctx context.Context, activity *model.Activity) error
}

// AnalyticsRepository は集計用の読み取り専用インターフェース。
type AnalyticsRepository interface {
	// ListSessionsSince はsince以降に開始したユーザーのセッションをlogin_time降順で返す。
	ListSessionsSince(ctx context.Context, userID int64, since time.Time) ([]model.Session, error)

	// ListActivitiesSince はsince以降のユーザーのアクティビティをtimestamp降順で返す。
	ListActivitiesSince(ctx context.Context, userID int64, since time.Time) ([]model.Activity, error)

	// SystemCounts はsince以降のシステム全体の件数を返す。
	SystemCounts(ctx context.Context, since time.Time) (*SystemCounts, error)
}

// SystemCounts はシステム全体の集計値。
type SystemCounts struct {
	TotalUsers       int64 `db:"total_users"`
	ActiveUsers      int64 `db:"active_users"`
	NewRegistrations int64 `db:"new_registrations"`
	TotalSessions    int64 `db:"total_sessions"`
	TotalActivities  int64 `db:"total_activities"`
	TotalSearches    int64 `db:"total_searches"`
	TotalDownloads   int64 `db:"total_downloads"`
	TotalUploads     int64 `db:"total_uploads"`
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
