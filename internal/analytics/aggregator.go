// Package analytics はセッションとアクティビティから利用状況の集計値を算出する。
// 読み取り専用で、ストアへの書き込みは行わない。
package analytics

import (
	"context"
	"fmt"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/resumetrack/internal/model"
	"github.com/hitoshi/resumetrack/internal/quota"
	"github.com/hitoshi/resumetrack/internal/repository"
)

const (
	// DefaultWindowDays はdays未指定時の集計期間。
	DefaultWindowDays = 30
	// DefaultMaxWindowDays は集計期間の既定の上限。
	DefaultMaxWindowDays = 365

	recentActivityLimit = 20
	recentSessionLimit  = 10
)

// Summary はユーザー単位の集計値。
type Summary struct {
	TotalSessions      int
	TotalActivities    int
	TotalSearches      int
	TotalDownloads     int
	TotalViews         int
	AvgSessionDuration int64
	TotalTimeSpent     int64
}

// UserAnalytics はユーザー単位の集計結果。
type UserAnalytics struct {
	User             *model.User
	Summary          Summary
	RecentActivities []model.Activity
	RecentSessions   []model.Session
}

// SystemSummary はシステム全体の集計結果。
type SystemSummary struct {
	WindowDays       int
	TotalUsers       int64
	ActiveUsers      int64
	NewRegistrations int64
	TotalSessions    int64
	TotalActivities  int64
	TotalSearches    int64
	TotalDownloads   int64
	TotalUploads     int64
}

// Aggregator は集計期間の検証と集計を行う。
type Aggregator struct {
	analytics repository.AnalyticsRepository
	users     repository.UserRepository
	maxDays   int
	now       func() time.Time
}

// NewAggregator はAggregatorを生成する。maxDaysが0以下の場合はDefaultMaxWindowDaysを使う。
func NewAggregator(analytics repository.AnalyticsRepository, users repository.UserRepository, maxDays int) *Aggregator {
	if maxDays <= 0 {
		maxDays = DefaultMaxWindowDays
	}
	return &Aggregator{
		analytics: analytics,
		users:     users,
		maxDays:   maxDays,
		now:       time.Now,
	}
}

// MaxDays は受け付ける集計期間の上限を返す。
func (a *Aggregator) MaxDays() int {
	return a.maxDays
}

// UserSummary は直近windowDays日のユーザーの利用状況を集計する。
func (a *Aggregator) UserSummary(ctx context.Context, userID int64, windowDays int) (*UserAnalytics, error) {
	since, err := a.windowStart(windowDays)
	if err != nil {
		return nil, err
	}

	var (
		user       *model.User
		sessions   []model.Session
		activities []model.Activity
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		user, err = a.users.FindByID(gctx, userID)
		if err != nil {
			return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		sessions, err = a.analytics.ListSessionsSince(gctx, userID, since)
		if err != nil {
			return fmt.Errorf("セッションの取得に失敗しました: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		activities, err = a.analytics.ListActivitiesSince(gctx, userID, since)
		if err != nil {
			return fmt.Errorf("アクティビティの取得に失敗しました: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	return &UserAnalytics{
		User:             currentMonthView(user, a.now()),
		Summary:          Summarize(sessions, activities),
		RecentActivities: head(activities, recentActivityLimit),
		RecentSessions:   head(sessions, recentSessionLimit),
	}, nil
}

// currentMonthView は前月以前の利用カウンタを0とみなしたユーザーのコピーを返す。
// ストアのリセットは次回の利用時にquota.Trackerが行う。
func currentMonthView(u *model.User, now time.Time) *model.User {
	cp := *u
	if quota.ShouldReset(cp.UpdatedAt, now) {
		cp.CurrentMonthSearches = 0
		cp.CurrentMonthDownloads = 0
	}
	return &cp
}

// SystemSummary は直近windowDays日のシステム全体の利用状況を集計する。
// 呼び出し側で管理者権限を確認すること。
func (a *Aggregator) SystemSummary(ctx context.Context, windowDays int) (*SystemSummary, error) {
	since, err := a.windowStart(windowDays)
	if err != nil {
		return nil, err
	}

	counts, err := a.analytics.SystemCounts(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("システム集計に失敗しました: %w", err)
	}

	return &SystemSummary{
		WindowDays:       windowDays,
		TotalUsers:       counts.TotalUsers,
		ActiveUsers:      counts.ActiveUsers,
		NewRegistrations: counts.NewRegistrations,
		TotalSessions:    counts.TotalSessions,
		TotalActivities:  counts.TotalActivities,
		TotalSearches:    counts.TotalSearches,
		TotalDownloads:   counts.TotalDownloads,
		TotalUploads:     counts.TotalUploads,
	}, nil
}

// Summarize はセッションとアクティビティの一覧から集計値を算出する。
// 平均セッション時間は未クローズのセッションを0秒として数え、四捨五入する。
// セッションが0件の場合は0を返す。
func Summarize(sessions []model.Session, activities []model.Activity) Summary {
	s := Summary{
		TotalSessions:   len(sessions),
		TotalActivities: len(activities),
	}

	var totalDuration int64
	for _, sess := range sessions {
		if sess.Duration != nil {
			totalDuration += *sess.Duration
		}
	}
	if len(sessions) > 0 {
		s.AvgSessionDuration = int64(math.Round(float64(totalDuration) / float64(len(sessions))))
	}

	for _, act := range activities {
		switch act.ActivityType {
		case model.ActivitySearchResume:
			s.TotalSearches++
		case model.ActivityDownloadResume:
			s.TotalDownloads++
		case model.ActivityViewResume:
			s.TotalViews++
		}
		if act.TimeSpent != nil {
			s.TotalTimeSpent += int64(*act.TimeSpent)
		}
	}
	return s
}

func (a *Aggregator) windowStart(windowDays int) (time.Time, error) {
	if windowDays < 1 || windowDays > a.maxDays {
		return time.Time{}, model.NewInvalidDaysError(windowDays, a.maxDays)
	}
	return a.now().AddDate(0, 0, -windowDays), nil
}

func head[T any](items []T, n int) []T {
	if len(items) > n {
		return items[:n]
	}
	return items
}
