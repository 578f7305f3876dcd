// Package quota はユーザーごとの月次利用上限（検索・ダウンロード回数）を管理する。
//
// カウンタは暦月（UTC）単位で、月替わりはスケジューラではなく各操作時に
// users.updated_at との比較で検出してリセットする。
package quota

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/resumetrack/internal/metrics"
	"github.com/hitoshi/resumetrack/internal/model"
	"github.com/hitoshi/resumetrack/internal/repository"
)

// ShouldReset はlastUpdateとnowが異なる暦月（UTC）に属する場合にtrueを返す。
func ShouldReset(lastUpdate, now time.Time) bool {
	lastUpdate, now = lastUpdate.UTC(), now.UTC()
	return lastUpdate.Year() != now.Year() || lastUpdate.Month() != now.Month()
}

// Tracker は月次利用上限の判定と加算を行うサービス。
type Tracker struct {
	userRepo repository.UserRepository
	metrics  metrics.MetricsCollector
	now      func() time.Time
}

// NewTracker はTrackerを生成する。
func NewTracker(userRepo repository.UserRepository, m metrics.MetricsCollector) *Tracker {
	if m == nil {
		m = metrics.NopCollector{}
	}
	return &Tracker{
		userRepo: userRepo,
		metrics:  m,
		now:      time.Now,
	}
}

// CheckLimit は指定操作があと1回実行可能かどうかを返す。カウンタは加算しない。
// 月が替わっていれば先に両カウンタをリセットする。
func (t *Tracker) CheckLimit(ctx context.Context, userID int64, action model.UsageAction) (model.Usage, error) {
	if !action.IsValid() {
		return model.Usage{}, model.NewInvalidUsageTypeError(string(action))
	}

	user, err := t.loadCurrent(ctx, userID)
	if err != nil {
		return model.Usage{}, err
	}

	usage := model.UsageFor(user, action)
	t.metrics.RecordQuotaCheck(string(action), usage.Allowed)
	return usage, nil
}

// Increment は指定操作のカウンタを1加算する。上限の再検証は行わない。
// CheckLimitで許可を得た後、操作の成功時に呼び出す。
func (t *Tracker) Increment(ctx context.Context, userID int64, action model.UsageAction) error {
	if !action.IsValid() {
		return model.NewInvalidUsageTypeError(string(action))
	}

	if _, err := t.loadCurrent(ctx, userID); err != nil {
		return err
	}

	ok, err := t.userRepo.IncrementUsage(ctx, userID, action, t.now())
	if err != nil {
		return fmt.Errorf("利用回数の加算に失敗しました: %w", err)
	}
	if !ok {
		return model.NewUserNotFoundError()
	}

	t.metrics.RecordQuotaConsumed(string(action))
	return nil
}

// Consume は上限未満の場合のみカウンタを1加算し、加算後の利用状況を返す。
// 判定と加算は単一のUPDATE文で行うため、並行リクエストでも上限を超えない。
// 上限に達している場合は加算前の利用状況とQUOTA_EXCEEDEDエラーを返す。
func (t *Tracker) Consume(ctx context.Context, userID int64, action model.UsageAction) (model.Usage, error) {
	if !action.IsValid() {
		return model.Usage{}, model.NewInvalidUsageTypeError(string(action))
	}

	if _, err := t.loadCurrent(ctx, userID); err != nil {
		return model.Usage{}, err
	}

	updated, err := t.userRepo.ConsumeUsage(ctx, userID, action, t.now())
	if err != nil {
		return model.Usage{}, fmt.Errorf("利用回数の加算に失敗しました: %w", err)
	}
	if updated != nil {
		t.metrics.RecordQuotaConsumed(string(action))
		return model.UsageFor(updated, action), nil
	}

	// 加算されなかった: 上限到達かユーザー不在かを読み直して判別する
	user, err := t.userRepo.FindByID(ctx, userID)
	if err != nil {
		return model.Usage{}, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return model.Usage{}, model.NewUserNotFoundError()
	}

	t.metrics.RecordQuotaDenied(string(action))
	slog.Info("利用上限に達しました",
		slog.Int64("user_id", userID),
		slog.String("action", string(action)),
	)
	return model.UsageFor(user, action), model.NewQuotaExceededError(action)
}

// loadCurrent はユーザーを取得し、月が替わっていればカウンタをリセットした状態で返す。
func (t *Tracker) loadCurrent(ctx context.Context, userID int64) (*model.User, error) {
	user, err := t.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	now := t.now()
	if !ShouldReset(user.UpdatedAt, now) {
		return user, nil
	}

	reset, err := t.userRepo.ResetMonthlyUsage(ctx, userID, user.UpdatedAt, now)
	if err != nil {
		return nil, fmt.Errorf("月次カウンタのリセットに失敗しました: %w", err)
	}
	if reset {
		slog.Info("月次カウンタをリセットしました", slog.Int64("user_id", userID))
		user.CurrentMonthSearches = 0
		user.CurrentMonthDownloads = 0
		user.UpdatedAt = now
		return user, nil
	}

	// 並行リクエストが先にリセットまたは加算した。最新の状態を読み直す
	user, err = t.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}
