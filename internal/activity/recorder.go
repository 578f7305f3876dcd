// Package activity はユーザー操作のアクティビティログを記録する。
//
// アクティビティログは追記のみの監査ログで、少なくとも1回の記録を保証する。
// 短時間の重複は抑止するが、すり抜けた重複は集計側で許容する。
package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/resumetrack/internal/metrics"
	"github.com/hitoshi/resumetrack/internal/model"
	"github.com/hitoshi/resumetrack/internal/repository"
	"github.com/hitoshi/resumetrack/internal/security"
)

// SessionToucher はセッションの最終操作時刻を更新するインターフェース。
// session.Managerが実装する。
type SessionToucher interface {
	Touch(ctx context.Context, sessionID string) error
}

// Event はクライアントから送信されるアクティビティ。
type Event struct {
	SessionID    string
	ActivityType model.ActivityType
	Description  string
	model.ActivityDetails
}

// Recorder はアクティビティの検証・重複抑止・保存を行う。
type Recorder struct {
	activities repository.ActivityRepository
	sessions   repository.SessionRepository
	toucher    SessionToucher
	dedup      Deduplicator
	sanitizer  security.ContentSanitizerService
	metrics    metrics.MetricsCollector
	now        func() time.Time
}

// NewRecorder はRecorderを生成する。dedupがnilの場合は重複抑止を行わない。
func NewRecorder(
	activities repository.ActivityRepository,
	sessions repository.SessionRepository,
	toucher SessionToucher,
	dedup Deduplicator,
	sanitizer security.ContentSanitizerService,
	m metrics.MetricsCollector,
) *Recorder {
	if m == nil {
		m = metrics.NopCollector{}
	}
	return &Recorder{
		activities: activities,
		sessions:   sessions,
		toucher:    toucher,
		dedup:      dedup,
		sanitizer:  sanitizer,
		metrics:    m,
		now:        time.Now,
	}
}

// Record はアクティビティを検証して保存する。
// 保存した場合はtrue、重複として抑止した場合はfalseを返す。
// セッションが存在しない、または他のユーザーのものである場合は何も保存しない。
func (r *Recorder) Record(ctx context.Context, userID int64, ev Event) (bool, error) {
	if err := validate(ev); err != nil {
		return false, err
	}

	s, err := r.sessions.FindBySessionID(ctx, ev.SessionID)
	if err != nil {
		return false, fmt.Errorf("セッションの取得に失敗しました: %w", err)
	}
	if s == nil || s.UserID != userID {
		return false, model.NewSessionNotFoundError(ev.SessionID)
	}

	a := &model.Activity{
		UserID:          userID,
		SessionID:       ev.SessionID,
		ActivityType:    ev.ActivityType,
		Description:     ev.Description,
		Timestamp:       r.now(),
		ActivityDetails: ev.ActivityDetails,
	}
	r.sanitize(a)
	if a.Description == "" {
		return false, model.NewMissingFieldError("description")
	}

	duplicate, claimedKey := r.claim(ctx, userID, ev)
	if duplicate {
		r.metrics.RecordActivitySuppressed(string(ev.ActivityType))
		slog.Debug("重複アクティビティを抑止しました",
			slog.Int64("user_id", userID),
			slog.String("activity_type", string(ev.ActivityType)),
		)
		return false, nil
	}

	if err := r.activities.Create(ctx, a); err != nil {
		r.release(ctx, claimedKey)
		return false, fmt.Errorf("アクティビティの保存に失敗しました: %w", err)
	}
	r.metrics.RecordActivityRecorded(string(a.ActivityType))

	if err := r.toucher.Touch(ctx, ev.SessionID); err != nil {
		slog.Warn("セッションの最終操作時刻の更新に失敗しました",
			slog.String("session_id", ev.SessionID),
			slog.String("error", err.Error()),
		)
	}
	return true, nil
}

func validate(ev Event) error {
	var missing []string
	if ev.ActivityType == "" {
		missing = append(missing, "activityType")
	}
	if ev.Description == "" {
		missing = append(missing, "description")
	}
	if ev.SessionID == "" {
		missing = append(missing, "sessionId")
	}
	if len(missing) > 0 {
		return model.NewMissingFieldError(missing...)
	}
	if !ev.ActivityType.IsValid() {
		return model.NewInvalidActivityTypeError(string(ev.ActivityType))
	}
	if len(ev.Metadata) > 0 && !json.Valid(ev.Metadata) {
		return model.NewInvalidRequestError()
	}
	for _, v := range []*int{ev.ResultsCount, ev.TimeSpent, ev.ViewDuration} {
		if v != nil && *v < 0 {
			return model.NewInvalidRequestError()
		}
	}
	return nil
}

// claim はウィンドウ内に同じ操作が記録済みかどうかを返す。
// 記録権を取得した場合はそのキーを返す。重複判定ストアの障害時は重複なしとして扱う。
func (r *Recorder) claim(ctx context.Context, userID int64, ev Event) (duplicate bool, key string) {
	if r.dedup == nil {
		return false, ""
	}
	key = eventDedupKey(userID, ev)
	claimed, err := r.dedup.Claim(ctx, key)
	if err != nil {
		slog.Warn("重複判定に失敗したため記録を続行します", slog.String("error", err.Error()))
		return false, ""
	}
	if !claimed {
		return true, ""
	}
	return false, key
}

// release は保存に失敗した操作のキーを解放し、再送が重複として抑止されないようにする。
func (r *Recorder) release(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := r.dedup.Release(ctx, key); err != nil {
		slog.Warn("重複判定キーの解放に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}

func (r *Recorder) sanitize(a *model.Activity) {
	if r.sanitizer == nil {
		return
	}
	for _, field := range []*string{
		&a.Description,
		&a.SearchQuery,
		&a.JobCategory,
		&a.SkillsSearched,
		&a.ExperienceLevel,
		&a.ResumeFileName,
		&a.FeatureUsed,
	} {
		*field = r.sanitizer.Sanitize(*field)
	}
}
