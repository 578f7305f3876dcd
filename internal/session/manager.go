// Package session はログインセッションのライフサイクルを管理する。
//
// セッションは NONE → ACTIVE → INACTIVE の順に遷移し、INACTIVEは終端状態。
// 再ログインは常に新しい行を作成する。
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/ksuid"

	"github.com/hitoshi/resumetrack/internal/metrics"
	"github.com/hitoshi/resumetrack/internal/model"
	"github.com/hitoshi/resumetrack/internal/repository"
)

const (
	loginDescription  = "User logged in"
	logoutDescription = "User logged out"
)

// Manager はセッションの開始・終了・最終操作時刻の更新を行う。
// セッションを扱う全ての呼び出し元で1つのインスタンスを共有する。
type Manager struct {
	sessions   repository.SessionRepository
	activities repository.ActivityRepository
	metrics    metrics.MetricsCollector
	newID      func() string
	now        func() time.Time
}

// NewManager はManagerを生成する。
// activitiesはLOGIN/LOGOUTの記録に使用し、nilの場合は記録しない。
func NewManager(
	sessions repository.SessionRepository,
	activities repository.ActivityRepository,
	m metrics.MetricsCollector,
) *Manager {
	if m == nil {
		m = metrics.NopCollector{}
	}
	return &Manager{
		sessions:   sessions,
		activities: activities,
		metrics:    m,
		newID:      func() string { return ksuid.New().String() },
		now:        time.Now,
	}
}

// Open はユーザーの既存のアクティブセッションを全てクローズし、新しいセッションを開始する。
// 並行するOpenとの一意制約違反は1回だけ再試行する。
func (m *Manager) Open(ctx context.Context, userID int64, client model.ClientContext) (string, error) {
	var (
		s      *model.Session
		closed []string
		err    error
	)
	for attempt := 0; attempt < 2; attempt++ {
		s = &model.Session{
			SessionID:     m.newID(),
			UserID:        userID,
			LoginTime:     m.now(),
			ClientContext: client,
		}
		closed, err = m.sessions.Open(ctx, s)
		if !errors.Is(err, repository.ErrActiveSessionConflict) {
			break
		}
		slog.Warn("セッション開始が競合したため再試行します",
			slog.Int64("user_id", userID),
			slog.Int("attempt", attempt+1),
		)
	}
	if err != nil {
		return "", fmt.Errorf("セッションの開始に失敗しました: %w", err)
	}

	m.metrics.RecordSessionOpened()
	slog.Info("セッションを開始しました",
		slog.Int64("user_id", userID),
		slog.String("session_id", s.SessionID),
		slog.Int("closed_sessions", len(closed)),
	)

	m.writeMarker(ctx, userID, s.SessionID, model.ActivityLogin, loginDescription, s.LoginTime)
	return s.SessionID, nil
}

// Close はセッションを終了する。冪等であり、終了済みのセッションに対しては何もしない。
// 存在しない、または他のユーザーのセッションの場合はSESSION_NOT_FOUNDを返す。
func (m *Manager) Close(ctx context.Context, userID int64, sessionID string) error {
	s, err := m.sessions.FindBySessionID(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("セッションの取得に失敗しました: %w", err)
	}
	if s == nil || s.UserID != userID {
		return model.NewSessionNotFoundError(sessionID)
	}
	if !s.IsActive {
		return nil
	}

	now := m.now()
	closed, err := m.sessions.Close(ctx, sessionID, now)
	if err != nil {
		return fmt.Errorf("セッションの終了に失敗しました: %w", err)
	}
	if closed == nil {
		// 並行するCloseまたはOpenが先にクローズした
		return nil
	}

	m.metrics.RecordSessionClosed()
	attrs := []any{
		slog.Int64("user_id", userID),
		slog.String("session_id", sessionID),
	}
	if closed.Duration != nil {
		attrs = append(attrs, slog.Int64("duration_seconds", *closed.Duration))
	}
	slog.Info("セッションを終了しました", attrs...)

	m.writeMarker(ctx, userID, sessionID, model.ActivityLogout, logoutDescription, now)
	return nil
}

// Touch はセッションの最終操作時刻を現在時刻に更新する。
func (m *Manager) Touch(ctx context.Context, sessionID string) error {
	ok, err := m.sessions.Touch(ctx, sessionID, m.now())
	if err != nil {
		return fmt.Errorf("セッションの更新に失敗しました: %w", err)
	}
	if !ok {
		return model.NewSessionNotFoundError(sessionID)
	}
	return nil
}

// CloseIdle は最終操作からidleFor以上経過したアクティブセッションをクローズし、件数を返す。
func (m *Manager) CloseIdle(ctx context.Context, idleFor time.Duration) (int64, error) {
	count, err := m.sessions.CloseIdle(ctx, m.now().Add(-idleFor))
	if err != nil {
		return 0, fmt.Errorf("放置セッションのクローズに失敗しました: %w", err)
	}
	if count > 0 {
		m.metrics.RecordSessionsSwept(count)
	}
	return count, nil
}

// writeMarker はLOGIN/LOGOUTをアクティビティとして記録する。
// 失敗してもセッション操作自体は成功として扱う。
func (m *Manager) writeMarker(ctx context.Context, userID int64, sessionID string, t model.ActivityType, description string, at time.Time) {
	if m.activities == nil {
		return
	}
	err := m.activities.Create(ctx, &model.Activity{
		UserID:       userID,
		SessionID:    sessionID,
		ActivityType: t,
		Description:  description,
		Timestamp:    at,
	})
	if err != nil {
		slog.Warn("セッション境界アクティビティの記録に失敗しました",
			slog.Int64("user_id", userID),
			slog.String("session_id", sessionID),
			slog.String("activity_type", string(t)),
			slog.String("error", err.Error()),
		)
		return
	}
	m.metrics.RecordActivityRecorded(string(t))
}
