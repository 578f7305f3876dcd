// Package cleanup は放置されたセッションを定期的にクローズするジョブを提供する。
// ブラウザを閉じたなどで明示的に終了されなかったセッションを、
// 最終操作時刻をログアウト時刻としてINACTIVEに遷移させる。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultIdleTimeout は放置とみなすまでの既定の経過時間。
const DefaultIdleTimeout = 30 * time.Minute

// IdleSessionCloser は放置セッションのクローズを抽象化するインターフェース。
// session.Managerが実装する。
type IdleSessionCloser interface {
	CloseIdle(ctx context.Context, idleFor time.Duration) (int64, error)
}

// SweepJob は放置セッションのクローズジョブ。
// 何度実行しても、クローズ済みのセッションには影響しない。
type SweepJob struct {
	closer      IdleSessionCloser
	logger      *slog.Logger
	IdleTimeout time.Duration
}

// NewSweepJob は新しいSweepJobを生成する。
// idleTimeoutが0以下の場合はDefaultIdleTimeoutを使用する。
func NewSweepJob(closer IdleSessionCloser, logger *slog.Logger, idleTimeout time.Duration) *SweepJob {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SweepJob{
		closer:      closer,
		logger:      logger,
		IdleTimeout: idleTimeout,
	}
}

// Run は放置セッションを1回クローズする。
func (j *SweepJob) Run(ctx context.Context) error {
	start := time.Now()

	closed, err := j.closer.CloseIdle(ctx, j.IdleTimeout)
	if err != nil {
		j.logger.Error("放置セッションのクローズに失敗しました",
			slog.String("error", err.Error()),
			slog.Duration("idle_timeout", j.IdleTimeout),
		)
		return fmt.Errorf("放置セッションのクローズに失敗: %w", err)
	}

	j.logger.Info("放置セッションのクローズが完了しました",
		slog.Int64("closed_count", closed),
		slog.Duration("idle_timeout", j.IdleTimeout),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

// Start はinterval間隔でRunを繰り返す。起動直後に1回実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (j *SweepJob) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("放置セッションのクローズジョブを開始しました",
		slog.Duration("interval", interval),
		slog.Duration("idle_timeout", j.IdleTimeout),
	)

	// 失敗は次のサイクルで再試行する
	_ = j.Run(ctx)

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("放置セッションのクローズジョブを停止しました")
			return
		case <-ticker.C:
			_ = j.Run(ctx)
		}
	}
}
