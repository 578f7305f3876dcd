package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// healthCheckTimeout は依存先1件あたりの疎通確認の上限時間。
const healthCheckTimeout = 2 * time.Second

// Pinger は依存先の疎通確認を行うインターフェース。*sql.DBが実装する。
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PingFunc は関数をPingerとして扱うためのアダプター。
type PingFunc func(ctx context.Context) error

// PingContext はPingerを実装する。
func (f PingFunc) PingContext(ctx context.Context) error {
	return f(ctx)
}

// HealthHandler はヘルスチェックを行うHTTPハンドラー。
// データベースの障害は503、Redisの障害は重複抑止が無効になるだけのためdegradedとして200を返す。
type HealthHandler struct {
	db    Pinger
	redis Pinger
}

// NewHealthHandler はHealthHandlerを生成する。redisはnilでもよい。
func NewHealthHandler(db, redis Pinger) *HealthHandler {
	return &HealthHandler{db: db, redis: redis}
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// ServeHTTP はhttp.Handlerを実装する。
// GET /health
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Checks: map[string]string{}}
	statusCode := http.StatusOK

	if err := ping(r.Context(), h.db); err != nil {
		slog.Error("database health check failed", slog.String("error", err.Error()))
		resp.Checks["database"] = "unavailable"
		resp.Status = "unavailable"
		statusCode = http.StatusServiceUnavailable
	} else {
		resp.Checks["database"] = "ok"
	}

	if h.redis != nil {
		if err := ping(r.Context(), h.redis); err != nil {
			slog.Warn("redis health check failed", slog.String("error", err.Error()))
			resp.Checks["redis"] = "unavailable"
			if statusCode == http.StatusOK {
				resp.Status = "degraded"
			}
		} else {
			resp.Checks["redis"] = "ok"
		}
	}

	writeJSON(w, statusCode, resp)
}

func ping(ctx context.Context, p Pinger) error {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()
	return p.PingContext(ctx)
}
