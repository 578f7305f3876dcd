package handler

import (
	"log/slog"
	"net/http"

	"github.com/hitoshi/resumetrack/internal/model"
)

// SystemHandler はシステム全体の集計を扱うHTTPハンドラー。管理者のみ利用できる。
type SystemHandler struct {
	analytics AnalyticsService
}

// NewSystemHandler はSystemHandlerを生成する。
func NewSystemHandler(analytics AnalyticsService) *SystemHandler {
	return &SystemHandler{analytics: analytics}
}

// Summary はシステム全体の集計結果を返す。
// GET /api/analytics/system?days=N
func (h *SystemHandler) Summary(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if !identity.IsAdmin() {
		slog.Warn("non-admin requested system analytics", slog.Int64("user_id", identity.UserID))
		handleServiceError(w, r, model.NewForbiddenError())
		return
	}

	days, err := parseDays(r, h.analytics.MaxDays())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	result, err := h.analytics.SystemSummary(r.Context(), days)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSystemSummaryResponse(result))
}
