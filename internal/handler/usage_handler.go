package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/hitoshi/resumetrack/internal/middleware"
	"github.com/hitoshi/resumetrack/internal/model"
)

// QuotaService は利用上限ハンドラーが必要とするサービスインターフェース。
type QuotaService interface {
	CheckLimit(ctx context.Context, userID int64, action model.UsageAction) (model.Usage, error)
	Consume(ctx context.Context, userID int64, action model.UsageAction) (model.Usage, error)
}

// UsageHandler は月次利用上限の照会と消費を扱うHTTPハンドラー。
type UsageHandler struct {
	service QuotaService
}

// NewUsageHandler はUsageHandlerを生成する。
func NewUsageHandler(service QuotaService) *UsageHandler {
	return &UsageHandler{service: service}
}

type usageRequest struct {
	Type string `json:"type"`
}

type consumeResponse struct {
	Success bool          `json:"success"`
	Usage   usageResponse `json:"usage"`
}

// Check は利用状況を返す。カウンタは変更しない。
// 競合で上限を超過した場合、remainingは負になりうる。
// GET /api/analytics/usage?type=search|download
func (h *UsageHandler) Check(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	usage, err := h.service.CheckLimit(r.Context(), identity.UserID, model.UsageAction(r.URL.Query().Get("type")))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUsageResponse(usage))
}

// Consume は上限未満の場合のみ利用回数を1加算し、加算後の利用状況を返す。
// 上限に達している場合は429と残数・上限を返す。
// POST /api/analytics/usage
func (h *UsageHandler) Consume(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req usageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	usage, err := h.service.Consume(r.Context(), identity.UserID, model.UsageAction(req.Type))
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeQuotaExceeded {
			middleware.WriteQuotaExceededResponse(w, apiErr, usage)
			return
		}
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, consumeResponse{Success: true, Usage: toUsageResponse(usage)})
}
