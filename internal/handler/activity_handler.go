package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/hitoshi/resumetrack/internal/activity"
	"github.com/hitoshi/resumetrack/internal/analytics"
	"github.com/hitoshi/resumetrack/internal/model"
)

// ActivityRecorder はアクティビティ記録に必要なサービスインターフェース。
type ActivityRecorder interface {
	Record(ctx context.Context, userID int64, ev activity.Event) (bool, error)
}

// AnalyticsService は集計ハンドラーが必要とするサービスインターフェース。
type AnalyticsService interface {
	UserSummary(ctx context.Context, userID int64, windowDays int) (*analytics.UserAnalytics, error)
	SystemSummary(ctx context.Context, windowDays int) (*analytics.SystemSummary, error)
	MaxDays() int
}

// ActivityHandler はアクティビティの記録とユーザー単位の集計を扱うHTTPハンドラー。
type ActivityHandler struct {
	recorder  ActivityRecorder
	analytics AnalyticsService
}

// NewActivityHandler はActivityHandlerを生成する。
func NewActivityHandler(recorder ActivityRecorder, analytics AnalyticsService) *ActivityHandler {
	return &ActivityHandler{recorder: recorder, analytics: analytics}
}

type activityRequest struct {
	ActivityType    string          `json:"activityType"`
	Description     string          `json:"description"`
	SessionID       string          `json:"sessionId"`
	Metadata        json.RawMessage `json:"metadata"`
	SearchQuery     string          `json:"searchQuery"`
	JobCategory     string          `json:"jobCategory"`
	SkillsSearched  string          `json:"skillsSearched"`
	ExperienceLevel string          `json:"experienceLevel"`
	ResultsCount    *int            `json:"resultsCount"`
	TimeSpent       *int            `json:"timeSpent"`
	ResumeID        string          `json:"resumeId"`
	ResumeFileName  string          `json:"resumeFileName"`
	DownloadPath    string          `json:"downloadPath"`
	ViewDuration    *int            `json:"viewDuration"`
	PageURL         string          `json:"pageUrl"`
	FeatureUsed     string          `json:"featureUsed"`
}

func (req activityRequest) toEvent() activity.Event {
	metadata := req.Metadata
	if bytes.Equal(bytes.TrimSpace(metadata), []byte("null")) {
		metadata = nil
	}
	return activity.Event{
		SessionID:    req.SessionID,
		ActivityType: model.ActivityType(req.ActivityType),
		Description:  req.Description,
		ActivityDetails: model.ActivityDetails{
			Metadata:        metadata,
			SearchQuery:     req.SearchQuery,
			JobCategory:     req.JobCategory,
			SkillsSearched:  req.SkillsSearched,
			ExperienceLevel: req.ExperienceLevel,
			ResultsCount:    req.ResultsCount,
			TimeSpent:       req.TimeSpent,
			ResumeID:        req.ResumeID,
			ResumeFileName:  req.ResumeFileName,
			DownloadPath:    req.DownloadPath,
			ViewDuration:    req.ViewDuration,
			PageURL:         req.PageURL,
			FeatureUsed:     req.FeatureUsed,
		},
	}
}

type recordResponse struct {
	Success  bool `json:"success"`
	Recorded bool `json:"recorded"`
}

// Record はアクティビティを記録する。
// 重複として抑止された場合もsuccessはtrueで、recordedがfalseになる。
// POST /api/analytics/activity
func (h *ActivityHandler) Record(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req activityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	recorded, err := h.recorder.Record(r.Context(), identity.UserID, req.toEvent())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recordResponse{Success: true, Recorded: recorded})
}

// UserAnalytics は呼び出しユーザーの集計結果を返す。
// GET /api/analytics/activity?days=N
func (h *ActivityHandler) UserAnalytics(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	days, err := parseDays(r, h.analytics.MaxDays())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	result, err := h.analytics.UserSummary(r.Context(), identity.UserID, days)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserAnalyticsResponse(result))
}

// parseDays はクエリパラメータdaysを解析する。未指定の場合は既定値を返す。
// 範囲の検証は集計側で行う。
func parseDays(r *http.Request, maxDays int) (int, error) {
	raw := r.URL.Query().Get("days")
	if raw == "" {
		return analytics.DefaultWindowDays, nil
	}
	days, err := strconv.Atoi(raw)
	if err != nil {
		return 0, model.NewInvalidDaysError(0, maxDays)
	}
	return days, nil
}
