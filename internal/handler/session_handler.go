package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/resumetrack/internal/model"
	"github.com/hitoshi/resumetrack/internal/session"
)

// SessionService はセッションハンドラーが必要とするサービスインターフェース。
type SessionService interface {
	Open(ctx context.Context, userID int64, client model.ClientContext) (string, error)
	Close(ctx context.Context, userID int64, sessionID string) error
}

// SessionHandler はログインセッションの開始・終了を扱うHTTPハンドラー。
type SessionHandler struct {
	service SessionService
}

// NewSessionHandler はSessionHandlerを生成する。
func NewSessionHandler(service SessionService) *SessionHandler {
	return &SessionHandler{service: service}
}

type sessionRequest struct {
	Action    string `json:"action"`
	SessionID string `json:"sessionId"`
}

type sessionStartResponse struct {
	SessionID string `json:"sessionId"`
	Success   bool   `json:"success"`
}

type successResponse struct {
	Success bool `json:"success"`
}

// Handle はactionに応じてセッションを開始または終了する。
// POST /api/analytics/session
func (h *SessionHandler) Handle(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req sessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	switch req.Action {
	case "start":
		sessionID, err := h.service.Open(r.Context(), identity.UserID, session.ClientContextFromRequest(r))
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, sessionStartResponse{SessionID: sessionID, Success: true})

	case "end":
		if req.SessionID == "" {
			handleServiceError(w, r, model.NewMissingFieldError("sessionId"))
			return
		}
		if err := h.service.Close(r.Context(), identity.UserID, req.SessionID); err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, successResponse{Success: true})

	default:
		handleServiceError(w, r, model.NewInvalidSessionActionError(req.Action))
	}
}
