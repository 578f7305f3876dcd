package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/resumetrack/internal/model"
)

func TestSessionHandler_Start_Success(t *testing.T) {
	var gotClient model.ClientContext
	svc := &mockSessionService{
		openFn: func(ctx context.Context, userID int64, client model.ClientContext) (string, error) {
			if userID != 42 {
				t.Errorf("userID = %d, want 42", userID)
			}
			gotClient = client
			return "2HkSessionKsuid", nil
		},
	}
	h := NewSessionHandler(svc)

	req := newRequest(t, http.MethodPost, "/api/analytics/session", userIdentity(42), map[string]string{"action": "start"})
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36")
	req.Header.Set("X-Geo-Location", "Tokyo, JP")
	req.RemoteAddr = "203.0.113.9:51234"
	w := httptest.NewRecorder()

	h.Handle(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var body sessionStartResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body.SessionID != "2HkSessionKsuid" || !body.Success {
		t.Errorf("body = %+v", body)
	}

	if gotClient.IPAddress != "203.0.113.9" {
		t.Errorf("IPAddress = %q, want %q", gotClient.IPAddress, "203.0.113.9")
	}
	if gotClient.Device != "Desktop" || gotClient.Browser != "Chrome" {
		t.Errorf("device/browser = %q/%q, want Desktop/Chrome", gotClient.Device, gotClient.Browser)
	}
	if gotClient.Location != "Tokyo, JP" {
		t.Errorf("Location = %q, want %q", gotClient.Location, "Tokyo, JP")
	}
}

func TestSessionHandler_End_Success(t *testing.T) {
	called := false
	svc := &mockSessionService{
		closeFn: func(ctx context.Context, userID int64, sessionID string) error {
			called = true
			if userID != 42 || sessionID != "S1" {
				t.Errorf("Close(%d, %q), want (42, %q)", userID, sessionID, "S1")
			}
			return nil
		},
	}
	h := NewSessionHandler(svc)

	w := httptest.NewRecorder()
	h.Handle(w, newRequest(t, http.MethodPost, "/api/analytics/session", userIdentity(42),
		map[string]string{"action": "end", "sessionId": "S1"}))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !called {
		t.Error("Close should be called")
	}
	var body successResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil || !body.Success {
		t.Errorf("body = %+v, err = %v", body, err)
	}
}

func TestSessionHandler_Errors(t *testing.T) {
	tests := []struct {
		name       string
		identity   *model.Identity
		body       any
		closeErr   error
		openErr    error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "識別情報なし",
			body:       map[string]string{"action": "start"},
			wantStatus: http.StatusUnauthorized,
			wantCode:   model.ErrCodeUnauthorized,
		},
		{
			name:       "不正なJSON",
			identity:   userIdentity(1),
			body:       "{not json",
			wantStatus: http.StatusBadRequest,
			wantCode:   model.ErrCodeInvalidRequest,
		},
		{
			name:       "終了時のsessionId欠落",
			identity:   userIdentity(1),
			body:       map[string]string{"action": "end"},
			wantStatus: http.StatusBadRequest,
			wantCode:   model.ErrCodeMissingField,
		},
		{
			name:       "未知のaction",
			identity:   userIdentity(1),
			body:       map[string]string{"action": "pause"},
			wantStatus: http.StatusBadRequest,
			wantCode:   model.ErrCodeInvalidSessionAction,
		},
		{
			name:       "存在しないセッション",
			identity:   userIdentity(1),
			body:       map[string]string{"action": "end", "sessionId": "missing"},
			closeErr:   model.NewSessionNotFoundError("missing"),
			wantStatus: http.StatusNotFound,
			wantCode:   model.ErrCodeSessionNotFound,
		},
		{
			name:       "ストア障害",
			identity:   userIdentity(1),
			body:       map[string]string{"action": "start"},
			openErr:    errors.New("connection refused"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "INTERNAL_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockSessionService{
				openFn: func(ctx context.Context, userID int64, client model.ClientContext) (string, error) {
					return "S", tt.openErr
				},
				closeFn: func(ctx context.Context, userID int64, sessionID string) error {
					return tt.closeErr
				},
			}
			h := NewSessionHandler(svc)

			w := httptest.NewRecorder()
			h.Handle(w, newRequest(t, http.MethodPost, "/api/analytics/session", tt.identity, tt.body))

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if body := decodeError(t, w); body.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", body.Code, tt.wantCode)
			}
		})
	}
}

func TestSessionHandler_InternalErrorHidesDetail(t *testing.T) {
	svc := &mockSessionService{
		openFn: func(ctx context.Context, userID int64, client model.ClientContext) (string, error) {
			return "", errors.New("pq: password authentication failed for user \"resumetrack\"")
		},
	}
	h := NewSessionHandler(svc)

	w := httptest.NewRecorder()
	h.Handle(w, newRequest(t, http.MethodPost, "/api/analytics/session", userIdentity(1), map[string]string{"action": "start"}))

	body := decodeError(t, w)
	if body.Message != "内部エラーが発生しました。" {
		t.Errorf("message = %q, internal details must not leak", body.Message)
	}
}
