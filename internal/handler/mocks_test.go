package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/resumetrack/internal/activity"
	"github.com/hitoshi/resumetrack/internal/analytics"
	"github.com/hitoshi/resumetrack/internal/middleware"
	"github.com/hitoshi/resumetrack/internal/model"
)

// --- モック定義 ---

type mockSessionService struct {
	openFn  func(ctx context.Context, userID int64, client model.ClientContext) (string, error)
	closeFn func(ctx context.Context, userID int64, sessionID string) error
}

func (m *mockSessionService) Open(ctx context.Context, userID int64, client model.ClientContext) (string, error) {
	if m.openFn != nil {
		return m.openFn(ctx, userID, client)
	}
	return "", nil
}

func (m *mockSessionService) Close(ctx context.Context, userID int64, sessionID string) error {
	if m.closeFn != nil {
		return m.closeFn(ctx, userID, sessionID)
	}
	return nil
}

type mockActivityRecorder struct {
	recordFn func(ctx context.Context, userID int64, ev activity.Event) (bool, error)
}

func (m *mockActivityRecorder) Record(ctx context.Context, userID int64, ev activity.Event) (bool, error) {
	if m.recordFn != nil {
		return m.recordFn(ctx, userID, ev)
	}
	return true, nil
}

type mockAnalyticsService struct {
	userSummaryFn   func(ctx context.Context, userID int64, windowDays int) (*analytics.UserAnalytics, error)
	systemSummaryFn func(ctx context.Context, windowDays int) (*analytics.SystemSummary, error)
}

func (m *mockAnalyticsService) UserSummary(ctx context.Context, userID int64, windowDays int) (*analytics.UserAnalytics, error) {
	if m.userSummaryFn != nil {
		return m.userSummaryFn(ctx, userID, windowDays)
	}
	return nil, nil
}

func (m *mockAnalyticsService) SystemSummary(ctx context.Context, windowDays int) (*analytics.SystemSummary, error) {
	if m.systemSummaryFn != nil {
		return m.systemSummaryFn(ctx, windowDays)
	}
	return nil, nil
}

func (m *mockAnalyticsService) MaxDays() int { return analytics.DefaultMaxWindowDays }

type mockQuotaService struct {
	checkLimitFn func(ctx context.Context, userID int64, action model.UsageAction) (model.Usage, error)
	consumeFn    func(ctx context.Context, userID int64, action model.UsageAction) (model.Usage, error)
}

func (m *mockQuotaService) CheckLimit(ctx context.Context, userID int64, action model.UsageAction) (model.Usage, error) {
	if m.checkLimitFn != nil {
		return m.checkLimitFn(ctx, userID, action)
	}
	return model.Usage{}, nil
}

func (m *mockQuotaService) Consume(ctx context.Context, userID int64, action model.UsageAction) (model.Usage, error) {
	if m.consumeFn != nil {
		return m.consumeFn(ctx, userID, action)
	}
	return model.Usage{}, nil
}

// --- ヘルパー ---

// newRequest は識別情報を注入したリクエストを生成する。bodyがnilの場合はボディなし。
func newRequest(t *testing.T, method, target string, identity *model.Identity, body any) *http.Request {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, target, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if identity != nil {
		req = req.WithContext(middleware.ContextWithIdentity(req.Context(), *identity))
	}
	return req
}

func userIdentity(id int64) *model.Identity {
	return &model.Identity{UserID: id, Role: model.RoleUser}
}

func adminIdentity(id int64) *model.Identity {
	return &model.Identity{UserID: id, Role: model.RoleAdmin}
}

// decodeError はエラーレスポンスのボディをデコードする。
func decodeError(t *testing.T, w *httptest.ResponseRecorder) middleware.ErrorResponseBody {
	t.Helper()
	var body middleware.ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body: %v\nraw: %s", err, w.Body.String())
	}
	return body
}
