package analytics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/resumetrack/internal/model"
	"github.com/hitoshi/resumetrack/internal/repository"
)

// mockAnalyticsRepo はAnalyticsRepositoryのテスト用モック。
type mockAnalyticsRepo struct {
	listSessionsFn   func(ctx context.Context, userID int64, since time.Time) ([]model.Session, error)
	listActivitiesFn func(ctx context.Context, userID int64, since time.Time) ([]model.Activity, error)
	systemCountsFn   func(ctx context.Context, since time.Time) (*repository.SystemCounts, error)
}

func (m *mockAnalyticsRepo) ListSessionsSince(ctx context.Context, userID int64, since time.Time) ([]model.Session, error) {
	if m.listSessionsFn != nil {
		return m.listSessionsFn(ctx, userID, since)
	}
	return nil, nil
}

func (m *mockAnalyticsRepo) ListActivitiesSince(ctx context.Context, userID int64, since time.Time) ([]model.Activity, error) {
	if m.listActivitiesFn != nil {
		return m.listActivitiesFn(ctx, userID, since)
	}
	return nil, nil
}

func (m *mockAnalyticsRepo) SystemCounts(ctx context.Context, since time.Time) (*repository.SystemCounts, error) {
	if m.systemCountsFn != nil {
		return m.systemCountsFn(ctx, since)
	}
	return &repository.SystemCounts{}, nil
}

// mockUserRepo はUserRepositoryのテスト用モック。FindByIDのみ使用する。
type mockUserRepo struct {
	findByIDFn func(ctx context.Context, id int64) (*model.User, error)
}

func (m *mockUserRepo) FindByID(ctx context.Context, id int64) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockUserRepo) ResetMonthlyUsage(ctx context.Context, id int64, lastSeen, now time.Time) (bool, error) {
	return false, nil
}

func (m *mockUserRepo) IncrementUsage(ctx context.Context, id int64, action model.UsageAction, now time.Time) (bool, error) {
	return false, nil
}

func (m *mockUserRepo) ConsumeUsage(ctx context.Context, id int64, action model.UsageAction, now time.Time) (*model.User, error) {
	return nil, nil
}

var fixedNow = time.Date(2026, time.May, 31, 12, 0, 0, 0, time.UTC)

func userRepoWith(u *model.User) *mockUserRepo {
	return &mockUserRepo{
		findByIDFn: func(ctx context.Context, id int64) (*model.User, error) {
			if u != nil && u.ID == id {
				return u, nil
			}
			return nil, nil
		},
	}
}

func newTestAggregator(repo *mockAnalyticsRepo, users *mockUserRepo) *Aggregator {
	a := NewAggregator(repo, users, 0)
	a.now = func() time.Time { return fixedNow }
	return a
}

func int64Ptr(v int64) *int64 { return &v }
func intPtr(v int) *int { return &v }

// TestUserSummary_NoSessions はセッションが0件でも平均セッション時間が0になることを検証する。
func TestUserSummary_NoSessions(t *testing.T) {
	a := newTestAggregator(&mockAnalyticsRepo{}, userRepoWith(&model.User{ID: 1}))

	got, err := a.UserSummary(context.Background(), 1, 30)
	if err != nil {
		t.Fatalf("UserSummary returned error: %v", err)
	}
	if got.Summary != (Summary{}) {
		t.Errorf("Summary = %+v, want zero value", got.Summary)
	}
	if len(got.RecentActivities) != 0 || len(got.RecentSessions) != 0 {
		t.Error("recent lists should be empty")
	}
}

func TestUserSummary_WindowStart(t *testing.T) {
	var sessionsSince, activitiesSince time.Time
	repo := &mockAnalyticsRepo{
		listSessionsFn: func(ctx context.Context, userID int64, since time.Time) ([]model.Session, error) {
			sessionsSince = since
			return nil, nil
		},
		listActivitiesFn: func(ctx context.Context, userID int64, since time.Time) ([]model.Activity, error) {
			activitiesSince = since
			return nil, nil
		},
	}
	a := newTestAggregator(repo, userRepoWith(&model.User{ID: 1}))

	if _, err := a.UserSummary(context.Background(), 1, 7); err != nil {
		t.Fatalf("UserSummary returned error: %v", err)
	}

	want := time.Date(2026, time.May, 24, 12, 0, 0, 0, time.UTC)
	if !sessionsSince.Equal(want) || !activitiesSince.Equal(want) {
		t.Errorf("since = %v / %v, want %v", sessionsSince, activitiesSince, want)
	}
}

func TestUserSummary_AggregatesAndTruncates(t *testing.T) {
	var sessions []model.Session
	for i := 0; i < 12; i++ {
		sessions = append(sessions, model.Session{SessionID: string(rune('a' + i)), Duration: int64Ptr(60)})
	}
	var activities []model.Activity
	for i := 0; i < 25; i++ {
		activities = append(activities, model.Activity{ID: int64(25 - i), ActivityType: model.ActivityPageView})
	}
	repo := &mockAnalyticsRepo{
		listSessionsFn: func(ctx context.Context, userID int64, since time.Time) ([]model.Session, error) {
			return sessions, nil
		},
		listActivitiesFn: func(ctx context.Context, userID int64, since time.Time) ([]model.Activity, error) {
			return activities, nil
		},
	}
	user := &model.User{ID: 1, MonthlySearchLimit: 100, CurrentMonthSearches: 3}
	a := newTestAggregator(repo, userRepoWith(user))

	got, err := a.UserSummary(context.Background(), 1, 30)
	if err != nil {
		t.Fatalf("UserSummary returned error: %v", err)
	}

	if got.Summary.TotalSessions != 12 || got.Summary.TotalActivities != 25 {
		t.Errorf("totals = (%d, %d), want (12, 25)", got.Summary.TotalSessions, got.Summary.TotalActivities)
	}
	if len(got.RecentSessions) != 10 {
		t.Errorf("RecentSessions = %d, want 10", len(got.RecentSessions))
	}
	if len(got.RecentActivities) != 20 {
		t.Errorf("RecentActivities = %d, want 20", len(got.RecentActivities))
	}
	if got.RecentActivities[0].ID != 25 {
		t.Errorf("most recent activity should come first, got ID %d", got.RecentActivities[0].ID)
	}
	if got.User.CurrentMonthSearches != 3 {
		t.Errorf("user quota fields should be included, got %+v", got.User)
	}
}

func TestUserSummary_UnknownUser(t *testing.T) {
	a := newTestAggregator(&mockAnalyticsRepo{}, userRepoWith(nil))

	_, err := a.UserSummary(context.Background(), 1, 30)
	if !model.IsErrorCode(err, model.ErrCodeUserNotFound) {
		t.Errorf("expected USER_NOT_FOUND, got %v", err)
	}
}

func TestUserSummary_StoreError(t *testing.T) {
	storeErr := errors.New("query canceled")
	repo := &mockAnalyticsRepo{
		listActivitiesFn: func(ctx context.Context, userID int64, since time.Time) ([]model.Activity, error) {
			return nil, storeErr
		},
	}
	a := newTestAggregator(repo, userRepoWith(&model.User{ID: 1}))

	_, err := a.UserSummary(context.Background(), 1, 30)
	if !errors.Is(err, storeErr) {
		t.Errorf("expected wrapped store error, got %v", err)
	}
}

func TestWindowDaysValidation(t *testing.T) {
	a := newTestAggregator(&mockAnalyticsRepo{}, userRepoWith(&model.User{ID: 1}))

	for _, days := range []int{0, -1, 366} {
		if _, err := a.UserSummary(context.Background(), 1, days); !model.IsErrorCode(err, model.ErrCodeInvalidDays) {
			t.Errorf("UserSummary(days=%d): expected INVALID_DAYS, got %v", days, err)
		}
		if _, err := a.SystemSummary(context.Background(), days); !model.IsErrorCode(err, model.ErrCodeInvalidDays) {
			t.Errorf("SystemSummary(days=%d): expected INVALID_DAYS, got %v", days, err)
		}
	}

	for _, days := range []int{1, 365} {
		if _, err := a.SystemSummary(context.Background(), days); err != nil {
			t.Errorf("SystemSummary(days=%d) returned error: %v", days, err)
		}
	}
}

func TestSystemSummary_MapsCounts(t *testing.T) {
	var gotSince time.Time
	repo := &mockAnalyticsRepo{
		systemCountsFn: func(ctx context.Context, since time.Time) (*repository.SystemCounts, error) {
			gotSince = since
			return &repository.SystemCounts{
				TotalUsers: 120, ActiveUsers: 40, NewRegistrations: 9,
				TotalSessions: 300, TotalActivities: 2500,
				TotalSearches: 800, TotalDownloads: 150, TotalUploads: 30,
			}, nil
		},
	}
	a := newTestAggregator(repo, &mockUserRepo{})

	got, err := a.SystemSummary(context.Background(), 30)
	if err != nil {
		t.Fatalf("SystemSummary returned error: %v", err)
	}

	want := SystemSummary{
		WindowDays: 30, TotalUsers: 120, ActiveUsers: 40, NewRegistrations: 9,
		TotalSessions: 300, TotalActivities: 2500,
		TotalSearches: 800, TotalDownloads: 150, TotalUploads: 30,
	}
	if *got != want {
		t.Errorf("SystemSummary = %+v, want %+v", *got, want)
	}
	if !gotSince.Equal(fixedNow.AddDate(0, 0, -30)) {
		t.Errorf("since = %v", gotSince)
	}
}

func TestSummarize(t *testing.T) {
	sessions := []model.Session{
		{Duration: int64Ptr(100)},
		{Duration: int64Ptr(51)},
		{Duration: nil}, // アクティブなセッションは0秒として数える
	}
	activities := []model.Activity{
		{ActivityType: model.ActivitySearchResume, ActivityDetails: model.ActivityDetails{TimeSpent: intPtr(30)}},
		{ActivityType: model.ActivitySearchResume},
		{ActivityType: model.ActivityDownloadResume, ActivityDetails: model.ActivityDetails{TimeSpent: intPtr(12)}},
		{ActivityType: model.ActivityViewResume},
		{ActivityType: model.ActivityUploadResume},
		{ActivityType: model.ActivityPageView, ActivityDetails: model.ActivityDetails{TimeSpent: intPtr(8)}},
	}

	got := Summarize(sessions, activities)

	want := Summary{
		TotalSessions:      3,
		TotalActivities:    6,
		TotalSearches:      2,
		TotalDownloads:     1,
		TotalViews:         1,
		AvgSessionDuration: 50, // 151 / 3 = 50.33
		TotalTimeSpent:     50,
	}
	if got != want {
		t.Errorf("Summarize() = %+v, want %+v", got, want)
	}
}

func TestSummarize_RoundsHalfUp(t *testing.T) {
	got := Summarize([]model.Session{{Duration: int64Ptr(1)}, {Duration: int64Ptr(2)}}, nil)
	if got.AvgSessionDuration != 2 {
		t.Errorf("AvgSessionDuration = %d, want 2 (1.5 rounded)", got.AvgSessionDuration)
	}
}

func TestMaxDays_Configurable(t *testing.T) {
	a := NewAggregator(&mockAnalyticsRepo{}, &mockUserRepo{}, 90)
	if a.MaxDays() != 90 {
		t.Errorf("MaxDays = %d, want 90", a.MaxDays())
	}
	if _, err := a.SystemSummary(context.Background(), 91); !model.IsErrorCode(err, model.ErrCodeInvalidDays) {
		t.Errorf("expected INVALID_DAYS for 91, got %v", err)
	}
}

// TestUserSummary_MonthRollover は月が替わった後の集計で前月の利用カウンタを0として返すことを検証する。
func TestUserSummary_MonthRollover(t *testing.T) {
	stored := &model.User{
		ID:                    1,
		MonthlySearchLimit:    5,
		CurrentMonthSearches:  5,
		MonthlyDownloadLimit:  3,
		CurrentMonthDownloads: 2,
		UpdatedAt:             time.Date(2026, time.April, 20, 9, 0, 0, 0, time.UTC),
	}
	a := newTestAggregator(&mockAnalyticsRepo{}, userRepoWith(stored))

	got, err := a.UserSummary(context.Background(), 1, 30)
	if err != nil {
		t.Fatalf("UserSummary returned error: %v", err)
	}
	if got.User.CurrentMonthSearches != 0 || got.User.CurrentMonthDownloads != 0 {
		t.Errorf("counters = (%d, %d), want (0, 0)", got.User.CurrentMonthSearches, got.User.CurrentMonthDownloads)
	}
	if got.User.MonthlySearchLimit != 5 {
		t.Errorf("MonthlySearchLimit = %d, want 5", got.User.MonthlySearchLimit)
	}
	// 読み取り専用のため保存済みの値は変更しない
	if stored.CurrentMonthSearches != 5 {
		t.Errorf("stored CurrentMonthSearches = %d, want 5", stored.CurrentMonthSearches)
	}
}

// TestUserSummary_SameMonthKeepsCounters は同じ月の間は利用カウンタをそのまま返すことを検証する。
func TestUserSummary_SameMonthKeepsCounters(t *testing.T) {
	a := newTestAggregator(&mockAnalyticsRepo{}, userRepoWith(&model.User{
		ID:                   1,
		CurrentMonthSearches: 4,
		UpdatedAt:            time.Date(2026, time.May, 1, 0, 0, 0, 0, time.UTC),
	}))

	got, err := a.UserSummary(context.Background(), 1, 30)
	if err != nil {
		t.Fatalf("UserSummary returned error: %v", err)
	}
	if got.User.CurrentMonthSearches != 4 {
		t.Errorf("CurrentMonthSearches = %d, want 4", got.User.CurrentMonthSearches)
	}
}
