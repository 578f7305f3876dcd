package handler

import (
	"encoding/json"
	"time"

	"github.com/hitoshi/resumetrack/internal/analytics"
	"github.com/hitoshi/resumetrack/internal/model"
)

type userResponse struct {
	ID                    int64     `json:"id"`
	Email                 string    `json:"email"`
	Name                  string    `json:"name"`
	Role                  string    `json:"role"`
	MonthlySearchLimit    int       `json:"monthlySearchLimit"`
	MonthlyDownloadLimit  int       `json:"monthlyDownloadLimit"`
	CurrentMonthSearches  int       `json:"currentMonthSearches"`
	CurrentMonthDownloads int       `json:"currentMonthDownloads"`
	CreatedAt             time.Time `json:"createdAt"`
	UpdatedAt             time.Time `json:"updatedAt"`
}

type sessionResponse struct {
	ID           int64      `json:"id"`
	SessionID    string     `json:"sessionId"`
	UserID       int64      `json:"userId"`
	LoginTime    time.Time  `json:"loginTime"`
	LogoutTime   *time.Time `json:"logoutTime"`
	IsActive     bool       `json:"isActive"`
	LastActivity time.Time  `json:"lastActivity"`
	Duration     *int64     `json:"duration"`
	IPAddress    string     `json:"ipAddress"`
	UserAgent    string     `json:"userAgent"`
	Location     string     `json:"location"`
	Device       string     `json:"device"`
	Browser      string     `json:"browser"`
}

type activityResponse struct {
	ID              int64           `json:"id"`
	UserID          int64           `json:"userId"`
	SessionID       string          `json:"sessionId"`
	ActivityType    string          `json:"activityType"`
	Description     string          `json:"description"`
	Timestamp       time.Time       `json:"timestamp"`
	Metadata        json.RawMessage `json:"metadata,omitempty"`
	SearchQuery     string          `json:"searchQuery,omitempty"`
	JobCategory     string          `json:"jobCategory,omitempty"`
	SkillsSearched  string          `json:"skillsSearched,omitempty"`
	ExperienceLevel string          `json:"experienceLevel,omitempty"`
	ResultsCount    *int            `json:"resultsCount,omitempty"`
	TimeSpent       *int            `json:"timeSpent,omitempty"`
	ResumeID        string          `json:"resumeId,omitempty"`
	ResumeFileName  string          `json:"resumeFileName,omitempty"`
	DownloadPath    string          `json:"downloadPath,omitempty"`
	ViewDuration    *int            `json:"viewDuration,omitempty"`
	PageURL         string          `json:"pageUrl,omitempty"`
	FeatureUsed     string          `json:"featureUsed,omitempty"`
}

type summaryResponse struct {
	TotalSessions      int   `json:"totalSessions"`
	TotalActivities    int   `json:"totalActivities"`
	TotalSearches      int   `json:"totalSearches"`
	TotalDownloads     int   `json:"totalDownloads"`
	TotalViews         int   `json:"totalViews"`
	AvgSessionDuration int64 `json:"avgSessionDuration"`
	TotalTimeSpent     int64 `json:"totalTimeSpent"`
}

type userAnalyticsResponse struct {
	User             userResponse       `json:"user"`
	Summary          summaryResponse    `json:"summary"`
	RecentActivities []activityResponse `json:"recentActivities"`
	RecentSessions   []sessionResponse  `json:"recentSessions"`
}

type systemSummaryResponse struct {
	WindowDays       int   `json:"windowDays"`
	TotalUsers       int64 `json:"totalUsers"`
	ActiveUsers      int64 `json:"activeUsers"`
	NewRegistrations int64 `json:"newRegistrations"`
	TotalSessions    int64 `json:"totalSessions"`
	TotalActivities  int64 `json:"totalActivities"`
	TotalSearches    int64 `json:"totalSearches"`
	TotalDownloads   int64 `json:"totalDownloads"`
	TotalUploads     int64 `json:"totalUploads"`
}

type usageResponse struct {
	Allowed   bool `json:"allowed"`
	Remaining int  `json:"remaining"`
	Limit     int  `json:"limit"`
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:                    u.ID,
		Email:                 u.Email,
		Name:                  u.Name,
		Role:                  string(u.Role),
		MonthlySearchLimit:    u.MonthlySearchLimit,
		MonthlyDownloadLimit:  u.MonthlyDownloadLimit,
		CurrentMonthSearches:  u.CurrentMonthSearches,
		CurrentMonthDownloads: u.CurrentMonthDownloads,
		CreatedAt:             u.CreatedAt,
		UpdatedAt:             u.UpdatedAt,
	}
}

func toSessionResponse(s model.Session) sessionResponse {
	return sessionResponse{
		ID:           s.ID,
		SessionID:    s.SessionID,
		UserID:       s.UserID,
		LoginTime:    s.LoginTime,
		LogoutTime:   s.LogoutTime,
		IsActive:     s.IsActive,
		LastActivity: s.LastActivity,
		Duration:     s.Duration,
		IPAddress:    s.IPAddress,
		UserAgent:    s.UserAgent,
		Location:     s.Location,
		Device:       s.Device,
		Browser:      s.Browser,
	}
}

func toActivityResponse(a model.Activity) activityResponse {
	return activityResponse{
		ID:              a.ID,
		UserID:          a.UserID,
		SessionID:       a.SessionID,
		ActivityType:    string(a.ActivityType),
		Description:     a.Description,
		Timestamp:       a.Timestamp,
		Metadata:        a.Metadata,
		SearchQuery:     a.SearchQuery,
		JobCategory:     a.JobCategory,
		SkillsSearched:  a.SkillsSearched,
		ExperienceLevel: a.ExperienceLevel,
		ResultsCount:    a.ResultsCount,
		TimeSpent:       a.TimeSpent,
		ResumeID:        a.ResumeID,
		ResumeFileName:  a.ResumeFileName,
		DownloadPath:    a.DownloadPath,
		ViewDuration:    a.ViewDuration,
		PageURL:         a.PageURL,
		FeatureUsed:     a.FeatureUsed,
	}
}

func toUserAnalyticsResponse(ua *analytics.UserAnalytics) userAnalyticsResponse {
	resp := userAnalyticsResponse{
		User: toUserResponse(ua.User),
		Summary: summaryResponse{
			TotalSessions:      ua.Summary.TotalSessions,
			TotalActivities:    ua.Summary.TotalActivities,
			TotalSearches:      ua.Summary.TotalSearches,
			TotalDownloads:     ua.Summary.TotalDownloads,
			TotalViews:         ua.Summary.TotalViews,
			AvgSessionDuration: ua.Summary.AvgSessionDuration,
			TotalTimeSpent:     ua.Summary.TotalTimeSpent,
		},
		RecentActivities: make([]activityResponse, len(ua.RecentActivities)),
		RecentSessions:   make([]sessionResponse, len(ua.RecentSessions)),
	}
	for i, a := range ua.RecentActivities {
		resp.RecentActivities[i] = toActivityResponse(a)
	}
	for i, s := range ua.RecentSessions {
		resp.RecentSessions[i] = toSessionResponse(s)
	}
	return resp
}

func toSystemSummaryResponse(s *analytics.SystemSummary) systemSummaryResponse {
	return systemSummaryResponse{
		WindowDays:       s.WindowDays,
		TotalUsers:       s.TotalUsers,
		ActiveUsers:      s.ActiveUsers,
		NewRegistrations: s.NewRegistrations,
		TotalSessions:    s.TotalSessions,
		TotalActivities:  s.TotalActivities,
		TotalSearches:    s.TotalSearches,
		TotalDownloads:   s.TotalDownloads,
		TotalUploads:     s.TotalUploads,
	}
}

func toUsageResponse(u model.Usage) usageResponse {
	return usageResponse{Allowed: u.Allowed, Remaining: u.Remaining, Limit: u.Limit}
}
