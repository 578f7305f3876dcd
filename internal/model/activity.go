package model

import (
	"encoding/json"
	"time"
)

// ActivityType はユーザー操作の種別を表す閉じた列挙型。
type ActivityType string

const (
	ActivityLogin          ActivityType = "LOGIN"
	ActivityLogout         ActivityType = "LOGOUT"
	ActivityPageView       ActivityType = "PAGE_VIEW"
	ActivitySearchResume   ActivityType = "SEARCH_RESUME"
	ActivityDownloadResume ActivityType = "DOWNLOAD_RESUME"
	ActivityViewResume     ActivityType = "VIEW_RESUME"
	ActivityUploadResume   ActivityType = "UPLOAD_RESUME"
	ActivityFeatureUsage   ActivityType = "FEATURE_USAGE"
)

// ActivityTypes は定義済みの全種別を返す。
func ActivityTypes() []ActivityType {
	return []ActivityType{
		ActivityLogin,
		ActivityLogout,
		ActivityPageView,
		ActivitySearchResume,
		ActivityDownloadResume,
		ActivityViewResume,
		ActivityUploadResume,
		ActivityFeatureUsage,
	}
}

// IsValid は定義済みの種別かどうかを返す。
func (t ActivityType) IsValid() bool {
	switch t {
	case ActivityLogin, ActivityLogout, ActivityPageView, ActivitySearchResume,
		ActivityDownloadResume, ActivityViewResume, ActivityUploadResume, ActivityFeatureUsage:
		return true
	}
	return false
}

// Activity は記録済みのユーザー操作1件を表す。書き込み後は変更しない。
type Activity struct {
	ID           int64
	UserID       int64
	SessionID    string
	ActivityType ActivityType
	Description  string
	Timestamp    time.Time
	ActivityDetails
}

// ActivityDetails は操作種別ごとの任意項目。
// 未指定の項目はnil（数値）または空文字列（文字列）で表す。
type ActivityDetails struct {
	Metadata        json.RawMessage
	SearchQuery     string
	JobCategory     string
	SkillsSearched  string
	ExperienceLevel string
	ResultsCount    *int
	TimeSpent       *int
	ResumeID        string
	ResumeFileName  string
	DownloadPath    string
	ViewDuration    *int
	PageURL         string
	FeatureUsed     string
}
