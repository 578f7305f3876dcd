// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
	"strings"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, session, quota, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized         = "UNAUTHORIZED"
	ErrCodeForbidden            = "FORBIDDEN"
	ErrCodeInvalidRequest       = "INVALID_REQUEST"
	ErrCodeMissingField         = "MISSING_FIELD"
	ErrCodeInvalidActivityType  = "INVALID_ACTIVITY_TYPE"
	ErrCodeInvalidUsageType     = "INVALID_USAGE_TYPE"
	ErrCodeInvalidSessionAction = "INVALID_SESSION_ACTION"
	ErrCodeInvalidDays          = "INVALID_DAYS"
	ErrCodeSessionNotFound      = "SESSION_NOT_FOUND"
	ErrCodeUserNotFound         = "USER_NOT_FOUND"
	ErrCodeQuotaExceeded        = "QUOTA_EXCEEDED"
)

// IsErrorCode はerrがAPIErrorであり、かつ指定コードを持つかどうかを返す。
func IsErrorCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// NewUnauthorizedError は識別情報がないリクエストのエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewForbiddenError は権限不足のエラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "この操作を行う権限がありません。",
		Category: "auth",
		Action:   "管理者アカウントでログインしてください。",
	}
}

// NewInvalidRequestError はリクエストボディの解析失敗エラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}

// NewMissingFieldError は必須項目の欠落エラーを生成する。
func NewMissingFieldError(fields ...string) *APIError {
	return &APIError{
		Code:     ErrCodeMissingField,
		Message:  fmt.Sprintf("必須項目が指定されていません: %s", strings.Join(fields, ", ")),
		Category: "validation",
		Action:   "必須項目を指定して再送信してください。",
	}
}

// NewInvalidActivityTypeError は未定義のアクティビティ種別のエラーを生成する。
func NewInvalidActivityTypeError(activityType string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidActivityType,
		Message:  fmt.Sprintf("無効なアクティビティ種別です: %s", activityType),
		Category: "validation",
		Action:   "定義済みのアクティビティ種別を指定してください。",
	}
}

// NewInvalidUsageTypeError は未定義の利用種別のエラーを生成する。
func NewInvalidUsageTypeError(usageType string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidUsageType,
		Message:  fmt.Sprintf("無効な利用種別です: %q", usageType),
		Category: "validation",
		Action:   "type には search または download を指定してください。",
	}
}

// NewInvalidSessionActionError は未定義のセッション操作のエラーを生成する。
func NewInvalidSessionActionError(action string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidSessionAction,
		Message:  fmt.Sprintf("無効なセッション操作です: %q", action),
		Category: "validation",
		Action:   "action には start または end を指定してください。",
	}
}

// NewInvalidDaysError は集計期間が範囲外の場合のエラーを生成する。
func NewInvalidDaysError(days, maxDays int) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidDays,
		Message:  fmt.Sprintf("無効な集計期間です: %d日", days),
		Category: "validation",
		Action:   fmt.Sprintf("days には1から%dの整数を指定してください。", maxDays),
	}
}

// NewSessionNotFoundError はセッションが見つからない場合のエラーを生成する。
func NewSessionNotFoundError(sessionID string) *APIError {
	return &APIError{
		Code:     ErrCodeSessionNotFound,
		Message:  fmt.Sprintf("指定されたセッションが見つかりません: %s", sessionID),
		Category: "session",
		Action:   "セッションを開始し直してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewQuotaExceededError は月次利用上限に達した場合のエラーを生成する。
func NewQuotaExceededError(action UsageAction) *APIError {
	return &APIError{
		Code:     ErrCodeQuotaExceeded,
		Message:  fmt.Sprintf("今月の%s回数が上限に達しています。", usageActionLabel(action)),
		Category: "quota",
		Action:   "翌月まで待つか、プランのアップグレードをご検討ください。",
	}
}

func usageActionLabel(action UsageAction) string {
	switch action {
	case UsageSearch:
		return "検索"
	case UsageDownload:
		return "ダウンロード"
	}
	return string(action)
}
