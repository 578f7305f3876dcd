package model

import "time"

// Session はユーザーのログインからログアウトまでの1区間を表す。
// 行は削除されず、監査証跡として残る。
type Session struct {
	ID           int64
	SessionID    string
	UserID       int64
	LoginTime    time.Time
	LogoutTime   *time.Time
	IsActive     bool
	LastActivity time.Time
	// Duration はクローズ時に設定される秒数。アクティブな間はnil。
	Duration *int64
	ClientContext
}

// ClientContext はセッション開始時のクライアント情報。
// ベストエフォートで取得され、認可には使用しない。
type ClientContext struct {
	IPAddress string
	UserAgent string
	Location  string
	Device    string
	Browser   string
}

// DurationSeconds はloginからendまでの経過秒数を返す。
// 時計のずれで負になる場合は0に丸める。
func DurationSeconds(login, end time.Time) int64 {
	d := int64(end.Sub(login).Seconds())
	if d < 0 {
		return 0
	}
	return d
}
