package model

// UsageAction は月次上限の対象となる操作種別。
type UsageAction string

const (
	UsageSearch   UsageAction = "search"
	UsageDownload UsageAction = "download"
)

// IsValid は定義済みの操作種別かどうかを返す。
func (a UsageAction) IsValid() bool {
	return a == UsageSearch || a == UsageDownload
}

// Usage は上限チェックの結果。
// Remainingは競合により上限を超過した場合に負になりうる。呼び出し側は0として扱うこと。
type Usage struct {
	Allowed   bool
	Remaining int
	Limit     int
}

// UsageFor はユーザーの現在のカウンタから指定操作の利用状況を算出する。
func UsageFor(u *User, action UsageAction) Usage {
	var current, limit int
	switch action {
	case UsageSearch:
		current, limit = u.CurrentMonthSearches, u.MonthlySearchLimit
	case UsageDownload:
		current, limit = u.CurrentMonthDownloads, u.MonthlyDownloadLimit
	}
	return Usage{
		Allowed:   current < limit,
		Remaining: limit - current,
		Limit:     limit,
	}
}
