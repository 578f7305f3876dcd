// Package model はドメインモデルを定義する。
package model

import "time"

// Role はユーザーの権限区分を表す。
type Role string

const (
	// RoleUser は一般ユーザー。
	RoleUser Role = "user"
	// RoleAdmin はシステム全体の分析を閲覧できる管理者。
	RoleAdmin Role = "admin"
)

// User はサービス利用ユーザーを表す。
// 認証情報はID基盤が管理し、本サービスは利用上限に関するフィールドのみを読み書きする。
type User struct {
	ID                    int64
	Email                 string
	Name                  string
	Role                  Role
	MonthlySearchLimit    int
	MonthlyDownloadLimit  int
	CurrentMonthSearches  int
	CurrentMonthDownloads int
	CreatedAt             time.Time
	// UpdatedAt は利用カウンタの最終更新日時。月替わりの判定に使用する。
	UpdatedAt time.Time
}

// Identity はリクエストに付与された検証済みのユーザー識別情報を表す。
// 上流のゲートウェイが認証を済ませた結果であり、本サービスでは検証しない。
type Identity struct {
	UserID int64
	Role   Role
}

// IsAdmin は管理者権限を持つかどうかを返す。
func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}
