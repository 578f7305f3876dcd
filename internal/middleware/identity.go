// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/hitoshi/resumetrack/internal/model"
)

// 上流ゲートウェイが認証後に付与するヘッダー。
const (
	UserIDHeader   = "X-User-ID"
	UserRoleHeader = "X-User-Role"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	identityContextKey  = contextKey("identity")
	holderContextKey    = contextKey("identity_holder")
	requestIDContextKey = contextKey("request_id")
)

// identityHolder は外側のミドルウェアが内側で確定したユーザーIDを参照するための入れ物。
type identityHolder struct {
	userID int64
}

func withIdentityHolder(ctx context.Context, h *identityHolder) context.Context {
	return context.WithValue(ctx, holderContextKey, h)
}

// NewIdentityMiddleware はゲートウェイが付与した識別ヘッダーを読み取り、
// model.Identityをリクエストコンテキストに注入するミドルウェアを返す。
// ユーザーIDが欠落している、または正の整数でない場合は401を返す。
func NewIdentityMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get(UserIDHeader))
			userID, err := strconv.ParseInt(raw, 10, 64)
			if raw == "" || err != nil || userID <= 0 {
				if raw != "" {
					slog.Warn("invalid user id header",
						slog.String("value", raw),
						slog.String("path", r.URL.Path),
					)
				}
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			identity := model.Identity{
				UserID: userID,
				Role:   parseRole(r.Header.Get(UserRoleHeader)),
			}
			if h, ok := r.Context().Value(holderContextKey).(*identityHolder); ok {
				h.userID = userID
			}
			next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), identity)))
		})
	}
}

// parseRole は未知のロールを一般ユーザーとして扱う。
func parseRole(raw string) model.Role {
	if model.Role(strings.ToLower(strings.TrimSpace(raw))) == model.RoleAdmin {
		return model.RoleAdmin
	}
	return model.RoleUser
}

// IdentityFromContext はリクエストコンテキストから識別情報を取得する。
// 識別ミドルウェアを通過したリクエストでのみ有効。
func IdentityFromContext(ctx context.Context) (model.Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(model.Identity)
	if !ok || identity.UserID <= 0 {
		return model.Identity{}, false
	}
	return identity, true
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
func UserIDFromContext(ctx context.Context) (int64, bool) {
	identity, ok := IdentityFromContext(ctx)
	return identity.UserID, ok
}

// ContextWithIdentity はコンテキストに識別情報を注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithIdentity(ctx context.Context, identity model.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}
