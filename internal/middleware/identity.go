// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"net/http"

	"github.com/hitoshi/directorio/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// identityIDContextKey はリクエストコンテキストにidentity IDを格納するためのキー。
var identityIDContextKey = contextKey("identity_id")

// CurrentIdentityProvider は端末の現在のidentityを返す。
// identity.Serviceの部分集合として定義する。
type CurrentIdentityProvider interface {
	CurrentIdentity() *model.Identity
}

// NewRequireIdentityMiddleware は端末にサインイン済みのidentityがあることを要求するミドルウェアを返す。
// identity IDをリクエストコンテキストに注入する。
// 未認証の場合は401 Unauthorizedを統一エラーフォーマットで返す。
func NewRequireIdentityMiddleware(provider CurrentIdentityProvider) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			current := provider.CurrentIdentity()
			if current == nil || current.ID == "" {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewNotAuthenticatedError())
				return
			}

			if rec := recorderFrom(w); rec != nil {
				rec.identityID = current.ID
			}
			next.ServeHTTP(w, r.WithContext(ContextWithIdentityID(r.Context(), current.ID)))
		})
	}
}

// IdentityIDFromContext はリクエストコンテキストからidentity IDを取得する。
func IdentityIDFromContext(ctx context.Context) (string, error) {
	id, ok := ctx.Value(identityIDContextKey).(string)
	if !ok || id == "" {
		return "", fmt.Errorf("identity ID not found in context")
	}
	return id, nil
}

// ContextWithIdentityID はコンテキストにidentity IDを注入する。
func ContextWithIdentityID(ctx context.Context, identityID string) context.Context {
	return context.WithValue(ctx, identityIDContextKey, identityID)
}
