// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"net/http"

	"github.com/hitoshi/manabiya/internal/session"
)

// SessionCookieName はセッショントークンを保持するHTTP Only Cookieの名前。
const SessionCookieName = "manabiya_session"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// entryContextKey はリクエストコンテキストにセッションエントリを格納するためのキー。
var entryContextKey = contextKey("session_entry")

// SessionLookup はセッションの検索に必要なインターフェース。
// session.Registryの部分集合として定義する。
type SessionLookup interface {
	Lookup(token string) (*session.Entry, bool)
}

// NewSessionMiddleware はHTTP Only Cookieからセッショントークンを読み取り、
// 対応するセッションエントリをリクエストコンテキストに注入するミドルウェアを返す。
// Cookieがない・トークンが無効な場合もリクエストは通す。
// 認可の判定はガードミドルウェアが行う。
func NewSessionMiddleware(sessions SessionLookup) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookieName)
			if err != nil || cookie.Value == "" {
				next.ServeHTTP(w, r)
				return
			}

			entry, ok := sessions.Lookup(cookie.Value)
			if !ok {
				// 失効済みトークン。Cookieを破棄させる
				ClearSessionCookie(w)
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithEntry(r.Context(), entry)))
		})
	}
}

// EntryFromContext はリクエストコンテキストからセッションエントリを取得する。
func EntryFromContext(ctx context.Context) (*session.Entry, bool) {
	entry, ok := ctx.Value(entryContextKey).(*session.Entry)
	return entry, ok
}

// ContextWithEntry はコンテキストにセッションエントリを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithEntry(ctx context.Context, entry *session.Entry) context.Context {
	return context.WithValue(ctx, entryContextKey, entry)
}

// UserIDFromContext はリクエストコンテキストから認証済みユーザーIDを取得する。
// セッションミドルウェアを通過し、かつサインイン済みのリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	entry, ok := EntryFromContext(ctx)
	if !ok {
		return "", fmt.Errorf("session not found in context")
	}
	snap := entry.Manager.Snapshot()
	if snap.Identity == nil {
		return "", fmt.Errorf("not signed in")
	}
	return snap.Identity.UID, nil
}

// SetSessionCookie はセッショントークンのHTTP Only Cookieを設定する。
func SetSessionCookie(w http.ResponseWriter, token string, maxAgeSeconds int, secure bool, domain string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		Domain:   domain,
		MaxAge:   maxAgeSeconds,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie はセッションCookieを破棄する。
// ログアウト時と失効済みトークンの検出時に使用する。
func ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
