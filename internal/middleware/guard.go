package middleware

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/hitoshi/manabiya/internal/guard"
	"github.com/hitoshi/manabiya/internal/session"
)

// guardRetryAfterSec は認証状態の確定待ちの再試行間隔（秒）。
const guardRetryAfterSec = 1

// guardRedirectBody は認可拒否レスポンスのフォーマット。
// redirectにはクライアントが遷移すべきパスを設定する。
type guardRedirectBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Redirect string `json:"redirect"`
}

// NewGuardMiddleware はルートガードミドルウェアを返す。
// セッションのスナップショットを判定関数に渡し、結果に応じて
// 通過・リダイレクト指示・確定待ちの503を返す。
// セッションミドルウェアの後に配置する必要がある。
func NewGuardMiddleware(decide func(session.Snapshot) guard.Decision) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var snap session.Snapshot
			if entry, ok := EntryFromContext(r.Context()); ok {
				snap = entry.Manager.Snapshot()
			}

			switch d := decide(snap); d.Kind {
			case guard.Allow:
				next.ServeHTTP(w, r)
			case guard.Wait:
				// 認証状態が未確定。クライアントに再試行させる
				w.Header().Set("Retry-After", strconv.Itoa(guardRetryAfterSec))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusServiceUnavailable)
				json.NewEncoder(w).Encode(guardRedirectBody{
					Code:     "SESSION_PENDING",
					Message:  "認証状態を確認しています。",
					Category: "auth",
				})
			case guard.Redirect:
				// 未認証は401、認証済みの権限不足は403
				status := http.StatusUnauthorized
				if d.Forbidden {
					status = http.StatusForbidden
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(status)
				json.NewEncoder(w).Encode(guardRedirectBody{
					Code:     "ACCESS_DENIED",
					Message:  "このページへのアクセス権がありません。",
					Category: "auth",
					Redirect: d.Target,
				})
			}
		})
	}
}
