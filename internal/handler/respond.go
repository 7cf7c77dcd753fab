// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/manabiya/internal/middleware"
	"github.com/hitoshi/manabiya/internal/model"
	"github.com/hitoshi/manabiya/internal/notify"
)

// sessionSink はセッションに紐づく通知Sinkを返す。
// セッションのないリクエストには何もしないSinkを返す。
func sessionSink(hub *notify.Hub, r *http.Request) notify.Sink {
	if hub == nil {
		return notify.NopSink{}
	}
	if entry, ok := middleware.EntryFromContext(r.Context()); ok {
		return hub.Sink(entry.Token)
	}
	return notify.NopSink{}
}

// apiErrorResponse はSSEペイロードに埋め込むエラーの統一フォーマット。
// HTTPレスポンスのエラーはmiddleware.WriteErrorResponseが書き込む。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	middleware.WriteErrorResponse(w, statusCode, apiErr)
}

// decodeBody はリクエストボディをJSONとしてデコードする。
// 失敗時は400レスポンスを書き込みfalseを返す。
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return false
	}
	return true
}

// actorFromRequest はリクエストのセッションから操作主体のプロフィールを取得する。
// 未認証なら401、プロフィール確定前なら503を書き込みnilを返す。
// ガードミドルウェアの後段で使う前提だが、ガードと状態が入れ替わる可能性があるため再検証する。
func actorFromRequest(w http.ResponseWriter, r *http.Request) *model.Profile {
	entry, ok := middleware.EntryFromContext(r.Context())
	if !ok {
		writeAPIErrorResponse(w, http.StatusUnauthorized, &model.APIError{
			Code:     "UNAUTHORIZED",
			Message:  "認証が必要です。",
			Category: "auth",
			Action:   "ログインしてください。",
		})
		return nil
	}

	snap := entry.Manager.Snapshot()
	if snap.Identity == nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, &model.APIError{
			Code:     "UNAUTHORIZED",
			Message:  "認証が必要です。",
			Category: "auth",
			Action:   "ログインしてください。",
		})
		return nil
	}
	if snap.Profile == nil {
		w.Header().Set("Retry-After", "1")
		writeAPIErrorResponse(w, http.StatusServiceUnavailable, &model.APIError{
			Code:     "SESSION_PENDING",
			Message:  "プロフィールを読み込んでいます。",
			Category: "auth",
			Action:   "しばらく待ってから再度お試しください。",
		})
		return nil
	}
	return snap.Profile
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeAPIErrorResponse(w, middleware.StatusForError(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}
