package handler

import (
	"net/http"

	"github.com/hitoshi/manabiya/internal/middleware"
	"github.com/hitoshi/manabiya/internal/model"
	"github.com/hitoshi/manabiya/internal/notify"
)

// NotificationHandler はセッション内通知のHTTPハンドラー。
type NotificationHandler struct {
	hub *notify.Hub
}

// NewNotificationHandler はNotificationHandlerを生成する。
func NewNotificationHandler(hub *notify.Hub) *NotificationHandler {
	return &NotificationHandler{hub: hub}
}

// Drain は未読の通知をすべて取り出して返す。取り出した通知はキューから消える。
// GET /api/notifications
func (h *NotificationHandler) Drain(w http.ResponseWriter, r *http.Request) {
	entry, ok := middleware.EntryFromContext(r.Context())
	if !ok {
		writeAPIErrorResponse(w, http.StatusUnauthorized, &model.APIError{
			Code:     "UNAUTHORIZED",
			Message:  "認証が必要です。",
			Category: "auth",
			Action:   "ログインしてください。",
		})
		return
	}

	items := h.hub.Drain(entry.Token)
	if items == nil {
		items = []notify.Notification{}
	}
	writeJSON(w, http.StatusOK, items)
}
