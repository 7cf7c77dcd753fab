package handler

import (
	"net/http"

	"github.com/hitoshi/manabiya/internal/navigation"
)

// NavigationHandler はロール別メニューのHTTPハンドラー。
type NavigationHandler struct{}

// NewNavigationHandler はNavigationHandlerを生成する。
func NewNavigationHandler() *NavigationHandler {
	return &NavigationHandler{}
}

// Menu は操作主体のロールに対応するメニューを返す。
// GET /api/navigation
func (h *NavigationHandler) Menu(w http.ResponseWriter, r *http.Request) {
	actor := actorFromRequest(w, r)
	if actor == nil {
		return
	}
	writeJSON(w, http.StatusOK, navigation.MenuFor(actor.Role))
}
