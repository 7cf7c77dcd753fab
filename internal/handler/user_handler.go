package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/manabiya/internal/directory"
	"github.com/hitoshi/manabiya/internal/model"
	"github.com/hitoshi/manabiya/internal/notify"
	"github.com/hitoshi/manabiya/internal/user"
)

// UserHandler はプロフィールとユーザー管理のHTTPハンドラー。
type UserHandler struct {
	users  *user.Service
	store  directory.Store
	hub    *notify.Hub
	logger *slog.Logger
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(users *user.Service, store directory.Store, hub *notify.Hub, logger *slog.Logger) *UserHandler {
	return &UserHandler{
		users:  users,
		store:  store,
		hub:    hub,
		logger: logger,
	}
}

func toProfileResponse(p *model.Profile) profileResponse {
	return profileResponse{
		UID:       p.UID,
		Name:      p.Name,
		Email:     p.Email,
		Role:      string(p.Role),
		CreatedAt: p.CreatedAt,
	}
}

// updateNameRequest は表示名変更リクエストのボディ。
type updateNameRequest struct {
	Name string `json:"name"`
}

// UpdateName は操作主体の表示名を変更する。
// PUT /api/profile/name
func (h *UserHandler) UpdateName(w http.ResponseWriter, r *http.Request) {
	actor := actorFromRequest(w, r)
	if actor == nil {
		return
	}

	var req updateNameRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := h.users.UpdateName(r.Context(), actor, req.Name); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListUsers は全ユーザーの一覧を返す。管理者用。
// GET /api/admin/users
func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	view := user.NewAdminUsersView(h.store, sessionSink(h.hub, r), h.logger)
	items, err := collectView(r.Context(), view)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	out := make([]profileResponse, 0, len(items))
	for _, p := range items {
		out = append(out, toProfileResponse(p))
	}
	writeJSON(w, http.StatusOK, out)
}

// StreamUsers は全ユーザーの一覧をSSEで配信する。管理者用。
// GET /api/admin/users/stream
func (h *UserHandler) StreamUsers(w http.ResponseWriter, r *http.Request) {
	streamView(w, r, user.NewAdminUsersView(h.store, sessionSink(h.hub, r), h.logger))
}

// ListPendingInstructors は講師申請中のユーザー一覧を返す。管理者用。
// GET /api/admin/instructor-requests
func (h *UserHandler) ListPendingInstructors(w http.ResponseWriter, r *http.Request) {
	view := user.NewPendingInstructorsView(h.store, sessionSink(h.hub, r), h.logger)
	items, err := collectView(r.Context(), view)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	out := make([]profileResponse, 0, len(items))
	for _, p := range items {
		out = append(out, toProfileResponse(p))
	}
	writeJSON(w, http.StatusOK, out)
}

// ApproveInstructor は講師申請を承認する。管理者用。
// POST /api/admin/users/{uid}/approve
func (h *UserHandler) ApproveInstructor(w http.ResponseWriter, r *http.Request) {
	actor := actorFromRequest(w, r)
	if actor == nil {
		return
	}

	if err := h.users.ApproveInstructor(r.Context(), actor, chi.URLParam(r, "uid")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// setRoleRequest は役割変更リクエストのボディ。
type setRoleRequest struct {
	Role string `json:"role"`
}

// SetRole はユーザーの役割を変更する。管理者用。
// PUT /api/admin/users/{uid}/role
func (h *UserHandler) SetRole(w http.ResponseWriter, r *http.Request) {
	actor := actorFromRequest(w, r)
	if actor == nil {
		return
	}

	var req setRoleRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := h.users.SetRole(r.Context(), actor, chi.URLParam(r, "uid"), model.Role(req.Role)); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
