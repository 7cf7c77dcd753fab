package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/manabiya/internal/course"
	"github.com/hitoshi/manabiya/internal/directory"
	"github.com/hitoshi/manabiya/internal/model"
	"github.com/hitoshi/manabiya/internal/notify"
)

// CourseHandler はコース管理のHTTPハンドラー。
type CourseHandler struct {
	courses *course.Service
	store   directory.Store
	hub     *notify.Hub
	logger  *slog.Logger
}

// NewCourseHandler はCourseHandlerを生成する。
func NewCourseHandler(courses *course.Service, store directory.Store, hub *notify.Hub, logger *slog.Logger) *CourseHandler {
	return &CourseHandler{
		courses: courses,
		store:   store,
		hub:     hub,
		logger:  logger,
	}
}

// moduleResponse はコースモジュールのAPIレスポンス。
type moduleResponse struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Type    string `json:"type"`
	Content string `json:"content"`
}

// courseResponse はコース情報のAPIレスポンス。
type courseResponse struct {
	ID            string           `json:"id"`
	Title         string           `json:"title"`
	Description   string           `json:"description"`
	Category      string           `json:"category"`
	Thumbnail     string           `json:"thumbnail"`
	Modules       []moduleResponse `json:"modules"`
	CreatedBy     string           `json:"createdBy"`
	CreatedByName string           `json:"createdByName"`
	Status        string           `json:"status"`
	CreatedAt     time.Time        `json:"createdAt"`
	UpdatedAt     time.Time        `json:"updatedAt"`
}

func toCourseResponse(c *model.Course) courseResponse {
	modules := make([]moduleResponse, 0, len(c.Modules))
	for _, m := range c.Modules {
		modules = append(modules, moduleResponse{
			ID:      m.ID,
			Title:   m.Title,
			Type:    string(m.Type),
			Content: m.Content,
		})
	}
	return courseResponse{
		ID:            c.ID,
		Title:         c.Title,
		Description:   c.Description,
		Category:      c.Category,
		Thumbnail:     c.Thumbnail,
		Modules:       modules,
		CreatedBy:     c.CreatedBy,
		CreatedByName: c.CreatedByName,
		Status:        string(c.Status),
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
}

func toCourseResponses(items []*model.Course) []courseResponse {
	out := make([]courseResponse, 0, len(items))
	for _, c := range items {
		out = append(out, toCourseResponse(c))
	}
	return out
}

// ListCatalog は公開中コースの一覧を返す。
// GET /api/courses
func (h *CourseHandler) ListCatalog(w http.ResponseWriter, r *http.Request) {
	view := course.NewCatalogView(h.store, h.sinkFor(r), h.logger)
	items, err := collectView(r.Context(), view)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCourseResponses(items))
}

// ListRecent はダッシュボード向けに新着の公開中コースを返す。
// GET /api/courses/recent
func (h *CourseHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	view := course.NewCatalogView(h.store, h.sinkFor(r), h.logger)
	items, err := collectView(r.Context(), view)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCourseResponses(course.Recent(items, course.RecentCount)))
}

// StreamCatalog は公開中コースの一覧をSSEで配信する。
// GET /api/courses/stream
func (h *CourseHandler) StreamCatalog(w http.ResponseWriter, r *http.Request) {
	streamView(w, r, course.NewCatalogView(h.store, h.sinkFor(r), h.logger))
}

// ListMine は操作主体の講師が作成したコースの一覧を返す。
// GET /api/instructor/courses
func (h *CourseHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	actor := actorFromRequest(w, r)
	if actor == nil {
		return
	}
	view := course.NewInstructorView(h.store, actor.UID, h.sinkFor(r), h.logger)
	items, err := collectView(r.Context(), view)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCourseResponses(items))
}

// StreamMine は講師自身のコース一覧をSSEで配信する。
// GET /api/instructor/courses/stream
func (h *CourseHandler) StreamMine(w http.ResponseWriter, r *http.Request) {
	actor := actorFromRequest(w, r)
	if actor == nil {
		return
	}
	streamView(w, r, course.NewInstructorView(h.store, actor.UID, h.sinkFor(r), h.logger))
}

// ListAll は全コースの一覧を返す。管理者用。
// GET /api/admin/courses
func (h *CourseHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	view := course.NewAdminView(h.store, h.sinkFor(r), h.logger)
	items, err := collectView(r.Context(), view)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCourseResponses(items))
}

// Get はコース詳細を返す。
// GET /api/courses/{id}
func (h *CourseHandler) Get(w http.ResponseWriter, r *http.Request) {
	c, err := h.courses.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCourseResponse(c))
}

// Create はコースを作成する。
// POST /api/courses
func (h *CourseHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor := actorFromRequest(w, r)
	if actor == nil {
		return
	}

	var req course.CreateInput
	if !decodeBody(w, r, &req) {
		return
	}

	c, err := h.courses.Create(r.Context(), actor, req)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCourseResponse(c))
}

// Update はコースのメタデータを部分更新する。
// PATCH /api/courses/{id}
func (h *CourseHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor := actorFromRequest(w, r)
	if actor == nil {
		return
	}

	var req course.UpdateInput
	if !decodeBody(w, r, &req) {
		return
	}

	courseID := chi.URLParam(r, "id")
	if err := h.courses.Update(r.Context(), actor, courseID, req); err != nil {
		handleServiceError(w, err)
		return
	}

	c, err := h.courses.Get(r.Context(), courseID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCourseResponse(c))
}

// setStatusRequest はコースステータス変更リクエストのボディ。
type setStatusRequest struct {
	Status string `json:"status"`
}

// SetStatus はコースの公開状態を変更する。
// PUT /api/courses/{id}/status
func (h *CourseHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	actor := actorFromRequest(w, r)
	if actor == nil {
		return
	}

	var req setStatusRequest
	if !decodeBody(w, r, &req) {
		return
	}

	err := h.courses.SetStatus(r.Context(), actor, chi.URLParam(r, "id"), model.CourseStatus(req.Status))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Delete はコースを削除する。
// DELETE /api/courses/{id}
func (h *CourseHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor := actorFromRequest(w, r)
	if actor == nil {
		return
	}

	if err := h.courses.Delete(r.Context(), actor, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddModule はコース末尾にモジュールを追加する。
// POST /api/courses/{id}/modules
func (h *CourseHandler) AddModule(w http.ResponseWriter, r *http.Request) {
	actor := actorFromRequest(w, r)
	if actor == nil {
		return
	}

	var req course.ModuleInput
	if !decodeBody(w, r, &req) {
		return
	}

	m, err := h.courses.AddModule(r.Context(), actor, chi.URLParam(r, "id"), req)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, moduleResponse{
		ID:      m.ID,
		Title:   m.Title,
		Type:    string(m.Type),
		Content: m.Content,
	})
}

// UpdateModule はモジュールを更新する。
// PUT /api/courses/{id}/modules/{moduleID}
func (h *CourseHandler) UpdateModule(w http.ResponseWriter, r *http.Request) {
	actor := actorFromRequest(w, r)
	if actor == nil {
		return
	}

	var req course.ModuleInput
	if !decodeBody(w, r, &req) {
		return
	}

	err := h.courses.UpdateModule(r.Context(), actor, chi.URLParam(r, "id"), chi.URLParam(r, "moduleID"), req)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveModule はモジュールを削除する。
// DELETE /api/courses/{id}/modules/{moduleID}
func (h *CourseHandler) RemoveModule(w http.ResponseWriter, r *http.Request) {
	actor := actorFromRequest(w, r)
	if actor == nil {
		return
	}

	err := h.courses.RemoveModule(r.Context(), actor, chi.URLParam(r, "id"), chi.URLParam(r, "moduleID"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// sinkFor はセッションに紐づく通知Sinkを返す。セッションがなければNopSink。
func (h *CourseHandler) sinkFor(r *http.Request) notify.Sink {
	return sessionSink(h.hub, r)
}
