package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/manabiya/internal/directory"
	"github.com/hitoshi/manabiya/internal/enrollment"
	"github.com/hitoshi/manabiya/internal/model"
	"github.com/hitoshi/manabiya/internal/notify"
)

// EnrollmentHandler は受講登録と進捗管理のHTTPハンドラー。
type EnrollmentHandler struct {
	enrollments *enrollment.Service
	store       directory.Store
	hub         *notify.Hub
	logger      *slog.Logger
}

// NewEnrollmentHandler はEnrollmentHandlerを生成する。
func NewEnrollmentHandler(enrollments *enrollment.Service, store directory.Store, hub *notify.Hub, logger *slog.Logger) *EnrollmentHandler {
	return &EnrollmentHandler{
		enrollments: enrollments,
		store:       store,
		hub:         hub,
		logger:      logger,
	}
}

// enrollmentResponse は受講レコードのAPIレスポンス。
type enrollmentResponse struct {
	ID               string    `json:"id"`
	UserID           string    `json:"userId"`
	CourseID         string    `json:"courseId"`
	Progress         int       `json:"progress"`
	CompletedModules []int     `json:"completedModules"`
	EnrolledAt       time.Time `json:"enrolledAt"`
}

func toEnrollmentResponse(e *model.Enrollment) enrollmentResponse {
	completed := e.CompletedModules
	if completed == nil {
		completed = []int{}
	}
	return enrollmentResponse{
		ID:               e.ID,
		UserID:           e.UserID,
		CourseID:         e.CourseID,
		Progress:         e.Progress,
		CompletedModules: completed,
		EnrolledAt:       e.EnrolledAt,
	}
}

// enrolledCourseResponse は受講レコードとコース情報を結合したAPIレスポンス。
type enrolledCourseResponse struct {
	Enrollment enrollmentResponse `json:"enrollment"`
	Course     courseResponse     `json:"course"`
}

func toEnrolledCourseResponses(items []enrollment.EnrolledCourse) []enrolledCourseResponse {
	out := make([]enrolledCourseResponse, 0, len(items))
	for _, item := range items {
		out = append(out, enrolledCourseResponse{
			Enrollment: toEnrollmentResponse(item.Enrollment),
			Course:     toCourseResponse(item.Course),
		})
	}
	return out
}

// Enroll はコースへの受講登録を行う。
// POST /api/courses/{id}/enroll
func (h *EnrollmentHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	actor := actorFromRequest(w, r)
	if actor == nil {
		return
	}

	e, err := h.enrollments.Enroll(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEnrollmentResponse(e))
}

// Unenroll は受講登録を解除する。
// DELETE /api/courses/{id}/enroll
func (h *EnrollmentHandler) Unenroll(w http.ResponseWriter, r *http.Request) {
	actor := actorFromRequest(w, r)
	if actor == nil {
		return
	}

	if err := h.enrollments.Unenroll(r.Context(), actor, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetOwn は操作主体の受講レコードを返す。
// GET /api/courses/{id}/enrollment
func (h *EnrollmentHandler) GetOwn(w http.ResponseWriter, r *http.Request) {
	actor := actorFromRequest(w, r)
	if actor == nil {
		return
	}

	e, err := h.enrollments.Get(r.Context(), actor.UID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEnrollmentResponse(e))
}

// ToggleModule はモジュールの完了状態を反転する。
// POST /api/courses/{id}/modules/{index}/toggle
func (h *EnrollmentHandler) ToggleModule(w http.ResponseWriter, r *http.Request) {
	actor := actorFromRequest(w, r)
	if actor == nil {
		return
	}

	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("モジュール番号が不正です。"))
		return
	}

	e, err := h.enrollments.ToggleModule(r.Context(), actor, chi.URLParam(r, "id"), index)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEnrollmentResponse(e))
}

// ListOwn は操作主体の受講中コース一覧（コース情報込み）を返す。
// GET /api/enrollments
func (h *EnrollmentHandler) ListOwn(w http.ResponseWriter, r *http.Request) {
	actor := actorFromRequest(w, r)
	if actor == nil {
		return
	}

	view := enrollment.NewStudentView(h.store, actor.UID, sessionSink(h.hub, r), h.logger)
	items, err := collectView(r.Context(), view)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEnrolledCourseResponses(items))
}

// StreamOwn は受講中コース一覧をSSEで配信する。
// GET /api/enrollments/stream
func (h *EnrollmentHandler) StreamOwn(w http.ResponseWriter, r *http.Request) {
	actor := actorFromRequest(w, r)
	if actor == nil {
		return
	}
	streamView(w, r, enrollment.NewStudentView(h.store, actor.UID, sessionSink(h.hub, r), h.logger))
}

// Stats は操作主体の受講状況サマリを返す。ダッシュボード用。
// GET /api/enrollments/stats
func (h *EnrollmentHandler) Stats(w http.ResponseWriter, r *http.Request) {
	actor := actorFromRequest(w, r)
	if actor == nil {
		return
	}

	view := enrollment.NewStudentView(h.store, actor.UID, sessionSink(h.hub, r), h.logger)
	items, err := collectView(r.Context(), view)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, enrollment.ComputeStats(items))
}

// ListRoster は指定コースの受講者一覧を返す。担当講師用。
// GET /api/courses/{id}/roster
func (h *EnrollmentHandler) ListRoster(w http.ResponseWriter, r *http.Request) {
	view := enrollment.NewCourseRosterView(h.store, chi.URLParam(r, "id"), sessionSink(h.hub, r), h.logger)
	items, err := collectView(r.Context(), view)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	out := make([]enrollmentResponse, 0, len(items))
	for _, e := range items {
		out = append(out, toEnrollmentResponse(e))
	}
	writeJSON(w, http.StatusOK, out)
}
