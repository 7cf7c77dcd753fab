package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/manabiya/internal/directory"
	"github.com/hitoshi/manabiya/internal/model"
	"github.com/hitoshi/manabiya/internal/notify"
	"github.com/hitoshi/manabiya/internal/submission"
)

// SubmissionHandler は課題提出と採点のHTTPハンドラー。
type SubmissionHandler struct {
	submissions *submission.Service
	store       directory.Store
	hub         *notify.Hub
	logger      *slog.Logger
}

// NewSubmissionHandler はSubmissionHandlerを生成する。
func NewSubmissionHandler(submissions *submission.Service, store directory.Store, hub *notify.Hub, logger *slog.Logger) *SubmissionHandler {
	return &SubmissionHandler{
		submissions: submissions,
		store:       store,
		hub:         hub,
		logger:      logger,
	}
}

// submissionResponse は提出物のAPIレスポンス。
type submissionResponse struct {
	ID          string     `json:"id"`
	UserID      string     `json:"userId"`
	UserName    string     `json:"userName"`
	UserEmail   string     `json:"userEmail"`
	FileURL     string     `json:"fileUrl"`
	SubmittedAt time.Time  `json:"submittedAt"`
	Grade       string     `json:"grade,omitempty"`
	GradedBy    string     `json:"gradedBy,omitempty"`
	GradedAt    *time.Time `json:"gradedAt,omitempty"`
}

func toSubmissionResponse(sub *model.Submission) submissionResponse {
	resp := submissionResponse{
		ID:          sub.ID,
		UserID:      sub.UserID,
		UserName:    sub.UserName,
		UserEmail:   sub.UserEmail,
		FileURL:     sub.FileURL,
		SubmittedAt: sub.SubmittedAt,
		Grade:       sub.Grade,
		GradedBy:    sub.GradedBy,
	}
	if !sub.GradedAt.IsZero() {
		gradedAt := sub.GradedAt
		resp.GradedAt = &gradedAt
	}
	return resp
}

// submitRequest は課題提出リクエストのボディ。
type submitRequest struct {
	FileURL string `json:"fileUrl"`
}

// Submit は課題ファイルのURLを提出する。
// POST /api/courses/{id}/submissions
func (h *SubmissionHandler) Submit(w http.ResponseWriter, r *http.Request) {
	actor := actorFromRequest(w, r)
	if actor == nil {
		return
	}

	var req submitRequest
	if !decodeBody(w, r, &req) {
		return
	}

	sub, err := h.submissions.Submit(r.Context(), actor, chi.URLParam(r, "id"), req.FileURL)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSubmissionResponse(sub))
}

// GetOwn は操作主体の提出物を返す。
// GET /api/courses/{id}/submissions/me
func (h *SubmissionHandler) GetOwn(w http.ResponseWriter, r *http.Request) {
	actor := actorFromRequest(w, r)
	if actor == nil {
		return
	}

	sub, err := h.submissions.GetOwn(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSubmissionResponse(sub))
}

// List は指定コースの提出物一覧を返す。担当講師の採点画面用。
// GET /api/courses/{id}/submissions
func (h *SubmissionHandler) List(w http.ResponseWriter, r *http.Request) {
	view := submission.NewCourseSubmissionsView(h.store, chi.URLParam(r, "id"), sessionSink(h.hub, r), h.logger)
	items, err := collectView(r.Context(), view)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	out := make([]submissionResponse, 0, len(items))
	for _, sub := range items {
		out = append(out, toSubmissionResponse(sub))
	}
	writeJSON(w, http.StatusOK, out)
}

// Stream は指定コースの提出物一覧をSSEで配信する。
// GET /api/courses/{id}/submissions/stream
func (h *SubmissionHandler) Stream(w http.ResponseWriter, r *http.Request) {
	streamView(w, r, submission.NewCourseSubmissionsView(h.store, chi.URLParam(r, "id"), sessionSink(h.hub, r), h.logger))
}

// gradeRequest は採点リクエストのボディ。
type gradeRequest struct {
	Grade string `json:"grade"`
}

// Grade は提出物を採点する。
// POST /api/courses/{id}/submissions/{submissionID}/grade
func (h *SubmissionHandler) Grade(w http.ResponseWriter, r *http.Request) {
	actor := actorFromRequest(w, r)
	if actor == nil {
		return
	}

	var req gradeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	err := h.submissions.Grade(r.Context(), actor, chi.URLParam(r, "id"), chi.URLParam(r, "submissionID"), req.Grade)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
