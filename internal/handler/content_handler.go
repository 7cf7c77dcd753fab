package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/manabiya/internal/content"
	"github.com/hitoshi/manabiya/internal/directory"
	"github.com/hitoshi/manabiya/internal/model"
	"github.com/hitoshi/manabiya/internal/notify"
)

// ContentHandler は補助教材管理のHTTPハンドラー。
type ContentHandler struct {
	contents *content.Service
	store    directory.Store
	hub      *notify.Hub
	logger   *slog.Logger
}

// NewContentHandler はContentHandlerを生成する。
func NewContentHandler(contents *content.Service, store directory.Store, hub *notify.Hub, logger *slog.Logger) *ContentHandler {
	return &ContentHandler{
		contents: contents,
		store:    store,
		hub:      hub,
		logger:   logger,
	}
}

// contentItemResponse は教材のAPIレスポンス。
type contentItemResponse struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Type        string    `json:"type"`
	URL         string    `json:"url"`
	Description string    `json:"description"`
	Deadline    string    `json:"deadline"`
	CreatedAt   time.Time `json:"createdAt"`
}

func toContentItemResponse(item *model.ContentItem) contentItemResponse {
	return contentItemResponse{
		ID:          item.ID,
		Title:       item.Title,
		Type:        string(item.Type),
		URL:         item.URL,
		Description: item.Description,
		Deadline:    item.Deadline,
		CreatedAt:   item.CreatedAt,
	}
}

// List は指定コースの教材一覧を返す。
// GET /api/courses/{id}/content
func (h *ContentHandler) List(w http.ResponseWriter, r *http.Request) {
	view := content.NewCourseContentView(h.store, chi.URLParam(r, "id"), sessionSink(h.hub, r), h.logger)
	items, err := collectView(r.Context(), view)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	out := make([]contentItemResponse, 0, len(items))
	for _, item := range items {
		out = append(out, toContentItemResponse(item))
	}
	writeJSON(w, http.StatusOK, out)
}

// Stream は指定コースの教材一覧をSSEで配信する。
// GET /api/courses/{id}/content/stream
func (h *ContentHandler) Stream(w http.ResponseWriter, r *http.Request) {
	streamView(w, r, content.NewCourseContentView(h.store, chi.URLParam(r, "id"), sessionSink(h.hub, r), h.logger))
}

// Add は教材を追加する。
// POST /api/courses/{id}/content
func (h *ContentHandler) Add(w http.ResponseWriter, r *http.Request) {
	actor := actorFromRequest(w, r)
	if actor == nil {
		return
	}

	var req content.Input
	if !decodeBody(w, r, &req) {
		return
	}

	item, err := h.contents.Add(r.Context(), actor, chi.URLParam(r, "id"), req)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toContentItemResponse(item))
}

// Update は教材を更新する。
// PUT /api/courses/{id}/content/{contentID}
func (h *ContentHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor := actorFromRequest(w, r)
	if actor == nil {
		return
	}

	var req content.Input
	if !decodeBody(w, r, &req) {
		return
	}

	err := h.contents.Update(r.Context(), actor, chi.URLParam(r, "id"), chi.URLParam(r, "contentID"), req)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Delete は教材を削除する。
// DELETE /api/courses/{id}/content/{contentID}
func (h *ContentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor := actorFromRequest(w, r)
	if actor == nil {
		return
	}

	err := h.contents.Delete(r.Context(), actor, chi.URLParam(r, "id"), chi.URLParam(r, "contentID"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
