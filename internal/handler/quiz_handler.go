package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/manabiya/internal/directory"
	"github.com/hitoshi/manabiya/internal/notify"
	"github.com/hitoshi/manabiya/internal/quiz"
)

// QuizHandler はクイズ管理と採点のHTTPハンドラー。
type QuizHandler struct {
	quizzes *quiz.Service
	store   directory.Store
	hub     *notify.Hub
	logger  *slog.Logger
}

// NewQuizHandler はQuizHandlerを生成する。
func NewQuizHandler(quizzes *quiz.Service, store directory.Store, hub *notify.Hub, logger *slog.Logger) *QuizHandler {
	return &QuizHandler{
		quizzes: quizzes,
		store:   store,
		hub:     hub,
		logger:  logger,
	}
}

// questionResponse はクイズ設問のAPIレスポンス。
// 受講者向けには正解番号を含めない形式（studentQuestionResponse）を使う。
type questionResponse struct {
	ID            string    `json:"id"`
	Question      string    `json:"question"`
	Options       []string  `json:"options"`
	CorrectAnswer int       `json:"correctAnswer"`
	CreatedAt     time.Time `json:"createdAt"`
}

// studentQuestionResponse は正解番号を伏せた受講者向けの設問レスポンス。
type studentQuestionResponse struct {
	ID        string    `json:"id"`
	Question  string    `json:"question"`
	Options   []string  `json:"options"`
	CreatedAt time.Time `json:"createdAt"`
}

// List は指定コースの設問一覧を返す。受講者向けに正解番号は伏せる。
// GET /api/courses/{id}/quizzes
func (h *QuizHandler) List(w http.ResponseWriter, r *http.Request) {
	questions, err := h.quizzes.List(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	out := make([]studentQuestionResponse, 0, len(questions))
	for _, q := range questions {
		out = append(out, studentQuestionResponse{
			ID:        q.ID,
			Question:  q.Question,
			Options:   q.Options,
			CreatedAt: q.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// ListFull は正解番号込みの設問一覧を返す。担当講師の編集画面用。
// GET /api/instructor/courses/{id}/quizzes
func (h *QuizHandler) ListFull(w http.ResponseWriter, r *http.Request) {
	questions, err := h.quizzes.List(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	out := make([]questionResponse, 0, len(questions))
	for _, q := range questions {
		out = append(out, questionResponse{
			ID:            q.ID,
			Question:      q.Question,
			Options:       q.Options,
			CorrectAnswer: q.CorrectAnswer,
			CreatedAt:     q.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// Add は設問を追加する。
// POST /api/courses/{id}/quizzes
func (h *QuizHandler) Add(w http.ResponseWriter, r *http.Request) {
	actor := actorFromRequest(w, r)
	if actor == nil {
		return
	}

	var req quiz.Input
	if !decodeBody(w, r, &req) {
		return
	}

	q, err := h.quizzes.Add(r.Context(), actor, chi.URLParam(r, "id"), req)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, questionResponse{
		ID:            q.ID,
		Question:      q.Question,
		Options:       q.Options,
		CorrectAnswer: q.CorrectAnswer,
		CreatedAt:     q.CreatedAt,
	})
}

// Update は設問を更新する。
// PUT /api/courses/{id}/quizzes/{questionID}
func (h *QuizHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor := actorFromRequest(w, r)
	if actor == nil {
		return
	}

	var req quiz.Input
	if !decodeBody(w, r, &req) {
		return
	}

	err := h.quizzes.Update(r.Context(), actor, chi.URLParam(r, "id"), chi.URLParam(r, "questionID"), req)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Delete は設問を削除する。
// DELETE /api/courses/{id}/quizzes/{questionID}
func (h *QuizHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor := actorFromRequest(w, r)
	if actor == nil {
		return
	}

	err := h.quizzes.Delete(r.Context(), actor, chi.URLParam(r, "id"), chi.URLParam(r, "questionID"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// scoreRequest はクイズ採点リクエストのボディ。
// answersは設問の出題順（作成日時の昇順）に対応する選択肢番号。
type scoreRequest struct {
	Answers []int `json:"answers"`
}

// Score は回答を採点して結果を返す。
// POST /api/courses/{id}/quizzes/score
func (h *QuizHandler) Score(w http.ResponseWriter, r *http.Request) {
	actor := actorFromRequest(w, r)
	if actor == nil {
		return
	}

	var req scoreRequest
	if !decodeBody(w, r, &req) {
		return
	}

	questions, err := h.quizzes.List(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	result, err := quiz.Score(questions, req.Answers)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Stream は指定コースの設問一覧をSSEで配信する。講師の編集画面用。
// GET /api/instructor/courses/{id}/quizzes/stream
func (h *QuizHandler) Stream(w http.ResponseWriter, r *http.Request) {
	streamView(w, r, quiz.NewCourseQuizView(h.store, chi.URLParam(r, "id"), sessionSink(h.hub, r), h.logger))
}
