package quiz

import (
	"log/slog"

	"github.com/hitoshi/manabiya/internal/directory"
	"github.com/hitoshi/manabiya/internal/livequery"
	"github.com/hitoshi/manabiya/internal/model"
	"github.com/hitoshi/manabiya/internal/notify"
)

func mapQuestion(doc *directory.Document) (*model.QuizQuestion, bool) {
	if !doc.Exists {
		return nil, false
	}
	return DecodeQuestion(doc), true
}

// NewCourseQuizView は指定コースの設問のライブビューを生成する。
// 出題順を保つため作成日時の昇順で整列する。
func NewCourseQuizView(store directory.Store, courseID string, sink notify.Sink, logger *slog.Logger) *livequery.View[*model.QuizQuestion] {
	return livequery.NewView(store, livequery.Config[*model.QuizQuestion]{
		Name:       "quizzes",
		Collection: QuizCollection(courseID),
		Map:        mapQuestion,
		Less: func(a, b *model.QuizQuestion) bool {
			return a.CreatedAt.Before(b.CreatedAt)
		},
	}, sink, logger)
}
