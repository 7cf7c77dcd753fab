package submission

import (
	"log/slog"
	"time"

	"github.com/hitoshi/manabiya/internal/directory"
	"github.com/hitoshi/manabiya/internal/livequery"
	"github.com/hitoshi/manabiya/internal/model"
	"github.com/hitoshi/manabiya/internal/notify"
)

func mapSubmission(doc *directory.Document) (*model.Submission, bool) {
	if !doc.Exists {
		return nil, false
	}
	return DecodeSubmission(doc), true
}

func submittedAt(sub *model.Submission) time.Time { return sub.SubmittedAt }

// NewCourseSubmissionsView は指定コースの提出物のライブビューを生成する。
// 担当講師の採点画面で使用する。提出日時の降順で整列する。
func NewCourseSubmissionsView(store directory.Store, courseID string, sink notify.Sink, logger *slog.Logger) *livequery.View[*model.Submission] {
	return livequery.NewView(store, livequery.Config[*model.Submission]{
		Name:       "submissions",
		Collection: SubmissionCollection(courseID),
		Map:        mapSubmission,
		Less:       livequery.ByCreatedAtDesc(submittedAt),
	}, sink, logger)
}
