package course

import (
	"log/slog"
	"time"

	"github.com/hitoshi/manabiya/internal/directory"
	"github.com/hitoshi/manabiya/internal/livequery"
	"github.com/hitoshi/manabiya/internal/model"
	"github.com/hitoshi/manabiya/internal/notify"
)

func mapCourse(doc *directory.Document) (*model.Course, bool) {
	if !doc.Exists {
		return nil, false
	}
	return DecodeCourse(doc), true
}

func courseCreatedAt(c *model.Course) time.Time { return c.CreatedAt }

// NewCatalogView は公開中コースのライブビューを生成する。
// 受講者のコース一覧とダッシュボードで使用する。作成日時の降順で整列する。
func NewCatalogView(store directory.Store, sink notify.Sink, logger *slog.Logger) *livequery.View[*model.Course] {
	return livequery.NewView(store, livequery.Config[*model.Course]{
		Name:       "catalog",
		Collection: CollectionCourses,
		Filters:    []directory.Filter{{Field: "status", Value: string(model.CourseStatusPublished)}},
		Map:        mapCourse,
		Less:       livequery.ByCreatedAtDesc(courseCreatedAt),
	}, sink, logger)
}

// NewInstructorView は指定講師が作成したコースのライブビューを生成する。
// 下書きを含むすべてのステータスを表示する。
func NewInstructorView(store directory.Store, instructorID string, sink notify.Sink, logger *slog.Logger) *livequery.View[*model.Course] {
	return livequery.NewView(store, livequery.Config[*model.Course]{
		Name:       "instructor-courses",
		Collection: CollectionCourses,
		Filters:    []directory.Filter{{Field: "createdBy", Value: instructorID}},
		Map:        mapCourse,
		Less:       livequery.ByCreatedAtDesc(courseCreatedAt),
	}, sink, logger)
}

// RecentCount はダッシュボードに表示する新着コースの件数。
const RecentCount = 3

// Recent は作成日時の降順で整列済みの一覧から先頭n件を返す。
// ダッシュボードの新着コース表示で使用する。
func Recent(items []*model.Course, n int) []*model.Course {
	if n < 0 {
		n = 0
	}
	if len(items) > n {
		items = items[:n]
	}
	return items
}

// NewAdminView は全コースのライブビューを生成する。管理画面で使用する。
func NewAdminView(store directory.Store, sink notify.Sink, logger *slog.Logger) *livequery.View[*model.Course] {
	return livequery.NewView(store, livequery.Config[*model.Course]{
		Name:       "admin-courses",
		Collection: CollectionCourses,
		Map:        mapCourse,
		Less:       livequery.ByCreatedAtDesc(courseCreatedAt),
	}, sink, logger)
}
