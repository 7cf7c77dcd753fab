package enrollment

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/manabiya/internal/course"
	"github.com/hitoshi/manabiya/internal/directory"
	"github.com/hitoshi/manabiya/internal/livequery"
	"github.com/hitoshi/manabiya/internal/model"
	"github.com/hitoshi/manabiya/internal/notify"
)

// EnrolledCourse は受講レコードとコース情報の結合結果。
// 受講者の「受講中のコース」一覧と進捗表示で使用する。
type EnrolledCourse struct {
	Enrollment *model.Enrollment `json:"enrollment"`
	Course     *model.Course     `json:"course"`
}

// DecodeEnrollment はenrollments/{id}ドキュメントをEnrollmentへデコードする。
func DecodeEnrollment(doc *directory.Document) *model.Enrollment {
	return &model.Enrollment{
		ID:               doc.ID,
		UserID:           doc.StringField("userId"),
		CourseID:         doc.StringField("courseId"),
		Progress:         doc.IntField("progress"),
		CompletedModules: doc.IntSliceField("completedModules"),
		EnrolledAt:       doc.TimeField("enrolledAt"),
	}
}

func encodeEnrollment(e *model.Enrollment) map[string]any {
	return map[string]any{
		"userId":           e.UserID,
		"courseId":         e.CourseID,
		"progress":         e.Progress,
		"completedModules": e.CompletedModules,
		"enrolledAt":       e.EnrolledAt,
	}
}

// NewStudentView は指定受講者の受講コース一覧のライブビューを生成する。
// 受講レコードごとにコースを結合し、コースが削除済みのレコードは
// エラーにせず結果から黙って除外する（一覧全体を壊さないため）。
func NewStudentView(store directory.Store, userID string, sink notify.Sink, logger *slog.Logger) *livequery.View[EnrolledCourse] {
	return livequery.NewView(store, livequery.Config[EnrolledCourse]{
		Name:       "my-courses",
		Collection: CollectionEnrollments,
		Filters:    []directory.Filter{{Field: "userId", Value: userID}},
		Map: func(doc *directory.Document) (EnrolledCourse, bool) {
			if !doc.Exists {
				return EnrolledCourse{}, false
			}
			return EnrolledCourse{Enrollment: DecodeEnrollment(doc)}, true
		},
		Enrich: func(ctx context.Context, items []EnrolledCourse) []EnrolledCourse {
			out := make([]EnrolledCourse, 0, len(items))
			for _, item := range items {
				doc, err := store.Get(ctx, course.CollectionCourses, item.Enrollment.CourseID)
				if err != nil {
					// コースが消えた受講レコードは表示から外すだけにとどめる
					logger.Warn("受講コースの結合に失敗しました",
						slog.String("course_id", item.Enrollment.CourseID),
						slog.String("error", err.Error()),
					)
					continue
				}
				item.Course = course.DecodeCourse(doc)
				out = append(out, item)
			}
			return out
		},
		Less: livequery.ByCreatedAtDesc(func(e EnrolledCourse) time.Time { return e.Enrollment.EnrolledAt }),
	}, sink, logger)
}

// NewCourseRosterView は指定コースの受講者一覧のライブビューを生成する。
// 講師の受講者管理画面で使用する。
func NewCourseRosterView(store directory.Store, courseID string, sink notify.Sink, logger *slog.Logger) *livequery.View[*model.Enrollment] {
	return livequery.NewView(store, livequery.Config[*model.Enrollment]{
		Name:       "course-roster",
		Collection: CollectionEnrollments,
		Filters:    []directory.Filter{{Field: "courseId", Value: courseID}},
		Map: func(doc *directory.Document) (*model.Enrollment, bool) {
			if !doc.Exists {
				return nil, false
			}
			return DecodeEnrollment(doc), true
		},
		Less: livequery.ByCreatedAtDesc(func(e *model.Enrollment) time.Time { return e.EnrolledAt }),
	}, sink, logger)
}

// Stats は受講者ダッシュボードの集計値。
type Stats struct {
	EnrolledCount  int `json:"enrolledCount"`
	CompletedCount int `json:"completedCount"`
	InProgress     int `json:"inProgressCount"`
}

// ComputeStats は受講コース一覧からダッシュボード統計を計算する。
// 完了は進捗100%のコース。
func ComputeStats(items []EnrolledCourse) Stats {
	st := Stats{EnrolledCount: len(items)}
	for _, item := range items {
		if item.Enrollment.Progress >= 100 {
			st.CompletedCount++
		} else {
			st.InProgress++
		}
	}
	return st
}
