package content

import (
	"log/slog"
	"time"

	"github.com/hitoshi/manabiya/internal/directory"
	"github.com/hitoshi/manabiya/internal/livequery"
	"github.com/hitoshi/manabiya/internal/model"
	"github.com/hitoshi/manabiya/internal/notify"
)

func mapItem(doc *directory.Document) (*model.ContentItem, bool) {
	if !doc.Exists {
		return nil, false
	}
	return DecodeItem(doc), true
}

func itemCreatedAt(item *model.ContentItem) time.Time { return item.CreatedAt }

// NewCourseContentView は指定コースの教材のライブビューを生成する。
// 受講者・講師の双方の教材一覧で使用する。作成日時の降順で整列する。
func NewCourseContentView(store directory.Store, courseID string, sink notify.Sink, logger *slog.Logger) *livequery.View[*model.ContentItem] {
	return livequery.NewView(store, livequery.Config[*model.ContentItem]{
		Name:       "content",
		Collection: ContentCollection(courseID),
		Map:        mapItem,
		Less:       livequery.ByCreatedAtDesc(itemCreatedAt),
	}, sink, logger)
}
