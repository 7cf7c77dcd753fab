package user

import (
	"log/slog"
	"time"

	"github.com/hitoshi/manabiya/internal/directory"
	"github.com/hitoshi/manabiya/internal/livequery"
	"github.com/hitoshi/manabiya/internal/model"
	"github.com/hitoshi/manabiya/internal/notify"
)

func mapProfile(doc *directory.Document) (*model.Profile, bool) {
	if !doc.Exists {
		return nil, false
	}
	return DecodeProfile(doc), true
}

func profileCreatedAt(p *model.Profile) time.Time { return p.CreatedAt }

// NewAdminUsersView は全ユーザーのライブビューを生成する。管理者のユーザー管理画面で使用する。
func NewAdminUsersView(store directory.Store, sink notify.Sink, logger *slog.Logger) *livequery.View[*model.Profile] {
	return livequery.NewView(store, livequery.Config[*model.Profile]{
		Name:       "admin-users",
		Collection: CollectionUsers,
		Map:        mapProfile,
		Less:       livequery.ByCreatedAtDesc(profileCreatedAt),
	}, sink, logger)
}

// NewPendingInstructorsView は承認待ち講師のライブビューを生成する。
func NewPendingInstructorsView(store directory.Store, sink notify.Sink, logger *slog.Logger) *livequery.View[*model.Profile] {
	return livequery.NewView(store, livequery.Config[*model.Profile]{
		Name:       "pending-instructors",
		Collection: CollectionUsers,
		Filters:    []directory.Filter{{Field: "role", Value: string(model.RoleInstructorPending)}},
		Map:        mapProfile,
		Less:       livequery.ByCreatedAtDesc(profileCreatedAt),
	}, sink, logger)
}
