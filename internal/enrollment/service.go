// Package enrollment は受講登録と進捗管理のドメインロジックを提供する。
package enrollment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/hitoshi/manabiya/internal/course"
	"github.com/hitoshi/manabiya/internal/directory"
	"github.com/hitoshi/manabiya/internal/model"
)

// CollectionEnrollments は受講レコードのコレクション名。
const CollectionEnrollments = "enrollments"

// Service は受講登録・進捗のサービス層。
type Service struct {
	store   directory.Store
	courses *course.Service
	logger  *slog.Logger
	now     func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(store directory.Store, courses *course.Service, logger *slog.Logger) *Service {
	return &Service{
		store:   store,
		courses: courses,
		logger:  logger,
		now:     time.Now,
	}
}

// Enroll は受講者をコースに登録する。
// ドキュメントIDを(userID, courseID)から決定的に導出し、作成済みIDへの
// Createはストアが拒否するため、同じペアの登録は高々1件であることが保証される。
func (s *Service) Enroll(ctx context.Context, actor *model.Profile, courseID string) (*model.Enrollment, error) {
	if actor == nil {
		return nil, model.NewValidationError("受講登録にはサインインが必要です。")
	}

	c, err := s.courses.Get(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if c.Status != model.CourseStatusPublished {
		return nil, model.NewValidationError("公開されていないコースには登録できません。")
	}

	id := model.EnrollmentID(actor.UID, courseID)
	if _, err := s.store.Get(ctx, CollectionEnrollments, id); err == nil {
		return nil, model.NewAlreadyEnrolledError()
	} else if !errors.Is(err, directory.ErrNotFound) {
		return nil, fmt.Errorf("受講状態の確認に失敗しました: %w", err)
	}

	e := &model.Enrollment{
		ID:               id,
		UserID:           actor.UID,
		CourseID:         courseID,
		Progress:         0,
		CompletedModules: []int{},
		EnrolledAt:       s.now(),
	}
	if _, err := s.store.Create(ctx, CollectionEnrollments, id, encodeEnrollment(e)); err != nil {
		if errors.Is(err, directory.ErrAlreadyExists) {
			// 事前チェックとCreateの間に並行登録が割り込んだ場合もここで弾く。
			return nil, model.NewAlreadyEnrolledError()
		}
		return nil, fmt.Errorf("受講登録に失敗しました: %w", err)
	}

	s.logger.Info("受講登録しました",
		slog.String("user_id", actor.UID),
		slog.String("course_id", courseID),
	)
	return e, nil
}

// Unenroll は受講登録を解除する。本人のみ実行できる。
func (s *Service) Unenroll(ctx context.Context, actor *model.Profile, courseID string) error {
	if actor == nil {
		return model.NewValidationError("サインインが必要です。")
	}
	id := model.EnrollmentID(actor.UID, courseID)
	if _, err := s.store.Get(ctx, CollectionEnrollments, id); err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return model.NewNotEnrolledError()
		}
		return fmt.Errorf("受講状態の確認に失敗しました: %w", err)
	}
	if err := s.store.Delete(ctx, CollectionEnrollments, id); err != nil {
		return fmt.Errorf("受講解除に失敗しました: %w", err)
	}
	return nil
}

// Get は(userID, courseID)の受講レコードを返す。未登録ならNotEnrolledエラー。
func (s *Service) Get(ctx context.Context, userID, courseID string) (*model.Enrollment, error) {
	doc, err := s.store.Get(ctx, CollectionEnrollments, model.EnrollmentID(userID, courseID))
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return nil, model.NewNotEnrolledError()
		}
		return nil, fmt.Errorf("受講レコードの取得に失敗しました: %w", err)
	}
	return DecodeEnrollment(doc), nil
}

// ToggleModule はモジュールの完了状態を反転し、進捗率を再計算して保存する。
// 進捗率は floor(完了数 / 総モジュール数 * 100)。モジュール0件のコースは常に0。
func (s *Service) ToggleModule(ctx context.Context, actor *model.Profile, courseID string, moduleIndex int) (*model.Enrollment, error) {
	if actor == nil {
		return nil, model.NewValidationError("サインインが必要です。")
	}

	c, err := s.courses.Get(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if moduleIndex < 0 || moduleIndex >= len(c.Modules) {
		return nil, model.NewValidationError("モジュール番号が範囲外です。")
	}

	e, err := s.Get(ctx, actor.UID, courseID)
	if err != nil {
		return nil, err
	}

	e.CompletedModules = toggleIndex(e.CompletedModules, moduleIndex)
	e.Progress = Progress(len(e.CompletedModules), len(c.Modules))

	fields := map[string]any{
		"completedModules": e.CompletedModules,
		"progress":         e.Progress,
	}
	if err := s.store.Update(ctx, CollectionEnrollments, e.ID, fields); err != nil {
		return nil, fmt.Errorf("進捗の保存に失敗しました: %w", err)
	}
	return e, nil
}

// Progress は完了数と総モジュール数から進捗率（0〜100）を計算する。
// 総数0の場合は0を返す。端数は切り捨てる。
func Progress(completed, total int) int {
	if total <= 0 {
		return 0
	}
	return completed * 100 / total
}

// toggleIndex は完了インデックス集合に対する反転操作を行い、昇順で返す。
func toggleIndex(completed []int, index int) []int {
	out := make([]int, 0, len(completed)+1)
	removed := false
	for _, i := range completed {
		if i == index {
			removed = true
			continue
		}
		out = append(out, i)
	}
	if !removed {
		out = append(out, index)
	}
	sort.Ints(out)
	return out
}
