// Package course はコース作成・編集・公開のドメインロジックを提供する。
package course

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/manabiya/internal/directory"
	"github.com/hitoshi/manabiya/internal/model"
	"github.com/hitoshi/manabiya/internal/security"
)

// CollectionCourses はコースドキュメントのコレクション名。
const CollectionCourses = "courses"

// Service はコース管理のサービス層。
// 入力検証 → サニタイズ → 所有者確認 → 永続化のフローを統括する。
// 所有者確認はバックエンドのアクセスルールと二重に行う。
type Service struct {
	store     directory.Store
	sanitizer security.ContentSanitizerService
	logger    *slog.Logger
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(store directory.Store, sanitizer security.ContentSanitizerService, logger *slog.Logger) *Service {
	return &Service{
		store:     store,
		sanitizer: sanitizer,
		logger:    logger,
		now:       time.Now,
	}
}

// CreateInput はコース作成の入力。
type CreateInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Thumbnail   string `json:"thumbnail"`
}

// Create は新しいコースを下書き状態で作成する。講師のみ実行できる。
func (s *Service) Create(ctx context.Context, actor *model.Profile, in CreateInput) (*model.Course, error) {
	if err := requireInstructor(actor); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Title) == "" {
		return nil, model.NewValidationError("タイトルは必須です。")
	}
	if strings.TrimSpace(in.Description) == "" {
		return nil, model.NewValidationError("説明は必須です。")
	}
	if in.Thumbnail != "" {
		if err := security.ValidateContentURL(in.Thumbnail); err != nil {
			return nil, model.NewValidationError("サムネイルURLが不正です。")
		}
	}

	now := s.now()
	course := &model.Course{
		Title:         strings.TrimSpace(in.Title),
		Description:   s.sanitizer.Sanitize(in.Description),
		Category:      strings.TrimSpace(in.Category),
		Thumbnail:     in.Thumbnail,
		Modules:       []model.Module{},
		CreatedBy:     actor.UID,
		CreatedByName: actor.Name,
		Status:        model.CourseStatusDraft,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	id, err := s.store.Create(ctx, CollectionCourses, "", encodeCourse(course))
	if err != nil {
		return nil, fmt.Errorf("コースの作成に失敗しました: %w", err)
	}
	course.ID = id

	s.logger.Info("コースを作成しました",
		slog.String("course_id", id),
		slog.String("user_id", actor.UID),
	)
	return course, nil
}

// Get はコースを1件取得する。
func (s *Service) Get(ctx context.Context, courseID string) (*model.Course, error) {
	doc, err := s.store.Get(ctx, CollectionCourses, courseID)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return nil, model.NewCourseNotFoundError()
		}
		return nil, fmt.Errorf("コースの取得に失敗しました: %w", err)
	}
	return DecodeCourse(doc), nil
}

// UpdateInput はコース更新の入力。nilフィールドは変更しない。
type UpdateInput struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Category    *string `json:"category"`
	Thumbnail   *string `json:"thumbnail"`
}

// Update はコースのメタデータを部分更新する。所有者のみ実行できる。
func (s *Service) Update(ctx context.Context, actor *model.Profile, courseID string, in UpdateInput) error {
	course, err := s.requireOwned(ctx, actor, courseID)
	if err != nil {
		return err
	}

	fields := map[string]any{"updatedAt": s.now()}
	if in.Title != nil {
		if strings.TrimSpace(*in.Title) == "" {
			return model.NewValidationError("タイトルは必須です。")
		}
		fields["title"] = strings.TrimSpace(*in.Title)
	}
	if in.Description != nil {
		if strings.TrimSpace(*in.Description) == "" {
			return model.NewValidationError("説明は必須です。")
		}
		fields["description"] = s.sanitizer.Sanitize(*in.Description)
	}
	if in.Category != nil {
		fields["category"] = strings.TrimSpace(*in.Category)
	}
	if in.Thumbnail != nil {
		if *in.Thumbnail != "" {
			if err := security.ValidateContentURL(*in.Thumbnail); err != nil {
				return model.NewValidationError("サムネイルURLが不正です。")
			}
		}
		fields["thumbnail"] = *in.Thumbnail
	}

	if err := s.store.Update(ctx, CollectionCourses, course.ID, fields); err != nil {
		return fmt.Errorf("コースの更新に失敗しました: %w", err)
	}
	return nil
}

// SetStatus はコースの公開状態を変更する。
// draft/publishedの切り替えは所有者、inactiveへの変更は管理者のみ。
func (s *Service) SetStatus(ctx context.Context, actor *model.Profile, courseID string, status model.CourseStatus) error {
	switch status {
	case model.CourseStatusDraft, model.CourseStatusPublished:
		if _, err := s.requireOwned(ctx, actor, courseID); err != nil {
			return err
		}
	case model.CourseStatusInactive:
		if actor == nil || actor.Role != model.RoleAdmin {
			return model.NewNotCourseOwnerError()
		}
		if _, err := s.Get(ctx, courseID); err != nil {
			return err
		}
	default:
		return model.NewValidationError(fmt.Sprintf("不正なステータスです: %q", status))
	}

	fields := map[string]any{"status": string(status), "updatedAt": s.now()}
	if err := s.store.Update(ctx, CollectionCourses, courseID, fields); err != nil {
		return fmt.Errorf("ステータスの変更に失敗しました: %w", err)
	}

	s.logger.Info("コースのステータスを変更しました",
		slog.String("course_id", courseID),
		slog.String("status", string(status)),
		slog.String("user_id", actor.UID),
	)
	return nil
}

// Delete はコースを削除する。所有者または管理者のみ実行できる。
func (s *Service) Delete(ctx context.Context, actor *model.Profile, courseID string) error {
	if actor != nil && actor.Role == model.RoleAdmin {
		if _, err := s.Get(ctx, courseID); err != nil {
			return err
		}
	} else if _, err := s.requireOwned(ctx, actor, courseID); err != nil {
		return err
	}

	if err := s.store.Delete(ctx, CollectionCourses, courseID); err != nil {
		return fmt.Errorf("コースの削除に失敗しました: %w", err)
	}

	s.logger.Info("コースを削除しました",
		slog.String("course_id", courseID),
		slog.String("user_id", actor.UID),
	)
	return nil
}

// ModuleInput はモジュール追加・更新の入力。
type ModuleInput struct {
	Title   string           `json:"title"`
	Type    model.ModuleType `json:"type"`
	Content string           `json:"content"`
}

// AddModule はコース末尾にモジュールを追加する。所有者のみ実行できる。
// 動画モジュールのURLは埋め込み形式へ正規化される。
func (s *Service) AddModule(ctx context.Context, actor *model.Profile, courseID string, in ModuleInput) (*model.Module, error) {
	course, err := s.requireOwned(ctx, actor, courseID)
	if err != nil {
		return nil, err
	}

	content, err := s.normalizeModuleContent(in)
	if err != nil {
		return nil, err
	}

	mod := model.Module{
		ID:      uuid.New().String(),
		Title:   strings.TrimSpace(in.Title),
		Type:    in.Type,
		Content: content,
	}
	modules := append(course.Modules, mod)

	if err := s.saveModules(ctx, course.ID, modules); err != nil {
		return nil, err
	}
	return &mod, nil
}

// UpdateModule は既存モジュールを更新する。所有者のみ実行できる。
func (s *Service) UpdateModule(ctx context.Context, actor *model.Profile, courseID, moduleID string, in ModuleInput) error {
	course, err := s.requireOwned(ctx, actor, courseID)
	if err != nil {
		return err
	}

	content, err := s.normalizeModuleContent(in)
	if err != nil {
		return err
	}

	found := false
	for i := range course.Modules {
		if course.Modules[i].ID == moduleID {
			course.Modules[i].Title = strings.TrimSpace(in.Title)
			course.Modules[i].Type = in.Type
			course.Modules[i].Content = content
			found = true
			break
		}
	}
	if !found {
		return model.NewValidationError("指定されたモジュールが見つかりません。")
	}

	return s.saveModules(ctx, course.ID, course.Modules)
}

// RemoveModule はモジュールを削除する。所有者のみ実行できる。
// 受講者のcompletedModulesはインデックスではなく削除後の配列に対して再解釈されるため、
// 進捗は次回のトグルで再計算される。
func (s *Service) RemoveModule(ctx context.Context, actor *model.Profile, courseID, moduleID string) error {
	course, err := s.requireOwned(ctx, actor, courseID)
	if err != nil {
		return err
	}

	modules := make([]model.Module, 0, len(course.Modules))
	for _, m := range course.Modules {
		if m.ID != moduleID {
			modules = append(modules, m)
		}
	}
	if len(modules) == len(course.Modules) {
		return model.NewValidationError("指定されたモジュールが見つかりません。")
	}

	return s.saveModules(ctx, course.ID, modules)
}

func (s *Service) saveModules(ctx context.Context, courseID string, modules []model.Module) error {
	fields := map[string]any{
		"modules":   encodeModules(modules),
		"updatedAt": s.now(),
	}
	if err := s.store.Update(ctx, CollectionCourses, courseID, fields); err != nil {
		return fmt.Errorf("モジュールの保存に失敗しました: %w", err)
	}
	return nil
}

// normalizeModuleContent はモジュール種別ごとの入力検証と正規化を行う。
func (s *Service) normalizeModuleContent(in ModuleInput) (string, error) {
	if strings.TrimSpace(in.Title) == "" {
		return "", model.NewValidationError("モジュールのタイトルは必須です。")
	}

	switch in.Type {
	case model.ModuleTypeText:
		if strings.TrimSpace(in.Content) == "" {
			return "", model.NewValidationError("テキストモジュールの本文は必須です。")
		}
		return s.sanitizer.Sanitize(in.Content), nil
	case model.ModuleTypeVideo:
		if err := security.ValidateContentURL(in.Content); err != nil {
			return "", model.NewValidationError("動画URLが不正です。")
		}
		return NormalizeVideoURL(in.Content), nil
	case model.ModuleTypePDF:
		if err := security.ValidateContentURL(in.Content); err != nil {
			return "", model.NewValidationError("PDF URLが不正です。")
		}
		return strings.TrimSpace(in.Content), nil
	default:
		return "", model.NewValidationError(fmt.Sprintf("不正なモジュール種別です: %q", in.Type))
	}
}

// requireOwned はコースを取得し、actorが所有者であることを確認する。
func (s *Service) requireOwned(ctx context.Context, actor *model.Profile, courseID string) (*model.Course, error) {
	if actor == nil {
		return nil, model.NewNotCourseOwnerError()
	}
	course, err := s.Get(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if course.CreatedBy != actor.UID {
		return nil, model.NewNotCourseOwnerError()
	}
	return course, nil
}

func requireInstructor(actor *model.Profile) error {
	if actor == nil || actor.Role != model.RoleInstructor {
		return model.NewValidationError("コースの作成は講師のみ行えます。")
	}
	return nil
}
