// Package content はコース配下の補助教材（動画・PDF・課題）の管理を提供する。
package content

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/manabiya/internal/course"
	"github.com/hitoshi/manabiya/internal/directory"
	"github.com/hitoshi/manabiya/internal/model"
	"github.com/hitoshi/manabiya/internal/security"
)

// ContentCollection はコースIDから教材サブコレクションのパスを導出する。
func ContentCollection(courseID string) string {
	return "courses/" + courseID + "/content"
}

// Service は教材管理のサービス層。教材の変更はコース所有者のみ許可される。
type Service struct {
	store     directory.Store
	courses   *course.Service
	sanitizer security.ContentSanitizerService
	logger    *slog.Logger
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(store directory.Store, courses *course.Service, sanitizer security.ContentSanitizerService, logger *slog.Logger) *Service {
	return &Service{
		store:     store,
		courses:   courses,
		sanitizer: sanitizer,
		logger:    logger,
		now:       time.Now,
	}
}

// Input は教材の作成・更新の入力。
// 種別がassignmentの場合はDescriptionとDeadlineが必須で、URLは無視される。
// video/pdfの場合はURLが必須。
type Input struct {
	Title       string            `json:"title"`
	Type        model.ContentType `json:"type"`
	URL         string            `json:"url"`
	Description string            `json:"description"`
	Deadline    string            `json:"deadline"` // YYYY-MM-DD
}

func (s *Service) normalize(in Input) (Input, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return in, model.NewValidationError("教材のタイトルは必須です。")
	}

	switch in.Type {
	case model.ContentTypeVideo, model.ContentTypePDF:
		if err := security.ValidateContentURL(in.URL); err != nil {
			return in, model.NewValidationError("教材のURLが不正です。")
		}
		if in.Type == model.ContentTypeVideo {
			in.URL = course.NormalizeVideoURL(in.URL)
		}
		in.Description = ""
		in.Deadline = ""
	case model.ContentTypeAssignment:
		in.Description = s.sanitizer.Sanitize(strings.TrimSpace(in.Description))
		if in.Description == "" {
			return in, model.NewValidationError("課題には説明文が必要です。")
		}
		if _, err := time.Parse("2006-01-02", in.Deadline); err != nil {
			return in, model.NewValidationError("提出期限はYYYY-MM-DD形式で指定してください。")
		}
		in.URL = ""
	default:
		return in, model.NewValidationError("教材の種別が不正です。")
	}
	return in, nil
}

// Add は教材を追加する。コース所有者のみ実行できる。
func (s *Service) Add(ctx context.Context, actor *model.Profile, courseID string, in Input) (*model.ContentItem, error) {
	if err := s.requireOwner(ctx, actor, courseID); err != nil {
		return nil, err
	}
	in, err := s.normalize(in)
	if err != nil {
		return nil, err
	}

	now := s.now()
	item := &model.ContentItem{
		Title:       in.Title,
		Type:        in.Type,
		URL:         in.URL,
		Description: in.Description,
		Deadline:    in.Deadline,
		CreatedBy:   actor.UID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	id, err := s.store.Create(ctx, ContentCollection(courseID), "", encodeItem(item))
	if err != nil {
		return nil, fmt.Errorf("教材の作成に失敗しました: %w", err)
	}
	item.ID = id
	return item, nil
}

// Update は教材を更新する。コース所有者のみ実行できる。
func (s *Service) Update(ctx context.Context, actor *model.Profile, courseID, contentID string, in Input) error {
	if err := s.requireOwner(ctx, actor, courseID); err != nil {
		return err
	}
	in, err := s.normalize(in)
	if err != nil {
		return err
	}

	fields := map[string]any{
		"title":       in.Title,
		"type":        string(in.Type),
		"url":         in.URL,
		"description": in.Description,
		"deadline":    in.Deadline,
		"updatedAt":   s.now(),
	}
	if err := s.store.Update(ctx, ContentCollection(courseID), contentID, fields); err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return model.NewContentNotFoundError()
		}
		return fmt.Errorf("教材の更新に失敗しました: %w", err)
	}
	return nil
}

// Delete は教材を削除する。コース所有者のみ実行できる。
func (s *Service) Delete(ctx context.Context, actor *model.Profile, courseID, contentID string) error {
	if err := s.requireOwner(ctx, actor, courseID); err != nil {
		return err
	}
	if _, err := s.store.Get(ctx, ContentCollection(courseID), contentID); err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return model.NewContentNotFoundError()
		}
		return fmt.Errorf("教材の取得に失敗しました: %w", err)
	}
	if err := s.store.Delete(ctx, ContentCollection(courseID), contentID); err != nil {
		return fmt.Errorf("教材の削除に失敗しました: %w", err)
	}
	return nil
}

func (s *Service) requireOwner(ctx context.Context, actor *model.Profile, courseID string) error {
	if actor == nil {
		return model.NewNotCourseOwnerError()
	}
	c, err := s.courses.Get(ctx, courseID)
	if err != nil {
		return err
	}
	if c.CreatedBy != actor.UID {
		return model.NewNotCourseOwnerError()
	}
	return nil
}

// DecodeItem は教材ドキュメントをContentItemへデコードする。
func DecodeItem(doc *directory.Document) *model.ContentItem {
	return &model.ContentItem{
		ID:          doc.ID,
		Title:       doc.StringField("title"),
		Type:        model.ContentType(doc.StringField("type")),
		URL:         doc.StringField("url"),
		Description: doc.StringField("description"),
		Deadline:    doc.StringField("deadline"),
		CreatedBy:   doc.StringField("createdBy"),
		CreatedAt:   doc.TimeField("createdAt"),
		UpdatedAt:   doc.TimeField("updatedAt"),
	}
}

func encodeItem(item *model.ContentItem) map[string]any {
	return map[string]any{
		"title":       item.Title,
		"type":        string(item.Type),
		"url":         item.URL,
		"description": item.Description,
		"deadline":    item.Deadline,
		"createdBy":   item.CreatedBy,
		"createdAt":   item.CreatedAt,
		"updatedAt":   item.UpdatedAt,
	}
}
