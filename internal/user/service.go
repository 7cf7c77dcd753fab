// Package user はユーザープロフィール管理のドメインロジックを提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/manabiya/internal/directory"
	"github.com/hitoshi/manabiya/internal/model"
)

// CollectionUsers はプロフィールドキュメントのコレクション名。
const CollectionUsers = "users"

// Service はユーザープロフィールのサービス層。
// サインアップ時のプロフィール作成、表示名の変更、管理者によるロール承認を提供する。
type Service struct {
	store  directory.Store
	logger *slog.Logger
	now    func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(store directory.Store, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// CreateProfile はサインアップ直後にusers/{uid}ドキュメントを作成する。
// 講師として登録した場合は承認待ち（instructor_pending）となり、
// 管理者の承認を経て講師機能が解放される。
// 既存のプロフィールがある場合は上書きしない。
func (s *Service) CreateProfile(ctx context.Context, ident *model.Identity, requested model.Role) (*model.Profile, error) {
	if ident == nil {
		return nil, model.NewValidationError("サインインが必要です。")
	}

	if doc, err := s.store.Get(ctx, CollectionUsers, ident.UID); err == nil {
		return DecodeProfile(doc), nil
	} else if !errors.Is(err, directory.ErrNotFound) {
		return nil, fmt.Errorf("プロフィールの確認に失敗しました: %w", err)
	}

	profile := model.DefaultProfile(*ident)
	switch requested {
	case model.RoleInstructor, model.RoleInstructorPending:
		profile.Role = model.RoleInstructorPending
	case model.RoleStudent, "":
		profile.Role = model.RoleStudent
	default:
		return nil, model.NewValidationError(fmt.Sprintf("不正なロールです: %q", requested))
	}
	profile.CreatedAt = s.now()

	if _, err := s.store.Create(ctx, CollectionUsers, ident.UID, encodeProfile(profile)); err != nil {
		if errors.Is(err, directory.ErrAlreadyExists) {
			// 並行して作成済みの場合は既存プロフィールを正とする。
			if doc, getErr := s.store.Get(ctx, CollectionUsers, ident.UID); getErr == nil {
				return DecodeProfile(doc), nil
			}
		}
		return nil, fmt.Errorf("プロフィールの作成に失敗しました: %w", err)
	}

	s.logger.Info("プロフィールを作成しました",
		slog.String("user_id", ident.UID),
		slog.String("role", string(profile.Role)),
	)
	return profile, nil
}

// Get はusers/{uid}のプロフィールを返す。
func (s *Service) Get(ctx context.Context, uid string) (*model.Profile, error) {
	doc, err := s.store.Get(ctx, CollectionUsers, uid)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return nil, model.NewUserNotFoundError()
		}
		return nil, fmt.Errorf("プロフィールの取得に失敗しました: %w", err)
	}
	return DecodeProfile(doc), nil
}

// UpdateName は自分の表示名を変更する。
func (s *Service) UpdateName(ctx context.Context, actor *model.Profile, name string) error {
	if actor == nil {
		return model.NewValidationError("サインインが必要です。")
	}
	if name == "" {
		return model.NewValidationError("表示名は必須です。")
	}
	if err := s.store.Update(ctx, CollectionUsers, actor.UID, map[string]any{"name": name}); err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return model.NewUserNotFoundError()
		}
		return fmt.Errorf("表示名の変更に失敗しました: %w", err)
	}
	return nil
}

// ApproveInstructor は承認待ちの講師を正式な講師へ昇格させる。管理者のみ実行できる。
func (s *Service) ApproveInstructor(ctx context.Context, actor *model.Profile, uid string) error {
	if actor == nil || actor.Role != model.RoleAdmin {
		return model.NewValidationError("講師の承認は管理者のみ行えます。")
	}

	target, err := s.Get(ctx, uid)
	if err != nil {
		return err
	}
	if target.Role != model.RoleInstructorPending {
		return model.NewValidationError("承認待ちの講師ではありません。")
	}

	if err := s.store.Update(ctx, CollectionUsers, uid, map[string]any{
		"role": string(model.RoleInstructor),
	}); err != nil {
		return fmt.Errorf("講師の承認に失敗しました: %w", err)
	}

	s.logger.Info("講師を承認しました",
		slog.String("user_id", uid),
		slog.String("approved_by", actor.UID),
	)
	return nil
}

// SetRole は任意のユーザーのロールを変更する。管理者のみ実行できる。
// 管理者自身のロールは変更できない（最後の管理者を失わないため）。
func (s *Service) SetRole(ctx context.Context, actor *model.Profile, uid string, role model.Role) error {
	if actor == nil || actor.Role != model.RoleAdmin {
		return model.NewValidationError("ロールの変更は管理者のみ行えます。")
	}
	if !role.IsValid() {
		return model.NewValidationError(fmt.Sprintf("不正なロールです: %q", role))
	}
	if uid == actor.UID {
		return model.NewValidationError("自分自身のロールは変更できません。")
	}
	if _, err := s.Get(ctx, uid); err != nil {
		return err
	}

	if err := s.store.Update(ctx, CollectionUsers, uid, map[string]any{
		"role": string(role),
	}); err != nil {
		return fmt.Errorf("ロールの変更に失敗しました: %w", err)
	}
	return nil
}

// DecodeProfile はusers/{uid}ドキュメントをProfileへデコードする。
// roleが未知の値の場合はstudentへフォールバックする。
func DecodeProfile(doc *directory.Document) *model.Profile {
	role := model.Role(doc.StringField("role"))
	if !role.IsValid() {
		role = model.RoleStudent
	}
	return &model.Profile{
		UID:       doc.ID,
		Name:      doc.StringField("name"),
		Email:     doc.StringField("email"),
		Role:      role,
		CreatedAt: doc.TimeField("createdAt"),
	}
}

func encodeProfile(p *model.Profile) map[string]any {
	return map[string]any{
		"name":      p.Name,
		"email":     p.Email,
		"role":      string(p.Role),
		"createdAt": p.CreatedAt,
	}
}
