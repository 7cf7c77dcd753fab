// Package submission は課題提出と採点のドメインロジックを提供する。
package submission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/manabiya/internal/course"
	"github.com/hitoshi/manabiya/internal/directory"
	"github.com/hitoshi/manabiya/internal/enrollment"
	"github.com/hitoshi/manabiya/internal/model"
	"github.com/hitoshi/manabiya/internal/security"
)

// SubmissionCollection はコースIDから提出物コレクションのパスを導出する。
func SubmissionCollection(courseID string) string {
	return "submissions/" + courseID + "/items"
}

// Service は課題提出のサービス層。
// 提出は受講中の学生のみ、採点はコース所有者のみ許可される。
type Service struct {
	store       directory.Store
	courses     *course.Service
	enrollments *enrollment.Service
	logger      *slog.Logger
	now         func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(store directory.Store, courses *course.Service, enrollments *enrollment.Service, logger *slog.Logger) *Service {
	return &Service{
		store:       store,
		courses:     courses,
		enrollments: enrollments,
		logger:      logger,
		now:         time.Now,
	}
}

// Submit は課題ファイルのURLを提出する。
// 受講中のコースに対してのみ提出でき、再提出は前回の提出を上書きして採点結果をリセットする。
// ドキュメントIDは提出者のUIDとし、学生1人につきコースごとに1件に保つ。
func (s *Service) Submit(ctx context.Context, actor *model.Profile, courseID, fileURL string) (*model.Submission, error) {
	if actor == nil {
		return nil, model.NewValidationError("ログインが必要です。")
	}
	if err := security.ValidateContentURL(fileURL); err != nil {
		return nil, model.NewValidationError("提出ファイルのURLが不正です。")
	}
	if _, err := s.enrollments.Get(ctx, actor.UID, courseID); err != nil {
		return nil, err
	}

	sub := &model.Submission{
		ID:          actor.UID,
		UserID:      actor.UID,
		UserName:    actor.Name,
		UserEmail:   actor.Email,
		FileURL:     strings.TrimSpace(fileURL),
		SubmittedAt: s.now(),
	}
	fields := encodeSubmission(sub)
	if _, err := s.store.Create(ctx, SubmissionCollection(courseID), sub.ID, fields); err != nil {
		if !errors.Is(err, directory.ErrAlreadyExists) {
			return nil, fmt.Errorf("課題の提出に失敗しました: %w", err)
		}
		// 再提出。全フィールドを書き直すことで前回の採点結果もリセットされる。
		if err := s.store.Update(ctx, SubmissionCollection(courseID), sub.ID, fields); err != nil {
			return nil, fmt.Errorf("課題の再提出に失敗しました: %w", err)
		}
	}

	s.logger.Info("課題が提出された",
		slog.String("course_id", courseID),
		slog.String("user_id", actor.UID))
	return sub, nil
}

// GetOwn は自分の提出物を返す。未提出の場合はSUBMISSION_NOT_FOUNDを返す。
func (s *Service) GetOwn(ctx context.Context, actor *model.Profile, courseID string) (*model.Submission, error) {
	if actor == nil {
		return nil, model.NewValidationError("ログインが必要です。")
	}
	doc, err := s.store.Get(ctx, SubmissionCollection(courseID), actor.UID)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return nil, model.NewSubmissionNotFoundError()
		}
		return nil, fmt.Errorf("提出物の取得に失敗しました: %w", err)
	}
	return DecodeSubmission(doc), nil
}

// Grade は提出物を採点する。コース所有者のみ実行できる。
func (s *Service) Grade(ctx context.Context, actor *model.Profile, courseID, submissionID, grade string) error {
	if err := s.requireOwner(ctx, actor, courseID); err != nil {
		return err
	}
	grade = strings.TrimSpace(grade)
	if grade == "" {
		return model.NewValidationError("評価は必須です。")
	}

	fields := map[string]any{
		"grade":    grade,
		"gradedBy": actor.Name,
		"gradedAt": s.now(),
	}
	if err := s.store.Update(ctx, SubmissionCollection(courseID), submissionID, fields); err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return model.NewSubmissionNotFoundError()
		}
		return fmt.Errorf("採点の保存に失敗しました: %w", err)
	}

	s.logger.Info("提出物が採点された",
		slog.String("course_id", courseID),
		slog.String("submission_id", submissionID))
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

// DecodeSubmission は提出物ドキュメントをSubmissionへデコードする。
func DecodeSubmission(doc *directory.Document) *model.Submission {
	return &model.Submission{
		ID:          doc.ID,
		UserID:      doc.StringField("userId"),
		UserName:    doc.StringField("userName"),
		UserEmail:   doc.StringField("userEmail"),
		FileURL:     doc.StringField("fileUrl"),
		SubmittedAt: doc.TimeField("submittedAt"),
		Grade:       doc.StringField("grade"),
		GradedBy:    doc.StringField("gradedBy"),
		GradedAt:    doc.TimeField("gradedAt"),
	}
}

func encodeSubmission(sub *model.Submission) map[string]any {
	return map[string]any{
		"userId":      sub.UserID,
		"userName":    sub.UserName,
		"userEmail":   sub.UserEmail,
		"fileUrl":     sub.FileURL,
		"submittedAt": sub.SubmittedAt,
		"grade":       sub.Grade,
		"gradedBy":    sub.GradedBy,
		"gradedAt":    sub.GradedAt,
	}
}
