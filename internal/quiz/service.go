// Package quiz はコース配下のクイズ作成と採点のドメインロジックを提供する。
package quiz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/hitoshi/manabiya/internal/course"
	"github.com/hitoshi/manabiya/internal/directory"
	"github.com/hitoshi/manabiya/internal/model"
)

// OptionCount はクイズ設問の選択肢数。常に4択。
const OptionCount = 4

// QuizCollection はコースIDからクイズサブコレクションのパスを導出する。
func QuizCollection(courseID string) string {
	return "courses/" + courseID + "/quizzes"
}

// Service はクイズ管理のサービス層。設問の変更はコース所有者のみ許可される。
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

// Input は設問の作成・更新の入力。
type Input struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer int      `json:"correctAnswer"`
}

func validateInput(in Input) error {
	if strings.TrimSpace(in.Question) == "" {
		return model.NewValidationError("設問文は必須です。")
	}
	if len(in.Options) != OptionCount {
		return model.NewValidationError(fmt.Sprintf("選択肢は%d件必要です。", OptionCount))
	}
	for i, opt := range in.Options {
		if strings.TrimSpace(opt) == "" {
			return model.NewValidationError(fmt.Sprintf("選択肢%dが空です。", i+1))
		}
	}
	if in.CorrectAnswer < 0 || in.CorrectAnswer >= OptionCount {
		return model.NewValidationError("正解番号が範囲外です。")
	}
	return nil
}

// Add は設問を追加する。コース所有者のみ実行できる。
func (s *Service) Add(ctx context.Context, actor *model.Profile, courseID string, in Input) (*model.QuizQuestion, error) {
	if err := s.requireOwner(ctx, actor, courseID); err != nil {
		return nil, err
	}
	if err := validateInput(in); err != nil {
		return nil, err
	}

	now := s.now()
	q := &model.QuizQuestion{
		Question:      strings.TrimSpace(in.Question),
		Options:       in.Options,
		CorrectAnswer: in.CorrectAnswer,
		CreatedBy:     actor.UID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	id, err := s.store.Create(ctx, QuizCollection(courseID), "", encodeQuestion(q))
	if err != nil {
		return nil, fmt.Errorf("設問の作成に失敗しました: %w", err)
	}
	q.ID = id
	return q, nil
}

// Update は設問を更新する。コース所有者のみ実行できる。
func (s *Service) Update(ctx context.Context, actor *model.Profile, courseID, questionID string, in Input) error {
	if err := s.requireOwner(ctx, actor, courseID); err != nil {
		return err
	}
	if err := validateInput(in); err != nil {
		return err
	}

	fields := map[string]any{
		"question":      strings.TrimSpace(in.Question),
		"options":       in.Options,
		"correctAnswer": in.CorrectAnswer,
		"updatedAt":     s.now(),
	}
	if err := s.store.Update(ctx, QuizCollection(courseID), questionID, fields); err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return model.NewQuestionNotFoundError()
		}
		return fmt.Errorf("設問の更新に失敗しました: %w", err)
	}
	return nil
}

// Delete は設問を削除する。コース所有者のみ実行できる。
func (s *Service) Delete(ctx context.Context, actor *model.Profile, courseID, questionID string) error {
	if err := s.requireOwner(ctx, actor, courseID); err != nil {
		return err
	}
	if _, err := s.store.Get(ctx, QuizCollection(courseID), questionID); err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return model.NewQuestionNotFoundError()
		}
		return fmt.Errorf("設問の取得に失敗しました: %w", err)
	}
	if err := s.store.Delete(ctx, QuizCollection(courseID), questionID); err != nil {
		return fmt.Errorf("設問の削除に失敗しました: %w", err)
	}
	return nil
}

// List は指定コースの設問を作成日時の昇順で返す。
func (s *Service) List(ctx context.Context, courseID string) ([]*model.QuizQuestion, error) {
	if _, err := s.courses.Get(ctx, courseID); err != nil {
		return nil, err
	}

	done := make(chan []*model.QuizQuestion, 1)
	cancel := s.store.SubscribeQuery(QuizCollection(courseID), nil,
		func(docs []*directory.Document) {
			out := make([]*model.QuizQuestion, 0, len(docs))
			for _, doc := range docs {
				if doc.Exists {
					out = append(out, DecodeQuestion(doc))
				}
			}
			select {
			case done <- out:
			default:
			}
		},
		func(error) {
			select {
			case done <- nil:
			default:
			}
		},
	)
	defer cancel()

	select {
	case out := <-done:
		if out == nil {
			return nil, model.NewQueryFailedError("quizzes")
		}
		sortQuestions(out)
		return out, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Result はクイズ採点の結果。
type Result struct {
	Total   int `json:"total"`
	Correct int `json:"correct"`
	Score   int `json:"score"` // 0〜100。端数切り捨て
}

// Score は回答（設問ごとの選択肢番号）を採点する。
// 回答数が設問数と一致しない場合はエラーを返す。
func Score(questions []*model.QuizQuestion, answers []int) (Result, error) {
	if len(answers) != len(questions) {
		return Result{}, model.NewValidationError("回答数が設問数と一致しません。")
	}

	r := Result{Total: len(questions)}
	for i, q := range questions {
		if answers[i] == q.CorrectAnswer {
			r.Correct++
		}
	}
	if r.Total > 0 {
		r.Score = r.Correct * 100 / r.Total
	}
	return r, nil
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

// sortQuestions は設問を作成日時の昇順に並べる。出題順を安定させるため。
func sortQuestions(questions []*model.QuizQuestion) {
	sort.SliceStable(questions, func(i, j int) bool {
		return questions[i].CreatedAt.Before(questions[j].CreatedAt)
	})
}

// DecodeQuestion はクイズ設問ドキュメントをQuizQuestionへデコードする。
func DecodeQuestion(doc *directory.Document) *model.QuizQuestion {
	return &model.QuizQuestion{
		ID:            doc.ID,
		Question:      doc.StringField("question"),
		Options:       doc.StringSliceField("options"),
		CorrectAnswer: doc.IntField("correctAnswer"),
		CreatedBy:     doc.StringField("createdBy"),
		CreatedAt:     doc.TimeField("createdAt"),
		UpdatedAt:     doc.TimeField("updatedAt"),
	}
}

func encodeQuestion(q *model.QuizQuestion) map[string]any {
	return map[string]any{
		"question":      q.Question,
		"options":       q.Options,
		"correctAnswer": q.CorrectAnswer,
		"createdBy":     q.CreatedBy,
		"createdAt":     q.CreatedAt,
		"updatedAt":     q.UpdatedAt,
	}
}
