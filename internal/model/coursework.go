package model

import "time"

// QuizQuestion はコース配下のクイズ設問を表す。
// courses/{courseID}/quizzes/{id} ドキュメントとして永続化される。
type QuizQuestion struct {
	ID            string    `firestore:"-"`
	Question      string    `firestore:"question"`
	Options       []string  `firestore:"options"` // 常に4択
	CorrectAnswer int       `firestore:"correctAnswer"`
	CreatedBy     string    `firestore:"createdBy"`
	CreatedAt     time.Time `firestore:"createdAt"`
	UpdatedAt     time.Time `firestore:"updatedAt"`
}

// ContentType は補助教材の種別を表す。
type ContentType string

const (
	ContentTypeVideo      ContentType = "video"
	ContentTypePDF        ContentType = "pdf"
	ContentTypeAssignment ContentType = "assignment"
)

// ContentItem はコース配下の補助教材を表す。
// courses/{courseID}/content/{id} ドキュメントとして永続化される。
// assignment種別はURLの代わりに説明文と提出期限を持つ。
type ContentItem struct {
	ID          string      `firestore:"-"`
	Title       string      `firestore:"title"`
	Type        ContentType `firestore:"type"`
	URL         string      `firestore:"url"`
	Description string      `firestore:"description"`
	Deadline    string      `firestore:"deadline"`
	CreatedBy   string      `firestore:"createdBy"`
	CreatedAt   time.Time   `firestore:"createdAt"`
	UpdatedAt   time.Time   `firestore:"updatedAt"`
}

// Submission は受講者の課題提出を表す。
// submissions/{courseID}/items/{id} ドキュメントとして永続化される。
// gradeは担当講師のみが更新する。
type Submission struct {
	ID          string    `firestore:"-"`
	UserID      string    `firestore:"userId"`
	UserName    string    `firestore:"userName"`
	UserEmail   string    `firestore:"userEmail"`
	FileURL     string    `firestore:"fileUrl"`
	SubmittedAt time.Time `firestore:"submittedAt"`
	Grade       string    `firestore:"grade"`
	GradedBy    string    `firestore:"gradedBy"`
	GradedAt    time.Time `firestore:"gradedAt"`
}
