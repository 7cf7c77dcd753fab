package model

import "time"

// CourseStatus はコースの公開状態を表す。
type CourseStatus string

const (
	// CourseStatusDraft は下書き。作成直後の初期状態。
	CourseStatusDraft CourseStatus = "draft"
	// CourseStatusPublished は公開中。受講者のカタログに表示される。
	CourseStatusPublished CourseStatus = "published"
	// CourseStatusInactive は管理者によって無効化された状態。
	CourseStatusInactive CourseStatus = "inactive"
)

// ModuleType はコース内モジュールの種別を表す。
type ModuleType string

const (
	ModuleTypeText  ModuleType = "text"
	ModuleTypeVideo ModuleType = "video"
	ModuleTypePDF   ModuleType = "pdf"
)

// Module はコースに埋め込まれる順序付きサブエンティティ。
// 独立したライフサイクルを持たず、Courseの一部としてシリアライズされる。
type Module struct {
	ID      string     `firestore:"id"`
	Title   string     `firestore:"title"`
	Type    ModuleType `firestore:"type"`
	Content string     `firestore:"content"` // 生テキストまたはURL
}

// Course は講師が作成するコンテンツ単位を表す。
// courses/{id} ドキュメントとして永続化される。
// title/description/modules/statusの変更は所有者のみ許可される
// （バックエンドのアクセスルールが強制する。サービス層でも所有者を再確認する）。
type Course struct {
	ID            string       `firestore:"-"`
	Title         string       `firestore:"title"`
	Description   string       `firestore:"description"`
	Category      string       `firestore:"category"`
	Thumbnail     string       `firestore:"thumbnail"`
	Modules       []Module     `firestore:"modules"`
	CreatedBy     string       `firestore:"createdBy"`
	CreatedByName string       `firestore:"createdByName"`
	Status        CourseStatus `firestore:"status"`
	CreatedAt     time.Time    `firestore:"createdAt"`
	UpdatedAt     time.Time    `firestore:"updatedAt"`
}
