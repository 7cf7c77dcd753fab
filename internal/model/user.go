// Package model はドメインモデルを定義する。
package model

import "time"

// Role はユーザーの役割を表す。
type Role string

const (
	// RoleStudent は受講者。プロフィール未作成時のデフォルト役割でもある。
	RoleStudent Role = "student"
	// RoleInstructor は講師。コース・クイズ・教材・採点を管理できる。
	RoleInstructor Role = "instructor"
	// RoleInstructorPending は講師申請中。管理者の承認待ち状態。
	RoleInstructorPending Role = "instructor_pending"
	// RoleAdmin は管理者。ユーザー管理とコースの有効化/無効化を行う。
	RoleAdmin Role = "admin"
)

// IsValid は定義済みの役割かどうかを返す。
func (r Role) IsValid() bool {
	switch r {
	case RoleStudent, RoleInstructor, RoleInstructorPending, RoleAdmin:
		return true
	}
	return false
}

// Identity は外部ディレクトリサービスが発行する認証済みセッションのハンドルを表す。
// ライフサイクルは外部サービスが所有し、アプリケーションは参照のみ保持する。
type Identity struct {
	UID         string
	Email       string
	DisplayName string
}

// Profile はIdentityのUIDをキーとするアプリケーションレベルのユーザーレコードを表す。
// users/{uid} ドキュメントとして永続化される。
type Profile struct {
	UID       string    `firestore:"uid"`
	Name      string    `firestore:"name"`
	Email     string    `firestore:"email"`
	Role      Role      `firestore:"role"`
	CreatedAt time.Time `firestore:"createdAt"`
}

// DefaultProfile はプロフィールドキュメントが存在しない場合に合成されるデフォルトを返す。
// 役割はstudent。合成されたプロフィールは明示的に保存されるまで永続化されない。
func DefaultProfile(ident Identity) *Profile {
	name := ident.DisplayName
	if name == "" {
		name = ident.Email
	}
	return &Profile{
		UID:   ident.UID,
		Name:  name,
		Email: ident.Email,
		Role:  RoleStudent,
	}
}
