package directory

import "errors"

var (
	// ErrNotFound は参照先ドキュメントが存在しないことを示す。
	// 並行削除の帰結として期待されるエラーであり、結合処理では黙って除外される。
	ErrNotFound = errors.New("directory: document not found")

	// ErrAlreadyExists は指定IDのドキュメントが既に存在することを示す。
	// Createは既存ドキュメントを上書きせず、このエラーを返す。
	ErrAlreadyExists = errors.New("directory: document already exists")

	// ErrPermissionDenied はバックエンドのアクセスルールによる拒否を示す。
	ErrPermissionDenied = errors.New("directory: permission denied")

	// ErrInvalidCredentials はサインイン失敗（認証情報不一致）を示す。
	ErrInvalidCredentials = errors.New("directory: invalid credentials")

	// ErrEmailInUse はサインアップ時のメールアドレス重複を示す。
	ErrEmailInUse = errors.New("directory: email already in use")

	// ErrWeakPassword はサインアップ時のパスワード強度不足を示す。
	ErrWeakPassword = errors.New("directory: weak password")

	// ErrInvalidEmail はメールアドレス形式不正を示す。
	ErrInvalidEmail = errors.New("directory: invalid email")

	// ErrNotSignedIn はIdentity未保持の状態でサインアウトを要求したことを示す。
	ErrNotSignedIn = errors.New("directory: not signed in")
)
