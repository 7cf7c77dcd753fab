package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, profile_sync, query, validation, not_found, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeEmailInUse         = "EMAIL_IN_USE"
	ErrCodeWeakPassword       = "WEAK_PASSWORD"
	ErrCodeInvalidEmail       = "INVALID_EMAIL"
	ErrCodeSignOutFailed      = "SIGN_OUT_FAILED"
	ErrCodeProfileSync        = "PROFILE_SYNC_FAILED"
	ErrCodeQueryFailed        = "QUERY_FAILED"
	ErrCodeValidation         = "VALIDATION_FAILED"
	ErrCodeCourseNotFound     = "COURSE_NOT_FOUND"
	ErrCodeNotEnrolled        = "NOT_ENROLLED"
	ErrCodeAlreadyEnrolled    = "ALREADY_ENROLLED"
	ErrCodeNotCourseOwner     = "NOT_COURSE_OWNER"
	ErrCodeUserNotFound       = "USER_NOT_FOUND"
	ErrCodeSubmissionNotFound = "SUBMISSION_NOT_FOUND"
	ErrCodeQuestionNotFound   = "QUESTION_NOT_FOUND"
	ErrCodeContentNotFound    = "CONTENT_NOT_FOUND"
)

// NewInvalidCredentialsError は認証情報不一致エラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewEmailInUseError はメールアドレス重複エラーを生成する。
func NewEmailInUseError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailInUse,
		Message:  "このメールアドレスは既に登録されています。",
		Category: "auth",
		Action:   "別のメールアドレスを使用するか、ログインしてください。",
	}
}

// NewWeakPasswordError はパスワード強度不足エラーを生成する。
func NewWeakPasswordError() *APIError {
	return &APIError{
		Code:     ErrCodeWeakPassword,
		Message:  "パスワードが短すぎます。",
		Category: "auth",
		Action:   "6文字以上のパスワードを設定してください。",
	}
}

// NewInvalidEmailError はメールアドレス形式エラーを生成する。
func NewInvalidEmailError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidEmail,
		Message:  "メールアドレスの形式が正しくありません。",
		Category: "auth",
		Action:   "正しいメールアドレスを入力してください。",
	}
}

// NewSignOutFailedError はサインアウト失敗エラーを生成する。
func NewSignOutFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeSignOutFailed,
		Message:  "ログアウトに失敗しました。",
		Category: "auth",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewProfileSyncError はプロフィール同期失敗エラーを生成する。
// 認証そのものは有効なまま、プロフィール表示のみが劣化する。
func NewProfileSyncError() *APIError {
	return &APIError{
		Code:     ErrCodeProfileSync,
		Message:  "プロフィールの同期に失敗しました。",
		Category: "profile_sync",
		Action:   "ページを再読み込みしてください。",
	}
}

// NewQueryFailedError はリアルタイム購読の失敗エラーを生成する。
func NewQueryFailedError(collection string) *APIError {
	return &APIError{
		Code:     ErrCodeQueryFailed,
		Message:  fmt.Sprintf("データの取得に失敗しました: %s", collection),
		Category: "query",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewValidationError は入力検証エラーを生成する。
// ネットワーク呼び出しの前に同期的に検査される。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  reason,
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewCourseNotFoundError はコース未検出エラーを生成する。
func NewCourseNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeCourseNotFound,
		Message:  "指定されたコースが見つかりません。",
		Category: "not_found",
		Action:   "コース一覧から選び直してください。",
	}
}

// NewNotEnrolledError は未受講エラーを生成する。
func NewNotEnrolledError() *APIError {
	return &APIError{
		Code:     ErrCodeNotEnrolled,
		Message:  "このコースを受講していません。",
		Category: "validation",
		Action:   "先にコースに登録してください。",
	}
}

// NewAlreadyEnrolledError は二重受講登録エラーを生成する。
func NewAlreadyEnrolledError() *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyEnrolled,
		Message:  "このコースは既に受講中です。",
		Category: "validation",
		Action:   "受講中のコース一覧を確認してください。",
	}
}

// NewNotCourseOwnerError はコース所有者以外による変更エラーを生成する。
func NewNotCourseOwnerError() *APIError {
	return &APIError{
		Code:     ErrCodeNotCourseOwner,
		Message:  "このコースを変更する権限がありません。",
		Category: "validation",
		Action:   "自分が作成したコースのみ変更できます。",
	}
}

// NewUserNotFoundError はユーザー未検出エラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "not_found",
		Action:   "ログインし直してください。",
	}
}

// NewSubmissionNotFoundError は提出物未検出エラーを生成する。
func NewSubmissionNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeSubmissionNotFound,
		Message:  "指定された提出物が見つかりません。",
		Category: "not_found",
		Action:   "提出物一覧を確認してください。",
	}
}

// NewQuestionNotFoundError はクイズ設問未検出エラーを生成する。
func NewQuestionNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeQuestionNotFound,
		Message:  "指定された設問が見つかりません。",
		Category: "not_found",
		Action:   "設問一覧を確認してください。",
	}
}

// NewContentNotFoundError は教材未検出エラーを生成する。
func NewContentNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeContentNotFound,
		Message:  "指定された教材が見つかりません。",
		Category: "not_found",
		Action:   "教材一覧を確認してください。",
	}
}
