// Package directory は外部ディレクトリサービス（ホスト型認証とドキュメントデータベース）
// へのアクセスインターフェースを定義する。
// サービス本体は再実装しない。アプリケーションはここで定義するインターフェースを通して
// コラボレータとして利用する。
package directory

import (
	"context"

	"github.com/hitoshi/manabiya/internal/model"
)

// CancelFunc は購読の解除ハンドル。
// すべての購読はちょうど1回解除されなければならない。二重解除は安全なno-opとする。
type CancelFunc func()

// Document はドキュメントデータベースの1ドキュメントのスナップショットを表す。
type Document struct {
	ID     string
	Exists bool
	// Data はドキュメントのフィールド値。DataToに渡して構造体へデコードする。
	Data map[string]any
}

// Filter はクエリ購読の等値フィルタを表す。
// バックエンドが複合インデックスを要求しないよう、ソートはクライアント側で行う。
type Filter struct {
	Field string
	Value any
}

// Store はホスト型ドキュメントデータベースへの操作を定義する。
// すべての購読コールバックは購読単位で順序通りに配送されるが、
// 購読をまたいだ順序の保証はない。
type Store interface {
	// Get は指定コレクションのドキュメントを1件取得する。
	// 存在しない場合はErrNotFoundを返す。
	Get(ctx context.Context, collection, id string) (*Document, error)

	// Create はドキュメントを作成する。idが空の場合は新規IDを採番する。
	// 指定IDのドキュメントが既に存在する場合は上書きせずErrAlreadyExistsを返す。
	// 採番された（または指定された）IDを返す。
	Create(ctx context.Context, collection, id string, data map[string]any) (string, error)

	// Update は指定ドキュメントのフィールドを部分更新する。
	Update(ctx context.Context, collection, id string, fields map[string]any) error

	// Delete は指定ドキュメントを削除する。存在しないドキュメントの削除はno-op。
	Delete(ctx context.Context, collection, id string) error

	// SubscribeDocument は単一ドキュメントのリアルタイム購読を開く。
	// 現在値が最初のスナップショットとして直ちに配送される（存在しない場合はExists=false）。
	SubscribeDocument(collection, id string, onNext func(*Document), onErr func(error)) CancelFunc

	// SubscribeQuery は等値フィルタ付きクエリのリアルタイム購読を開く。
	// 現在の一致集合が最初のスナップショットとして直ちに配送される。
	SubscribeQuery(collection string, filters []Filter, onNext func([]*Document), onErr func(error)) CancelFunc
}

// Authenticator はホスト型認証サービスへの操作を定義する。
// 1インスタンスにつき高々1つのアクティブなIdentityを保持する
// （クライアントセッションごとに1インスタンスを生成する）。
type Authenticator interface {
	// SignIn はメールアドレスとパスワードでサインインする。
	// 成功すると保持中のIdentityが置き換わり、Identity変更通知が配送される。
	SignIn(ctx context.Context, email, password string) (*model.Identity, error)

	// SignUp は新規アカウントを作成しサインイン状態にする。
	SignUp(ctx context.Context, email, password, displayName string) (*model.Identity, error)

	// SignOut はセッションの終了をサービスに要求する。
	// 成功すると保持中のIdentityがクリアされ、Identity変更通知（nil）が配送される。
	SignOut(ctx context.Context) error

	// SubscribeIdentityChanges はIdentity変更通知の購読を開く。
	// 購読開始時に現在のIdentity（未サインインならnil）が直ちに1回配送される。
	SubscribeIdentityChanges(fn func(*model.Identity)) CancelFunc

	// Close はすべての購読を解放する。以後このインスタンスは使用できない。
	Close()
}
