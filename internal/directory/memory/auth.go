package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/hitoshi/manabiya/internal/directory"
	"github.com/hitoshi/manabiya/internal/model"
)

// Accounts はインメモリ認証のアカウント台帳。
// Authenticatorインスタンス（クライアントセッションごとに1つ）の間で共有される。
type Accounts struct {
	mu      sync.Mutex
	byEmail map[string]*account
}

type account struct {
	uid         string
	email       string
	password    string
	displayName string
}

// NewAccounts は空のアカウント台帳を生成する。
func NewAccounts() *Accounts {
	return &Accounts{byEmail: make(map[string]*account)}
}

// Seed はテスト・ローカル開発用にアカウントを直接登録し、UIDを返す。
func (a *Accounts) Seed(email, password, displayName string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	acc := &account{
		uid:         uuid.New().String(),
		email:       email,
		password:    password,
		displayName: displayName,
	}
	a.byEmail[email] = acc
	return acc.uid
}

// Authenticator はインメモリのAuthenticator実装。
// 高々1つのIdentityスロットを保持し、変更をウォッチャーへファンアウトする。
type Authenticator struct {
	accounts *Accounts

	mu       sync.Mutex
	current  *model.Identity
	watchers map[int]func(*model.Identity)
	nextID   int
	closed   bool
}

// NewAuthenticator は共有台帳を参照する新しいAuthenticatorを生成する。
func NewAuthenticator(accounts *Accounts) *Authenticator {
	return &Authenticator{
		accounts: accounts,
		watchers: make(map[int]func(*model.Identity)),
	}
}

var _ directory.Authenticator = (*Authenticator)(nil)

// SignIn はメールアドレスとパスワードでサインインする。
func (a *Authenticator) SignIn(_ context.Context, email, password string) (*model.Identity, error) {
	a.accounts.mu.Lock()
	acc, ok := a.accounts.byEmail[email]
	a.accounts.mu.Unlock()
	if !ok || acc.password != password {
		return nil, directory.ErrInvalidCredentials
	}

	ident := &model.Identity{UID: acc.uid, Email: acc.email, DisplayName: acc.displayName}
	a.setIdentity(ident)
	return ident, nil
}

// SignUp は新規アカウントを作成しサインイン状態にする。
func (a *Authenticator) SignUp(_ context.Context, email, password, displayName string) (*model.Identity, error) {
	if !strings.Contains(email, "@") {
		return nil, directory.ErrInvalidEmail
	}
	if len(password) < 6 {
		return nil, directory.ErrWeakPassword
	}

	a.accounts.mu.Lock()
	if _, exists := a.accounts.byEmail[email]; exists {
		a.accounts.mu.Unlock()
		return nil, directory.ErrEmailInUse
	}
	acc := &account{
		uid:         uuid.New().String(),
		email:       email,
		password:    password,
		displayName: displayName,
	}
	a.accounts.byEmail[email] = acc
	a.accounts.mu.Unlock()

	ident := &model.Identity{UID: acc.uid, Email: acc.email, DisplayName: acc.displayName}
	a.setIdentity(ident)
	return ident, nil
}

// SignOut はIdentityスロットをクリアし、変更通知（nil）を配送する。
func (a *Authenticator) SignOut(_ context.Context) error {
	a.mu.Lock()
	if a.current == nil {
		a.mu.Unlock()
		return directory.ErrNotSignedIn
	}
	a.current = nil
	watchers := a.snapshotWatchersLocked()
	a.mu.Unlock()

	for _, fn := range watchers {
		fn(nil)
	}
	return nil
}

// SubscribeIdentityChanges はIdentity変更通知の購読を開く。
// 購読開始時に現在のIdentityが直ちに1回配送される。
func (a *Authenticator) SubscribeIdentityChanges(fn func(*model.Identity)) directory.CancelFunc {
	a.mu.Lock()
	a.nextID++
	id := a.nextID
	a.watchers[id] = fn
	current := a.current
	a.mu.Unlock()

	fn(current)

	var once sync.Once
	return func() {
		once.Do(func() {
			a.mu.Lock()
			delete(a.watchers, id)
			a.mu.Unlock()
		})
	}
}

// Close はすべてのウォッチャーを解放する。
func (a *Authenticator) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	a.watchers = make(map[int]func(*model.Identity))
}

func (a *Authenticator) setIdentity(ident *model.Identity) {
	a.mu.Lock()
	a.current = ident
	watchers := a.snapshotWatchersLocked()
	a.mu.Unlock()

	for _, fn := range watchers {
		fn(ident)
	}
}

func (a *Authenticator) snapshotWatchersLocked() []func(*model.Identity) {
	out := make([]func(*model.Identity), 0, len(a.watchers))
	for _, fn := range a.watchers {
		out = append(out, fn)
	}
	return out
}
