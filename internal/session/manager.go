// Package session は認証済みIdentityとそのプロフィールのセッション状態を管理する。
// Managerがアプリケーションにおける「誰がログインしているか」の唯一の真実であり、
// 状態を変更できるのはManager自身だけである。他のすべての利用者は読み取り専用。
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hitoshi/manabiya/internal/directory"
	"github.com/hitoshi/manabiya/internal/model"
	"github.com/hitoshi/manabiya/internal/notify"
)

// Snapshot はセッション状態の同期スナップショット。
//   - Loading: Identity確認中、またはプロフィールの初回スナップショット待ち
//   - Identity: 認証済みセッションのハンドル。未認証ならnil
//   - Profile: Identityに対応するプロフィール。未認証・同期失敗時はnil
type Snapshot struct {
	Identity *model.Identity
	Profile  *model.Profile
	Loading  bool
}

// Manager はセッション状態の状態機械を実装する。
//
//	Initializing → Authenticated(pending) → Authenticated(ready)
//	            ↘ Unauthenticated        ↙
//
// 生成時にIdentity変更通知の監視を開始し、Identityが得られるたびに
// そのプロフィールドキュメントのリアルタイム購読を開く。
// 不変条件: プロフィール購読は常に高々1本。新しいIdentity変更イベントは
// 新しい購読を開く前に必ず既存の購読を解除する。
type Manager struct {
	store  directory.Store
	auth   directory.Authenticator
	sink   notify.Sink
	logger *slog.Logger

	mu            sync.Mutex
	identity      *model.Identity
	profile       *model.Profile
	loading       bool
	unsubIdentity directory.CancelFunc
	unsubProfile  directory.CancelFunc
	generation    int // プロフィール購読の世代。古い世代からのコールバックを破棄する
	watchers      map[int]func(Snapshot)
	nextWatcher   int
	signingOut    bool
	closed        bool
}

// NewManager はManagerを生成し、直ちにIdentity変更通知の監視を開始する。
// アプリケーションインスタンス（クライアントセッション）ごとにちょうど1回生成される。
func NewManager(auth directory.Authenticator, store directory.Store, sink notify.Sink, logger *slog.Logger) *Manager {
	m := &Manager{
		store:    store,
		auth:     auth,
		sink:     sink,
		logger:   logger,
		loading:  true,
		watchers: make(map[int]func(Snapshot)),
	}
	m.unsubIdentity = auth.SubscribeIdentityChanges(m.onIdentityChange)
	return m
}

// Snapshot は現在のセッション状態を同期的に返す。決してブロックしない。
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{Identity: m.identity, Profile: m.profile, Loading: m.loading}
}

// Watch はスナップショット変更の購読を開く。
// 購読開始時に現在のスナップショットが直ちに1回配送され、
// 以後すべての状態変更で再配送される。ガードのようなリアクティブな利用者向け。
func (m *Manager) Watch(fn func(Snapshot)) directory.CancelFunc {
	m.mu.Lock()
	m.nextWatcher++
	id := m.nextWatcher
	m.watchers[id] = fn
	snap := Snapshot{Identity: m.identity, Profile: m.profile, Loading: m.loading}
	m.mu.Unlock()

	fn(snap)

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.watchers, id)
			m.mu.Unlock()
		})
	}
}

// SignOut はディレクトリサービスへセッション終了を要求する。
// 状態遷移はIdentity変更通知に委ねる（楽観的なクリアは行わない。
// 状態更新の経路を単一に保ち、ローカル変更と権威スナップショットの順序競合を避けるため）。
// 実行中にもう一度呼ばれた場合、2回目はno-opとなり要求は1回しか送られない。
// 失敗時はエラーを返し、状態は変更されない。
func (m *Manager) SignOut(ctx context.Context) error {
	m.mu.Lock()
	if m.signingOut {
		m.mu.Unlock()
		return nil
	}
	m.signingOut = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.signingOut = false
		m.mu.Unlock()
	}()

	if err := m.auth.SignOut(ctx); err != nil {
		m.logger.Error("サインアウト要求に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("サインアウトに失敗しました: %w", err)
	}
	return nil
}

// Close はIdentity監視とプロフィール購読を解放する。
// アプリケーションの終了時（クライアントセッションの破棄時）に呼ぶ。
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	unsubIdentity := m.unsubIdentity
	unsubProfile := m.unsubProfile
	m.unsubIdentity = nil
	m.unsubProfile = nil
	m.watchers = make(map[int]func(Snapshot))
	m.mu.Unlock()

	if unsubIdentity != nil {
		unsubIdentity()
	}
	if unsubProfile != nil {
		unsubProfile()
	}
}

// onIdentityChange はIdentity変更通知を処理する。
// 再入規則: 新しい通知が届いたら、まず既存のプロフィール購読を解除してから
// 次の購読を開く。プロフィール購読がIdentityより長生きすることはない。
func (m *Manager) onIdentityChange(ident *model.Identity) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}

	prevUnsub := m.unsubProfile
	m.unsubProfile = nil
	m.generation++
	gen := m.generation

	if ident == nil {
		// Initializing|Authenticated → Unauthenticated
		m.identity = nil
		m.profile = nil
		m.loading = false
		m.mu.Unlock()

		if prevUnsub != nil {
			prevUnsub()
		}
		m.notifyWatchers()
		return
	}

	// Initializing|Unauthenticated → Authenticated(pending)
	m.identity = ident
	m.profile = nil
	m.loading = true
	m.mu.Unlock()

	if prevUnsub != nil {
		prevUnsub()
	}
	m.notifyWatchers()

	cancel := m.store.SubscribeDocument("users", ident.UID,
		func(doc *directory.Document) { m.onProfileSnapshot(gen, ident, doc) },
		func(err error) { m.onProfileError(gen, err) },
	)

	m.mu.Lock()
	if m.closed || m.generation != gen {
		// 購読を開いている間にIdentityが再び変わった。この購読はもう不要。
		m.mu.Unlock()
		cancel()
		return
	}
	m.unsubProfile = cancel
	m.mu.Unlock()
}

// onProfileSnapshot はプロフィール購読のスナップショットを処理する。
// Authenticated(pending) → Authenticated(ready)
func (m *Manager) onProfileSnapshot(gen int, ident *model.Identity, doc *directory.Document) {
	m.mu.Lock()
	if m.closed || gen != m.generation {
		m.mu.Unlock()
		return
	}

	if doc.Exists {
		m.profile = decodeProfile(ident.UID, doc)
	} else {
		// ドキュメント未作成の場合はデフォルト（role=student）を合成する。
		// 合成結果は明示的に保存されるまで永続化しない。
		m.profile = model.DefaultProfile(*ident)
	}
	m.loading = false
	m.mu.Unlock()

	m.notifyWatchers()
}

// onProfileError はプロフィール購読の実行時エラーを処理する。
// 認証とプロフィール取得は独立した障害ドメインであり、
// プロフィール読み取りの失敗だけではUnauthenticatedへ遷移しない。
// プロフィール表示のみが劣化する。
func (m *Manager) onProfileError(gen int, err error) {
	m.mu.Lock()
	if m.closed || gen != m.generation {
		m.mu.Unlock()
		return
	}
	m.profile = nil
	m.loading = false
	m.mu.Unlock()

	m.logger.Error("プロフィール購読でエラーが発生しました",
		slog.String("error", err.Error()),
	)
	m.sink.Error(model.NewProfileSyncError().Message)
	m.notifyWatchers()
}

func (m *Manager) notifyWatchers() {
	m.mu.Lock()
	snap := Snapshot{Identity: m.identity, Profile: m.profile, Loading: m.loading}
	watchers := make([]func(Snapshot), 0, len(m.watchers))
	for _, fn := range m.watchers {
		watchers = append(watchers, fn)
	}
	m.mu.Unlock()

	for _, fn := range watchers {
		fn(snap)
	}
}

// decodeProfile はusers/{uid}ドキュメントをProfileへデコードする。
// roleが未知の値の場合はstudentへフォールバックする。
func decodeProfile(uid string, doc *directory.Document) *model.Profile {
	role := model.Role(doc.StringField("role"))
	if !role.IsValid() {
		role = model.RoleStudent
	}
	return &model.Profile{
		UID:       uid,
		Name:      doc.StringField("name"),
		Email:     doc.StringField("email"),
		Role:      role,
		CreatedAt: doc.TimeField("createdAt"),
	}
}
