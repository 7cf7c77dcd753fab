package session

import (
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hitoshi/manabiya/internal/directory"
	"github.com/hitoshi/manabiya/internal/notify"
)

// AuthFactory はクライアントセッション用のAuthenticatorを生成する。
// Authenticatorは高々1つのIdentityスロットを持つため、セッションごとに1インスタンス必要。
type AuthFactory func() directory.Authenticator

// Entry は1クライアントセッション分の状態（トークン、Manager、Authenticator）を束ねる。
type Entry struct {
	Token   string
	Manager *Manager
	Auth    directory.Authenticator

	createdAt   time.Time
	unsubWatch  directory.CancelFunc
	sawIdentity atomic.Bool
}

// Registry はセッショントークンからEntryへの対応表を管理する。
// サインイン時にEntryを生成し、Identityが終了したEntryを自動的に破棄する。
type Registry struct {
	store   directory.Store
	hub     *notify.Hub
	factory AuthFactory
	logger  *slog.Logger
	maxAge  time.Duration

	mu      sync.Mutex
	entries map[string]*Entry
	stopCh  chan struct{}
}

// NewRegistry は新しいRegistryを生成し、期限切れEntryのクリーンアップを開始する。
// maxAgeが0以下の場合はデフォルトの24時間を使用する。
func NewRegistry(store directory.Store, hub *notify.Hub, factory AuthFactory, maxAge time.Duration, logger *slog.Logger) *Registry {
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	r := &Registry{
		store:   store,
		hub:     hub,
		factory: factory,
		logger:  logger,
		maxAge:  maxAge,
		entries: make(map[string]*Entry),
		stopCh:  make(chan struct{}),
	}
	go r.cleanupLoop()
	return r
}

// Create は新しいクライアントセッションを生成する。
// AuthenticatorとManagerを対で生成し、ManagerがUnauthenticatedへ遷移した時点で
// Entryを自動破棄するウォッチャーを仕掛ける。
func (r *Registry) Create() (*Entry, error) {
	token, err := generateToken()
	if err != nil {
		return nil, err
	}

	auth := r.factory()
	mgr := NewManager(auth, r.store, r.hub.Sink(token), r.logger)

	entry := &Entry{
		Token:     token,
		Manager:   mgr,
		Auth:      auth,
		createdAt: time.Now(),
	}

	entry.unsubWatch = mgr.Watch(func(snap Snapshot) {
		if snap.Identity != nil {
			entry.sawIdentity.Store(true)
			return
		}
		// 一度認証されたセッションのIdentityが終了した（サインアウト等）。
		// Entryを破棄してリスナーとバッファを解放する。
		if !snap.Loading && entry.sawIdentity.Load() {
			r.Destroy(token)
		}
	})

	r.mu.Lock()
	r.entries[token] = entry
	r.mu.Unlock()

	return entry, nil
}

// Lookup はトークンに対応するEntryを返す。
// 期限切れのEntryは破棄し、存在しないものとして扱う。
func (r *Registry) Lookup(token string) (*Entry, bool) {
	r.mu.Lock()
	entry, ok := r.entries[token]
	r.mu.Unlock()
	if !ok {
		return nil, false
	}

	if time.Since(entry.createdAt) > r.maxAge {
		r.Destroy(token)
		return nil, false
	}
	return entry, true
}

// Destroy は指定トークンのEntryを破棄する。
// Manager、Authenticator、通知バッファの順に解放する。二重破棄は安全なno-op。
func (r *Registry) Destroy(token string) {
	r.mu.Lock()
	entry, ok := r.entries[token]
	if ok {
		delete(r.entries, token)
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	if entry.unsubWatch != nil {
		entry.unsubWatch()
	}
	entry.Manager.Close()
	entry.Auth.Close()
	r.hub.Forget(token)

	r.logger.Info("セッションを破棄しました",
		slog.String("token_prefix", tokenPrefix(token)),
	)
}

// CloseAll はすべてのEntryを破棄し、クリーンアップを停止する。シャットダウン時に呼ぶ。
func (r *Registry) CloseAll() {
	close(r.stopCh)

	r.mu.Lock()
	tokens := make([]string, 0, len(r.entries))
	for token := range r.entries {
		tokens = append(tokens, token)
	}
	r.mu.Unlock()

	for _, token := range tokens {
		r.Destroy(token)
	}
}

// cleanupLoop は期限切れEntryを定期的に破棄する。
func (r *Registry) cleanupLoop() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.mu.Lock()
			var expired []string
			for token, entry := range r.entries {
				if time.Since(entry.createdAt) > r.maxAge {
					expired = append(expired, token)
				}
			}
			r.mu.Unlock()

			for _, token := range expired {
				r.Destroy(token)
			}
		}
	}
}

// generateToken は暗号的に安全なセッショントークンを生成する。
func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// tokenPrefix はログ用にトークンの先頭8文字だけを返す。
func tokenPrefix(token string) string {
	if len(token) > 8 {
		return token[:8]
	}
	return token
}
