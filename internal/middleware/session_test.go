package middleware

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/manabiya/internal/directory"
	"github.com/hitoshi/manabiya/internal/directory/memory"
	"github.com/hitoshi/manabiya/internal/notify"
	"github.com/hitoshi/manabiya/internal/session"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func newTestRegistry(t *testing.T) (*session.Registry, *memory.Accounts) {
	t.Helper()
	accounts := memory.NewAccounts()
	registry := session.NewRegistry(
		memory.NewStore(),
		notify.NewHub(10, discardLogger()),
		func() directory.Authenticator { return memory.NewAuthenticator(accounts) },
		0,
		discardLogger(),
	)
	t.Cleanup(registry.CloseAll)
	return registry, accounts
}

// passthrough はコンテキストのエントリ有無を記録するテスト用ハンドラー。
type passthrough struct {
	called   bool
	hasEntry bool
	userID   string
}

func (p *passthrough) ServeHTTP(_ http.ResponseWriter, r *http.Request) {
	p.called = true
	_, p.hasEntry = EntryFromContext(r.Context())
	p.userID, _ = UserIDFromContext(r.Context())
}

func TestSessionMiddleware_ValidToken(t *testing.T) {
	registry, accounts := newTestRegistry(t)
	accounts.Seed("taro@example.com", "password123", "太郎")

	entry, err := registry.Create()
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := entry.Auth.SignIn(context.Background(), "taro@example.com", "password123"); err != nil {
		t.Fatalf("SignIn: %v", err)
	}

	next := &passthrough{}
	handler := NewSessionMiddleware(registry)(next)

	req := httptest.NewRequest(http.MethodGet, "/api/courses", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: entry.Token})
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if !next.called || !next.hasEntry {
		t.Errorf("エントリがコンテキストに注入されるべき: called=%v hasEntry=%v", next.called, next.hasEntry)
	}
	if next.userID == "" {
		t.Error("サインイン済みセッションからユーザーIDが取得できるべき")
	}
}

func TestSessionMiddleware_NoCookie(t *testing.T) {
	registry, _ := newTestRegistry(t)

	next := &passthrough{}
	handler := NewSessionMiddleware(registry)(next)

	req := httptest.NewRequest(http.MethodGet, "/api/courses", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if !next.called {
		t.Error("Cookieなしでもリクエストは通過すべき")
	}
	if next.hasEntry {
		t.Error("エントリは注入されないべき")
	}
}

func TestSessionMiddleware_StaleTokenClearsCookie(t *testing.T) {
	registry, _ := newTestRegistry(t)

	next := &passthrough{}
	handler := NewSessionMiddleware(registry)(next)

	req := httptest.NewRequest(http.MethodGet, "/api/courses", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "expired-token"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !next.called || next.hasEntry {
		t.Errorf("失効トークンは素通しになるべき: called=%v hasEntry=%v", next.called, next.hasEntry)
	}

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != SessionCookieName || cookies[0].MaxAge != -1 {
		t.Errorf("失効Cookieは破棄されるべき: %+v", cookies)
	}
}

func TestUserIDFromContext_NotSignedIn(t *testing.T) {
	registry, _ := newTestRegistry(t)
	entry, err := registry.Create()
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	ctx := ContextWithEntry(context.Background(), entry)
	if _, err := UserIDFromContext(ctx); err == nil {
		t.Error("未サインインのセッションからはエラーが返されるべき")
	}
}
