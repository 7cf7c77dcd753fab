package session

import (
	"context"
	"testing"
	"time"

	"github.com/hitoshi/manabiya/internal/directory"
	"github.com/hitoshi/manabiya/internal/directory/memory"
	"github.com/hitoshi/manabiya/internal/notify"
)

func newTestRegistry(t *testing.T, maxAge time.Duration) (*Registry, *memory.Accounts) {
	t.Helper()
	store := memory.NewStore()
	accounts := memory.NewAccounts()
	hub := notify.NewHub(20, discardLogger())
	factory := func() directory.Authenticator { return memory.NewAuthenticator(accounts) }
	r := NewRegistry(store, hub, factory, maxAge, discardLogger())
	t.Cleanup(r.CloseAll)
	return r, accounts
}

func TestRegistryCreateAndLookup(t *testing.T) {
	r, _ := newTestRegistry(t, time.Hour)

	entry, err := r.Create()
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if entry.Token == "" {
		t.Fatal("トークンが空")
	}

	got, ok := r.Lookup(entry.Token)
	if !ok || got != entry {
		t.Fatalf("Lookup = %v, %v", got, ok)
	}

	if _, ok := r.Lookup("unknown-token"); ok {
		t.Error("未知のトークンでEntryが返ってはならない")
	}
}

func TestRegistryTokensAreUnique(t *testing.T) {
	r, _ := newTestRegistry(t, time.Hour)

	seen := make(map[string]bool)
	for i := 0; i < 32; i++ {
		entry, err := r.Create()
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		if seen[entry.Token] {
			t.Fatalf("トークンが重複: %s", entry.Token)
		}
		seen[entry.Token] = true
	}
}

func TestRegistryReapsOnSignOut(t *testing.T) {
	r, accounts := newTestRegistry(t, time.Hour)
	accounts.Seed("u@example.com", "passw0rd", "u")

	entry, err := r.Create()
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	ctx := context.Background()
	if _, err := entry.Auth.SignIn(ctx, "u@example.com", "passw0rd"); err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if _, ok := r.Lookup(entry.Token); !ok {
		t.Fatal("サインイン中のEntryはLookupできるべき")
	}

	if err := entry.Manager.SignOut(ctx); err != nil {
		t.Fatalf("SignOut: %v", err)
	}

	if _, ok := r.Lookup(entry.Token); ok {
		t.Error("サインアウト後のEntryは自動破棄されるべき")
	}
}

func TestRegistryDoesNotReapBeforeSignIn(t *testing.T) {
	r, _ := newTestRegistry(t, time.Hour)

	// 未サインインのEntry（初回Identity通知はnil）は破棄されない
	entry, err := r.Create()
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, ok := r.Lookup(entry.Token); !ok {
		t.Error("サインイン前のEntryが破棄されている")
	}
}

func TestRegistryExpiry(t *testing.T) {
	r, _ := newTestRegistry(t, 10*time.Millisecond)

	entry, err := r.Create()
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	time.Sleep(20 * time.Millisecond)

	if _, ok := r.Lookup(entry.Token); ok {
		t.Error("期限切れのEntryはLookupで破棄されるべき")
	}
}

func TestRegistryDestroyIsIdempotent(t *testing.T) {
	r, _ := newTestRegistry(t, time.Hour)

	entry, err := r.Create()
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	r.Destroy(entry.Token)
	r.Destroy(entry.Token)

	if _, ok := r.Lookup(entry.Token); ok {
		t.Error("破棄済みのEntryが残っている")
	}
}

func TestRegistryCloseAll(t *testing.T) {
	store := memory.NewStore()
	accounts := memory.NewAccounts()
	hub := notify.NewHub(20, discardLogger())
	factory := func() directory.Authenticator { return memory.NewAuthenticator(accounts) }
	r := NewRegistry(store, hub, factory, time.Hour, discardLogger())

	e1, _ := r.Create()
	e2, _ := r.Create()

	r.CloseAll()

	if _, ok := r.Lookup(e1.Token); ok {
		t.Error("CloseAll後にEntryが残っている")
	}
	if _, ok := r.Lookup(e2.Token); ok {
		t.Error("CloseAll後にEntryが残っている")
	}
}
