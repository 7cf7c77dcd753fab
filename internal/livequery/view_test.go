package livequery

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hitoshi/manabiya/internal/directory"
	"github.com/hitoshi/manabiya/internal/directory/memory"
	"github.com/hitoshi/manabiya/internal/notify"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

type row struct {
	ID        string
	Title     string
	CreatedAt time.Time
}

func mapRow(doc *directory.Document) (row, bool) {
	if !doc.Exists {
		return row{}, false
	}
	return row{
		ID:        doc.ID,
		Title:     doc.StringField("title"),
		CreatedAt: doc.TimeField("createdAt"),
	}, true
}

func newTestView(t *testing.T, store directory.Store, filters []directory.Filter) *View[row] {
	t.Helper()
	return NewView(store, Config[row]{
		Name:       "test",
		Collection: "courses",
		Filters:    filters,
		Map:        mapRow,
		Less:       ByCreatedAtDesc(func(r row) time.Time { return r.CreatedAt }),
	}, notify.NopSink{}, discardLogger())
}

func TestViewDeliversInitialSnapshot(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	if _, err := store.Create(ctx, "courses", "c1", map[string]any{"title": "Go入門"}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	v := newTestView(t, store, nil)
	v.Start(ctx)
	defer v.Stop()

	items, loading, err := v.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot err = %v", err)
	}
	if loading {
		t.Fatal("初回スナップショット配送後はloading=falseであるべき")
	}
	if len(items) != 1 || items[0].Title != "Go入門" {
		t.Fatalf("items = %+v", items)
	}
}

func TestViewTracksUpdates(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	v := newTestView(t, store, nil)
	v.Start(ctx)
	defer v.Stop()

	if _, err := store.Create(ctx, "courses", "c1", map[string]any{"title": "前"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.Update(ctx, "courses", "c1", map[string]any{"title": "後"}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	items, _, _ := v.Snapshot()
	if len(items) != 1 || items[0].Title != "後" {
		t.Fatalf("items = %+v", items)
	}
}

func TestViewSortPutsZeroTimestampsLast(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	old := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	recent := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	if _, err := store.Create(ctx, "courses", "pending", map[string]any{"title": "時刻未確定"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := store.Create(ctx, "courses", "old", map[string]any{"title": "旧", "createdAt": old}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := store.Create(ctx, "courses", "new", map[string]any{"title": "新", "createdAt": recent}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	v := newTestView(t, store, nil)
	v.Start(ctx)
	defer v.Stop()

	items, _, _ := v.Snapshot()
	if len(items) != 3 {
		t.Fatalf("len(items) = %d", len(items))
	}
	// 降順: 新 → 旧 → ゼロ値は末尾
	if items[0].ID != "new" || items[1].ID != "old" || items[2].ID != "pending" {
		t.Fatalf("表示順が不正: %v, %v, %v", items[0].ID, items[1].ID, items[2].ID)
	}
	for i := 0; i < len(items)-1; i++ {
		a, b := items[i].CreatedAt, items[i+1].CreatedAt
		if !a.IsZero() && !b.IsZero() && a.Before(b) {
			t.Errorf("createdAtが昇順になっている: %v < %v", a, b)
		}
	}
}

func TestViewFilters(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	if _, err := store.Create(ctx, "courses", "c1", map[string]any{"title": "公開", "status": "published"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := store.Create(ctx, "courses", "c2", map[string]any{"title": "下書き", "status": "draft"}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	v := newTestView(t, store, []directory.Filter{{Field: "status", Value: "published"}})
	v.Start(ctx)
	defer v.Stop()

	items, _, _ := v.Snapshot()
	if len(items) != 1 || items[0].ID != "c1" {
		t.Fatalf("items = %+v", items)
	}
}

func TestViewRestartSwitchesFilter(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	if _, err := store.Create(ctx, "enrollments", "e1", map[string]any{"userId": "u1", "title": "A"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := store.Create(ctx, "enrollments", "e2", map[string]any{"userId": "u2", "title": "B"}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	v := NewView(store, Config[row]{
		Name:       "test",
		Collection: "enrollments",
		Filters:    []directory.Filter{{Field: "userId", Value: "u1"}},
		Map:        mapRow,
	}, notify.NopSink{}, discardLogger())
	v.Start(ctx)
	defer v.Stop()

	items, _, _ := v.Snapshot()
	if len(items) != 1 || items[0].ID != "e1" {
		t.Fatalf("restart前: items = %+v", items)
	}

	v.Restart(ctx, []directory.Filter{{Field: "userId", Value: "u2"}})

	items, _, _ = v.Snapshot()
	if len(items) != 1 || items[0].ID != "e2" {
		t.Fatalf("restart後: items = %+v", items)
	}
}

type mockStore struct {
	directory.Store
	subscribeQueryFn func(collection string, filters []directory.Filter, onNext func([]*directory.Document), onErr func(error)) directory.CancelFunc
}

func (m *mockStore) SubscribeQuery(collection string, filters []directory.Filter, onNext func([]*directory.Document), onErr func(error)) directory.CancelFunc {
	return m.subscribeQueryFn(collection, filters, onNext, onErr)
}

type recordSink struct {
	errors []string
}

func (s *recordSink) Success(string)   {}
func (s *recordSink) Info(string)      {}
func (s *recordSink) Error(msg string) { s.errors = append(s.errors, msg) }

var _ notify.Sink = (*recordSink)(nil)

func TestViewErrorDegradesToEmpty(t *testing.T) {
	var onErr func(error)
	store := &mockStore{
		subscribeQueryFn: func(_ string, _ []directory.Filter, onNext func([]*directory.Document), errFn func(error)) directory.CancelFunc {
			onNext([]*directory.Document{
				{ID: "c1", Exists: true, Data: map[string]any{"title": "A"}},
			})
			onErr = errFn
			return func() {}
		},
	}

	sink := &recordSink{}
	v := NewView(store, Config[row]{
		Name:       "catalog",
		Collection: "courses",
		Map:        mapRow,
	}, sink, discardLogger())
	v.Start(context.Background())
	defer v.Stop()

	if items, _, _ := v.Snapshot(); len(items) != 1 {
		t.Fatalf("エラー前: items = %+v", items)
	}

	onErr(context.DeadlineExceeded)

	items, loading, err := v.Snapshot()
	if len(items) != 0 {
		t.Errorf("エラー後は空集合へ縮退すべき: %+v", items)
	}
	if loading {
		t.Error("エラー後はloading=falseであるべき")
	}
	if err == nil {
		t.Error("エラーが保持されるべき")
	}
	if len(sink.errors) != 1 {
		t.Errorf("エラー通知が1回配送されるべき: %v", sink.errors)
	}
}

func TestViewStopIsIdempotent(t *testing.T) {
	store := memory.NewStore()
	v := newTestView(t, store, nil)
	v.Start(context.Background())

	v.Stop()
	v.Stop() // 二重解除は安全
}

func TestViewWatchDeliversCurrentImmediately(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	if _, err := store.Create(ctx, "courses", "c1", map[string]any{"title": "A"}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	v := newTestView(t, store, nil)
	v.Start(ctx)
	defer v.Stop()

	var got [][]row
	cancel := v.Watch(func(items []row, err error) {
		got = append(got, items)
	})
	defer cancel()

	if len(got) != 1 || len(got[0]) != 1 {
		t.Fatalf("登録時に現在値が配送されるべき: %+v", got)
	}

	if _, err := store.Create(ctx, "courses", "c2", map[string]any{"title": "B"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(got) != 2 || len(got[1]) != 2 {
		t.Fatalf("更新が配送されるべき: %+v", got)
	}

	cancel()
	cancel() // 二重解除は安全
}
