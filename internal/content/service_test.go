package content

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/manabiya/internal/course"
	"github.com/hitoshi/manabiya/internal/directory/memory"
	"github.com/hitoshi/manabiya/internal/model"
	"github.com/hitoshi/manabiya/internal/notify"
	"github.com/hitoshi/manabiya/internal/security"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

var fixedNow = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

func instructor(uid string) *model.Profile {
	return &model.Profile{UID: uid, Name: "講師" + uid, Role: model.RoleInstructor}
}

func newTestService(t *testing.T) (*Service, *course.Service, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	sanitizer := security.NewContentSanitizer()
	courses := course.NewService(store, sanitizer, discardLogger())
	s := NewService(store, courses, sanitizer, discardLogger())
	s.now = func() time.Time { return fixedNow }
	return s, courses, store
}

func createCourse(t *testing.T, courses *course.Service, owner *model.Profile) *model.Course {
	t.Helper()
	c, err := courses.Create(context.Background(), owner, course.CreateInput{
		Title:       "Go入門",
		Description: "基礎から学ぶ",
	})
	if err != nil {
		t.Fatalf("コース作成: %v", err)
	}
	return c
}

func TestAdd_Video(t *testing.T) {
	s, courses, _ := newTestService(t)
	ctx := context.Background()
	owner := instructor("i1")
	c := createCourse(t, courses, owner)

	item, err := s.Add(ctx, owner, c.ID, Input{
		Title: "導入動画",
		Type:  model.ContentTypeVideo,
		URL:   "https://www.youtube.com/watch?v=abc123",
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if item.URL != "https://www.youtube.com/embed/abc123" {
		t.Errorf("URL = %q（埋め込み形式に正規化されるべき）", item.URL)
	}
	if item.CreatedBy != "i1" || !item.CreatedAt.Equal(fixedNow) {
		t.Errorf("メタデータが不正: %+v", item)
	}
}

func TestAdd_Assignment(t *testing.T) {
	s, courses, _ := newTestService(t)
	ctx := context.Background()
	owner := instructor("i1")
	c := createCourse(t, courses, owner)

	item, err := s.Add(ctx, owner, c.ID, Input{
		Title:       "レポート課題",
		Type:        model.ContentTypeAssignment,
		URL:         "https://example.com/ignored.pdf",
		Description: "<p>1000字で<script>alert(1)</script>まとめる</p>",
		Deadline:    "2026-05-01",
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if item.URL != "" {
		t.Errorf("課題のURLは空になるべき: %q", item.URL)
	}
	if strings.Contains(item.Description, "script") {
		t.Errorf("説明文がサニタイズされていない: %q", item.Description)
	}
	if item.Deadline != "2026-05-01" {
		t.Errorf("Deadline = %q", item.Deadline)
	}
}

func TestAdd_Validation(t *testing.T) {
	s, courses, _ := newTestService(t)
	ctx := context.Background()
	owner := instructor("i1")
	c := createCourse(t, courses, owner)

	tests := []struct {
		name  string
		actor *model.Profile
		in    Input
	}{
		{"タイトルが空", owner, Input{Type: model.ContentTypeVideo, URL: "https://example.com/v"}},
		{"動画のURLが不正", owner, Input{Title: "動画", Type: model.ContentTypeVideo, URL: "javascript:alert(1)"}},
		{"PDFのURLが空", owner, Input{Title: "資料", Type: model.ContentTypePDF}},
		{"課題の説明文が空", owner, Input{Title: "課題", Type: model.ContentTypeAssignment, Deadline: "2026-05-01"}},
		{"課題の期限が不正", owner, Input{Title: "課題", Type: model.ContentTypeAssignment, Description: "説明", Deadline: "来週まで"}},
		{"種別が不正", owner, Input{Title: "教材", Type: "audio", URL: "https://example.com/a"}},
		{"所有者以外", instructor("i2"), Input{Title: "動画", Type: model.ContentTypeVideo, URL: "https://example.com/v"}},
		{"actorがnil", nil, Input{Title: "動画", Type: model.ContentTypeVideo, URL: "https://example.com/v"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.Add(ctx, tt.actor, c.ID, tt.in); err == nil {
				t.Error("エラーが返されるべき")
			}
		})
	}
}

func TestUpdate(t *testing.T) {
	s, courses, store := newTestService(t)
	ctx := context.Background()
	owner := instructor("i1")
	c := createCourse(t, courses, owner)
	item, _ := s.Add(ctx, owner, c.ID, Input{
		Title: "資料", Type: model.ContentTypePDF, URL: "https://example.com/v1.pdf",
	})

	err := s.Update(ctx, owner, c.ID, item.ID, Input{
		Title: "改訂版資料", Type: model.ContentTypePDF, URL: "https://example.com/v2.pdf",
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	doc, err := store.Get(ctx, ContentCollection(c.ID), item.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	got := DecodeItem(doc)
	if got.Title != "改訂版資料" || got.URL != "https://example.com/v2.pdf" {
		t.Errorf("更新が反映されていない: %+v", got)
	}
}

func TestUpdate_Missing(t *testing.T) {
	s, courses, _ := newTestService(t)
	owner := instructor("i1")
	c := createCourse(t, courses, owner)

	err := s.Update(context.Background(), owner, c.ID, "nosuch", Input{
		Title: "資料", Type: model.ContentTypePDF, URL: "https://example.com/v.pdf",
	})
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeContentNotFound {
		t.Errorf("err = %v, want CONTENT_NOT_FOUND", err)
	}
}

func TestDelete(t *testing.T) {
	s, courses, _ := newTestService(t)
	ctx := context.Background()
	owner := instructor("i1")
	c := createCourse(t, courses, owner)
	item, _ := s.Add(ctx, owner, c.ID, Input{
		Title: "資料", Type: model.ContentTypePDF, URL: "https://example.com/v.pdf",
	})

	if err := s.Delete(ctx, instructor("i2"), c.ID, item.ID); err == nil {
		t.Error("所有者以外の削除は拒否されるべき")
	}
	if err := s.Delete(ctx, owner, c.ID, item.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, owner, c.ID, item.ID); err == nil {
		t.Error("削除済み教材の再削除はエラーになるべき")
	}
}

func TestCourseContentView(t *testing.T) {
	s, courses, store := newTestService(t)
	ctx := context.Background()
	owner := instructor("i1")
	c1 := createCourse(t, courses, owner)
	c2 := createCourse(t, courses, owner)

	if _, err := s.Add(ctx, owner, c1.ID, Input{Title: "資料A", Type: model.ContentTypePDF, URL: "https://example.com/a.pdf"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := s.Add(ctx, owner, c2.ID, Input{Title: "資料B", Type: model.ContentTypePDF, URL: "https://example.com/b.pdf"}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	view := NewCourseContentView(store, c1.ID, notify.NopSink{}, discardLogger())
	view.Start(ctx)
	defer view.Stop()

	items, loading, err := view.Snapshot()
	if err != nil || loading {
		t.Fatalf("Snapshot: loading=%v err=%v", loading, err)
	}
	if len(items) != 1 || items[0].Title != "資料A" {
		t.Errorf("コースごとに教材が分離されるべき: %+v", items)
	}
}
