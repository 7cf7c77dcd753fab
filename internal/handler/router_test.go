package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/manabiya/internal/content"
	"github.com/hitoshi/manabiya/internal/course"
	"github.com/hitoshi/manabiya/internal/directory"
	"github.com/hitoshi/manabiya/internal/directory/memory"
	"github.com/hitoshi/manabiya/internal/enrollment"
	"github.com/hitoshi/manabiya/internal/middleware"
	"github.com/hitoshi/manabiya/internal/model"
	"github.com/hitoshi/manabiya/internal/notify"
	"github.com/hitoshi/manabiya/internal/quiz"
	"github.com/hitoshi/manabiya/internal/security"
	"github.com/hitoshi/manabiya/internal/session"
	"github.com/hitoshi/manabiya/internal/submission"
	"github.com/hitoshi/manabiya/internal/user"
)

const testCSRFToken = "router-test-csrf-token"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// testServer はインメモリバックエンドで全ルートを組み上げたテスト用サーバー。
type testServer struct {
	t      *testing.T
	router http.Handler
	store  *memory.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := discardLogger()

	store := memory.NewStore()
	accounts := memory.NewAccounts()
	hub := notify.NewHub(50, logger)
	registry := session.NewRegistry(
		store,
		hub,
		func() directory.Authenticator { return memory.NewAuthenticator(accounts) },
		0,
		logger,
	)
	t.Cleanup(registry.CloseAll)

	rateLimiter := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(100000, 100000))
	t.Cleanup(rateLimiter.Stop)

	sanitizer := security.NewContentSanitizer()
	courses := course.NewService(store, sanitizer, logger)
	enrollments := enrollment.NewService(store, courses, logger)

	router := NewRouter(&RouterDeps{
		Registry:          registry,
		Store:             store,
		Hub:               hub,
		Logger:            logger,
		CORSAllowedOrigin: "http://localhost:3000",
		RateLimiter:       rateLimiter,
		CSRFConfig:        middleware.CSRFConfig{Logger: logger},
		Gatherer:          prometheus.NewRegistry(),
		AuthConfig:        AuthHandlerConfig{SessionMaxAge: 3600},
		Users:             user.NewService(store, logger),
		Courses:           courses,
		Enrollments:       enrollments,
		Quizzes:           quiz.NewService(store, courses, logger),
		Contents:          content.NewService(store, courses, sanitizer, logger),
		Submissions:       submission.NewService(store, courses, enrollments, logger),
	})

	return &testServer{t: t, router: router, store: store}
}

// do はCSRFトークンを付与したリクエストをルーターに投げる。
// tokenが空でなければセッションCookieも付与する。
func (s *testServer) do(method, path, token string, body any) *httptest.ResponseRecorder {
	s.t.Helper()

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			s.t.Fatalf("リクエストボディのエンコードに失敗: %v", err)
		}
		reader = bytes.NewReader(b)
	}

	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: token})
	}
	req.AddCookie(&http.Cookie{Name: middleware.CSRFCookieName, Value: testCSRFToken})
	req.Header.Set("X-CSRF-Token", testCSRFToken)

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(dst); err != nil {
		t.Fatalf("レスポンスのデコードに失敗: %v (body=%s)", err, rec.Body.String())
	}
}

// signUp はAPI経由でアカウントを作成し、セッショントークンとUIDを返す。
func (s *testServer) signUp(email, name, role string) (token, uid string) {
	s.t.Helper()

	rec := s.do(http.MethodPost, "/auth/signup", "", map[string]string{
		"email":       email,
		"password":    "password123",
		"displayName": name,
		"role":        role,
	})
	if rec.Code != http.StatusCreated {
		s.t.Fatalf("サインアップに失敗: status=%d body=%s", rec.Code, rec.Body.String())
	}

	for _, c := range rec.Result().Cookies() {
		if c.Name == middleware.SessionCookieName {
			token = c.Value
		}
	}
	if token == "" {
		s.t.Fatal("サインアップ後にセッションCookieが設定されるべき")
	}

	var resp struct {
		User struct {
			UID string `json:"uid"`
		} `json:"user"`
	}
	decodeJSON(s.t, rec, &resp)
	return token, resp.User.UID
}

// promote はusersドキュメントのロールを直接書き換える。
// セッションのプロフィール購読が同期的に追従する。
func (s *testServer) promote(uid string, role model.Role) {
	s.t.Helper()
	err := s.store.Update(context.Background(), user.CollectionUsers, uid, map[string]any{
		"role": string(role),
	})
	if err != nil {
		s.t.Fatalf("ロールの書き換えに失敗: %v", err)
	}
}

func TestRouter_SignUpAndMe(t *testing.T) {
	s := newTestServer(t)

	token, uid := s.signUp("taro@example.com", "太郎", "student")

	rec := s.do(http.MethodGet, "/auth/me", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /auth/me status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp struct {
		User *struct {
			UID   string `json:"uid"`
			Email string `json:"email"`
		} `json:"user"`
		Profile *struct {
			Role string `json:"role"`
		} `json:"profile"`
		Loading bool `json:"loading"`
	}
	decodeJSON(t, rec, &resp)

	if resp.User == nil || resp.User.UID != uid {
		t.Errorf("user.uid = %+v, want %s", resp.User, uid)
	}
	if resp.Profile == nil || resp.Profile.Role != "student" {
		t.Errorf("profile.role = %+v, want student", resp.Profile)
	}
	if resp.Loading {
		t.Error("loading = true, want false")
	}
}

func TestRouter_InstructorSignUpIsPending(t *testing.T) {
	s := newTestServer(t)

	token, _ := s.signUp("sensei@example.com", "先生", "instructor")

	rec := s.do(http.MethodGet, "/auth/me", token, nil)
	var resp struct {
		Profile *struct {
			Role string `json:"role"`
		} `json:"profile"`
	}
	decodeJSON(t, rec, &resp)
	if resp.Profile == nil || resp.Profile.Role != "instructor_pending" {
		t.Errorf("profile.role = %+v, want instructor_pending", resp.Profile)
	}

	// 承認前は講師ルートに入れない
	rec = s.do(http.MethodGet, "/api/instructor/courses", token, nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("承認前の講師ルートアクセス status = %d, want %d", rec.Code, http.StatusForbidden)
	}
}

func TestRouter_AnonymousIsRedirectedToLogin(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/api/courses", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("匿名アクセス status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}

	var resp struct {
		Redirect string `json:"redirect"`
	}
	decodeJSON(t, rec, &resp)
	if resp.Redirect != "/login" {
		t.Errorf("redirect = %q, want /login", resp.Redirect)
	}
}

func TestRouter_StudentCannotCreateCourse(t *testing.T) {
	s := newTestServer(t)
	token, _ := s.signUp("gakusei@example.com", "学生", "student")

	rec := s.do(http.MethodPost, "/api/courses", token, map[string]string{"title": "不正なコース"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("学生によるコース作成 status = %d, want %d", rec.Code, http.StatusForbidden)
	}

	var resp struct {
		Redirect string `json:"redirect"`
	}
	decodeJSON(t, rec, &resp)
	if resp.Redirect != "/login" {
		t.Errorf("redirect = %q, want /login", resp.Redirect)
	}
}

func TestRouter_CourseLifecycle(t *testing.T) {
	s := newTestServer(t)

	instructorToken, instructorUID := s.signUp("sensei@example.com", "先生", "instructor")
	s.promote(instructorUID, model.RoleInstructor)
	studentToken, _ := s.signUp("gakusei@example.com", "学生", "student")

	// 講師がコースを作成
	rec := s.do(http.MethodPost, "/api/courses", instructorToken, map[string]string{
		"title":       "Go入門",
		"description": "最初の一歩",
		"category":    "プログラミング",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("コース作成 status = %d body=%s", rec.Code, rec.Body.String())
	}
	var created struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	decodeJSON(t, rec, &created)
	if created.Status != "draft" {
		t.Errorf("作成直後のstatus = %q, want draft", created.Status)
	}

	// 下書きはカタログに出ない
	rec = s.do(http.MethodGet, "/api/courses", studentToken, nil)
	var catalog []struct {
		ID string `json:"id"`
	}
	decodeJSON(t, rec, &catalog)
	if len(catalog) != 0 {
		t.Errorf("下書きコースがカタログに含まれている: %+v", catalog)
	}

	// 公開して受講登録
	rec = s.do(http.MethodPut, "/api/courses/"+created.ID+"/status", instructorToken, map[string]string{"status": "published"})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("公開 status = %d body=%s", rec.Code, rec.Body.String())
	}

	rec = s.do(http.MethodPost, "/api/courses/"+created.ID+"/enroll", studentToken, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("受講登録 status = %d body=%s", rec.Code, rec.Body.String())
	}

	// 受講一覧にコースが現れる
	rec = s.do(http.MethodGet, "/api/enrollments", studentToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("受講一覧 status = %d body=%s", rec.Code, rec.Body.String())
	}
	var enrolled []struct {
		Course struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"course"`
	}
	decodeJSON(t, rec, &enrolled)
	if len(enrolled) != 1 || enrolled[0].Course.ID != created.ID {
		t.Errorf("受講一覧 = %+v, want コース%s", enrolled, created.ID)
	}

	// 講師は受講者名簿を見られる
	rec = s.do(http.MethodGet, "/api/courses/"+created.ID+"/roster", instructorToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("名簿 status = %d body=%s", rec.Code, rec.Body.String())
	}
}

func TestRouter_QuizFlow(t *testing.T) {
	s := newTestServer(t)

	instructorToken, instructorUID := s.signUp("sensei@example.com", "先生", "instructor")
	s.promote(instructorUID, model.RoleInstructor)
	studentToken, _ := s.signUp("gakusei@example.com", "学生", "student")

	rec := s.do(http.MethodPost, "/api/courses", instructorToken, map[string]string{
		"title":       "クイズ付きコース",
		"description": "設問のテスト用",
	})
	var created struct {
		ID string `json:"id"`
	}
	decodeJSON(t, rec, &created)
	s.do(http.MethodPut, "/api/courses/"+created.ID+"/status", instructorToken, map[string]string{"status": "published"})

	rec = s.do(http.MethodPost, "/api/courses/"+created.ID+"/quizzes", instructorToken, map[string]any{
		"question":      "Goの作者は？",
		"options":       []string{"Rob Pike", "Guido", "Matz", "Brendan Eich"},
		"correctAnswer": 0,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("設問追加 status = %d body=%s", rec.Code, rec.Body.String())
	}

	// 学生向け一覧には正解が含まれない
	rec = s.do(http.MethodGet, "/api/courses/"+created.ID+"/quizzes", studentToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("設問一覧 status = %d body=%s", rec.Code, rec.Body.String())
	}
	var questions []map[string]any
	decodeJSON(t, rec, &questions)
	if len(questions) != 1 {
		t.Fatalf("設問数 = %d, want 1", len(questions))
	}
	if _, ok := questions[0]["correctAnswer"]; ok {
		t.Error("学生向けレスポンスに正解が含まれている")
	}

	// 採点
	rec = s.do(http.MethodPost, "/api/courses/"+created.ID+"/quizzes/score", studentToken, map[string]any{
		"answers": []int{0},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("採点 status = %d body=%s", rec.Code, rec.Body.String())
	}
	var result struct {
		Total   int `json:"total"`
		Correct int `json:"correct"`
		Score   int `json:"score"`
	}
	decodeJSON(t, rec, &result)
	if result.Score != 100 || result.Correct != 1 {
		t.Errorf("採点結果 = %+v, want 全問正解", result)
	}
}

func TestRouter_AdminRoutes(t *testing.T) {
	s := newTestServer(t)

	adminToken, adminUID := s.signUp("kanri@example.com", "管理者", "student")
	s.promote(adminUID, model.RoleAdmin)
	_, pendingUID := s.signUp("sensei@example.com", "先生", "instructor")

	// 承認待ち一覧
	rec := s.do(http.MethodGet, "/api/admin/instructor-requests", adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("承認待ち一覧 status = %d body=%s", rec.Code, rec.Body.String())
	}
	var pending []struct {
		UID string `json:"uid"`
	}
	decodeJSON(t, rec, &pending)
	if len(pending) != 1 || pending[0].UID != pendingUID {
		t.Fatalf("承認待ち一覧 = %+v, want %s", pending, pendingUID)
	}

	// 承認すると講師になる
	rec = s.do(http.MethodPost, "/api/admin/users/"+pendingUID+"/approve", adminToken, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("承認 status = %d body=%s", rec.Code, rec.Body.String())
	}

	rec = s.do(http.MethodGet, "/api/admin/users", adminToken, nil)
	var users []struct {
		UID  string `json:"uid"`
		Role string `json:"role"`
	}
	decodeJSON(t, rec, &users)
	for _, u := range users {
		if u.UID == pendingUID && u.Role != "instructor" {
			t.Errorf("承認後のrole = %q, want instructor", u.Role)
		}
	}

	// 学生には管理者ルートは開かない
	studentToken, _ := s.signUp("gakusei@example.com", "学生", "student")
	rec = s.do(http.MethodGet, "/api/admin/users", studentToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("学生の管理者ルートアクセス status = %d, want %d", rec.Code, http.StatusForbidden)
	}
}

func TestRouter_CSRFRejectsMissingHeader(t *testing.T) {
	s := newTestServer(t)
	token, _ := s.signUp("taro@example.com", "太郎", "student")

	req := httptest.NewRequest(http.MethodPut, "/api/profile/name", bytes.NewReader([]byte(`{"name":"次郎"}`)))
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: token})
	req.AddCookie(&http.Cookie{Name: middleware.CSRFCookieName, Value: testCSRFToken})
	// X-CSRF-Tokenヘッダーを付けない
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("CSRFヘッダーなしの状態変更 status = %d, want %d", rec.Code, http.StatusForbidden)
	}
}

func TestRouter_SignOutClearsSession(t *testing.T) {
	s := newTestServer(t)
	token, _ := s.signUp("taro@example.com", "太郎", "student")

	rec := s.do(http.MethodPost, "/auth/logout", token, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("ログアウト status = %d body=%s", rec.Code, rec.Body.String())
	}

	rec = s.do(http.MethodGet, "/auth/me", token, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("ログアウト後の/auth/me status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestRouter_NavigationFollowsRole(t *testing.T) {
	s := newTestServer(t)
	token, uid := s.signUp("taro@example.com", "太郎", "student")

	rec := s.do(http.MethodGet, "/api/navigation", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/navigation status = %d", rec.Code)
	}
	var menu []struct {
		Path string `json:"path"`
	}
	decodeJSON(t, rec, &menu)
	for _, item := range menu {
		if item.Path == "/instructor/courses" {
			t.Error("学生メニューに講師項目が含まれている")
		}
	}

	// ロールが変わればメニューも変わる
	s.promote(uid, model.RoleAdmin)
	rec = s.do(http.MethodGet, "/api/navigation", token, nil)
	decodeJSON(t, rec, &menu)
	found := false
	for _, item := range menu {
		if item.Path == "/admin/users" {
			found = true
		}
	}
	if !found {
		t.Error("管理者メニューにユーザー管理が含まれるべき")
	}
}

func TestRouter_HealthAndCSRFToken(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("GET /health status = %d, want %d", rec.Code, http.StatusOK)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /api/csrf-token status = %d", w.Code)
	}
	var resp struct {
		Token string `json:"token"`
	}
	decodeJSON(t, w, &resp)
	if resp.Token == "" {
		t.Error("CSRFトークンが返されるべき")
	}
}
