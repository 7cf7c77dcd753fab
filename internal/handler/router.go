package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/manabiya/internal/content"
	"github.com/hitoshi/manabiya/internal/course"
	"github.com/hitoshi/manabiya/internal/directory"
	"github.com/hitoshi/manabiya/internal/enrollment"
	"github.com/hitoshi/manabiya/internal/guard"
	"github.com/hitoshi/manabiya/internal/metrics"
	"github.com/hitoshi/manabiya/internal/middleware"
	"github.com/hitoshi/manabiya/internal/model"
	"github.com/hitoshi/manabiya/internal/notify"
	"github.com/hitoshi/manabiya/internal/quiz"
	"github.com/hitoshi/manabiya/internal/session"
	"github.com/hitoshi/manabiya/internal/submission"
	"github.com/hitoshi/manabiya/internal/user"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// セッションと通知
	Registry *session.Registry
	Store    directory.Store
	Hub      *notify.Hub
	Logger   *slog.Logger

	// ミドルウェア依存
	CORSAllowedOrigin    string
	RateLimiter          *middleware.RateLimiter
	CSRFConfig           middleware.CSRFConfig
	Gatherer             prometheus.Gatherer
	Metrics              metrics.MetricsCollector
	RoleMismatchRedirect string

	// 認証
	AuthConfig AuthHandlerConfig

	// ドメインサービス
	Users       *user.Service
	Courses     *course.Service
	Enrollments *enrollment.Service
	Quizzes     *quiz.Service
	Contents    *content.Service
	Submissions *submission.Service
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	CORS → SecurityHeaders → Recovery → Logging →
//	Session → RateLimit → CSRF → Guard
//
// セッションミドルウェアはCookieからセッションを引き当ててコンテキストに載せるだけで、
// 認可の判断はルートグループごとのガードミドルウェアが行う。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	collector := deps.Metrics
	if collector == nil {
		collector = metrics.Nop{}
	}

	// 全ルート共通のミドルウェア
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewMetricsMiddleware(collector))

	authHandler := NewAuthHandler(deps.Registry, deps.Users, collector, deps.AuthConfig)
	courseHandler := NewCourseHandler(deps.Courses, deps.Store, deps.Hub, deps.Logger)
	enrollHandler := NewEnrollmentHandler(deps.Enrollments, deps.Store, deps.Hub, deps.Logger)
	quizHandler := NewQuizHandler(deps.Quizzes, deps.Store, deps.Hub, deps.Logger)
	contentHandler := NewContentHandler(deps.Contents, deps.Store, deps.Hub, deps.Logger)
	submissionHandler := NewSubmissionHandler(deps.Submissions, deps.Store, deps.Hub, deps.Logger)
	userHandler := NewUserHandler(deps.Users, deps.Store, deps.Hub, deps.Logger)
	navigationHandler := NewNavigationHandler()
	notificationHandler := NewNotificationHandler(deps.Hub)

	opts := guard.RoleOptions{MismatchRedirect: deps.RoleMismatchRedirect}
	sessionGuard := middleware.NewGuardMiddleware(guard.Session)
	studentGuard := middleware.NewGuardMiddleware(guard.Role(model.RoleStudent, opts))
	instructorGuard := middleware.NewGuardMiddleware(guard.Role(model.RoleInstructor, opts))
	adminGuard := middleware.NewGuardMiddleware(guard.Role(model.RoleAdmin, opts))
	managerGuard := middleware.NewGuardMiddleware(guard.AnyRole([]model.Role{model.RoleInstructor, model.RoleAdmin}, opts))

	// --- 認証不要のルート ---

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

	// --- 認証ルート ---
	// セッションミドルウェアを通すのは、再ログイン時に古いセッションを破棄するため。
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.Registry))
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

		r.Route("/auth", func(r chi.Router) {
			// 資格情報を扱うエンドポイントは厳しいレート制限をかける
			r.With(deps.RateLimiter.CredentialMiddleware()).Post("/signup", authHandler.SignUp)
			r.With(deps.RateLimiter.CredentialMiddleware()).Post("/login", authHandler.SignIn)

			r.With(deps.RateLimiter.GeneralMiddleware()).Post("/logout", authHandler.SignOut)
			r.With(deps.RateLimiter.GeneralMiddleware()).Get("/me", authHandler.Me)
		})
	})

	// --- 認証が必要なAPIルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.Registry))
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

		r.Route("/api", func(r chi.Router) {
			// サインイン済みなら誰でも使えるルート
			r.Group(func(r chi.Router) {
				r.Use(sessionGuard)

				r.Get("/navigation", navigationHandler.Menu)
				r.Get("/notifications", notificationHandler.Drain)
				r.Put("/profile/name", userHandler.UpdateName)

				r.Get("/courses", courseHandler.ListCatalog)
				r.Get("/courses/stream", courseHandler.StreamCatalog)
				r.Get("/courses/recent", courseHandler.ListRecent)
				r.Get("/courses/{id}", courseHandler.Get)

				r.Get("/courses/{id}/quizzes", quizHandler.List)
				r.Post("/courses/{id}/quizzes/score", quizHandler.Score)
				r.Get("/courses/{id}/content", contentHandler.List)
				r.Get("/courses/{id}/content/stream", contentHandler.Stream)
			})

			// 学生ロール専用ルート
			r.Group(func(r chi.Router) {
				r.Use(studentGuard)

				r.Post("/courses/{id}/enroll", enrollHandler.Enroll)
				r.Delete("/courses/{id}/enroll", enrollHandler.Unenroll)
				r.Get("/courses/{id}/enrollment", enrollHandler.GetOwn)
				r.Post("/courses/{id}/modules/{index}/toggle", enrollHandler.ToggleModule)

				r.Get("/enrollments", enrollHandler.ListOwn)
				r.Get("/enrollments/stream", enrollHandler.StreamOwn)
				r.Get("/enrollments/stats", enrollHandler.Stats)

				r.Post("/courses/{id}/submissions", submissionHandler.Submit)
				r.Get("/courses/{id}/submissions/me", submissionHandler.GetOwn)
			})

			// 講師ロール専用ルート
			r.Group(func(r chi.Router) {
				r.Use(instructorGuard)

				r.Get("/instructor/courses", courseHandler.ListMine)
				r.Get("/instructor/courses/stream", courseHandler.StreamMine)
				r.Get("/instructor/courses/{id}/quizzes", quizHandler.ListFull)
				r.Get("/instructor/courses/{id}/quizzes/stream", quizHandler.Stream)

				r.Post("/courses", courseHandler.Create)
				r.Patch("/courses/{id}", courseHandler.Update)
				r.Post("/courses/{id}/modules", courseHandler.AddModule)
				r.Put("/courses/{id}/modules/{moduleID}", courseHandler.UpdateModule)
				r.Delete("/courses/{id}/modules/{moduleID}", courseHandler.RemoveModule)

				r.Post("/courses/{id}/quizzes", quizHandler.Add)
				r.Put("/courses/{id}/quizzes/{questionID}", quizHandler.Update)
				r.Delete("/courses/{id}/quizzes/{questionID}", quizHandler.Delete)

				r.Post("/courses/{id}/content", contentHandler.Add)
				r.Put("/courses/{id}/content/{contentID}", contentHandler.Update)
				r.Delete("/courses/{id}/content/{contentID}", contentHandler.Delete)

				r.Get("/courses/{id}/roster", enrollHandler.ListRoster)
				r.Get("/courses/{id}/submissions", submissionHandler.List)
				r.Get("/courses/{id}/submissions/stream", submissionHandler.Stream)
				r.Post("/courses/{id}/submissions/{submissionID}/grade", submissionHandler.Grade)
			})

			// 講師または管理者が使えるルート
			r.Group(func(r chi.Router) {
				r.Use(managerGuard)

				r.Put("/courses/{id}/status", courseHandler.SetStatus)
				r.Delete("/courses/{id}", courseHandler.Delete)
			})

			// 管理者ロール専用ルート
			r.Group(func(r chi.Router) {
				r.Use(adminGuard)

				r.Get("/admin/courses", courseHandler.ListAll)
				r.Get("/admin/users", userHandler.ListUsers)
				r.Get("/admin/users/stream", userHandler.StreamUsers)
				r.Get("/admin/instructor-requests", userHandler.ListPendingInstructors)
				r.Post("/admin/users/{uid}/approve", userHandler.ApproveInstructor)
				r.Put("/admin/users/{uid}/role", userHandler.SetRole)
			})
		})
	})

	return r
}
