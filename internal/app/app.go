// Package app はアプリケーションの初期化と起動を提供する。
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/manabiya/internal/config"
	"github.com/hitoshi/manabiya/internal/content"
	"github.com/hitoshi/manabiya/internal/course"
	"github.com/hitoshi/manabiya/internal/directory"
	"github.com/hitoshi/manabiya/internal/directory/firestore"
	"github.com/hitoshi/manabiya/internal/directory/identitytoolkit"
	"github.com/hitoshi/manabiya/internal/directory/memory"
	"github.com/hitoshi/manabiya/internal/enrollment"
	"github.com/hitoshi/manabiya/internal/handler"
	"github.com/hitoshi/manabiya/internal/logger"
	"github.com/hitoshi/manabiya/internal/metrics"
	"github.com/hitoshi/manabiya/internal/middleware"
	"github.com/hitoshi/manabiya/internal/notify"
	"github.com/hitoshi/manabiya/internal/quiz"
	"github.com/hitoshi/manabiya/internal/security"
	"github.com/hitoshi/manabiya/internal/session"
	"github.com/hitoshi/manabiya/internal/submission"
	"github.com/hitoshi/manabiya/internal/user"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 設定読み込み前にログを使えるようにする
	logger.SetupDefault(w)

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("backend", cfg.DirectoryBackend),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	return runServe(cfg)
}

// runServe はAPIサーバーモードで起動する。
// ディレクトリバックエンドを開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	log := slog.Default()

	// 1. ディレクトリバックエンドの初期化
	store, authFactory, closeStore, err := openDirectory(context.Background(), cfg, log)
	if err != nil {
		return fmt.Errorf("failed to open directory backend: %w", err)
	}
	defer closeStore()

	slog.Info("directory backend ready", slog.String("backend", cfg.DirectoryBackend))

	// 2. セッションレイヤーの初期化
	hub := notify.NewHub(cfg.NotifyBufferSize, log)
	registry := session.NewRegistry(store, hub, authFactory, cfg.SessionMaxAge, log)
	defer registry.CloseAll()

	// 3. ドメインサービスの初期化
	sanitizer := security.NewContentSanitizer()
	courses := course.NewService(store, sanitizer, log)
	enrollments := enrollment.NewService(store, courses, log)
	quizzes := quiz.NewService(store, courses, log)
	contents := content.NewService(store, courses, sanitizer, log)
	submissions := submission.NewService(store, courses, enrollments, log)
	users := user.NewService(store, log)

	// 4. メトリクスとレート制限
	promRegistry := prometheus.NewRegistry()
	collector := metrics.NewCollector(promRegistry)

	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitCredential),
	)
	defer rateLimiter.Stop()

	// 5. ルーターの構築
	router := handler.NewRouter(&handler.RouterDeps{
		Registry:             registry,
		Store:                store,
		Hub:                  hub,
		Logger:               log,
		CORSAllowedOrigin:    cfg.CORSAllowedOrigin,
		RateLimiter:          rateLimiter,
		CSRFConfig:           middleware.CSRFConfig{CookieSecure: cfg.CookieSecure, CookieDomain: cfg.CookieDomain, Logger: log},
		Gatherer:             promRegistry,
		Metrics:              collector,
		RoleMismatchRedirect: cfg.RoleMismatchRedirect,
		AuthConfig: handler.AuthHandlerConfig{
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: int(cfg.SessionMaxAge.Seconds()),
		},
		Users:       users,
		Courses:     courses,
		Enrollments: enrollments,
		Quizzes:     quizzes,
		Contents:    contents,
		Submissions: submissions,
	})

	// 6. HTTPサーバーの起動
	server := &http.Server{
		Addr:        ":" + cfg.ServerPort,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// SSEストリームを切らないようWriteTimeoutは設定しない
		IdleTimeout: 60 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// openDirectory は設定に応じたディレクトリバックエンドを開く。
// ドキュメントストアと、セッションごとのAuthenticatorを生成するファクトリを返す。
func openDirectory(ctx context.Context, cfg *config.Config, log *slog.Logger) (directory.Store, session.AuthFactory, func() error, error) {
	switch cfg.DirectoryBackend {
	case config.BackendFirestore:
		store, err := firestore.Open(ctx, cfg.FirebaseProjectID, cfg.FirebaseCredentials, log)
		if err != nil {
			return nil, nil, nil, err
		}
		httpClient := &http.Client{Timeout: 15 * time.Second}
		factory := func() directory.Authenticator {
			return identitytoolkit.NewClient(httpClient, log, cfg.FirebaseAPIKey)
		}
		return store, factory, store.Close, nil

	case config.BackendMemory:
		store := memory.NewStore()
		accounts := memory.NewAccounts()
		factory := func() directory.Authenticator {
			return memory.NewAuthenticator(accounts)
		}
		return store, factory, func() error { return nil }, nil

	default:
		return nil, nil, nil, fmt.Errorf("unknown directory backend: %q", cfg.DirectoryBackend)
	}
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}
