package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Directory
	DirectoryBackend    string // "firestore" または "memory"
	FirebaseProjectID   string
	FirebaseAPIKey      string
	FirebaseCredentials string // サービスアカウント鍵のファイルパス。空ならADC

	// Session
	SessionMaxAge        time.Duration
	RoleMismatchRedirect string

	// Rate Limit
	RateLimitGeneral    int
	RateLimitCredential int

	// Notify
	NotifyBufferSize int

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// BackendFirestore と BackendMemory はDIRECTORY_BACKENDの取りうる値。
const (
	BackendFirestore = "firestore"
	BackendMemory    = "memory"
)

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	var missing []string

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	cfg.DirectoryBackend = getEnvString("DIRECTORY_BACKEND", BackendFirestore)
	switch cfg.DirectoryBackend {
	case BackendFirestore:
		// firestoreバックエンドはFirebaseプロジェクトの設定を必須とする
		cfg.FirebaseProjectID = os.Getenv("FIREBASE_PROJECT_ID")
		if cfg.FirebaseProjectID == "" {
			missing = append(missing, "FIREBASE_PROJECT_ID")
		}
		cfg.FirebaseAPIKey = os.Getenv("FIREBASE_API_KEY")
		if cfg.FirebaseAPIKey == "" {
			missing = append(missing, "FIREBASE_API_KEY")
		}
		cfg.FirebaseCredentials = getEnvString("FIREBASE_CREDENTIALS_FILE", "")
	case BackendMemory:
		// インメモリバックエンドは外部設定を要求しない
	default:
		return nil, fmt.Errorf("DIRECTORY_BACKENDの値が不正です: %q (firestore または memory)", cfg.DirectoryBackend)
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.SessionMaxAge = getEnvDuration("SESSION_MAX_AGE", 24*time.Hour)
	cfg.RoleMismatchRedirect = getEnvString("ROLE_MISMATCH_REDIRECT", "/login")
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitCredential = getEnvInt("RATE_LIMIT_CREDENTIAL", 10)
	cfg.NotifyBufferSize = getEnvInt("NOTIFY_BUFFER_SIZE", 20)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
