package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/manabiya/internal/directory"
	"github.com/hitoshi/manabiya/internal/metrics"
	"github.com/hitoshi/manabiya/internal/middleware"
	"github.com/hitoshi/manabiya/internal/model"
	"github.com/hitoshi/manabiya/internal/session"
	"github.com/hitoshi/manabiya/internal/user"
)

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// AuthHandler はメール・パスワード認証とセッションライフサイクルのHTTPハンドラー。
type AuthHandler struct {
	registry  *session.Registry
	users     *user.Service
	collector metrics.MetricsCollector
	config    AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(registry *session.Registry, users *user.Service, collector metrics.MetricsCollector, config AuthHandlerConfig) *AuthHandler {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &AuthHandler{
		registry:  registry,
		users:     users,
		collector: collector,
		config:    config,
	}
}

// signUpRequest はサインアップリクエストのボディ。
// roleはstudentまたはinstructor。instructorは承認待ち状態で登録される。
type signUpRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
	Role        string `json:"role"`
}

// signInRequest はログインリクエストのボディ。
type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// identityResponse は認証済みIdentityのAPIレスポンス。
type identityResponse struct {
	UID         string `json:"uid"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
}

// profileResponse はプロフィールのAPIレスポンス。
type profileResponse struct {
	UID       string    `json:"uid"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

// sessionResponse はセッション状態のAPIレスポンス。
type sessionResponse struct {
	User    *identityResponse `json:"user"`
	Profile *profileResponse  `json:"profile"`
	Loading bool              `json:"loading"`
}

func toSessionResponse(snap session.Snapshot) sessionResponse {
	resp := sessionResponse{Loading: snap.Loading}
	if snap.Identity != nil {
		resp.User = &identityResponse{
			UID:         snap.Identity.UID,
			Email:       snap.Identity.Email,
			DisplayName: snap.Identity.DisplayName,
		}
	}
	if snap.Profile != nil {
		resp.Profile = &profileResponse{
			UID:       snap.Profile.UID,
			Name:      snap.Profile.Name,
			Email:     snap.Profile.Email,
			Role:      string(snap.Profile.Role),
			CreatedAt: snap.Profile.CreatedAt,
		}
	}
	return resp
}

// SignUp は新規アカウントを作成しサインイン状態にする。
// POST /auth/signup
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if !decodeBody(w, r, &req) {
		return
	}

	h.destroyExistingSession(r)

	entry, err := h.registry.Create()
	if err != nil {
		slog.Error("セッションの生成に失敗した", slog.String("error", err.Error()))
		handleServiceError(w, err)
		return
	}

	ident, err := entry.Auth.SignUp(r.Context(), req.Email, req.Password, req.DisplayName)
	if err != nil {
		h.registry.Destroy(entry.Token)
		h.collector.RecordSignInFailure("signup")
		handleServiceError(w, authErrorToAPI(err))
		return
	}

	if _, err := h.users.CreateProfile(r.Context(), ident, model.Role(req.Role)); err != nil {
		// アカウントは作成済みのためセッションごと破棄して失敗を返す
		h.registry.Destroy(entry.Token)
		handleServiceError(w, err)
		return
	}

	h.collector.RecordSignInSuccess()
	h.collector.RecordSessionCreated()
	h.setSessionCookie(w, entry.Token)
	writeJSON(w, http.StatusCreated, toSessionResponse(entry.Manager.Snapshot()))
}

// SignIn はメールアドレスとパスワードでログインする。
// POST /auth/login
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if !decodeBody(w, r, &req) {
		return
	}

	h.destroyExistingSession(r)

	entry, err := h.registry.Create()
	if err != nil {
		slog.Error("セッションの生成に失敗した", slog.String("error", err.Error()))
		handleServiceError(w, err)
		return
	}

	if _, err := entry.Auth.SignIn(r.Context(), req.Email, req.Password); err != nil {
		h.registry.Destroy(entry.Token)
		h.collector.RecordSignInFailure("signin")
		handleServiceError(w, authErrorToAPI(err))
		return
	}

	h.collector.RecordSignInSuccess()
	h.collector.RecordSessionCreated()
	h.setSessionCookie(w, entry.Token)
	writeJSON(w, http.StatusOK, toSessionResponse(entry.Manager.Snapshot()))
}

// SignOut はセッションを終了する。
// POST /auth/logout
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	entry, ok := middleware.EntryFromContext(r.Context())
	if !ok {
		// セッションがなければCookieの破棄だけ行う
		middleware.ClearSessionCookie(w)
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if err := entry.Manager.SignOut(r.Context()); err != nil {
		handleServiceError(w, err)
		return
	}

	h.collector.RecordSignOut()
	h.collector.RecordSessionDestroyed()
	middleware.ClearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// Me は現在のセッション状態を返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	entry, ok := middleware.EntryFromContext(r.Context())
	if !ok {
		writeAPIErrorResponse(w, http.StatusUnauthorized, &model.APIError{
			Code:     "UNAUTHORIZED",
			Message:  "認証が必要です。",
			Category: "auth",
			Action:   "ログインしてください。",
		})
		return
	}

	writeJSON(w, http.StatusOK, toSessionResponse(entry.Manager.Snapshot()))
}

// destroyExistingSession はリクエストに紐づく既存セッションがあれば破棄する。
// ログイン中の再ログインで古いEntryが残留するのを防ぐ。
func (h *AuthHandler) destroyExistingSession(r *http.Request) {
	if entry, ok := middleware.EntryFromContext(r.Context()); ok {
		h.registry.Destroy(entry.Token)
		h.collector.RecordSessionDestroyed()
	}
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, token string) {
	middleware.SetSessionCookie(w, token, h.config.SessionMaxAge, h.config.CookieSecure, h.config.CookieDomain)
}

// authErrorToAPI は認証サービスのエラーをAPIErrorに変換する。
func authErrorToAPI(err error) error {
	switch {
	case errors.Is(err, directory.ErrInvalidCredentials):
		return model.NewInvalidCredentialsError()
	case errors.Is(err, directory.ErrEmailInUse):
		return model.NewEmailInUseError()
	case errors.Is(err, directory.ErrWeakPassword):
		return model.NewWeakPasswordError()
	case errors.Is(err, directory.ErrInvalidEmail):
		return model.NewInvalidEmailError()
	case errors.Is(err, directory.ErrNotSignedIn):
		return model.NewSignOutFailedError()
	default:
		return err
	}
}
