// Package identitytoolkit はディレクトリサービスの認証を
// Identity Toolkit REST APIで実装する。
// クライアントはセッションごとに1インスタンス生成され、高々1つのIdentityスロットと
// そのトークンを保持し、変更をウォッチャーへファンアウトする。
package identitytoolkit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/hitoshi/manabiya/internal/directory"
	"github.com/hitoshi/manabiya/internal/model"
)

const defaultEndpoint = "https://identitytoolkit.googleapis.com/v1"

// Client はIdentity Toolkit REST APIのクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	apiKey     string
	endpoint   string // テスト用にエンドポイントを差し替え可能

	mu           sync.Mutex
	current      *model.Identity
	idToken      string
	refreshToken string
	watchers     map[int]func(*model.Identity)
	nextID       int
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(httpClient *http.Client, logger *slog.Logger, apiKey string) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		apiKey:     apiKey,
		endpoint:   defaultEndpoint,
		watchers:   make(map[int]func(*model.Identity)),
	}
}

var _ directory.Authenticator = (*Client)(nil)

// signInResponse はaccounts:signInWithPassword / accounts:signUp のレスポンス。
type signInResponse struct {
	LocalID      string `json:"localId"`
	Email        string `json:"email"`
	DisplayName  string `json:"displayName"`
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
}

// apiErrorResponse はIdentity ToolkitのエラーJSON。
type apiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// SignIn はメールアドレスとパスワードでサインインする。
func (c *Client) SignIn(ctx context.Context, email, password string) (*model.Identity, error) {
	var res signInResponse
	err := c.post(ctx, "accounts:signInWithPassword", map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	}, &res)
	if err != nil {
		return nil, err
	}

	ident := &model.Identity{UID: res.LocalID, Email: res.Email, DisplayName: res.DisplayName}
	c.setIdentity(ident, res.IDToken, res.RefreshToken)
	return ident, nil
}

// SignUp は新規アカウントを作成しサインイン状態にする。
// 表示名は作成後にaccounts:updateで設定する。
func (c *Client) SignUp(ctx context.Context, email, password, displayName string) (*model.Identity, error) {
	var res signInResponse
	err := c.post(ctx, "accounts:signUp", map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	}, &res)
	if err != nil {
		return nil, err
	}

	if displayName != "" {
		var updated signInResponse
		err := c.post(ctx, "accounts:update", map[string]any{
			"idToken":           res.IDToken,
			"displayName":       displayName,
			"returnSecureToken": false,
		}, &updated)
		if err != nil {
			// 表示名の設定失敗はアカウント作成を巻き戻さない。
			// プロフィール側の名前が正となるため診断ログのみ残す。
			c.logger.Warn("表示名の設定に失敗しました",
				slog.String("email", email),
				slog.String("error", err.Error()),
			)
		}
	}

	ident := &model.Identity{UID: res.LocalID, Email: email, DisplayName: displayName}
	c.setIdentity(ident, res.IDToken, res.RefreshToken)
	return ident, nil
}

// SignOut はIdentityスロットとトークンをクリアし、変更通知（nil）を配送する。
// Identity Toolkitのセッションはステートレスなトークンのため、破棄はクライアント側で完結する。
func (c *Client) SignOut(_ context.Context) error {
	c.mu.Lock()
	if c.current == nil {
		c.mu.Unlock()
		return directory.ErrNotSignedIn
	}
	c.current = nil
	c.idToken = ""
	c.refreshToken = ""
	watchers := c.snapshotWatchersLocked()
	c.mu.Unlock()

	for _, fn := range watchers {
		fn(nil)
	}
	return nil
}

// SubscribeIdentityChanges はIdentity変更通知の購読を開く。
// 購読開始時に現在のIdentityが直ちに1回配送される。
func (c *Client) SubscribeIdentityChanges(fn func(*model.Identity)) directory.CancelFunc {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.watchers[id] = fn
	current := c.current
	c.mu.Unlock()

	fn(current)

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.watchers, id)
			c.mu.Unlock()
		})
	}
}

// Close はすべてのウォッチャーを解放する。
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.watchers = make(map[int]func(*model.Identity))
}

// IDToken は現在のIdentityのIDトークンを返す。未サインイン時は空文字。
func (c *Client) IDToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.idToken
}

func (c *Client) setIdentity(ident *model.Identity, idToken, refreshToken string) {
	c.mu.Lock()
	c.current = ident
	c.idToken = idToken
	c.refreshToken = refreshToken
	watchers := c.snapshotWatchersLocked()
	c.mu.Unlock()

	for _, fn := range watchers {
		fn(ident)
	}
}

func (c *Client) snapshotWatchersLocked() []func(*model.Identity) {
	out := make([]func(*model.Identity), 0, len(c.watchers))
	for _, fn := range c.watchers {
		out = append(out, fn)
	}
	return out
}

// post はIdentity ToolkitのRPCエンドポイントへJSONをPOSTし、レスポンスをデコードする。
func (c *Client) post(ctx context.Context, method string, body map[string]any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("リクエストの生成に失敗しました: %w", err)
	}

	url := fmt.Sprintf("%s/%s?key=%s", c.endpoint, method, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("認証サービスへの接続に失敗しました: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("レスポンスの読み取りに失敗しました: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr apiErrorResponse
		if err := json.Unmarshal(data, &apiErr); err == nil && apiErr.Error.Message != "" {
			return mapAPIError(apiErr.Error.Message)
		}
		return fmt.Errorf("認証サービスがステータス%dを返しました", resp.StatusCode)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("レスポンスの解析に失敗しました: %w", err)
	}
	return nil
}

// mapAPIError はIdentity Toolkitのエラーメッセージをdirectoryのセンチネルエラーへ分類する。
func mapAPIError(message string) error {
	switch {
	case message == "EMAIL_EXISTS":
		return directory.ErrEmailInUse
	case message == "INVALID_EMAIL" || message == "MISSING_EMAIL":
		return directory.ErrInvalidEmail
	case strings.HasPrefix(message, "WEAK_PASSWORD"):
		return directory.ErrWeakPassword
	case message == "INVALID_LOGIN_CREDENTIALS" ||
		message == "INVALID_PASSWORD" ||
		message == "EMAIL_NOT_FOUND" ||
		message == "USER_DISABLED":
		return directory.ErrInvalidCredentials
	default:
		return fmt.Errorf("identitytoolkit: %s", message)
	}
}
