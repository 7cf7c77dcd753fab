// Package notify はトースト相当の一時通知を提供する。
// 通知はセッショントークンごとのリングバッファに蓄積され、
// UIが /api/notifications で回収して表示する。
// 通知は決してブロックせず、その失敗が致命的になることもない。
package notify

import (
	"log/slog"
	"sync"
	"time"
)

// Level は通知の種別を表す。
type Level string

const (
	LevelSuccess Level = "success"
	LevelInfo    Level = "info"
	LevelError   Level = "error"
)

// Notification は1件の一時通知を表す。
type Notification struct {
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Sink はセッションに束縛された通知の送り先。
// セッションマネージャやライブビューが保持し、トークンを意識せずに通知を発行する。
type Sink interface {
	Success(message string)
	Info(message string)
	Error(message string)
}

// Hub はセッショントークンごとの通知バッファを管理する。
type Hub struct {
	mu       sync.Mutex
	buffers  map[string][]Notification
	capacity int
	logger   *slog.Logger
}

// NewHub は新しいHubを生成する。capacityが0以下の場合はデフォルト値20を使用する。
func NewHub(capacity int, logger *slog.Logger) *Hub {
	if capacity <= 0 {
		capacity = 20
	}
	return &Hub{
		buffers:  make(map[string][]Notification),
		capacity: capacity,
		logger:   logger,
	}
}

// Push は通知をバッファへ追加する。容量超過時は最も古い通知を破棄する。
func (h *Hub) Push(token string, level Level, message string) {
	n := Notification{Level: level, Message: message, At: time.Now()}

	h.mu.Lock()
	buf := append(h.buffers[token], n)
	if len(buf) > h.capacity {
		buf = buf[len(buf)-h.capacity:]
	}
	h.buffers[token] = buf
	h.mu.Unlock()

	h.logger.Info("通知を発行しました",
		slog.String("level", string(level)),
		slog.String("message", message),
	)
}

// Drain は指定トークンの通知をすべて取り出してバッファを空にする。
func (h *Hub) Drain(token string) []Notification {
	h.mu.Lock()
	defer h.mu.Unlock()

	buf := h.buffers[token]
	delete(h.buffers, token)
	return buf
}

// Forget はセッション終了時にバッファを破棄する。
func (h *Hub) Forget(token string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.buffers, token)
}

// Sink は指定トークンに束縛されたSinkを返す。
func (h *Hub) Sink(token string) Sink {
	return &hubSink{hub: h, token: token}
}

type hubSink struct {
	hub   *Hub
	token string
}

func (s *hubSink) Success(message string) { s.hub.Push(s.token, LevelSuccess, message) }
func (s *hubSink) Info(message string)    { s.hub.Push(s.token, LevelInfo, message) }
func (s *hubSink) Error(message string)   { s.hub.Push(s.token, LevelError, message) }

// NopSink は通知を破棄するSink。テストや通知先が未束縛の文脈で使用する。
type NopSink struct{}

func (NopSink) Success(string) {}
func (NopSink) Info(string)    {}
func (NopSink) Error(string)   {}
