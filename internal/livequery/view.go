// Package livequery はドキュメントデータベースのクエリ購読を型付きの
// ライブビューとして提供する。Viewは購読の開始・再購読・解除のライフサイクルと、
// 生ドキュメントから型付き項目への変換・整列を一手に引き受ける。
package livequery

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/hitoshi/manabiya/internal/directory"
	"github.com/hitoshi/manabiya/internal/model"
	"github.com/hitoshi/manabiya/internal/notify"
)

// Config はViewの構成。
type Config[T any] struct {
	// Name はログとエラー通知に使う表示名（例: "catalog", "my-courses"）。
	Name string
	// Collection は購読対象のコレクション。
	Collection string
	// Filters は等値フィルタ。nilなら全件。
	Filters []directory.Filter
	// Map は生ドキュメントを項目へ変換する。falseを返した項目は結果から除外される。
	Map func(*directory.Document) (T, bool)
	// Enrich はスナップショットごとの後処理（結合・補完・除外）。nilなら変換結果をそのまま使う。
	Enrich func(context.Context, []T) []T
	// Less は表示順。nilなら到着順のまま。
	Less func(a, b T) bool
}

// View はクエリ購読の現在値を保持する型付きライブビュー。
// 失敗セマンティクス: 購読エラー時は空集合へ縮退し、エラーを保持・通知する。
// スナップショットの取得が他の機能を壊すことはない。
type View[T any] struct {
	store  directory.Store
	cfg    Config[T]
	sink   notify.Sink
	logger *slog.Logger

	mu         sync.Mutex
	items      []T
	loading    bool
	err        error
	generation int // 購読の世代。再購読時に加算し、古い世代の配送を破棄する
	unsub      directory.CancelFunc
	watchers   map[int]func([]T, error)
	nextWatch  int
}

// NewView はViewを生成する。購読はStartを呼ぶまで開始しない。
func NewView[T any](store directory.Store, cfg Config[T], sink notify.Sink, logger *slog.Logger) *View[T] {
	return &View[T]{
		store:    store,
		cfg:      cfg,
		sink:     sink,
		logger:   logger,
		loading:  true,
		watchers: make(map[int]func([]T, error)),
	}
}

// Start は購読を開始する。すでに購読中なら何もしない。
func (v *View[T]) Start(ctx context.Context) {
	v.mu.Lock()
	if v.unsub != nil {
		v.mu.Unlock()
		return
	}
	v.startLocked(ctx)
	v.mu.Unlock()
}

// Restart は既存の購読を解除し、新しいフィルタで購読し直す。
// 古い購読からの遅延配送は世代カウンタで破棄される。
func (v *View[T]) Restart(ctx context.Context, filters []directory.Filter) {
	v.mu.Lock()
	if v.unsub != nil {
		unsub := v.unsub
		v.unsub = nil
		v.mu.Unlock()
		unsub()
		v.mu.Lock()
	}
	v.cfg.Filters = filters
	v.items = nil
	v.loading = true
	v.err = nil
	v.startLocked(ctx)
	v.mu.Unlock()
}

// startLocked は購読を開く。呼び出し側はv.muを保持していること。
func (v *View[T]) startLocked(ctx context.Context) {
	v.generation++
	gen := v.generation
	collection := v.cfg.Collection
	filters := v.cfg.Filters
	v.mu.Unlock()

	unsub := v.store.SubscribeQuery(collection, filters,
		func(docs []*directory.Document) { v.onSnapshot(ctx, gen, docs) },
		func(err error) { v.onError(gen, err) },
	)

	v.mu.Lock()
	if gen != v.generation {
		// 購読中にRestart/Stopされた。開いたばかりの購読を閉じる。
		v.mu.Unlock()
		unsub()
		v.mu.Lock()
		return
	}
	v.unsub = unsub
}

// Stop は購読を解除する。二重呼び出しは安全なno-op。
func (v *View[T]) Stop() {
	v.mu.Lock()
	unsub := v.unsub
	v.unsub = nil
	v.generation++
	v.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

// Snapshot は現在の項目集合を返す。loadingは初回スナップショット待ちを示す。
func (v *View[T]) Snapshot() (items []T, loading bool, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.items, v.loading, v.err
}

// Watch はスナップショット更新の通知を購読する。
// 登録時に現在値が直ちに1回配送される。戻り値で解除する（二重解除は安全）。
func (v *View[T]) Watch(fn func([]T, error)) directory.CancelFunc {
	v.mu.Lock()
	id := v.nextWatch
	v.nextWatch++
	v.watchers[id] = fn
	items, err := v.items, v.err
	v.mu.Unlock()

	fn(items, err)

	var once sync.Once
	return func() {
		once.Do(func() {
			v.mu.Lock()
			delete(v.watchers, id)
			v.mu.Unlock()
		})
	}
}

func (v *View[T]) onSnapshot(ctx context.Context, gen int, docs []*directory.Document) {
	items := make([]T, 0, len(docs))
	for _, doc := range docs {
		if item, ok := v.cfg.Map(doc); ok {
			items = append(items, item)
		}
	}
	if v.cfg.Enrich != nil {
		items = v.cfg.Enrich(ctx, items)
	}
	if v.cfg.Less != nil {
		sort.SliceStable(items, func(i, j int) bool { return v.cfg.Less(items[i], items[j]) })
	}

	v.mu.Lock()
	if gen != v.generation {
		v.mu.Unlock()
		return
	}
	v.items = items
	v.loading = false
	v.err = nil
	watchers := v.snapshotWatchersLocked()
	v.mu.Unlock()

	for _, fn := range watchers {
		fn(items, nil)
	}
}

func (v *View[T]) onError(gen int, err error) {
	v.mu.Lock()
	if gen != v.generation {
		v.mu.Unlock()
		return
	}
	// 失敗時は空集合へ縮退する。呼び出し側は通常どおりスナップショットを取得できる。
	v.items = nil
	v.loading = false
	apiErr := model.NewQueryFailedError(v.cfg.Name)
	v.err = apiErr
	watchers := v.snapshotWatchersLocked()
	v.mu.Unlock()

	v.logger.Error("クエリ購読でエラーが発生しました",
		slog.String("view", v.cfg.Name),
		slog.String("collection", v.cfg.Collection),
		slog.String("error", err.Error()),
	)
	v.sink.Error(apiErr.Message)

	for _, fn := range watchers {
		fn(nil, apiErr)
	}
}

func (v *View[T]) snapshotWatchersLocked() []func([]T, error) {
	fns := make([]func([]T, error), 0, len(v.watchers))
	for _, fn := range v.watchers {
		fns = append(fns, fn)
	}
	return fns
}

// ByCreatedAtDesc は作成日時の降順を返す比較関数を生成する。
// ゼロ値のタイムスタンプ（サーバー時刻の未確定など）は常に末尾に置く。
func ByCreatedAtDesc[T any](createdAt func(T) time.Time) func(a, b T) bool {
	return func(a, b T) bool {
		ta, tb := createdAt(a), createdAt(b)
		if ta.IsZero() {
			return false
		}
		if tb.IsZero() {
			return true
		}
		return ta.After(tb)
	}
}
