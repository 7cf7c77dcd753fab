// Package memory はディレクトリサービスのインメモリ実装を提供する。
// ローカル開発（DIRECTORY_BACKEND=memory）とテストで使用する。
// ホスト型サービスの再実装ではなく、購読セマンティクスを模した開発用ダブルである。
package memory

import (
	"context"
	"maps"
	"reflect"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/hitoshi/manabiya/internal/directory"
)

// Store はインメモリのドキュメントストア。
// ミューテーションごとに該当するドキュメント購読・クエリ購読へ
// 最新のスナップショットをファンアウトする。
// 配送は購読単位で順序が保たれる（購読をまたいだ順序保証はない）。
type Store struct {
	mu          sync.Mutex
	collections map[string]map[string]map[string]any // collection -> id -> fields
	docSubs     map[int]*docSub
	querySubs   map[int]*querySub
	nextSubID   int
}

type docSub struct {
	collection string
	id         string
	onNext     func(*directory.Document)
	deliverMu  sync.Mutex // 購読単位の配送順序を保証する
}

type querySub struct {
	collection string
	filters    []directory.Filter
	onNext     func([]*directory.Document)
	deliverMu  sync.Mutex
}

// NewStore は空のStoreを生成する。
func NewStore() *Store {
	return &Store{
		collections: make(map[string]map[string]map[string]any),
		docSubs:     make(map[int]*docSub),
		querySubs:   make(map[int]*querySub),
	}
}

var _ directory.Store = (*Store)(nil)

// Get は指定コレクションのドキュメントを1件取得する。
func (s *Store) Get(_ context.Context, collection, id string) (*directory.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fields, ok := s.collections[collection][id]
	if !ok {
		return nil, directory.ErrNotFound
	}
	return &directory.Document{ID: id, Exists: true, Data: maps.Clone(fields)}, nil
}

// Create はドキュメントを作成する。idが空の場合は新規IDを採番する。
// 既に同じIDのドキュメントが存在する場合はErrAlreadyExistsを返す。
func (s *Store) Create(_ context.Context, collection, id string, data map[string]any) (string, error) {
	if id == "" {
		id = uuid.New().String()
	}

	s.mu.Lock()
	if _, ok := s.collections[collection][id]; ok {
		s.mu.Unlock()
		return "", directory.ErrAlreadyExists
	}
	if s.collections[collection] == nil {
		s.collections[collection] = make(map[string]map[string]any)
	}
	s.collections[collection][id] = maps.Clone(data)
	s.mu.Unlock()

	s.notify(collection, id)
	return id, nil
}

// Update は指定ドキュメントのフィールドを部分更新する。
func (s *Store) Update(_ context.Context, collection, id string, fields map[string]any) error {
	s.mu.Lock()
	doc, ok := s.collections[collection][id]
	if !ok {
		s.mu.Unlock()
		return directory.ErrNotFound
	}
	for k, v := range fields {
		doc[k] = v
	}
	s.mu.Unlock()

	s.notify(collection, id)
	return nil
}

// Delete は指定ドキュメントを削除する。存在しないドキュメントの削除はno-op。
func (s *Store) Delete(_ context.Context, collection, id string) error {
	s.mu.Lock()
	if _, ok := s.collections[collection][id]; !ok {
		s.mu.Unlock()
		return nil
	}
	delete(s.collections[collection], id)
	s.mu.Unlock()

	s.notify(collection, id)
	return nil
}

// SubscribeDocument は単一ドキュメントのリアルタイム購読を開く。
func (s *Store) SubscribeDocument(collection, id string, onNext func(*directory.Document), _ func(error)) directory.CancelFunc {
	sub := &docSub{collection: collection, id: id, onNext: onNext}

	s.mu.Lock()
	s.nextSubID++
	subID := s.nextSubID
	s.docSubs[subID] = sub
	snap := s.documentLocked(collection, id)
	s.mu.Unlock()

	// 現在値を最初のスナップショットとして直ちに配送する
	sub.deliver(snap)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.docSubs, subID)
			s.mu.Unlock()
		})
	}
}

// SubscribeQuery は等値フィルタ付きクエリのリアルタイム購読を開く。
func (s *Store) SubscribeQuery(collection string, filters []directory.Filter, onNext func([]*directory.Document), _ func(error)) directory.CancelFunc {
	sub := &querySub{collection: collection, filters: filters, onNext: onNext}

	s.mu.Lock()
	s.nextSubID++
	subID := s.nextSubID
	s.querySubs[subID] = sub
	snap := s.matchingLocked(collection, filters)
	s.mu.Unlock()

	sub.deliver(snap)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.querySubs, subID)
			s.mu.Unlock()
		})
	}
}

// notify は(collection, id)のミューテーション後に該当する購読へ最新状態を配送する。
func (s *Store) notify(collection, id string) {
	s.mu.Lock()
	var docTargets []*docSub
	var docSnaps []*directory.Document
	for _, sub := range s.docSubs {
		if sub.collection == collection && sub.id == id {
			docTargets = append(docTargets, sub)
			docSnaps = append(docSnaps, s.documentLocked(collection, id))
		}
	}
	var queryTargets []*querySub
	var querySnaps [][]*directory.Document
	for _, sub := range s.querySubs {
		if sub.collection == collection {
			queryTargets = append(queryTargets, sub)
			querySnaps = append(querySnaps, s.matchingLocked(collection, sub.filters))
		}
	}
	s.mu.Unlock()

	// コールバックはストアのロック外で呼ぶ（コールバック内のストア操作を許容するため）
	for i, sub := range docTargets {
		sub.deliver(docSnaps[i])
	}
	for i, sub := range queryTargets {
		sub.deliver(querySnaps[i])
	}
}

func (sub *docSub) deliver(doc *directory.Document) {
	sub.deliverMu.Lock()
	defer sub.deliverMu.Unlock()
	sub.onNext(doc)
}

func (sub *querySub) deliver(docs []*directory.Document) {
	sub.deliverMu.Lock()
	defer sub.deliverMu.Unlock()
	sub.onNext(docs)
}

func (s *Store) documentLocked(collection, id string) *directory.Document {
	fields, ok := s.collections[collection][id]
	if !ok {
		return &directory.Document{ID: id, Exists: false}
	}
	return &directory.Document{ID: id, Exists: true, Data: maps.Clone(fields)}
}

func (s *Store) matchingLocked(collection string, filters []directory.Filter) []*directory.Document {
	var out []*directory.Document
	for id, fields := range s.collections[collection] {
		if matches(fields, filters) {
			out = append(out, &directory.Document{ID: id, Exists: true, Data: maps.Clone(fields)})
		}
	}
	// map走査順序の揺らぎを抑えるためID順で返す。
	// 表示順序はクライアント側ソート（livequery）が決める。
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func matches(fields map[string]any, filters []directory.Filter) bool {
	for _, f := range filters {
		if !reflect.DeepEqual(fields[f.Field], f.Value) {
			return false
		}
	}
	return true
}
