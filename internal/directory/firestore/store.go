// Package firestore はディレクトリサービスのドキュメントストアを
// Cloud Firestoreで実装する。
// ドキュメント購読・クエリ購読はFirestoreのスナップショットストリームを
// 購読単位のゴルーチンでポンプし、コールバックへ順序通りに配送する。
package firestore

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/hitoshi/manabiya/internal/directory"
)

// Store はFirestoreバックエンドのdirectory.Store実装。
type Store struct {
	client *firestore.Client
	logger *slog.Logger
}

// Open はFirestoreクライアントを開いてStoreを生成する。
// credentialsFileが空の場合はApplication Default Credentialsを使用する。
func Open(ctx context.Context, projectID, credentialsFile string, logger *slog.Logger) (*Store, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}

	return &Store{client: client, logger: logger}, nil
}

var _ directory.Store = (*Store)(nil)

// Close はFirestoreクライアントを閉じる。
func (s *Store) Close() error {
	return s.client.Close()
}

// Get は指定コレクションのドキュメントを1件取得する。
func (s *Store) Get(ctx context.Context, collection, id string) (*directory.Document, error) {
	snap, err := s.client.Collection(collection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, directory.ErrNotFound
		}
		return nil, mapError(err)
	}
	return toDocument(id, snap), nil
}

// Create はドキュメントを作成する。idが空の場合はFirestoreの自動採番IDを使用する。
// 既に同じIDのドキュメントが存在する場合はErrAlreadyExistsを返す。
func (s *Store) Create(ctx context.Context, collection, id string, data map[string]any) (string, error) {
	col := s.client.Collection(collection)

	ref := col.NewDoc()
	if id != "" {
		ref = col.Doc(id)
	}

	if _, err := ref.Create(ctx, data); err != nil {
		return "", mapError(err)
	}
	return ref.ID, nil
}

// Update は指定ドキュメントのフィールドを部分更新する。
func (s *Store) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	updates := make([]firestore.Update, 0, len(fields))
	for k, v := range fields {
		updates = append(updates, firestore.Update{Path: k, Value: v})
	}

	if _, err := s.client.Collection(collection).Doc(id).Update(ctx, updates); err != nil {
		return mapError(err)
	}
	return nil
}

// Delete は指定ドキュメントを削除する。Firestoreでは存在しないドキュメントの削除はno-op。
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if _, err := s.client.Collection(collection).Doc(id).Delete(ctx); err != nil {
		return mapError(err)
	}
	return nil
}

// SubscribeDocument は単一ドキュメントのリアルタイム購読を開く。
func (s *Store) SubscribeDocument(collection, id string, onNext func(*directory.Document), onErr func(error)) directory.CancelFunc {
	ctx, cancel := context.WithCancel(context.Background())
	iter := s.client.Collection(collection).Doc(id).Snapshots(ctx)

	go func() {
		defer iter.Stop()
		for {
			snap, err := iter.Next()
			if err != nil {
				if status.Code(err) == codes.Canceled || ctx.Err() != nil {
					return
				}
				s.logger.Error("ドキュメント購読が中断されました",
					slog.String("collection", collection),
					slog.String("id", id),
					slog.String("error", err.Error()),
				)
				onErr(mapError(err))
				return
			}
			onNext(toDocument(id, snap))
		}
	}()

	var once sync.Once
	return func() {
		once.Do(cancel)
	}
}

// SubscribeQuery は等値フィルタ付きクエリのリアルタイム購読を開く。
// 複合インデックスを要求しないようソート句は付けない。順序付けはクライアント側で行う。
func (s *Store) SubscribeQuery(collection string, filters []directory.Filter, onNext func([]*directory.Document), onErr func(error)) directory.CancelFunc {
	query := s.client.Collection(collection).Query
	for _, f := range filters {
		query = query.WhereEntity(firestore.PropertyFilter{
			Path:     f.Field,
			Operator: "==",
			Value:    f.Value,
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	iter := query.Snapshots(ctx)

	go func() {
		defer iter.Stop()
		for {
			qsnap, err := iter.Next()
			if err != nil {
				if status.Code(err) == codes.Canceled || ctx.Err() != nil {
					return
				}
				s.logger.Error("クエリ購読が中断されました",
					slog.String("collection", collection),
					slog.String("error", err.Error()),
				)
				onErr(mapError(err))
				return
			}

			docs, err := collectDocuments(qsnap)
			if err != nil {
				onErr(mapError(err))
				return
			}
			onNext(docs)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(cancel)
	}
}

func collectDocuments(qsnap *firestore.QuerySnapshot) ([]*directory.Document, error) {
	var out []*directory.Document
	for {
		snap, err := qsnap.Documents.Next()
		if err == iterator.Done {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, toDocument(snap.Ref.ID, snap))
	}
}

func toDocument(id string, snap *firestore.DocumentSnapshot) *directory.Document {
	doc := &directory.Document{ID: id, Exists: snap.Exists()}
	if doc.Exists {
		doc.Data = snap.Data()
	}
	return doc
}

// mapError はgRPCステータスコードをdirectoryのセンチネルエラーへ分類する。
func mapError(err error) error {
	switch status.Code(err) {
	case codes.NotFound:
		return directory.ErrNotFound
	case codes.AlreadyExists:
		return directory.ErrAlreadyExists
	case codes.PermissionDenied:
		return directory.ErrPermissionDenied
	default:
		return fmt.Errorf("firestore: %w", err)
	}
}
