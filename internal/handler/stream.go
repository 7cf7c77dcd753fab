package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/hitoshi/manabiya/internal/livequery"
	"github.com/hitoshi/manabiya/internal/model"
)

// collected はライブビューの確定済みスナップショット。
type collected[T any] struct {
	items []T
	err   error
}

// collectView はライブビューを起動し、最初に確定したスナップショットを回収して停止する。
// 一覧系のREST GETエンドポイントで使用する。
func collectView[T any](ctx context.Context, view *livequery.View[T]) ([]T, error) {
	ch := make(chan collected[T], 1)
	cancel := view.Watch(func(items []T, err error) {
		// 初期配送前の空スナップショットは読み飛ばす
		if _, loading, _ := view.Snapshot(); loading {
			return
		}
		select {
		case ch <- collected[T]{items: items, err: err}:
		default:
		}
	})
	defer cancel()

	view.Start(ctx)
	defer view.Stop()

	select {
	case c := <-ch:
		return c.items, c.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// streamEvent はSSEで配送する1イベントのペイロード。
type streamEvent struct {
	Items any               `json:"items,omitempty"`
	Error *apiErrorResponse `json:"error,omitempty"`
}

// streamView はライブビューをServer-Sent Eventsとして配信する。
// スナップショットが更新されるたびにdataイベントを送り、
// クライアント切断でビューを停止する。
func streamView[T any](w http.ResponseWriter, r *http.Request, view *livequery.View[T]) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
			Code:     "STREAMING_UNSUPPORTED",
			Message:  "ストリーミングに対応していない接続です。",
			Category: "system",
			Action:   "通常のGETエンドポイントを使用してください。",
		})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	events := make(chan []byte, 8)
	view.Start(r.Context())
	defer view.Stop()

	cancel := view.Watch(func(items []T, err error) {
		ev := streamEvent{}
		if err != nil {
			var apiErr *model.APIError
			if !errors.As(err, &apiErr) {
				apiErr = model.NewQueryFailedError("stream")
			}
			ev.Error = &apiErrorResponse{
				Code:     apiErr.Code,
				Message:  apiErr.Message,
				Category: apiErr.Category,
				Action:   apiErr.Action,
			}
		} else {
			if items == nil {
				items = []T{}
			}
			ev.Items = items
		}
		body, merr := json.Marshal(ev)
		if merr != nil {
			return
		}
		// 配送が詰まっている場合は古いイベントを捨てて最新を優先する
		select {
		case events <- body:
		default:
			select {
			case <-events:
			default:
			}
			select {
			case events <- body:
			default:
			}
		}
	})
	defer cancel()

	for {
		select {
		case <-r.Context().Done():
			return
		case body := <-events:
			fmt.Fprintf(w, "data: %s\n\n", body)
			flusher.Flush()
		}
	}
}
