package directory

import "time"

// Document.Dataをmapアクセスのボイラープレートなしに扱うための
// フィールド取得ヘルパー群。存在しない/型不一致のフィールドはゼロ値として扱う。

// StringField はドキュメントの文字列フィールドを取得する。
func (d *Document) StringField(key string) string {
	if d == nil || d.Data == nil {
		return ""
	}
	s, _ := d.Data[key].(string)
	return s
}

// IntField はドキュメントの整数フィールドを取得する。
// バックエンドの数値表現（int / int64 / float64）を吸収する。
func (d *Document) IntField(key string) int {
	if d == nil || d.Data == nil {
		return 0
	}
	switch v := d.Data[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// TimeField はドキュメントの時刻フィールドを取得する。
// 未設定の場合はゼロ値を返す（ソート時は最も古いものとして扱われる）。
func (d *Document) TimeField(key string) time.Time {
	if d == nil || d.Data == nil {
		return time.Time{}
	}
	t, _ := d.Data[key].(time.Time)
	return t
}

// IntSliceField はドキュメントの整数配列フィールドを取得する。
func (d *Document) IntSliceField(key string) []int {
	if d == nil || d.Data == nil {
		return nil
	}
	switch v := d.Data[key].(type) {
	case []int:
		out := make([]int, len(v))
		copy(out, v)
		return out
	case []any:
		out := make([]int, 0, len(v))
		for _, e := range v {
			switch n := e.(type) {
			case int:
				out = append(out, n)
			case int64:
				out = append(out, int(n))
			case float64:
				out = append(out, int(n))
			}
		}
		return out
	}
	return nil
}

// StringSliceField はドキュメントの文字列配列フィールドを取得する。
func (d *Document) StringSliceField(key string) []string {
	if d == nil || d.Data == nil {
		return nil
	}
	switch v := d.Data[key].(type) {
	case []string:
		out := make([]string, len(v))
		copy(out, v)
		return out
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// MapSliceField はドキュメントの埋め込みオブジェクト配列フィールドを取得する。
// Courseのmodulesのような埋め込みサブエンティティのデコードに使用する。
func (d *Document) MapSliceField(key string) []map[string]any {
	if d == nil || d.Data == nil {
		return nil
	}
	switch v := d.Data[key].(type) {
	case []map[string]any:
		return v
	case []any:
		out := make([]map[string]any, 0, len(v))
		for _, e := range v {
			if m, ok := e.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	}
	return nil
}
