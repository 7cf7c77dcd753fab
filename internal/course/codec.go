package course

import (
	"net/url"
	"strings"

	"github.com/hitoshi/manabiya/internal/directory"
	"github.com/hitoshi/manabiya/internal/model"
)

// DecodeCourse はcourses/{id}ドキュメントをCourseへデコードする。
func DecodeCourse(doc *directory.Document) *model.Course {
	c := &model.Course{
		ID:            doc.ID,
		Title:         doc.StringField("title"),
		Description:   doc.StringField("description"),
		Category:      doc.StringField("category"),
		Thumbnail:     doc.StringField("thumbnail"),
		CreatedBy:     doc.StringField("createdBy"),
		CreatedByName: doc.StringField("createdByName"),
		Status:        model.CourseStatus(doc.StringField("status")),
		CreatedAt:     doc.TimeField("createdAt"),
		UpdatedAt:     doc.TimeField("updatedAt"),
	}
	for _, m := range doc.MapSliceField("modules") {
		md := &directory.Document{Data: m}
		c.Modules = append(c.Modules, model.Module{
			ID:      md.StringField("id"),
			Title:   md.StringField("title"),
			Type:    model.ModuleType(md.StringField("type")),
			Content: md.StringField("content"),
		})
	}
	return c
}

func encodeCourse(c *model.Course) map[string]any {
	return map[string]any{
		"title":         c.Title,
		"description":   c.Description,
		"category":      c.Category,
		"thumbnail":     c.Thumbnail,
		"modules":       encodeModules(c.Modules),
		"createdBy":     c.CreatedBy,
		"createdByName": c.CreatedByName,
		"status":        string(c.Status),
		"createdAt":     c.CreatedAt,
		"updatedAt":     c.UpdatedAt,
	}
}

func encodeModules(modules []model.Module) []map[string]any {
	out := make([]map[string]any, 0, len(modules))
	for _, m := range modules {
		out = append(out, map[string]any{
			"id":      m.ID,
			"title":   m.Title,
			"type":    string(m.Type),
			"content": m.Content,
		})
	}
	return out
}

// NormalizeVideoURL はYouTubeの視聴URLを埋め込み再生用のURLへ変換する。
//   - https://www.youtube.com/watch?v=ID → https://www.youtube.com/embed/ID
//   - https://youtu.be/ID → https://www.youtube.com/embed/ID
//
// YouTube以外のURLは変更せずそのまま返す。
func NormalizeVideoURL(rawURL string) string {
	raw := strings.TrimSpace(rawURL)
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	host := strings.TrimPrefix(u.Hostname(), "www.")
	switch host {
	case "youtube.com":
		if u.Path == "/watch" {
			if id := u.Query().Get("v"); id != "" {
				return "https://www.youtube.com/embed/" + id
			}
		}
		if strings.HasPrefix(u.Path, "/embed/") {
			return raw
		}
	case "youtu.be":
		if id := strings.Trim(u.Path, "/"); id != "" {
			return "https://www.youtube.com/embed/" + id
		}
	}
	return raw
}
