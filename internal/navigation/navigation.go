// Package navigation はロールごとのメニュー構成を提供する。
// メニューはロールのみで決まる静的な対応表であり、ここが唯一の定義箇所。
package navigation

import "github.com/hitoshi/manabiya/internal/model"

// MenuItem はサイドバーの1項目。
type MenuItem struct {
	Label string `json:"label"`
	Path  string `json:"path"`
	Icon  string `json:"icon"`
}

var studentMenu = []MenuItem{
	{Label: "ダッシュボード", Path: "/dashboard", Icon: "home"},
	{Label: "コースを探す", Path: "/courses", Icon: "search"},
	{Label: "受講中のコース", Path: "/my-courses", Icon: "book"},
	{Label: "プロフィール", Path: "/profile", Icon: "user"},
}

var instructorMenu = []MenuItem{
	{Label: "ダッシュボード", Path: "/dashboard", Icon: "home"},
	{Label: "コース管理", Path: "/instructor/courses", Icon: "book"},
	{Label: "コース作成", Path: "/instructor/courses/new", Icon: "plus"},
	{Label: "提出物の採点", Path: "/instructor/submissions", Icon: "clipboard"},
	{Label: "プロフィール", Path: "/profile", Icon: "user"},
}

var adminMenu = []MenuItem{
	{Label: "ダッシュボード", Path: "/dashboard", Icon: "home"},
	{Label: "ユーザー管理", Path: "/admin/users", Icon: "users"},
	{Label: "コース管理", Path: "/admin/courses", Icon: "book"},
	{Label: "プロフィール", Path: "/profile", Icon: "user"},
}

// 承認待ちの講師は学生と同じメニューを見る。承認されるまで講師機能は出さない。
var pendingMenu = []MenuItem{
	{Label: "ダッシュボード", Path: "/dashboard", Icon: "home"},
	{Label: "コースを探す", Path: "/courses", Icon: "search"},
	{Label: "受講中のコース", Path: "/my-courses", Icon: "book"},
	{Label: "プロフィール", Path: "/profile", Icon: "user"},
}

// MenuFor はロールに対応するメニューを返す。未知のロールには学生メニューを返す。
func MenuFor(role model.Role) []MenuItem {
	switch role {
	case model.RoleInstructor:
		return instructorMenu
	case model.RoleAdmin:
		return adminMenu
	case model.RoleInstructorPending:
		return pendingMenu
	default:
		return studentMenu
	}
}
