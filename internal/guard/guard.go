// Package guard はセッション状態に基づくルートガードの判定関数を提供する。
// 各ガードはSnapshotの純関数であり、判定結果は3値（Wait / Allow / Redirect）。
// 状態が確定するまでは保護対象を一切露出しない（fail closed）。
package guard

import (
	"github.com/hitoshi/manabiya/internal/model"
	"github.com/hitoshi/manabiya/internal/session"
)

// Kind はガード判定の種別。
type Kind int

const (
	// Wait はセッション状態が未確定（Loading中）であることを示す。
	// 呼び出し側は保護対象を露出せず、確定を待つ。
	Wait Kind = iota
	// Allow はアクセス許可を示す。
	Allow
	// Redirect はアクセス拒否とリダイレクト先を示す。
	Redirect
)

// Decision はガードの判定結果。KindがRedirectの場合のみTargetが有効。
// Forbiddenは認証済みだが権限不足の拒否を示す（未認証の拒否と区別する）。
type Decision struct {
	Kind      Kind
	Target    string
	Forbidden bool
}

func wait() Decision              { return Decision{Kind: Wait} }
func allow() Decision             { return Decision{Kind: Allow} }
func redirect(to string) Decision { return Decision{Kind: Redirect, Target: to} }
func deny(to string) Decision     { return Decision{Kind: Redirect, Target: to, Forbidden: true} }

// LoginPath は未認証時のリダイレクト先。
const LoginPath = "/login"

// DefaultMismatchRedirect はロール不一致時のデフォルトのリダイレクト先。
// ログイン画面へ戻す。ROLE_MISMATCH_REDIRECTで変更できる。
const DefaultMismatchRedirect = LoginPath

// Session は認証済みセッションを要求するガード。
//   - Loading中: Wait
//   - Identityなし: Redirect(/login)
//   - Identityあり: Allow（プロフィールの有無は問わない）
func Session(snap session.Snapshot) Decision {
	if snap.Loading {
		return wait()
	}
	if snap.Identity == nil {
		return redirect(LoginPath)
	}
	return allow()
}

// RoleOptions はRoleガードの挙動を調整する。
type RoleOptions struct {
	// MismatchRedirect はロール不一致時のリダイレクト先。空ならDefaultMismatchRedirect。
	MismatchRedirect string
}

// Role は認証済みかつ特定ロールのセッションを要求するガード。
//   - Loading中: Wait
//   - Identityなし: Redirect(/login)
//   - プロフィールなし（同期失敗・未作成）: ロール判定不能のためRedirect(不一致先)
//   - ロール不一致: Redirect(不一致先)
//   - ロール一致: Allow
func Role(required model.Role, opts RoleOptions) func(session.Snapshot) Decision {
	mismatch := opts.MismatchRedirect
	if mismatch == "" {
		mismatch = DefaultMismatchRedirect
	}
	return func(snap session.Snapshot) Decision {
		if snap.Loading {
			return wait()
		}
		if snap.Identity == nil {
			return redirect(LoginPath)
		}
		if snap.Profile == nil || snap.Profile.Role != required {
			return deny(mismatch)
		}
		return allow()
	}
}

// AnyRole は複数のロールのいずれかを許可するガード。
func AnyRole(required []model.Role, opts RoleOptions) func(session.Snapshot) Decision {
	mismatch := opts.MismatchRedirect
	if mismatch == "" {
		mismatch = DefaultMismatchRedirect
	}
	return func(snap session.Snapshot) Decision {
		if snap.Loading {
			return wait()
		}
		if snap.Identity == nil {
			return redirect(LoginPath)
		}
		if snap.Profile == nil {
			return deny(mismatch)
		}
		for _, role := range required {
			if snap.Profile.Role == role {
				return allow()
			}
		}
		return deny(mismatch)
	}
}
