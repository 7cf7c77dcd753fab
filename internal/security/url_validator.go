package security

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidateContentURL は教材・サムネイルとして保存するURLを検証する。
// http/httpsスキームの絶対URLのみ許可し、javascript:やdata:などの
// スキームによるインジェクションを拒否する。
func ValidateContentURL(rawURL string) error {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return fmt.Errorf("URLの形式が不正です: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URLのスキームが不正です: %q (http または https)", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URLにホストがありません: %q", rawURL)
	}
	return nil
}
