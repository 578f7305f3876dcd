// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ContentSanitizerService はクライアントから送信される自由入力テキスト
// （アクティビティの説明や検索語など）からHTMLを除去する。
// 集計画面で表示されるため、保存前に全てのタグを取り除く。
package security

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// DefaultMaxRunes は1フィールドあたりの最大文字数。
const DefaultMaxRunes = 1000

// ContentSanitizerService は自由入力テキストのサニタイズ機能のインターフェース。
type ContentSanitizerService interface {
	// Sanitize は全てのHTMLタグを除去し、制御文字を取り除いて前後の空白を詰める。
	// 最大文字数を超える部分は切り捨てる。同一入力に対して常に同一出力を返す。
	Sanitize(raw string) string
}

// contentSanitizer はContentSanitizerServiceの実装。
// bluemondayのポリシーはスレッドセーフなので共有して使う。
type contentSanitizer struct {
	policy   *bluemonday.Policy
	maxRunes int
}

// NewContentSanitizer はタグを一切許可しないStrictPolicyのサニタイザーを生成する。
// maxRunesが0以下の場合はDefaultMaxRunesを使用する。
func NewContentSanitizer(maxRunes int) ContentSanitizerService {
	if maxRunes <= 0 {
		maxRunes = DefaultMaxRunes
	}
	return &contentSanitizer{
		policy:   bluemonday.StrictPolicy(),
		maxRunes: maxRunes,
	}
}

// Sanitize はテキストからタグと制御文字を除去する。
func (s *contentSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}

	cleaned := strings.Map(func(r rune) rune {
		if r == utf8.RuneError || (unicode.IsControl(r) && r != '\n' && r != '\t') {
			return -1
		}
		return r
	}, s.policy.Sanitize(raw))
	cleaned = strings.TrimSpace(cleaned)

	if utf8.RuneCountInString(cleaned) > s.maxRunes {
		cleaned = strings.TrimSpace(string([]rune(cleaned)[:s.maxRunes]))
	}
	return cleaned
}
