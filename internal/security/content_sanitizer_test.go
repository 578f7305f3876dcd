package security

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSanitize(t *testing.T) {
	sanitizer := NewContentSanitizer(0)

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"プレーンテキストはそのまま", "Go engineer resumes", "Go engineer resumes"},
		{"日本語はそのまま", "バックエンド エンジニア", "バックエンド エンジニア"},
		{"空文字列", "", ""},
		{"前後の空白を除去", "  search  ", "search"},
		{"scriptタグを中身ごと除去", `java<script>alert("xss")</script>`, "java"},
		{"タグを除去してテキストを残す", "<b>senior</b> <i>developer</i>", "senior developer"},
		{"イベント属性付き要素を除去", `<img src=x onerror="alert(1)">photo`, "photo"},
		{"制御文字を除去", "abc\x00\x07def", "abcdef"},
		{"改行とタブは残す", "line1\n\tline2", "line1\n\tline2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizer.Sanitize(tt.input); got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// TestSanitize_EscapesSpecialCharacters はHTML特殊文字がエスケープされることを検証する。
func TestSanitize_EscapesSpecialCharacters(t *testing.T) {
	got := NewContentSanitizer(0).Sanitize(`a < b & "c"`)

	if strings.ContainsAny(got, `<"`) {
		t.Errorf("special characters should be escaped, got %q", got)
	}
	if !strings.Contains(got, "&amp;") {
		t.Errorf("ampersand should be escaped, got %q", got)
	}
}

func TestSanitize_TruncatesByRunes(t *testing.T) {
	sanitizer := NewContentSanitizer(5)

	got := sanitizer.Sanitize("履歴書を検索しました")
	if utf8.RuneCountInString(got) != 5 {
		t.Errorf("rune count = %d, want 5 (%q)", utf8.RuneCountInString(got), got)
	}
	if got != "履歴書を検" {
		t.Errorf("Sanitize() = %q, want %q", got, "履歴書を検")
	}
}

func TestSanitize_Deterministic(t *testing.T) {
	sanitizer := NewContentSanitizer(0)
	input := "<p>Python &amp; Go</p>"

	first, second := sanitizer.Sanitize(input), sanitizer.Sanitize(input)
	if first != second {
		t.Errorf("Sanitize should be deterministic: %q vs %q", first, second)
	}
	if strings.Contains(first, "<p>") {
		t.Errorf("tags should be removed, got %q", first)
	}
}
