package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// maxCleanPasses は多重にエンコードされた入力を展開する上限。
const maxCleanPasses = 8

// TextSanitizer はユーザー入力やIdPプロフィールからHTMLを除去し、プレーンテキストに正規化する。
// bluemondayのStrictPolicyは全てのタグを取り除き、残った文字をエスケープする。
// 保存値はプレーンテキストとして扱うため、エスケープは元に戻す。
type TextSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerを生成する。
// bluemonday.Policyは構築後の並行利用が安全。
func NewTextSanitizer() *TextSanitizer {
	return &TextSanitizer{policy: bluemonday.StrictPolicy()}
}

// Clean はタグを除去し前後の空白を取り除いた文字列を返す。
// 実体参照で書かれたタグも展開後に除去されるまで繰り返すため、
// 結果は再度Cleanしても変わらない。上限回数で収束しない入力は空文字になる。
func (s *TextSanitizer) Clean(raw string) string {
	text := raw
	for i := 0; i < maxCleanPasses; i++ {
		next := s.pass(text)
		if next == text {
			return text
		}
		text = next
	}
	return ""
}

func (s *TextSanitizer) pass(text string) string {
	if text == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(text)))
}
