// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer はプロフィールの自由入力（名前、専門分野）からマークアップを除去し、
// ディレクトリにHTMLが保存されないようにする。
// bluemondayのStrictPolicyで全タグを除去した後、エスケープされた文字を元に戻す。
package security

import (
	"html"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer はプレーンテキストのみを通過させるサニタイザ。
// bluemondayのポリシーはスレッドセーフなため、1つのインスタンスを共有できる。
type TextSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerを生成する。
// script、styleなどの要素は内容ごと除去される。
func NewTextSanitizer() *TextSanitizer {
	return &TextSanitizer{policy: bluemonday.StrictPolicy()}
}

// SanitizeText はsからタグを除去したテキストを返す。
// "&"や"<"などの文字はエスケープせずにそのまま返す。
// 同一入力に対して常に同一出力を返す。
func (s *TextSanitizer) SanitizeText(raw string) string {
	if raw == "" {
		return ""
	}
	return html.UnescapeString(s.policy.Sanitize(raw))
}
