// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizerService はクリエイタープロファイルの自由記述フィールド
// （表示名・肩書き・ブランドボイス・ニッチ）をサニタイズし、
// マークアップの混入からバックエンドと他のクライアントを保護する。
// bluemondayのStrictPolicyを使用し、タグを一切通過させない。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizerService はプレーンテキストのサニタイズ機能のインターフェースを定義する。
// プロファイル更新のローカルマージ前に使用される。
type TextSanitizerService interface {
	// SanitizeText は入力からすべてのHTMLタグを除去したプレーンテキストを返す。
	// scriptやiframeなどの危険なタグだけでなく、装飾タグも含めて
	// 一切のマークアップを許可しない。実体参照は復号して返す。
	// 前後の空白は取り除く。空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	SanitizeText(raw string) string
}

// textSanitizer はTextSanitizerServiceの実装。
// bluemondayのStrictPolicyを保持し、スレッドセーフに処理を行う。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerServiceの新しいインスタンスを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// SanitizeText は入力からすべてのHTMLタグを除去したプレーンテキストを返す。
func (s *textSanitizer) SanitizeText(raw string) string {
	if raw == "" {
		return ""
	}
	// StrictPolicyはタグを除去し残りを実体参照にエスケープするため、
	// プレーンテキストとして保持できるよう復号して返す。
	stripped := s.policy.Sanitize(raw)
	return strings.TrimSpace(html.UnescapeString(stripped))
}

var _ TextSanitizerService = (*textSanitizer)(nil)
