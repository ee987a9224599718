// Package security はアプリケーションのセキュリティ機能を提供する。
//
// DisplaySanitizerService はバックエンドが返す表示用文字列
// （タイトル、進捗メッセージ、エラーメッセージ）をサニタイズし、
// そのままUIに流した場合のXSSリスクを排除する。
// bluemondayのStrictPolicyにより全てのHTMLタグと属性を除去し、
// プレーンテキストのみを通過させる。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// DisplaySanitizerService は表示用文字列のサニタイズ機能のインターフェースを定義する。
// キャッシュへの保存前（フェッチ結果・作成結果の取り込み時）に使用される。
type DisplaySanitizerService interface {
	// SanitizeText は文字列から全てのHTMLマークアップを除去し、
	// プレーンテキストとして安全な文字列を返す。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	SanitizeText(raw string) string
}

// displaySanitizer はDisplaySanitizerServiceの実装。
// bluemondayのStrictPolicyを保持し、スレッドセーフにサニタイズ処理を行う。
type displaySanitizer struct {
	policy *bluemonday.Policy
}

// NewDisplaySanitizer はDisplaySanitizerServiceの新しいインスタンスを生成する。
// 表示用文字列にマークアップは不要なため、許可タグを一切持たない
// StrictPolicyを使用する。
func NewDisplaySanitizer() *displaySanitizer {
	return &displaySanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// SanitizeText は文字列から全てのHTMLマークアップを除去する。
// bluemondayはタグ除去後のテキストをエスケープして返すため、
// プレーンテキストとして扱えるようアンエスケープしてから返す。
func (s *displaySanitizer) SanitizeText(raw string) string {
	if raw == "" {
		return ""
	}
	cleaned := s.policy.Sanitize(raw)
	return strings.TrimSpace(html.UnescapeString(cleaned))
}
