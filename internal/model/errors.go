// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, upstream, download, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidKind         = "INVALID_KIND"
	ErrCodeInvalidRequest      = "INVALID_REQUEST"
	ErrCodeItemNotFound        = "ITEM_NOT_FOUND"
	ErrCodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	ErrCodeUpstreamRejected    = "UPSTREAM_REJECTED"
	ErrCodeItemNotReady        = "ITEM_NOT_READY"
	ErrCodeDownloadBlocked     = "DOWNLOAD_BLOCKED"
	ErrCodeDownloadFailed      = "DOWNLOAD_FAILED"
)

// NewInvalidKindError は未定義のリソース種別エラーを生成する。
func NewInvalidKindError(kind string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidKind,
		Message:  fmt.Sprintf("無効なリソース種別です: %s", kind),
		Category: "validation",
		Action:   "リソース種別には song、video、narrative、character のいずれかを指定してください。",
	}
}

// NewInvalidRequestError はリクエスト形式エラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("リクエストが不正です: %s", reason),
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}

// NewItemNotFoundError はアイテム未検出エラーを生成する。
func NewItemNotFoundError(itemID string) *APIError {
	return &APIError{
		Code:     ErrCodeItemNotFound,
		Message:  fmt.Sprintf("指定されたアイテムが見つかりません: %s", itemID),
		Category: "validation",
		Action:   "アイテムIDを確認してください。",
	}
}

// NewUpstreamUnavailableError は生成バックエンドへの通信失敗エラーを生成する。
func NewUpstreamUnavailableError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeUpstreamUnavailable,
		Message:  fmt.Sprintf("生成サーバーとの通信に失敗しました: %s", reason),
		Category: "upstream",
		Action:   "ネットワーク接続を確認し、しばらく待ってから再度お試しください。",
	}
}

// NewUpstreamRejectedError は生成バックエンドがリクエストを拒否した場合のエラーを生成する。
func NewUpstreamRejectedError(statusCode int) *APIError {
	return &APIError{
		Code:     ErrCodeUpstreamRejected,
		Message:  fmt.Sprintf("生成サーバーがリクエストを拒否しました（ステータス %d）", statusCode),
		Category: "upstream",
		Action:   "リクエスト内容を確認してください。問題が続く場合はサポートに連絡してください。",
	}
}

// NewItemNotReadyError は生成未完了アイテムへのダウンロード要求エラーを生成する。
func NewItemNotReadyError(itemID string) *APIError {
	return &APIError{
		Code:     ErrCodeItemNotReady,
		Message:  fmt.Sprintf("アイテムの生成がまだ完了していません: %s", itemID),
		Category: "download",
		Action:   "生成完了の通知を待ってから再度お試しください。",
	}
}

// NewDownloadBlockedError はセキュリティポリシーによるダウンロードブロックエラーを生成する。
func NewDownloadBlockedError() *APIError {
	return &APIError{
		Code:     ErrCodeDownloadBlocked,
		Message:  "セキュリティポリシーにより、このURLからのダウンロードがブロックされました。",
		Category: "download",
		Action:   "ローカルネットワークやプライベートIPへのアクセスは許可されていません。",
	}
}

// NewDownloadFailedError はダウンロード失敗エラーを生成する。
func NewDownloadFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeDownloadFailed,
		Message:  fmt.Sprintf("生成結果のダウンロードに失敗しました: %s", reason),
		Category: "download",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
