// Package model はドメインモデルを定義する。
package model

import "time"

// ItemStatus は生成ジョブの状態を表す。
// バックエンドのみが書き込む。クライアント側では読み取り専用。
type ItemStatus string

const (
	// StatusProcessing は生成処理中の状態。
	StatusProcessing ItemStatus = "processing"
	// StatusCompleted は生成完了の状態。終端状態。
	StatusCompleted ItemStatus = "completed"
	// StatusFailed は生成失敗の状態。終端状態。
	StatusFailed ItemStatus = "failed"
)

// IsTerminal は状態が終端（completed/failed）かを返す。
// 終端状態からの遷移は発生しない。
func (s ItemStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// TrackedItem はバックエンドで生成される1つのアイテム
// （楽曲・ビデオ・ナレーション・キャラクター）を表す。
type TrackedItem struct {
	ID              string
	Kind            ResourceKind
	Title           string
	Status          ItemStatus
	Progress        int    // 0-100。processingの間のみ意味を持つ
	ProgressMessage string // サーバーが返すフェーズ表示用文字列（サニタイズ済み）
	ResultURL       string // completedになった後のみ設定される
	ErrorMessage    string
	CreatedAt       time.Time
}

// ResourceList は1リソース種別のキャッシュスナップショット。
// Itemsはサーバーが返したページ順を保持し、フェッチ成功時に全件置換される。
type ResourceList struct {
	Items       []TrackedItem
	IsLoading   bool
	Error       string
	TotalCount  int // ページネーション用のサーバー報告件数。len(Items)とは独立
	CurrentPage int
}

// HasProcessing はアイテム列にprocessing状態のものが含まれるかを返す。
// ポーラーの継続/自己停止の判定に使用する。
func HasProcessing(items []TrackedItem) bool {
	for _, item := range items {
		if item.Status == StatusProcessing {
			return true
		}
	}
	return false
}
