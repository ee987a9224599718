// Package model はドメインモデルを定義する。
package model

// ResourceKind は追跡対象リソースの種別を表す。
type ResourceKind string

const (
	// KindSong は楽曲生成ジョブのリソース種別。
	KindSong ResourceKind = "song"
	// KindVideo はミュージックビデオ生成ジョブのリソース種別。
	KindVideo ResourceKind = "video"
	// KindNarrative はナレーション生成ジョブのリソース種別。
	KindNarrative ResourceKind = "narrative"
	// KindCharacter はキャラクターのリソース種別。
	KindCharacter ResourceKind = "character"
)

// AllKinds は全リソース種別を返す。
// キャッシュの初期化と一括クリアで使用する。
func AllKinds() []ResourceKind {
	return []ResourceKind{KindSong, KindVideo, KindNarrative, KindCharacter}
}

// Valid はリソース種別が定義済みかを検証する。
func (k ResourceKind) Valid() bool {
	switch k {
	case KindSong, KindVideo, KindNarrative, KindCharacter:
		return true
	default:
		return false
	}
}
