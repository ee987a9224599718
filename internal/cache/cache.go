// Package cache はリソース種別ごとのインメモリキャッシュを提供する。
// フェッチ成功時の全件置換と、ユーザー操作に対する楽観的ローカル変更を管理する。
// プロセス内の全購読者で共有されるが、永続化は行わない（セッションスコープ）。
package cache

import (
	"sync"

	"github.com/keisuke/melodeck/internal/model"
)

// entry は1リソース種別分のキャッシュ状態。
type entry struct {
	list model.ResourceList

	// issuedSeq はこの種別に対して発行した最新のフェッチ/変更シーケンス番号。
	// レスポンス適用時にこの値と一致しないシーケンスは stale として破棄する。
	// 楽観的変更（add/update/remove）もこの値を進め、変更前に発行された
	// 機内フェッチのレスポンスを無効化する。
	issuedSeq uint64
}

// Store はリソース種別ごとのResourceListを保持するインメモリストア。
// グローバルシングルトンではなく、セッションごとに生成して注入する。
// 全メソッドは排他制御されており、複数goroutineから安全に呼び出せる。
type Store struct {
	mu    sync.Mutex
	lists map[model.ResourceKind]*entry
}

// New は全リソース種別を空のResourceListで初期化したStoreを生成する。
func New() *Store {
	s := &Store{
		lists: make(map[model.ResourceKind]*entry),
	}
	for _, kind := range model.AllKinds() {
		s.lists[kind] = &entry{}
	}
	return s
}

func (s *Store) entryFor(kind model.ResourceKind) *entry {
	e, ok := s.lists[kind]
	if !ok {
		e = &entry{}
		s.lists[kind] = e
	}
	return e
}

// BeginFetch はフェッチ開始を記録し、このフェッチに対応するシーケンス番号を返す。
// showLoadingがtrueの場合（フォアグラウンドフェッチ）はIsLoadingを立てる。
// バックグラウンドのポーリングティックはshowLoading=falseで呼び、
// UIのスピナー点滅を避ける。
func (s *Store) BeginFetch(kind model.ResourceKind, showLoading bool) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entryFor(kind)
	e.issuedSeq++
	if showLoading {
		e.list.IsLoading = true
	}
	return e.issuedSeq
}

// ApplyFetch はフェッチ成功の結果をキャッシュに適用する。
// seqが最新発行シーケンスと一致する場合のみ、Items/TotalCount/CurrentPageを
// 全件置換し、IsLoadingとErrorをクリアしてtrueを返す。
// 一致しない場合はstaleレスポンスとして一切適用せずfalseを返す。
func (s *Store) ApplyFetch(kind model.ResourceKind, seq uint64, items []model.TrackedItem, totalCount, currentPage int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entryFor(kind)
	if seq != e.issuedSeq {
		return false
	}

	e.list.Items = append([]model.TrackedItem(nil), items...)
	e.list.TotalCount = totalCount
	e.list.CurrentPage = currentPage
	e.list.IsLoading = false
	e.list.Error = ""
	return true
}

// ApplyFetchError はフェッチ失敗をキャッシュに記録する。
// 既存のItemsには触れない（空のUIより古いデータの方が良い）。
// staleなシーケンスのエラーは無視してfalseを返す。
func (s *Store) ApplyFetchError(kind model.ResourceKind, seq uint64, errMsg string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entryFor(kind)
	if seq != e.issuedSeq {
		return false
	}

	e.list.IsLoading = false
	e.list.Error = errMsg
	return true
}

// AddItem はアイテムを先頭に追加し、TotalCountをインクリメントする。
// 作成リクエストの応答直後に楽観的に呼び出す（サーバー側はまだprocessing中）。
// 同一IDが既に存在する場合は重複を避けて置換する。
// 機内フェッチを無効化するためシーケンスを進める。
func (s *Store) AddItem(kind model.ResourceKind, item model.TrackedItem) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entryFor(kind)
	e.issuedSeq++

	for i, existing := range e.list.Items {
		if existing.ID == item.ID {
			e.list.Items[i] = item
			return
		}
	}

	e.list.Items = append([]model.TrackedItem{item}, e.list.Items...)
	e.list.TotalCount++
}

// UpdateItem は同一IDのアイテムをその場で置換する。
// 見つからない場合は何もしない（staleなIDによる重複挿入を防ぐ）。
// 変更した場合はtrueを返す。
func (s *Store) UpdateItem(kind model.ResourceKind, item model.TrackedItem) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entryFor(kind)
	for i, existing := range e.list.Items {
		if existing.ID == item.ID {
			e.issuedSeq++
			e.list.Items[i] = item
			return true
		}
	}
	return false
}

// RemoveItem は同一IDのアイテムを取り除き、TotalCountをデクリメントする。
// 削除リクエストの発行直後、サーバー確認前に楽観的に呼び出す。
// シーケンスを進めることで、削除前に発行された機内フェッチのレスポンスを
// 無効化し、削除済みアイテムの復活を防ぐ。
func (s *Store) RemoveItem(kind model.ResourceKind, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entryFor(kind)
	for i, existing := range e.list.Items {
		if existing.ID == id {
			e.issuedSeq++
			e.list.Items = append(e.list.Items[:i:i], e.list.Items[i+1:]...)
			if e.list.TotalCount > 0 {
				e.list.TotalCount--
			}
			return true
		}
	}
	return false
}

// ClearAll は全リソース種別を初期状態にリセットする。ログアウト時に呼び出す。
// シーケンスを進めるため、クリア前に発行された機内フェッチは適用されない。
func (s *Store) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.lists {
		e.issuedSeq++
		e.list = model.ResourceList{}
	}
}

// Snapshot は指定種別のResourceListのコピーを返す。
// 返り値のItemsスライスは呼び出し元が自由に扱える。
func (s *Store) Snapshot(kind model.ResourceKind) model.ResourceList {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entryFor(kind)
	list := e.list
	list.Items = append([]model.TrackedItem(nil), e.list.Items...)
	return list
}

// HasProcessing は指定種別のキャッシュにprocessing状態のアイテムが
// 含まれるかを返す。
func (s *Store) HasProcessing(kind model.ResourceKind) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return model.HasProcessing(s.entryFor(kind).list.Items)
}

// FindItem は指定種別のキャッシュからIDでアイテムを検索する。
// 見つからない場合は2番目の返り値がfalse。
func (s *Store) FindItem(kind model.ResourceKind, id string) (model.TrackedItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, item := range s.entryFor(kind).list.Items {
		if item.ID == id {
			return item, true
		}
	}
	return model.TrackedItem{}, false
}
