// Package notify はジョブ完了のワンショット通知を提供する。
// ポーラーが発行した通知をインメモリに蓄積し、UIがRESTで回収（ドレイン）する。
package notify

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/keisuke/melodeck/internal/model"
)

// Notification はUIに表示する1件の完了通知。
type Notification struct {
	ID        string             `json:"id"`
	Kind      model.ResourceKind `json:"kind"`
	Message   string             `json:"message"`
	CreatedAt time.Time          `json:"created_at"`
}

// NotificationRecorder は通知発行のメトリクス記録インターフェース。
type NotificationRecorder interface {
	RecordNotification(kind string)
}

// Memory は未回収の通知を保持するインメモリ通知シンク。
// 上限を超えた場合は最も古い通知から破棄する。
type Memory struct {
	mu       sync.Mutex
	pending  []Notification
	max      int
	recorder NotificationRecorder
}

// NewMemory はMemoryの新しいインスタンスを生成する。
// maxが0以下の場合はデフォルト値100を使用する。
func NewMemory(max int, recorder NotificationRecorder) *Memory {
	if max <= 0 {
		max = 100
	}
	return &Memory{
		max:      max,
		recorder: recorder,
	}
}

// NotifyJobsCompleted は指定種別の全ジョブ完了通知を追加する。
// ポーラーの自己停止ごとに1回だけ呼ばれる。
func (m *Memory) NotifyJobsCompleted(kind model.ResourceKind) {
	n := Notification{
		ID:        uuid.NewString(),
		Kind:      kind,
		Message:   completionMessage(kind),
		CreatedAt: time.Now(),
	}

	m.mu.Lock()
	m.pending = append(m.pending, n)
	if len(m.pending) > m.max {
		m.pending = append([]Notification(nil), m.pending[len(m.pending)-m.max:]...)
	}
	m.mu.Unlock()

	m.recorder.RecordNotification(string(kind))
}

// Drain は未回収の通知を全件返し、蓄積をクリアする。
// 同じ通知が2回回収されることはない（ワンショット保証）。
func (m *Memory) Drain() []Notification {
	m.mu.Lock()
	defer m.mu.Unlock()

	drained := m.pending
	m.pending = nil
	if drained == nil {
		return []Notification{}
	}
	return drained
}

// Clear は未回収の通知を破棄する。ログアウト時に呼び出す。
func (m *Memory) Clear() {
	m.mu.Lock()
	m.pending = nil
	m.mu.Unlock()
}

// completionMessage は種別ごとの完了メッセージを返す。
func completionMessage(kind model.ResourceKind) string {
	switch kind {
	case model.KindSong:
		return "楽曲の生成が完了しました。"
	case model.KindVideo:
		return "ミュージックビデオの生成が完了しました。"
	case model.KindNarrative:
		return "ナレーションの生成が完了しました。"
	case model.KindCharacter:
		return "キャラクターの生成が完了しました。"
	default:
		return fmt.Sprintf("%s の生成が完了しました。", kind)
	}
}
