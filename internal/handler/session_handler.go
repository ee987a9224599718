package handler

import (
	"encoding/json"
	"net/http"
)

// CacheCleaner はログアウト時のキャッシュ全消去インターフェース。
type CacheCleaner interface {
	ClearAll()
}

// SessionHandler はセッション境界（ログアウト）のHTTPハンドラー。
type SessionHandler struct {
	cleaner       CacheCleaner
	poller        PollerControl
	notifications NotificationStore
}

// NewSessionHandler はSessionHandlerを生成する。
func NewSessionHandler(cleaner CacheCleaner, poller PollerControl, notifications NotificationStore) *SessionHandler {
	return &SessionHandler{
		cleaner:       cleaner,
		poller:        poller,
		notifications: notifications,
	}
}

// Logout はセッションを終了する。
// 全ポーラーを停止し、全種別のキャッシュと未読通知を破棄する。
// 前のユーザーのデータが次のユーザーに漏れないことを保証する。
// POST /api/logout
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.poller.StopAll()
	h.cleaner.ClearAll()
	h.notifications.Clear()

	w.WriteHeader(http.StatusNoContent)
}

// Health はヘルスチェックエンドポイント。
// GET /health
func Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
