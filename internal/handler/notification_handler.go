package handler

import (
	"encoding/json"
	"net/http"

	"github.com/keisuke/melodeck/internal/notify"
)

// NotificationStore は完了通知の取り出しインターフェース。
type NotificationStore interface {
	// Drain は未読通知をすべて返し、同時に消去する（ワンショット配信）。
	Drain() []notify.Notification
	// Clear は未読通知を配信せずに破棄する。
	Clear()
}

// NotificationHandler は完了通知のHTTPハンドラー。
type NotificationHandler struct {
	store NotificationStore
}

// NewNotificationHandler はNotificationHandlerを生成する。
func NewNotificationHandler(store NotificationStore) *NotificationHandler {
	return &NotificationHandler{store: store}
}

// notificationsResponse は通知一覧のAPIレスポンス。
type notificationsResponse struct {
	Notifications []notify.Notification `json:"notifications"`
}

// Drain は未読の完了通知を返す。返した通知は消去され、二度は配信されない。
// GET /api/notifications
func (h *NotificationHandler) Drain(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(notificationsResponse{
		Notifications: h.store.Drain(),
	})
}
