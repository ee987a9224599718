package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/keisuke/melodeck/internal/notify"
)

// mockNotifications はNotificationStoreのテスト用実装。
type mockNotifications struct {
	drainFunc  func() []notify.Notification
	clearCount int
}

func (m *mockNotifications) Drain() []notify.Notification {
	if m.drainFunc != nil {
		return m.drainFunc()
	}
	return []notify.Notification{}
}

func (m *mockNotifications) Clear() {
	m.clearCount++
}

func TestSessionHandler_Logout_全状態を破棄する(t *testing.T) {
	clearAllCalled := false
	lib := &mockLibrary{
		clearAllFunc: func() { clearAllCalled = true },
	}
	poller := &mockPoller{}
	notifications := &mockNotifications{}

	h := NewSessionHandler(lib, poller, notifications)

	req := httptest.NewRequest(http.MethodPost, "/api/logout", nil)
	w := httptest.NewRecorder()
	h.Logout(w, req)

	if w.Result().StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", w.Result().StatusCode, http.StatusNoContent)
	}
	if !clearAllCalled {
		t.Error("キャッシュがクリアされるべきです")
	}
	if poller.stopAllCount != 1 {
		t.Errorf("全ポーラーが停止されるべきです: stopAllCount = %d", poller.stopAllCount)
	}
	if notifications.clearCount != 1 {
		t.Errorf("未読通知が破棄されるべきです: clearCount = %d", notifications.clearCount)
	}
}

func TestHealth_okを返す(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	Health(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Fatalf("status = %d", w.Result().StatusCode)
	}

	var body map[string]string
	if err := json.NewDecoder(w.Result().Body).Decode(&body); err != nil {
		t.Fatalf("レスポンスのパースに失敗しました: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %s, want ok", body["status"])
	}
}
