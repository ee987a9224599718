package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/keisuke/melodeck/internal/model"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func TestClassifyHTTPStatus(t *testing.T) {
	cases := []struct {
		status int
		want   CallResult
	}{
		{200, CallResultOK},
		{201, CallResultOK},
		{204, CallResultOK},
		{400, CallResultRejected},
		{401, CallResultRejected},
		{404, CallResultRejected},
		{429, CallResultRetryable},
		{500, CallResultRetryable},
		{503, CallResultRetryable},
	}

	for _, c := range cases {
		if got := ClassifyHTTPStatus(c.status); got != c.want {
			t.Errorf("ClassifyHTTPStatus(%d) = %v, want %v", c.status, got, c.want)
		}
	}
}

func TestClient_ListItems(t *testing.T) {
	var buf bytes.Buffer

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/users/user-1/songs" {
			t.Errorf("path = %s, want /users/user-1/songs", r.URL.Path)
		}
		if got := r.URL.Query().Get("page"); got != "2" {
			t.Errorf("page = %s, want 2", got)
		}
		if got := r.URL.Query().Get("genre"); got != "ambient" {
			t.Errorf("genre = %s, want ambient", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer token-abc" {
			t.Errorf("Authorization = %s", got)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"items": []map[string]any{
				{"id": "a", "title": "morning haze", "status": "processing", "progress": 40, "progress_message": "ボーカル合成中"},
				{"id": "b", "title": "night drive", "status": "completed", "result_url": "https://cdn.example.com/b.mp3"},
			},
			"pagination": map[string]any{"total_count": 17},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "user-1", "token-abc", 5*time.Second, newTestLogger(&buf))

	result, err := client.ListItems(context.Background(), model.KindSong, ListParams{
		Page:    2,
		Limit:   20,
		Filters: map[string]string{"genre": "ambient"},
	})
	if err != nil {
		t.Fatalf("ListItems がエラーを返した: %v", err)
	}

	if result.TotalCount != 17 {
		t.Errorf("TotalCount = %d, want 17", result.TotalCount)
	}
	if len(result.Items) != 2 {
		t.Fatalf("Items = %d件, want 2件", len(result.Items))
	}
	if result.Items[0].Status != model.StatusProcessing {
		t.Errorf("Items[0].Status = %s, want processing", result.Items[0].Status)
	}
	if result.Items[0].Kind != model.KindSong {
		t.Errorf("Items[0].Kind = %s, want song", result.Items[0].Kind)
	}
	if result.Items[1].ResultURL != "https://cdn.example.com/b.mp3" {
		t.Errorf("Items[1].ResultURL = %s", result.Items[1].ResultURL)
	}
}

func TestClient_ListItems_ErrorStatus(t *testing.T) {
	var buf bytes.Buffer

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL, "user-1", "", 5*time.Second, newTestLogger(&buf))

	_, err := client.ListItems(context.Background(), model.KindVideo, ListParams{})
	if err == nil {
		t.Fatal("5xxに対してエラーを返さなければならない")
	}

	statusErr, ok := err.(*StatusError)
	if !ok {
		t.Fatalf("*StatusError が返るべき: %T", err)
	}
	if statusErr.Result() != CallResultRetryable {
		t.Errorf("500は再試行可能と分類されるべき: %v", statusErr.Result())
	}
}

func TestClient_CreateItem(t *testing.T) {
	var buf bytes.Buffer

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/songs" {
			t.Errorf("%s %s, want POST /songs", r.Method, r.URL.Path)
		}
		if r.Header.Get("Idempotency-Key") == "" {
			t.Error("Idempotency-Keyヘッダーが設定されていない")
		}

		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("リクエストボディのデコードに失敗: %v", err)
		}
		if body["user_id"] != "user-1" {
			t.Errorf("user_id = %v", body["user_id"])
		}

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{
			"id": "new-1", "title": "spring rain", "status": "processing", "progress": 0,
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "user-1", "token", 5*time.Second, newTestLogger(&buf))

	item, err := client.CreateItem(context.Background(), model.KindSong, CreateRequest{
		Title:  "spring rain",
		Params: map[string]any{"genre": "lofi"},
	})
	if err != nil {
		t.Fatalf("CreateItem がエラーを返した: %v", err)
	}

	if item.ID != "new-1" {
		t.Errorf("ID = %s, want new-1", item.ID)
	}
	if item.Status != model.StatusProcessing {
		t.Errorf("Status = %s, want processing", item.Status)
	}
}

func TestClient_DeleteItem(t *testing.T) {
	var buf bytes.Buffer

	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.Method + " " + r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewClient(server.URL, "user-1", "token", 5*time.Second, newTestLogger(&buf))

	if err := client.DeleteItem(context.Background(), model.KindVideo, "vid-9"); err != nil {
		t.Fatalf("DeleteItem がエラーを返した: %v", err)
	}
	if gotPath != "DELETE /videos/vid-9" {
		t.Errorf("リクエスト = %s, want DELETE /videos/vid-9", gotPath)
	}
}

func TestClient_DeleteItem_NotFoundIsSuccess(t *testing.T) {
	var buf bytes.Buffer

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(server.URL, "user-1", "", 5*time.Second, newTestLogger(&buf))

	// 404は既に削除済みとして冪等に成功扱い
	if err := client.DeleteItem(context.Background(), model.KindSong, "gone"); err != nil {
		t.Errorf("404は成功として扱われるべき: %v", err)
	}
}

func TestClient_DeleteItem_ServerError(t *testing.T) {
	var buf bytes.Buffer

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	client := NewClient(server.URL, "user-1", "", 5*time.Second, newTestLogger(&buf))

	err := client.DeleteItem(context.Background(), model.KindSong, "x")
	if err == nil {
		t.Fatal("403に対してエラーを返さなければならない")
	}
	if statusErr, ok := err.(*StatusError); !ok || statusErr.StatusCode != 403 {
		t.Errorf("StatusError{403} が返るべき: %v", err)
	}
}
