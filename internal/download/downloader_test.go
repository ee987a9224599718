package download

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/keisuke/melodeck/internal/model"
)

// mockGuard はArtifactGuardのテスト用実装。
type mockGuard struct {
	validateURLFunc func(rawURL string) error
}

func (m *mockGuard) NewSafeClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

func (m *mockGuard) ValidateURL(rawURL string) error {
	if m.validateURLFunc != nil {
		return m.validateURLFunc(rawURL)
	}
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func completedItem(resultURL string) model.TrackedItem {
	return model.TrackedItem{
		ID:        "item-1",
		Kind:      model.KindSong,
		Title:     "テスト楽曲",
		Status:    model.StatusCompleted,
		ResultURL: resultURL,
	}
}

func TestDownloader_Download_保存に成功する(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("audio-bytes"))
	}))
	defer server.Close()

	dir := t.TempDir()
	d := NewDownloader(&mockGuard{}, dir, 5*time.Second, 1<<20, testLogger())

	dest, err := d.Download(context.Background(), completedItem(server.URL+"/artifacts/item-1.mp3"))
	if err != nil {
		t.Fatalf("エラーが発生しました: %v", err)
	}

	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("保存ファイルの読み込みに失敗しました: %v", err)
	}
	if string(data) != "audio-bytes" {
		t.Errorf("保存内容が一致しません: %q", data)
	}
	if filepath.Base(dest) != "song-item-1.mp3" {
		t.Errorf("ファイル名が一致しません: %s", filepath.Base(dest))
	}
}

func TestDownloader_Download_未完了アイテムは拒否する(t *testing.T) {
	d := NewDownloader(&mockGuard{}, t.TempDir(), 5*time.Second, 1<<20, testLogger())

	item := completedItem("http://example.com/a.mp3")
	item.Status = model.StatusProcessing

	_, err := d.Download(context.Background(), item)

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("APIErrorが返されるべきです: %v", err)
	}
	if apiErr.Code != model.ErrCodeItemNotReady {
		t.Errorf("エラーコードが一致しません: %s", apiErr.Code)
	}
}

func TestDownloader_Download_ResultURL未設定は拒否する(t *testing.T) {
	d := NewDownloader(&mockGuard{}, t.TempDir(), 5*time.Second, 1<<20, testLogger())

	_, err := d.Download(context.Background(), completedItem(""))

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("APIErrorが返されるべきです: %v", err)
	}
	if apiErr.Code != model.ErrCodeItemNotReady {
		t.Errorf("エラーコードが一致しません: %s", apiErr.Code)
	}
}

func TestDownloader_Download_URL検証失敗はブロックする(t *testing.T) {
	guard := &mockGuard{
		validateURLFunc: func(rawURL string) error {
			return errors.New("ブロック対象のネットワークです")
		},
	}
	d := NewDownloader(guard, t.TempDir(), 5*time.Second, 1<<20, testLogger())

	_, err := d.Download(context.Background(), completedItem("http://169.254.169.254/latest"))

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("APIErrorが返されるべきです: %v", err)
	}
	if apiErr.Code != model.ErrCodeDownloadBlocked {
		t.Errorf("エラーコードが一致しません: %s", apiErr.Code)
	}
}

func TestDownloader_Download_非200レスポンスは失敗扱い(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	d := NewDownloader(&mockGuard{}, t.TempDir(), 5*time.Second, 1<<20, testLogger())

	_, err := d.Download(context.Background(), completedItem(server.URL+"/gone.mp3"))

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("APIErrorが返されるべきです: %v", err)
	}
	if apiErr.Code != model.ErrCodeDownloadFailed {
		t.Errorf("エラーコードが一致しません: %s", apiErr.Code)
	}
}

func TestDownloader_Download_サイズ上限で切り詰める(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 1024))
	}))
	defer server.Close()

	d := NewDownloader(&mockGuard{}, t.TempDir(), 5*time.Second, 100, testLogger())

	dest, err := d.Download(context.Background(), completedItem(server.URL+"/big.bin"))
	if err != nil {
		t.Fatalf("エラーが発生しました: %v", err)
	}

	info, err := os.Stat(dest)
	if err != nil {
		t.Fatalf("保存ファイルの確認に失敗しました: %v", err)
	}
	if info.Size() != 100 {
		t.Errorf("サイズ上限が適用されていません: %d", info.Size())
	}
}

func TestFileName_拡張子をURLから引き継ぐ(t *testing.T) {
	tests := []struct {
		name      string
		resultURL string
		want      string
	}{
		{"mp3拡張子", "https://cdn.example.com/a/b/track.mp3", "song-item-1.mp3"},
		{"拡張子なし", "https://cdn.example.com/a/b/track", "song-item-1"},
		{"クエリ付き", "https://cdn.example.com/v.mp4?token=abc", "song-item-1.mp4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := completedItem(tt.resultURL)
			if got := fileName(item); got != tt.want {
				t.Errorf("fileName() = %s, want %s", got, tt.want)
			}
		})
	}
}
