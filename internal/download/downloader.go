// Package download は生成完了アイテムの成果物ダウンロードを提供する。
// resultUrlはサーバーが返すデータであるため、SSRF防護付きクライアントで取得する。
package download

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/keisuke/melodeck/internal/model"
)

// ArtifactGuard はダウンロードに使用するSSRF防護のインターフェース。
type ArtifactGuard interface {
	NewSafeClient(timeout time.Duration) *http.Client
	ValidateURL(rawURL string) error
}

// Downloader は完了アイテムの成果物をローカルディレクトリへ保存する。
type Downloader struct {
	guard   ArtifactGuard
	dir     string
	timeout time.Duration
	maxSize int64
	logger  *slog.Logger
}

// NewDownloader はDownloaderの新しいインスタンスを生成する。
func NewDownloader(guard ArtifactGuard, dir string, timeout time.Duration, maxSize int64, logger *slog.Logger) *Downloader {
	return &Downloader{
		guard:   guard,
		dir:     dir,
		timeout: timeout,
		maxSize: maxSize,
		logger:  logger,
	}
}

// Download はアイテムの成果物を取得し、保存先のパスを返す。
// completed以外のアイテム、resultUrl未設定、URL検証失敗はエラー。
// 保存ファイル名は kind-id にURLの拡張子を付けたもの。
func (d *Downloader) Download(ctx context.Context, item model.TrackedItem) (string, error) {
	if item.Status != model.StatusCompleted {
		return "", model.NewItemNotReadyError(item.ID)
	}
	if item.ResultURL == "" {
		return "", model.NewItemNotReadyError(item.ID)
	}

	if err := d.guard.ValidateURL(item.ResultURL); err != nil {
		d.logger.Warn("成果物URLの検証に失敗しました",
			slog.String("item_id", item.ID),
			slog.String("error", err.Error()),
		)
		return "", model.NewDownloadBlockedError()
	}

	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return "", fmt.Errorf("ダウンロードディレクトリの作成に失敗しました: %w", err)
	}

	start := time.Now()
	client := d.guard.NewSafeClient(d.timeout)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, item.ResultURL, nil)
	if err != nil {
		return "", fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		d.logger.Error("成果物のダウンロードに失敗しました",
			slog.String("item_id", item.ID),
			slog.String("error", err.Error()),
		)
		return "", model.NewDownloadFailedError(err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", model.NewDownloadFailedError(fmt.Sprintf("ステータス %d", resp.StatusCode))
	}

	dest := filepath.Join(d.dir, fileName(item))

	f, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("保存ファイルの作成に失敗しました: %w", err)
	}
	defer f.Close()

	written, err := io.Copy(f, io.LimitReader(resp.Body, d.maxSize))
	if err != nil {
		os.Remove(dest)
		return "", model.NewDownloadFailedError(err.Error())
	}

	d.logger.Info("成果物をダウンロードしました",
		slog.String("kind", string(item.Kind)),
		slog.String("item_id", item.ID),
		slog.String("path", dest),
		slog.Int64("bytes", written),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return dest, nil
}

// fileName はアイテムの保存ファイル名を組み立てる。
// IDに含まれ得るパス区切り文字はBaseで落とし、拡張子はURLパスから引き継ぐ。
func fileName(item model.TrackedItem) string {
	name := fmt.Sprintf("%s-%s", item.Kind, filepath.Base(item.ID))

	if parsed, err := url.Parse(item.ResultURL); err == nil {
		if ext := path.Ext(parsed.Path); ext != "" && len(ext) <= 8 && !strings.ContainsAny(ext, "/\\") {
			name += ext
		}
	}
	return name
}
