// Package library はリソースキャッシュと生成バックエンドを仲介するサービス層を提供する。
// フォアグラウンド/バックグラウンドのフェッチ、楽観的な作成・削除、
// 削除失敗時の再同期を担当する。
package library

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/keisuke/melodeck/internal/cache"
	"github.com/keisuke/melodeck/internal/model"
	"github.com/keisuke/melodeck/internal/upstream"
)

// UpstreamClient はサービスが必要とする生成バックエンドAPIのインターフェース。
type UpstreamClient interface {
	ListItems(ctx context.Context, kind model.ResourceKind, params upstream.ListParams) (*upstream.ListResult, error)
	CreateItem(ctx context.Context, kind model.ResourceKind, req upstream.CreateRequest) (*model.TrackedItem, error)
	DeleteItem(ctx context.Context, kind model.ResourceKind, id string) error
}

// TextSanitizer はサーバーが返す表示用文字列のサニタイズインターフェース。
type TextSanitizer interface {
	SanitizeText(raw string) string
}

// MetricsRecorder はサービスが記録するメトリクスのインターフェース。
type MetricsRecorder interface {
	RecordFetchSuccess(kind string)
	RecordFetchFailure(kind string)
	RecordFetchLatency(duration time.Duration)
	RecordStaleDiscarded(kind string)
	RecordUpstreamStatus(statusCode int)
}

// RefreshOptions はフェッチの実行条件。
type RefreshOptions struct {
	Page    int
	Filters map[string]string

	// ShowLoading はフォアグラウンドフェッチ（ユーザー操作起因、スピナー表示）か
	// バックグラウンドフェッチ（ポーリングティック、サイレント）かを区別する。
	ShowLoading bool
}

// Service はリソースキャッシュへの取り込みと楽観的変更を統括する。
type Service struct {
	cache     *cache.Store
	upstream  UpstreamClient
	sanitizer TextSanitizer
	metrics   MetricsRecorder
	logger    *slog.Logger
	pageLimit int
}

// NewService はServiceの新しいインスタンスを生成する。
// pageLimitが0以下の場合はデフォルト値50を使用する。
func NewService(
	store *cache.Store,
	client UpstreamClient,
	sanitizer TextSanitizer,
	recorder MetricsRecorder,
	logger *slog.Logger,
	pageLimit int,
) *Service {
	if pageLimit <= 0 {
		pageLimit = 50
	}
	return &Service{
		cache:     store,
		upstream:  client,
		sanitizer: sanitizer,
		metrics:   recorder,
		logger:    logger,
		pageLimit: pageLimit,
	}
}

// Refresh はリソース一覧をフェッチしてキャッシュに取り込む。
// 成功時はItems/TotalCount/CurrentPageを全件置換し、
// フェッチ結果にprocessing状態のアイテムが含まれるかを返す。
// 失敗時はキャッシュのErrorに記録し、既存Itemsには触れずにエラーを返す。
// staleレスポンス（発行後に別のフェッチや楽観的変更が発生）は破棄し、
// 現在のキャッシュ内容に基づくprocessing判定を返す。
func (s *Service) Refresh(ctx context.Context, kind model.ResourceKind, opts RefreshOptions) (bool, error) {
	start := time.Now()
	seq := s.cache.BeginFetch(kind, opts.ShowLoading)

	result, err := s.upstream.ListItems(ctx, kind, upstream.ListParams{
		Page:    opts.Page,
		Limit:   s.pageLimit,
		Filters: opts.Filters,
	})
	s.metrics.RecordFetchLatency(time.Since(start))

	if err != nil {
		s.metrics.RecordFetchFailure(string(kind))
		if statusErr, ok := err.(*upstream.StatusError); ok {
			s.metrics.RecordUpstreamStatus(statusErr.StatusCode)
		}
		s.cache.ApplyFetchError(kind, seq, err.Error())
		s.logger.Error("リソース一覧のフェッチに失敗しました",
			slog.String("kind", string(kind)),
			slog.Bool("foreground", opts.ShowLoading),
			slog.String("error", err.Error()),
		)
		return false, err
	}

	s.metrics.RecordFetchSuccess(string(kind))
	s.metrics.RecordUpstreamStatus(200)

	items := s.sanitizeItems(result.Items)

	page := opts.Page
	if page == 0 {
		page = 1
	}

	if !s.cache.ApplyFetch(kind, seq, items, result.TotalCount, page) {
		// フェッチ発行後に新しいフェッチまたは楽観的変更が発生した。
		// このレスポンスは適用せず、現在のキャッシュを真とする。
		s.metrics.RecordStaleDiscarded(string(kind))
		s.logger.Info("staleなフェッチ結果を破棄しました",
			slog.String("kind", string(kind)),
			slog.Uint64("seq", seq),
		)
		return s.cache.HasProcessing(kind), nil
	}

	return model.HasProcessing(items), nil
}

// RefreshBackground はポーリングティック用のサイレントなフェッチを実行する。
// スピナーを表示せず、常に1ページ目を無フィルターで取得する。
func (s *Service) RefreshBackground(ctx context.Context, kind model.ResourceKind) (bool, error) {
	return s.Refresh(ctx, kind, RefreshOptions{ShowLoading: false})
}

// Create は生成ジョブを作成し、返ってきたアイテムを楽観的にキャッシュへ追加する。
// サーバー側では生成処理が続いているが、行はprocessing状態で即座に現れる。
func (s *Service) Create(ctx context.Context, kind model.ResourceKind, req upstream.CreateRequest) (*model.TrackedItem, error) {
	item, err := s.upstream.CreateItem(ctx, kind, req)
	if err != nil {
		s.logger.Error("生成ジョブの作成に失敗しました",
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	sanitized := s.sanitizeItem(*item)
	s.cache.AddItem(kind, sanitized)

	s.logger.Info("生成ジョブを作成しました",
		slog.String("kind", string(kind)),
		slog.String("item_id", sanitized.ID),
	)
	return &sanitized, nil
}

// Delete はアイテムを楽観的にキャッシュから取り除いてから、バックエンドへ削除を依頼する。
// バックエンド側の削除が失敗した場合はバックグラウンド再フェッチで
// サーバーの状態に再同期し、エラーを返す（呼び出し元が通知を判断する）。
func (s *Service) Delete(ctx context.Context, kind model.ResourceKind, id string) error {
	s.cache.RemoveItem(kind, id)

	if err := s.upstream.DeleteItem(ctx, kind, id); err != nil {
		s.logger.Error("アイテムの削除に失敗したため再同期します",
			slog.String("kind", string(kind)),
			slog.String("item_id", id),
			slog.String("error", err.Error()),
		)
		if _, refreshErr := s.Refresh(ctx, kind, RefreshOptions{ShowLoading: false}); refreshErr != nil {
			s.logger.Error("削除失敗後の再同期にも失敗しました",
				slog.String("kind", string(kind)),
				slog.String("error", refreshErr.Error()),
			)
		}
		return fmt.Errorf("アイテムの削除に失敗しました: %w", err)
	}

	s.logger.Info("アイテムを削除しました",
		slog.String("kind", string(kind)),
		slog.String("item_id", id),
	)
	return nil
}

// Snapshot は指定種別のキャッシュスナップショットを返す。
func (s *Service) Snapshot(kind model.ResourceKind) model.ResourceList {
	return s.cache.Snapshot(kind)
}

// FindItem は指定種別のキャッシュからIDでアイテムを検索する。
func (s *Service) FindItem(kind model.ResourceKind, id string) (model.TrackedItem, bool) {
	return s.cache.FindItem(kind, id)
}

// ClearAll は全種別のキャッシュを初期状態に戻す。ログアウト時に呼び出す。
// ポーラーの停止は呼び出し元（ハンドラー）の責務。
func (s *Service) ClearAll() {
	s.cache.ClearAll()
	s.logger.Info("全リソースキャッシュをクリアしました")
}

// sanitizeItems はフェッチ結果の表示用文字列を一括サニタイズする。
func (s *Service) sanitizeItems(items []model.TrackedItem) []model.TrackedItem {
	sanitized := make([]model.TrackedItem, len(items))
	for i, item := range items {
		sanitized[i] = s.sanitizeItem(item)
	}
	return sanitized
}

// sanitizeItem はサーバーが返す表示用文字列をサニタイズする。
// ID・Status・ResultURLは表示用文字列ではないため対象外。
func (s *Service) sanitizeItem(item model.TrackedItem) model.TrackedItem {
	item.Title = s.sanitizer.SanitizeText(item.Title)
	item.ProgressMessage = s.sanitizer.SanitizeText(item.ProgressMessage)
	item.ErrorMessage = s.sanitizer.SanitizeText(item.ErrorMessage)
	return item
}
