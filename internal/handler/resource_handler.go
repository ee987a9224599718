// Package handler はブラウザUI向けのHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/keisuke/melodeck/internal/library"
	"github.com/keisuke/melodeck/internal/middleware"
	"github.com/keisuke/melodeck/internal/model"
	"github.com/keisuke/melodeck/internal/upstream"
)

// LibraryService はリソースハンドラーが必要とするサービスインターフェース。
type LibraryService interface {
	// Refresh はリソース一覧をフェッチしてキャッシュに取り込み、
	// processing状態のアイテムが残っているかを返す。
	Refresh(ctx context.Context, kind model.ResourceKind, opts library.RefreshOptions) (bool, error)
	// Create は生成ジョブを作成し、楽観的にキャッシュへ追加する。
	Create(ctx context.Context, kind model.ResourceKind, req upstream.CreateRequest) (*model.TrackedItem, error)
	// Delete はアイテムを楽観的に取り除いてからバックエンドへ削除を依頼する。
	Delete(ctx context.Context, kind model.ResourceKind, id string) error
	// Snapshot はキャッシュの現在内容を返す。
	Snapshot(kind model.ResourceKind) model.ResourceList
	// FindItem はキャッシュからIDでアイテムを検索する。
	FindItem(kind model.ResourceKind, id string) (model.TrackedItem, bool)
}

// PollerControl はハンドラーが必要とするポーラー操作のインターフェース。
type PollerControl interface {
	Start(ctx context.Context, kind model.ResourceKind, interval time.Duration)
	StopAll()
}

// ResourceHandler はリソース一覧・生成・削除のHTTPハンドラー。
// 一覧取得と生成ジョブ作成の後、processing状態のアイテムがあればポーリングを開始する。
type ResourceHandler struct {
	service   LibraryService
	poller    PollerControl
	pollerCtx context.Context
	intervals map[model.ResourceKind]time.Duration
}

// NewResourceHandler はResourceHandlerを生成する。
// pollerCtxはサーバーのライフタイムに紐づくコンテキストを渡す
// （リクエストコンテキストはレスポンス送信後にキャンセルされるため使えない）。
func NewResourceHandler(
	service LibraryService,
	poller PollerControl,
	pollerCtx context.Context,
	intervals map[model.ResourceKind]time.Duration,
) *ResourceHandler {
	return &ResourceHandler{
		service:   service,
		poller:    poller,
		pollerCtx: pollerCtx,
		intervals: intervals,
	}
}

// createItemRequest は生成ジョブ作成リクエストのボディ。
type createItemRequest struct {
	Title  string         `json:"title"`
	Params map[string]any `json:"params"`
}

// itemResponse はアイテム1件のAPIレスポンス。
type itemResponse struct {
	ID              string `json:"id"`
	Kind            string `json:"kind"`
	Title           string `json:"title"`
	Status          string `json:"status"`
	Progress        int    `json:"progress"`
	ProgressMessage string `json:"progress_message,omitempty"`
	ResultURL       string `json:"result_url,omitempty"`
	ErrorMessage    string `json:"error_message,omitempty"`
	CreatedAt       string `json:"created_at"`
}

// listResponse はリソース一覧のAPIレスポンス。
type listResponse struct {
	Items       []itemResponse `json:"items"`
	TotalCount  int            `json:"total_count"`
	CurrentPage int            `json:"current_page"`
	IsLoading   bool           `json:"is_loading"`
	Error       string         `json:"error,omitempty"`
}

// List はリソース一覧をバックエンドからフェッチして返す。
// フェッチ結果にprocessing状態のアイテムが含まれる場合、その種別のポーリングを開始する。
// GET /api/{kind}
func (h *ResourceHandler) List(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindFromRequest(w, r)
	if !ok {
		return
	}

	opts := library.RefreshOptions{
		Page:        pageFromQuery(r),
		Filters:     filtersFromQuery(r),
		ShowLoading: true,
	}

	hasProcessing, err := h.service.Refresh(r.Context(), kind, opts)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if hasProcessing {
		h.poller.Start(h.pollerCtx, kind, h.intervals[kind])
	}

	writeListResponse(w, h.service.Snapshot(kind))
}

// Cached はキャッシュの現在内容をフェッチせずに返す。
// タブ切り替え時の即時表示用。
// GET /api/{kind}/cached
func (h *ResourceHandler) Cached(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindFromRequest(w, r)
	if !ok {
		return
	}

	writeListResponse(w, h.service.Snapshot(kind))
}

// Create は生成ジョブを作成する。
// 作成されたアイテムはprocessing状態で即座にキャッシュへ現れ、ポーリングが開始される。
// POST /api/{kind}
func (h *ResourceHandler) Create(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindFromRequest(w, r)
	if !ok {
		return
	}

	var req createItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("リクエストボディの解析に失敗しました"))
		return
	}

	if req.Title == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("titleが空です"))
		return
	}

	item, err := h.service.Create(r.Context(), kind, upstream.CreateRequest{
		Title:  req.Title,
		Params: req.Params,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.poller.Start(h.pollerCtx, kind, h.intervals[kind])

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toItemResponse(*item))
}

// Delete はアイテムを削除する。
// キャッシュからは即座に消え、バックエンド側の削除が失敗した場合は再同期される。
// DELETE /api/{kind}/{id}
func (h *ResourceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindFromRequest(w, r)
	if !ok {
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("アイテムIDが空です"))
		return
	}

	if err := h.service.Delete(r.Context(), kind, id); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// --- ヘルパー関数 ---

// kindFromRequest はURLパラメータからリソース種別を取り出して検証する。
// 無効な種別の場合はエラーレスポンスを書き込み、falseを返す。
func kindFromRequest(w http.ResponseWriter, r *http.Request) (model.ResourceKind, bool) {
	raw := chi.URLParam(r, "kind")
	kind := model.ResourceKind(raw)
	if !kind.Valid() {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidKindError(raw))
		return "", false
	}
	return kind, true
}

// pageFromQuery はクエリからページ番号を取り出す。不正値・未指定は1ページ目。
func pageFromQuery(r *http.Request) int {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		return 1
	}
	return page
}

// filtersFromQuery はpage以外のクエリパラメータをフィルター条件として取り出す。
// バックエンドAPIへそのまま引き渡す。
func filtersFromQuery(r *http.Request) map[string]string {
	query := r.URL.Query()
	filters := make(map[string]string)
	for key, values := range query {
		if key == "page" || len(values) == 0 {
			continue
		}
		filters[key] = values[0]
	}
	if len(filters) == 0 {
		return nil
	}
	return filters
}

// toItemResponse はmodel.TrackedItemからAPIレスポンスに変換する。
func toItemResponse(item model.TrackedItem) itemResponse {
	return itemResponse{
		ID:              item.ID,
		Kind:            string(item.Kind),
		Title:           item.Title,
		Status:          string(item.Status),
		Progress:        item.Progress,
		ProgressMessage: item.ProgressMessage,
		ResultURL:       item.ResultURL,
		ErrorMessage:    item.ErrorMessage,
		CreatedAt:       item.CreatedAt.Format(time.RFC3339),
	}
}

// writeListResponse はキャッシュスナップショットを一覧レスポンスとして書き込む。
func writeListResponse(w http.ResponseWriter, list model.ResourceList) {
	items := make([]itemResponse, len(list.Items))
	for i, item := range list.Items {
		items[i] = toItemResponse(item)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(listResponse{
		Items:       items,
		TotalCount:  list.TotalCount,
		CurrentPage: list.CurrentPage,
		IsLoading:   list.IsLoading,
		Error:       list.Error,
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteErrorResponse(w, middleware.StatusForError(apiErr), apiErr)
		return
	}

	// バックエンドのHTTPステータスエラーは統一フォーマットに変換する
	var statusErr *upstream.StatusError
	if errors.As(err, &statusErr) {
		if statusErr.Result() == upstream.CallResultRetryable {
			middleware.WriteErrorResponse(w, http.StatusBadGateway,
				model.NewUpstreamUnavailableError(statusErr.Error()))
		} else {
			middleware.WriteErrorResponse(w, http.StatusBadGateway,
				model.NewUpstreamRejectedError(statusErr.StatusCode))
		}
		return
	}

	// 通信エラー（タイムアウト、接続失敗など）
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		middleware.WriteErrorResponse(w, http.StatusBadGateway,
			model.NewUpstreamUnavailableError("タイムアウトしました"))
		return
	}

	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}
