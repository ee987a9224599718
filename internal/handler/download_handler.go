package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/keisuke/melodeck/internal/middleware"
	"github.com/keisuke/melodeck/internal/model"
)

// ArtifactDownloader は完了アイテムの成果物取得インターフェース。
type ArtifactDownloader interface {
	// Download は成果物を保存し、保存先のパスを返す。
	Download(ctx context.Context, item model.TrackedItem) (string, error)
}

// DownloadHandler は成果物ダウンロードのHTTPハンドラー。
type DownloadHandler struct {
	service    LibraryService
	downloader ArtifactDownloader
}

// NewDownloadHandler はDownloadHandlerを生成する。
func NewDownloadHandler(service LibraryService, downloader ArtifactDownloader) *DownloadHandler {
	return &DownloadHandler{
		service:    service,
		downloader: downloader,
	}
}

// downloadRequest はダウンロードリクエストのボディ。
type downloadRequest struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

// downloadResponse はダウンロード成功時のAPIレスポンス。
type downloadResponse struct {
	Path string `json:"path"`
}

// Download は完了アイテムの成果物をダウンロードする。
// アイテムはキャッシュから検索し、completed以外は409を返す。
// POST /api/download
func (h *DownloadHandler) Download(w http.ResponseWriter, r *http.Request) {
	var req downloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("リクエストボディの解析に失敗しました"))
		return
	}

	kind := model.ResourceKind(req.Kind)
	if !kind.Valid() {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidKindError(req.Kind))
		return
	}

	item, found := h.service.FindItem(kind, req.ID)
	if !found {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewItemNotFoundError(req.ID))
		return
	}

	dest, err := h.downloader.Download(r.Context(), item)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(downloadResponse{Path: dest})
}
