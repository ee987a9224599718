// Package upstream は生成バックエンドのREST APIクライアントを提供する。
// リソース一覧の取得、生成ジョブの作成、アイテムの削除を行う。
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/keisuke/melodeck/internal/model"
)

const userAgent = "Melodeck-Agent/1.0"

// maxResponseSize はレスポンスボディの最大読み取りサイズ（5MB）。
const maxResponseSize = 5 * 1024 * 1024

// ListParams は一覧取得のページネーションとフィルタ条件。
type ListParams struct {
	Page    int
	Limit   int
	Filters map[string]string
}

// ListResult は一覧取得の結果。
type ListResult struct {
	Items      []model.TrackedItem
	TotalCount int
}

// CreateRequest は生成ジョブ作成のリクエスト内容。
// Paramsには種別ごとの生成パラメータ（プロンプト、スタイル等）をそのまま渡す。
type CreateRequest struct {
	Title  string
	Params map[string]any
}

// StatusError はバックエンドが2xx以外を返した場合のエラー。
type StatusError struct {
	StatusCode int
}

// Error はerrorインターフェースを実装する。
func (e *StatusError) Error() string {
	return fmt.Sprintf("生成サーバーがステータス %d を返しました", e.StatusCode)
}

// Result はステータスコードの分類を返す。
func (e *StatusError) Result() CallResult {
	return ClassifyHTTPStatus(e.StatusCode)
}

// Client は生成バックエンドAPIのクライアント。
// 全リクエストにBearerトークンとタイムアウトを適用する。
type Client struct {
	httpClient *http.Client
	baseURL    string
	userID     string
	token      string
	logger     *slog.Logger
}

// NewClient はClientの新しいインスタンスを生成する。
// timeoutは1リクエストあたりの上限で、応答しないフェッチが
// IsLoadingを立てたまま残ることを防ぐ。
func NewClient(baseURL, userID, token string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		userID:     userID,
		token:      token,
		logger:     logger,
	}
}

// ListItems はユーザーのリソース一覧を取得する。
// GET {base}/users/{userId}/{kind}s?page&limit&フィルタ
func (c *Client) ListItems(ctx context.Context, kind model.ResourceKind, params ListParams) (*ListResult, error) {
	reqURL, err := url.Parse(fmt.Sprintf("%s/users/%s/%ss", c.baseURL, url.PathEscape(c.userID), kind))
	if err != nil {
		return nil, fmt.Errorf("リクエストURLの構築に失敗しました: %w", err)
	}

	q := reqURL.Query()
	if params.Page > 0 {
		q.Set("page", strconv.Itoa(params.Page))
	}
	if params.Limit > 0 {
		q.Set("limit", strconv.Itoa(params.Limit))
	}
	for key, value := range params.Filters {
		q.Set(key, value)
	}
	reqURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	c.setCommonHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("リソース一覧の取得に失敗しました",
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("リソース一覧APIがエラーステータスを返しました",
			slog.String("kind", string(kind)),
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	var payload listResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		c.logger.Error("リソース一覧レスポンスのパースに失敗しました",
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}

	items := make([]model.TrackedItem, 0, len(payload.Items))
	for _, wire := range payload.Items {
		items = append(items, wire.toModel(kind))
	}

	return &ListResult{
		Items:      items,
		TotalCount: payload.Pagination.TotalCount,
	}, nil
}

// CreateItem は生成ジョブを作成する。
// POST {base}/{kind}s
// Idempotency-Keyヘッダー付与により、リトライ時の二重作成を防ぐ。
// 成功時はstatus=processingで返ってきたアイテムを返す（楽観的追加の種）。
func (c *Client) CreateItem(ctx context.Context, kind model.ResourceKind, req CreateRequest) (*model.TrackedItem, error) {
	body, err := json.Marshal(createRequestBody{
		UserID: c.userID,
		Title:  req.Title,
		Params: req.Params,
	})
	if err != nil {
		return nil, fmt.Errorf("リクエストボディの構築に失敗しました: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/%ss", c.baseURL, kind), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	c.setCommonHeaders(httpReq)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", uuid.NewString())

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Error("生成ジョブの作成に失敗しました",
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		c.logger.Error("生成ジョブ作成APIがエラーステータスを返しました",
			slog.String("kind", string(kind)),
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	var wire wireItem
	if err := json.Unmarshal(respBody, &wire); err != nil {
		return nil, fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}

	item := wire.toModel(kind)
	return &item, nil
}

// DeleteItem はアイテムを削除する。
// DELETE {base}/{kind}s/{id}
// 404は冪等性の観点から成功として扱う（既に存在しない＝削除済み）。
func (c *Client) DeleteItem(ctx context.Context, kind model.ResourceKind, id string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		fmt.Sprintf("%s/%ss/%s", c.baseURL, kind, url.PathEscape(id)), nil)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	c.setCommonHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("アイテムの削除に失敗しました",
			slog.String("kind", string(kind)),
			slog.String("item_id", id),
			slog.String("error", err.Error()),
		)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		c.logger.Error("アイテム削除APIがエラーステータスを返しました",
			slog.String("kind", string(kind)),
			slog.String("item_id", id),
			slog.Int("http_status", resp.StatusCode),
		)
		return &StatusError{StatusCode: resp.StatusCode}
	}

	return nil
}

// setCommonHeaders は全リクエスト共通のヘッダーを設定する。
func (c *Client) setCommonHeaders(req *http.Request) {
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// --- ワイヤーフォーマット ---

// listResponse は一覧APIのレスポンス形式。
type listResponse struct {
	Items      []wireItem `json:"items"`
	Pagination struct {
		TotalCount int `json:"total_count"`
	} `json:"pagination"`
}

// createRequestBody は生成ジョブ作成APIのリクエスト形式。
type createRequestBody struct {
	UserID string         `json:"user_id"`
	Title  string         `json:"title,omitempty"`
	Params map[string]any `json:"params,omitempty"`
}

// wireItem はバックエンドが返すアイテムのワイヤー表現。
type wireItem struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Status          string    `json:"status"`
	Progress        int       `json:"progress"`
	ProgressMessage string    `json:"progress_message"`
	ResultURL       string    `json:"result_url"`
	ErrorMessage    string    `json:"error_message"`
	CreatedAt       time.Time `json:"created_at"`
}

// toModel はワイヤー表現をドメインモデルに変換する。
// statusはサーバー権威であり、未知の値はそのまま保持する
// （クライアント側で推測・補正しない）。
func (w wireItem) toModel(kind model.ResourceKind) model.TrackedItem {
	return model.TrackedItem{
		ID:              w.ID,
		Kind:            kind,
		Title:           w.Title,
		Status:          model.ItemStatus(w.Status),
		Progress:        w.Progress,
		ProgressMessage: w.ProgressMessage,
		ResultURL:       w.ResultURL,
		ErrorMessage:    w.ErrorMessage,
		CreatedAt:       w.CreatedAt,
	}
}
