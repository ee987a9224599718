package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/keisuke/melodeck/internal/model"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Upstream
	UpstreamBaseURL string
	UpstreamToken   string
	UserID          string

	// Fetch
	FetchTimeout time.Duration
	PageLimit    int

	// Polling
	PollIntervals  map[model.ResourceKind]time.Duration
	PollTickBudget float64 // ポーリングティックの秒間上限（全種別合計）

	// Rate Limit
	RateLimitGeneral  int // req/min/クライアント
	RateLimitMutation int // 作成・削除のreq/min/クライアント

	// Download
	DownloadDir     string
	DownloadTimeout time.Duration
	DownloadMaxSize int64

	// Notifications
	NotificationBuffer int

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string

	// Logging
	LogLevel string

	// KindsConfigPath は種別定義TOMLファイルのパス（任意）。
	KindsConfigPath string
}

// defaultPollIntervals は種別ごとのポーリング間隔のデフォルト値。
// ジョブクラスごとに期待処理時間が異なるため、間隔は種別単位で持つ。
// 楽曲は短く、ビデオ・ナレーションは長めに設定する。
var defaultPollIntervals = map[model.ResourceKind]time.Duration{
	model.KindSong:      3 * time.Second,
	model.KindVideo:     5 * time.Second,
	model.KindNarrative: 5 * time.Second,
	model.KindCharacter: 10 * time.Second,
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
// KINDS_CONFIG_PATHが設定されている場合はTOMLファイルから
// 種別ごとのポーリング間隔を上書きする。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.UpstreamBaseURL = os.Getenv("UPSTREAM_BASE_URL")
	if cfg.UpstreamBaseURL == "" {
		missing = append(missing, "UPSTREAM_BASE_URL")
	}

	cfg.UpstreamToken = os.Getenv("UPSTREAM_API_TOKEN")
	if cfg.UpstreamToken == "" {
		missing = append(missing, "UPSTREAM_API_TOKEN")
	}

	cfg.UserID = os.Getenv("MELODECK_USER_ID")
	if cfg.UserID == "" {
		missing = append(missing, "MELODECK_USER_ID")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.FetchTimeout = getEnvDuration("FETCH_TIMEOUT", 10*time.Second)
	cfg.PageLimit = getEnvInt("PAGE_LIMIT", 50)
	cfg.PollTickBudget = float64(getEnvInt("POLL_TICK_BUDGET", 10))
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitMutation = getEnvInt("RATE_LIMIT_MUTATION", 20)
	cfg.DownloadDir = getEnvString("DOWNLOAD_DIR", "downloads")
	cfg.DownloadTimeout = getEnvDuration("DOWNLOAD_TIMEOUT", 60*time.Second)
	cfg.DownloadMaxSize = getEnvInt64("DOWNLOAD_MAX_SIZE", 209715200)
	cfg.NotificationBuffer = getEnvInt("NOTIFICATION_BUFFER", 100)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.KindsConfigPath = getEnvString("KINDS_CONFIG_PATH", "")

	// 種別ごとのポーリング間隔: デフォルト → 環境変数 → TOMLの順で上書き
	cfg.PollIntervals = make(map[model.ResourceKind]time.Duration, len(defaultPollIntervals))
	for kind, interval := range defaultPollIntervals {
		cfg.PollIntervals[kind] = interval
	}
	for kind := range cfg.PollIntervals {
		envKey := fmt.Sprintf("POLL_INTERVAL_%s", kindEnvSuffix(kind))
		cfg.PollIntervals[kind] = getEnvDuration(envKey, cfg.PollIntervals[kind])
	}

	if cfg.KindsConfigPath != "" {
		overrides, err := LoadKindsFile(cfg.KindsConfigPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load kinds config: %w", err)
		}
		for kind, interval := range overrides {
			cfg.PollIntervals[kind] = interval
		}
	}

	return cfg, nil
}

// kindEnvSuffix はリソース種別を環境変数名のサフィックスに変換する。
func kindEnvSuffix(kind model.ResourceKind) string {
	switch kind {
	case model.KindSong:
		return "SONG"
	case model.KindVideo:
		return "VIDEO"
	case model.KindNarrative:
		return "NARRATIVE"
	case model.KindCharacter:
		return "CHARACTER"
	default:
		return "UNKNOWN"
	}
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
