package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/keisuke/melodeck/internal/model"
)

// kindsFile は種別定義TOMLファイルの形式。
//
//	[kinds.song]
//	poll_interval = "3s"
//
//	[kinds.video]
//	poll_interval = "5s"
type kindsFile struct {
	Kinds map[string]kindEntry `toml:"kinds"`
}

// kindEntry は1種別分の設定。
type kindEntry struct {
	PollInterval string `toml:"poll_interval"`
}

// LoadKindsFile は種別定義TOMLファイルを読み込み、
// 種別ごとのポーリング間隔の上書きマップを返す。
// 未定義の種別名や不正なduration、0以下の間隔はエラーを返す。
func LoadKindsFile(path string) (map[model.ResourceKind]time.Duration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var file kindsFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	overrides := make(map[model.ResourceKind]time.Duration, len(file.Kinds))
	for name, entry := range file.Kinds {
		kind := model.ResourceKind(name)
		if !kind.Valid() {
			return nil, fmt.Errorf("unknown resource kind in %s: %s", path, name)
		}
		if entry.PollInterval == "" {
			continue
		}
		interval, err := time.ParseDuration(entry.PollInterval)
		if err != nil {
			return nil, fmt.Errorf("invalid poll_interval for %s: %w", name, err)
		}
		if interval <= 0 {
			return nil, fmt.Errorf("poll_interval for %s must be positive: %s", name, entry.PollInterval)
		}
		overrides[kind] = interval
	}

	return overrides, nil
}
