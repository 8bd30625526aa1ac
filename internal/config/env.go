package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix is prepended to every override variable.
const EnvPrefix = "CAMPBOT_"

// Overrides are the settings that may come from the environment (or a .env file
// loaded before the config). Non-empty values win over the file.
type Overrides struct {
	TelegramToken string  `env:"TELEGRAM_TOKEN"`
	OwnerUserIDs  []int64 `env:"OWNER_USER_IDS" envSeparator:","`
	StorageDriver string  `env:"STORAGE_DRIVER"`
	StoragePath   string  `env:"STORAGE_PATH"`
	LogLevel      string  `env:"LOG_LEVEL"`
}

// ParseEnv reads Overrides from the process environment.
func ParseEnv() (Overrides, error) {
	var o Overrides
	if err := env.ParseWithOptions(&o, env.Options{Prefix: EnvPrefix}); err != nil {
		return Overrides{}, fmt.Errorf("parse env: %w", err)
	}
	return o, nil
}

// Apply copies the set overrides into cfg.
func (o Overrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if s := strings.TrimSpace(o.TelegramToken); s != "" {
		cfg.Telegram.Token = s
	}
	if len(o.OwnerUserIDs) > 0 {
		cfg.Telegram.OwnerUserIDs = append([]int64(nil), o.OwnerUserIDs...)
	}
	if s := strings.TrimSpace(o.StorageDriver); s != "" {
		cfg.Storage.Driver = s
	}
	if s := strings.TrimSpace(o.StoragePath); s != "" {
		cfg.Storage.Path = s
	}
	if s := strings.TrimSpace(o.LogLevel); s != "" {
		cfg.Logging.Level = s
	}
}
