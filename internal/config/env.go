package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// envOverrides 描述部署时可以通过环境变量覆盖的字段。
type envOverrides struct {
	Version     string `env:"SWCACHE_VERSION"`
	SkipWaiting *bool  `env:"SWCACHE_SKIP_WAITING"`
	LogLevel    string `env:"SWCACHE_LOG_LEVEL"`
}

func applyEnvOverrides(cfg *Config) error {
	var overrides envOverrides
	if err := env.Parse(&overrides); err != nil {
		return fmt.Errorf("解析环境变量失败: %w", err)
	}
	if v := strings.TrimSpace(overrides.Version); v != "" {
		cfg.App.Version = v
	}
	if overrides.SkipWaiting != nil {
		cfg.App.SkipWaiting = *overrides.SkipWaiting
	}
	if level := strings.TrimSpace(overrides.LogLevel); level != "" {
		cfg.Global.LogLevel = level
	}
	return nil
}
