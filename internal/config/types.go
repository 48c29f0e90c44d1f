package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// GlobalConfig 描述进程级运行参数：监听、日志、缓存存储与网络。
type GlobalConfig struct {
	ListenPort    int    `mapstructure:"ListenPort"`
	LogLevel      string `mapstructure:"LogLevel"`
	LogFilePath   string `mapstructure:"LogFilePath"`
	LogMaxSize    int    `mapstructure:"LogMaxSize"`
	LogMaxBackups int    `mapstructure:"LogMaxBackups"`
	LogCompress   bool   `mapstructure:"LogCompress"`
	StorageDriver string `mapstructure:"StorageDriver"`
	StoragePath   string `mapstructure:"StoragePath"`
	// UpstreamTimeout 为 0 时不设超时，挂起的网络请求只会阻塞对应任务。
	UpstreamTimeout Duration `mapstructure:"UpstreamTimeout"`
	// AllowForward 允许把未映射主机的绝对形式请求直接转发（正向代理模式）。
	AllowForward bool `mapstructure:"AllowForward"`
}

// AppConfig 描述被代理应用的版本与生命周期参数。
type AppConfig struct {
	AppName      string   `mapstructure:"AppName"`
	Version      string   `mapstructure:"Version"`
	Origin       string   `mapstructure:"Origin"`
	DynamicStore string   `mapstructure:"DynamicStore"`
	SkipWaiting  bool     `mapstructure:"SkipWaiting"`
	ClaimClients bool     `mapstructure:"ClaimClients"`
	Precache     []string `mapstructure:"Precache"`
	ManifestFile string   `mapstructure:"ManifestFile"`

	NotificationIcon  string `mapstructure:"NotificationIcon"`
	NotificationBadge string `mapstructure:"NotificationBadge"`

	SyncOrdersURL    string   `mapstructure:"SyncOrdersURL"`
	CatalogURLs      []string `mapstructure:"CatalogURLs"`
	PeriodicInterval Duration `mapstructure:"PeriodicInterval"`
}

// RoutingConfig 覆盖请求分类与回退规则，留空的列表使用内置默认值。
type RoutingConfig struct {
	AssetExtensions  []string `mapstructure:"AssetExtensions"`
	ImageExtensions  []string `mapstructure:"ImageExtensions"`
	DataHosts        []string `mapstructure:"DataHosts"`
	PlaceholderHosts []string `mapstructure:"PlaceholderHosts"`
	PlaceholderImage string   `mapstructure:"PlaceholderImage"`
	RootDocuments    []string `mapstructure:"RootDocuments"`
}

// OriginConfig 把一个 Host 映射到上游来源。
type OriginConfig struct {
	Name     string `mapstructure:"Name"`
	Domain   string `mapstructure:"Domain"`
	Upstream string `mapstructure:"Upstream"`
}

// Config 是 TOML 文件映射的整体结构，进程启动时构造一次，之后只读。
type Config struct {
	Global  GlobalConfig   `mapstructure:",squash"`
	App     AppConfig      `mapstructure:"App"`
	Routing RoutingConfig  `mapstructure:"Routing"`
	Origins []OriginConfig `mapstructure:"Origin"`
}

// OriginNames 返回全部来源名称，供启动日志使用。
func OriginNames(origins []OriginConfig) []string {
	if len(origins) == 0 {
		return nil
	}
	result := make([]string, len(origins))
	for i, origin := range origins {
		result[i] = fmt.Sprintf("%s:%s", origin.Name, origin.Domain)
	}
	return result
}
