package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var supportedStorageDrivers = map[string]struct{}{
	"leveldb": {},
	"fs":      {},
	"memory":  {},
}

const supportedStorageDriverList = "leveldb|fs|memory"

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if _, ok := supportedStorageDrivers[g.StorageDriver]; !ok {
		return newFieldError("Global.StorageDriver", "仅支持 "+supportedStorageDriverList)
	}
	if g.StorageDriver != "memory" && g.StoragePath == "" {
		return newFieldError("Global.StoragePath", "不能为空")
	}
	if g.UpstreamTimeout.DurationValue() < 0 {
		return newFieldError("Global.UpstreamTimeout", "不能为负数")
	}

	if err := c.App.validate(); err != nil {
		return err
	}
	if c.Routing.PlaceholderImage != "" && c.App.Origin == "" {
		return newFieldError("Routing.PlaceholderImage", "需要同时配置 App.Origin")
	}

	if len(c.Origins) == 0 && !g.AllowForward {
		return errors.New("至少需要配置一个 Origin，或开启 AllowForward")
	}

	seenNames := map[string]struct{}{}
	seenDomains := map[string]struct{}{}
	for i := range c.Origins {
		origin := &c.Origins[i]
		if origin.Name == "" {
			return newFieldError("Origin[].Name", "不能为空")
		}
		if _, exists := seenNames[origin.Name]; exists {
			return newFieldError(originField(origin.Name, "Name"), "重复")
		}
		seenNames[origin.Name] = struct{}{}

		if err := validateDomain(origin.Domain); err != nil {
			return fmt.Errorf("%s: %w", originField(origin.Name, "Domain"), err)
		}
		if _, exists := seenDomains[origin.Domain]; exists {
			return newFieldError(originField(origin.Name, "Domain"), "重复")
		}
		seenDomains[origin.Domain] = struct{}{}

		if err := validateUpstream(origin.Upstream); err != nil {
			return fmt.Errorf("%s: %w", originField(origin.Name, "Upstream"), err)
		}
	}

	return nil
}

func (a AppConfig) validate() error {
	if a.AppName == "" {
		return newFieldError("App.AppName", "不能为空")
	}
	if strings.ContainsAny(a.AppName, "/\\ ") {
		return newFieldError("App.AppName", "不允许包含路径分隔符或空格")
	}
	if a.Version == "" {
		return newFieldError("App.Version", "不能为空")
	}
	if strings.ContainsAny(a.Version, "/\\ ") {
		return newFieldError("App.Version", "不允许包含路径分隔符或空格")
	}
	if a.DynamicStore == a.AppName+"-v"+strings.TrimPrefix(a.Version, "v") {
		return newFieldError("App.DynamicStore", "不能与静态缓存同名")
	}
	if a.Origin != "" {
		if err := validateUpstream(a.Origin); err != nil {
			return fmt.Errorf("App.Origin: %w", err)
		}
	}
	for _, entry := range a.Precache {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parsed, err := url.Parse(entry)
		if err != nil {
			return fmt.Errorf("App.Precache: %w", err)
		}
		if !parsed.IsAbs() && a.Origin == "" {
			return newFieldError("App.Precache", fmt.Sprintf("相对路径 %s 需要配置 App.Origin", entry))
		}
	}
	if a.SyncOrdersURL != "" {
		if err := validateUpstream(a.SyncOrdersURL); err != nil {
			return fmt.Errorf("App.SyncOrdersURL: %w", err)
		}
	}
	for _, raw := range a.CatalogURLs {
		if err := validateUpstream(raw); err != nil {
			return fmt.Errorf("App.CatalogURLs: %w", err)
		}
	}
	if a.PeriodicInterval.DurationValue() < 0 {
		return newFieldError("App.PeriodicInterval", "不能为负数")
	}
	return nil
}

func validateDomain(domain string) error {
	if domain == "" {
		return errors.New("Domain 不能为空")
	}
	if strings.Contains(domain, "/") {
		return errors.New("Domain 不允许包含路径")
	}
	if strings.Contains(domain, " ") {
		return errors.New("Domain 不允许包含空格")
	}
	if strings.HasPrefix(domain, "http") {
		return errors.New("Domain 不应包含协议头")
	}
	return nil
}

func validateUpstream(raw string) error {
	if raw == "" {
		return errors.New("缺少上游地址")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https，上游: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("上游缺少 Host: %s", raw)
	}
	return nil
}
