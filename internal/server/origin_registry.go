package server

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/any-hub/swcache/internal/config"
)

// OriginRoute 将来源配置与解析后的 Upstream URL 聚合在一起，供路由/代理层直接复用。
type OriginRoute struct {
	// Config 是 config.toml 中声明的来源字段副本。
	Config config.OriginConfig
	// ListenPort 记录当前监听端口，方便日志输出。
	ListenPort int
	// UpstreamURL 在构造 Registry 时提前解析完成。
	UpstreamURL *url.URL
}

// OriginRegistry 提供 Host/Host:port 到 OriginRoute 的查询能力，所有来源共享同一个监听端口。
type OriginRegistry struct {
	routes       map[string]*OriginRoute
	ordered      []*OriginRoute
	allowForward bool
}

// NewOriginRegistry 根据配置构建 Host 映射。调用方应在启动阶段创建一次并复用。
func NewOriginRegistry(cfg *config.Config) (*OriginRegistry, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	registry := &OriginRegistry{
		routes:       make(map[string]*OriginRoute, len(cfg.Origins)),
		allowForward: cfg.Global.AllowForward,
	}

	for _, origin := range cfg.Origins {
		normalizedHost := normalizeDomain(origin.Domain)
		if normalizedHost == "" {
			return nil, fmt.Errorf("invalid domain for origin %s", origin.Name)
		}
		if _, exists := registry.routes[normalizedHost]; exists {
			return nil, fmt.Errorf("duplicate domain mapping detected for %s", normalizedHost)
		}

		upstreamURL, err := url.Parse(origin.Upstream)
		if err != nil || upstreamURL.Host == "" {
			return nil, fmt.Errorf("invalid upstream for origin %s", origin.Name)
		}

		route := &OriginRoute{
			Config:      origin,
			ListenPort:  cfg.Global.ListenPort,
			UpstreamURL: upstreamURL,
		}
		registry.routes[normalizedHost] = route
		registry.ordered = append(registry.ordered, route)
	}

	return registry, nil
}

// Lookup 根据 Host 或 Host:port 查找 OriginRoute。
func (r *OriginRegistry) Lookup(host string) (*OriginRoute, bool) {
	if r == nil {
		return nil, false
	}
	normalizedHost, _ := normalizeHost(host)
	if normalizedHost == "" {
		return nil, false
	}
	route, ok := r.routes[normalizedHost]
	return route, ok
}

// AllowForward 表示未映射的主机是否按正向代理模式直接转发。
func (r *OriginRegistry) AllowForward() bool {
	return r != nil && r.allowForward
}

// List 按配置顺序返回全部来源。
func (r *OriginRegistry) List() []OriginRoute {
	if r == nil || len(r.ordered) == 0 {
		return nil
	}
	result := make([]OriginRoute, len(r.ordered))
	for i, route := range r.ordered {
		result[i] = *route
	}
	return result
}

func normalizeDomain(domain string) string {
	host, _ := normalizeHost(domain)
	return host
}

func normalizeHost(raw string) (string, int) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", 0
	}

	host := raw
	port := 0
	if h, p, err := net.SplitHostPort(raw); err == nil {
		host = h
		if parsed, err := strconv.Atoi(p); err == nil {
			port = parsed
		}
	}

	host = strings.TrimSuffix(host, ".")
	return strings.ToLower(host), port
}
