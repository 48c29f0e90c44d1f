package strategy

import (
	"net/http"
	"strings"

	"github.com/any-hub/swcache/internal/fetch"
)

// Kind 表示一次请求被分派到的策略。
type Kind string

const (
	KindBypass             Kind = "bypass"
	KindCacheFirst         Kind = "cache-first"
	KindImageCacheFirst    Kind = "image-cache-first"
	KindNetworkFirst       Kind = "network-first"
	KindNetworkFirstUpdate Kind = "network-first-update"
)

var (
	defaultAssetExtensions = []string{".css", ".js", ".mjs", ".woff", ".woff2", ".ttf", ".otf", ".eot"}
	defaultImageExtensions = []string{".png", ".jpg", ".jpeg", ".gif", ".webp", ".svg", ".ico", ".avif"}
	defaultDataHosts       = []string{"firestore.googleapis.com", "firebaseio.com", "firebasestorage.googleapis.com"}
	defaultRootDocuments   = []string{"/", "/index.html"}
)

// Rules 描述分类与回退所需的静态规则，进程启动时由配置构造，之后只读。
type Rules struct {
	AssetExtensions  []string
	ImageExtensions  []string
	DataHosts        []string
	PlaceholderHosts []string
	// PlaceholderImage 为固定占位图路径，按 Origin 解析后到缓存中查找。
	PlaceholderImage string
	RootDocuments    []string
	// Origin 为应用自身的来源（scheme://host），用于解析根文档与占位图。
	Origin string
}

// DefaultRules 返回内置默认规则。
func DefaultRules() Rules {
	return Rules{
		AssetExtensions: append([]string(nil), defaultAssetExtensions...),
		ImageExtensions: append([]string(nil), defaultImageExtensions...),
		DataHosts:       append([]string(nil), defaultDataHosts...),
		RootDocuments:   append([]string(nil), defaultRootDocuments...),
	}
}

// Normalize 统一扩展名与主机名的大小写，并为空列表补齐默认值。
func (r Rules) Normalize() Rules {
	out := r
	out.AssetExtensions = normalizeExtensions(r.AssetExtensions, defaultAssetExtensions)
	out.ImageExtensions = normalizeExtensions(r.ImageExtensions, defaultImageExtensions)
	out.DataHosts = normalizeHosts(r.DataHosts, defaultDataHosts)
	out.PlaceholderHosts = normalizeHosts(r.PlaceholderHosts, nil)
	if len(r.RootDocuments) == 0 {
		out.RootDocuments = append([]string(nil), defaultRootDocuments...)
	}
	out.Origin = strings.TrimRight(strings.TrimSpace(r.Origin), "/")
	return out
}

// Classify 按固定优先级为请求选择策略，首个命中的规则生效。
// 对任意请求总是返回且只返回一个 Kind，结果只取决于请求本身与 rules。
func Classify(req *fetch.Request, rules Rules) Kind {
	if req == nil || req.Method != http.MethodGet {
		return KindBypass
	}
	if req.AcceptsHTML() {
		return KindNetworkFirst
	}
	ext := req.Extension()
	if ext != "" {
		if containsFold(rules.AssetExtensions, ext, defaultAssetExtensions) {
			return KindCacheFirst
		}
		if containsFold(rules.ImageExtensions, ext, defaultImageExtensions) {
			return KindImageCacheFirst
		}
	}
	dataHosts := rules.DataHosts
	if len(dataHosts) == 0 {
		dataHosts = defaultDataHosts
	}
	if HostMatches(req.Hostname(), dataHosts) {
		return KindNetworkFirstUpdate
	}
	return KindNetworkFirst
}

// HostMatches 判断 host 是否等于某个模式或为其子域名。
func HostMatches(host string, patterns []string) bool {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if host == "" {
		return false
	}
	for _, pattern := range patterns {
		pattern = strings.ToLower(strings.Trim(strings.TrimSpace(pattern), "."))
		if pattern == "" {
			continue
		}
		if host == pattern || strings.HasSuffix(host, "."+pattern) {
			return true
		}
	}
	return false
}

func containsFold(list []string, ext string, fallback []string) bool {
	if len(list) == 0 {
		list = fallback
	}
	for _, item := range list {
		if strings.EqualFold(normalizeExtension(item), ext) {
			return true
		}
	}
	return false
}

func normalizeExtension(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

func normalizeExtensions(list, fallback []string) []string {
	if len(list) == 0 {
		return append([]string(nil), fallback...)
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if ext := normalizeExtension(item); ext != "" {
			out = append(out, ext)
		}
	}
	return out
}

func normalizeHosts(list, fallback []string) []string {
	if len(list) == 0 {
		return append([]string(nil), fallback...)
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if host := strings.ToLower(strings.Trim(strings.TrimSpace(item), ".")); host != "" {
			out = append(out, host)
		}
	}
	return out
}
