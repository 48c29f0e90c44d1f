package strategy

import (
	"context"

	"github.com/any-hub/swcache/internal/fetch"
)

func init() {
	MustRegister(Metadata{
		Key:         KindImageCacheFirst,
		Description: "图片：缓存优先，回源失败时返回占位图",
		Fallback:    "pinned placeholder image or generated SVG",
		WritesStore: true,
	})
}

// ImageCacheFirst 与 CacheFirst 相同的命中路径；网络失败时总是返回 200 的图片响应。
func (s *Set) ImageCacheFirst(ctx context.Context, req *fetch.Request) *fetch.Response {
	if resp, ok := s.lookup(ctx, req.Key()); ok {
		return resp
	}
	resp, err := s.sharedNetwork(ctx, req)
	if err == nil {
		s.remember(ctx, req, resp)
		return resp
	}

	if pinned, ok := s.pinnedPlaceholder(ctx, req); ok {
		s.logFallback(req, KindImageCacheFirst, "pinned_placeholder", err)
		return pinned
	}
	s.logFallback(req, KindImageCacheFirst, "svg_placeholder", err)
	return svgPlaceholder()
}

func (s *Set) pinnedPlaceholder(ctx context.Context, req *fetch.Request) (*fetch.Response, bool) {
	if s.rules.PlaceholderImage == "" || !HostMatches(req.Hostname(), s.rules.PlaceholderHosts) {
		return nil, false
	}
	target := s.originURL(req, s.rules.PlaceholderImage)
	if target == "" {
		return nil, false
	}
	key, err := fetch.KeyFor("GET", target)
	if err != nil {
		return nil, false
	}
	return s.lookupAny(ctx, key)
}
