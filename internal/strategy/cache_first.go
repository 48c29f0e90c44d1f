package strategy

import (
	"context"

	"github.com/any-hub/swcache/internal/fetch"
)

func init() {
	MustRegister(Metadata{
		Key:         KindCacheFirst,
		Description: "样式、脚本、字体：缓存命中直接返回，未命中回源并写入动态缓存",
		Fallback:    "empty stylesheet / no-op script / empty font",
		WritesStore: true,
	})
}

// CacheFirst 命中缓存时不访问网络；未命中时回源，失败返回按扩展名构造的空资源，不会返回错误。
func (s *Set) CacheFirst(ctx context.Context, req *fetch.Request) *fetch.Response {
	if resp, ok := s.lookup(ctx, req.Key()); ok {
		return resp
	}
	resp, err := s.sharedNetwork(ctx, req)
	if err != nil {
		s.logFallback(req, KindCacheFirst, "asset", err)
		return assetFallback(req.Extension())
	}
	s.remember(ctx, req, resp)
	return resp
}
