package strategy

import (
	"context"

	"github.com/any-hub/swcache/internal/fetch"
)

func init() {
	MustRegister(Metadata{
		Key:         KindNetworkFirst,
		Description: "页面与默认请求：网络优先，成功后写入动态缓存",
		Fallback:    "stored entry, then root document for HTML",
		WritesStore: true,
	})
}

// NetworkFirst 先访问网络；失败时依次回退到缓存条目、根文档（仅 HTML），
// 都没有时返回 *NetworkError。
func (s *Set) NetworkFirst(ctx context.Context, req *fetch.Request) (*fetch.Response, error) {
	resp, err := s.network(ctx, req)
	if err == nil {
		s.remember(ctx, req, resp)
		return resp, nil
	}

	if stored, ok := s.lookupAny(ctx, req.Key()); ok {
		s.logFallback(req, KindNetworkFirst, "stored_entry", err)
		return stored, nil
	}
	if req.AcceptsHTML() {
		for _, doc := range s.rules.RootDocuments {
			key, keyErr := fetch.KeyFor("GET", s.originURL(req, doc))
			if keyErr != nil {
				continue
			}
			if stored, ok := s.lookupAny(ctx, key); ok {
				s.logFallback(req, KindNetworkFirst, "root_document", err)
				return stored, nil
			}
		}
	}
	return nil, &NetworkError{URL: req.URL.String(), Err: err}
}
