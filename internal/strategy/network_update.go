package strategy

import (
	"context"

	"github.com/any-hub/swcache/internal/fetch"
)

func init() {
	MustRegister(Metadata{
		Key:         KindNetworkFirstUpdate,
		Description: "远端数据服务：返回网络响应并顺带刷新缓存，供离线读取",
		Fallback:    "stored entry, then empty JSON array for data hosts",
		WritesStore: true,
	})
}

// NetworkFirstUpdate 先访问网络并在后台刷新缓存；失败时回退到缓存条目，
// 对 DataHosts 下的请求最终返回空 JSON 数组，其余主机返回 *NetworkError。
func (s *Set) NetworkFirstUpdate(ctx context.Context, req *fetch.Request) (*fetch.Response, error) {
	resp, err := s.network(ctx, req)
	if err == nil {
		s.remember(ctx, req, resp)
		return resp, nil
	}

	if stored, ok := s.lookupAny(ctx, req.Key()); ok {
		s.logFallback(req, KindNetworkFirstUpdate, "stored_entry", err)
		return stored, nil
	}
	if HostMatches(req.Hostname(), s.rules.DataHosts) {
		s.logFallback(req, KindNetworkFirstUpdate, "empty_list", err)
		return emptyList(), nil
	}
	return nil, &NetworkError{URL: req.URL.String(), Err: err}
}
