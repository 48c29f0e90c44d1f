package background

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/swcache/internal/fetch"
)

// OrdersFlusher 通过向 URL 发送一次 flush 请求让远端提交积压订单；URL 为空时什么也不做。
type OrdersFlusher struct {
	URL     string
	Fetcher fetch.Fetcher
}

// Flush 实现 PendingWrites。
func (f *OrdersFlusher) Flush(ctx context.Context) error {
	if f == nil || f.URL == "" {
		return nil
	}
	if f.Fetcher == nil {
		return errors.New("no network fetcher configured")
	}
	header := http.Header{}
	header.Set("Content-Type", "application/json")
	req, err := fetch.NewRequest(http.MethodPost, f.URL, header)
	if err != nil {
		return err
	}
	resp, err := f.Fetcher.Fetch(ctx, req.WithBody([]byte("{}")))
	if err != nil {
		return err
	}
	if !resp.OK() {
		return fmt.Errorf("flush pending orders: unexpected status %d", resp.Status)
	}
	return nil
}

// ErrStaleCatalog 表示回源失败，刷新策略返回的是已缓存条目或兜底空列表。
var ErrStaleCatalog = errors.New("catalog served from fallback")

// Updater 是“网络优先并刷新缓存”策略的最小视图。
type Updater interface {
	NetworkFirstUpdate(ctx context.Context, req *fetch.Request) (*fetch.Response, error)
}

// CatalogRefresher 通过刷新策略重新获取目录 URL，使动态缓存保持最新。
type CatalogRefresher struct {
	URLs    []string
	Updater Updater
	Logger  *logrus.Logger
}

// Refresh 实现 Catalog，单个 URL 失败不影响其他 URL，全部错误合并返回。
func (r *CatalogRefresher) Refresh(ctx context.Context) error {
	if r == nil || r.Updater == nil || len(r.URLs) == 0 {
		return nil
	}
	var errs []error
	refreshed := 0
	for _, raw := range r.URLs {
		req, err := fetch.NewRequest(http.MethodGet, raw, http.Header{"Accept": []string{"application/json"}})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		resp, err := r.Updater.NetworkFirstUpdate(ctx, req)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !fromNetwork(resp) {
			errs = append(errs, fmt.Errorf("refresh catalog %s: %w", raw, ErrStaleCatalog))
			continue
		}
		refreshed++
	}
	if r.Logger != nil {
		r.Logger.WithFields(logrus.Fields{
			"action":    "catalog_refresh",
			"refreshed": refreshed,
			"failed":    len(errs),
		}).Info("catalog_refresh_complete")
	}
	return errors.Join(errs...)
}

// fromNetwork 判断响应是否来自本次回源：缓存条目带写入时间，兜底响应没有 URL。
func fromNetwork(resp *fetch.Response) bool {
	return resp != nil && resp.URL != "" && resp.StoredAt.IsZero()
}
