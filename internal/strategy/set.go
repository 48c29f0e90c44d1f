package strategy

import (
	"context"
	"errors"
	"net/url"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/any-hub/swcache/internal/cache"
	"github.com/any-hub/swcache/internal/fetch"
)

// Options 描述策略集合依赖的协作者。
type Options struct {
	Fetcher fetch.Fetcher
	Storage cache.Storage
	Writer  *cache.Writer
	Rules   Rules
	// StaticStore 返回当前生效的静态代际缓存名，激活前可以为空。
	StaticStore  func() string
	DynamicStore string
	Logger       *logrus.Logger
}

// Set 聚合四种缓存策略，按 Classify 结果分派。
type Set struct {
	fetcher      fetch.Fetcher
	storage      cache.Storage
	writer       *cache.Writer
	rules        Rules
	staticStore  func() string
	dynamicStore string
	logger       *logrus.Logger

	inflight singleflight.Group
}

// NewSet 构造策略集合，Writer 为空时基于 Storage 自动创建。
func NewSet(opts Options) *Set {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	writer := opts.Writer
	if writer == nil {
		writer = cache.NewWriter(opts.Storage, logger)
	}
	staticStore := opts.StaticStore
	if staticStore == nil {
		staticStore = func() string { return "" }
	}
	return &Set{
		fetcher:      opts.Fetcher,
		storage:      opts.Storage,
		writer:       writer,
		rules:        opts.Rules.Normalize(),
		staticStore:  staticStore,
		dynamicStore: opts.DynamicStore,
		logger:       logger,
	}
}

// Rules 返回归一化后的规则。
func (s *Set) Rules() Rules {
	return s.rules
}

// Writer 返回策略写缓存使用的写入器。
func (s *Set) Writer() *cache.Writer {
	return s.writer
}

// Classify 使用本集合的规则对请求分类。
func (s *Set) Classify(req *fetch.Request) Kind {
	return Classify(req, s.rules)
}

// Handle 对请求分类并执行对应策略。bypass 请求直接透传网络，不读写缓存。
func (s *Set) Handle(ctx context.Context, req *fetch.Request) (*fetch.Response, error) {
	switch s.Classify(req) {
	case KindCacheFirst:
		return s.CacheFirst(ctx, req), nil
	case KindImageCacheFirst:
		return s.ImageCacheFirst(ctx, req), nil
	case KindNetworkFirstUpdate:
		return s.NetworkFirstUpdate(ctx, req)
	case KindNetworkFirst:
		return s.NetworkFirst(ctx, req)
	default:
		return s.network(ctx, req)
	}
}

func (s *Set) network(ctx context.Context, req *fetch.Request) (*fetch.Response, error) {
	if s.fetcher == nil {
		return nil, errors.New("no network fetcher configured")
	}
	return s.fetcher.Fetch(ctx, req)
}

// sharedNetwork 对同一缓存键的并发回源做合并，每个调用方拿到独立副本。
// 合并后的回源不跟随任何单个调用方取消；调用方自身取消时立即返回 ctx.Err()。
func (s *Set) sharedNetwork(ctx context.Context, req *fetch.Request) (*fetch.Response, error) {
	flightCtx := context.WithoutCancel(ctx)
	ch := s.inflight.DoChan(req.Key(), func() (any, error) {
		return s.network(flightCtx, req)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*fetch.Response).Clone(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// lookup 先查当前静态缓存，再查动态缓存。
func (s *Set) lookup(ctx context.Context, key string) (*fetch.Response, bool) {
	entry, err := cache.Match(ctx, s.storage, key, s.staticStore(), s.dynamicStore)
	return s.entryResponse(entry, err, key)
}

// lookupAny 在全部缓存中查找。
func (s *Set) lookupAny(ctx context.Context, key string) (*fetch.Response, bool) {
	if s.storage == nil {
		return nil, false
	}
	entry, err := cache.Match(ctx, s.storage, key)
	return s.entryResponse(entry, err, key)
}

func (s *Set) entryResponse(entry *cache.Entry, err error, key string) (*fetch.Response, bool) {
	if err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"action": "cache_read",
				"key":    key,
			}).Warn("cache_read_failed")
		}
		return nil, false
	}
	return entry.Response, true
}

// remember 把可缓存的响应以后台任务写入动态缓存。
func (s *Set) remember(ctx context.Context, req *fetch.Request, resp *fetch.Response) {
	if s.dynamicStore == "" || !resp.Cacheable() {
		return
	}
	s.writer.PutAsync(ctx, s.dynamicStore, req.Key(), resp)
}

// originURL 把 path 解析为应用来源下的绝对 URL，未配置 Origin 时使用请求自身的来源。
func (s *Set) originURL(req *fetch.Request, p string) string {
	base := s.rules.Origin
	if base == "" && req != nil && req.URL != nil {
		base = req.URL.Scheme + "://" + req.URL.Host
	}
	baseURL, err := url.Parse(base + "/")
	if err != nil {
		return ""
	}
	ref, err := url.Parse(p)
	if err != nil {
		return ""
	}
	return baseURL.ResolveReference(ref).String()
}

func (s *Set) logFallback(req *fetch.Request, kind Kind, fallback string, err error) {
	s.logger.WithError(err).WithFields(logrus.Fields{
		"action":   "strategy_fallback",
		"strategy": string(kind),
		"url":      req.URL.String(),
		"fallback": fallback,
	}).Debug("network_failed_fallback")
}
