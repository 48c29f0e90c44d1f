package proxy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/swcache/internal/fetch"
	"github.com/any-hub/swcache/internal/logging"
	"github.com/any-hub/swcache/internal/server"
	"github.com/any-hub/swcache/internal/strategy"
)

// Worker 是代理层依赖的 fetch 事件处理能力，由 worker.Worker 实现。
type Worker interface {
	Classify(req *fetch.Request) strategy.Kind
	Fetch(ctx context.Context, req *fetch.Request) (*fetch.Response, bool, error)
	Network(ctx context.Context, req *fetch.Request) (*fetch.Response, error)
}

// 响应来源标记，写入 X-Swcache-Source。
const (
	sourceStore    = "store"
	sourceNetwork  = "network"
	sourceFallback = "fallback"
)

// Handler 把每个进入的 HTTP 请求转换为一次 fetch 事件，
// 交给 Worker 按策略处理后再把快照写回客户端。
type Handler struct {
	worker Worker
	logger *logrus.Logger
}

// NewHandler constructs a proxy handler on top of the worker.
func NewHandler(worker Worker, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Handler{worker: worker, logger: logger}
}

// Handle 实现 server.ProxyHandler。route 为 nil 表示正向代理模式。
func (h *Handler) Handle(c fiber.Ctx, route *server.OriginRoute) (err error) {
	requestID := server.RequestID(c)
	defer func() {
		if r := recover(); r != nil {
			h.logFailure(route, requestID, "fetch_handler_panic", fmt.Errorf("panic: %v", r))
			err = h.writeError(c, fiber.StatusInternalServerError, "fetch_handler_panic")
		}
	}()
	return h.serve(c, route, requestID)
}

func (h *Handler) serve(c fiber.Ctx, route *server.OriginRoute, requestID string) error {
	started := time.Now()
	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	target, err := targetURL(c, route)
	if err != nil {
		h.logFailure(route, requestID, "invalid_target", err)
		return h.writeError(c, fiber.StatusBadRequest, "invalid_target")
	}
	req, err := fetch.NewRequest(c.Method(), target.String(), fiberHeadersAsHTTP(c))
	if err != nil {
		h.logFailure(route, requestID, "invalid_target", err)
		return h.writeError(c, fiber.StatusBadRequest, "invalid_target")
	}

	kind := h.worker.Classify(req)
	resp, handled, err := h.worker.Fetch(ctx, req)
	if err == nil && !handled {
		resp, err = h.worker.Network(ctx, req.WithBody(c.Body()))
	}
	if err != nil {
		h.logResult(route, req, kind, "", 0, requestID, started, err)
		if errors.Is(err, strategy.ErrNetwork) || !handled {
			return h.writeError(c, fiber.StatusBadGateway, "network_failed")
		}
		return h.writeError(c, fiber.StatusInternalServerError, "fetch_failed")
	}

	source := responseSource(resp)
	c.Set("X-Swcache-Strategy", string(kind))
	c.Set("X-Swcache-Source", source)
	if requestID != "" {
		c.Set("X-Request-ID", requestID)
	}
	copyResponseHeaders(c, resp.Header)
	c.Status(resp.Status)

	h.logResult(route, req, kind, source, resp.Status, requestID, started, nil)
	if c.Method() == http.MethodHead {
		return nil
	}
	return c.Send(resp.Body)
}

// targetURL 计算上游绝对地址：映射主机时拼接 Upstream + 路径 + 查询串，
// 正向代理模式下直接使用请求中的完整 URI。
func targetURL(c fiber.Ctx, route *server.OriginRoute) (*url.URL, error) {
	uri := c.Request().URI()
	if route == nil {
		parsed, err := url.Parse(string(uri.FullURI()))
		if err != nil {
			return nil, err
		}
		if parsed.Host == "" {
			return nil, errors.New("forward request without host")
		}
		return parsed, nil
	}

	clean := string(uri.Path())
	if clean == "" {
		clean = "/"
	}
	relative := &url.URL{Path: clean}
	if raw := uri.QueryString(); len(raw) > 0 {
		relative.RawQuery = string(raw)
	}
	return route.UpstreamURL.ResolveReference(relative), nil
}

func responseSource(resp *fetch.Response) string {
	switch {
	case !resp.StoredAt.IsZero():
		return sourceStore
	case resp.URL != "":
		return sourceNetwork
	default:
		return sourceFallback
	}
}

func fiberHeadersAsHTTP(c fiber.Ctx) http.Header {
	header := http.Header{}
	c.Request().Header.VisitAll(func(key, value []byte) {
		header.Add(string(key), string(value))
	})
	return header
}

func copyResponseHeaders(c fiber.Ctx, headers http.Header) {
	for key, values := range headers {
		if fetch.IsHopByHopHeader(key) || http.CanonicalHeaderKey(key) == "Content-Length" {
			continue
		}
		c.Response().Header.Del(key)
		for _, value := range values {
			c.Response().Header.Add(key, value)
		}
	}
}

func (h *Handler) writeError(c fiber.Ctx, status int, code string) error {
	return c.Status(status).JSON(fiber.Map{"error": code})
}

func (h *Handler) routeFields(route *server.OriginRoute, host string, kind strategy.Kind, requestID string, fromStore bool) logrus.Fields {
	name := ""
	if route != nil {
		name = route.Config.Name
	}
	return logging.RequestFields(name, host, string(kind), requestID, fromStore)
}

func (h *Handler) logResult(
	route *server.OriginRoute,
	req *fetch.Request,
	kind strategy.Kind,
	source string,
	status int,
	requestID string,
	started time.Time,
	err error,
) {
	fields := h.routeFields(route, req.Hostname(), kind, requestID, source == sourceStore)
	fields["action"] = "proxy"
	fields["method"] = req.Method
	fields["url"] = req.URL.String()
	fields["status"] = status
	fields["source"] = source
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	if err != nil {
		fields["error"] = err.Error()
		h.logger.WithFields(fields).Error("proxy_failed")
		return
	}
	h.logger.WithFields(fields).Info("proxy_complete")
}

func (h *Handler) logFailure(route *server.OriginRoute, requestID, code string, err error) {
	fields := h.routeFields(route, "", "", requestID, false)
	fields["action"] = "proxy"
	fields["error"] = code
	h.logger.WithFields(fields).Error(err.Error())
}
