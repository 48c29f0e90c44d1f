package proxy

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"

	"github.com/any-hub/swcache/internal/config"
	"github.com/any-hub/swcache/internal/fetch"
	"github.com/any-hub/swcache/internal/server"
	"github.com/any-hub/swcache/internal/strategy"
)

// fakeWorker 记录收到的请求，并按预设结果应答。
type fakeWorker struct {
	kind       strategy.Kind
	response   *fetch.Response
	err        error
	panicValue any

	fetched *fetch.Request
	network *fetch.Request
}

func (w *fakeWorker) Classify(req *fetch.Request) strategy.Kind {
	if w.kind == "" {
		return strategy.Classify(req, strategy.DefaultRules())
	}
	return w.kind
}

func (w *fakeWorker) Fetch(ctx context.Context, req *fetch.Request) (*fetch.Response, bool, error) {
	if w.panicValue != nil {
		panic(w.panicValue)
	}
	w.fetched = req
	if w.Classify(req) == strategy.KindBypass {
		return nil, false, nil
	}
	if w.err != nil {
		return nil, true, w.err
	}
	return w.response.Clone(), true, nil
}

func (w *fakeWorker) Network(ctx context.Context, req *fetch.Request) (*fetch.Response, error) {
	w.network = req
	if w.err != nil {
		return nil, w.err
	}
	return w.response.Clone(), nil
}

func shopRoute() *server.OriginRoute {
	upstream, _ := url.Parse("https://shop.example")
	return &server.OriginRoute{
		Config:      config.OriginConfig{Name: "shop", Domain: "shop.local", Upstream: upstream.String()},
		ListenPort:  5000,
		UpstreamURL: upstream,
	}
}

func newProxyApp(worker Worker, route *server.OriginRoute, logs io.Writer) *fiber.App {
	logger := logrus.New()
	logger.SetOutput(logs)
	logger.SetFormatter(&logrus.JSONFormatter{})
	handler := NewHandler(worker, logger)

	app := fiber.New()
	app.All("/*", func(c fiber.Ctx) error {
		return handler.Handle(c, route)
	})
	return app
}

func TestHandlerServesStoredResponse(t *testing.T) {
	stored := fetch.NewResponse(http.StatusOK, "text/css", []byte("body{}"))
	stored.URL = "https://shop.example/app.css?v=2"
	stored.StoredAt = time.Now()
	stored.Header.Set("Connection", "close")
	worker := &fakeWorker{response: stored}
	logs := &bytes.Buffer{}
	app := newProxyApp(worker, shopRoute(), logs)

	req := httptest.NewRequest(http.MethodGet, "http://shop.local/app.css?v=2", nil)
	req.Host = "shop.local"
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != "body{}" {
		t.Fatalf("unexpected response: %d %q", resp.StatusCode, body)
	}
	if got := worker.fetched.URL.String(); got != "https://shop.example/app.css?v=2" {
		t.Fatalf("target url mismatch: %s", got)
	}
	if resp.Header.Get("X-Swcache-Strategy") != string(strategy.KindCacheFirst) {
		t.Fatalf("strategy header mismatch: %s", resp.Header.Get("X-Swcache-Strategy"))
	}
	if resp.Header.Get("X-Swcache-Source") != sourceStore {
		t.Fatalf("source header mismatch: %s", resp.Header.Get("X-Swcache-Source"))
	}
	if resp.Header.Get("Content-Type") != "text/css" {
		t.Fatalf("content type lost: %s", resp.Header.Get("Content-Type"))
	}
	if !strings.Contains(logs.String(), `"from_store":true`) || !strings.Contains(logs.String(), "proxy_complete") {
		t.Fatalf("expected proxy_complete log with from_store, got %s", logs.String())
	}
}

func TestHandlerForwardsBypassedRequestsWithBody(t *testing.T) {
	created := fetch.NewResponse(http.StatusCreated, "application/json", []byte(`{"id":1}`))
	created.URL = "https://shop.example/api/orders"
	worker := &fakeWorker{response: created}
	app := newProxyApp(worker, shopRoute(), io.Discard)

	req := httptest.NewRequest(http.MethodPost, "http://shop.local/api/orders", strings.NewReader(`{"sku":"a"}`))
	req.Host = "shop.local"
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected upstream status, got %d", resp.StatusCode)
	}
	if worker.network == nil || string(worker.network.Body) != `{"sku":"a"}` {
		t.Fatalf("bypassed request should reach network with body")
	}
	if worker.network.Header.Get("Content-Type") != "application/json" {
		t.Fatalf("request headers should be forwarded")
	}
	if resp.Header.Get("X-Swcache-Strategy") != string(strategy.KindBypass) {
		t.Fatalf("expected bypass strategy header, got %s", resp.Header.Get("X-Swcache-Strategy"))
	}
	if resp.Header.Get("X-Swcache-Source") != sourceNetwork {
		t.Fatalf("expected network source, got %s", resp.Header.Get("X-Swcache-Source"))
	}
}

func TestHandlerReportsNetworkFailure(t *testing.T) {
	worker := &fakeWorker{err: &strategy.NetworkError{URL: "https://shop.example/api", Err: errors.New("refused")}}
	logs := &bytes.Buffer{}
	app := newProxyApp(worker, shopRoute(), logs)

	req := httptest.NewRequest(http.MethodGet, "http://shop.local/api/cart", nil)
	req.Host = "shop.local"
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !bytes.Contains(body, []byte(`"network_failed"`)) {
		t.Fatalf("expected network_failed body, got %s", body)
	}
	if !strings.Contains(logs.String(), "proxy_failed") {
		t.Fatalf("expected failure log, got %s", logs.String())
	}
}

func TestHandlerMarksSyntheticFallback(t *testing.T) {
	worker := &fakeWorker{response: fetch.NewResponse(http.StatusOK, "image/svg+xml", []byte("<svg/>"))}
	app := newProxyApp(worker, shopRoute(), io.Discard)

	req := httptest.NewRequest(http.MethodGet, "http://shop.local/img/a.png", nil)
	req.Host = "shop.local"
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.Header.Get("X-Swcache-Source") != sourceFallback {
		t.Fatalf("expected fallback source, got %s", resp.Header.Get("X-Swcache-Source"))
	}
}

func TestHandlerRecoversPanic(t *testing.T) {
	worker := &fakeWorker{panicValue: "boom"}
	logs := &bytes.Buffer{}
	app := newProxyApp(worker, shopRoute(), logs)

	req := httptest.NewRequest(http.MethodGet, "http://shop.local/", nil)
	req.Host = "shop.local"
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500 for handler panic, got %d", resp.StatusCode)
	}
	if !strings.Contains(logs.String(), "fetch_handler_panic") {
		t.Fatalf("expected panic log, got %s", logs.String())
	}
}

func TestTargetURLForwardMode(t *testing.T) {
	app := fiber.New()
	defer app.Shutdown()

	ctx := app.AcquireCtx(new(fasthttp.RequestCtx))
	defer app.ReleaseCtx(ctx)
	ctx.Request().SetRequestURI("http://cdn.example/lib/app.js?x=1")

	target, err := targetURL(ctx, nil)
	if err != nil {
		t.Fatalf("targetURL error: %v", err)
	}
	if target.String() != "http://cdn.example/lib/app.js?x=1" {
		t.Fatalf("unexpected forward target: %s", target)
	}
}

func TestTargetURLMappedRoute(t *testing.T) {
	app := fiber.New()
	defer app.Shutdown()

	ctx := app.AcquireCtx(new(fasthttp.RequestCtx))
	defer app.ReleaseCtx(ctx)
	ctx.Request().SetRequestURI("/products/1?lang=zh")
	ctx.Request().Header.SetHost("shop.local")

	target, err := targetURL(ctx, shopRoute())
	if err != nil {
		t.Fatalf("targetURL error: %v", err)
	}
	if target.String() != "https://shop.example/products/1?lang=zh" {
		t.Fatalf("unexpected target: %s", target)
	}
}
