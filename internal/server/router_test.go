package server

import (
	"bytes"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
)

func TestRouterRoutesRequestWhenHostMatches(t *testing.T) {
	app := newTestApp(t, false)

	req := httptest.NewRequest("GET", "http://shop.local/index.html", nil)
	req.Host = "shop.local"

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusNoContent {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected 204 status, got %d (body=%s)", resp.StatusCode, string(body))
	}
	if app.recorder.routeName != "shop" {
		t.Fatalf("expected shop route, got %q", app.recorder.routeName)
	}
	if reqID := resp.Header.Get("X-Request-ID"); reqID == "" {
		t.Fatalf("expected X-Request-ID header to be set")
	}
}

func TestRouterReturns404WhenHostUnknown(t *testing.T) {
	app := newTestApp(t, false)

	req := httptest.NewRequest("GET", "http://unknown.local/", nil)
	req.Host = "unknown.local"

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("expected 404 status, got %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Swcache-Host") != "unknown.local" {
		t.Fatalf("expected unmapped host header, got %q", resp.Header.Get("X-Swcache-Host"))
	}
	body, _ := io.ReadAll(resp.Body)
	if !bytes.Contains(body, []byte(`"host_unmapped"`)) {
		t.Fatalf("expected host_unmapped error, got %s", string(body))
	}
	if app.recorder.calls != 0 {
		t.Fatalf("proxy should not be invoked for unmapped host")
	}
}

func TestRouterForwardsUnknownHostWhenAllowed(t *testing.T) {
	app := newTestApp(t, true)

	req := httptest.NewRequest("GET", "http://cdn.example/app.js", nil)
	req.Host = "cdn.example"

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusNoContent {
		t.Fatalf("expected forward mode to reach proxy, got %d", resp.StatusCode)
	}
	if app.recorder.lastRoute != nil {
		t.Fatalf("forward request should carry nil route")
	}
}

func TestRouterLeavesDiagnosticsToRoutes(t *testing.T) {
	app := newTestApp(t, false, func(a *fiber.App) {
		a.Get("/-/ping", func(c fiber.Ctx) error { return c.SendString("pong") })
	})

	resp, err := app.Test(httptest.NewRequest("GET", "http://any.host/-/ping", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != fiber.StatusOK || string(body) != "pong" {
		t.Fatalf("diagnostics route should bypass host lookup: %d %s", resp.StatusCode, body)
	}

	resp, err = app.Test(httptest.NewRequest("GET", "http://any.host/-/missing", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusNotFound || app.recorder.calls != 0 {
		t.Fatalf("unknown diagnostics path should 404 without proxying, got %d", resp.StatusCode)
	}
}

type testApp struct {
	*fiber.App
	recorder *proxyRecorder
}

// newTestApp 构造测试用应用，routes 会在兜底代理路由之前注册。
func newTestApp(t *testing.T, allowForward bool, routes ...func(*fiber.App)) *testApp {
	t.Helper()

	cfg := testConfig()
	cfg.Global.AllowForward = allowForward
	registry, err := NewOriginRegistry(cfg)
	if err != nil {
		t.Fatalf("failed to create registry: %v", err)
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	recorder := &proxyRecorder{}
	opts := AppOptions{
		Logger:     logger,
		Registry:   registry,
		Proxy:      recorder,
		ListenPort: 5000,
	}
	app, err := NewApp(opts)
	if err != nil {
		t.Fatalf("failed to create app: %v", err)
	}
	for _, register := range routes {
		register(app)
	}
	MountProxy(app, opts)
	return &testApp{App: app, recorder: recorder}
}

type proxyRecorder struct {
	lastRoute *OriginRoute
	routeName string
	calls     int
}

func (p *proxyRecorder) Handle(c fiber.Ctx, route *OriginRoute) error {
	p.calls++
	p.lastRoute = route
	if route != nil {
		p.routeName = route.Config.Name
	}
	return c.SendStatus(fiber.StatusNoContent)
}
