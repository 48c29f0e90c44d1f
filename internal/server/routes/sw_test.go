package routes

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/swcache/internal/cache"
	"github.com/any-hub/swcache/internal/clients"
	"github.com/any-hub/swcache/internal/config"
	"github.com/any-hub/swcache/internal/control"
	"github.com/any-hub/swcache/internal/fetch"
	"github.com/any-hub/swcache/internal/server"
	"github.com/any-hub/swcache/internal/strategy"
	"github.com/any-hub/swcache/internal/worker"
)

func newUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/", "/index.html":
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte("<html>shop</html>"))
		case "/logo.png":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write([]byte("PNG"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(upstream.Close)
	return upstream
}

func newRoutesApp(t *testing.T) (*fiber.App, *worker.Worker, string) {
	t.Helper()
	upstream := newUpstream(t)

	storage, err := cache.NewMemoryStorage()
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	t.Cleanup(func() { _ = storage.Close() })

	cfg := &config.Config{
		Global: config.GlobalConfig{ListenPort: 5000, StorageDriver: "memory"},
		App: config.AppConfig{
			AppName:      "shop",
			Version:      "1",
			Origin:       upstream.URL,
			DynamicStore: "shop-dynamic",
			ClaimClients: true,
			Precache:     []string{"/", "/index.html", "logo.png"},
		},
		Origins: []config.OriginConfig{{Name: "shop", Domain: "shop.local", Upstream: upstream.URL}},
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	w, err := worker.New(worker.Options{
		Config:  cfg,
		Storage: storage,
		Fetcher: fetch.NewClient(0),
		Logger:  logger,
	})
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}
	t.Cleanup(w.Close)

	registry, err := server.NewOriginRegistry(cfg)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}

	app := fiber.New()
	RegisterWorkerRoutes(app, w, logger)
	RegisterOriginRoutes(app, registry)
	return app, w, upstream.URL
}

func doJSON(t *testing.T, app *fiber.App, method, target, body string, header map[string]string, out any) int {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test %s %s failed: %v", method, target, err)
	}
	defer resp.Body.Close()
	if out != nil {
		raw, _ := io.ReadAll(resp.Body)
		if err := json.Unmarshal(raw, out); err != nil {
			t.Fatalf("decode %s %s: %v (body=%s)", method, target, err, raw)
		}
	}
	return resp.StatusCode
}

func TestInstallRouteActivatesAndListsStores(t *testing.T) {
	app, _, _ := newRoutesApp(t)

	var state statePayload
	if status := doJSON(t, app, http.MethodPost, "/-/sw/install", "", nil, &state); status != http.StatusOK {
		t.Fatalf("install status %d", status)
	}
	if state.Lifecycle.Active == nil || state.Lifecycle.Active.Version != "1" {
		t.Fatalf("expected v1 active, got %+v", state.Lifecycle)
	}
	if state.Version != "1" {
		t.Fatalf("unexpected version %s", state.Version)
	}

	var stores struct {
		Stores []worker.StoreSummary `json:"stores"`
	}
	if status := doJSON(t, app, http.MethodGet, "/-/sw/stores", "", nil, &stores); status != http.StatusOK {
		t.Fatalf("stores status %d", status)
	}
	if len(stores.Stores) != 1 || stores.Stores[0].Name != "shop-v1" || stores.Stores[0].Entries != 3 || !stores.Stores[0].Current {
		t.Fatalf("unexpected stores: %+v", stores.Stores)
	}
}

func TestActivateWithoutWaitingConflicts(t *testing.T) {
	app, _, _ := newRoutesApp(t)

	var body map[string]string
	if status := doJSON(t, app, http.MethodPost, "/-/sw/activate", "", nil, &body); status != http.StatusConflict {
		t.Fatalf("expected 409, got %d", status)
	}
	if body["error"] != "no_waiting_generation" {
		t.Fatalf("unexpected error body: %v", body)
	}
}

func TestMessageRouteRepliesToClient(t *testing.T) {
	app, _, origin := newRoutesApp(t)

	var client clients.Client
	if status := doJSON(t, app, http.MethodPost, "/-/sw/clients", `{"url":"`+origin+`/"}`, nil, &client); status != http.StatusCreated {
		t.Fatalf("open client status %d", status)
	}
	if client.ID == "" {
		t.Fatalf("client id missing")
	}

	var reply control.Message
	status := doJSON(t, app, http.MethodPost, "/-/sw/message", `{"action":"version-query"}`,
		map[string]string{"X-Client-ID": client.ID, "Content-Type": "application/json"}, &reply)
	if status != http.StatusOK {
		t.Fatalf("message status %d", status)
	}
	if reply.Action != control.ActionVersionResponse || reply.Version != "1" {
		t.Fatalf("unexpected reply: %+v", reply)
	}

	var queued struct {
		Messages []control.Message `json:"messages"`
	}
	if status := doJSON(t, app, http.MethodGet, "/-/sw/clients/"+client.ID+"/messages", "", nil, &queued); status != http.StatusOK {
		t.Fatalf("drain status %d", status)
	}
	if len(queued.Messages) != 1 || queued.Messages[0].Version != "1" {
		t.Fatalf("expected queued version reply, got %+v", queued.Messages)
	}
}

func TestMessageRouteRejectsInvalidBody(t *testing.T) {
	app, _, _ := newRoutesApp(t)

	if status := doJSON(t, app, http.MethodPost, "/-/sw/message", "not json", nil, nil); status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", status)
	}
	if status := doJSON(t, app, http.MethodPost, "/-/sw/message", `{"action":"reload-everything"}`, nil, nil); status != http.StatusNoContent {
		t.Fatalf("unknown action should be ignored with 204, got %d", status)
	}
	if status := doJSON(t, app, http.MethodPost, "/-/sw/clients", `{}`, nil, nil); status != http.StatusBadRequest {
		t.Fatalf("client without url should be rejected, got %d", status)
	}
}

func TestPushAndNotificationClick(t *testing.T) {
	app, _, origin := newRoutesApp(t)

	var n clients.Notification
	status := doJSON(t, app, http.MethodPost, "/-/sw/push", `{"title":"Order shipped","body":"#42","url":"/orders/42"}`, nil, &n)
	if status != http.StatusCreated {
		t.Fatalf("push status %d", status)
	}
	if n.Title != "Order shipped" || n.Data.URL != "/orders/42" {
		t.Fatalf("unexpected notification: %+v", n)
	}

	var listed struct {
		Notifications []clients.Notification `json:"notifications"`
	}
	doJSON(t, app, http.MethodGet, "/-/sw/notifications", "", nil, &listed)
	if len(listed.Notifications) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(listed.Notifications))
	}

	var focused clients.Client
	if status := doJSON(t, app, http.MethodPost, "/-/sw/notifications/"+n.ID+"/click", "", nil, &focused); status != http.StatusOK {
		t.Fatalf("click status %d", status)
	}
	if focused.URL != origin+"/orders/42" || !focused.Focused {
		t.Fatalf("expected a focused window on the order page, got %+v", focused)
	}
	if status := doJSON(t, app, http.MethodPost, "/-/sw/notifications/"+n.ID+"/click", "", nil, nil); status != http.StatusNotFound {
		t.Fatalf("closed notification should 404, got %d", status)
	}
}

func TestMalformedPushIsAccepted(t *testing.T) {
	app, w, _ := newRoutesApp(t)

	if status := doJSON(t, app, http.MethodPost, "/-/sw/push", "{broken", nil, nil); status != http.StatusAccepted {
		t.Fatalf("expected 202 for malformed payload, got %d", status)
	}
	if len(w.Notifications().List()) != 0 {
		t.Fatalf("malformed payload must not show a notification")
	}
}

func TestSyncRoutesIgnoreUnknownTags(t *testing.T) {
	app, _, _ := newRoutesApp(t)

	if status := doJSON(t, app, http.MethodPost, "/-/sw/sync", `{"tag":"other"}`, nil, nil); status != http.StatusNoContent {
		t.Fatalf("unknown sync tag should be ignored, got %d", status)
	}
	// 未配置 SyncOrdersURL 时 flush 为空操作
	if status := doJSON(t, app, http.MethodPost, "/-/sw/sync", "", nil, nil); status != http.StatusNoContent {
		t.Fatalf("default sync tag should succeed, got %d", status)
	}
	if status := doJSON(t, app, http.MethodPost, "/-/sw/periodicsync", `{"tag":`, nil, nil); status != http.StatusBadRequest {
		t.Fatalf("broken tag body should be rejected, got %d", status)
	}
}

func TestCloseClientRoute(t *testing.T) {
	app, w, origin := newRoutesApp(t)

	page := w.OpenClient(origin + "/")
	if status := doJSON(t, app, http.MethodDelete, "/-/sw/clients/"+page.ID, "", nil, nil); status != http.StatusOK {
		t.Fatalf("close status %d", status)
	}
	if status := doJSON(t, app, http.MethodDelete, "/-/sw/clients/"+page.ID, "", nil, nil); status != http.StatusNotFound {
		t.Fatalf("second close should 404, got %d", status)
	}
}

func TestOriginAndStrategyRoutes(t *testing.T) {
	app, _, origin := newRoutesApp(t)

	var origins struct {
		Origins      []originBindingPayload `json:"origins"`
		AllowForward bool                   `json:"allow_forward"`
	}
	doJSON(t, app, http.MethodGet, "/-/sw/origins", "", nil, &origins)
	if len(origins.Origins) != 1 || origins.Origins[0].Domain != "shop.local" || origins.Origins[0].Upstream != origin {
		t.Fatalf("unexpected origins: %+v", origins)
	}

	var strategies struct {
		Strategies []strategy.Metadata `json:"strategies"`
	}
	doJSON(t, app, http.MethodGet, "/-/sw/strategies", "", nil, &strategies)
	want := map[strategy.Kind]bool{
		strategy.KindCacheFirst:         true,
		strategy.KindImageCacheFirst:    true,
		strategy.KindNetworkFirst:       true,
		strategy.KindNetworkFirstUpdate: true,
	}
	if len(strategies.Strategies) != len(want) {
		t.Fatalf("expected %d built-in strategies, got %+v", len(want), strategies.Strategies)
	}
	for _, meta := range strategies.Strategies {
		if !want[meta.Key] {
			t.Fatalf("unexpected strategy %q", meta.Key)
		}
	}
	if status := doJSON(t, app, http.MethodGet, "/-/sw/strategies/cache-first", "", nil, nil); status != http.StatusOK {
		t.Fatalf("strategy detail status %d", status)
	}
	if status := doJSON(t, app, http.MethodGet, "/-/sw/strategies/unknown", "", nil, nil); status != http.StatusNotFound {
		t.Fatalf("unknown strategy should 404, got %d", status)
	}
}
