package server

import (
	"testing"

	"github.com/any-hub/swcache/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Global: config.GlobalConfig{ListenPort: 5000},
		Origins: []config.OriginConfig{
			{Name: "shop", Domain: "shop.local", Upstream: "https://shop.example"},
			{Name: "api", Domain: "API.shop.local.", Upstream: "https://api.shop.example"},
		},
	}
}

func TestOriginRegistryLookupByHost(t *testing.T) {
	registry, err := NewOriginRegistry(testConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	route, ok := registry.Lookup("shop.local")
	if !ok {
		t.Fatalf("expected shop route")
	}
	if route.Config.Name != "shop" {
		t.Fatalf("wrong origin returned: %s", route.Config.Name)
	}
	if route.UpstreamURL.String() != "https://shop.example" {
		t.Fatalf("unexpected upstream URL: %s", route.UpstreamURL)
	}
	if route.ListenPort != 5000 {
		t.Fatalf("route listen port mismatch: %d", route.ListenPort)
	}
	if _, ok := registry.Lookup("api.shop.local"); !ok {
		t.Fatalf("domain should be normalized to lowercase without trailing dot")
	}
	if got := len(registry.List()); got != 2 {
		t.Fatalf("expected 2 routes, got %d", got)
	}
	if registry.AllowForward() {
		t.Fatalf("forward mode should be off by default")
	}
}

func TestOriginRegistryIgnoresHostPort(t *testing.T) {
	registry, err := NewOriginRegistry(testConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := registry.Lookup("shop.local:6000"); !ok {
		t.Fatalf("expected lookup to ignore host header port")
	}
	if _, ok := registry.Lookup("unknown.local"); ok {
		t.Fatalf("unknown host should not match")
	}
}

func TestOriginRegistryRejectsDuplicateDomains(t *testing.T) {
	cfg := testConfig()
	cfg.Origins[1].Domain = "shop.local"
	if _, err := NewOriginRegistry(cfg); err == nil {
		t.Fatalf("expected duplicate domain error")
	}
}

func TestOriginRegistryRejectsBadUpstream(t *testing.T) {
	cfg := testConfig()
	cfg.Origins[0].Upstream = "not a url"
	if _, err := NewOriginRegistry(cfg); err == nil {
		t.Fatalf("expected upstream parse error")
	}
}
