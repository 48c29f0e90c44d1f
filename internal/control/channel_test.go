package control

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/swcache/internal/cache"
	"github.com/any-hub/swcache/internal/clients"
	"github.com/any-hub/swcache/internal/fetch"
)

type fakeLifecycle struct {
	skips int
	err   error
}

func (f *fakeLifecycle) SkipWaiting(context.Context) error {
	f.skips++
	return f.err
}

func newTestChannel(t *testing.T) (*Channel, *fakeLifecycle, cache.Storage, *clients.Registry) {
	t.Helper()
	storage, err := cache.NewMemoryStorage()
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	t.Cleanup(func() { _ = storage.Close() })

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	lc := &fakeLifecycle{}
	registry := clients.NewRegistry()
	ch := NewChannel(Options{
		Lifecycle: lc,
		Storage:   storage,
		Replier:   registry,
		Version:   "2.4.0",
		Logger:    logger,
	})
	return ch, lc, storage, registry
}

func TestVersionQueryRepliesToSource(t *testing.T) {
	ch, _, _, registry := newTestChannel(t)
	page := registry.Register("https://shop.example/")

	msg, err := Decode([]byte(`{"action":"version-query"}`))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	reply, err := ch.Dispatch(context.Background(), msg, page.ID)
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if reply == nil || reply.Action != "version-response" || reply.Version != "2.4.0" {
		t.Fatalf("unexpected reply %+v", reply)
	}

	posted, _ := registry.Drain(page.ID)
	if len(posted) != 1 {
		t.Fatalf("expected one posted reply, got %d", len(posted))
	}
	var got map[string]string
	if err := json.Unmarshal(posted[0], &got); err != nil {
		t.Fatalf("posted reply is not json: %v", err)
	}
	if got["action"] != "version-response" || got["version"] != "2.4.0" {
		t.Fatalf("unexpected posted reply %v", got)
	}
}

func TestForceActivateSkipsWaiting(t *testing.T) {
	ch, lc, _, _ := newTestChannel(t)
	if _, err := ch.Dispatch(context.Background(), Message{Action: ActionForceActivate}, ""); err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if lc.skips != 1 {
		t.Fatalf("expected SkipWaiting once, got %d", lc.skips)
	}

	lc.err = errors.New("activation failed")
	if _, err := ch.Dispatch(context.Background(), Message{Action: ActionForceActivate}, ""); err == nil {
		t.Fatalf("lifecycle error should propagate")
	}
}

func TestClearAllCachesDeletesEveryStore(t *testing.T) {
	ch, _, storage, _ := newTestChannel(t)
	ctx := context.Background()
	for _, name := range []string{"shop-v1", "shop-v2", "shop-dynamic"} {
		store, _ := storage.Open(ctx, name)
		_ = store.Put(ctx, "GET https://shop.example/", fetch.NewResponse(http.StatusOK, "text/html", []byte("x")))
	}

	if _, err := ch.Dispatch(ctx, Message{Action: ActionClearAllCaches}, ""); err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	names, _ := storage.Names(ctx)
	if len(names) != 0 {
		t.Fatalf("expected no stores, got %v", names)
	}
}

func TestUnrecognizedMessageIgnored(t *testing.T) {
	ch, lc, _, _ := newTestChannel(t)
	reply, err := ch.Dispatch(context.Background(), Message{Action: "reboot"}, "")
	if err != nil || reply != nil {
		t.Fatalf("unknown message should be ignored, got %v %v", reply, err)
	}
	if lc.skips != 0 {
		t.Fatalf("unknown message must not touch lifecycle")
	}
	if _, err := Decode([]byte(`not json`)); err == nil {
		t.Fatalf("invalid json should fail to decode")
	}
}
