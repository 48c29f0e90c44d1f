package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewClientUsesTimeout(t *testing.T) {
	client := NewClient(45 * time.Second)
	if client.Timeout() != 45*time.Second {
		t.Fatalf("expected timeout 45s, got %s", client.Timeout())
	}
	if NewClient(-1).Timeout() != 0 {
		t.Fatalf("negative timeout should disable client timeout")
	}
}

func TestCopyHeadersSkipsHopByHop(t *testing.T) {
	src := http.Header{}
	src.Add("Connection", "keep-alive")
	src.Add("Keep-Alive", "timeout=5")
	src.Add("X-Test-Header", "1")
	src.Add("x-test-header", "2")

	dst := http.Header{}
	CopyHeaders(dst, src)

	if _, exists := dst["Connection"]; exists {
		t.Fatalf("connection header should not be copied")
	}
	if _, exists := dst["Keep-Alive"]; exists {
		t.Fatalf("keep-alive header should not be copied")
	}
	if got := dst.Values("X-Test-Header"); len(got) != 2 {
		t.Fatalf("expected 2 values, got %v", got)
	}
}

func TestClientFetchBuffersBody(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-From-App") != "yes" {
			t.Errorf("request header not forwarded")
		}
		w.Header().Set("Content-Type", "text/css")
		w.Header().Set("Connection", "close")
		_, _ = w.Write([]byte("body{}"))
	}))
	defer upstream.Close()

	header := http.Header{}
	header.Set("X-From-App", "yes")
	req := MustRequest(http.MethodGet, upstream.URL+"/app.css", header)

	resp, err := NewClientWith(upstream.Client()).Fetch(context.Background(), req)
	if err != nil {
		t.Fatalf("fetch error: %v", err)
	}
	if resp.Status != http.StatusOK || string(resp.Body) != "body{}" {
		t.Fatalf("unexpected response: %d %q", resp.Status, resp.Body)
	}
	if resp.ContentType() != "text/css" {
		t.Fatalf("content type lost: %s", resp.ContentType())
	}
	if resp.Header.Get("Connection") != "" {
		t.Fatalf("hop-by-hop header should be stripped")
	}
	if resp.URL != req.URL.String() {
		t.Fatalf("response url mismatch: %s", resp.URL)
	}
}

func TestClientFetchReportsTransportError(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := upstream.URL
	upstream.Close()

	_, err := NewClient(time.Second).Fetch(context.Background(), MustRequest(http.MethodGet, url+"/x", nil))
	if err == nil {
		t.Fatalf("expected transport error for closed upstream")
	}
}
