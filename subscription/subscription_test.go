package subscription

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleSubscription = `proxies:
  - name: "sg-01"
    type: ss
    server: 1.2.3.4
    port: 8388
    cipher: aes-128-gcm
    password: secret
  - name: "kr-01"
    type: vmess
    server: 5.6.7.8
    port: 443
    uuid: 11111111-1111-1111-1111-111111111111
    alterId: 0
    tls: true
    network: ws
    ws-opts:
      path: /ws
      headers:
        Host: example.com
  - name: "other"
    type: trojan
    server: 9.9.9.9
    port: 443
    password: secret
`

func TestParseSubscription(t *testing.T) {
	nodes, err := Parse([]byte(sampleSubscription))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(nodes) != 3 {
		t.Fatalf("expected 3 nodes, got %d", len(nodes))
	}
	if nodes[0].Name != "sg-01" || nodes[0].Protocol() != ProtocolShadowsocks {
		t.Fatalf("unexpected first node: %+v", nodes[0])
	}
	if !nodes[0].Usable() || !nodes[1].Usable() {
		t.Fatalf("expected first two nodes usable")
	}
	if nodes[1].WSOpts == nil || nodes[1].WSOpts.Path != "/ws" {
		t.Fatalf("ws-opts not decoded: %+v", nodes[1].WSOpts)
	}
	if nodes[1].WSOpts.Headers["Host"] != "example.com" {
		t.Fatalf("ws headers not decoded: %+v", nodes[1].WSOpts.Headers)
	}
	if nodes[2].Usable() {
		t.Fatalf("trojan node should not be usable")
	}
}

func TestParseRejectsEmptySubscription(t *testing.T) {
	for _, raw := range []string{"", "proxies: []", "rules: []"} {
		if _, err := Parse([]byte(raw)); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestParseRejectsInvalidYAML(t *testing.T) {
	if _, err := Parse([]byte("proxies: [unterminated")); err == nil {
		t.Fatalf("expected yaml error")
	}
}

func TestFetchWritesCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); !strings.HasPrefix(ua, "routebox-subscription/") {
			t.Errorf("unexpected user agent: %q", ua)
		}
		_, _ = w.Write([]byte(sampleSubscription))
	}))
	defer srv.Close()

	cachePath := filepath.Join(t.TempDir(), "cache", "subscription.yaml")
	raw, err := Fetch(context.Background(), srv.URL, cachePath)
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if string(raw) != sampleSubscription {
		t.Fatalf("unexpected body: %q", raw)
	}
	cached, err := os.ReadFile(cachePath)
	if err != nil {
		t.Fatalf("cache not written: %v", err)
	}
	if string(cached) != sampleSubscription {
		t.Fatalf("cache mismatch")
	}
}

func TestFetchRejectsBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()

	if _, err := Fetch(context.Background(), srv.URL, filepath.Join(t.TempDir(), "sub.yaml")); err == nil {
		t.Fatalf("expected status error")
	}
}

func TestReadCachedMissing(t *testing.T) {
	_, err := ReadCached(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil || !strings.Contains(err.Error(), "routebox update") {
		t.Fatalf("expected actionable error, got %v", err)
	}
}
