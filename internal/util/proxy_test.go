package util

import (
	"net/http"
	"net/url"
	"testing"
)

func proxyFor(t *testing.T, fn func(*http.Request) (*url.URL, error), target string) string {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, target, nil)
	if err != nil {
		t.Fatal(err)
	}
	u, err := fn(req)
	if err != nil {
		t.Fatalf("proxy func failed: %v", err)
	}
	if u == nil {
		return ""
	}
	return u.String()
}

func TestNewProxyFunc_PerScheme(t *testing.T) {
	fn := NewProxyFunc("http://proxy.internal:3128", "http://secure.internal:3129", "")

	if got := proxyFor(t, fn, "http://blockstream.info/api/tx/x"); got != "http://proxy.internal:3128" {
		t.Errorf("http: expected plain proxy, got %q", got)
	}
	if got := proxyFor(t, fn, "https://blockstream.info/api/tx/x"); got != "http://secure.internal:3129" {
		t.Errorf("https: expected secure proxy, got %q", got)
	}
}

func TestNewProxyFunc_NoProxy(t *testing.T) {
	fn := NewProxyFunc("", "http://secure.internal:3129", "mempool.space,.internal.example")

	if got := proxyFor(t, fn, "https://mempool.space/api/tx/x"); got != "" {
		t.Errorf("expected direct connection for excluded host, got %q", got)
	}
	if got := proxyFor(t, fn, "https://api.internal.example/v1"); got != "" {
		t.Errorf("expected direct connection for excluded domain, got %q", got)
	}
	if got := proxyFor(t, fn, "https://blockstream.info/api"); got != "http://secure.internal:3129" {
		t.Errorf("expected proxy for other hosts, got %q", got)
	}
}
