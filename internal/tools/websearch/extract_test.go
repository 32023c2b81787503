package websearch

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func newTestExtractor() *ContentExtractor {
	return newContentExtractor(nil)
}

func TestExtractReadable(t *testing.T) {
	page := `<!doctype html>
<html><head>
<title>Go Release Notes</title>
<meta name="description" content="What changed in Go.">
<script>var tracking = 1;</script>
<style>body{color:red}</style>
</head><body>
<nav>Home | Blog</nav>
<main><h1>Go 1.24</h1><p>Generic   type aliases
are now supported.</p><ul><li>One</li><li>Two</li></ul></main>
<footer>copyright</footer>
</body></html>`

	got, err := extractReadable(strings.NewReader(page))
	if err != nil {
		t.Fatalf("extractReadable() error = %v", err)
	}
	for _, want := range []string{"Title: Go Release Notes", "Description: What changed in Go.", "Go 1.24", "Generic type aliases are now supported.", "One\nTwo"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	for _, unwanted := range []string{"tracking", "color:red", "Home | Blog", "copyright"} {
		if strings.Contains(got, unwanted) {
			t.Errorf("output contains %q:\n%s", unwanted, got)
		}
	}
}

func TestExtractReadableFallsBackToBody(t *testing.T) {
	got, err := extractReadable(strings.NewReader(`<html><body><div>plain body text</div></body></html>`))
	if err != nil {
		t.Fatalf("extractReadable() error = %v", err)
	}
	if got != "plain body text" {
		t.Errorf("got %q, want %q", got, "plain body text")
	}
}

func TestValidateURL(t *testing.T) {
	tests := []struct {
		url     string
		wantErr bool
	}{
		{"https://93.184.216.34/page", false},
		{"ftp://example.com/file", true},
		{"http://localhost:8080", true},
		{"http://api.localhost/", true},
		{"http://127.0.0.1/", true},
		{"http://10.0.0.8/", true},
		{"http://169.254.169.254/latest/meta-data", true},
		{"http:///nohost", true},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			err := validateURL(tt.url, isPrivateOrReservedIP)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateURL(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
		})
	}
}

func TestIsPrivateOrReservedIP(t *testing.T) {
	for ip, want := range map[string]bool{
		"127.0.0.1":   true,
		"192.168.1.1": true,
		"::1":         true,
		"fe80::1":     true,
		"8.8.8.8":     false,
	} {
		if got := isPrivateOrReservedIP(net.ParseIP(ip)); got != want {
			t.Errorf("isPrivateOrReservedIP(%s) = %v, want %v", ip, got, want)
		}
	}
}

func TestExtractRejectsRedirectToPrivateAddress(t *testing.T) {
	// Loopback is allowed so the origin server is reachable; every other
	// private range stays blocked.
	e := newContentExtractor(func(ip net.IP) bool {
		return !ip.IsLoopback() && isPrivateOrReservedIP(ip)
	})

	for _, target := range []string{
		"http://169.254.169.254/latest/meta-data/",
		"http://10.0.0.8/admin",
		"http://192.168.1.1/",
	} {
		t.Run(target, func(t *testing.T) {
			var hops atomic.Int32
			origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				hops.Add(1)
				http.Redirect(w, r, target, http.StatusFound)
			}))
			defer origin.Close()

			_, err := e.Extract(context.Background(), origin.URL)
			if !errors.Is(err, errPrivateAddress) {
				t.Fatalf("Extract() error = %v, want %v", err, errPrivateAddress)
			}
			if n := hops.Load(); n != 1 {
				t.Errorf("origin hit %d times, want 1", n)
			}
		})
	}
}

func TestExtractFollowsAllowedRedirect(t *testing.T) {
	final := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("landed"))
	}))
	defer final.Close()
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, final.URL, http.StatusMovedPermanently)
	}))
	defer origin.Close()

	got, err := newTestExtractor().Extract(context.Background(), origin.URL)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if got != "landed" {
		t.Errorf("Extract() = %q, want %q", got, "landed")
	}
}

func TestRedirectGuard(t *testing.T) {
	guard := redirectGuard(isPrivateOrReservedIP)
	tests := []struct {
		target  string
		via     int
		wantErr bool
	}{
		{"https://93.184.216.34/next", 1, false},
		{"http://127.0.0.1:8080/", 1, true},
		{"http://localhost/", 1, true},
		{"http://[::1]/", 1, true},
		{"file:///etc/passwd", 1, true},
		{"https://93.184.216.34/loop", maxRedirects, true},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			via := make([]*http.Request, tt.via)
			if err := guard(req, via); (err != nil) != tt.wantErr {
				t.Errorf("guard(%s) error = %v, wantErr %v", tt.target, err, tt.wantErr)
			}
		})
	}
}

func TestDialGuard(t *testing.T) {
	guard := dialGuard(isPrivateOrReservedIP)
	for address, want := range map[string]error{
		"93.184.216.34:443":  nil,
		"127.0.0.1:80":       errPrivateAddress,
		"169.254.169.254:80": errPrivateAddress,
		"[fe80::1]:80":       errPrivateAddress,
	} {
		if err := guard("tcp", address, nil); !errors.Is(err, want) {
			t.Errorf("guard(%s) = %v, want %v", address, err, want)
		}
	}
}

func TestExtractRejectsUnsupportedContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte{0x89, 'P', 'N', 'G'})
	}))
	defer srv.Close()

	_, err := newTestExtractor().Extract(context.Background(), srv.URL)
	if err == nil || !strings.Contains(err.Error(), "unsupported content type") {
		t.Errorf("Extract() error = %v, want unsupported content type", err)
	}
}

func TestTruncateRunes(t *testing.T) {
	got, truncated := truncateRunes("héllo wörld", 5)
	if got != "héllo..." || !truncated {
		t.Errorf("truncateRunes() = %q, %v", got, truncated)
	}
	got, truncated = truncateRunes("short", 10)
	if got != "short" || truncated {
		t.Errorf("truncateRunes() = %q, %v", got, truncated)
	}
}
