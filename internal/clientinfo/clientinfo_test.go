package clientinfo

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/marcus7i/ulinks/internal"
)

const firefoxLinux = "Mozilla/5.0 (X11; Linux x86_64; rv:120.0) Gecko/20100101 Firefox/120.0"

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"connecting ip wins", map[string]string{"CF-Connecting-IP": "1.1.1.1", "X-Real-IP": "2.2.2.2", "X-Forwarded-For": "3.3.3.3"}, "1.1.1.1"},
		{"real ip", map[string]string{"X-Real-IP": "2.2.2.2", "X-Forwarded-For": "3.3.3.3"}, "2.2.2.2"},
		{"first forwarded hop", map[string]string{"X-Forwarded-For": " 3.3.3.3 , 4.4.4.4"}, "3.3.3.3"},
		{"ipv6", map[string]string{"X-Real-IP": "2001:db8::1"}, "2001:db8::1"},
		{"nothing", nil, internal.Unknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/l/abc", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIP(req))
		})
	}
}

func TestCapture(t *testing.T) {
	now := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)

	t.Run("full headers", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/l/abc", nil)
		req.Header.Set("User-Agent", firefoxLinux)
		req.Header.Set("X-Forwarded-For", "2001:db8::7, 10.0.0.1")
		req.Header.Set("Accept-Language", "de-DE,de;q=0.9,en;q=0.8")
		req.Header.Set("Referer", "https://news.example")
		req.Header.Set("Accept", "text/html")
		req.Header.Set("Accept-Encoding", "gzip")
		req.Header.Set("X-Forwarded-Port", "443")
		req.Header.Set("CF-IPCountry", "DE")

		info := Capture(req, now)
		assert.Equal(t, "2001:db8::7", info.IPAddress)
		assert.Equal(t, internal.IPv6, info.IPVersion)
		assert.Equal(t, "Firefox", info.Browser)
		assert.Equal(t, "120.0", info.Version)
		assert.Contains(t, info.Platform, "Linux")
		assert.Equal(t, "de-DE", info.Language)
		assert.Equal(t, "https://news.example", info.Referrer)
		assert.Equal(t, "443", info.RemotePort)
		assert.Equal(t, "DE", info.Country)
		assert.Equal(t, now, info.Timestamp)
	})

	t.Run("client hint platform wins over parsed os", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/l/abc", nil)
		req.Header.Set("User-Agent", firefoxLinux)
		req.Header.Set("Sec-CH-UA-Platform", `"Windows"`)

		assert.Equal(t, `"Windows"`, Capture(req, now).Platform)
	})

	t.Run("missing headers default to Unknown", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/l/abc", nil)
		req.Header.Del("User-Agent")

		info := Capture(req, now)
		assert.Equal(t, internal.Unknown, info.IPAddress)
		assert.Equal(t, internal.IPv4, info.IPVersion)
		assert.Equal(t, internal.Unknown, info.UserAgent)
		assert.Equal(t, internal.Unknown, info.Platform)
		assert.Equal(t, internal.Unknown, info.Browser)
		assert.Equal(t, internal.Unknown, info.Language)
		assert.Equal(t, internal.Unknown, info.Referrer)
		assert.Equal(t, internal.Unknown, info.Accept)
		assert.Equal(t, internal.Unknown, info.AcceptEncoding)
		assert.Equal(t, internal.Unknown, info.Country)
	})
}
