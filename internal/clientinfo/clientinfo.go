// Package clientinfo extracts the request fingerprint stored with every click.
package clientinfo

import (
	"net/http"
	"strings"
	"time"

	"github.com/mssola/user_agent"

	"github.com/marcus7i/ulinks/internal"
)

// Capture reads everything it needs from the request headers. It never fails:
// missing values become internal.Unknown.
func Capture(r *http.Request, now time.Time) internal.ClientInfo {
	ip := ClientIP(r)
	ua := user_agent.New(r.UserAgent())
	browser, version := ua.Browser()

	platform := r.Header.Get("Sec-CH-UA-Platform")
	if platform == "" {
		platform = ua.OS()
	}

	return internal.ClientInfo{
		IPAddress:      ip,
		IPVersion:      internal.IPVersionOf(ip),
		UserAgent:      orUnknown(r.UserAgent()),
		Platform:       orUnknown(platform),
		Browser:        orUnknown(browser),
		Version:        orUnknown(version),
		Language:       orUnknown(primaryLanguage(r.Header.Get("Accept-Language"))),
		Referrer:       orUnknown(r.Referer()),
		RemotePort:     orUnknown(r.Header.Get("X-Forwarded-Port")),
		Accept:         orUnknown(r.Header.Get("Accept")),
		AcceptLanguage: orUnknown(r.Header.Get("Accept-Language")),
		AcceptEncoding: orUnknown(r.Header.Get("Accept-Encoding")),
		Country:        orUnknown(r.Header.Get("CF-IPCountry")),
		Timestamp:      now,
	}
}

// ClientIP walks the proxy header chain: connecting IP, real IP, then the first
// forwarded-for hop.
func ClientIP(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("CF-Connecting-IP")); ip != "" {
		return ip
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	return internal.Unknown
}

func primaryLanguage(header string) string {
	first, _, _ := strings.Cut(header, ",")
	return strings.TrimSpace(first)
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return internal.Unknown
	}
	return s
}
