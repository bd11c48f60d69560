package internal

import (
	"strings"
	"time"
)

const (
	IPv4 = "IPv4"
	IPv6 = "IPv6"

	// Unknown is stored for any fingerprint field the client did not send.
	Unknown = "Unknown"
)

type Account struct {
	AccountID string    `json:"account_id"`
	IsAdmin   bool      `json:"is_admin"`
	CreatedAt time.Time `json:"created_at"`
}

type Session struct {
	ID               string    `json:"id"`
	AccountID        string    `json:"account_id"`
	UserAgent        string    `json:"user_agent"`
	IPAddress        string    `json:"ip_address"`
	CreatedAt        time.Time `json:"created_at"`
	LastActive       time.Time `json:"last_active"`
	ExpiresAt        time.Time `json:"expires_at"`
	IsCurrentSession bool      `json:"is_current_session,omitempty"`
}

// Active reports whether the session has not yet reached its absolute expiry.
func (s *Session) Active(now time.Time) bool {
	return now.Before(s.ExpiresAt)
}

type Link struct {
	ShortID      string    `json:"short_id"`
	TargetURL    string    `json:"target_url"`
	AccountID    string    `json:"account_id"`
	CreatedAt    time.Time `json:"created_at"`
	LastModified time.Time `json:"last_modified"`
}

// IPLookup is a cached geolocation result for one address.
type IPLookup struct {
	IPAddress string    `json:"ip_address"`
	IPVersion string    `json:"ip_version"`
	ISP       string    `json:"isp"`
	Country   string    `json:"country"`
	Timestamp time.Time `json:"timestamp"`
}

// Fresh reports whether the entry is younger than window at now.
func (l *IPLookup) Fresh(now time.Time, window time.Duration) bool {
	return now.Sub(l.Timestamp) < window
}

// ClientInfo is the request fingerprint captured synchronously on redirect.
type ClientInfo struct {
	IPAddress      string    `json:"ip_address"`
	IPVersion      string    `json:"ip_version"`
	UserAgent      string    `json:"user_agent"`
	Platform       string    `json:"platform"`
	Browser        string    `json:"browser"`
	Version        string    `json:"version"`
	Language       string    `json:"language"`
	Referrer       string    `json:"referrer"`
	RemotePort     string    `json:"remote_port"`
	Accept         string    `json:"accept"`
	AcceptLanguage string    `json:"accept_language"`
	AcceptEncoding string    `json:"accept_encoding"`
	Country        string    `json:"country"`
	Timestamp      time.Time `json:"timestamp"`
}

type AnalyticsEvent struct {
	ID        int64  `json:"id"`
	LinkID    string `json:"link_id"`
	AccountID string `json:"account_id"`
	ClientInfo
	IPData IPLookup `json:"ip_data"`
}

type StatItem struct {
	ID    string `json:"id"`
	Count int64  `json:"count"`
}

type ChartData struct {
	IPVersions   []StatItem `json:"ip_versions"`
	OSStats      []StatItem `json:"os_stats"`
	CountryStats []StatItem `json:"country_stats"`
	ISPStats     []StatItem `json:"isp_stats"`
}

type Stats struct {
	TotalLinks  int64     `json:"total_links"`
	TotalClicks int64     `json:"total_clicks"`
	ChartData   ChartData `json:"chart_data"`
	LastUpdated time.Time `json:"last_updated"`
}

// IPVersionOf classifies an address string. Anything containing a colon is IPv6.
func IPVersionOf(ip string) string {
	if strings.Contains(ip, ":") {
		return IPv6
	}
	return IPv4
}
