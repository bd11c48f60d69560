package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"

	"github.com/marcus7i/ulinks/internal"
)

const DefaultLookupURL = "https://ipwho.is"

// Client queries an ipwho.is compatible service: GET {base}/{ip}.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultLookupURL
	}
	httpClient := cleanhttp.DefaultPooledClient()
	httpClient.Timeout = timeout
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

type lookupResponse struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	Country    string `json:"country"`
	Connection struct {
		ISP string `json:"isp"`
	} `json:"connection"`
}

func (c *Client) Fetch(ctx context.Context, ip string) (*internal.IPLookup, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+url.PathEscape(ip), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build lookup request: %w", internal.ErrUpstream, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: lookup %s: %w", internal.ErrUpstream, ip, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: lookup %s: unexpected status %d", internal.ErrUpstream, ip, resp.StatusCode)
	}

	var body lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decode lookup %s: %w", internal.ErrUpstream, ip, err)
	}
	if !body.Success {
		return nil, fmt.Errorf("%w: lookup %s: %s", internal.ErrUpstream, ip, body.Message)
	}

	return &internal.IPLookup{
		IPAddress: ip,
		IPVersion: internal.IPVersionOf(ip),
		ISP:       orUnknown(body.Connection.ISP),
		Country:   orUnknown(body.Country),
	}, nil
}

func orUnknown(s string) string {
	if s == "" {
		return internal.Unknown
	}
	return s
}
