package cdp

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
)

// Version is the reply of the DevTools /json/version endpoint
type Version struct {
	Browser              string `json:"Browser"`
	ProtocolVersion      string `json:"Protocol-Version"`
	UserAgent            string `json:"User-Agent"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// Endpoint is one entry of the DevTools /json/list endpoint
type Endpoint struct {
	ID                   string `json:"id"`
	Type                 string `json:"type"`
	Title                string `json:"title"`
	URL                  string `json:"url"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// Discovery queries the DevTools HTTP endpoints of a running browser
type Discovery struct {
	http *resty.Client
}

// NewDiscovery creates a discovery client for a DevTools base URL such as
// http://127.0.0.1:9222
func NewDiscovery(baseURL string) *Discovery {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 2
	retryClient.RetryWaitMin = 200 * time.Millisecond
	retryClient.RetryWaitMax = 2 * time.Second
	retryClient.Logger = nil

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(5*time.Second).
		SetHeader("Accept", "application/json")
	// retry connection errors and 5xx while the browser is starting
	client.SetTransport(&retryablehttp.RoundTripper{Client: retryClient})

	return &Discovery{http: client}
}

// Version reports the browser behind the endpoint
func (d *Discovery) Version(ctx context.Context) (Version, error) {
	var v Version
	if err := d.get(ctx, "/json/version", &v); err != nil {
		return Version{}, err
	}
	return v, nil
}

// Pages lists the page endpoints, most recently opened first
func (d *Discovery) Pages(ctx context.Context) ([]Endpoint, error) {
	var all []Endpoint
	if err := d.get(ctx, "/json/list", &all); err != nil {
		return nil, err
	}
	pages := all[:0]
	for _, e := range all {
		if e.Type == targetTypePage {
			pages = append(pages, e)
		}
	}
	return pages, nil
}

func (d *Discovery) get(ctx context.Context, path string, out interface{}) error {
	resp, err := d.http.R().
		SetContext(ctx).
		ForceContentType("application/json").
		SetResult(out).
		Get(path)
	if err != nil {
		return fmt.Errorf("devtools %s: %w", path, err)
	}
	if resp.IsError() {
		return fmt.Errorf("devtools %s: unexpected status %s", path, resp.Status())
	}
	return nil
}
