package proxy

import (
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-cleanhttp"
)

// NewHTTPClient returns a client with its own non-pooled transport bound to
// proxyURL. Nothing is shared with other clients, so a retry on a fresh
// session never reuses a connection from a previous one.
func NewHTTPClient(proxyURL *url.URL, timeout time.Duration) *http.Client {
	transport := cleanhttp.DefaultTransport()
	if proxyURL != nil {
		transport.Proxy = http.ProxyURL(proxyURL)
	} else {
		transport.Proxy = nil
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}
