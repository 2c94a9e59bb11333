// Package fetcher retrieves the rules document over HTTP.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/linkscrub/linkscrub/config"
	urlutil "github.com/linkscrub/linkscrub/url"
)

// maxDocumentSize caps how much of a rules document is read. The ClearURLs
// document is well under a megabyte; anything bigger is rejected rather than
// buffered.
const maxDocumentSize = 16 << 20

// Response is a fetched rules document.
type Response struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// Fetcher fetches rules documents using the provided configuration.
type Fetcher struct {
	config config.FetchConfig
	client *http.Client
}

// ssrfProtectedTransport refuses requests whose destination host resolves to
// private or link-local address space.
type ssrfProtectedTransport struct {
	base http.RoundTripper
}

func (t *ssrfProtectedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := urlutil.ValidateNotPrivate(req.URL.Host); err != nil {
		return nil, err
	}
	return t.base.RoundTrip(req)
}

// New creates a new Fetcher with the given configuration.
func New(cfg config.FetchConfig) *Fetcher {
	var transport http.RoundTripper = http.DefaultTransport
	if cfg.EnableSSRFProtection {
		transport = &ssrfProtectedTransport{base: http.DefaultTransport}
	}

	return &Fetcher{
		config: cfg,
		client: &http.Client{
			Timeout:   cfg.GetTimeout(),
			Transport: transport,
		},
	}
}

// Fetch retrieves the document at the given URL. A non-2xx status is returned
// as an error alongside the response so callers can inspect the status code.
func (f *Fetcher) Fetch(ctx context.Context, urlStr string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range f.config.GetHeaders() {
		req.Header.Set(key, value)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if len(body) > maxDocumentSize {
		return nil, fmt.Errorf("rules document exceeds %d bytes", maxDocumentSize)
	}

	fetched := &Response{
		URL:        resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       body,
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fetched, fmt.Errorf("failed to fetch %s: HTTP %d", urlStr, resp.StatusCode)
	}
	return fetched, nil
}
