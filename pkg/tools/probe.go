package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/openfroyo/deployer/pkg/engine"
)

// HTTPProber checks that a URL answers with a 2xx status.
type HTTPProber struct {
	client *http.Client
}

// NewHTTPProber returns a prober whose requests time out after timeout.
func NewHTTPProber(timeout time.Duration) *HTTPProber {
	return &HTTPProber{client: &http.Client{Timeout: timeout}}
}

// Probe performs a GET on url. Connection failures and non-2xx answers are
// transient; 429 is throttled.
func (p *HTTPProber) Probe(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return engine.NewPermanentError(fmt.Sprintf("invalid probe url %q", url), err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return engine.NewTransientError(fmt.Sprintf("GET %s failed", url), err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return engine.NewThrottledError(fmt.Sprintf("GET %s: %s", url, resp.Status), nil)
	default:
		return engine.NewTransientError(fmt.Sprintf("GET %s: %s", url, resp.Status), nil).
			WithDetail("status_code", resp.StatusCode)
	}
}
