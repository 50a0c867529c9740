package httpclient

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// ClientFactory produces HTTP clients and performs HEAD requests. The
// scheduler uses NewClient so each range request owns a client whose
// request can be aborted independently by cancelling its context; the
// server probe uses Head directly.
type ClientFactory interface {
	// NewClient returns a fresh client backed by the factory's shared
	// transport. The caller owns the returned client's request lifetime.
	NewClient() *http.Client

	// Head performs a HEAD request with the given headers, bounded by
	// timeout, and returns the raw status/headers for the caller to
	// interpret.
	Head(ctx context.Context, url string, headers map[string]string, timeout time.Duration) (*HeadResult, error)
}

// HeadResult carries the raw response data a HEAD request produced.
type HeadResult struct {
	StatusCode    int
	ContentLength int64
	Header        http.Header
}

// Factory is the default ClientFactory, backed by a single shared
// transport so connections are pooled across the many short-lived clients
// the scheduler creates.
type Factory struct {
	transport http.RoundTripper

	// DebugLog is an optional sink for per-request diagnostics (HEAD
	// requests, status codes). Never used for control flow.
	DebugLog func(format string, args ...any)
}

// New returns a Factory with a transport tuned for range downloads:
// compression is disabled so Content-Length and the returned byte count
// for a 206 response stay meaningful.
func New() *Factory {
	return &Factory{
		transport: &http.Transport{
			DisableCompression: true,
		},
	}
}

// NewWithTransport returns a Factory backed by an arbitrary transport,
// letting tests substitute a deterministic fake without a live server.
func NewWithTransport(rt http.RoundTripper) *Factory {
	return &Factory{transport: rt}
}

func (f *Factory) NewClient() *http.Client {
	return &http.Client{Transport: f.transport}
}

func (f *Factory) Head(ctx context.Context, url string, headers map[string]string, timeout time.Duration) (*HeadResult, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return nil, fmt.Errorf("httpclient: create HEAD request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := f.NewClient().Do(req)
	if err != nil {
		if f.DebugLog != nil {
			f.DebugLog("HEAD %s failed: %v", url, err)
		}
		return nil, err
	}
	defer resp.Body.Close()

	if f.DebugLog != nil {
		f.DebugLog("HEAD %s -> %d (content-length=%d)", url, resp.StatusCode, resp.ContentLength)
	}

	return &HeadResult{
		StatusCode:    resp.StatusCode,
		ContentLength: resp.ContentLength,
		Header:        resp.Header,
	}, nil
}
