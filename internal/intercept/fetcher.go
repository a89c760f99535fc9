package intercept

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Result is a materialized response handed back to the hosting adapter.
type Result struct {
	Status      int
	ContentType string
	Body        []byte
	Source      string // network, static, dynamic, api, offline, timeout
}

// OK reports whether the result carries a successful (2xx) status.
func (r *Result) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// Fetcher performs the actual network call for an intercepted request.
// A non-nil error means the network boundary itself failed (connection,
// DNS, timeout); HTTP error statuses are returned as plain results.
type Fetcher interface {
	Fetch(ctx context.Context, req *Request) (*Result, error)
}

// Upstream is the Fetcher backed by the configured origin server.
// It tracks consecutive transport failures so a success after an outage
// can signal connectivity restoration to the sync queue drainer.
type Upstream struct {
	base   *url.URL
	client *http.Client

	mu        sync.Mutex
	failures  int
	reconnect chan struct{}
}

// NewUpstream creates a fetcher for the given origin base URL.
func NewUpstream(origin string, timeout time.Duration) (*Upstream, error) {
	if origin == "" {
		return nil, errors.New("upstream origin is required")
	}
	base, err := url.Parse(origin)
	if err != nil {
		return nil, fmt.Errorf("parse upstream origin: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("upstream origin must be http or https, got %q", base.Scheme)
	}
	return &Upstream{
		base:      base,
		client:    &http.Client{Timeout: timeout},
		reconnect: make(chan struct{}, 1),
	}, nil
}

// Reconnected yields a signal whenever a fetch succeeds after one or
// more consecutive transport failures.
func (u *Upstream) Reconnected() <-chan struct{} {
	return u.reconnect
}

func (u *Upstream) Fetch(ctx context.Context, req *Request) (*Result, error) {
	target := *u.base
	target.Path = strings.TrimSuffix(target.Path, "/") + req.URL.EscapedPath()
	target.RawQuery = req.URL.RawQuery

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	out, err := http.NewRequestWithContext(ctx, req.Method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			out.Header.Add(k, v)
		}
	}

	resp, err := u.client.Do(out)
	if err != nil {
		u.markFailure()
		return nil, fmt.Errorf("fetch %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		u.markFailure()
		return nil, fmt.Errorf("read upstream body: %w", err)
	}

	u.markSuccess()
	return &Result{
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        raw,
		Source:      "network",
	}, nil
}

func (u *Upstream) markFailure() {
	u.mu.Lock()
	u.failures++
	u.mu.Unlock()
}

func (u *Upstream) markSuccess() {
	u.mu.Lock()
	wasDown := u.failures > 0
	u.failures = 0
	u.mu.Unlock()
	if wasDown {
		select {
		case u.reconnect <- struct{}{}:
		default:
		}
	}
}
