package intercept

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Request is the classifier/engine view of an intercepted request.
// The body is materialized up front so the request can be replayed
// (network attempt, then queueing) without a consumable stream.
type Request struct {
	Method string
	URL    *url.URL
	Header http.Header
	Body   []byte
}

// FromHTTP builds a Request from the incoming hosting-adapter request,
// draining its body.
func FromHTTP(r *http.Request) (*Request, error) {
	var body []byte
	if r.Body != nil {
		b, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, fmt.Errorf("read request body: %w", err)
		}
		body = b
	}
	u := *r.URL
	u.Fragment = ""
	return &Request{
		Method: strings.ToUpper(r.Method),
		URL:    &u,
		Header: r.Header,
		Body:   body,
	}, nil
}

// Key returns the request's cache identity: method plus normalized
// path and query. Headers are deliberately ignored for matching.
func (r *Request) Key() string {
	p := r.URL.EscapedPath()
	if p == "" {
		p = "/"
	}
	if r.URL.RawQuery != "" {
		p += "?" + r.URL.RawQuery
	}
	return r.Method + " " + p
}

// IsNavigation reports whether the request is a top-level document load.
func (r *Request) IsNavigation() bool {
	if r.Method != http.MethodGet {
		return false
	}
	if r.Header.Get("Sec-Fetch-Mode") == "navigate" {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}
