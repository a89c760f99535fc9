package intercept

import (
	"net/http"
	"strings"
)

// Decision is the handling a request is assigned to.
type Decision int

const (
	// DecisionSkip passes the request straight through, untouched.
	DecisionSkip Decision = iota
	// DecisionAPI routes the request to the network-first API strategy.
	DecisionAPI
	// DecisionStatic routes the request to the cache-first static strategy.
	DecisionStatic
)

func (d Decision) String() string {
	switch d {
	case DecisionAPI:
		return "api"
	case DecisionStatic:
		return "static"
	default:
		return "skip"
	}
}

// Classifier assigns every outgoing request to a handling strategy.
// Rules are evaluated in order, first match wins.
type Classifier struct {
	apiPrefixes  []string
	skipPatterns []string
}

func NewClassifier(apiPrefixes, skipPatterns []string) *Classifier {
	return &Classifier{apiPrefixes: apiPrefixes, skipPatterns: skipPatterns}
}

func (c *Classifier) Classify(r *Request) Decision {
	if scheme := r.URL.Scheme; scheme != "" && scheme != "http" && scheme != "https" {
		return DecisionSkip
	}

	path := r.URL.Path
	for _, pattern := range c.skipPatterns {
		if strings.Contains(path, pattern) {
			return DecisionSkip
		}
	}

	for _, prefix := range c.apiPrefixes {
		if strings.HasPrefix(path, prefix) {
			return DecisionAPI
		}
	}

	if r.Method == http.MethodGet {
		return DecisionStatic
	}

	return DecisionSkip
}
