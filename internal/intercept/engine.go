package intercept

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/bassista/go_offline/internal/logger"
	"github.com/bassista/go_offline/internal/tier"
)

// offlineMessage is the human-readable part of the synthesized 503 body.
const offlineMessage = "The server is unreachable and no cached copy is available."

// Engine resolves intercepted requests against the tier stores.
//
// API requests are network-first: the cache is a fallback, never a
// primary source, because staleness is unacceptable for transactional
// data. Static requests are cache-first across the static and dynamic
// tiers, because assets do not change within a deployment.
type Engine struct {
	static  tier.Cache
	dynamic tier.Cache
	api     tier.Cache
	fetch   Fetcher

	rootKey      string
	noStoreMarks []string
}

// NewEngine wires the three active tiers, the network fetcher, the
// cache key of the root document served to failed navigations, and the
// path markers excluded from dynamic caching.
func NewEngine(static, dynamic, api tier.Cache, fetch Fetcher, rootDocument string, noStoreMarks []string) *Engine {
	return &Engine{
		static:       static,
		dynamic:      dynamic,
		api:          api,
		fetch:        fetch,
		rootKey:      http.MethodGet + " " + rootDocument,
		noStoreMarks: noStoreMarks,
	}
}

// HandleAPI executes the network-first strategy. It never returns nil:
// total failure synthesizes a structured offline response.
func (e *Engine) HandleAPI(ctx context.Context, req *Request) *Result {
	res, err := e.fetch.Fetch(ctx, req)
	if err == nil {
		if req.Method == http.MethodGet && res.OK() {
			e.put(e.api, req.Key(), res)
		}
		return res
	}
	logger.WithComponent("engine").Debugf("api network failure for %s: %v", req.Key(), err)

	if ent, ok := e.match(e.api, req.Key()); ok {
		return entryResult(ent, "api")
	}

	body, _ := json.Marshal(map[string]string{
		"error":   "Offline",
		"message": offlineMessage,
	})
	return &Result{
		Status:      http.StatusServiceUnavailable,
		ContentType: "application/json",
		Body:        body,
		Source:      "offline",
	}
}

// HandleStatic executes the cache-first strategy over the static and
// dynamic tiers. Navigations that fail entirely fall back to the cached
// root document; anything else degrades to an empty 408.
func (e *Engine) HandleStatic(ctx context.Context, req *Request) *Result {
	key := req.Key()
	if ent, ok := e.match(e.static, key); ok {
		return entryResult(ent, "static")
	}
	if ent, ok := e.match(e.dynamic, key); ok {
		return entryResult(ent, "dynamic")
	}

	res, err := e.fetch.Fetch(ctx, req)
	if err == nil {
		if res.Status < http.StatusBadRequest && e.cacheable(req, res) {
			e.put(e.dynamic, key, res)
		}
		return res
	}
	logger.WithComponent("engine").Debugf("static network failure for %s: %v", key, err)

	if req.IsNavigation() {
		if ent, ok := e.match(e.static, e.rootKey); ok {
			return entryResult(ent, "static")
		}
	}
	return &Result{Status: http.StatusRequestTimeout, Source: "timeout"}
}

// cacheable rejects event streams and build-tool artifacts: neither is a
// stable asset worth a dynamic tier slot.
func (e *Engine) cacheable(req *Request, res *Result) bool {
	if strings.HasPrefix(res.ContentType, "text/event-stream") {
		return false
	}
	for _, mark := range e.noStoreMarks {
		if strings.Contains(req.URL.Path, mark) {
			return false
		}
	}
	return true
}

// match swallows storage errors: a failing lookup is a miss, never a
// failed response delivery.
func (e *Engine) match(t tier.Cache, key string) (tier.Entry, bool) {
	ent, ok, err := t.Match(key)
	if err != nil {
		logger.WithComponent("engine").Errorf("tier match error for %s: %v", key, err)
		return tier.Entry{}, false
	}
	return ent, ok
}

// put swallows storage errors for the same reason.
func (e *Engine) put(t tier.Cache, key string, res *Result) {
	err := t.Put(key, tier.Entry{
		Body:        res.Body,
		Status:      res.Status,
		ContentType: res.ContentType,
		StoredAt:    time.Now().UnixMilli(),
	})
	if err != nil {
		logger.WithComponent("engine").Errorf("tier put error for %s: %v", key, err)
	}
}

func entryResult(ent tier.Entry, source string) *Result {
	return &Result{
		Status:      ent.Status,
		ContentType: ent.ContentType,
		Body:        ent.Body,
		Source:      source,
	}
}
