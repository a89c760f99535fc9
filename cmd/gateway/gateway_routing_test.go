package main

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bassista/go_offline/internal/api/route"
	appctx "github.com/bassista/go_offline/internal/app"
	"github.com/bassista/go_offline/internal/config"
	"github.com/bassista/go_offline/internal/intercept"
	"github.com/bassista/go_offline/internal/logger"
	"github.com/bassista/go_offline/internal/manifest"
	"github.com/bassista/go_offline/internal/notify"
	"github.com/bassista/go_offline/internal/syncqueue"
	"github.com/bassista/go_offline/internal/tier"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// testOrigin is an upstream server whose connections can be severed on
// demand to simulate the network going away.
type testOrigin struct {
	server  *httptest.Server
	offline atomic.Bool

	mu       sync.Mutex
	replayed [][]byte
}

func newTestOrigin(t *testing.T) *testOrigin {
	t.Helper()
	o := &testOrigin{}
	o.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if o.offline.Load() {
			conn, _, err := w.(http.Hijacker).Hijack()
			if err == nil {
				conn.Close()
			}
			return
		}
		switch {
		case r.URL.Path == "/":
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte("<html>shell</html>"))
		case r.URL.Path == "/app.js":
			w.Header().Set("Content-Type", "application/javascript")
			w.Write([]byte("console.log('app')"))
		case r.URL.Path == "/api/items" && r.Method == http.MethodGet:
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`[{"id":1}]`))
		case r.URL.Path == "/api/items" && r.Method == http.MethodPost:
			w.WriteHeader(http.StatusCreated)
		case r.URL.Path == "/replay/notes" && r.Method == http.MethodPost:
			body, _ := io.ReadAll(r.Body)
			o.mu.Lock()
			o.replayed = append(o.replayed, body)
			o.mu.Unlock()
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(o.server.Close)
	return o
}

func (o *testOrigin) replayCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.replayed)
}

type testGateway struct {
	engine *gin.Engine
	origin *testOrigin
	queue  *syncqueue.Queue
	tiers  *tier.Store
}

func newTestGateway(t *testing.T) *testGateway {
	t.Helper()
	origin := newTestOrigin(t)

	manifestPath := filepath.Join(t.TempDir(), "manifest.json")
	require.NoError(t, os.WriteFile(manifestPath,
		[]byte(`{"version":"v1","assets":["/","/app.js"]}`), 0o644))
	manifests, err := manifest.NewRepository(manifestPath)
	require.NoError(t, err)

	tiers, err := tier.OpenStore(filepath.Join(t.TempDir(), "tiers"), "v1")
	require.NoError(t, err)
	t.Cleanup(func() { tiers.Close() })

	upstream, err := intercept.NewUpstream(origin.server.URL, 2*time.Second)
	require.NoError(t, err)

	endpoints := map[string]string{"notes": origin.server.URL + "/replay/notes"}
	queue, err := syncqueue.Open(filepath.Join(t.TempDir(), "queue"),
		syncqueue.NewHTTPPoster(2*time.Second), endpoints)
	require.NoError(t, err)
	t.Cleanup(func() { queue.Close() })

	dispatcher := notify.NewDispatcher(notify.NewLogSink(), "You have new updates waiting.")
	classifier := intercept.NewClassifier([]string{"/api"}, []string{"/@vite"})
	router := appctx.NewRouter(tiers, classifier, upstream, queue, dispatcher, manifests,
		"/", []string{"/@vite"})

	cfg := &config.Config{
		Server: config.ServerConfig{
			CORSAllowedOrigins: "*",
			RequestTimeout:     5 * time.Second,
		},
		Sync: config.SyncConfig{
			Endpoints: endpoints,
			TagRoutes: map[string]string{"/api/items": "notes"},
		},
	}

	app, err := appctx.New(cfg, tiers, queue, router, manifests, upstream.Reconnected())
	require.NoError(t, err)
	t.Cleanup(app.Shutdown)

	require.NoError(t, router.Install(app.BaseCtx))
	require.NoError(t, router.Activate(app.BaseCtx))

	return &testGateway{
		engine: route.SetupRoutes(app, logger.Logger),
		origin: origin,
		queue:  queue,
		tiers:  tiers,
	}
}

func (g *testGateway) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	g.engine.ServeHTTP(w, req)
	return w
}

func TestGatewayRouting_Healthz(t *testing.T) {
	g := newTestGateway(t)

	w := g.do(http.MethodGet, "/-/healthz", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"UP"}`, w.Body.String())
}

func TestGatewayRouting_Status(t *testing.T) {
	g := newTestGateway(t)

	w := g.do(http.MethodGet, "/-/status", "")
	require.Equal(t, http.StatusOK, w.Code)

	var status struct {
		Version string         `json:"version"`
		Tiers   []string       `json:"tiers"`
		Queue   map[string]int `json:"queue"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, "v1", status.Version)
	assert.Contains(t, status.Tiers, "static-v1")
}

func TestGatewayRouting_PrecachedAssetServedOffline(t *testing.T) {
	g := newTestGateway(t)
	g.origin.offline.Store(true)

	w := g.do(http.MethodGet, "/app.js", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "console.log('app')", w.Body.String())
	assert.Equal(t, "static", w.Header().Get("X-Cache-Source"))
}

func TestGatewayRouting_UncachedStaticOfflineFallsBackToRootDocument(t *testing.T) {
	g := newTestGateway(t)
	g.origin.offline.Store(true)

	req := httptest.NewRequest(http.MethodGet, "/deep/link", nil)
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	w := httptest.NewRecorder()
	g.engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "<html>shell</html>", w.Body.String())
}

func TestGatewayRouting_APIOfflineWithoutCacheReturns503(t *testing.T) {
	g := newTestGateway(t)
	g.origin.offline.Store(true)

	w := g.do(http.MethodGet, "/api/items", "")

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Offline", body["error"])
}

func TestGatewayRouting_APIServedFromCacheWhenOffline(t *testing.T) {
	g := newTestGateway(t)

	// Warm the api tier while online, then go dark.
	w := g.do(http.MethodGet, "/api/items", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "network", w.Header().Get("X-Cache-Source"))

	g.origin.offline.Store(true)

	w = g.do(http.MethodGet, "/api/items", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[{"id":1}]`, w.Body.String())
	assert.Equal(t, "api", w.Header().Get("X-Cache-Source"))
}

func TestGatewayRouting_OfflineMutationQueuedAndDrained(t *testing.T) {
	g := newTestGateway(t)
	g.origin.offline.Store(true)

	w := g.do(http.MethodPost, "/api/items", `{"title":"buy milk"}`)
	require.Equal(t, http.StatusAccepted, w.Code)

	var resp struct {
		Queued bool   `json:"queued"`
		Tag    string `json:"tag"`
		TaskID string `json:"taskId"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Queued)
	assert.Equal(t, "notes", resp.Tag)
	assert.NotEmpty(t, resp.TaskID)

	tasks, err := g.queue.Tasks("notes")
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	// Back online: an explicit sync trigger replays and clears the queue.
	g.origin.offline.Store(false)

	w = g.do(http.MethodPost, "/-/sync/notes", "")
	assert.Equal(t, http.StatusOK, w.Code)

	tasks, err = g.queue.Tasks("notes")
	require.NoError(t, err)
	assert.Empty(t, tasks)
	assert.Equal(t, 1, g.origin.replayCount())
}

func TestGatewayRouting_SyncUnknownTagReturns404(t *testing.T) {
	g := newTestGateway(t)

	w := g.do(http.MethodPost, "/-/sync/nonsense", "")

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGatewayRouting_PushRendersNotification(t *testing.T) {
	g := newTestGateway(t)

	w := g.do(http.MethodPost, "/-/push", "Server maintenance at noon")
	require.Equal(t, http.StatusAccepted, w.Code)

	var ev notify.Event
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ev))
	assert.Equal(t, "Server maintenance at noon", ev.Body)
	assert.Len(t, ev.Actions, 2)
}

func TestGatewayRouting_NotificationClickOpen(t *testing.T) {
	g := newTestGateway(t)

	w := g.do(http.MethodPost, "/-/notifications/open/click", "")
	require.Equal(t, http.StatusOK, w.Code)

	var result notify.ClickResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.True(t, result.Close)
	assert.Equal(t, "/", result.OpenURL)
}

func TestGatewayRouting_MutationForwardedWhenOnline(t *testing.T) {
	g := newTestGateway(t)

	w := g.do(http.MethodPost, "/api/items", `{"title":"buy milk"}`)

	assert.Equal(t, http.StatusCreated, w.Code)
	tasks, err := g.queue.Tasks("notes")
	require.NoError(t, err)
	assert.Empty(t, tasks)
}
