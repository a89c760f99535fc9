package controller

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/bassista/go_offline/internal/intercept"
	"github.com/bassista/go_offline/internal/logger"
	"github.com/bassista/go_offline/internal/syncqueue"
)

// Gateway is the router API the intercept handler needs.
type Gateway interface {
	HandleFetch(ctx context.Context, req *intercept.Request) (*intercept.Result, bool)
	Fetch(ctx context.Context, req *intercept.Request) (*intercept.Result, error)
	Enqueue(tag string, payload json.RawMessage) (syncqueue.Task, error)
}

// InterceptController routes every application request through the
// interception layer. It is also the collaborator that queues mutating
// operations when the network boundary fails.
type InterceptController struct {
	gateway  Gateway
	prefixes []string          // tag route prefixes, longest first
	tags     map[string]string // prefix -> tag
}

func NewInterceptController(gateway Gateway, tagRoutes map[string]string) *InterceptController {
	prefixes := make([]string, 0, len(tagRoutes))
	for prefix := range tagRoutes {
		prefixes = append(prefixes, prefix)
	}
	sort.Slice(prefixes, func(i, j int) bool { return len(prefixes[i]) > len(prefixes[j]) })
	return &InterceptController{gateway: gateway, prefixes: prefixes, tags: tagRoutes}
}

// Handle is the catch-all entry point for intercepted requests.
func (ic *InterceptController) Handle(c *gin.Context) {
	req, err := intercept.FromHTTP(c.Request)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable request body"})
		return
	}
	ctx := c.Request.Context()

	// Mutating calls on a sync-tagged route get the offline queueing
	// path: try the network once, queue on transport failure.
	if req.Method != http.MethodGet {
		if tag, ok := ic.tagFor(req.URL.Path); ok {
			ic.handleMutation(c, req, tag)
			return
		}
	}

	res, intercepted := ic.gateway.HandleFetch(ctx, req)
	if intercepted {
		writeResult(c, res)
		return
	}

	// Skip decision: pass straight through, untouched.
	res, err = ic.gateway.Fetch(ctx, req)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream unreachable"})
		return
	}
	writeResult(c, res)
}

func (ic *InterceptController) handleMutation(c *gin.Context, req *intercept.Request, tag string) {
	res, err := ic.gateway.Fetch(c.Request.Context(), req)
	if err == nil {
		writeResult(c, res)
		return
	}
	logger.WithComponent("intercept").Infof("queueing %s %s under %s: %v", req.Method, req.URL.Path, tag, err)

	payload, err := json.Marshal(queuedOperation(req))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to encode operation"})
		return
	}
	task, err := ic.gateway.Enqueue(tag, payload)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Offline", "message": "operation could not be queued"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"queued": true, "tag": tag, "taskId": task.ID})
}

func (ic *InterceptController) tagFor(path string) (string, bool) {
	for _, prefix := range ic.prefixes {
		if strings.HasPrefix(path, prefix) {
			return ic.tags[prefix], true
		}
	}
	return "", false
}

// queuedOperation serializes a failed mutation for later replay. JSON
// bodies are embedded as-is so replay endpoints see the original shape.
func queuedOperation(req *intercept.Request) map[string]any {
	op := map[string]any{
		"method": req.Method,
		"path":   req.URL.RequestURI(),
	}
	if len(req.Body) == 0 {
		return op
	}
	if json.Valid(req.Body) {
		op["body"] = json.RawMessage(req.Body)
	} else {
		op["bodyBase64"] = base64.StdEncoding.EncodeToString(req.Body)
	}
	return op
}

func writeResult(c *gin.Context, res *intercept.Result) {
	c.Header("X-Cache-Source", res.Source)
	c.Data(res.Status, res.ContentType, res.Body)
}
