package controller

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bassista/go_offline/internal/syncqueue"
)

// SyncTrigger is the router API the sync endpoint needs.
type SyncTrigger interface {
	HandleSync(ctx context.Context, tag string) error
}

// SyncController exposes the sync trigger event over HTTP.
type SyncController struct {
	gateway SyncTrigger
}

func NewSyncController(gateway SyncTrigger) *SyncController {
	return &SyncController{gateway: gateway}
}

// Trigger drains the queue for the tag in the path. A replay failure is
// not an error condition: the tasks stay queued for the next trigger.
func (sc *SyncController) Trigger(c *gin.Context) {
	tag := c.Param("tag")
	if err := sc.gateway.HandleSync(c.Request.Context(), tag); err != nil {
		if errors.Is(err, syncqueue.ErrUnknownTag) {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown sync tag"})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"drained": false, "retry": true})
		return
	}
	c.JSON(http.StatusOK, gin.H{"drained": true})
}
