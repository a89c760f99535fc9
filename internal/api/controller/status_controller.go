package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bassista/go_offline/internal/syncqueue"
)

// TierInspector is the store API the status endpoint reads.
type TierInspector interface {
	Version() string
	List() ([]string, error)
}

// QueueInspector is the queue API the status endpoint reads.
type QueueInspector interface {
	Tags() []string
	Tasks(tag string) ([]syncqueue.Task, error)
}

// StatusController reports the gateway's deployment and queue state.
type StatusController struct {
	tiers TierInspector
	queue QueueInspector
}

func NewStatusController(tiers TierInspector, queue QueueInspector) *StatusController {
	return &StatusController{tiers: tiers, queue: queue}
}

func (sc *StatusController) Status(c *gin.Context) {
	tiers, err := sc.tiers.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read tier list"})
		return
	}

	depths := map[string]int{}
	for _, tag := range sc.queue.Tags() {
		tasks, err := sc.queue.Tasks(tag)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read sync queue"})
			return
		}
		depths[tag] = len(tasks)
	}

	c.JSON(http.StatusOK, gin.H{
		"version": sc.tiers.Version(),
		"tiers":   tiers,
		"queue":   depths,
	})
}

func (sc *StatusController) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "UP"})
}
