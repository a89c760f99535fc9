package controller

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bassista/go_offline/internal/notify"
)

// PushGateway is the router API the push endpoints need.
type PushGateway interface {
	HandlePush(ctx context.Context, payload []byte) notify.Event
	HandleNotificationClick(action string) notify.ClickResult
}

// PushController exposes push and notification-click events over HTTP.
type PushController struct {
	gateway PushGateway
}

func NewPushController(gateway PushGateway) *PushController {
	return &PushController{gateway: gateway}
}

// Push renders the inbound payload as a notification. A malformed or
// empty payload is not an error; the dispatcher substitutes its default.
func (pc *PushController) Push(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		payload = nil
	}
	ev := pc.gateway.HandlePush(c.Request.Context(), payload)
	c.JSON(http.StatusAccepted, ev)
}

// Click routes a notification action.
func (pc *PushController) Click(c *gin.Context) {
	result := pc.gateway.HandleNotificationClick(c.Param("action"))
	c.JSON(http.StatusOK, result)
}
