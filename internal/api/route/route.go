package route

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/bassista/go_offline/internal/api/controller"
	"github.com/bassista/go_offline/internal/api/middleware"
	"github.com/bassista/go_offline/internal/app"
)

// SetupRoutes builds the gateway engine: control endpoints under /-/,
// and a catch-all that routes everything else through the interception
// layer.
func SetupRoutes(appCtx *app.App, log *logrus.Logger) *gin.Engine {
	r := gin.New()
	r.Use(middleware.HoneybadgerMiddleware(log))
	r.Use(gin.Recovery())
	r.Use(middleware.CORSMiddleware(appCtx.Config.Server.CORSAllowedOrigins))
	r.Use(middleware.RequestTimeout(appCtx.Config.Server.RequestTimeout))

	statusCtl := controller.NewStatusController(appCtx.Tiers, appCtx.Queue)
	syncCtl := controller.NewSyncController(appCtx.Router)
	pushCtl := controller.NewPushController(appCtx.Router)
	interceptCtl := controller.NewInterceptController(appCtx.Router, appCtx.Config.Sync.TagRoutes)

	control := r.Group("/-")
	control.GET("/healthz", statusCtl.Health)
	control.GET("/status", statusCtl.Status)
	control.POST("/sync/:tag", syncCtl.Trigger)
	control.POST("/push", pushCtl.Push)
	control.POST("/notifications/:action/click", pushCtl.Click)

	r.NoRoute(interceptCtl.Handle)

	return r
}
