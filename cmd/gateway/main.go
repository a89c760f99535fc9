package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/enrichman/httpgrace"

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

func main() {
	// .env is optional; real config comes from config.yaml and env vars
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.WithComponent("main").Fatalf("configuration error: %v", err)
	}

	// Set log level from configuration
	logLevel, err := logrus.ParseLevel(cfg.Misc.LogLevel)
	if err != nil {
		logger.WithComponent("main").Warnf("invalid log level '%s', using 'info': %v", cfg.Misc.LogLevel, err)
		logLevel = logrus.InfoLevel
	}
	logger.Logger.SetLevel(logLevel)
	logger.WithComponent("main").Infof("Gateway will run on port: %d, upstream: %s", cfg.Server.Port, cfg.Upstream.Origin)

	manifests, err := manifest.NewRepository(cfg.Cache.ManifestPath)
	if err != nil {
		logger.WithComponent("main").Fatalf("cannot init manifest repository: %v", err)
	}
	m, err := manifests.Load()
	if err != nil {
		logger.WithComponent("main").Fatalf("cannot load manifest: %v", err)
	}

	tiers, err := tier.OpenStore(cfg.Cache.Path, m.Version)
	if err != nil {
		logger.WithComponent("main").Fatalf("cannot open tier store: %v", err)
	}
	defer tiers.Close()

	upstream, err := intercept.NewUpstream(cfg.Upstream.Origin, cfg.Upstream.Timeout)
	if err != nil {
		logger.WithComponent("main").Fatalf("cannot init upstream fetcher: %v", err)
	}

	queue, err := syncqueue.Open(cfg.Sync.Path, syncqueue.NewHTTPPoster(cfg.Upstream.Timeout), cfg.Sync.Endpoints)
	if err != nil {
		logger.WithComponent("main").Fatalf("cannot open sync queue: %v", err)
	}
	defer queue.Close()

	var sink notify.Sink = notify.NewLogSink()
	if cfg.Notify.WebhookURL != "" {
		sink = notify.NewWebhookSink(cfg.Notify.WebhookURL, cfg.Notify.Timeout)
	}
	dispatcher := notify.NewDispatcher(sink, cfg.Notify.DefaultBody)

	classifier := intercept.NewClassifier(cfg.Cache.APIPrefixes, cfg.Cache.SkipPatterns)
	router := appctx.NewRouter(tiers, classifier, upstream, queue, dispatcher, manifests,
		cfg.Cache.RootDocument, cfg.Cache.SkipPatterns)

	app, err := appctx.New(cfg, tiers, queue, router, manifests, upstream.Reconnected())
	if err != nil {
		logger.WithComponent("main").Fatalf("cannot init app: %v", err)
	}
	defer app.Shutdown()

	// Install must complete before serving: without the baseline assets
	// the offline guarantee does not hold.
	if err := router.Install(app.BaseCtx); err != nil {
		logger.WithComponent("main").Fatalf("install failed: %v", err)
	}
	if err := router.Activate(app.BaseCtx); err != nil {
		logger.WithComponent("main").Fatalf("activate failed: %v", err)
	}

	if err := app.StartWatchers(); err != nil {
		logger.WithComponent("main").Fatalf("cannot start watchers: %v", err)
	}

	gin.SetMode(cfg.Misc.GinMode)
	gin.DefaultWriter = logger.Logger.Writer()
	gin.DefaultErrorWriter = logger.Logger.Writer()

	r := route.SetupRoutes(app, logger.Logger)
	srv := createGraceHTTPServer(app.BaseCtx, "gateway", cfg.Server, r)

	if err := srv.ListenAndServe(fmt.Sprintf(":%d", cfg.Server.Port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithComponent("main").Fatal(err)
	}
}

func createGraceHTTPServer(ctx context.Context, name string, serverConfig config.ServerConfig, r *gin.Engine) *httpgrace.Server {
	slogLogger := slog.New(slog.NewTextHandler(logger.Logger.Writer(), nil))

	srv := httpgrace.NewServer(r,
		httpgrace.WithTimeout(serverConfig.ShutDownTimeout),
		httpgrace.WithSignals(syscall.SIGTERM, syscall.SIGINT),
		httpgrace.WithLogger(slogLogger),
		httpgrace.WithBeforeShutdown(func() {
			logger.WithComponent("http").Infof("Shutting down %s server....", name)
		}),
		httpgrace.WithServerOptions(
			httpgrace.WithReadTimeout(serverConfig.ReadTimeout),
			httpgrace.WithWriteTimeout(serverConfig.WriteTimeout),
			httpgrace.WithIdleTimeout(serverConfig.IdleTimeout),
			func(srv *http.Server) {
				srv.BaseContext = func(_ net.Listener) context.Context {
					return ctx
				}
			},
			func(srv *http.Server) {
				srv.ErrorLog = log.New(logger.Logger.Writer(), fmt.Sprintf("[%s] ", name), log.LstdFlags)
			},
		),
	)
	return srv
}
