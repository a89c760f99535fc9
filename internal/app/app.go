package app

import (
	"context"
	"errors"

	"github.com/bassista/go_offline/internal/config"
	"github.com/bassista/go_offline/internal/logger"
	"github.com/bassista/go_offline/internal/manifest"
	"github.com/bassista/go_offline/internal/syncqueue"
	"github.com/bassista/go_offline/internal/tier"
)

// App is the application container (immutable dependencies + lifecycle context).
// It is not a request context; handlers should still use gin's request context.
type App struct {
	Config    *config.Config
	Tiers     *tier.Store
	Queue     *syncqueue.Queue
	Router    *Router
	Manifests *manifest.Repository
	Reconnect <-chan struct{}

	BaseCtx context.Context
	Cancel  context.CancelFunc
}

func New(cfg *config.Config, tiers *tier.Store, queue *syncqueue.Queue, router *Router, manifests *manifest.Repository, reconnect <-chan struct{}) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if tiers == nil {
		return nil, errors.New("tier store is nil")
	}
	if queue == nil {
		return nil, errors.New("sync queue is nil")
	}
	if router == nil {
		return nil, errors.New("router is nil")
	}
	if manifests == nil {
		return nil, errors.New("manifest repository is nil")
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &App{
		Config:    cfg,
		Tiers:     tiers,
		Queue:     queue,
		Router:    router,
		Manifests: manifests,
		Reconnect: reconnect,
		BaseCtx:   ctx,
		Cancel:    cancel,
	}, nil
}

func (a *App) Shutdown() {
	if a == nil || a.Cancel == nil {
		return
	}
	a.Cancel()
}

// StartWatchers launches the background goroutines: the periodic sync
// drain scheduler and the manifest file watcher that cuts over to new
// deployments.
func (a *App) StartWatchers() error {
	syncqueue.StartDrainScheduler(a.BaseCtx, a.Queue, a.Reconnect, a.Config.Sync.DrainInterval)

	err := a.Manifests.StartWatcher(a.BaseCtx, func() {
		if err := a.Router.Reload(a.BaseCtx); err != nil {
			logger.WithComponent("app").Errorf("manifest reload failed, previous deployment stays active: %v", err)
		}
	})
	if err != nil {
		return err
	}
	return nil
}
