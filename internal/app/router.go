package app

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/bassista/go_offline/internal/intercept"
	"github.com/bassista/go_offline/internal/logger"
	"github.com/bassista/go_offline/internal/manifest"
	"github.com/bassista/go_offline/internal/notify"
	"github.com/bassista/go_offline/internal/syncqueue"
	"github.com/bassista/go_offline/internal/tier"
)

// ManifestSource provides the current deployment manifest.
type ManifestSource interface {
	Load() (*manifest.Manifest, error)
}

// Router exposes one method per event kind of the interception layer:
// install, activate, fetch, sync, push, notification click. The hosting
// adapter invokes these; the Router holds no ambient state beyond the
// dependencies it was constructed with.
type Router struct {
	store      *tier.Store
	classifier *intercept.Classifier
	lifecycle  *intercept.Lifecycle
	fetch      intercept.Fetcher
	queue      *syncqueue.Queue
	dispatcher *notify.Dispatcher
	manifests  ManifestSource

	rootDocument string
	skipPatterns []string

	static *tier.Tier
	engine atomic.Pointer[intercept.Engine]
}

// NewRouter wires the interception core. Install and Activate must run
// before the router accepts fetches.
func NewRouter(
	store *tier.Store,
	classifier *intercept.Classifier,
	fetch intercept.Fetcher,
	queue *syncqueue.Queue,
	dispatcher *notify.Dispatcher,
	manifests ManifestSource,
	rootDocument string,
	skipPatterns []string,
) *Router {
	return &Router{
		store:        store,
		classifier:   classifier,
		lifecycle:    intercept.NewLifecycle(store, fetch, intercept.DefaultNames()),
		fetch:        fetch,
		queue:        queue,
		dispatcher:   dispatcher,
		manifests:    manifests,
		rootDocument: rootDocument,
		skipPatterns: skipPatterns,
	}
}

// Install loads the manifest, switches the store to the manifest's
// version, and precaches the asset list into the static tier. A failed
// install leaves the previous deployment fully in place.
func (r *Router) Install(ctx context.Context) error {
	m, err := r.manifests.Load()
	if err != nil {
		return fmt.Errorf("install: %w", err)
	}
	r.store.SetVersion(m.Version)

	static, err := r.lifecycle.Install(ctx, m.Assets)
	if err != nil {
		return err
	}
	r.static = static
	return nil
}

// Activate opens the runtime tiers, swaps in a fresh strategy engine,
// and sweeps superseded tiers. Requests observe either the old complete
// tier set or the new one, never a half-migrated state.
func (r *Router) Activate(ctx context.Context) error {
	dynamic, api, err := r.lifecycle.Activate(ctx)
	if err != nil {
		return err
	}
	engine := intercept.NewEngine(r.static, dynamic, api, r.fetch, r.rootDocument, r.skipPatterns)
	r.engine.Store(engine)
	logger.WithComponent("router").Infof("activated version %s", r.store.Version())
	return nil
}

// Classify exposes the classifier decision to the hosting adapter.
func (r *Router) Classify(req *intercept.Request) intercept.Decision {
	return r.classifier.Classify(req)
}

// HandleFetch resolves an intercepted request. The second return is
// false when the request is not intercepted (skip decision, or the
// router has not been activated yet) and should pass straight through.
func (r *Router) HandleFetch(ctx context.Context, req *intercept.Request) (*intercept.Result, bool) {
	engine := r.engine.Load()
	if engine == nil {
		return nil, false
	}
	switch r.classifier.Classify(req) {
	case intercept.DecisionAPI:
		return engine.HandleAPI(ctx, req), true
	case intercept.DecisionStatic:
		return engine.HandleStatic(ctx, req), true
	default:
		return nil, false
	}
}

// Fetch performs a raw pass-through network call, bypassing every
// strategy. Used by the adapter for skip-classified requests.
func (r *Router) Fetch(ctx context.Context, req *intercept.Request) (*intercept.Result, error) {
	return r.fetch.Fetch(ctx, req)
}

// HandleSync drains the queue for one tag.
func (r *Router) HandleSync(ctx context.Context, tag string) error {
	return r.queue.Drain(ctx, tag)
}

// Enqueue records a mutating operation that could not reach the network.
func (r *Router) Enqueue(tag string, payload json.RawMessage) (syncqueue.Task, error) {
	return r.queue.Enqueue(tag, payload)
}

// HandlePush renders an inbound push payload into a notification.
func (r *Router) HandlePush(ctx context.Context, payload []byte) notify.Event {
	return r.dispatcher.OnPush(ctx, payload)
}

// HandleNotificationClick routes a notification action.
func (r *Router) HandleNotificationClick(action string) notify.ClickResult {
	return r.dispatcher.OnClick(action)
}

// Reload re-runs install and activate against the current manifest.
// Used by the manifest watcher to cut over to a new deployment without
// restarting the gateway.
func (r *Router) Reload(ctx context.Context) error {
	if err := r.Install(ctx); err != nil {
		return err
	}
	return r.Activate(ctx)
}
