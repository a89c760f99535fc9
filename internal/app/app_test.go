package app

import (
	"testing"

	"github.com/bassista/go_offline/internal/config"
	"github.com/bassista/go_offline/internal/manifest"
	"github.com/bassista/go_offline/internal/syncqueue"
	"github.com/bassista/go_offline/internal/tier"
)

func testDeps(t *testing.T) (*config.Config, *tier.Store, *syncqueue.Queue, *Router, *manifest.Repository) {
	t.Helper()

	cfg := &config.Config{}
	store, err := tier.OpenStore(t.TempDir(), "v1")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	queue, err := syncqueue.Open(t.TempDir(), nullPoster{}, nil)
	if err != nil {
		t.Fatalf("open queue: %v", err)
	}
	t.Cleanup(func() { queue.Close() })

	repo, err := manifest.NewRepository("/tmp/manifest.json")
	if err != nil {
		t.Fatalf("new repository: %v", err)
	}

	router := &Router{}
	return cfg, store, queue, router, repo
}

func TestNew_Valid(t *testing.T) {
	cfg, store, queue, router, repo := testDeps(t)

	a, err := New(cfg, store, queue, router, repo, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.BaseCtx == nil || a.Cancel == nil {
		t.Error("expected lifecycle context to be initialized")
	}
	a.Shutdown()

	select {
	case <-a.BaseCtx.Done():
	default:
		t.Error("expected BaseCtx to be cancelled after Shutdown")
	}
}

func TestNew_NilDependencies(t *testing.T) {
	cfg, store, queue, router, repo := testDeps(t)

	if _, err := New(nil, store, queue, router, repo, nil); err == nil {
		t.Error("expected error for nil config")
	}
	if _, err := New(cfg, nil, queue, router, repo, nil); err == nil {
		t.Error("expected error for nil tier store")
	}
	if _, err := New(cfg, store, nil, router, repo, nil); err == nil {
		t.Error("expected error for nil queue")
	}
	if _, err := New(cfg, store, queue, nil, repo, nil); err == nil {
		t.Error("expected error for nil router")
	}
	if _, err := New(cfg, store, queue, router, nil, nil); err == nil {
		t.Error("expected error for nil manifest repository")
	}
}

func TestShutdown_NilReceiverIsSafe(t *testing.T) {
	var a *App
	a.Shutdown()
}
