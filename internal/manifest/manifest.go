package manifest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"

	"github.com/bassista/go_offline/internal/logger"
)

// Manifest is the deployment descriptor the build pipeline rewrites on
// every release: the version that namespaces the tiers, and the asset
// paths precached into the static tier at install.
type Manifest struct {
	Version string   `json:"version" validate:"required"`
	Assets  []string `json:"assets" validate:"required,min=1,dive,startswith=/"`
}

// Repository loads and watches the manifest file.
type Repository struct {
	path      string
	dir       string
	base      string
	validator *validator.Validate
	mu        sync.Mutex
}

// NewRepository creates a repository for the given manifest file path.
func NewRepository(path string) (*Repository, error) {
	if path == "" {
		return nil, errors.New("manifest file path is required")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	if dir == "" {
		dir = "."
	}

	return &Repository{path: path, dir: dir, base: base, validator: validator.New()}, nil
}

// Load reads the manifest file, parses and validates it.
func (r *Repository) Load() (*Manifest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	file, err := os.Open(r.path)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer file.Close()

	var m Manifest
	if err := json.NewDecoder(file).Decode(&m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if err := r.validator.Struct(&m); err != nil {
		return nil, fmt.Errorf("validate manifest: %w", err)
	}
	return &m, nil
}

// StartWatcher listens for changes to the manifest file and calls
// onChange after debounce. It watches the parent directory (not the
// file) so atomic replace sequences (temp+rename) are still observed.
// The caller owns the context: cancel it to stop the goroutine.
func (r *Repository) StartWatcher(ctx context.Context, onChange func()) error {
	if onChange == nil {
		return errors.New("onChange callback is required")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	if err := watcher.Add(r.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch dir: %w", err)
	}

	go func() {
		defer watcher.Close()

		// debounce coalesces bursty fsnotify events (write+chmod/rename)
		// into a single reload.
		var debounce *time.Timer
		schedule := func() {
			if debounce != nil {
				if !debounce.Stop() {
					select {
					case <-debounce.C:
					default:
					}
				}
			}
			debounce = time.AfterFunc(200*time.Millisecond, onChange)
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != r.base {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Chmod|fsnotify.Remove|fsnotify.Rename) != 0 {
					schedule()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.WithComponent("manifest").Errorf("watcher error: %v", err)
			}
		}
	}()

	return nil
}
