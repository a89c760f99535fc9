package intercept

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/bassista/go_offline/internal/logger"
	"github.com/bassista/go_offline/internal/tier"
)

// Names are the logical tier names of one deployment.
type Names struct {
	Static  string
	Dynamic string
	API     string
}

// DefaultNames returns the standard three-tier layout.
func DefaultNames() Names {
	return Names{Static: "static", Dynamic: "dynamic", API: "api"}
}

// Lifecycle drives the install and activate phases of a deployment.
type Lifecycle struct {
	store tier.Opener
	fetch Fetcher
	names Names
}

func NewLifecycle(store tier.Opener, fetch Fetcher, names Names) *Lifecycle {
	return &Lifecycle{store: store, fetch: fetch, names: names}
}

// Install opens the static tier and populates it with the asset
// manifest, fetching each path from the upstream. Any failure aborts the
// install: serving without the baseline assets would defeat the offline
// guarantee.
func (l *Lifecycle) Install(ctx context.Context, assets []string) (*tier.Tier, error) {
	static, err := l.store.Open(l.names.Static)
	if err != nil {
		return nil, fmt.Errorf("install: %w", err)
	}

	for _, asset := range assets {
		u, err := url.Parse(asset)
		if err != nil {
			return nil, fmt.Errorf("install: bad asset path %q: %w", asset, err)
		}
		req := &Request{Method: http.MethodGet, URL: u, Header: http.Header{}}

		res, err := l.fetch.Fetch(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("install: precache %s: %w", asset, err)
		}
		if res.Status >= http.StatusBadRequest {
			return nil, fmt.Errorf("install: precache %s: upstream returned %d", asset, res.Status)
		}

		err = static.Put(req.Key(), tier.Entry{
			Body:        res.Body,
			Status:      res.Status,
			ContentType: res.ContentType,
			StoredAt:    time.Now().UnixMilli(),
		})
		if err != nil {
			return nil, fmt.Errorf("install: store %s: %w", asset, err)
		}
		logger.WithComponent("lifecycle").Debugf("precached %s", asset)
	}

	logger.WithComponent("lifecycle").Infof("installed %d assets into %s", len(assets), l.store.Qualified(l.names.Static))
	return static, nil
}

// Activate opens the dynamic and api tiers, then sweeps away every
// stored tier outside the active set for the running version. The
// sweep is the only point at which tiers are destroyed, and it happens
// after the new tiers are fully usable.
func (l *Lifecycle) Activate(ctx context.Context) (dynamic, api *tier.Tier, err error) {
	dynamic, err = l.store.Open(l.names.Dynamic)
	if err != nil {
		return nil, nil, fmt.Errorf("activate: %w", err)
	}
	api, err = l.store.Open(l.names.API)
	if err != nil {
		return nil, nil, fmt.Errorf("activate: %w", err)
	}

	active := map[string]bool{
		l.store.Qualified(l.names.Static):  true,
		l.store.Qualified(l.names.Dynamic): true,
		l.store.Qualified(l.names.API):     true,
	}

	existing, err := l.store.List()
	if err != nil {
		return nil, nil, fmt.Errorf("activate: %w", err)
	}
	for _, qualified := range existing {
		if active[qualified] {
			continue
		}
		if err := l.store.Delete(qualified); err != nil {
			return nil, nil, fmt.Errorf("activate: sweep %s: %w", qualified, err)
		}
		logger.WithComponent("lifecycle").Infof("deleted superseded tier %s", qualified)
	}

	return dynamic, api, nil
}
