// Copyright 2026 The Agent SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package client

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/agentsdk/go-agent-sdk/internal/json"
)

// ModelInfo is one entry of the models.list result.
type ModelInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// metadataCache caches the result of the expensive models.list call,
// collapsing concurrent callers into a single in-flight fetch via
// singleflight, and serving the cached result on subsequent calls until
// explicitly invalidated by a force-refresh or by Stop/ForceStop.
type metadataCache struct {
	group singleflight.Group
	fetch func(ctx context.Context) ([]ModelInfo, error)

	mu     sync.Mutex
	cached []ModelInfo
	valid  bool
}

func newMetadataCache(fetch func(ctx context.Context) ([]ModelInfo, error)) *metadataCache {
	return &metadataCache{fetch: fetch}
}

// Get returns the cached model list, fetching it (once, even under
// concurrent callers) if not yet cached or if forceRefresh is set.
func (m *metadataCache) Get(ctx context.Context, forceRefresh bool) ([]ModelInfo, error) {
	m.mu.Lock()
	if m.valid && !forceRefresh {
		cached := m.cached
		m.mu.Unlock()
		return cached, nil
	}
	m.mu.Unlock()

	v, err, _ := m.group.Do("models.list", func() (any, error) {
		list, err := m.fetch(ctx)
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		m.cached = list
		m.valid = true
		m.mu.Unlock()
		return list, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]ModelInfo), nil
}

// clear invalidates the cache, used on client Stop/ForceStop.
func (m *metadataCache) clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cached = nil
	m.valid = false
}

// callModelsList is the metadataCache's fetch function: it issues the
// models.list RPC and decodes the response.
func (c *Client) callModelsList(ctx context.Context) ([]ModelInfo, error) {
	result, err := c.Call(ctx, "models.list", nil)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Models []ModelInfo `json:"models"`
	}
	if err := json.Unmarshal(result, &resp); err != nil {
		return nil, err
	}
	return resp.Models, nil
}

// Models returns the cached model list, fetching it on first call or when
// forceRefresh is set.
func (c *Client) Models(ctx context.Context, forceRefresh bool) ([]ModelInfo, error) {
	return c.metaCache.Get(ctx, forceRefresh)
}
