package ogimage

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// LoadFunc produces the bytes of one asset.
type LoadFunc func(ctx context.Context) ([]byte, error)

// AssetCache holds decoded asset bytes for the lifetime of the process.
// Concurrent first requests for a key share one load; failed loads are not stored,
// so the next request retries.
type AssetCache struct {
	items map[string][]byte
	group singleflight.Group
	mu    sync.RWMutex
}

// NewAssetCache returns an empty cache.
func NewAssetCache() *AssetCache {
	return &AssetCache{items: make(map[string][]byte)}
}

// GetOrLoad returns the cached bytes for key, running load at most once at a time per key.
// A canceled ctx abandons the wait but lets a shared load finish for other callers.
func (c *AssetCache) GetOrLoad(ctx context.Context, key string, load LoadFunc) ([]byte, error) {
	if data, ok := c.get(key); ok {
		return data, nil
	}

	ch := c.group.DoChan(key, func() (any, error) {
		if data, ok := c.get(key); ok {
			return data, nil
		}
		data, err := load(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.items[key] = data
		c.mu.Unlock()
		return data, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	}
}

func (c *AssetCache) get(key string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, ok := c.items[key]
	return data, ok
}
