// Package cache provides a result-cache plugin that stores completed pipeline
// accumulators in memory and serves them on exact-match cache hits for
// identical geometry/parameters, saving a repeat round trip through the
// Pipeline Executor. Register it with a blank import:
//
//	_ "github.com/upskiller-xyz/lux-gateway/internal/plugins/cache"
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	internalcache "github.com/upskiller-xyz/lux-gateway/internal/cache"
	"github.com/upskiller-xyz/lux-gateway/internal/pipeline"
	"github.com/upskiller-xyz/lux-gateway/plugin"
)

func init() {
	plugin.RegisterFactory("result-cache", func() plugin.Plugin {
		return &ResultCache{}
	})
}

// ResultCache is a transform plugin that caches completed pipeline
// accumulators using exact-match hashing of the validated request fields.
type ResultCache struct {
	entries *internalcache.Memory[pipeline.Accumulator]
}

// Name returns the plugin identifier.
func (c *ResultCache) Name() string {
	return "result-cache"
}

// Type returns the plugin lifecycle hook type.
func (c *ResultCache) Type() plugin.PluginType {
	return plugin.TypeTransform
}

// Init configures the plugin from the provided options map.
func (c *ResultCache) Init(config map[string]interface{}) error {
	maxAge := 300
	// JSON delivers numeric values as float64; YAML may deliver int. Handle both.
	switch v := config["max_age"].(type) {
	case int:
		maxAge = v
	case float64:
		maxAge = int(v)
	}

	maxEntries := 1000
	switch v := config["max_entries"].(type) {
	case int:
		maxEntries = v
	case float64:
		maxEntries = int(v)
	}

	c.entries = internalcache.NewMemory[pipeline.Accumulator](maxEntries, time.Duration(maxAge)*time.Second)
	return nil
}

// Execute checks for a cache hit (before_request) or stores the completed
// accumulator (after_request). The same plugin instance is registered at
// both stages; a metadata flag set on the first call distinguishes the pass.
func (c *ResultCache) Execute(_ context.Context, pctx *plugin.Context) error {
	if pctx.Accumulator == nil {
		return nil
	}

	key, seenBefore := pctx.Metadata["cache_key"].(string)
	if !seenBefore {
		key = cacheKey(pctx.Endpoint, pctx.Accumulator)
		pctx.Metadata["cache_key"] = key

		if entry, ok := c.entries.Get(key); ok {
			*pctx.Accumulator = entry
			pctx.Skip = true
			pctx.Metadata["cache_hit"] = true
		}
		return nil
	}

	// after_request: store, unless this invocation was itself a cache hit.
	if pctx.Metadata["cache_hit"] == true {
		return nil
	}
	c.entries.Set(key, *pctx.Accumulator)
	return nil
}

// cacheKey hashes the endpoint plus the request-origin fields of acc. It is
// computed before the Pipeline Executor runs, while the stage-derived fields
// are still empty, so later runs with identical inputs hash identically.
func cacheKey(endpoint pipeline.Endpoint, acc *pipeline.Accumulator) string {
	raw, _ := json.Marshal(struct {
		Endpoint                pipeline.Endpoint
		RoomPolygon             []pipeline.Point2
		Windows                 map[string]*pipeline.WindowGeometry
		Mesh                    []pipeline.Point3
		ModelType               string
		HeightRoofOverFloor     float64
		FloorHeightAboveTerrain float64
	}{
		Endpoint:                endpoint,
		RoomPolygon:             acc.RoomPolygon,
		Windows:                 acc.Windows,
		Mesh:                    acc.Mesh,
		ModelType:               acc.ModelType,
		HeightRoofOverFloor:     acc.HeightRoofOverFloor,
		FloorHeightAboveTerrain: acc.FloorHeightAboveTerrain,
	})
	h := sha256.Sum256(raw)
	return hex.EncodeToString(h[:])
}
