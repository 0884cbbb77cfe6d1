package cache

import (
	"context"
	"testing"
	"time"

	"github.com/upskiller-xyz/lux-gateway/internal/pipeline"
	"github.com/upskiller-xyz/lux-gateway/plugin"
)

func testAccumulator(x float64) *pipeline.Accumulator {
	acc := pipeline.New()
	acc.Windows["w1"] = &pipeline.WindowGeometry{X1: x, Y1: 2, Z1: 3}
	acc.ModelType = "daylight-factor"
	return acc
}

func initCache(t *testing.T, config map[string]interface{}) *ResultCache {
	t.Helper()
	c := &ResultCache{}
	if err := c.Init(config); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	return c
}

func TestCachePlugin_Init(t *testing.T) {
	t.Run("default config", func(t *testing.T) {
		c := initCache(t, map[string]interface{}{})
		if c.entries.Len() != 0 {
			t.Errorf("expected empty cache, got %d entries", c.entries.Len())
		}
	})

	t.Run("custom max_age and max_entries", func(t *testing.T) {
		c := initCache(t, map[string]interface{}{"max_age": 60, "max_entries": 50})
		if c.entries == nil {
			t.Fatal("expected entries store to be initialized")
		}
	})
}

func TestCachePlugin_CacheMiss(t *testing.T) {
	c := initCache(t, map[string]interface{}{})
	pctx := plugin.NewContext(pipeline.EndpointSimulate, testAccumulator(1))

	if err := c.Execute(context.Background(), pctx); err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if pctx.Skip {
		t.Error("expected Skip to be false on cache miss")
	}
}

func TestCachePlugin_CacheHitOnSecondInvocation(t *testing.T) {
	c := initCache(t, map[string]interface{}{})

	// First invocation: before_request miss, then after_request store.
	firstAcc := testAccumulator(1)
	firstPctx := plugin.NewContext(pipeline.EndpointSimulate, firstAcc)
	if err := c.Execute(context.Background(), firstPctx); err != nil {
		t.Fatalf("Execute (before) error: %v", err)
	}
	if firstPctx.Skip {
		t.Fatal("expected miss on first invocation")
	}
	firstAcc.Result = [][]float64{{1.5, 2.5}}

	if err := c.Execute(context.Background(), firstPctx); err != nil {
		t.Fatalf("Execute (after) error: %v", err)
	}

	// Second invocation with identical input geometry: fresh context, hit.
	secondPctx := plugin.NewContext(pipeline.EndpointSimulate, testAccumulator(1))
	if err := c.Execute(context.Background(), secondPctx); err != nil {
		t.Fatalf("Execute (lookup) error: %v", err)
	}
	if !secondPctx.Skip {
		t.Error("expected Skip to be true on cache hit")
	}
	if secondPctx.Metadata["cache_hit"] != true {
		t.Error("expected cache_hit metadata to be true")
	}
	if len(secondPctx.Accumulator.Result) == 0 {
		t.Error("expected cached result to be restored onto the accumulator")
	}
}

func TestCachePlugin_DifferentKeys(t *testing.T) {
	c := initCache(t, map[string]interface{}{})

	firstAcc := testAccumulator(1)
	firstPctx := plugin.NewContext(pipeline.EndpointSimulate, firstAcc)
	_ = c.Execute(context.Background(), firstPctx)
	firstAcc.Result = [][]float64{{1.5}}
	_ = c.Execute(context.Background(), firstPctx)

	// Different window geometry -> different key -> miss.
	differentPctx := plugin.NewContext(pipeline.EndpointSimulate, testAccumulator(99))
	if err := c.Execute(context.Background(), differentPctx); err != nil {
		t.Fatalf("Execute (lookup) error: %v", err)
	}
	if differentPctx.Skip {
		t.Error("expected cache miss for different geometry")
	}
}

func TestCachePlugin_Expiration(t *testing.T) {
	c := initCache(t, map[string]interface{}{"max_age": 0})
	acc := testAccumulator(1)
	pctx := plugin.NewContext(pipeline.EndpointSimulate, acc)
	_ = c.Execute(context.Background(), pctx)
	acc.Result = [][]float64{{1.5}}
	_ = c.Execute(context.Background(), pctx)

	time.Sleep(5 * time.Millisecond)

	lookupPctx := plugin.NewContext(pipeline.EndpointSimulate, testAccumulator(1))
	if err := c.Execute(context.Background(), lookupPctx); err != nil {
		t.Fatalf("Execute (lookup) error: %v", err)
	}
	if lookupPctx.Skip {
		t.Error("expected cache miss for expired entry")
	}
}
