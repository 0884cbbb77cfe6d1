package luxgateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/upskiller-xyz/lux-gateway/internal/config"
	"github.com/upskiller-xyz/lux-gateway/internal/pipeline"
	"github.com/upskiller-xyz/lux-gateway/internal/registry"

	_ "github.com/upskiller-xyz/lux-gateway/internal/plugins/cache"
	_ "github.com/upskiller-xyz/lux-gateway/internal/plugins/meshcap"
)

func testAccumulator() *pipeline.Accumulator {
	acc := pipeline.New()
	acc.RoomPolygon = []pipeline.Point2{{X: 0, Y: 0}, {X: 4, Y: 0}, {X: 4, Y: 4}, {X: 0, Y: 4}}
	acc.Mesh = []pipeline.Point3{{X: 0, Y: 0, Z: 0}, {X: 1, Y: 0, Z: 0}, {X: 0, Y: 1, Z: 0}}
	acc.Windows["w1"] = &pipeline.WindowGeometry{X1: 0, Y1: 0, Z1: 0, X2: 1, Y2: 0, Z2: 1, WindowFrameRatio: 0.8}
	return acc
}

func writeJSON(w http.ResponseWriter, body map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

func newFakeEncoder(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/get-reference-point":
			writeJSON(w, map[string]interface{}{
				"status":          "success",
				"reference_point": map[string]interface{}{"w1": map[string]interface{}{"x": 2.0, "y": 2.0, "z": 1.0}},
			})
		case "/calculate-direction":
			writeJSON(w, map[string]interface{}{
				"status":          "success",
				"direction_angle": map[string]interface{}{"w1": 1.57},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func newFakeObstruction(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{
			"status": "success",
			"data": map[string]interface{}{
				"results": []interface{}{
					map[string]interface{}{
						"horizon": map[string]interface{}{"obstruction_angle_degrees": 10.0},
						"zenith":  map[string]interface{}{"obstruction_angle_degrees": 20.0},
					},
				},
			},
		})
	}))
}

func newTestGateway(t *testing.T, encoderURL, obstructionURL string, plugins []config.PluginConfig) *Gateway {
	t.Helper()
	cfg := &config.Config{
		DeploymentMode: registry.ModeLocal,
		AuthType:       config.AuthNone,
		Plugins:        plugins,
	}
	gw, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := gw.Registry().SetOverride(registry.Encoder, encoderURL); err != nil {
		t.Fatalf("SetOverride encoder: %v", err)
	}
	if err := gw.Registry().SetOverride(registry.Obstruction, obstructionURL); err != nil {
		t.Fatalf("SetOverride obstruction: %v", err)
	}
	return gw
}

func TestGateway_Invoke_ObstructionAll(t *testing.T) {
	encoder := newFakeEncoder(t)
	defer encoder.Close()
	obstruction := newFakeObstruction(t)
	defer obstruction.Close()

	gw := newTestGateway(t, encoder.URL, obstruction.URL, nil)

	result, err := gw.Invoke(context.Background(), pipeline.EndpointObstructionAll, testAccumulator())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Horizon["w1"]) != 1 || result.Horizon["w1"][0] != 10.0 {
		t.Errorf("unexpected horizon: %v", result.Horizon)
	}
	if len(result.Zenith["w1"]) != 1 || result.Zenith["w1"][0] != 20.0 {
		t.Errorf("unexpected zenith: %v", result.Zenith)
	}
}

func TestGateway_Invoke_RejectedByGuardrail(t *testing.T) {
	encoder := newFakeEncoder(t)
	defer encoder.Close()
	obstruction := newFakeObstruction(t)
	defer obstruction.Close()

	plugins := []config.PluginConfig{
		{Name: "mesh-cap", Stages: []string{"before_request"}, Enabled: true, Config: map[string]interface{}{"max_windows": 0.0}},
	}
	gw := newTestGateway(t, encoder.URL, obstruction.URL, plugins)

	_, err := gw.Invoke(context.Background(), pipeline.EndpointObstructionAll, testAccumulator())
	if err == nil {
		t.Fatal("expected rejection error")
	}
}

func TestGateway_Invoke_DownstreamFailure(t *testing.T) {
	encoder := newFakeEncoder(t)
	defer encoder.Close()
	brokenObstruction := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer brokenObstruction.Close()

	gw := newTestGateway(t, encoder.URL, brokenObstruction.URL, nil)

	_, err := gw.Invoke(context.Background(), pipeline.EndpointObstructionAll, testAccumulator())
	if err == nil {
		t.Fatal("expected downstream failure error")
	}
}

func TestGateway_Invoke_CacheHitSkipsExecutor(t *testing.T) {
	encoder := newFakeEncoder(t)
	defer encoder.Close()

	var obstructionCalls int
	obstruction := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		obstructionCalls++
		writeJSON(w, map[string]interface{}{
			"status": "success",
			"data": map[string]interface{}{
				"results": []interface{}{
					map[string]interface{}{
						"horizon": map[string]interface{}{"obstruction_angle_degrees": 5.0},
						"zenith":  map[string]interface{}{"obstruction_angle_degrees": 6.0},
					},
				},
			},
		})
	}))
	defer obstruction.Close()

	plugins := []config.PluginConfig{
		{Name: "result-cache", Stages: []string{"before_request", "after_request"}, Enabled: true},
	}
	gw := newTestGateway(t, encoder.URL, obstruction.URL, plugins)

	if _, err := gw.Invoke(context.Background(), pipeline.EndpointObstructionAll, testAccumulator()); err != nil {
		t.Fatalf("first invoke: %v", err)
	}
	if _, err := gw.Invoke(context.Background(), pipeline.EndpointObstructionAll, testAccumulator()); err != nil {
		t.Fatalf("second invoke: %v", err)
	}

	if obstructionCalls != 1 {
		t.Fatalf("expected the second identical invocation to be served from cache, obstruction called %d times", obstructionCalls)
	}
}

func TestGateway_Ready(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer up.Close()

	cfg := &config.Config{DeploymentMode: registry.ModeLocal, AuthType: config.AuthNone}
	gw, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for _, n := range registry.All {
		_ = gw.Registry().SetOverride(n, up.URL)
	}

	results := gw.Ready(context.Background())
	if len(results) != len(registry.All) {
		t.Fatalf("expected %d results, got %d", len(registry.All), len(results))
	}
	for _, r := range results {
		if !r.Reachable {
			t.Errorf("expected service %s to be reachable, got error %q", r.Service, r.Error)
		}
	}
}
