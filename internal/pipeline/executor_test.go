package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/upskiller-xyz/lux-gateway/internal/registry"
	"github.com/upskiller-xyz/lux-gateway/internal/serviceclient"
)

func testClientConfig() serviceclient.Config {
	return serviceclient.Config{ConnectTimeout: time.Second, ReadTimeout: time.Second, MaxAttempts: 1}
}

func jsonHandler(t *testing.T, status int, body map[string]interface{}) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		if err := json.NewEncoder(w).Encode(body); err != nil {
			t.Fatalf("encode response: %v", err)
		}
	}
}

// newExecutorWithServers builds an Executor whose registry and clients all
// point at the given per-service httptest servers.
func newExecutorWithServers(t *testing.T, servers map[registry.Name]*httptest.Server) *Executor {
	t.Helper()
	urls := make(map[registry.Name]string, len(servers))
	for name, srv := range servers {
		urls[name] = srv.URL
	}
	reg, err := registry.New(registry.ModeProduction, urls)
	if err != nil {
		t.Fatalf("registry.New: %v", err)
	}
	clients := make(map[registry.Name]*serviceclient.Client, len(servers))
	for name := range servers {
		clients[name] = serviceclient.New(string(name), testClientConfig(), "")
	}
	return NewExecutor(reg, clients)
}

func TestExecutorRunGetReferencePoint(t *testing.T) {
	encoder := httptest.NewServer(jsonHandler(t, http.StatusOK, map[string]interface{}{
		"status":          "success",
		"reference_point": map[string]interface{}{"w1": map[string]interface{}{"x": 1.0, "y": 2.0, "z": 3.0}},
	}))
	defer encoder.Close()

	e := newExecutorWithServers(t, map[registry.Name]*httptest.Server{registry.Encoder: encoder})
	acc := New()
	acc.Windows["w1"] = &WindowGeometry{X1: 0, Y1: 0, Z1: 1}

	result, err := e.Run(context.Background(), EndpointGetReferencePoint, acc)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.ReferencePoint["w1"] != (Point3{X: 1, Y: 2, Z: 3}) {
		t.Errorf("ReferencePoint[w1] = %+v", result.ReferencePoint["w1"])
	}
}

func TestExecutorRunUnknownEndpoint(t *testing.T) {
	e := newExecutorWithServers(t, nil)
	_, err := e.Run(context.Background(), Endpoint("bogus"), New())
	if err == nil {
		t.Errorf("expected an error for an unregistered endpoint")
	}
}

func TestExecutorRunDownstreamErrorStopsPipeline(t *testing.T) {
	encoder := httptest.NewServer(jsonHandler(t, http.StatusOK, map[string]interface{}{
		"status": "error",
		"error":  "geometry degenerate",
	}))
	defer encoder.Close()

	e := newExecutorWithServers(t, map[registry.Name]*httptest.Server{registry.Encoder: encoder})
	acc := New()
	acc.Windows["w1"] = &WindowGeometry{}

	if _, err := e.Run(context.Background(), EndpointGetReferencePoint, acc); err == nil {
		t.Errorf("expected the downstream error to abort the pipeline")
	}
}

func TestExecutorRunFanOutAcrossWindows(t *testing.T) {
	encoder := httptest.NewServer(jsonHandler(t, http.StatusOK, map[string]interface{}{
		"status": "success",
		"reference_point": map[string]interface{}{
			"w1": map[string]interface{}{"x": 1.0, "y": 0.0, "z": 0.0},
			"w2": map[string]interface{}{"x": 2.0, "y": 0.0, "z": 0.0},
		},
	}))
	defer encoder.Close()

	e := newExecutorWithServers(t, map[registry.Name]*httptest.Server{registry.Encoder: encoder})
	acc := New()
	acc.Windows["w1"] = &WindowGeometry{}
	acc.Windows["w2"] = &WindowGeometry{}

	result, err := e.Run(context.Background(), EndpointGetReferencePoint, acc)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.ReferencePoint) != 2 {
		t.Fatalf("expected both windows' reference points merged, got %v", result.ReferencePoint)
	}
}
