// Package meshcap provides a guardrail plugin that caps the number of
// windows and the size of the obstruction mesh on an incoming pipeline
// invocation, the daylight-simulation analogue of a token/message-count
// limiter. Register it with a blank import:
//
//	_ "github.com/upskiller-xyz/lux-gateway/internal/plugins/meshcap"
package meshcap

import (
	"context"
	"fmt"

	"github.com/upskiller-xyz/lux-gateway/plugin"
)

func init() {
	plugin.RegisterFactory("mesh-cap", func() plugin.Plugin {
		return &MeshCap{}
	})
}

// MeshCap is a guardrail plugin that enforces maximum window count and
// maximum mesh triangle count on a pipeline invocation.
type MeshCap struct {
	maxWindows   int
	maxTriangles int
}

// Name returns the plugin identifier.
func (m *MeshCap) Name() string { return "mesh-cap" }

// Type returns the plugin lifecycle hook type.
func (m *MeshCap) Type() plugin.PluginType { return plugin.TypeGuardrail }

// Init configures the plugin from the provided options map.
func (m *MeshCap) Init(config map[string]interface{}) error {
	m.maxWindows = 64 // default
	if v, ok := config["max_windows"]; ok {
		switch val := v.(type) {
		case float64:
			m.maxWindows = int(val)
		case int:
			m.maxWindows = val
		}
	}
	m.maxTriangles = 200000 // default
	if v, ok := config["max_mesh_triangles"]; ok {
		switch val := v.(type) {
		case float64:
			m.maxTriangles = int(val)
		case int:
			m.maxTriangles = val
		}
	}
	return nil
}

// Execute runs the plugin logic for the current pipeline invocation.
func (m *MeshCap) Execute(_ context.Context, pctx *plugin.Context) error {
	if pctx.Accumulator == nil {
		return nil
	}

	if n := len(pctx.Accumulator.Windows); n > m.maxWindows {
		pctx.Reject = true
		pctx.Reason = fmt.Sprintf("window count %d exceeds limit of %d", n, m.maxWindows)
		return nil
	}

	// The mesh is a flat point list; every three consecutive points form one triangle.
	if n := len(pctx.Accumulator.Mesh) / 3; n > m.maxTriangles {
		pctx.Reject = true
		pctx.Reason = fmt.Sprintf("mesh triangle count %d exceeds limit of %d", n, m.maxTriangles)
		return nil
	}

	return nil
}
