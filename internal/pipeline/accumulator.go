// Package pipeline implements the orchestration core: the accumulator map,
// the typed wire contracts per stage, and the fan-out/fan-in executor that
// drives the fixed per-endpoint service list.
package pipeline

// WindowGeometry is the per-window geometry plus pipeline-derived attributes.
// Horizon/Zenith, once populated, always have exactly 64 elements.
type WindowGeometry struct {
	X1, Y1, Z1      float64
	X2, Y2, Z2      float64
	WindowFrameRatio float64

	DirectionAngle *float64  `json:"direction_angle,omitempty"`
	Horizon        []float64 `json:"horizon,omitempty"`
	Zenith         []float64 `json:"zenith,omitempty"`
}

// Point3 is a 3D coordinate in meters, z vertical.
type Point3 struct{ X, Y, Z float64 }

// Point2 is a 2D point of a RoomPolygon.
type Point2 struct{ X, Y float64 }

// Simulation is a per-window model result: daylight-factor matrix plus an
// optional same-shape binary mask.
type Simulation struct {
	DFValues [][]float64 `json:"df_values"`
	Mask     [][]int     `json:"mask,omitempty"`
}

// Accumulator is the object threaded through the pipeline (spec §3). Keys
// are the union of request-field names and response-field names; per-window
// outputs are maps keyed by window name. An Accumulator is owned exclusively
// by one pipeline invocation — never shared across concurrent requests.
type Accumulator struct {
	// Request-origin fields.
	RoomPolygon            []Point2                  `json:"room_polygon,omitempty"`
	Windows                map[string]*WindowGeometry `json:"windows,omitempty"`
	Mesh                   []Point3                  `json:"mesh,omitempty"`
	ModelType              string                    `json:"model_type,omitempty"`
	HeightRoofOverFloor    float64                   `json:"height_roof_over_floor,omitempty"`
	FloorHeightAboveTerrain float64                  `json:"floor_height_above_terrain,omitempty"`

	// Stage-derived fields.
	ReferencePoint map[string]Point3      `json:"reference_point,omitempty"`
	DirectionAngle map[string]float64     `json:"direction_angle,omitempty"`
	Horizon        map[string][]float64   `json:"horizon,omitempty"`
	Zenith         map[string][]float64   `json:"zenith,omitempty"`
	Mask           map[string][][]int     `json:"mask,omitempty"`
	Simulations    map[string]Simulation  `json:"simulations,omitempty"`
	Image          []byte                 `json:"-"`
	Result         [][]float64            `json:"result,omitempty"`
	ResultMask     [][]int                `json:"result_mask,omitempty"`
	Stats          map[string]float64     `json:"stats,omitempty"`

	// Root-level single-call obstruction inputs and outputs, used only by
	// /obstruction, /horizon, /zenith, where x/y/z/direction_angle are given
	// directly rather than derived per window from reference_point.
	rootX, rootY, rootZ, rootDirectionAngle *float64
	RootHorizon                             []float64 `json:"-"`
	RootZenith                              []float64 `json:"-"`
}

// New builds an empty Accumulator ready to receive a Delta from stage 0.
func New() *Accumulator {
	return &Accumulator{
		Windows:        map[string]*WindowGeometry{},
		ReferencePoint: map[string]Point3{},
		DirectionAngle: map[string]float64{},
		Horizon:        map[string][]float64{},
		Zenith:         map[string][]float64{},
		Mask:           map[string][][]int{},
		Simulations:    map[string]Simulation{},
	}
}

// Delta is a partial result produced by one stage execution, to be merged
// into the accumulator. WindowName is empty for single-request (no fan-out)
// stages; for fan-out stages, the executor attaches it before merging.
type Delta struct {
	WindowName string

	DirectionAngle *float64
	ReferencePoint *Point3
	Horizon        []float64
	Zenith         []float64
	Image          []byte
	Mask           [][]int
	Simulation     *Simulation
	Result         [][]float64
	ResultMask     [][]int
	Stats          map[string]float64
}

// Merge applies d to a, following the merge semantics of spec §4.3: scalar
// fields overwrite, per-window map fields deep-merge by window name, and the
// image field overwrites (only one window's encoded image survives per
// fan-out iteration, per the resolved open question in SPEC_FULL.md §5).
func (a *Accumulator) Merge(d Delta) {
	name := d.WindowName

	if d.DirectionAngle != nil {
		if name != "" {
			a.DirectionAngle[name] = *d.DirectionAngle
			if w, ok := a.Windows[name]; ok {
				w.DirectionAngle = d.DirectionAngle
			}
		}
	}
	if d.ReferencePoint != nil && name != "" {
		a.ReferencePoint[name] = *d.ReferencePoint
	}
	if d.Horizon != nil {
		if name != "" {
			a.Horizon[name] = d.Horizon
			if w, ok := a.Windows[name]; ok {
				w.Horizon = d.Horizon
			}
		} else {
			a.RootHorizon = d.Horizon
		}
	}
	if d.Zenith != nil {
		if name != "" {
			a.Zenith[name] = d.Zenith
			if w, ok := a.Windows[name]; ok {
				w.Zenith = d.Zenith
			}
		} else {
			a.RootZenith = d.Zenith
		}
	}
	if d.Image != nil {
		a.Image = d.Image
	}
	if d.Mask != nil && name != "" {
		a.Mask[name] = d.Mask
	}
	if d.Simulation != nil && name != "" {
		sim := *d.Simulation
		if sim.Mask == nil {
			if existing, ok := a.Mask[name]; ok {
				sim.Mask = existing
			}
		}
		a.Simulations[name] = sim
	}
	if d.Result != nil {
		a.Result = d.Result
	}
	if d.ResultMask != nil {
		a.ResultMask = d.ResultMask
	}
	if d.Stats != nil {
		a.Stats = d.Stats
	}
}

// WindowNames returns the accumulator's window names in a stable order.
func (a *Accumulator) WindowNames() []string {
	return sortedKeys(a.Windows)
}
