// Package validate implements the Request Parser / Validator: endpoint
// resolution from the URL path (including endpoint aliases), structural
// JSON Schema validation of the inbound body, and population of the initial
// Accumulator handed to the Pipeline Executor.
package validate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/upskiller-xyz/lux-gateway/internal/gwerrors"
	"github.com/upskiller-xyz/lux-gateway/internal/pipeline"
)

// endpointAliases is the closed set of public path segments mapped onto the
// canonical pipeline.Endpoint that drives the same service list (spec §4.3,
// §6). /run is a full alias of /simulate; /horizon and /zenith share the
// single-request obstruction service list with /obstruction;
// /obstruction_parallel is a full alias of /obstruction_all.
var endpointAliases = map[string]pipeline.Endpoint{
	"simulate":             pipeline.EndpointSimulate,
	"run":                  pipeline.EndpointSimulate,
	"encode":               pipeline.EndpointEncode,
	"encode_raw":           pipeline.EndpointEncodeRaw,
	"obstruction":          pipeline.EndpointObstruction,
	"horizon":              pipeline.EndpointObstruction,
	"zenith":               pipeline.EndpointObstruction,
	"obstruction_all":      pipeline.EndpointObstructionAll,
	"obstruction_parallel": pipeline.EndpointObstructionAll,
	"calculate-direction":  pipeline.EndpointCalculateDirection,
	"get-reference-point":  pipeline.EndpointGetReferencePoint,
	"merge":                pipeline.EndpointMerge,
	"stats":                pipeline.EndpointStats,
}

// ResolveEndpoint maps a request path's final segment (after /v<major>/) to
// its canonical pipeline.Endpoint. The second return value is the alias
// actually matched, used by handlers that need the original path segment
// (e.g. /horizon vs /zenith response key selection).
func ResolveEndpoint(pathSegment string) (pipeline.Endpoint, string, bool) {
	seg := strings.Trim(pathSegment, "/")
	ep, ok := endpointAliases[seg]
	return ep, seg, ok
}

// windowSchemaJSON validates one WindowGeometry entry: the six corner
// coordinates and the frame ratio are mandatory; the pipeline-derived
// fields are optional and, when present, typed.
const windowSchemaJSON = `{
  "type": "object",
  "required": ["x1", "y1", "z1", "x2", "y2", "z2", "window_frame_ratio"],
  "properties": {
    "x1": {"type": "number"}, "y1": {"type": "number"}, "z1": {"type": "number"},
    "x2": {"type": "number"}, "y2": {"type": "number"}, "z2": {"type": "number"},
    "window_frame_ratio": {"type": "number", "exclusiveMinimum": 0, "maximum": 1},
    "direction_angle": {"type": "number"},
    "horizon": {"type": "array", "items": {"type": "number"}},
    "zenith": {"type": "array", "items": {"type": "number"}}
  }
}`

// parametersSchemaJSON validates the room_polygon/windows pair shared by
// every endpoint that derives per-window geometry.
const parametersSchemaJSON = `{
  "type": "object",
  "required": ["room_polygon", "windows"],
  "properties": {
    "room_polygon": {
      "type": "array", "minItems": 3,
      "items": {"type": "array", "minItems": 2, "maxItems": 2, "items": {"type": "number"}}
    },
    "windows": {
      "type": "object", "minProperties": 1,
      "additionalProperties": ` + windowSchemaJSON + `
    },
    "height_roof_over_floor": {"type": "number"},
    "floor_height_above_terrain": {"type": "number"}
  }
}`

// meshSchemaJSON validates the flat triangle-vertex list; length-is-multiple
// -of-3 is checked separately since JSON Schema cannot express modular
// arithmetic on array length.
const meshSchemaJSON = `{
  "type": "array",
  "items": {"type": "array", "minItems": 3, "maxItems": 3, "items": {"type": "number"}}
}`

// endpointSchemas is the closed per-endpoint structural schema, built from
// the shared fragments above. Every endpoint has an entry; merge and stats
// check only their top-level required fields, since their payloads carry no
// nested geometry.
var endpointSchemas = map[pipeline.Endpoint]string{
	pipeline.EndpointSimulate: `{
		"type": "object",
		"required": ["model_type", "mesh", "parameters"],
		"properties": {
			"model_type": {"type": "string"},
			"mesh": ` + meshSchemaJSON + `,
			"parameters": ` + parametersSchemaJSON + `
		}
	}`,
	pipeline.EndpointEncode: `{
		"type": "object",
		"required": ["model_type", "mesh", "parameters"],
		"properties": {
			"model_type": {"type": "string"},
			"mesh": ` + meshSchemaJSON + `,
			"parameters": ` + parametersSchemaJSON + `
		}
	}`,
	pipeline.EndpointEncodeRaw: `{
		"type": "object",
		"required": ["model_type", "parameters"],
		"properties": {
			"model_type": {"type": "string"},
			"parameters": ` + parametersSchemaJSON + `
		}
	}`,
	pipeline.EndpointObstruction: `{
		"type": "object",
		"required": ["x", "y", "z", "direction_angle", "mesh"],
		"properties": {
			"x": {"type": "number"}, "y": {"type": "number"}, "z": {"type": "number"},
			"direction_angle": {"type": "number"},
			"mesh": ` + meshSchemaJSON + `
		}
	}`,
	pipeline.EndpointObstructionAll: `{
		"allOf": [` + parametersSchemaJSON + `, {
			"type": "object",
			"required": ["mesh"],
			"properties": {"mesh": ` + meshSchemaJSON + `}
		}]
	}`,
	pipeline.EndpointCalculateDirection: parametersSchemaJSON,
	pipeline.EndpointGetReferencePoint:  parametersSchemaJSON,
	pipeline.EndpointMerge: `{
		"type": "object",
		"required": ["room_polygon", "windows", "simulation"],
		"properties": {
			"windows": {"type": "object", "minProperties": 1}
		}
	}`,
	pipeline.EndpointStats: `{
		"type": "object",
		"required": ["df_values", "mask"],
		"properties": {
			"df_values": {"type": "array"},
			"mask": {"type": "array"}
		}
	}`,
}

var compiled = map[pipeline.Endpoint]*jsonschema.Schema{}

func init() {
	for ep, schemaJSON := range endpointSchemas {
		c := jsonschema.NewCompiler()
		resourceID := "lux-gateway://" + string(ep) + ".json"
		if err := c.AddResource(resourceID, strings.NewReader(schemaJSON)); err != nil {
			panic(fmt.Sprintf("validate: invalid schema literal for endpoint %q: %v", ep, err))
		}
		schema, err := c.Compile(resourceID)
		if err != nil {
			panic(fmt.Sprintf("validate: schema compile failed for endpoint %q: %v", ep, err))
		}
		compiled[ep] = schema
	}
}

// envelope is the subset of the inbound body the validator needs decoded
// twice: once generically for schema validation, once (below) into typed
// fields for accumulator construction.
type envelope struct {
	ModelType      string                         `json:"model_type"`
	Mesh           [][3]float64                   `json:"mesh"`
	Parameters     *parametersBody                `json:"parameters"`
	RoomPolygon    [][2]float64                   `json:"room_polygon"`
	Windows        map[string]*windowBody         `json:"windows"`
	X              *float64                       `json:"x"`
	Y              *float64                       `json:"y"`
	Z              *float64                       `json:"z"`
	DirectionAngle *float64                       `json:"direction_angle"`
	Simulation     map[string]pipeline.Simulation `json:"simulation"`
	DFValues       [][]float64                    `json:"df_values"`
	Mask           [][]int                        `json:"mask"`
}

type parametersBody struct {
	RoomPolygon             [][2]float64           `json:"room_polygon"`
	Windows                 map[string]*windowBody `json:"windows"`
	HeightRoofOverFloor     float64                `json:"height_roof_over_floor"`
	FloorHeightAboveTerrain float64                `json:"floor_height_above_terrain"`
}

type windowBody struct {
	X1               float64   `json:"x1"`
	Y1               float64   `json:"y1"`
	Z1               float64   `json:"z1"`
	X2               float64   `json:"x2"`
	Y2               float64   `json:"y2"`
	Z2               float64   `json:"z2"`
	WindowFrameRatio float64   `json:"window_frame_ratio"`
	DirectionAngle   *float64  `json:"direction_angle,omitempty"`
	Horizon          []float64 `json:"horizon,omitempty"`
	Zenith           []float64 `json:"zenith,omitempty"`
}

// ParseAndValidate decodes body against endpoint's schema and builds the
// initial Accumulator (spec §4.4, §3 "Lifecycle: created at stage 0 from
// the validated request body").
func ParseAndValidate(endpoint pipeline.Endpoint, body []byte) (*pipeline.Accumulator, error) {
	var generic interface{}
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(&generic); err != nil {
		return nil, gwerrors.New(gwerrors.KindValidation, "request body is not valid JSON")
	}

	schema, ok := compiled[endpoint]
	if !ok {
		return nil, gwerrors.New(gwerrors.KindInternal, fmt.Sprintf("no schema registered for endpoint %q", endpoint))
	}
	if err := schema.Validate(generic); err != nil {
		return nil, gwerrors.New(gwerrors.KindValidation, err.Error())
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, gwerrors.New(gwerrors.KindValidation, "request body does not match the expected shape")
	}
	if len(env.Mesh)%3 != 0 {
		return nil, gwerrors.New(gwerrors.KindValidation, "mesh length must be a multiple of 3")
	}

	acc := pipeline.New()
	acc.ModelType = env.ModelType
	acc.Mesh = toPoint3Slice(env.Mesh)

	params := env.Parameters
	if params != nil {
		acc.RoomPolygon = toPoint2Slice(params.RoomPolygon)
		acc.HeightRoofOverFloor = params.HeightRoofOverFloor
		acc.FloorHeightAboveTerrain = params.FloorHeightAboveTerrain
		applyWindows(acc, params.Windows)
	} else if env.RoomPolygon != nil {
		acc.RoomPolygon = toPoint2Slice(env.RoomPolygon)
		applyWindows(acc, env.Windows)
	}

	if len(acc.Windows) == 0 && endpointNeedsWindows(endpoint) {
		return nil, gwerrors.New(gwerrors.KindValidation, "at least one window is required")
	}

	if endpoint == pipeline.EndpointObstruction {
		if env.X == nil || env.Y == nil || env.Z == nil || env.DirectionAngle == nil {
			return nil, gwerrors.New(gwerrors.KindValidation, "x, y, z and direction_angle are required")
		}
		acc.SetRootObstructionInputs(*env.X, *env.Y, *env.Z, *env.DirectionAngle)
	}

	if endpoint == pipeline.EndpointMerge {
		acc.Simulations = env.Simulation
	}

	if endpoint == pipeline.EndpointStats {
		acc.Result = env.DFValues
		acc.ResultMask = env.Mask
	}

	return acc, nil
}

func endpointNeedsWindows(ep pipeline.Endpoint) bool {
	switch ep {
	case pipeline.EndpointSimulate, pipeline.EndpointEncode, pipeline.EndpointEncodeRaw,
		pipeline.EndpointObstructionAll, pipeline.EndpointCalculateDirection, pipeline.EndpointGetReferencePoint:
		return true
	default:
		return false
	}
}

func applyWindows(acc *pipeline.Accumulator, windows map[string]*windowBody) {
	for name, w := range windows {
		acc.Windows[name] = &pipeline.WindowGeometry{
			X1: w.X1, Y1: w.Y1, Z1: w.Z1,
			X2: w.X2, Y2: w.Y2, Z2: w.Z2,
			WindowFrameRatio: w.WindowFrameRatio,
			DirectionAngle:   w.DirectionAngle,
			Horizon:          w.Horizon,
			Zenith:           w.Zenith,
		}
	}
}

func toPoint2Slice(pts [][2]float64) []pipeline.Point2 {
	out := make([]pipeline.Point2, len(pts))
	for i, p := range pts {
		out[i] = pipeline.Point2{X: p[0], Y: p[1]}
	}
	return out
}

func toPoint3Slice(pts [][3]float64) []pipeline.Point3 {
	out := make([]pipeline.Point3, len(pts))
	for i, p := range pts {
		out[i] = pipeline.Point3{X: p[0], Y: p[1], Z: p[2]}
	}
	return out
}
