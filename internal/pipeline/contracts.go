package pipeline

import (
	"fmt"
	"sort"
)

// RequestKind is the sum-type discriminant replacing the source's deep
// polymorphic request hierarchy (design note, SPEC_FULL.md §5).
type RequestKind string

// The closed set of stage request kinds.
const (
	KindDirectionAngle RequestKind = "direction_angle"
	KindReferencePoint RequestKind = "reference_point"
	KindObstruction    RequestKind = "obstruction"
	KindEncode         RequestKind = "encode"
	KindModel          RequestKind = "model"
	KindMerge          RequestKind = "merge"
	KindStats          RequestKind = "stats"
)

// StageRequest is the sum type carrying the fields needed by any one stage.
// Only the fields relevant to Kind are populated.
type StageRequest struct {
	Kind       RequestKind
	WindowName string // empty for single (non-fan-out) requests

	// DirectionAngle / ReferencePoint / Obstruction (all-windows variants)
	RoomPolygon []Point2
	Windows     map[string]*WindowGeometry

	// Obstruction (single-window variant): x, y, z, direction_angle, mesh
	X, Y, Z        float64
	DirectionAngle float64
	Mesh           []Point3

	// Encode
	ModelType string

	// Model: multipart upload of the encoded image
	EncodedImage []byte

	// Merge
	Simulations map[string]Simulation

	// Stats
	DFValues  [][]float64
	StatsMask [][]int
}

// ToWire renders the request's wire JSON body for the kinds that post JSON
// (Obstruction, DirectionAngle, ReferencePoint, Encode, Merge, Stats). Model
// requests are posted as multipart and do not use ToWire.
func (r StageRequest) ToWire() (map[string]interface{}, error) {
	switch r.Kind {
	case KindDirectionAngle, KindReferencePoint:
		return map[string]interface{}{
			"room_polygon": encodePolygon(r.RoomPolygon),
			"windows":      encodeWindows(r.Windows),
		}, nil
	case KindObstruction:
		return map[string]interface{}{
			"x":               r.X,
			"y":               r.Y,
			"z":               r.Z,
			"direction_angle": r.DirectionAngle,
			"mesh":            encodeMesh(r.Mesh),
		}, nil
	case KindEncode:
		return map[string]interface{}{
			"model_type": r.ModelType,
			"parameters": map[string]interface{}{
				"room_polygon": encodePolygon(r.RoomPolygon),
				"windows":      encodeWindows(r.Windows),
			},
		}, nil
	case KindMerge:
		sims := make(map[string]interface{}, len(r.Simulations))
		for name, sim := range r.Simulations {
			sims[name] = map[string]interface{}{
				"df_values": sim.DFValues,
				"mask":      sim.Mask,
			}
		}
		return map[string]interface{}{
			"room_polygon": encodePolygon(r.RoomPolygon),
			"windows":      encodeWindows(r.Windows),
			"simulations":  sims,
		}, nil
	case KindStats:
		return map[string]interface{}{
			"df_values": r.DFValues,
			"mask":      r.StatsMask,
		}, nil
	default:
		return nil, fmt.Errorf("pipeline: kind %q has no JSON wire form", r.Kind)
	}
}

func encodePolygon(pts []Point2) [][2]float64 {
	out := make([][2]float64, len(pts))
	for i, p := range pts {
		out[i] = [2]float64{p.X, p.Y}
	}
	return out
}

func encodeMesh(pts []Point3) [][3]float64 {
	out := make([][3]float64, len(pts))
	for i, p := range pts {
		out[i] = [3]float64{p.X, p.Y, p.Z}
	}
	return out
}

func encodeWindows(windows map[string]*WindowGeometry) map[string]interface{} {
	out := make(map[string]interface{}, len(windows))
	for name, w := range windows {
		entry := map[string]interface{}{
			"x1": w.X1, "y1": w.Y1, "z1": w.Z1,
			"x2": w.X2, "y2": w.Y2, "z2": w.Z2,
			"window_frame_ratio": w.WindowFrameRatio,
		}
		if w.DirectionAngle != nil {
			entry["direction_angle"] = *w.DirectionAngle
		}
		if w.Horizon != nil {
			entry["horizon"] = w.Horizon
		}
		if w.Zenith != nil {
			entry["zenith"] = w.Zenith
		}
		out[name] = entry
	}
	return out
}

// --- Per-window fan-out key derivation (spec §4.2) ---

// buildDirectionAngleOrReferencePoint iterates accumulator.windows and
// emits one request per entry, preserving the window name.
func buildDirectionAngleOrReferencePoint(kind RequestKind, acc *Accumulator) []StageRequest {
	names := sortedKeys(acc.Windows)
	reqs := make([]StageRequest, 0, len(names))
	for _, name := range names {
		w := acc.Windows[name]
		reqs = append(reqs, StageRequest{
			Kind:        kind,
			WindowName:  name,
			RoomPolygon: acc.RoomPolygon,
			Windows:     map[string]*WindowGeometry{name: w},
		})
	}
	return reqs
}

// BuildDirectionAngleRequests implements DirectionAngle.Parse.
func BuildDirectionAngleRequests(acc *Accumulator) []StageRequest {
	return buildDirectionAngleOrReferencePoint(KindDirectionAngle, acc)
}

// BuildReferencePointRequests implements ReferencePoint.Parse.
func BuildReferencePointRequests(acc *Accumulator) []StageRequest {
	return buildDirectionAngleOrReferencePoint(KindReferencePoint, acc)
}

// BuildObstructionRequests implements Obstruction.Parse: iterates
// accumulator.reference_point (populated by the previous stage), pulling
// direction_angle[name] to fill direction_angle and the shared mesh from the
// accumulator root. Windows that already carry horizon/zenith (the client
// supplied them) are skipped entirely.
func BuildObstructionRequests(acc *Accumulator) []StageRequest {
	names := sortedKeysPoint3(acc.ReferencePoint)
	reqs := make([]StageRequest, 0, len(names))
	for _, name := range names {
		if w, ok := acc.Windows[name]; ok && w.Horizon != nil && w.Zenith != nil {
			continue
		}
		rp := acc.ReferencePoint[name]
		angle := acc.DirectionAngle[name]
		reqs = append(reqs, StageRequest{
			Kind:           KindObstruction,
			WindowName:     name,
			X:              rp.X,
			Y:              rp.Y,
			Z:              rp.Z,
			DirectionAngle: angle,
			Mesh:           acc.Mesh,
		})
	}
	return reqs
}

// BuildObstructionSingleRequest builds the single, non-fan-out Obstruction
// request used by /obstruction, /horizon, /zenith, where x/y/z/direction are
// given directly in the inbound body rather than derived via reference-point.
func BuildObstructionSingleRequest(x, y, z, directionAngle float64, mesh []Point3) StageRequest {
	return StageRequest{
		Kind:           KindObstruction,
		X:              x,
		Y:              y,
		Z:              z,
		DirectionAngle: directionAngle,
		Mesh:           mesh,
	}
}

// BuildEncodeRequests implements Encode.Parse: one request per window,
// carrying the full geometry (including obstruction arrays and direction
// angle, already attached to acc.Windows by prior stages).
func BuildEncodeRequests(acc *Accumulator) []StageRequest {
	names := sortedKeys(acc.Windows)
	reqs := make([]StageRequest, 0, len(names))
	for _, name := range names {
		w := acc.Windows[name]
		reqs = append(reqs, StageRequest{
			Kind:        KindEncode,
			WindowName:  name,
			ModelType:   acc.ModelType,
			RoomPolygon: acc.RoomPolygon,
			Windows:     map[string]*WindowGeometry{name: w},
		})
	}
	return reqs
}

// BuildModelRequests implements Model.Parse: one request per window,
// consuming that window's encoder-produced image bytes. The executor is
// responsible for attaching EncodedImage per window since images are
// per-fan-out-iteration outputs, not accumulator-root state (see the
// resolved open question on multi-window encoder images, SPEC_FULL.md §5).
func BuildModelRequests(acc *Accumulator, imagesByWindow map[string][]byte) []StageRequest {
	names := sortedKeysBytes(imagesByWindow)
	reqs := make([]StageRequest, 0, len(names))
	for _, name := range names {
		reqs = append(reqs, StageRequest{
			Kind:         KindModel,
			WindowName:   name,
			EncodedImage: imagesByWindow[name],
		})
	}
	return reqs
}

// BuildMergeRequest implements Merge.Parse: a single request aggregating all
// windows' geometry and simulations.
func BuildMergeRequest(acc *Accumulator) StageRequest {
	return StageRequest{
		Kind:        KindMerge,
		RoomPolygon: acc.RoomPolygon,
		Windows:     acc.Windows,
		Simulations: acc.Simulations,
	}
}

// BuildStatsRequest implements Stats.Parse: a single request over the final
// result matrix and mask.
func BuildStatsRequest(acc *Accumulator) StageRequest {
	return StageRequest{
		Kind:      KindStats,
		DFValues:  acc.Result,
		StatsMask: acc.ResultMask,
	}
}

func sortedKeys(m map[string]*WindowGeometry) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func sortedKeysPoint3(m map[string]Point3) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func sortedKeysBytes(m map[string][]byte) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
