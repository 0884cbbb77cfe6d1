package pipeline

import (
	"fmt"

	"github.com/upskiller-xyz/lux-gateway/internal/gwerrors"
	"github.com/upskiller-xyz/lux-gateway/internal/npz"
)

// checkStatus implements the shared JSON-with-status/error convention: if
// status == "error", raise a Response error carrying the error string.
func checkStatus(wire map[string]interface{}, service string) error {
	status, _ := wire["status"].(string)
	if status != "error" {
		return nil
	}
	msg := "downstream reported an error"
	if e, ok := wire["error"].(string); ok && e != "" {
		msg = e
	}
	err := gwerrors.New(gwerrors.KindResponse, msg)
	err.Service = service
	return err
}

// ParseDirectionAngleResponse extracts {status, direction_angle:{name: radians}}.
func ParseDirectionAngleResponse(wire map[string]interface{}, windowName string) (Delta, error) {
	if err := checkStatus(wire, "encoder"); err != nil {
		return Delta{}, err
	}
	m, ok := wire["direction_angle"].(map[string]interface{})
	if !ok {
		return Delta{}, gwerrors.New(gwerrors.KindInternal, "direction_angle response missing direction_angle map")
	}
	v, ok := m[windowName]
	if !ok {
		return Delta{}, gwerrors.New(gwerrors.KindInternal, fmt.Sprintf("direction_angle response missing window %q", windowName))
	}
	f, err := toFloat(v)
	if err != nil {
		return Delta{}, gwerrors.Wrap(gwerrors.KindInternal, "encoder", err)
	}
	return Delta{WindowName: windowName, DirectionAngle: &f}, nil
}

// ParseReferencePointResponse extracts {status, reference_point:{name:{x,y,z}}}.
func ParseReferencePointResponse(wire map[string]interface{}, windowName string) (Delta, error) {
	if err := checkStatus(wire, "encoder"); err != nil {
		return Delta{}, err
	}
	m, ok := wire["reference_point"].(map[string]interface{})
	if !ok {
		return Delta{}, gwerrors.New(gwerrors.KindInternal, "reference_point response missing reference_point map")
	}
	entry, ok := m[windowName].(map[string]interface{})
	if !ok {
		return Delta{}, gwerrors.New(gwerrors.KindInternal, fmt.Sprintf("reference_point response missing window %q", windowName))
	}
	x, _ := toFloat(entry["x"])
	y, _ := toFloat(entry["y"])
	z, _ := toFloat(entry["z"])
	p := Point3{X: x, Y: y, Z: z}
	return Delta{WindowName: windowName, ReferencePoint: &p}, nil
}

// ParseObstructionResponse extracts the obstruction service's angular-scan
// shape: {status, data:{results:[{horizon:{obstruction_angle_degrees}, zenith:{...}}, ...]}}
// into flat horizon/zenith float slices, one entry per sampled direction.
func ParseObstructionResponse(wire map[string]interface{}, windowName string) (Delta, error) {
	if err := checkStatus(wire, "obstruction"); err != nil {
		return Delta{}, err
	}
	data, ok := wire["data"].(map[string]interface{})
	if !ok {
		return Delta{}, gwerrors.New(gwerrors.KindInternal, "obstruction response missing data")
	}
	results, ok := data["results"].([]interface{})
	if !ok {
		return Delta{}, gwerrors.New(gwerrors.KindInternal, "obstruction response missing data.results")
	}

	horizon := make([]float64, 0, len(results))
	zenith := make([]float64, 0, len(results))
	for _, raw := range results {
		entry, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		if h, ok := entry["horizon"].(map[string]interface{}); ok {
			if v, err := toFloat(h["obstruction_angle_degrees"]); err == nil {
				horizon = append(horizon, v)
			}
		}
		if z, ok := entry["zenith"].(map[string]interface{}); ok {
			if v, err := toFloat(z["obstruction_angle_degrees"]); err == nil {
				zenith = append(zenith, v)
			}
		}
	}
	return Delta{WindowName: windowName, Horizon: horizon, Zenith: zenith}, nil
}

// EncoderResult is the outcome of parsing an encoder binary response: the
// normalized PNG image bytes and, for NPZ responses, the per-window mask.
type EncoderResult struct {
	Image []byte
	Mask  [][]int
}

// ParseEncoderResponse implements the encoder binary dispatch of spec §4.2:
// PK -> NPZ archive (extract <name>_image/_mask, qualified or unqualified),
// PNG magic -> raw image with no mask, anything else -> Response error.
func ParseEncoderResponse(raw []byte, windowName string) (EncoderResult, error) {
	switch {
	case npz.IsZIP(raw):
		return parseEncoderNPZ(raw, windowName)
	case npz.IsPNG(raw):
		return EncoderResult{Image: raw}, nil
	default:
		err := gwerrors.New(gwerrors.KindResponse, "invalid encoder response: neither NPZ nor PNG")
		err.Service = "encoder"
		return EncoderResult{}, err
	}
}

func parseEncoderNPZ(raw []byte, windowName string) (EncoderResult, error) {
	arrays, err := npz.DecodeArchive(raw)
	if err != nil {
		e := gwerrors.Wrap(gwerrors.KindInternal, "encoder", err)
		return EncoderResult{}, e
	}

	imageArr, imageOK := pickMember(arrays, windowName, "_image", "image")
	maskArr, maskOK := pickMember(arrays, windowName, "_mask", "mask")

	var result EncoderResult
	if imageOK {
		png, err := npz.NormalizeToPNG(imageArr)
		if err != nil {
			return EncoderResult{}, gwerrors.Wrap(gwerrors.KindInternal, "encoder", err)
		}
		result.Image = png
	}
	if maskOK {
		mask, err := arrayToIntMatrix(maskArr)
		if err != nil {
			return EncoderResult{}, gwerrors.Wrap(gwerrors.KindInternal, "encoder", err)
		}
		result.Mask = mask
	}
	if !imageOK {
		err := gwerrors.New(gwerrors.KindResponse, "encoder NPZ missing an _image member")
		err.Service = "encoder"
		return EncoderResult{}, err
	}
	return result, nil
}

// pickMember resolves a member by preference order: window-qualified name
// first (<window>_image), else unqualified (image), else the first member
// whose name ends in the suffix.
func pickMember(arrays map[string]npz.Array, windowName, suffix, unqualified string) (npz.Array, bool) {
	if windowName != "" {
		if a, ok := arrays[windowName+suffix]; ok {
			return a, true
		}
	}
	if a, ok := arrays[unqualified]; ok {
		return a, true
	}
	for name, a := range arrays {
		if len(name) >= len(suffix) && name[len(name)-len(suffix):] == suffix {
			return a, true
		}
	}
	return npz.Array{}, false
}

func arrayToIntMatrix(a npz.Array) ([][]int, error) {
	if len(a.Shape) != 2 {
		return nil, fmt.Errorf("mask array must be 2D, got shape %v", a.Shape)
	}
	h, w := a.Shape[0], a.Shape[1]
	vals, err := a.Float64()
	if err != nil {
		return nil, err
	}
	out := make([][]int, h)
	for y := 0; y < h; y++ {
		row := make([]int, w)
		for x := 0; x < w; x++ {
			row[x] = int(vals[y*w+x])
		}
		out[y] = row
	}
	return out, nil
}

// ParseModelResponse extracts {status, simulation, shape?, mask?}.
func ParseModelResponse(wire map[string]interface{}, windowName string) (Delta, error) {
	if err := checkStatus(wire, "model"); err != nil {
		return Delta{}, err
	}
	dfRaw, ok := wire["simulation"]
	if !ok {
		return Delta{}, gwerrors.New(gwerrors.KindInternal, "model response missing simulation")
	}
	df, err := toFloatMatrix(dfRaw)
	if err != nil {
		return Delta{}, gwerrors.Wrap(gwerrors.KindInternal, "model", err)
	}
	sim := &Simulation{DFValues: df}
	if maskRaw, ok := wire["mask"]; ok && maskRaw != nil {
		mask, err := toIntMatrix(maskRaw)
		if err == nil {
			sim.Mask = mask
		}
	}
	return Delta{WindowName: windowName, Simulation: sim}, nil
}

// ParseMergerResponse extracts {status, result, mask} into the room-level
// Result and ResultMask fields; the per-window mask map is left as it is.
func ParseMergerResponse(wire map[string]interface{}) (Delta, error) {
	if err := checkStatus(wire, "merger"); err != nil {
		return Delta{}, err
	}
	resultRaw, ok := wire["result"]
	if !ok {
		return Delta{}, gwerrors.New(gwerrors.KindInternal, "merger response missing result")
	}
	result, err := toFloatMatrix(resultRaw)
	if err != nil {
		return Delta{}, gwerrors.Wrap(gwerrors.KindInternal, "merger", err)
	}
	d := Delta{Result: result}
	if maskRaw, ok := wire["mask"]; ok && maskRaw != nil {
		mask, err := toIntMatrix(maskRaw)
		if err == nil {
			d.ResultMask = mask
		}
	}
	return d, nil
}

// ParseStatsResponse passes through a scalar-metric map.
func ParseStatsResponse(wire map[string]interface{}) (Delta, error) {
	if err := checkStatus(wire, "stats"); err != nil {
		return Delta{}, err
	}
	stats := make(map[string]float64, len(wire))
	for k, v := range wire {
		if k == "status" {
			continue
		}
		if f, err := toFloat(v); err == nil {
			stats[k] = f
		}
	}
	return Delta{Stats: stats}, nil
}

func toFloat(v interface{}) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case int:
		return float64(t), nil
	default:
		return 0, fmt.Errorf("expected numeric value, got %T", v)
	}
}

func toFloatMatrix(v interface{}) ([][]float64, error) {
	rows, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("expected 2D array")
	}
	out := make([][]float64, len(rows))
	for i, rowRaw := range rows {
		row, ok := rowRaw.([]interface{})
		if !ok {
			return nil, fmt.Errorf("expected row array at index %d", i)
		}
		floats := make([]float64, len(row))
		for j, cell := range row {
			f, err := toFloat(cell)
			if err != nil {
				return nil, err
			}
			floats[j] = f
		}
		out[i] = floats
	}
	return out, nil
}

func toIntMatrix(v interface{}) ([][]int, error) {
	floats, err := toFloatMatrix(v)
	if err != nil {
		return nil, err
	}
	out := make([][]int, len(floats))
	for i, row := range floats {
		ints := make([]int, len(row))
		for j, f := range row {
			ints[j] = int(f)
		}
		out[i] = ints
	}
	return out, nil
}
