package pipeline

import (
	"testing"

	"github.com/upskiller-xyz/lux-gateway/internal/gwerrors"
)

func TestParseDirectionAngleResponse(t *testing.T) {
	wire := map[string]interface{}{
		"status":          "success",
		"direction_angle": map[string]interface{}{"w1": 1.5},
	}
	d, err := ParseDirectionAngleResponse(wire, "w1")
	if err != nil {
		t.Fatalf("ParseDirectionAngleResponse: %v", err)
	}
	if d.DirectionAngle == nil || *d.DirectionAngle != 1.5 {
		t.Errorf("DirectionAngle = %v, want 1.5", d.DirectionAngle)
	}
}

func TestParseDirectionAngleResponseErrorStatus(t *testing.T) {
	wire := map[string]interface{}{"status": "error", "error": "bad geometry"}
	_, err := ParseDirectionAngleResponse(wire, "w1")
	gwErr, ok := gwerrors.As(err)
	if !ok {
		t.Fatalf("expected a gwerrors.Error, got %v", err)
	}
	if gwErr.Kind != gwerrors.KindResponse || gwErr.Message != "bad geometry" {
		t.Errorf("got %+v, want Kind=Response Message=bad geometry", gwErr)
	}
}

func TestParseReferencePointResponse(t *testing.T) {
	wire := map[string]interface{}{
		"status":          "success",
		"reference_point": map[string]interface{}{"w1": map[string]interface{}{"x": 1.0, "y": 2.0, "z": 3.0}},
	}
	d, err := ParseReferencePointResponse(wire, "w1")
	if err != nil {
		t.Fatalf("ParseReferencePointResponse: %v", err)
	}
	want := Point3{X: 1, Y: 2, Z: 3}
	if *d.ReferencePoint != want {
		t.Errorf("ReferencePoint = %+v, want %+v", *d.ReferencePoint, want)
	}
}

func TestParseObstructionResponse(t *testing.T) {
	wire := map[string]interface{}{
		"status": "success",
		"data": map[string]interface{}{
			"results": []interface{}{
				map[string]interface{}{
					"horizon": map[string]interface{}{"obstruction_angle_degrees": 10.0},
					"zenith":  map[string]interface{}{"obstruction_angle_degrees": 20.0},
				},
				map[string]interface{}{
					"horizon": map[string]interface{}{"obstruction_angle_degrees": 11.0},
					"zenith":  map[string]interface{}{"obstruction_angle_degrees": 21.0},
				},
			},
		},
	}
	d, err := ParseObstructionResponse(wire, "w1")
	if err != nil {
		t.Fatalf("ParseObstructionResponse: %v", err)
	}
	if len(d.Horizon) != 2 || d.Horizon[0] != 10 || d.Horizon[1] != 11 {
		t.Errorf("Horizon = %v, want [10 11]", d.Horizon)
	}
	if len(d.Zenith) != 2 || d.Zenith[0] != 20 || d.Zenith[1] != 21 {
		t.Errorf("Zenith = %v, want [20 21]", d.Zenith)
	}
}

func TestParseEncoderResponsePNG(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0}
	result, err := ParseEncoderResponse(png, "w1")
	if err != nil {
		t.Fatalf("ParseEncoderResponse: %v", err)
	}
	if len(result.Image) != len(png) {
		t.Errorf("expected raw PNG bytes passed through unchanged")
	}
	if result.Mask != nil {
		t.Errorf("a raw PNG response carries no mask")
	}
}

func TestParseEncoderResponseInvalid(t *testing.T) {
	_, err := ParseEncoderResponse([]byte("not an image or archive"), "w1")
	gwErr, ok := gwerrors.As(err)
	if !ok {
		t.Fatalf("expected a gwerrors.Error, got %v", err)
	}
	if gwErr.Kind != gwerrors.KindResponse {
		t.Errorf("Kind = %v, want KindResponse", gwErr.Kind)
	}
}

func TestParseModelResponse(t *testing.T) {
	wire := map[string]interface{}{
		"status":     "success",
		"simulation": []interface{}{[]interface{}{0.1, 0.2}, []interface{}{0.3, 0.4}},
		"mask":       []interface{}{[]interface{}{1.0, 0.0}, []interface{}{0.0, 1.0}},
	}
	d, err := ParseModelResponse(wire, "w1")
	if err != nil {
		t.Fatalf("ParseModelResponse: %v", err)
	}
	if d.Simulation == nil || d.Simulation.DFValues[1][1] != 0.4 {
		t.Errorf("Simulation.DFValues = %v", d.Simulation)
	}
	if d.Simulation.Mask[0][0] != 1 {
		t.Errorf("Simulation.Mask = %v", d.Simulation.Mask)
	}
}

func TestParseMergerResponse(t *testing.T) {
	wire := map[string]interface{}{
		"status": "success",
		"result": []interface{}{[]interface{}{1.0}},
		"mask":   []interface{}{[]interface{}{0.0}},
	}
	d, err := ParseMergerResponse(wire)
	if err != nil {
		t.Fatalf("ParseMergerResponse: %v", err)
	}
	if d.Result[0][0] != 1 {
		t.Errorf("Result = %v", d.Result)
	}
	if d.ResultMask[0][0] != 0 {
		t.Errorf("ResultMask = %v", d.ResultMask)
	}
}

func TestParseStatsResponse(t *testing.T) {
	wire := map[string]interface{}{"status": "success", "average": 0.5, "min": 0.1, "max": 0.9}
	d, err := ParseStatsResponse(wire)
	if err != nil {
		t.Fatalf("ParseStatsResponse: %v", err)
	}
	if len(d.Stats) != 3 {
		t.Fatalf("len(Stats) = %d, want 3", len(d.Stats))
	}
	if d.Stats["average"] != 0.5 {
		t.Errorf("Stats[average] = %v, want 0.5", d.Stats["average"])
	}
	if _, ok := d.Stats["status"]; ok {
		t.Errorf("Stats should not include the status field")
	}
}
