package validate

import (
	"testing"

	"github.com/upskiller-xyz/lux-gateway/internal/gwerrors"
	"github.com/upskiller-xyz/lux-gateway/internal/pipeline"
)

func TestResolveEndpointAliases(t *testing.T) {
	cases := map[string]pipeline.Endpoint{
		"simulate":             pipeline.EndpointSimulate,
		"run":                  pipeline.EndpointSimulate,
		"horizon":              pipeline.EndpointObstruction,
		"zenith":               pipeline.EndpointObstruction,
		"obstruction_parallel": pipeline.EndpointObstructionAll,
	}
	for seg, want := range cases {
		ep, alias, ok := ResolveEndpoint(seg)
		if !ok {
			t.Errorf("ResolveEndpoint(%q) not found", seg)
			continue
		}
		if ep != want {
			t.Errorf("ResolveEndpoint(%q) = %v, want %v", seg, ep, want)
		}
		if alias != seg {
			t.Errorf("ResolveEndpoint(%q) alias = %q, want %q", seg, alias, seg)
		}
	}
}

func TestResolveEndpointUnknown(t *testing.T) {
	if _, _, ok := ResolveEndpoint("bogus"); ok {
		t.Errorf("expected ResolveEndpoint(bogus) to fail")
	}
}

const validGetReferencePointBody = `{
	"room_polygon": [[0,0],[2,0],[2,2],[0,2]],
	"windows": {"w1": {"x1":0,"y1":0,"z1":1,"x2":2,"y2":0,"z2":2,"window_frame_ratio":0.8}}
}`

func TestParseAndValidateGetReferencePoint(t *testing.T) {
	acc, err := ParseAndValidate(pipeline.EndpointGetReferencePoint, []byte(validGetReferencePointBody))
	if err != nil {
		t.Fatalf("ParseAndValidate: %v", err)
	}
	if len(acc.RoomPolygon) != 4 {
		t.Errorf("RoomPolygon length = %d, want 4", len(acc.RoomPolygon))
	}
	w, ok := acc.Windows["w1"]
	if !ok {
		t.Fatalf("window w1 not populated")
	}
	if w.WindowFrameRatio != 0.8 {
		t.Errorf("WindowFrameRatio = %v, want 0.8", w.WindowFrameRatio)
	}
}

func TestParseAndValidateRejectsInvalidJSON(t *testing.T) {
	_, err := ParseAndValidate(pipeline.EndpointGetReferencePoint, []byte("{not json"))
	assertValidationError(t, err)
}

func TestParseAndValidateRejectsMissingRequiredField(t *testing.T) {
	body := `{"room_polygon": [[0,0],[2,0],[2,2]]}` // missing "windows"
	_, err := ParseAndValidate(pipeline.EndpointGetReferencePoint, []byte(body))
	assertValidationError(t, err)
}

func TestParseAndValidateRejectsFrameRatioOutOfRange(t *testing.T) {
	body := `{
		"room_polygon": [[0,0],[2,0],[2,2],[0,2]],
		"windows": {"w1": {"x1":0,"y1":0,"z1":1,"x2":2,"y2":0,"z2":2,"window_frame_ratio":1.5}}
	}`
	_, err := ParseAndValidate(pipeline.EndpointGetReferencePoint, []byte(body))
	assertValidationError(t, err)
}

func TestParseAndValidateObstructionRequiresCoordinates(t *testing.T) {
	body := `{"x": 1, "y": 2, "z": 3, "mesh": [[0,0,0],[1,0,0],[0,1,0]]}` // missing direction_angle
	_, err := ParseAndValidate(pipeline.EndpointObstruction, []byte(body))
	assertValidationError(t, err)
}

func TestParseAndValidateObstructionSetsRootInputs(t *testing.T) {
	body := `{"x": 1, "y": 2, "z": 3, "direction_angle": 0.5, "mesh": [[0,0,0],[1,0,0],[0,1,0]]}`
	acc, err := ParseAndValidate(pipeline.EndpointObstruction, []byte(body))
	if err != nil {
		t.Fatalf("ParseAndValidate: %v", err)
	}
	if len(acc.Mesh) != 3 {
		t.Errorf("Mesh length = %d, want 3", len(acc.Mesh))
	}
}

func TestParseAndValidateStatsPassesThroughMatrices(t *testing.T) {
	body := `{"df_values": [[0.1,0.2]], "mask": [[1,0]]}`
	acc, err := ParseAndValidate(pipeline.EndpointStats, []byte(body))
	if err != nil {
		t.Fatalf("ParseAndValidate: %v", err)
	}
	if acc.Result[0][1] != 0.2 {
		t.Errorf("Result = %v", acc.Result)
	}
	if acc.ResultMask[0][0] != 1 {
		t.Errorf("ResultMask = %v", acc.ResultMask)
	}
}

func assertValidationError(t *testing.T, err error) {
	t.Helper()
	gwErr, ok := gwerrors.As(err)
	if !ok {
		t.Fatalf("expected a gwerrors.Error, got %v", err)
	}
	if gwErr.Kind != gwerrors.KindValidation {
		t.Errorf("Kind = %v, want KindValidation", gwErr.Kind)
	}
}
