package pipeline

import "testing"

func TestStageRequestToWireReferencePoint(t *testing.T) {
	r := StageRequest{
		Kind:        KindReferencePoint,
		RoomPolygon: []Point2{{X: 0, Y: 0}, {X: 1, Y: 1}},
		Windows:     map[string]*WindowGeometry{"w1": {X1: 0, Y1: 0, Z1: 1}},
	}
	wire, err := r.ToWire()
	if err != nil {
		t.Fatalf("ToWire: %v", err)
	}
	if _, ok := wire["room_polygon"]; !ok {
		t.Errorf("wire missing room_polygon")
	}
	if _, ok := wire["windows"]; !ok {
		t.Errorf("wire missing windows")
	}
}

func TestStageRequestToWireModelHasNoWireForm(t *testing.T) {
	r := StageRequest{Kind: KindModel, EncodedImage: []byte{1, 2}}
	if _, err := r.ToWire(); err == nil {
		t.Errorf("expected an error: model requests are posted as multipart, not JSON")
	}
}

func TestBuildDirectionAngleRequestsOnePerWindow(t *testing.T) {
	acc := New()
	acc.Windows["w1"] = &WindowGeometry{}
	acc.Windows["w2"] = &WindowGeometry{}
	reqs := BuildDirectionAngleRequests(acc)
	if len(reqs) != 2 {
		t.Fatalf("len(reqs) = %d, want 2", len(reqs))
	}
	if reqs[0].WindowName >= reqs[1].WindowName {
		t.Errorf("expected requests sorted by window name, got %q then %q", reqs[0].WindowName, reqs[1].WindowName)
	}
}

func TestBuildObstructionRequestsSkipsClientSuppliedHorizonZenith(t *testing.T) {
	acc := New()
	acc.Windows["w1"] = &WindowGeometry{Horizon: []float64{1}, Zenith: []float64{2}}
	acc.Windows["w2"] = &WindowGeometry{}
	acc.ReferencePoint["w1"] = Point3{X: 1}
	acc.ReferencePoint["w2"] = Point3{X: 2}

	reqs := BuildObstructionRequests(acc)
	if len(reqs) != 1 {
		t.Fatalf("len(reqs) = %d, want 1 (w1 already has horizon/zenith)", len(reqs))
	}
	if reqs[0].WindowName != "w2" {
		t.Errorf("WindowName = %q, want w2", reqs[0].WindowName)
	}
}

func TestBuildModelRequestsOrderedByWindowName(t *testing.T) {
	images := map[string][]byte{"b": {2}, "a": {1}}
	reqs := BuildModelRequests(nil, images)
	if len(reqs) != 2 || reqs[0].WindowName != "a" || reqs[1].WindowName != "b" {
		t.Errorf("expected requests sorted by window name, got %+v", reqs)
	}
}

func TestHasRootObstructionCoords(t *testing.T) {
	acc := New()
	if acc.hasRootObstructionCoords() {
		t.Errorf("fresh accumulator should not have root obstruction coords")
	}
	acc.SetRootObstructionInputs(1, 2, 3, 0.5)
	if !acc.hasRootObstructionCoords() {
		t.Errorf("expected root obstruction coords after SetRootObstructionInputs")
	}
	req := acc.rootObstructionRequest()
	if req.X != 1 || req.Y != 2 || req.Z != 3 || req.DirectionAngle != 0.5 {
		t.Errorf("rootObstructionRequest = %+v, want x=1 y=2 z=3 angle=0.5", req)
	}
}
