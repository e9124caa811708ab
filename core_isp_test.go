package main

import "testing"

func TestDepthTestModes(t *testing.T) {
	cases := []struct {
		mode     uint32
		z, ref   float32
		want     bool
	}{
		{0, 1, 1, false},
		{1, 0.4, 0.5, true},
		{1, 0.5, 0.5, false},
		{2, 0.5, 0.5, true},
		{2, 0.4, 0.5, false},
		{3, 0.5, 0.5, true},
		{3, 0.6, 0.5, false},
		{4, 0.6, 0.5, true},
		{4, 0.5, 0.5, false},
		{5, 0.4, 0.5, true},
		{5, 0.5, 0.5, false},
		{6, 0.5, 0.5, true},
		{6, 0.4, 0.5, false},
		{7, 0, 0, true},
	}
	for _, tc := range cases {
		if got := depthTest(tc.mode, tc.z, tc.ref); got != tc.want {
			t.Errorf("depthTest(%d, %v, %v) = %v, want %v", tc.mode, tc.z, tc.ref, got, tc.want)
		}
	}
}

func TestEdgeFunctionSignFlipsOnWinding(t *testing.T) {
	cw := edgeFunction(0, 0, 1, 0, 0, 1)
	ccw := edgeFunction(0, 0, 0, 1, 1, 0)
	if (cw > 0) == (ccw > 0) {
		t.Fatalf("expected opposite signs for reversed winding, got %v and %v", cw, ccw)
	}
}

func TestPlaneStepper3InterpolatesVertexValues(t *testing.T) {
	p := setupPlaneStepper3(0, 0, 1, 10, 0, 3, 0, 10, 5, 1/edgeFunction(0, 0, 10, 0, 0, 10))
	got := p.ip(0, 0)
	if diff := got - 1; diff > 1e-3 || diff < -1e-3 {
		t.Fatalf("ip(v0) = %v, want ~1", got)
	}
	got = p.ip(10, 0)
	if diff := got - 3; diff > 1e-3 || diff < -1e-3 {
		t.Fatalf("ip(v1) = %v, want ~3", got)
	}
	got = p.ip(0, 10)
	if diff := got - 5; diff > 1e-3 || diff < -1e-3 {
		t.Fatalf("ip(v2) = %v, want ~5", got)
	}
}
