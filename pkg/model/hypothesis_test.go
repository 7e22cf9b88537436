package model

import "testing"

func TestClamp(t *testing.T) {
	cases := []struct {
		name      string
		v, lo, hi float64
		want      float64
	}{
		{"below min", 0.01, 0.05, 0.95, 0.05},
		{"above max", 0.99, 0.05, 0.95, 0.95},
		{"within range", 0.42, 0.05, 0.95, 0.42},
		{"equal to min", 0.05, 0.05, 0.95, 0.05},
		{"equal to max", 0.95, 0.05, 0.95, 0.95},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := Clamp(c.v, c.lo, c.hi); got != c.want {
				t.Errorf("Clamp(%v, %v, %v) = %v, want %v", c.v, c.lo, c.hi, got, c.want)
			}
		})
	}
}

func TestHypothesis_RecordDelta_TrimsToWindow(t *testing.T) {
	h := &Hypothesis{}
	for i := 0; i < 15; i++ {
		h.RecordDelta(0.01, 10)
	}
	sum, full := h.RecentDeltaSum(10)
	if !full {
		t.Fatalf("expected window to be full after 15 deltas with window 10")
	}
	want := 0.10
	if diff := sum - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("expected sum %v, got %v", want, sum)
	}
}

func TestHypothesis_RecentDeltaSum_NotFullBelowWindow(t *testing.T) {
	h := &Hypothesis{}
	h.RecordDelta(0.06, 10)
	h.RecordDelta(0.06, 10)
	_, full := h.RecentDeltaSum(10)
	if full {
		t.Errorf("expected window not full with only 2 of 10 entries recorded")
	}
}
