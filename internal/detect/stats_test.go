package detect

import (
	"math"
	"testing"
)

func TestMean(t *testing.T) {
	if got := mean(nil); got != 0 {
		t.Errorf("mean(nil) = %v, want 0", got)
	}
	if got := mean([]float64{2, 4, 6}); got != 4 {
		t.Errorf("mean = %v, want 4", got)
	}
}

func TestStddev(t *testing.T) {
	if got := stddev([]float64{5}); got != 0 {
		t.Errorf("stddev(single) = %v, want 0", got)
	}
	if got := stddev([]float64{100, 100, 100}); got != 0 {
		t.Errorf("stddev(identical) = %v, want 0", got)
	}
	got := stddev([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	if math.Abs(got-2) > 1e-9 {
		t.Errorf("stddev = %v, want 2", got)
	}
}

func TestUniformity(t *testing.T) {
	cases := []struct {
		name   string
		values []float64
		want   float64
	}{
		{"identical values score 1", []float64{100, 100, 100, 100}, 1},
		{"empty clamps to 0", nil, 0},
		{"zero mean clamps to 0", []float64{0, 0, 0}, 0},
	}
	for _, tc := range cases {
		if got := uniformity(tc.values); got != tc.want {
			t.Errorf("%s: uniformity = %v, want %v", tc.name, got, tc.want)
		}
	}

	// Highly varied series score low, never negative.
	u := uniformity([]float64{1, 500, 2, 900, 3})
	if u < 0 || u > 0.5 {
		t.Errorf("varied series uniformity = %v, want low and non-negative", u)
	}
}
