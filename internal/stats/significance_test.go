package stats

import (
	"math"
	"testing"
)

func TestSignificanceTest_NoData(t *testing.T) {
	if got := SignificanceTest(0, 0, 10, 100); got != 0.5 {
		t.Errorf("SignificanceTest with empty A = %v, want 0.5", got)
	}
	if got := SignificanceTest(10, 100, 0, 0); got != 0.5 {
		t.Errorf("SignificanceTest with empty B = %v, want 0.5", got)
	}
}

func TestSignificanceTest_EqualRates(t *testing.T) {
	got := SignificanceTest(10, 100, 10, 100)
	if math.Abs(got-0.5) > 1e-9 {
		t.Errorf("SignificanceTest(equal) = %v, want 0.5", got)
	}
}

func TestSignificanceTest_ZeroStandardError(t *testing.T) {
	// Both at 0% pools to 0, which zeroes the standard error.
	if got := SignificanceTest(0, 100, 0, 100); got != 0.5 {
		t.Errorf("SignificanceTest(0%% both) = %v, want 0.5", got)
	}
	// Both at 100% likewise.
	if got := SignificanceTest(100, 100, 100, 100); got != 0.5 {
		t.Errorf("SignificanceTest(100%% both) = %v, want 0.5", got)
	}
}

func TestSignificanceTest_ClearImprovement(t *testing.T) {
	// 15% vs 12% over 1000 visitors each: z is about 1.96, so the
	// confidence lands just above 0.975.
	got := SignificanceTest(150, 1000, 120, 1000)
	if math.Abs(got-0.975) > 0.005 {
		t.Errorf("SignificanceTest(150/1000 vs 120/1000) = %v, want about 0.975", got)
	}
}

func TestSignificanceTest_Symmetric(t *testing.T) {
	ab := SignificanceTest(150, 1000, 120, 1000)
	ba := SignificanceTest(120, 1000, 150, 1000)
	if math.Abs(ab+ba-1) > 1e-6 {
		t.Errorf("confidences not complementary: %v + %v != 1", ab, ba)
	}
}

func TestSignificanceTest_SmallSampleInconclusive(t *testing.T) {
	// 11 vs 10 conversions over 100 visitors is nowhere near significant.
	got := SignificanceTest(11, 100, 10, 100)
	if got > 0.7 {
		t.Errorf("SignificanceTest(small sample) = %v, want well below 0.95", got)
	}
}

func TestNormalCDF(t *testing.T) {
	cases := []struct {
		x, want, tol float64
	}{
		{0, 0.5, 1e-6},
		{1.96, 0.975, 0.001},
		{-1.96, 0.025, 0.001},
		{3, 0.99865, 0.001},
	}
	for _, tc := range cases {
		if got := normalCDF(tc.x); math.Abs(got-tc.want) > tc.tol {
			t.Errorf("normalCDF(%v) = %v, want %v", tc.x, got, tc.want)
		}
	}
}
