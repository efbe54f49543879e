package lcms

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func gaussianProfile(n int, floor float64, bumps ...[3]float64) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = floor
		for _, b := range bumps {
			d := (float64(i) - b[0]) / b[1]
			v[i] += b[2] * math.Exp(-d*d/2)
		}
	}
	return v
}

func constant(n int, level float64) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = level
	}
	return v
}

func TestDetectExtremaSingleBump(t *testing.T) {
	intensities := gaussianProfile(15, 10, [3]float64{7, 2, 1000})
	e := DetectExtrema(intensities, constant(15, 10), ExtremaOptions{})
	if diff := cmp.Diff([]int{0, 7, 14}, e.Index); diff != "" {
		t.Errorf("extrema mismatch (-want +got):\n%s", diff)
	}
	if !e.Valid() {
		t.Errorf("extrema %+v are not valid", e)
	}
	bounds := segmentBounds(e, len(intensities))
	if diff := cmp.Diff([][2]int{{0, 14}}, bounds); diff != "" {
		t.Errorf("segment bounds mismatch (-want +got):\n%s", diff)
	}
}

func TestDetectExtremaTwoBumps(t *testing.T) {
	intensities := gaussianProfile(21, 10, [3]float64{5, 1.8, 500}, [3]float64{15, 1.8, 500})
	if intensities[10] < 20 || intensities[10] > 40 {
		t.Fatalf("test profile has minimum %v", intensities[10])
	}
	e := DetectExtrema(intensities, constant(21, 10), ExtremaOptions{})
	if diff := cmp.Diff([]int{0, 5, 10, 15, 20}, e.Index); diff != "" {
		t.Errorf("extrema mismatch (-want +got):\n%s", diff)
	}
	bounds := segmentBounds(e, len(intensities))
	if diff := cmp.Diff([][2]int{{0, 10}, {11, 20}}, bounds); diff != "" {
		t.Errorf("segment bounds mismatch (-want +got):\n%s", diff)
	}
}

func TestDetectExtremaNoiseWiggle(t *testing.T) {
	// Wiggles of 3 on a noise level of 10 must not create extrema
	intensities := []float64{10, 13, 10, 13, 100, 300, 500, 300, 303, 100, 13, 10, 13, 10}
	e := DetectExtrema(intensities, constant(len(intensities), 10), ExtremaOptions{})
	if !e.Valid() {
		t.Fatalf("extrema %+v are not valid", e)
	}
	if e.Maxima() != 1 {
		t.Errorf("found %d maxima, expected 1: %+v", e.Maxima(), e)
	}
	if e.Index[1] != 6 {
		t.Errorf("maximum at %d, expected 6", e.Index[1])
	}
}

func TestDetectExtremaAlternate(t *testing.T) {
	profiles := [][]float64{
		{5, 4, 3, 2, 1},
		{1, 2, 3, 4, 5},
		{100, 0, 100, 0, 100, 0, 100},
		gaussianProfile(40, 0, [3]float64{8, 2, 300}, [3]float64{20, 3, 800}, [3]float64{31, 2, 150}),
		{0, 0, 0, 0},
		{7},
	}
	for _, p := range profiles {
		e := DetectExtrema(p, constant(len(p), 10), ExtremaOptions{})
		if !e.Valid() {
			t.Errorf("extrema of %v are not valid: %+v", p, e)
		}
		if e.Len() == 0 || !e.IsMinimum(0) {
			t.Errorf("first extremum of %v is not a minimum: %+v", p, e)
		}
	}
}

func TestAdaptiveNoise(t *testing.T) {
	short := []float64{1, 2, 3}
	if diff := cmp.Diff([]float64{4, 5, 6}, AdaptiveNoise(short, []float64{4, 5, 6})); diff != "" {
		t.Errorf("short profile mismatch (-want +got):\n%s", diff)
	}

	// 25 points: two blocks, the second absorbs the remainder
	flat := constant(25, 100)
	thr := AdaptiveNoise(flat, constant(25, 10))
	for i, v := range thr {
		// half the median of the lowest decile wins over twice the model noise
		if v != 50 {
			t.Errorf("threshold %d is %v, expected 50", i, v)
		}
	}
	low := AdaptiveNoise(constant(25, 10), constant(25, 30))
	for i, v := range low {
		if v != 60 {
			t.Errorf("threshold %d is %v, expected 60", i, v)
		}
	}
}

func TestSmoothExtrema(t *testing.T) {
	// a shallow dip near the top of a peak
	intensities := []float64{0, 100, 400, 380, 395, 200, 50, 0, 0}
	noise := constant(len(intensities), 10)

	e := DetectExtrema(intensities, noise, ExtremaOptions{})
	if e.Maxima() != 2 {
		t.Fatalf("without smoothing found %d maxima, expected 2: %+v", e.Maxima(), e)
	}
	e = DetectExtrema(intensities, noise, ExtremaOptions{Smooth: true, Power: 3, MinExtrema: 3})
	if !e.Valid() {
		t.Fatalf("smoothed extrema are not valid: %+v", e)
	}
	if diff := cmp.Diff([]int{0, 2, 8}, e.Index); diff != "" {
		t.Errorf("smoothed extrema mismatch (-want +got):\n%s", diff)
	}
}
