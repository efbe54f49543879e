package lcms

import (
	"errors"
	"math"
	"testing"
)

var chimericRun = synthRun{
	ms1: 25,
	traces: []synthTrace{
		{mz: 500.0, height: 1000, center: 12, sigma: 2},
		{mz: 500.25, height: 300, center: 12, sigma: 2},
		{mz: 501.0034, height: 300, center: 12, sigma: 2},
		// below a quarter of the precursor
		{mz: 499.8, height: 200, center: 12, sigma: 2},
		// outside the window
		{mz: 502.0, height: 900, center: 12, sigma: 2},
	},
}

func TestFindChimerics(t *testing.T) {
	s := newTestSample(t, chimericRun)
	ms1, _ := s.Run.ScanByNumber(ms1ID(t, s, 12))
	feature, ok := s.Builder.Detect(ms1.ID, 500.0)
	if !ok {
		t.Fatalf("no trace at m/z 500")
	}
	w := IsolationWindow{Lower: 0.5, Upper: 1.5}
	chimerics, err := s.FindChimerics(ms1, Precursor{Mz: 500.0, ScanID: -1}, w, feature)
	if err != nil {
		t.Fatalf("FindChimerics: %v", err)
	}
	if len(chimerics) != 1 {
		t.Fatalf("found %d chimerics, expected 1: %+v", len(chimerics), chimerics)
	}
	c := chimerics[0]
	if c.Mz != 500.25 || c.Intensity != 300 {
		t.Errorf("chimeric at m/z %v intensity %v", c.Mz, c.Intensity)
	}
	if c.Trace == nil || c.Trace.ID == feature.ID {
		t.Errorf("chimeric has no trace of its own")
	}
	if p := chimericPollution(chimerics, 1000); math.Abs(p-0.3) > 1e-12 {
		t.Errorf("pollution is %v, expected 0.3", p)
	}
}

func TestFindChimericsDefaultWindow(t *testing.T) {
	s := newTestSample(t, chimericRun)
	ms1, _ := s.Run.ScanByNumber(ms1ID(t, s, 12))
	feature, ok := s.Builder.Detect(ms1.ID, 500.0)
	if !ok {
		t.Fatalf("no trace at m/z 500")
	}
	// the default window of 0.25 on both sides just covers m/z 500.25
	chimerics, err := s.FindChimerics(ms1, Precursor{Mz: 500.0, ScanID: -1}, IsolationWindow{}, feature)
	if err != nil {
		t.Fatalf("FindChimerics: %v", err)
	}
	if len(chimerics) != 1 || chimerics[0].Mz != 500.25 {
		t.Errorf("chimerics %+v", chimerics)
	}
}

func TestFindChimericsMismatch(t *testing.T) {
	s := newTestSample(t, chimericRun)
	feature, ok := s.Builder.Detect(ms1ID(t, s, 12), 500.0)
	if !ok {
		t.Fatalf("no trace at m/z 500")
	}
	late, _ := s.Run.ScanByNumber(ms1ID(t, s, 24))
	_, err := s.FindChimerics(late, Precursor{Mz: 500.0, ScanID: -1}, IsolationWindow{}, feature)
	if !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("FindChimerics error is %v, expected ErrInvalidArgument", err)
	}
}

func TestChimericPollution(t *testing.T) {
	if p := chimericPollution(nil, 100); p != 0 {
		t.Errorf("pollution without chimerics is %v", p)
	}
	if p := chimericPollution([]Chimeric{{Intensity: 10}}, 0); p != 0 {
		t.Errorf("pollution without precursor intensity is %v", p)
	}
	cs := []Chimeric{{Intensity: 10}, {Intensity: 30}}
	if p := chimericPollution(cs, 80); p != 0.5 {
		t.Errorf("pollution is %v, expected 0.5", p)
	}
}
