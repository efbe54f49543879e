package lcms

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/524D/mzfeat/internal/noise"
	"github.com/524D/mzfeat/internal/spectrum"
)

var errBroken = errors.New("broken store")

// failingStore fails every read once armed
type failingStore struct {
	SpectrumStore
	armed bool
}

func (f *failingStore) Scan(scanID int) (spectrum.Spectrum, error) {
	if f.armed {
		return nil, errBroken
	}
	return f.SpectrumStore.Scan(scanID)
}

func TestProcess(t *testing.T) {
	s := newTestSample(t, singlePeakRun)
	if err := s.Process(); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(s.Ions) != 1 {
		t.Fatalf("found %d ions, expected 1", len(s.Ions))
	}
	ion := s.Ions[0]
	if p := ion.Apex(); p.Mz != 400.0 || p.ScanID != ms1ID(t, s, 10) {
		t.Errorf("ion apex %+v", p)
	}
	if len(ion.MsMsScans) != 1 || ion.MsMs == nil {
		t.Errorf("ion has fragment scans %v", ion.MsMsScans)
	}
	// the profile is a Gaussian at 20 s with a width of 4 s
	shape := ion.PeakShape
	if math.Abs(shape.Mean-20) > 0.5 || math.Abs(shape.Sigma-4) > 0.5 || shape.R2 < 0.99 {
		t.Errorf("peak shape %+v", shape)
	}
	if s.Err() != nil {
		t.Errorf("sample error %v", s.Err())
	}
}

func TestProcessWithoutMsMs(t *testing.T) {
	s := newTestSample(t, correlationRun)
	if err := s.Process(); !errors.Is(err, ErrNoMsMs) {
		t.Errorf("Process error is %v, expected ErrNoMsMs", err)
	}
	p := DefaultParams()
	p.MS2.RequireMsMs = false
	s = newTestSampleWith(t, correlationRun, p)
	if err := s.Process(); err != nil {
		t.Errorf("Process: %v", err)
	}
	if len(s.Ions) != 0 {
		t.Errorf("found %d ions without fragment scans", len(s.Ions))
	}
}

func TestProcessStoreError(t *testing.T) {
	run, mem := singlePeakRun.build(t)
	store := &failingStore{SpectrumStore: mem}
	s, err := NewSample(run, store, DefaultParams(), discardLogger())
	if err != nil {
		t.Fatalf("NewSample: %v", err)
	}
	store.armed = true
	if err := s.Process(); !errors.Is(err, errBroken) {
		t.Errorf("Process error is %v, expected the store error", err)
	}
	if !errors.Is(s.Err(), errBroken) {
		t.Errorf("sample error is %v", s.Err())
	}

	if _, err := NewSample(run, store, DefaultParams(), discardLogger()); !errors.Is(err, errBroken) {
		t.Errorf("NewSample error is %v, expected the store error", err)
	}
}

func newTestInstance(t *testing.T, runs ...synthRun) (*Instance, []*failingStore) {
	t.Helper()
	in, err := NewInstance(DefaultParams(), discardLogger())
	if err != nil {
		t.Fatalf("NewInstance: %v", err)
	}
	var stores []*failingStore
	for _, r := range runs {
		run, mem := r.build(t)
		store := &failingStore{SpectrumStore: mem}
		s, err := in.AddSample(run, store)
		if err != nil {
			t.Fatalf("AddSample: %v", err)
		}
		s.MS1Noise = noise.Constant(5)
		s.MS2Noise = noise.Constant(0)
		stores = append(stores, store)
	}
	return in, stores
}

func TestInstanceProcessAll(t *testing.T) {
	good, bad := singlePeakRun, singlePeakRun
	good.name, bad.name = "good", "bad"
	in, stores := newTestInstance(t, good, bad)
	stores[1].armed = true

	err := in.ProcessAll(context.Background(), 2)
	if !errors.Is(err, errBroken) {
		t.Fatalf("ProcessAll error is %v, expected the store error", err)
	}
	if len(in.Samples[0].Ions) != 1 {
		t.Errorf("good sample has %d ions, expected 1", len(in.Samples[0].Ions))
	}
	if in.Samples[1].Ions != nil {
		t.Errorf("failed sample has ions")
	}
}

func TestInstanceProcessAllCanceled(t *testing.T) {
	in, _ := newTestInstance(t, singlePeakRun)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := in.ProcessAll(ctx, 1); !errors.Is(err, context.Canceled) {
		t.Errorf("ProcessAll error is %v, expected context.Canceled", err)
	}
}

func TestInstanceProcessSample(t *testing.T) {
	in, _ := newTestInstance(t, singlePeakRun)
	if err := in.ProcessSample(0); err != nil {
		t.Errorf("ProcessSample: %v", err)
	}
	for _, i := range []int{-1, 1} {
		if err := in.ProcessSample(i); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("ProcessSample(%d) error is %v", i, err)
		}
	}
}

func TestNewInstanceValidates(t *testing.T) {
	p := DefaultParams()
	p.Correlation.MaxCharge = 0
	if _, err := NewInstance(p, nil); !errors.Is(err, ErrInvalidParams) {
		t.Errorf("NewInstance error is %v, expected ErrInvalidParams", err)
	}
}
