package lcms

import (
	"io"
	"log/slog"
	"math"
	"strconv"
	"testing"

	"github.com/524D/mzfeat/internal/noise"
	"github.com/524D/mzfeat/internal/spectrum"
	"github.com/524D/mzfeat/internal/storage"
)

// Survey scans of a synthetic run are 2 s apart
const testScanTime = 2.0

// synthTrace is a Gaussian elution profile. center and sigma are in
// survey scan positions.
type synthTrace struct {
	mz       float64
	height   float64
	center   float64
	sigma    float64
	baseline float64
}

func (s synthTrace) at(k int) float64 {
	d := (float64(k) - s.center) / s.sigma
	return s.baseline + s.height*math.Exp(-d*d/2)
}

// synthMS2 is a fragment scan acquired after the survey scan at position after
type synthMS2 struct {
	after     int
	precursor float64
	peaks     spectrum.Spectrum
}

type synthRun struct {
	name   string
	ms1    int
	traces []synthTrace
	ms2    []synthMS2
	pol    Polarity
}

// build lays the run out as scans and spectra. Intensities below 1 are
// left out of the spectra.
func (r synthRun) build(t *testing.T) (*Run, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	var scans []Scan
	id := 0
	for k := 0; k < r.ms1; k++ {
		// traces on the same m/z add up to one peak
		var spec spectrum.Spectrum
		sum := make(map[float64]float64)
		for _, tr := range r.traces {
			if _, ok := sum[tr.mz]; !ok {
				spec = append(spec, spectrum.Peak{Mz: tr.mz})
			}
			sum[tr.mz] += tr.at(k)
		}
		kept := spec[:0]
		for _, p := range spec {
			if p.Intens = sum[p.Mz]; p.Intens >= 1 {
				kept = append(kept, p)
			}
		}
		spec = kept
		if err := store.Add(id, spec); err != nil {
			t.Fatalf("Add: %v", err)
		}
		scans = append(scans, Scan{ID: id, NativeID: scanNativeID(id), RetentionTime: testScanTime * float64(k),
			MSLevel: 1, Polarity: r.pol, Precursor: Precursor{ScanID: -1}})
		id++
		for j, m := range r.ms2 {
			if m.after != k {
				continue
			}
			if err := store.Add(id, m.peaks); err != nil {
				t.Fatalf("Add: %v", err)
			}
			scans = append(scans, Scan{ID: id, NativeID: scanNativeID(id),
				RetentionTime: testScanTime*float64(k) + 0.1*float64(j+1), MSLevel: 2, Polarity: r.pol,
				Precursor: Precursor{Mz: m.precursor, ScanID: -1}})
			id++
		}
	}
	name := r.name
	if name == "" {
		name = "synthetic"
	}
	return NewRun(name, scans), store
}

func scanNativeID(id int) string {
	return "scan=" + strconv.Itoa(id)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestSample creates a sample over r with a constant survey noise of 5
// and no fragment noise
func newTestSample(t *testing.T, r synthRun) *Sample {
	t.Helper()
	return newTestSampleWith(t, r, DefaultParams())
}

func newTestSampleWith(t *testing.T, r synthRun, p Params) *Sample {
	t.Helper()
	run, store := r.build(t)
	s, err := NewSample(run, store, p, discardLogger())
	if err != nil {
		t.Fatalf("NewSample: %v", err)
	}
	s.MS1Noise = noise.Constant(5)
	s.MS2Noise = noise.Constant(0)
	return s
}

// ms1ID returns the scan number of the survey scan at position k
func ms1ID(t *testing.T, s *Sample, k int) int {
	t.Helper()
	n := 0
	for _, scan := range s.Run.Scans() {
		if scan.IsMsMs() {
			continue
		}
		if n == k {
			return scan.ID
		}
		n++
	}
	t.Fatalf("no survey scan at position %d", k)
	return -1
}

func fragmentPeaks(mz ...float64) spectrum.Spectrum {
	s := make(spectrum.Spectrum, len(mz))
	for i, m := range mz {
		s[i] = spectrum.Peak{Mz: m, Intens: 1000 / float64(i+1)}
	}
	return s
}
