package lcms

import (
	"errors"
	"fmt"
)

// ErrInvalidArgument means a function was called with inconsistent input
var ErrInvalidArgument = errors.New("lcms: invalid argument")

// Chimeric is a peak that was co-isolated with the precursor
type Chimeric struct {
	Mz        float64
	Intensity float64
	// Trace of the peak, nil if none could be built
	Trace *Trace
}

// FindChimerics returns the peaks in the isolation window of a fragment
// scan that are at least RelativeIntensity of the precursor peak and are
// not isotopes of the precursor feature. feature must have a segment at
// the survey scan ms1.
func (s *Sample) FindChimerics(ms1 Scan, prec Precursor, w IsolationWindow, feature *Trace) ([]Chimeric, error) {
	seg, ok := feature.SegmentForScan(ms1.ID)
	if !ok {
		return nil, fmt.Errorf("trace %d has no segment at scan %d: %w", feature.ID, ms1.ID, ErrInvalidArgument)
	}
	if !w.Defined() {
		w = s.params.MS2.IsolationWindow
	}
	spec := s.spectrum(ms1.ID)
	main := mostIntensiveInWindow(spec, prec.Mz, s.Builder.dev, w, s.params.Chimeric.MaxWidening)
	if main < 0 {
		return nil, nil
	}
	lo, hi := w.Range(prec.Mz)
	i1, i2 := spec.Window(lo, hi)
	threshold := s.params.Chimeric.RelativeIntensity * spec[main].Intens
	var out []Chimeric
	for i := i1; i < i2; i++ {
		if i == main || spec[i].Intens < threshold {
			continue
		}
		t, built := s.Builder.DetectExact(ms1.ID, spec[i].Mz)
		if built && t.ID == feature.ID {
			continue
		}
		if built && s.isIsotopeOffset(spec[i].Mz-spec[main].Mz) {
			if g, ok := s.correlateWithMain(feature, seg, t); ok && g.Correlation >= s.params.Correlation.Isotope {
				continue
			}
		}
		c := Chimeric{Mz: spec[i].Mz, Intensity: spec[i].Intens}
		if built {
			c.Trace = t
		}
		out = append(out, c)
	}
	return out, nil
}

// isIsotopeOffset reports whether delta matches an isotope distance for
// any charge up to the configured maximum
func (s *Sample) isIsotopeOffset(delta float64) bool {
	for z := 1; z <= s.params.Correlation.MaxCharge; z++ {
		for _, r := range isotopeRanges {
			if delta >= (r[0]-isotopeRangeError)/float64(z) && delta <= (r[1]+isotopeRangeError)/float64(z) {
				return true
			}
		}
	}
	return false
}

// chimericPollution is the summed chimeric intensity relative to the
// precursor peak intensity
func chimericPollution(chimerics []Chimeric, precursorIntensity float64) float64 {
	if precursorIntensity <= 0 {
		return 0
	}
	sum := 0.0
	for _, c := range chimerics {
		sum += c.Intensity
	}
	return sum / precursorIntensity
}
