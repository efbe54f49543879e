// Package noise estimates the intensity level below which peaks are
// considered noise.
package noise

import (
	"sort"

	"github.com/524D/mzfeat/internal/spectrum"

	"gonum.org/v1/gonum/stat"
)

// Model returns the noise intensity for a scan and m/z
type Model interface {
	NoiseLevel(scanID int, mz float64) float64
}

// Constant is a model with the same level everywhere
type Constant float64

// NoiseLevel implements Model
func (c Constant) NoiseLevel(int, float64) float64 {
	return float64(c)
}

// Local is a model with one level per scan. Scans that were not seen
// get the level of the nearest known scan.
type Local struct {
	scanIDs []int
	levels  []float64
}

// NoiseLevel implements Model
func (l *Local) NoiseLevel(scanID int, _ float64) float64 {
	if len(l.scanIDs) == 0 {
		return 0
	}
	i := sort.SearchInts(l.scanIDs, scanID)
	switch {
	case i == len(l.scanIDs):
		i--
	case l.scanIDs[i] != scanID && i > 0 && scanID-l.scanIDs[i-1] <= l.scanIDs[i]-scanID:
		i--
	}
	return l.levels[i]
}

// Statistics collects a percentile of the intensities of each added scan
type Statistics struct {
	percentile float64
	scanIDs    []int
	levels     []float64
}

// NewStatistics returns a collector for the given percentile (0..1)
func NewStatistics(percentile float64) *Statistics {
	return &Statistics{percentile: percentile}
}

// Add records the intensity percentile of one scan. Empty scans are ignored.
func (s *Statistics) Add(scanID int, spec spectrum.Spectrum) {
	if len(spec) == 0 {
		return
	}
	x := spec.Intensities()
	sort.Float64s(x)
	s.scanIDs = append(s.scanIDs, scanID)
	s.levels = append(s.levels, stat.Quantile(s.percentile, stat.Empirical, x, nil))
}

// Len returns the number of scans that contributed
func (s *Statistics) Len() int {
	return len(s.levels)
}

// Constant returns the median of the per-scan levels as a global model
func (s *Statistics) Constant() Constant {
	if len(s.levels) == 0 {
		return 0
	}
	x := append([]float64(nil), s.levels...)
	sort.Float64s(x)
	return Constant(stat.Quantile(0.5, stat.Empirical, x, nil))
}

// Local returns a per-scan model. Each level is the median over a window
// of the given number of neighbouring scans, which damps single noisy scans.
func (s *Statistics) Local(window int) *Local {
	n := len(s.levels)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return s.scanIDs[order[a]] < s.scanIDs[order[b]] })
	l := &Local{scanIDs: make([]int, n), levels: make([]float64, n)}
	sorted := make([]float64, n)
	for i, k := range order {
		l.scanIDs[i] = s.scanIDs[k]
		sorted[i] = s.levels[k]
	}
	half := window / 2
	buf := make([]float64, 0, window+1)
	for i := range sorted {
		lo, hi := max(0, i-half), min(n, i+half+1)
		buf = append(buf[:0], sorted[lo:hi]...)
		sort.Float64s(buf)
		l.levels[i] = stat.Quantile(0.5, stat.Empirical, buf, nil)
	}
	return l
}
