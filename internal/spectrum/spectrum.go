// Package spectrum holds sparse, m/z sorted peak lists and the mass
// tolerance helpers that are shared by the detection code.
package spectrum

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// Peak contains the m/z and intensity of a single centroid
type Peak struct {
	Mz     float64
	Intens float64
}

// Spectrum is a list of peaks, ordered by m/z
type Spectrum []Peak

// Deviation is a mass tolerance. The window at a given m/z is the
// larger of the relative (ppm) and the absolute (Dalton) tolerance.
type Deviation struct {
	PPM float64
	Abs float64
}

// NewDeviation returns a tolerance of ppm parts per million with the
// customary absolute floor of ppm*1e-4 Dalton.
func NewDeviation(ppm float64) Deviation {
	return Deviation{PPM: ppm, Abs: ppm * 1e-4}
}

// Absolute returns the tolerance in Dalton at m/z value mz
func (d Deviation) Absolute(mz float64) float64 {
	return math.Max(d.PPM*mz*1e-6, d.Abs)
}

// Within reports whether measured lies within the tolerance around reference
func (d Deviation) Within(reference, measured float64) bool {
	return math.Abs(reference-measured) <= d.Absolute(reference)
}

// Multiply scales both components of the tolerance by k
func (d Deviation) Multiply(k float64) Deviation {
	return Deviation{PPM: d.PPM * k, Abs: d.Abs * k}
}

// Sort orders the peaks by m/z
func (s Spectrum) Sort() {
	sort.Slice(s, func(i, j int) bool { return s[i].Mz < s[j].Mz })
}

// IsSorted reports whether the peaks are ordered by m/z
func (s Spectrum) IsSorted() bool {
	return sort.SliceIsSorted(s, func(i, j int) bool { return s[i].Mz < s[j].Mz })
}

// Window returns the half open index range [i1,i2) of the peaks with
// mzMin <= m/z <= mzMax
func (s Spectrum) Window(mzMin, mzMax float64) (int, int) {
	i1 := sort.Search(len(s), func(i int) bool { return s[i].Mz >= mzMin })
	i2 := sort.Search(len(s), func(i int) bool { return s[i].Mz > mzMax })
	if i2 < i1 {
		i2 = i1
	}
	return i1, i2
}

// IndexOfFirstPeakWithin returns the index of the lowest m/z peak in
// [mzMin, mzMax], or -1 if there is none
func (s Spectrum) IndexOfFirstPeakWithin(mzMin, mzMax float64) int {
	i1, i2 := s.Window(mzMin, mzMax)
	if i1 >= i2 {
		return -1
	}
	return i1
}

// MostIntensiveWithin returns the index of the highest peak in [mzMin, mzMax],
// or -1 if there is none
func (s Spectrum) MostIntensiveWithin(mzMin, mzMax float64) int {
	i1, i2 := s.Window(mzMin, mzMax)
	best := -1
	for i := i1; i < i2; i++ {
		if best < 0 || s[i].Intens > s[best].Intens {
			best = i
		}
	}
	return best
}

// MostIntensive returns the index of the highest peak within the tolerance
// around mz, or -1
func (s Spectrum) MostIntensive(mz float64, d Deviation) int {
	tol := d.Absolute(mz)
	return s.MostIntensiveWithin(mz-tol, mz+tol)
}

// Nearest returns the index of the peak closest to mz within the
// tolerance, or -1
func (s Spectrum) Nearest(mz float64, d Deviation) int {
	tol := d.Absolute(mz)
	i1, i2 := s.Window(mz-tol, mz+tol)
	best := -1
	for i := i1; i < i2; i++ {
		if best < 0 || math.Abs(s[i].Mz-mz) < math.Abs(s[best].Mz-mz) {
			best = i
		}
	}
	return best
}

// BasePeak returns the index of the most intense peak, or -1 for an
// empty spectrum
func (s Spectrum) BasePeak() int {
	best := -1
	for i := range s {
		if best < 0 || s[i].Intens > s[best].Intens {
			best = i
		}
	}
	return best
}

// TIC returns the total ion current, the sum of all intensities
func (s Spectrum) TIC() float64 {
	return floats.Sum(s.Intensities())
}

// Intensities returns the intensities as a new slice
func (s Spectrum) Intensities() []float64 {
	v := make([]float64, len(s))
	for i, p := range s {
		v[i] = p.Intens
	}
	return v
}

// Clone returns a copy that does not share memory with s
func (s Spectrum) Clone() Spectrum {
	c := make(Spectrum, len(s))
	copy(c, s)
	return c
}

// CutAbove returns the peaks with m/z below threshold
func CutAbove(s Spectrum, threshold float64) Spectrum {
	i := sort.Search(len(s), func(i int) bool { return s[i].Mz >= threshold })
	return s[:i].Clone()
}

// ApplyBaseline subtracts level from every intensity and drops the peaks
// that do not remain positive
func ApplyBaseline(s Spectrum, level float64) Spectrum {
	out := make(Spectrum, 0, len(s))
	for _, p := range s {
		if p.Intens > level {
			out = append(out, Peak{Mz: p.Mz, Intens: p.Intens - level})
		}
	}
	return out
}

// TopPerWindow keeps the n most intense peaks of every m/z window of the
// given width. The result is ordered by m/z.
func TopPerWindow(s Spectrum, n int, width float64) Spectrum {
	if len(s) == 0 || n <= 0 || width <= 0 {
		return Spectrum{}
	}
	out := make(Spectrum, 0, len(s))
	start := 0
	for start < len(s) {
		bin := math.Floor(s[start].Mz / width)
		end := start
		for end < len(s) && math.Floor(s[end].Mz/width) == bin {
			end++
		}
		block := s[start:end].Clone()
		if len(block) > n {
			sort.SliceStable(block, func(i, j int) bool { return block[i].Intens > block[j].Intens })
			block = block[:n]
			block.Sort()
		}
		out = append(out, block...)
		start = end
	}
	return out
}

// Align matches the peaks of two m/z sorted spectra within tolerance d.
// Each peak is used at most once. It returns the intensity weighted dot
// product of the matched peaks and the number of matches.
func Align(a, b Spectrum, d Deviation) (float64, int) {
	score := 0.0
	shared := 0
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		diff := a[i].Mz - b[j].Mz
		tol := d.Absolute(math.Min(a[i].Mz, b[j].Mz))
		if math.Abs(diff) <= tol {
			// Prefer a closer partner if the next peak on either side has one
			if j+1 < len(b) && math.Abs(a[i].Mz-b[j+1].Mz) < math.Abs(diff) {
				j++
				continue
			}
			if i+1 < len(a) && math.Abs(a[i+1].Mz-b[j].Mz) < math.Abs(diff) {
				i++
				continue
			}
			score += a[i].Intens * b[j].Intens
			shared++
			i++
			j++
		} else if diff < 0 {
			i++
		} else {
			j++
		}
	}
	return score, shared
}

// SelfScore is the dot product of a spectrum with itself
func SelfScore(s Spectrum) float64 {
	v := 0.0
	for _, p := range s {
		v += p.Intens * p.Intens
	}
	return v
}

// Cosine returns the cosine similarity of two spectra and the number of
// shared peaks. Empty or all-zero spectra have similarity 0.
func Cosine(a, b Spectrum, d Deviation) (float64, int) {
	score, shared := Align(a, b, d)
	norm := math.Sqrt(SelfScore(a) * SelfScore(b))
	if norm == 0 {
		return 0, shared
	}
	c := score / norm
	if c > 1 {
		c = 1
	}
	return c, shared
}
