package lcms

import (
	"math"

	"github.com/524D/mzfeat/internal/spectrum"
)

// Builder extends single peaks into traces over neighbouring survey
// scans and segments them. It belongs to one sample.
type Builder struct {
	s       *Sample
	dev     spectrum.Deviation
	extrema ExtremaOptions
}

func newBuilder(s *Sample, p TraceParams) *Builder {
	return &Builder{
		s:   s,
		dev: spectrum.NewDeviation(p.PPM),
		extrema: ExtremaOptions{
			Smooth:     p.Smoothing,
			Power:      p.SmoothingPower,
			MinExtrema: p.MinExtrema,
		},
	}
}

// DetectExact builds the trace through the peak in scan scanID that is
// closest to mz within the mass tolerance. A peak that already belongs
// to a trace returns that trace.
func (b *Builder) DetectExact(scanID int, mz float64) (*Trace, bool) {
	scan, ok := b.s.Run.ScanByNumber(scanID)
	if !ok || scan.IsMsMs() {
		return nil, false
	}
	spec := b.s.spectrum(scanID)
	i := spec.Nearest(mz, b.dev)
	if i < 0 {
		return nil, false
	}
	return b.fromPeak(scan, spec[i])
}

// Detect builds the trace through the most intense peak within the mass
// tolerance around mz in scan scanID.
func (b *Builder) Detect(scanID int, mz float64) (*Trace, bool) {
	scan, ok := b.s.Run.ScanByNumber(scanID)
	if !ok || scan.IsMsMs() {
		return nil, false
	}
	spec := b.s.spectrum(scanID)
	i := spec.MostIntensive(mz, b.dev)
	if i < 0 {
		return nil, false
	}
	return b.fromPeak(scan, spec[i])
}

// DetectInWindow is Detect for a precursor: when nothing is found within
// the tolerance, the tolerance is widened step by step up to maxWidening
// times, never beyond the isolation window.
func (b *Builder) DetectInWindow(scanID int, mz float64, w IsolationWindow, maxWidening int) (*Trace, bool) {
	scan, ok := b.s.Run.ScanByNumber(scanID)
	if !ok || scan.IsMsMs() {
		return nil, false
	}
	spec := b.s.spectrum(scanID)
	i := mostIntensiveInWindow(spec, mz, b.dev, w, maxWidening)
	if i < 0 {
		return nil, false
	}
	return b.fromPeak(scan, spec[i])
}

// DetectInRange builds the trace through the most intense peak near mz
// over all survey scans with scan numbers in [from,to].
func (b *Builder) DetectInRange(from, to int, mz float64) (*Trace, bool) {
	var best spectrum.Peak
	var bestScan Scan
	found := false
	for _, scan := range b.s.Run.ScansInRange(from, to) {
		if scan.IsMsMs() {
			continue
		}
		spec := b.s.spectrum(scan.ID)
		if i := spec.MostIntensive(mz, b.dev); i >= 0 && (!found || spec[i].Intens > best.Intens) {
			best, bestScan, found = spec[i], scan, true
		}
	}
	if !found {
		return nil, false
	}
	return b.fromPeak(bestScan, best)
}

// mostIntensiveInWindow widens the tolerance around mz by integer steps
// until a peak is found, clipped to the isolation window when it has a width
func mostIntensiveInWindow(spec spectrum.Spectrum, mz float64, dev spectrum.Deviation,
	w IsolationWindow, maxWidening int) int {
	lo, hi := math.Inf(-1), math.Inf(1)
	if w.Defined() {
		lo, hi = w.Range(mz)
	}
	for k := 1; k <= max(1, maxWidening); k++ {
		tol := dev.Multiply(float64(k)).Absolute(mz)
		if i := spec.MostIntensiveWithin(math.Max(lo, mz-tol), math.Min(hi, mz+tol)); i >= 0 {
			return i
		}
	}
	return -1
}

func (b *Builder) fromPeak(scan Scan, p spectrum.Peak) (*Trace, bool) {
	if t, ok := b.s.Cache.Lookup(scan.ID, p.Mz); ok {
		return t, true
	}
	return b.build(scan, p)
}

// build extends the seed peak to both sides, segments the profile, trims
// its edges and registers the trace. It fails if no segment is found or
// if the seed falls outside the trimmed trace.
func (b *Builder) build(scan Scan, seed spectrum.Peak) (*Trace, bool) {
	seedPoint := ScanPoint{ScanID: scan.ID, RetentionTime: scan.RetentionTime, Mz: seed.Mz, Intensity: seed.Intens}

	var left []ScanPoint
	prev := seedPoint
	for {
		s, ok := b.s.Run.previousMS1(prev.ScanID)
		if !ok {
			break
		}
		p, ok := b.extend(s, prev)
		if !ok {
			break
		}
		left = append(left, p)
		prev = p
	}
	points := make([]ScanPoint, 0, len(left)+16)
	for i := len(left) - 1; i >= 0; i-- {
		points = append(points, left[i])
	}
	seedIndex := len(points)
	points = append(points, seedPoint)
	prev = seedPoint
	for {
		s, ok := b.s.Run.nextMS1(prev.ScanID)
		if !ok {
			break
		}
		p, ok := b.extend(s, prev)
		if !ok {
			break
		}
		points = append(points, p)
		prev = p
	}

	intensities := make([]float64, len(points))
	noise := make([]float64, len(points))
	for i, p := range points {
		intensities[i] = p.Intensity
		noise[i] = b.s.MS1Noise.NoiseLevel(p.ScanID, p.Mz)
	}
	bounds := segmentBounds(DetectExtrema(intensities, noise, b.extrema), len(points))
	if len(bounds) == 0 {
		return nil, false
	}

	lo, hi := trimEdges(intensities, bounds)
	if seedIndex < lo || seedIndex > hi {
		return nil, false
	}
	for k := range bounds {
		bounds[k][0] = max(bounds[k][0], lo) - lo
		bounds[k][1] = min(bounds[k][1], hi) - lo
	}
	trimmed := append([]ScanPoint(nil), points[lo:hi+1]...)
	t := b.s.Arena.add(trimmed, bounds)
	b.s.Cache.Insert(t)
	return t, true
}

// trimEdges drops the points outside the segments, then zero or flat
// points at both ends, never passing the outer apexes
func trimEdges(intensities []float64, bounds [][2]int) (int, int) {
	lo, hi := bounds[0][0], bounds[len(bounds)-1][1]
	firstApex := argmax(intensities, bounds[0][0], bounds[0][1])
	lastApex := argmax(intensities, bounds[len(bounds)-1][0], hi)
	for lo < firstApex && (intensities[lo] <= 0 || intensities[lo] == intensities[lo+1]) {
		lo++
	}
	for hi > lastApex && (intensities[hi] <= 0 || intensities[hi] == intensities[hi-1]) {
		hi--
	}
	return lo, hi
}

func argmax(v []float64, from, to int) int {
	best := from
	for i := from + 1; i <= to; i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}

// extend picks the continuation of the trace in scan s. Candidates are
// the peaks within the tolerance around the previous point's m/z. Peaks
// below the noise level are not accepted. Among several candidates the
// one with the best Gaussian score on mass deviation and log intensity
// ratio wins.
func (b *Builder) extend(s Scan, prev ScanPoint) (ScanPoint, bool) {
	spec := b.s.spectrum(s.ID)
	tol := b.dev.Absolute(prev.Mz)
	i1, i2 := spec.Window(prev.Mz-tol, prev.Mz+tol)
	if i1 >= i2 {
		return ScanPoint{}, false
	}
	sigma := tol / 2
	best, bestScore := -1, math.Inf(-1)
	for i := i1; i < i2; i++ {
		p := spec[i]
		if p.Intens <= 0 || p.Intens < b.s.MS1Noise.NoiseLevel(s.ID, p.Mz) {
			continue
		}
		dm := p.Mz - prev.Mz
		score := -dm * dm / (2 * sigma * sigma)
		if prev.Intensity > 0 {
			r := math.Log(p.Intens / prev.Intensity)
			score -= r * r / 2
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	if best < 0 {
		return ScanPoint{}, false
	}
	return ScanPoint{ScanID: s.ID, RetentionTime: s.RetentionTime, Mz: spec[best].Mz, Intensity: spec[best].Intens}, true
}
