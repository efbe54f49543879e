package lcms

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// CorrelationGroup is the result of comparing the elution profiles of two
// segments. Large is the side with the more intense apex.
type CorrelationGroup struct {
	Large        *Trace
	LargeSegment Segment
	Small        *Trace
	SmallSegment Segment
	// First and last scan number of the compared window
	StartScan, EndScan int
	// Points in the window, and how many of them the large side covers
	Points, Overlap int
	Correlation     float64
}

// Partner returns the side of the group that is not t
func (g CorrelationGroup) Partner(t *Trace) (*Trace, Segment) {
	if g.Large == t {
		return g.Small, g.SmallSegment
	}
	return g.Large, g.LargeSegment
}

// larger orders segments by apex intensity, then apex m/z, then trace ID,
// so that the orientation of a pair never depends on argument order
func larger(a *Trace, sa Segment, b *Trace, sb Segment) bool {
	pa, pb := a.Apex(sa), b.Apex(sb)
	if pa.Intensity != pb.Intensity {
		return pa.Intensity > pb.Intensity
	}
	if pa.Mz != pb.Mz {
		return pa.Mz > pb.Mz
	}
	if a.ID != b.ID {
		return a.ID < b.ID
	}
	return sa.Apex < sb.Apex
}

// Correlate compares two segments over the window of the smaller one
// where it stays above windowFraction of its apex (at least minPoints
// points). Scans where the larger trace has no point count as zero
// intensity. The result is false when the larger side covers fewer than
// minPoints points of the window.
func Correlate(a *Trace, sa Segment, b *Trace, sb Segment, windowFraction float64, minPoints int) (CorrelationGroup, bool) {
	if !larger(a, sa, b, sb) {
		a, sa, b, sb = b, sb, a, sa
	}
	g := CorrelationGroup{Large: a, LargeSegment: sa, Small: b, SmallSegment: sb}
	from, to := b.WidthAt(sb, windowFraction, minPoints)
	x := make([]float64, 0, to-from+1)
	y := make([]float64, 0, to-from+1)
	for i := from; i <= to; i++ {
		p := b.Point(i)
		x = append(x, p.Intensity)
		if q, ok := a.PointAt(p.ScanID); ok {
			y = append(y, q.Intensity)
			g.Overlap++
		} else {
			y = append(y, 0)
		}
	}
	g.StartScan, g.EndScan = b.Point(from).ScanID, b.Point(to).ScanID
	g.Points = len(x)
	if g.Overlap < minPoints {
		return g, false
	}
	g.Correlation = pearson(y, x)
	return g, true
}

// pearson returns the correlation coefficient of x and y, 0 when either
// has no variance
func pearson(x, y []float64) float64 {
	if len(x) < 2 || stat.Variance(x, nil) == 0 || stat.Variance(y, nil) == 0 {
		return 0
	}
	r := stat.Correlation(x, y, nil)
	if math.IsNaN(r) {
		return 0
	}
	return math.Max(-1, math.Min(1, r))
}

// correlateWithMain correlates other with segment seg of main. The
// segment of other is the one containing the apex of seg, and each apex
// must lie within the half maximum width of the other segment.
func (s *Sample) correlateWithMain(main *Trace, seg Segment, other *Trace) (CorrelationGroup, bool) {
	apex := main.Apex(seg)
	oseg, ok := other.SegmentForScan(apex.ScanID)
	if !ok {
		return CorrelationGroup{}, false
	}
	if !inFwhm(other, oseg, apex.ScanID) || !inFwhm(main, seg, other.Apex(oseg).ScanID) {
		return CorrelationGroup{}, false
	}
	p := s.params.Correlation
	return Correlate(main, seg, other, oseg, p.WindowFraction, p.MinPoints)
}

func inFwhm(t *Trace, seg Segment, scanID int) bool {
	from, to := t.FwhmRange(seg)
	return scanID >= from && scanID <= to
}
