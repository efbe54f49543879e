package lcms

import (
	"sort"
)

// ScanPoint is one peak of a trace: the centroid picked in one scan
type ScanPoint struct {
	ScanID        int
	RetentionTime float64
	Mz            float64
	Intensity     float64
}

// TraceID identifies a trace within the arena of its sample
type TraceID int

// Segment is one elution event within a trace. All fields except Trace
// are point indices into the owning trace; Start and End are inclusive.
type Segment struct {
	Trace     TraceID
	Start     int
	Apex      int
	End       int
	FwhmStart int
	FwhmEnd   int
}

// Len returns the number of points in the segment
func (s Segment) Len() int {
	return s.End - s.Start + 1
}

// Trace is a chromatographic peak: the intensity of one m/z over
// consecutive survey scans, split into segments. Points are ordered by
// scan number and segments by apex.
type Trace struct {
	ID       TraceID
	points   []ScanPoint
	segments []Segment
	version  int
}

// Len returns the number of points
func (t *Trace) Len() int {
	return len(t.points)
}

// Point returns point i
func (t *Trace) Point(i int) ScanPoint {
	return t.points[i]
}

// Points returns all points. The slice must not be modified.
func (t *Trace) Points() []ScanPoint {
	return t.points
}

// Segments returns the segments ordered by apex. The slice must not be
// modified.
func (t *Trace) Segments() []Segment {
	return t.segments
}

// Version is incremented by every segment edit. Segments taken from an
// older version may no longer exist.
func (t *Trace) Version() int {
	return t.version
}

// Index returns the index of the point in scan scanID, or -1
func (t *Trace) Index(scanID int) int {
	i := sort.Search(len(t.points), func(i int) bool { return t.points[i].ScanID >= scanID })
	if i < len(t.points) && t.points[i].ScanID == scanID {
		return i
	}
	return -1
}

// PointAt returns the point in scan scanID
func (t *Trace) PointAt(scanID int) (ScanPoint, bool) {
	i := t.Index(scanID)
	if i < 0 {
		return ScanPoint{}, false
	}
	return t.points[i], true
}

// SegmentForScan returns the segment that contains scan scanID
func (t *Trace) SegmentForScan(scanID int) (Segment, bool) {
	i := t.Index(scanID)
	if i < 0 {
		return Segment{}, false
	}
	for _, s := range t.segments {
		if i >= s.Start && i <= s.End {
			return s, true
		}
	}
	return Segment{}, false
}

// Apex returns the apex point of segment s
func (t *Trace) Apex(s Segment) ScanPoint {
	return t.points[s.Apex]
}

// ScanRange returns the first and last scan number of segment s
func (t *Trace) ScanRange(s Segment) (int, int) {
	return t.points[s.Start].ScanID, t.points[s.End].ScanID
}

// FwhmRange returns the first and last scan number within the full width
// at half maximum of segment s
func (t *Trace) FwhmRange(s Segment) (int, int) {
	return t.points[s.FwhmStart].ScanID, t.points[s.FwhmEnd].ScanID
}

// FWHM returns the full width at half maximum of s in seconds
func (t *Trace) FWHM(s Segment) float64 {
	return t.points[s.FwhmEnd].RetentionTime - t.points[s.FwhmStart].RetentionTime
}

// WidthAt returns the index range around the apex of s in which the
// intensity stays at or above fraction times the apex intensity. The range
// is widened towards the more intense neighbour until it holds at least
// minPoints points or covers the segment.
func (t *Trace) WidthAt(s Segment, fraction float64, minPoints int) (int, int) {
	thr := fraction * t.points[s.Apex].Intensity
	from, to := s.Apex, s.Apex
	for from > s.Start && t.points[from-1].Intensity >= thr {
		from--
	}
	for to < s.End && t.points[to+1].Intensity >= thr {
		to++
	}
	for to-from+1 < minPoints {
		canLeft, canRight := from > s.Start, to < s.End
		if !canLeft && !canRight {
			break
		}
		if canLeft && (!canRight || t.points[from-1].Intensity >= t.points[to+1].Intensity) {
			from--
		} else {
			to++
		}
	}
	return from, to
}

// JoinSegments merges all segments from the one containing scanA up to
// the one containing scanB into a single segment. It reports whether
// anything changed.
func (t *Trace) JoinSegments(scanA, scanB int) bool {
	if scanB < scanA {
		scanA, scanB = scanB, scanA
	}
	ia, ib := t.Index(scanA), t.Index(scanB)
	if ia < 0 || ib < 0 {
		return false
	}
	ka, kb := -1, -1
	for k, s := range t.segments {
		if ia >= s.Start && ia <= s.End {
			ka = k
		}
		if ib >= s.Start && ib <= s.End {
			kb = k
		}
	}
	if ka < 0 || kb < 0 || ka == kb {
		return false
	}
	joined := t.newSegment(t.segments[ka].Start, t.segments[kb].End)
	segs := make([]Segment, 0, len(t.segments)-(kb-ka))
	segs = append(segs, t.segments[:ka]...)
	segs = append(segs, joined)
	segs = append(segs, t.segments[kb+1:]...)
	t.segments = segs
	t.version++
	return true
}

// newSegment creates a segment over [start,end] with the apex at the
// most intense point
func (t *Trace) newSegment(start, end int) Segment {
	apex := start
	for i := start + 1; i <= end; i++ {
		if t.points[i].Intensity > t.points[apex].Intensity {
			apex = i
		}
	}
	s := Segment{Trace: t.ID, Start: start, Apex: apex, End: end}
	s.FwhmStart, s.FwhmEnd = t.WidthAt(s, 0.5, 1)
	return s
}

// Arena owns the traces of one sample. Traces are referenced by ID
// everywhere else.
type Arena struct {
	traces []*Trace
}

// NewArena returns an empty arena
func NewArena() *Arena {
	return &Arena{}
}

// Get returns the trace with the given ID, or nil
func (a *Arena) Get(id TraceID) *Trace {
	if id < 0 || int(id) >= len(a.traces) {
		return nil
	}
	return a.traces[id]
}

// Len returns the number of traces
func (a *Arena) Len() int {
	return len(a.traces)
}

// add creates a trace from points with segments given as [start,end]
// index pairs
func (a *Arena) add(points []ScanPoint, bounds [][2]int) *Trace {
	t := &Trace{ID: TraceID(len(a.traces)), points: points}
	t.segments = make([]Segment, 0, len(bounds))
	for _, b := range bounds {
		t.segments = append(t.segments, t.newSegment(b[0], b[1]))
	}
	a.traces = append(a.traces, t)
	return t
}
