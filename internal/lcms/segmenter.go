package lcms

import (
	"math"
	"sort"

	"github.com/524D/mzfeat/internal/spectrum"

	"gonum.org/v1/gonum/stat"
)

// msmsCandidate is one fragment scan placed on the trace of its precursor
type msmsCandidate struct {
	scan      Scan
	ms1       Scan
	apexScan  int
	preferred bool // inside the 25% width of its segment
	intensity float64
	chimerics []Chimeric
	pollution float64
}

// traceGroup collects the fragment scans of one trace
type traceGroup struct {
	trace      *Trace
	candidates []msmsCandidate
}

// ExtractAndSegment places every fragment scan on the trace of its
// precursor and turns each trace into one or more fragmented ions: one
// per elution event whose fragment spectra are not similar enough to be
// merged with the neighbouring event.
func (s *Sample) ExtractAndSegment() []*FragmentedIon {
	groups := s.groupByTrace()
	if s.err != nil {
		return nil
	}
	width := s.medianSegmentWidth(groups)
	var ions []*FragmentedIon
	for _, g := range groups {
		ions = append(ions, s.segmentTrace(g, width)...)
	}
	return ions
}

func (s *Sample) groupByTrace() []*traceGroup {
	var groups []*traceGroup
	byTrace := make(map[TraceID]*traceGroup)
	for _, scan := range s.Run.MsMsScans() {
		if s.err != nil {
			return nil
		}
		prec := scan.Precursor
		if prec.Mz <= 0 {
			s.log.Warn("fragment scan without precursor m/z", "scan", scan.ID)
			continue
		}
		ms1, ok := s.Run.parentMS1(scan)
		if !ok {
			s.log.Warn("no survey scan for fragment scan", "scan", scan.ID)
			continue
		}
		w := prec.Window
		if !w.Defined() {
			w = s.params.MS2.IsolationWindow
		}
		t, ok := s.Builder.DetectInWindow(ms1.ID, prec.Mz, w, s.params.Chimeric.MaxWidening)
		if !ok {
			s.log.Debug("no trace for precursor", "scan", scan.ID, "mz", prec.Mz)
			continue
		}
		seg, ok := t.SegmentForScan(ms1.ID)
		if !ok {
			s.log.Warn("precursor outside any segment", "scan", scan.ID, "trace", t.ID)
			continue
		}
		p, _ := t.PointAt(ms1.ID)
		c := msmsCandidate{
			scan:      scan,
			ms1:       ms1,
			apexScan:  t.Apex(seg).ScanID,
			intensity: p.Intensity,
		}
		from, to := t.WidthAt(seg, 0.25, 1)
		c.preferred = t.Index(ms1.ID) >= from && t.Index(ms1.ID) <= to
		chimerics, err := s.FindChimerics(ms1, prec, w, t)
		if err != nil {
			s.log.Warn("chimeric detection failed", "scan", scan.ID, "err", err)
		}
		c.chimerics = chimerics
		c.pollution = chimericPollution(chimerics, p.Intensity)

		g, ok := byTrace[t.ID]
		if !ok {
			g = &traceGroup{trace: t}
			byTrace[t.ID] = g
			groups = append(groups, g)
		}
		g.candidates = append(g.candidates, c)
	}
	return groups
}

// medianSegmentWidth returns the median half maximum width of all
// segments of the traces that carry fragment scans
func (s *Sample) medianSegmentWidth(groups []*traceGroup) float64 {
	var widths []float64
	for _, g := range groups {
		for _, seg := range g.trace.Segments() {
			widths = append(widths, g.trace.FWHM(seg))
		}
	}
	if len(widths) == 0 {
		return math.Inf(1)
	}
	sort.Float64s(widths)
	return stat.Quantile(0.5, stat.Empirical, widths, nil)
}

// selectCandidates drops strongly polluted scans and, if possible, scans
// far from the apex
func (s *Sample) selectCandidates(cands []msmsCandidate) []msmsCandidate {
	lowest, bestScore := math.Inf(1), 0.0
	for _, c := range cands {
		lowest = math.Min(lowest, c.pollution)
		bestScore = math.Max(bestScore, candidateScore(c))
	}
	var kept []msmsCandidate
	for _, c := range cands {
		if c.pollution > lowest+s.params.MS2.PollutionMargin && candidateScore(c) < 0.75*bestScore {
			s.log.Debug("fragment scan rejected for chimeric pollution", "scan", c.scan.ID, "pollution", c.pollution)
			continue
		}
		kept = append(kept, c)
	}
	var preferred []msmsCandidate
	for _, c := range kept {
		if c.preferred {
			preferred = append(preferred, c)
		}
	}
	if len(preferred) > 0 {
		return preferred
	}
	return kept
}

func candidateScore(c msmsCandidate) float64 {
	return math.Pow(c.intensity, 1.5) / (1 + c.pollution)
}

// segmentTrace merges the fragment scans per segment and then walks the
// segments in apex order, joining neighbours with similar spectra
func (s *Sample) segmentTrace(g *traceGroup, medianWidth float64) []*FragmentedIon {
	p := s.params.MS2
	t := g.trace
	bySegment := make(map[int][]msmsCandidate)
	var apexes []int
	for _, c := range s.selectCandidates(g.candidates) {
		if _, ok := bySegment[c.apexScan]; !ok {
			apexes = append(apexes, c.apexScan)
		}
		bySegment[c.apexScan] = append(bySegment[c.apexScan], c)
	}
	sort.Ints(apexes)
	if len(apexes) == 0 {
		return nil
	}

	merged := make([]*MergedSpectrum, len(apexes))
	for k, a := range apexes {
		var spectra []*MergedSpectrum
		for _, c := range bySegment[a] {
			level := s.MS2Noise.NoiseLevel(c.scan.ID, c.scan.Precursor.Mz)
			spectra = append(spectra, newMergedSpectrum(c.scan, s.spectrum(c.scan.ID), level))
		}
		merged[k] = mergeViaClustering(spectra, p)
	}

	cosDev := spectrum.NewDeviation(p.CosinePPM)
	mergeDev := spectrum.Deviation{PPM: p.MergePPM, Abs: p.MergeAbs}
	var ions []*FragmentedIon
	var cands []msmsCandidate
	emit := func(apexScan int, m *MergedSpectrum, cs []msmsCandidate) {
		seg, ok := t.SegmentForScan(apexScan)
		if !ok {
			return
		}
		ions = append(ions, s.newFragmentedIon(t, seg, m, cs))
	}

	j := 0
	cur := merged[0]
	cands = append(cands, bySegment[apexes[0]]...)
	for i := 1; i < len(apexes); i++ {
		left, right := cosineQuery(cur, p), cosineQuery(merged[i], p)
		sim, shared := spectrum.Cosine(left, right, cosDev)
		lowQuality := len(left) <= 3 || len(right) <= 3
		switch {
		case sim >= p.CosineThreshold && shared >= p.MinSharedPeaks:
			if s.segmentGap(t, apexes[j], apexes[i]) > medianWidth {
				emit(apexes[j], cur, cands)
				j, cur, cands = i, merged[i], append([]msmsCandidate(nil), bySegment[apexes[i]]...)
				continue
			}
			t.JoinSegments(apexes[j], apexes[i])
			cur = Merge(cur, merged[i], mergeDev)
			cands = append(cands, bySegment[apexes[i]]...)
		case sim < p.CosineThreshold && 3*shared < min(len(left), len(right)) && !lowQuality:
			emit(apexes[j], cur, cands)
			j, cur, cands = i, merged[i], append([]msmsCandidate(nil), bySegment[apexes[i]]...)
		default:
			s.log.Debug("fragment spectra of segment discarded", "trace", t.ID, "apex", apexes[i],
				"cosine", sim, "shared", shared)
		}
	}
	emit(apexes[j], cur, cands)
	return ions
}

// segmentGap is the time between the half maximum edges of the segments
// containing scans a and b
func (s *Sample) segmentGap(t *Trace, a, b int) float64 {
	sa, okA := t.SegmentForScan(a)
	sb, okB := t.SegmentForScan(b)
	if !okA || !okB {
		return 0
	}
	return t.Point(sb.FwhmStart).RetentionTime - t.Point(sa.FwhmEnd).RetentionTime
}

func (s *Sample) newFragmentedIon(t *Trace, seg Segment, m *MergedSpectrum, cands []msmsCandidate) *FragmentedIon {
	ion := &FragmentedIon{
		IonGroup: IonGroup{Trace: t, Segment: seg},
		MsMs:     m,
	}
	pollution := 0.0
	for _, c := range cands {
		ion.MsMsScans = append(ion.MsMsScans, c.scan.ID)
		ion.Chimerics = append(ion.Chimerics, c.chimerics...)
		pollution += c.pollution
		if ion.Polarity == PolarityUnknown {
			ion.Polarity = c.scan.Polarity
		}
	}
	if len(cands) > 0 {
		ion.ChimericPollution = pollution / float64(len(cands))
	}
	sort.Ints(ion.MsMsScans)
	return ion
}
