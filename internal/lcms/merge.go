package lcms

import (
	"math"
	"sort"

	"github.com/524D/mzfeat/internal/spectrum"
)

// SourcePeak is a peak of one fragment scan that went into a merged peak
type SourcePeak struct {
	ScanID int
	Mz     float64
	Intens float64
}

// MergedPeak is the sum of matching peaks of several fragment scans
type MergedPeak struct {
	Mz      float64
	Intens  float64
	Sources []SourcePeak
}

// MergedSpectrum is a fragment spectrum combined from one or more scans
type MergedSpectrum struct {
	Precursor  Precursor
	Peaks      []MergedPeak // ordered by m/z
	Scans      []int
	NoiseLevel float64
}

// newMergedSpectrum wraps the peaks of a single fragment scan
func newMergedSpectrum(scan Scan, s spectrum.Spectrum, noiseLevel float64) *MergedSpectrum {
	m := &MergedSpectrum{
		Precursor:  scan.Precursor,
		Peaks:      make([]MergedPeak, len(s)),
		Scans:      []int{scan.ID},
		NoiseLevel: noiseLevel,
	}
	for i, p := range s {
		m.Peaks[i] = MergedPeak{Mz: p.Mz, Intens: p.Intens,
			Sources: []SourcePeak{{ScanID: scan.ID, Mz: p.Mz, Intens: p.Intens}}}
	}
	return m
}

// TIC returns the summed intensity
func (m *MergedSpectrum) TIC() float64 {
	tic := 0.0
	for _, p := range m.Peaks {
		tic += p.Intens
	}
	return tic
}

// Spectrum returns the merged peaks as a plain spectrum
func (m *MergedSpectrum) Spectrum() spectrum.Spectrum {
	s := make(spectrum.Spectrum, len(m.Peaks))
	for i, p := range m.Peaks {
		s[i] = spectrum.Peak{Mz: p.Mz, Intens: p.Intens}
	}
	return s
}

// Merge combines two merged spectra. Each peak of b is mapped onto the peak
// of a within the deviation that scores best on a Gaussian (erfc) mass
// weight times intensity; unmatched peaks are added. Intensities add up,
// so the result has the summed TIC of both.
func Merge(a, b *MergedSpectrum, dev spectrum.Deviation) *MergedSpectrum {
	out := &MergedSpectrum{
		Precursor:  a.Precursor,
		Peaks:      make([]MergedPeak, len(a.Peaks), len(a.Peaks)+len(b.Peaks)),
		Scans:      mergeScans(a.Scans, b.Scans),
		NoiseLevel: math.Max(a.NoiseLevel, b.NoiseLevel),
	}
	for i, p := range a.Peaks {
		out.Peaks[i] = MergedPeak{Mz: p.Mz, Intens: p.Intens, Sources: append([]SourcePeak(nil), p.Sources...)}
	}
	if b.Precursor.Intensity > a.Precursor.Intensity {
		out.Precursor = b.Precursor
	}
	taken := make([]bool, len(a.Peaks))
	var extra []MergedPeak
	for _, p := range b.Peaks {
		tol := dev.Absolute(p.Mz)
		sigma := tol / 3
		lo := sort.Search(len(a.Peaks), func(i int) bool { return a.Peaks[i].Mz >= p.Mz-tol })
		best, bestScore := -1, 0.0
		for i := lo; i < len(a.Peaks) && a.Peaks[i].Mz <= p.Mz+tol; i++ {
			if taken[i] {
				continue
			}
			w := math.Erfc(math.Abs(a.Peaks[i].Mz-p.Mz) / (math.Sqrt2 * sigma))
			if score := w * a.Peaks[i].Intens; best < 0 || score > bestScore {
				best, bestScore = i, score
			}
		}
		if best < 0 {
			extra = append(extra, MergedPeak{Mz: p.Mz, Intens: p.Intens, Sources: append([]SourcePeak(nil), p.Sources...)})
			continue
		}
		taken[best] = true
		q := &out.Peaks[best]
		total := q.Intens + p.Intens
		if total > 0 {
			q.Mz = (q.Mz*q.Intens + p.Mz*p.Intens) / total
		}
		q.Intens = total
		q.Sources = append(q.Sources, p.Sources...)
	}
	if len(extra) > 0 {
		out.Peaks = append(out.Peaks, extra...)
		sort.SliceStable(out.Peaks, func(i, j int) bool { return out.Peaks[i].Mz < out.Peaks[j].Mz })
	}
	return out
}

func mergeScans(a, b []int) []int {
	out := append(append([]int(nil), a...), b...)
	sort.Ints(out)
	j := 0
	for i, v := range out {
		if i == 0 || v != out[j-1] {
			out[j] = v
			j++
		}
	}
	return out[:j]
}

// cosineQuery prepares a merged spectrum for cosine scoring: the
// precursor region is removed, the noise level subtracted and only the
// most intense peaks per m/z window kept
func cosineQuery(m *MergedSpectrum, p MS2Params) spectrum.Spectrum {
	s := m.Spectrum()
	if m.Precursor.Mz > 0 {
		s = spectrum.CutAbove(s, m.Precursor.Mz-p.PrecursorCut)
	}
	s = spectrum.ApplyBaseline(s, m.NoiseLevel)
	return spectrum.TopPerWindow(s, p.PeaksPerWindow, p.WindowWidth)
}

// mergeViaClustering clusters spectra hierarchically: the most similar
// pair is merged while its cosine similarity reaches the threshold, then
// the cluster with the highest TIC is returned
func mergeViaClustering(spectra []*MergedSpectrum, p MS2Params) *MergedSpectrum {
	if len(spectra) == 0 {
		return nil
	}
	cosDev := spectrum.NewDeviation(p.CosinePPM)
	mergeDev := spectrum.Deviation{PPM: p.MergePPM, Abs: p.MergeAbs}
	clusters := append([]*MergedSpectrum(nil), spectra...)
	queries := make([]spectrum.Spectrum, len(clusters))
	for i, c := range clusters {
		queries[i] = cosineQuery(c, p)
	}
	n := len(clusters)
	sim := make([][]float64, n)
	for i := range sim {
		sim[i] = make([]float64, n)
		for j := 0; j < i; j++ {
			sim[i][j], _ = spectrum.Cosine(queries[i], queries[j], cosDev)
			sim[j][i] = sim[i][j]
		}
	}
	alive := make([]bool, n)
	for i := range alive {
		alive[i] = true
	}
	for {
		bi, bj, best := -1, -1, 0.0
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				if alive[i] && alive[j] && sim[i][j] >= p.CosineThreshold && (bi < 0 || sim[i][j] > best) {
					bi, bj, best = i, j, sim[i][j]
				}
			}
		}
		if bi < 0 {
			break
		}
		clusters[bi] = Merge(clusters[bi], clusters[bj], mergeDev)
		queries[bi] = cosineQuery(clusters[bi], p)
		alive[bj] = false
		for k := 0; k < n; k++ {
			if k != bi && alive[k] {
				sim[bi][k], _ = spectrum.Cosine(queries[bi], queries[k], cosDev)
				sim[k][bi] = sim[bi][k]
			}
		}
	}
	var top *MergedSpectrum
	for i, c := range clusters {
		if alive[i] && (top == nil || c.TIC() > top.TIC()) {
			top = c
		}
	}
	return top
}
