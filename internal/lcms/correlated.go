package lcms

import (
	"fmt"

	"github.com/524D/mzfeat/internal/spectrum"
)

// Mass distance windows of the first five isotope peaks for charge one.
// For charge z the windows are divided by z.
var isotopeRanges = [...][2]float64{
	{0.99664664, 1.00342764},
	{1.99653883209004, 2.0067426280592295},
	{2.9950584, 3.00995027},
	{3.99359037, 4.01300058},
	{4.9937908, 5.01572941},
}

// Slack added to both sides of every isotope window
const isotopeRangeError = 0.002

// Offsets below the apex where a lighter host ion is looked up. They are
// not divided by the charge.
var lighterIonOffsets = [...]float64{1.0034, 2.0016}

// Tolerance for looking up lighter host peaks and in-source fragments
var lookupDeviation = spectrum.Deviation{PPM: 20, Abs: 0.01}

// DetectCorrelatedPeaks annotates ion with its isotopes and charge,
// adducts and in-source fragments. It returns false if the ion turns out
// to be an isotope peak of a lighter ion, in which case the caller should
// drop it.
func (s *Sample) DetectCorrelatedPeaks(ion *FragmentedIon) bool {
	claimed := &claimedMasses{}
	claimed.claim(ion.Apex().Mz)
	s.detectIsotopesAndCharge(&ion.IonGroup, claimed)
	if s.isIsotopeOfLighterIon(&ion.IonGroup) {
		return false
	}
	s.detectAdducts(&ion.IonGroup, ion.Polarity, claimed)
	s.detectInSourceFragments(ion, claimed)
	return true
}

// detectIsotopesAndCharge tries charges 1..MaxCharge and keeps the
// isotopes of the first charge that has any
func (s *Sample) detectIsotopesAndCharge(g *IonGroup, claimed *claimedMasses) {
	for z := 1; z <= s.params.Correlation.MaxCharge; z++ {
		isotopes := s.detectIsotopesFor(g.Trace, g.Segment, z, claimed)
		if len(isotopes) > 0 {
			g.Charge = z
			g.Isotopes = isotopes
			if claimed != nil {
				claimed.claimIsotopes(g)
			}
			return
		}
	}
}

// detectIsotopesFor walks the isotope windows above the apex for charge z.
// In every window all traces correlating above the isotope threshold are
// accepted. The walk stops at the first window without one.
func (s *Sample) detectIsotopesFor(t *Trace, seg Segment, z int, claimed *claimedMasses) []CorrelationGroup {
	apex := t.Apex(seg)
	spec := s.spectrum(apex.ScanID)
	var out []CorrelationGroup
	for _, r := range isotopeRanges {
		lo := apex.Mz + (r[0]-isotopeRangeError)/float64(z)
		hi := apex.Mz + (r[1]+isotopeRangeError)/float64(z)
		i1, i2 := spec.Window(lo, hi)
		found := false
		for i := i1; i < i2; i++ {
			if claimed != nil && claimed.contains(spec[i].Mz) {
				continue
			}
			other, ok := s.Builder.DetectExact(apex.ScanID, spec[i].Mz)
			if !ok || other.ID == t.ID {
				continue
			}
			g, ok := s.correlateWithMain(t, seg, other)
			if ok && g.Correlation >= s.params.Correlation.Isotope {
				out = append(out, g)
				found = true
			}
		}
		if !found {
			break
		}
	}
	return out
}

// isIsotopeOfLighterIon looks at lighterIonOffsets below the apex for a
// peak of at least SelfIsotopeRatio of the apex intensity. If
// the ion is a strictly correlating isotope of such a host, it is not a
// monoisotopic ion itself.
func (s *Sample) isIsotopeOfLighterIon(g *IonGroup) bool {
	apex := g.Apex()
	spec := s.spectrum(apex.ScanID)
	z := max(g.Charge, 1)
	for _, offset := range lighterIonOffsets {
		i := spec.MostIntensive(apex.Mz-offset, lookupDeviation)
		if i < 0 || spec[i].Intens < s.params.Correlation.SelfIsotopeRatio*apex.Intensity {
			continue
		}
		host, ok := s.Builder.DetectExact(apex.ScanID, spec[i].Mz)
		if !ok || host.ID == g.Trace.ID {
			continue
		}
		hostSeg, ok := host.SegmentForScan(apex.ScanID)
		if !ok || host.Apex(hostSeg).ScanID != apex.ScanID {
			continue
		}
		for _, iso := range s.detectIsotopesFor(host, hostSeg, z, nil) {
			if iso.Correlation < s.params.Correlation.Strict {
				continue
			}
			t, _ := iso.Partner(host)
			if p, ok := t.PointAt(apex.ScanID); ok && p.Mz-apex.Mz < 1e-8 && apex.Mz-p.Mz < 1e-8 {
				return true
			}
		}
	}
	return false
}

// ionWithIsotopes creates an ion for a correlated trace and detects its
// isotopes. The ion is rejected if its charge disagrees with charge
// (0 accepts any).
func (s *Sample) ionWithIsotopes(t *Trace, seg Segment, charge int, claimed *claimedMasses) *IonGroup {
	g := &IonGroup{Trace: t, Segment: seg}
	s.detectIsotopesAndCharge(g, claimed)
	if charge != 0 && g.Charge != 0 && g.Charge != charge {
		return nil
	}
	return g
}

// detectInSourceFragments looks for fragment peaks of the merged MS/MS
// spectrum that are also present in the survey scan and co-elute with
// the ion
func (s *Sample) detectInSourceFragments(ion *FragmentedIon, claimed *claimedMasses) {
	if ion.MsMs == nil || len(ion.MsMs.Peaks) == 0 {
		return
	}
	p := s.params.Correlation
	apex := ion.Apex()
	ms1 := s.spectrum(apex.ScanID)
	ms2 := ion.MsMs.Spectrum()
	base := ms2[ms2.BasePeak()].Intens
	limit := ion.MsMs.Precursor.Mz - 2
	if limit <= 0 {
		limit = apex.Mz - 2
	}
	for _, f := range ms2 {
		if f.Mz >= limit || f.Intens < p.InSourceMS2*base {
			continue
		}
		i := ms1.MostIntensive(f.Mz, lookupDeviation)
		if i < 0 || ms1[i].Intens < p.InSourceMS1*apex.Intensity || claimed.contains(ms1[i].Mz) {
			continue
		}
		t, ok := s.Builder.DetectExact(apex.ScanID, ms1[i].Mz)
		if !ok || t.ID == ion.Trace.ID {
			continue
		}
		g, ok := s.correlateWithMain(ion.Trace, ion.Segment, t)
		if !ok || g.Correlation < p.Strict {
			continue
		}
		_, seg := g.Partner(ion.Trace)
		frag := s.ionWithIsotopes(t, seg, 0, claimed)
		claimed.claim(ms1[i].Mz)
		ion.InSourceFragments = append(ion.InSourceFragments, CorrelatedIon{Correlation: g, Ion: frag})
	}
}

// detectAdducts probes the mass differences between all pairs of ion types
// of the ion's polarity
func (s *Sample) detectAdducts(g *IonGroup, pol Polarity, claimed *claimedMasses) {
	apex := g.Apex()
	spec := s.spectrum(apex.ScanID)
	var types []IonType
	for _, it := range s.params.IonTypes {
		if pol == PolarityUnknown || it.Polarity == pol {
			types = append(types, it)
		}
	}
	charge := max(g.Charge, 1)
	for _, from := range types {
		for _, to := range types {
			if from.Name == to.Name {
				continue
			}
			mz := apex.Mz + (to.Shift-from.Shift)/float64(charge)
			i := spec.MostIntensive(mz, s.Builder.dev)
			if i < 0 || claimed.contains(spec[i].Mz) {
				continue
			}
			t, ok := s.Builder.DetectExact(apex.ScanID, spec[i].Mz)
			if !ok || t.ID == g.Trace.ID {
				continue
			}
			c, ok := s.correlateWithMain(g.Trace, g.Segment, t)
			if !ok || c.Correlation < s.params.Correlation.Adduct {
				continue
			}
			_, seg := c.Partner(g.Trace)
			adduct := s.ionWithIsotopes(t, seg, g.Charge, claimed)
			if adduct == nil {
				continue
			}
			claimed.claim(spec[i].Mz)
			g.Adducts = append(g.Adducts, CorrelatedIon{
				Correlation: c,
				Ion:         adduct,
				Annotation:  fmt.Sprintf("%s -> %s", from.Name, to.Name),
			})
		}
	}
}
