// This file contains code to help debugging, and is
// separated in from the rest in order not to litter
// the main code with debugging stuff

package main

import (
	"fmt"
	"io"

	"github.com/524D/mzfeat/internal/lcms"
)

// debugLogIons prints the ions of each sample that have their apex in
// the scan range r
func debugLogIons(w io.Writer, samples []*lcms.Sample, r string) error {
	for _, s := range samples {
		scans := s.Run.Scans()
		if len(scans) == 0 {
			continue
		}
		debugMin, debugMax, err := parseIntRange(r, scans[0].ID, scans[len(scans)-1].ID)
		if err != nil {
			return fmt.Errorf("--debug %q: %w", r, err)
		}
		for _, ion := range s.Ions {
			apex := ion.Apex()
			if apex.ScanID < debugMin || apex.ScanID > debugMax {
				continue
			}
			debugLogIon(w, s.Run.Name, ion)
		}
	}
	return nil
}

func debugLogIon(w io.Writer, sample string, ion *lcms.FragmentedIon) {
	apex := ion.Apex()
	first, last := ion.Trace.ScanRange(ion.Segment)
	fmt.Fprintf(w, "Sample:%s scan:%d rt:%f mz:%f intens:%f charge:%d scans:%d-%d\n",
		sample, apex.ScanID, apex.RetentionTime, apex.Mz, apex.Intensity, ion.Charge, first, last)
	peaks := 0
	if ion.MsMs != nil {
		peaks = len(ion.MsMs.Spectrum())
	}
	fmt.Fprintf(w, "  msms scans:%v peaks:%d pollution:%f\n",
		ion.MsMsScans, peaks, ion.ChimericPollution)
	if ion.PeakShape.Sigma > 0 {
		fmt.Fprintf(w, "  shape mean:%f sigma:%f r2:%f\n",
			ion.PeakShape.Mean, ion.PeakShape.Sigma, ion.PeakShape.R2)
	}
	for k, iso := range ion.Isotopes {
		t, seg := iso.Partner(ion.Trace)
		fmt.Fprintf(w, "  isotope %d mz:%f corr:%f\n", k+1, t.Apex(seg).Mz, iso.Correlation)
	}
	for _, a := range ion.Adducts {
		fmt.Fprintf(w, "  adduct %s mz:%f corr:%f\n", a.Annotation, a.Ion.Apex().Mz, a.Correlation.Correlation)
	}
	for _, f := range ion.InSourceFragments {
		fmt.Fprintf(w, "  fragment mz:%f corr:%f\n", f.Ion.Apex().Mz, f.Correlation.Correlation)
	}
	for _, c := range ion.Chimerics {
		fmt.Fprintf(w, "  chimeric mz:%f intens:%f\n", c.Mz, c.Intensity)
	}
	for _, id := range ion.Identifications {
		fmt.Fprintf(w, "  ident %s charge:%d spectrum:%s\n", id.Name, id.Charge, id.SpectrumID)
	}
}
