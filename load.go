package main

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/524D/mzfeat/internal/lcms"
	"github.com/524D/mzfeat/internal/mzidentml"
	"github.com/524D/mzfeat/internal/mzml"
	"github.com/524D/mzfeat/internal/spectrum"
	"github.com/524D/mzfeat/internal/storage"
)

// ErrProfileSpectra means that none of the survey scans holds centroided
// peaks
var ErrProfileSpectra = errors.New("survey scans are profile spectra")

// loadRun reads an mzML file, adds the peaks of every scan with a
// retention time in [rtMin, rtMax] to store and returns the scan list.
// Scan numbers are the positions of the spectra in the file.
func loadRun(path string, store storage.Store, rtMin, rtMax float64, log *slog.Logger) (*lcms.Run, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	mzML, err := mzml.Read(f)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return runFromMzML(name, &mzML, store, rtMin, rtMax, log)
}

func runFromMzML(name string, mzML *mzml.MzML, store storage.Store, rtMin, rtMax float64,
	log *slog.Logger) (*lcms.Run, error) {
	scans := make([]lcms.Scan, 0, mzML.NumSpecs())
	noPrecursor, profile, survey, profileSurvey := 0, 0, 0, 0
	for i := 0; i < mzML.NumSpecs(); i++ {
		scan, err := scanFromMzML(mzML, i)
		if errors.Is(err, mzml.ErrNoPrecursor) {
			noPrecursor++
		} else if err != nil {
			return nil, err
		}
		if scan.RetentionTime < rtMin || scan.RetentionTime > rtMax {
			continue
		}
		centroid, err := mzML.Centroid(i)
		if err != nil {
			return nil, err
		}
		if !centroid {
			profile++
		}
		if !scan.IsMsMs() {
			survey++
			if !centroid {
				profileSurvey++
			}
		}
		peaks, err := mzML.ReadScan(i)
		if err != nil {
			return nil, fmt.Errorf("spectrum %d: %w", i, err)
		}
		spec := toSpectrum(peaks)
		if math.IsNaN(scan.TIC) {
			scan.TIC = spec.TIC()
		}
		if err := store.Add(scan.ID, spec); err != nil {
			return nil, err
		}
		scans = append(scans, scan)
	}
	if noPrecursor > 0 {
		log.Warn("fragment spectra without precursor", "sample", name, "count", noPrecursor)
	}
	if survey > 0 && profileSurvey == survey {
		return nil, ErrProfileSpectra
	}
	if profile > 0 {
		log.Warn("profile spectra are used as centroids", "sample", name, "count", profile)
	}
	instruments, err := mzML.MSInstruments()
	if err != nil {
		return nil, fmt.Errorf("instrument configuration: %w", err)
	}
	run := lcms.NewRun(name, scans)
	run.Instruments = instruments
	return run, nil
}

// scanFromMzML collects the metadata of spectrum i. A fragment spectrum
// without a selected ion is returned together with mzml.ErrNoPrecursor.
// TIC is NaN when the file does not list it.
func scanFromMzML(mzML *mzml.MzML, i int) (lcms.Scan, error) {
	scan := lcms.Scan{ID: i, Precursor: lcms.Precursor{ScanID: -1}}
	var err error
	if scan.NativeID, err = mzML.ScanID(i); err != nil {
		return scan, err
	}
	if scan.RetentionTime, err = mzML.RetentionTime(i); err != nil {
		return scan, fmt.Errorf("retention time of spectrum %d: %w", i, err)
	}
	if scan.MSLevel, err = mzML.MSLevel(i); err != nil {
		return scan, fmt.Errorf("ms level of spectrum %d: %w", i, err)
	}
	pol, err := mzML.Polarity(i)
	if err != nil {
		return scan, err
	}
	scan.Polarity = lcms.Polarity(pol)
	if scan.TIC, err = mzML.TotalIonCurrent(i); err != nil {
		return scan, fmt.Errorf("total ion current of spectrum %d: %w", i, err)
	}
	if !scan.IsMsMs() {
		return scan, nil
	}
	p, err := mzML.Precursor(i)
	if err != nil {
		return scan, err
	}
	scan.Precursor = lcms.Precursor{
		Mz:        p.Mz,
		Intensity: p.Intensity,
		Charge:    p.Charge,
		ScanID:    p.SpectrumIndex,
		Window:    lcms.IsolationWindow{Lower: p.LowerOffset, Upper: p.UpperOffset},
	}
	return scan, nil
}

func toSpectrum(peaks []mzml.Peak) spectrum.Spectrum {
	s := make(spectrum.Spectrum, len(peaks))
	for i, p := range peaks {
		s[i] = spectrum.Peak{Mz: p.Mz, Intens: p.Intens}
	}
	return s
}

// readIdentifications reads an mzIdentML file and returns its
// identifications keyed by native spectrum ID
func readIdentifications(path string) (map[string][]lcms.Identification, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	mzIdentML, err := mzidentml.Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	bySpectrum, err := mzIdentML.BySpectrum()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	out := make(map[string][]lcms.Identification, len(bySpectrum))
	for id, idents := range bySpectrum {
		for _, ident := range idents {
			out[id] = append(out[id], lcms.Identification{
				SpectrumID: ident.SpecID,
				Name:       ident.PepSeq,
				Charge:     ident.Charge,
				Scores:     ident.Scores,
			})
		}
	}
	return out, nil
}
