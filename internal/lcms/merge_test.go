package lcms

import (
	"math"
	"testing"

	"github.com/524D/mzfeat/internal/spectrum"
	"github.com/google/go-cmp/cmp"
)

func fragmentScan(id int, precursor float64) Scan {
	return Scan{ID: id, MSLevel: 2, Precursor: Precursor{Mz: precursor, ScanID: -1}}
}

func TestMerge(t *testing.T) {
	a := newMergedSpectrum(fragmentScan(1, 500), spectrum.Spectrum{{Mz: 100, Intens: 10}, {Mz: 200, Intens: 20}}, 0)
	b := newMergedSpectrum(fragmentScan(2, 500), spectrum.Spectrum{{Mz: 100.001, Intens: 5}, {Mz: 300, Intens: 7}}, 0)
	m := Merge(a, b, spectrum.Deviation{PPM: 20, Abs: 0.05})

	if m.TIC() != a.TIC()+b.TIC() {
		t.Errorf("TIC %v, expected %v", m.TIC(), a.TIC()+b.TIC())
	}
	if diff := cmp.Diff([]int{1, 2}, m.Scans); diff != "" {
		t.Errorf("scans mismatch (-want +got):\n%s", diff)
	}
	if len(m.Peaks) != 3 {
		t.Fatalf("merged %d peaks, expected 3", len(m.Peaks))
	}
	p := m.Peaks[0]
	if p.Intens != 15 || len(p.Sources) != 2 {
		t.Errorf("first peak %+v", p)
	}
	// intensity weighted m/z
	if want := (100*10 + 100.001*5) / 15.0; math.Abs(p.Mz-want) > 1e-9 {
		t.Errorf("first peak at m/z %v, expected %v", p.Mz, want)
	}
	for i := 1; i < len(m.Peaks); i++ {
		if m.Peaks[i].Mz <= m.Peaks[i-1].Mz {
			t.Errorf("peaks not ordered at %d", i)
		}
	}
	// inputs are left alone
	if len(a.Peaks[0].Sources) != 1 || a.Peaks[0].Intens != 10 {
		t.Errorf("Merge modified its input: %+v", a.Peaks[0])
	}
}

func TestMergeViaClustering(t *testing.T) {
	p := DefaultParams().MS2
	if m := mergeViaClustering(nil, p); m != nil {
		t.Errorf("clustering of nothing returned %+v", m)
	}
	single := newMergedSpectrum(fragmentScan(1, 600), leftFragments, 0)
	if m := mergeViaClustering([]*MergedSpectrum{single}, p); m != single {
		t.Errorf("clustering of one spectrum returned another spectrum")
	}

	spectra := []*MergedSpectrum{
		newMergedSpectrum(fragmentScan(1, 600), leftFragments, 0),
		newMergedSpectrum(fragmentScan(2, 600), rightFragments, 0),
		newMergedSpectrum(fragmentScan(3, 600), leftFragments, 0),
	}
	m := mergeViaClustering(spectra, p)
	if diff := cmp.Diff([]int{1, 3}, m.Scans); diff != "" {
		t.Errorf("cluster scans mismatch (-want +got):\n%s", diff)
	}
	if want := 2 * leftFragments.TIC(); math.Abs(m.TIC()-want) > 1e-9 {
		t.Errorf("cluster TIC %v, expected %v", m.TIC(), want)
	}
}

func TestMergeViaClusteringKeepsLargest(t *testing.T) {
	p := DefaultParams().MS2
	weak := make(spectrum.Spectrum, len(leftFragments))
	for i, pk := range leftFragments {
		weak[i] = spectrum.Peak{Mz: pk.Mz, Intens: pk.Intens / 10}
	}
	// no pair is similar, the most intense spectrum wins
	spectra := []*MergedSpectrum{
		newMergedSpectrum(fragmentScan(1, 600), weak, 0),
		newMergedSpectrum(fragmentScan(2, 600), rightFragments, 0),
	}
	if m := mergeViaClustering(spectra, p); len(m.Scans) != 1 || m.Scans[0] != 2 {
		t.Errorf("clustering returned scans %v, expected [2]", m.Scans)
	}
}

func TestCosineQuery(t *testing.T) {
	p := DefaultParams().MS2
	s := spectrum.Spectrum{{Mz: 100, Intens: 50}, {Mz: 150, Intens: 5}, {Mz: 590, Intens: 100}}
	m := newMergedSpectrum(fragmentScan(1, 600), s, 10)
	want := spectrum.Spectrum{{Mz: 100, Intens: 40}}
	if diff := cmp.Diff(want, cosineQuery(m, p)); diff != "" {
		t.Errorf("query mismatch (-want +got):\n%s", diff)
	}
}
