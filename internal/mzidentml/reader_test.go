package mzidentml

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const testMzIdentML = `<?xml version="1.0" encoding="UTF-8"?>
<MzIdentML id="test" version="1.1.0">
  <SequenceCollection>
    <Peptide id="PEP_1">
      <PeptideSequence>PEPTIDE</PeptideSequence>
    </Peptide>
    <Peptide id="PEP_2">
      <PeptideSequence>MCHEMK</PeptideSequence>
      <Modification monoisotopicMassDelta="15.994915"/>
      <Modification monoisotopicMassDelta="57.021464"/>
    </Peptide>
  </SequenceCollection>
  <DataCollection>
    <AnalysisData>
      <SpectrumIdentificationList id="SIL_1">
        <SpectrumIdentificationResult id="SIR_1" spectrumID="scan=12">
          <SpectrumIdentificationItem id="SII_1" chargeState="2" rank="1" peptide_ref="PEP_1">
            <cvParam accession="MS:1002052" name="MS-GF:SpecEValue" value="1.5e-12"/>
            <cvParam accession="MS:1001117" name="theoretical mass" value="n/a"/>
          </SpectrumIdentificationItem>
          <SpectrumIdentificationItem id="SII_2" chargeState="2" rank="2" peptide_ref="PEP_2">
            <cvParam accession="MS:1002052" name="MS-GF:SpecEValue" value="3e-5"/>
          </SpectrumIdentificationItem>
          <cvParam accession="MS:1000894" name="retention time" value="100.5" unitAccession="UO:0000010"/>
          <cvParam accession="MS:1000016" name="scan start time" value="1.5" unitAccession="UO:0000031"/>
        </SpectrumIdentificationResult>
        <SpectrumIdentificationResult id="SIR_2" spectrumID="scan=40">
          <SpectrumIdentificationItem id="SII_3" chargeState="3" rank="1" peptide_ref="PEP_2"/>
        </SpectrumIdentificationResult>
      </SpectrumIdentificationList>
    </AnalysisData>
  </DataCollection>
</MzIdentML>`

func TestRead(t *testing.T) {
	f, err := Read(strings.NewReader(testMzIdentML))
	if err != nil {
		t.Fatalf("Read: error return %v", err)
	}
	if n := f.NumIdents(); n != 3 {
		t.Errorf("NumIdents is %d, expected 3", n)
	}
	if n := f.NumSpectra(); n != 2 {
		t.Errorf("NumSpectra is %d, expected 2", n)
	}

	ident, err := f.Ident(0)
	if err != nil {
		t.Fatalf("Ident: error return %v", err)
	}
	want := Identification{
		PepSeq:        "PEPTIDE",
		PepID:         "PEP_1",
		Charge:        2,
		SpecID:        "scan=12",
		RetentionTime: 90, // scan start time in minutes wins over retention time
		Rank:          1,
		Scores:        map[string]float64{"MS-GF:SpecEValue": 1.5e-12},
	}
	if diff := cmp.Diff(want, ident); diff != "" {
		t.Errorf("Ident(0) mismatch (-want +got):\n%s", diff)
	}

	ident, err = f.Ident(2)
	if err != nil {
		t.Fatalf("Ident: error return %v", err)
	}
	if ident.RetentionTime != -1 {
		t.Errorf("RetentionTime is %v, expected -1", ident.RetentionTime)
	}
	if d := ident.ModMass - 73.016379; d > 1e-9 || d < -1e-9 {
		t.Errorf("ModMass is %v, expected 73.016379", ident.ModMass)
	}

	if _, err := f.Ident(3); !errors.Is(err, ErrInvalidIdentIndex) {
		t.Errorf("Ident(3) error is %v, expected ErrInvalidIdentIndex", err)
	}
}

func TestBySpectrum(t *testing.T) {
	f, err := Read(strings.NewReader(testMzIdentML))
	if err != nil {
		t.Fatalf("Read: error return %v", err)
	}
	m, err := f.BySpectrum()
	if err != nil {
		t.Fatalf("BySpectrum: error return %v", err)
	}
	var got []string
	for _, ident := range m["scan=12"] {
		got = append(got, ident.PepSeq)
	}
	if diff := cmp.Diff([]string{"PEPTIDE", "MCHEMK"}, got); diff != "" {
		t.Errorf("scan=12 mismatch (-want +got):\n%s", diff)
	}
	if len(m["scan=40"]) != 1 || m["scan=40"][0].Charge != 3 {
		t.Errorf("scan=40 identifications: %+v", m["scan=40"])
	}
	idents, err := f.IdentsForSpectrum("scan=99")
	if err != nil || len(idents) != 0 {
		t.Errorf("IdentsForSpectrum(scan=99) = %v, %v, expected nothing", idents, err)
	}
}
