package mzml

import (
	"bytes"
	"compress/zlib"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func encode64(v []float64, compress bool) string {
	buf := make([]byte, 8*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint64(buf[8*i:], math.Float64bits(x))
	}
	if compress {
		var b bytes.Buffer
		z := zlib.NewWriter(&b)
		z.Write(buf)
		z.Close()
		buf = b.Bytes()
	}
	return base64.StdEncoding.EncodeToString(buf)
}

func encode32(v []float64) string {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(float32(x)))
	}
	return base64.StdEncoding.EncodeToString(buf)
}

func testMzML() string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="utf-8"?>
<indexedmzML xmlns="http://psi.hupo.org/ms/mzml">
<mzML xmlns="http://psi.hupo.org/ms/mzml" version="1.1.0">
 <instrumentConfigurationList count="1">
  <instrumentConfiguration id="IC1">
   <componentList count="1">
    <analyzer order="2"><cvParam cvRef="MS" accession="MS:1000484" name="orbitrap"/></analyzer>
   </componentList>
  </instrumentConfiguration>
 </instrumentConfigurationList>
 <run id="test">
  <spectrumList count="2">
   <spectrum index="0" id="scan=1" defaultArrayLength="3">
    <cvParam accession="MS:1000511" name="ms level" value="1"/>
    <cvParam accession="MS:1000130" name="positive scan"/>
    <cvParam accession="MS:1000127" name="centroid spectrum"/>
    <cvParam accession="MS:1000285" name="total ion current" value="600"/>
    <scanList count="1">
     <scan><cvParam accession="MS:1000016" name="scan start time" value="1.5" unitAccession="UO:0000031"/></scan>
    </scanList>
    <binaryDataArrayList count="2">
     <binaryDataArray>
      <cvParam accession="MS:1000523" name="64-bit float"/>
      <cvParam accession="MS:1000574" name="zlib compression"/>
      <cvParam accession="MS:1000514" name="m/z array"/>
      <binary>%s</binary>
     </binaryDataArray>
     <binaryDataArray>
      <cvParam accession="MS:1000521" name="32-bit float"/>
      <cvParam accession="MS:1000576" name="no compression"/>
      <cvParam accession="MS:1000515" name="intensity array"/>
      <binary>%s</binary>
     </binaryDataArray>
    </binaryDataArrayList>
   </spectrum>
   <spectrum index="1" id="scan=2" defaultArrayLength="2">
    <cvParam accession="MS:1000511" name="ms level" value="2"/>
    <cvParam accession="MS:1000129" name="negative scan"/>
    <scanList count="1">
     <scan><cvParam accession="MS:1000016" name="scan start time" value="91" unitAccession="UO:0000010"/></scan>
    </scanList>
    <precursorList count="1">
     <precursor spectrumRef="scan=1">
      <isolationWindow>
       <cvParam accession="MS:1000827" name="isolation window target m/z" value="500.25"/>
       <cvParam accession="MS:1000828" name="isolation window lower offset" value="0.8"/>
       <cvParam accession="MS:1000829" name="isolation window upper offset" value="1.2"/>
      </isolationWindow>
      <selectedIonList count="1">
       <selectedIon>
        <cvParam accession="MS:1000744" name="selected ion m/z" value="500.2512"/>
        <cvParam accession="MS:1000041" name="charge state" value="2"/>
        <cvParam accession="MS:1000042" name="peak intensity" value="3000"/>
       </selectedIon>
      </selectedIonList>
     </precursor>
    </precursorList>
    <binaryDataArrayList count="2">
     <binaryDataArray>
      <cvParam accession="MS:1000523" name="64-bit float"/>
      <cvParam accession="MS:1000514" name="m/z array"/>
      <binary>%s</binary>
     </binaryDataArray>
     <binaryDataArray>
      <cvParam accession="MS:1000523" name="64-bit float"/>
      <cvParam accession="MS:1000515" name="intensity array"/>
      <binary>%s</binary>
     </binaryDataArray>
    </binaryDataArrayList>
   </spectrum>
  </spectrumList>
 </run>
</mzML>
</indexedmzML>`,
		encode64([]float64{100.5, 200.25, 500.2512}, true),
		encode32([]float64{100, 200, 300}),
		encode64([]float64{150.1, 250.2}, false),
		encode64([]float64{10, 20}, false))
}

func TestRead(t *testing.T) {
	f, err := Read(strings.NewReader(testMzML()))
	if err != nil {
		t.Fatalf("Read: error return %v", err)
	}
	if n := f.NumSpecs(); n != 2 {
		t.Errorf("NumSpecs: %d, should be 2", n)
	}

	p, err := f.ReadScan(0)
	if err != nil {
		t.Fatalf("ReadScan: error return %v", err)
	}
	want := []Peak{{100.5, 100}, {200.25, 200}, {500.2512, 300}}
	if diff := cmp.Diff(want, p); diff != "" {
		t.Errorf("ReadScan(0) mismatch (-want +got):\n%s", diff)
	}
	p, err = f.ReadScan(1)
	if err != nil {
		t.Fatalf("ReadScan: error return %v", err)
	}
	if diff := cmp.Diff([]Peak{{150.1, 10}, {250.2, 20}}, p); diff != "" {
		t.Errorf("ReadScan(1) mismatch (-want +got):\n%s", diff)
	}
	if _, err = f.ReadScan(2); err != ErrInvalidScanIndex {
		t.Errorf("ReadScan: error return %v, should be ErrInvalidScanIndex", err)
	}

	centroid, err := f.Centroid(0)
	if err != nil || !centroid {
		t.Errorf("Centroid(0): %v, %v, should be true", centroid, err)
	}
	centroid, err = f.Centroid(1)
	if err != nil || centroid {
		t.Errorf("Centroid(1): %v, %v, should be false", centroid, err)
	}

	rt, err := f.RetentionTime(0)
	if err != nil || rt != 90 {
		t.Errorf("RetentionTime(0): %v, %v, should be 90", rt, err)
	}
	rt, err = f.RetentionTime(1)
	if err != nil || rt != 91 {
		t.Errorf("RetentionTime(1): %v, %v, should be 91", rt, err)
	}

	for i, want := range []int{1, 2} {
		msLevel, err := f.MSLevel(i)
		if err != nil || msLevel != want {
			t.Errorf("MSLevel(%d): %d, %v, should be %d", i, msLevel, err, want)
		}
	}
	for i, want := range []int{1, -1} {
		pol, err := f.Polarity(i)
		if err != nil || pol != want {
			t.Errorf("Polarity(%d): %d, %v, should be %d", i, pol, err, want)
		}
	}

	tic, err := f.TotalIonCurrent(0)
	if err != nil || tic != 600 {
		t.Errorf("TotalIonCurrent(0): %v, %v, should be 600", tic, err)
	}
	tic, err = f.TotalIonCurrent(1)
	if err != nil || !math.IsNaN(tic) {
		t.Errorf("TotalIonCurrent(1): %v, %v, should be NaN", tic, err)
	}

	scanIndex, err := f.ScanIndex(`scan=2`)
	if err != nil || scanIndex != 1 {
		t.Errorf("ScanIndex: %d, %v, should be 1", scanIndex, err)
	}
	if _, err = f.ScanIndex(`scan=3`); err != ErrInvalidScanID {
		t.Errorf("ScanIndex: error return %v, should be ErrInvalidScanID", err)
	}
	scanID, err := f.ScanID(0)
	if err != nil || scanID != `scan=1` {
		t.Errorf("ScanID: %s, %v, should be scan=1", scanID, err)
	}

	instruments, err := f.MSInstruments()
	if err != nil {
		t.Errorf("MSInstruments: error return %v", err)
	}
	if diff := cmp.Diff([]string{"MS:1000484"}, instruments); diff != "" {
		t.Errorf("MSInstruments mismatch (-want +got):\n%s", diff)
	}
}

func TestMSInstrumentsMissing(t *testing.T) {
	var f MzML
	instruments, err := f.MSInstruments()
	if err != nil || instruments != nil {
		t.Errorf("MSInstruments without configuration: %v, %v, should be nil", instruments, err)
	}
}

func TestPrecursor(t *testing.T) {
	f, err := Read(strings.NewReader(testMzML()))
	if err != nil {
		t.Fatalf("Read: error return %v", err)
	}
	prec, err := f.Precursor(1)
	if err != nil {
		t.Fatalf("Precursor: error return %v", err)
	}
	want := Precursor{
		Mz:            500.2512,
		Intensity:     3000,
		Charge:        2,
		SpectrumIndex: 0,
		LowerOffset:   0.8,
		UpperOffset:   1.2,
	}
	if diff := cmp.Diff(want, prec); diff != "" {
		t.Errorf("Precursor(1) mismatch (-want +got):\n%s", diff)
	}
	if _, err := f.Precursor(0); !errors.Is(err, ErrNoPrecursor) {
		t.Errorf("Precursor(0): error return %v, should be ErrNoPrecursor", err)
	}
	if _, err := f.Precursor(5); err != ErrInvalidScanIndex {
		t.Errorf("Precursor(5): error return %v, should be ErrInvalidScanIndex", err)
	}
}

func TestNumpressRejected(t *testing.T) {
	doc := strings.Replace(testMzML(), `accession="MS:1000576"`, `accession="MS:1002312"`, 1)
	f, err := Read(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Read: error return %v", err)
	}
	if _, err := f.ReadScan(0); !errors.Is(err, ErrUnsupportedCompression) {
		t.Errorf("ReadScan: error return %v, should be ErrUnsupportedCompression", err)
	}
}
