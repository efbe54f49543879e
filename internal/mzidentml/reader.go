package mzidentml

import (
	"encoding/xml"
	"fmt"
	"io"
	"math"
	"strconv"

	"golang.org/x/net/html/charset"
)

// Read reads mzIdentML content from io.reader
func Read(reader io.Reader) (MzIdentML, error) {
	var mzIdentML MzIdentML
	d := xml.NewDecoder(reader)
	d.CharsetReader = charset.NewReaderLabel
	err := d.Decode(&mzIdentML.content)
	if err != nil {
		return mzIdentML, err
	}
	mzIdentML.buildPepID2Sequence()
	mzIdentML.buildIdentList()
	return mzIdentML, nil
}

func (m *MzIdentML) buildPepID2Sequence() {
	m.seqID2PepIdx = make(map[string]int, len(m.content.Peptide))
	for i, p := range m.content.Peptide {
		m.seqID2PepIdx[p.ID] = i
	}
}

func (m *MzIdentML) buildIdentList() {
	m.bySpectrum = make(map[string][]int)
	for i, r := range m.content.SpectrumIdentificationResult {
		for j := range r.SpectrumIdentificationItem {
			m.bySpectrum[r.SpectrumID] = append(m.bySpectrum[r.SpectrumID], len(m.identList))
			m.identList = append(m.identList, identRef{specIDIdx: i, specResultIdx: j})
		}
	}
}

// NumIdents returns the total number of identifications in the mzIdentML file
// Note that for some spectra, multiple identifications may be present
// The identifications can be accessed using the Ident() method, which takes
// an index as argument. The index runs from 0 to NumIdents()-1
func (m *MzIdentML) NumIdents() int {
	return len(m.identList)
}

// NumSpectra returns the number of identified spectra
func (m *MzIdentML) NumSpectra() int {
	return len(m.bySpectrum)
}

// IdentsForSpectrum returns all identifications of the spectrum with the
// given native ID, best rank first as listed in the file
func (m *MzIdentML) IdentsForSpectrum(spectrumID string) ([]Identification, error) {
	var out []Identification
	for _, i := range m.bySpectrum[spectrumID] {
		ident, err := m.Ident(i)
		if err != nil {
			return nil, err
		}
		out = append(out, ident)
	}
	return out, nil
}

// BySpectrum returns all identifications keyed by native spectrum ID
func (m *MzIdentML) BySpectrum() (map[string][]Identification, error) {
	out := make(map[string][]Identification, len(m.bySpectrum))
	for id := range m.bySpectrum {
		idents, err := m.IdentsForSpectrum(id)
		if err != nil {
			return nil, err
		}
		out[id] = idents
	}
	return out, nil
}

// Ident returns a spectrum identification from the mzIdentML file.
// Parameter i is the index of the identification to return. The index runs
// from 0 to NumIdents()-1
func (m *MzIdentML) Ident(i int) (Identification, error) {
	var ident Identification

	if i < 0 || i >= len(m.identList) {
		return ident, ErrInvalidIdentIndex
	}
	result := m.content.SpectrumIdentificationResult[m.identList[i].specIDIdx]
	item := result.SpectrumIdentificationItem[m.identList[i].specResultIdx]

	pepIdx, ok := m.seqID2PepIdx[item.PeptideRef]
	if !ok {
		return ident, fmt.Errorf("%q: %w", item.PeptideRef, ErrUnknownPeptide)
	}
	pep := m.content.Peptide[pepIdx]
	ident.PepSeq = pep.PeptideSequence
	ident.PepID = pep.ID
	ident.Charge = item.ChargeState
	ident.Rank = item.Rank
	for _, mod := range pep.Modification {
		ident.ModMass += mod.MonoisotopicMassDelta
	}
	ident.SpecID = result.SpectrumID
	ident.RetentionTime = -1
	prio := math.MaxInt32
	for _, cv := range result.CvPar {
		// There are multiple CV terms that can be used to report the
		// retention time. In order of decreasing preference we use:
		// 1. MS:1000016 - scan start time
		// 2. MS:1000894 - retention time
		// 3. MS:1000826 - elution time
		// 4. MS:1001114 - retention time (deprecated)
		p := 0
		switch cv.Accession {
		case "MS:1000016":
			p = 1
		case "MS:1000894":
			p = 2
		case "MS:1000826":
			p = 3
		case "MS:1001114":
			p = 4
		}
		if p == 0 || p >= prio {
			continue
		}
		retentionTime, err := strconv.ParseFloat(cv.Value, 64)
		if err != nil {
			return ident, err
		}
		// Check if the retention time is in minutes, otherwise assume it's seconds
		if cv.UnitAccession == "UO:0000031" || cv.UnitAccession == "MS:1000038" {
			retentionTime *= 60
		}
		ident.RetentionTime = retentionTime
		prio = p
	}
	// The scores are in the cvParams of the item; non-numeric ones are skipped
	for _, cv := range item.CvPar {
		v, err := strconv.ParseFloat(cv.Value, 64)
		if err != nil {
			continue
		}
		if ident.Scores == nil {
			ident.Scores = make(map[string]float64)
		}
		ident.Scores[cv.Name] = v
	}
	return ident, nil
}
