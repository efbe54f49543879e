// Package sqlite writes detected ions to an SQLite database
package sqlite

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/524D/mzfeat/internal/lcms"
	"github.com/524D/mzfeat/internal/spectrum"
	_ "github.com/mattn/go-sqlite3"
)

// Date format for SampleTable (ISO 8601)
const creationDateFormat = "2006-01-02"

// Kinds of CorrelatedTable rows
const (
	kindAdduct   = "adduct"
	kindFragment = "fragment"
)

// Writer handles writing processed samples to SQLite database files
type Writer struct {
	db             *sql.DB
	outputPath     string
	sampleStmt     *sql.Stmt
	ionStmt        *sql.Stmt
	isotopeStmt    *sql.Stmt
	correlatedStmt *sql.Stmt
	chimericStmt   *sql.Stmt
	identStmt      *sql.Stmt
	sampleID       int
	ionID          int
}

// NewWriter creates a new SQLite writer
func NewWriter(outputPath string) (*Writer, error) {
	db, err := sql.Open("sqlite3", outputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	w := &Writer{
		db:         db,
		outputPath: outputPath,
		sampleID:   1,
		ionID:      1,
	}

	if err := w.createTables(); err != nil {
		db.Close()
		return nil, err
	}

	if err := w.prepareStatements(); err != nil {
		db.Close()
		return nil, err
	}

	return w, nil
}

// createTables creates the required database schema
func (w *Writer) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS SampleTable (
		SampleId INTEGER PRIMARY KEY,
		Name TEXT,
		Scans INTEGER,
		Ions INTEGER,
		TotalIonCurrent DOUBLE,
		Instruments TEXT,
		CreationDate TEXT
	);

	CREATE TABLE IF NOT EXISTS IonTable (
		IonId INTEGER PRIMARY KEY,
		SampleId INTEGER REFERENCES SampleTable(SampleId),
		TraceId INTEGER,
		ApexScan INTEGER,
		RetentionTime DOUBLE,
		Mz DOUBLE,
		Intensity DOUBLE,
		Charge INTEGER,
		Polarity TEXT,
		StartScan INTEGER,
		EndScan INTEGER,
		FwhmStart DOUBLE,
		FwhmEnd DOUBLE,
		PrecursorMass DOUBLE,
		ChimericPollution DOUBLE,
		ShapeMean DOUBLE,
		ShapeSigma DOUBLE,
		ShapeAmplitude DOUBLE,
		ShapeR2 DOUBLE,
		MsMsScans TEXT,
		blobMass BLOB,
		blobIntensity BLOB
	);

	CREATE TABLE IF NOT EXISTS IsotopeTable (
		IonId INTEGER REFERENCES IonTable(IonId),
		Number INTEGER,
		Mz DOUBLE,
		Intensity DOUBLE,
		Correlation DOUBLE
	);

	CREATE TABLE IF NOT EXISTS CorrelatedTable (
		IonId INTEGER REFERENCES IonTable(IonId),
		Kind TEXT,
		Annotation TEXT,
		Mz DOUBLE,
		Intensity DOUBLE,
		Charge INTEGER,
		Correlation DOUBLE
	);

	CREATE TABLE IF NOT EXISTS ChimericTable (
		IonId INTEGER REFERENCES IonTable(IonId),
		Mz DOUBLE,
		Intensity DOUBLE
	);

	CREATE TABLE IF NOT EXISTS IdentificationTable (
		IonId INTEGER REFERENCES IonTable(IonId),
		SpectrumId TEXT,
		Name TEXT,
		Charge INTEGER,
		Scores TEXT
	);
	`

	_, err := w.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	return nil
}

// prepareStatements prepares SQL statements for batch insertion
func (w *Writer) prepareStatements() error {
	var err error

	w.sampleStmt, err = w.db.Prepare(`
		INSERT INTO SampleTable (SampleId, Name, Scans, Ions, TotalIonCurrent, Instruments, CreationDate)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare sample statement: %w", err)
	}

	w.ionStmt, err = w.db.Prepare(`
		INSERT INTO IonTable (
			IonId, SampleId, TraceId, ApexScan, RetentionTime, Mz, Intensity,
			Charge, Polarity, StartScan, EndScan, FwhmStart, FwhmEnd,
			PrecursorMass, ChimericPollution, ShapeMean, ShapeSigma,
			ShapeAmplitude, ShapeR2, MsMsScans, blobMass, blobIntensity
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare ion statement: %w", err)
	}

	w.isotopeStmt, err = w.db.Prepare(`
		INSERT INTO IsotopeTable (IonId, Number, Mz, Intensity, Correlation)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare isotope statement: %w", err)
	}

	w.correlatedStmt, err = w.db.Prepare(`
		INSERT INTO CorrelatedTable (IonId, Kind, Annotation, Mz, Intensity, Charge, Correlation)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare correlated statement: %w", err)
	}

	w.chimericStmt, err = w.db.Prepare(`
		INSERT INTO ChimericTable (IonId, Mz, Intensity) VALUES (?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare chimeric statement: %w", err)
	}

	w.identStmt, err = w.db.Prepare(`
		INSERT INTO IdentificationTable (IonId, SpectrumId, Name, Charge, Scores)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare identification statement: %w", err)
	}

	return nil
}

// WriteSample writes a processed sample and all its ions in one transaction
func (w *Writer) WriteSample(s *lcms.Sample) error {
	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := w.writeSample(tx, s); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit sample %s: %w", s.Run.Name, err)
	}
	w.sampleID++
	return nil
}

func (w *Writer) writeSample(tx *sql.Tx, s *lcms.Sample) error {
	_, err := tx.Stmt(w.sampleStmt).Exec(
		w.sampleID,
		s.Run.Name,
		s.Run.Len(),
		len(s.Ions),
		s.Run.SurveyTIC(),
		strings.Join(s.Run.Instruments, ","),
		time.Now().Format(creationDateFormat),
	)
	if err != nil {
		return fmt.Errorf("failed to insert sample: %w", err)
	}
	for _, ion := range s.Ions {
		if err := w.writeIon(tx, ion); err != nil {
			return err
		}
		w.ionID++
	}
	return nil
}

func (w *Writer) writeIon(tx *sql.Tx, ion *lcms.FragmentedIon) error {
	t, seg := ion.Trace, ion.Segment
	apex := ion.Apex()
	start, end := t.ScanRange(seg)

	// Merged fragment spectrum as little-endian float64 blobs
	var mzBlob, intBlob []byte
	var precursor any
	if ion.MsMs != nil {
		spec := ion.MsMs.Spectrum()
		mzBlob = encodePeaksFloat64(spec, true)
		intBlob = encodePeaksFloat64(spec, false)
		precursor = ion.MsMs.Precursor.Mz
	}

	scans := make([]string, len(ion.MsMsScans))
	for i, id := range ion.MsMsScans {
		scans[i] = strconv.Itoa(id)
	}

	_, err := tx.Stmt(w.ionStmt).Exec(
		w.ionID,                              // IonId
		w.sampleID,                           // SampleId
		int(t.ID),                            // TraceId
		apex.ScanID,                          // ApexScan
		apex.RetentionTime,                   // RetentionTime
		apex.Mz,                              // Mz
		apex.Intensity,                       // Intensity
		ion.Charge,                           // Charge
		ion.Polarity.String(),                // Polarity
		start,                                // StartScan
		end,                                  // EndScan
		t.Point(seg.FwhmStart).RetentionTime, // FwhmStart
		t.Point(seg.FwhmEnd).RetentionTime,   // FwhmEnd
		precursor,                            // PrecursorMass
		ion.ChimericPollution,                // ChimericPollution
		ion.PeakShape.Mean,                   // ShapeMean
		ion.PeakShape.Sigma,                  // ShapeSigma
		ion.PeakShape.Amplitude,              // ShapeAmplitude
		ion.PeakShape.R2,                     // ShapeR2
		strings.Join(scans, ","),             // MsMsScans
		mzBlob,                               // blobMass
		intBlob,                              // blobIntensity
	)
	if err != nil {
		return fmt.Errorf("failed to insert ion: %w", err)
	}

	for k, iso := range ion.Isotopes {
		p, ok := partnerAt(iso, t, apex.ScanID)
		if !ok {
			continue
		}
		if _, err := tx.Stmt(w.isotopeStmt).Exec(w.ionID, k+1, p.Mz, p.Intensity, iso.Correlation); err != nil {
			return fmt.Errorf("failed to insert isotope: %w", err)
		}
	}
	for _, list := range []struct {
		kind string
		ions []lcms.CorrelatedIon
	}{
		{kindAdduct, ion.Adducts},
		{kindFragment, ion.InSourceFragments},
	} {
		for _, c := range list.ions {
			if c.Ion == nil {
				continue
			}
			p := c.Ion.Apex()
			_, err := tx.Stmt(w.correlatedStmt).Exec(w.ionID, list.kind, c.Annotation,
				p.Mz, p.Intensity, c.Ion.Charge, c.Correlation.Correlation)
			if err != nil {
				return fmt.Errorf("failed to insert %s: %w", list.kind, err)
			}
		}
	}
	for _, c := range ion.Chimerics {
		if _, err := tx.Stmt(w.chimericStmt).Exec(w.ionID, c.Mz, c.Intensity); err != nil {
			return fmt.Errorf("failed to insert chimeric: %w", err)
		}
	}
	for _, id := range ion.Identifications {
		if _, err := tx.Stmt(w.identStmt).Exec(w.ionID, id.SpectrumID, id.Name, id.Charge, formatScores(id.Scores)); err != nil {
			return fmt.Errorf("failed to insert identification: %w", err)
		}
	}
	return nil
}

// partnerAt returns the point of the isotope partner of t at scanID
func partnerAt(g lcms.CorrelationGroup, t *lcms.Trace, scanID int) (lcms.ScanPoint, bool) {
	other, _ := g.Partner(t)
	if other == nil {
		return lcms.ScanPoint{}, false
	}
	return other.PointAt(scanID)
}

// formatScores renders scores as name=value pairs in name order
func formatScores(scores map[string]float64) string {
	names := make([]string, 0, len(scores))
	for name := range scores {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = name + "=" + strconv.FormatFloat(scores[name], 'g', -1, 64)
	}
	return strings.Join(parts, ";")
}

// encodePeaksFloat64 encodes peak data as little-endian float64 blob
func encodePeaksFloat64(peaks spectrum.Spectrum, useMZ bool) []byte {
	buf := make([]byte, len(peaks)*8)
	for i, peak := range peaks {
		var value float64
		if useMZ {
			value = peak.Mz
		} else {
			value = peak.Intens
		}
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(value))
	}
	return buf
}

// Close closes the prepared statements and the database
func (w *Writer) Close() error {
	for _, stmt := range []*sql.Stmt{w.sampleStmt, w.ionStmt, w.isotopeStmt, w.correlatedStmt, w.chimericStmt, w.identStmt} {
		if stmt != nil {
			stmt.Close()
		}
	}
	if err := w.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
