package lcms

import (
	"fmt"
	"sort"
	"strings"
)

// Polarity of the ionization
type Polarity int

// Polarities
const (
	PolarityUnknown Polarity = 0
	Positive        Polarity = 1
	Negative        Polarity = -1
)

func (p Polarity) String() string {
	switch p {
	case Positive:
		return "positive"
	case Negative:
		return "negative"
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler
func (p Polarity) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText accepts positive/negative/unknown and the short forms + and -
func (p *Polarity) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "positive", "+", "1":
		*p = Positive
	case "negative", "-", "-1":
		*p = Negative
	case "unknown", "", "0":
		*p = PolarityUnknown
	default:
		return fmt.Errorf("unknown polarity %q", text)
	}
	return nil
}

// IsolationWindow holds the offsets of the isolation window below and
// above the isolation target
type IsolationWindow struct {
	Lower float64 `yaml:"lower"`
	Upper float64 `yaml:"upper"`
}

// Defined reports whether the window has a width
func (w IsolationWindow) Defined() bool {
	return w.Lower > 0 || w.Upper > 0
}

// Range returns the m/z limits of the window around target
func (w IsolationWindow) Range(target float64) (float64, float64) {
	return target - w.Lower, target + w.Upper
}

// Precursor describes the ion selected for fragmentation
type Precursor struct {
	Mz        float64
	Intensity float64
	Charge    int
	// Scan number of the spectrum the precursor was selected from, or -1
	ScanID int
	Window IsolationWindow
}

// Scan is the metadata of one spectrum. The peaks themselves are kept
// in a spectrum store.
type Scan struct {
	ID            int // scan number, ascending in acquisition order
	NativeID      string
	RetentionTime float64 // seconds
	MSLevel       int
	Polarity      Polarity
	Precursor     Precursor
	TIC           float64 // total ion current
}

// IsMsMs reports whether the scan is a fragment spectrum
func (s Scan) IsMsMs() bool {
	return s.MSLevel > 1
}

// Run is the ordered list of scans of one measurement
type Run struct {
	Name string
	// CV accessions of the mass analyzers
	Instruments []string
	scans       []Scan
	pos         map[int]int
}

// NewRun creates a run, ordering the scans by scan number
func NewRun(name string, scans []Scan) *Run {
	r := &Run{Name: name, scans: append([]Scan(nil), scans...)}
	sort.SliceStable(r.scans, func(i, j int) bool { return r.scans[i].ID < r.scans[j].ID })
	r.pos = make(map[int]int, len(r.scans))
	for i, s := range r.scans {
		r.pos[s.ID] = i
	}
	return r
}

// Scans returns all scans in order. The slice must not be modified.
func (r *Run) Scans() []Scan {
	return r.scans
}

// SurveyTIC returns the summed total ion current of the survey scans
func (r *Run) SurveyTIC() float64 {
	tic := 0.0
	for _, s := range r.scans {
		if !s.IsMsMs() {
			tic += s.TIC
		}
	}
	return tic
}

// Len returns the number of scans
func (r *Run) Len() int {
	return len(r.scans)
}

// ScanByNumber returns the scan with the given scan number
func (r *Run) ScanByNumber(id int) (Scan, bool) {
	i, ok := r.pos[id]
	if !ok {
		return Scan{}, false
	}
	return r.scans[i], true
}

// ScansInRange returns the scans with from <= scan number <= to
func (r *Run) ScansInRange(from, to int) []Scan {
	i1 := sort.Search(len(r.scans), func(i int) bool { return r.scans[i].ID >= from })
	i2 := sort.Search(len(r.scans), func(i int) bool { return r.scans[i].ID > to })
	if i2 < i1 {
		return nil
	}
	return r.scans[i1:i2]
}

// ScansBefore returns the scans acquired before scan id, in order
func (r *Run) ScansBefore(id int) []Scan {
	i := sort.Search(len(r.scans), func(i int) bool { return r.scans[i].ID >= id })
	return r.scans[:i]
}

// ScansAfter returns the scans acquired after scan id, in order
func (r *Run) ScansAfter(id int) []Scan {
	i := sort.Search(len(r.scans), func(i int) bool { return r.scans[i].ID > id })
	return r.scans[i:]
}

// previousMS1 returns the closest survey scan before scan id
func (r *Run) previousMS1(id int) (Scan, bool) {
	before := r.ScansBefore(id)
	for i := len(before) - 1; i >= 0; i-- {
		if !before[i].IsMsMs() {
			return before[i], true
		}
	}
	return Scan{}, false
}

// nextMS1 returns the closest survey scan after scan id
func (r *Run) nextMS1(id int) (Scan, bool) {
	for _, s := range r.ScansAfter(id) {
		if !s.IsMsMs() {
			return s, true
		}
	}
	return Scan{}, false
}

// MsMsScans returns all fragment spectra in acquisition order
func (r *Run) MsMsScans() []Scan {
	var out []Scan
	for _, s := range r.scans {
		if s.IsMsMs() {
			out = append(out, s)
		}
	}
	return out
}

// parentMS1 resolves the survey scan a fragment spectrum was selected
// from. Precursor links that point to other fragment spectra are
// followed; without a usable link the closest earlier survey scan is used.
func (r *Run) parentMS1(s Scan) (Scan, bool) {
	cur := s
	for hops := 0; hops < 8 && cur.Precursor.ScanID >= 0; hops++ {
		p, ok := r.ScanByNumber(cur.Precursor.ScanID)
		if !ok || p.ID >= cur.ID {
			break
		}
		if !p.IsMsMs() {
			return p, true
		}
		cur = p
	}
	return r.previousMS1(s.ID)
}
