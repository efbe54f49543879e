package lcms

// IonGroup is an ion with the isotope peaks, adducts and in-source
// fragments found to co-elute with it
type IonGroup struct {
	Trace   *Trace
	Segment Segment
	// 0 while unknown
	Charge            int
	Isotopes          []CorrelationGroup
	Adducts           []CorrelatedIon
	InSourceFragments []CorrelatedIon
}

// Apex returns the apex point of the ion's segment
func (g *IonGroup) Apex() ScanPoint {
	return g.Trace.Apex(g.Segment)
}

// CorrelatedIon links an ion to a related ion through the correlation of
// their profiles
type CorrelatedIon struct {
	Correlation CorrelationGroup
	Ion         *IonGroup
	// Adduct relation such as "[M+H]+ -> [M+Na]+", empty for fragments
	Annotation string
}

// FragmentedIon is an ion with its merged fragment spectrum
type FragmentedIon struct {
	IonGroup
	Polarity          Polarity
	MsMs              *MergedSpectrum
	MsMsScans         []int
	Chimerics         []Chimeric
	ChimericPollution float64
	PeakShape         PeakShape
	Identifications   []Identification
}

// Identification is a peptide or compound annotation of a fragment
// spectrum from an external search
type Identification struct {
	SpectrumID string
	Name       string
	Charge     int
	Scores     map[string]float64
}

// claimedMasses holds the m/z values already assigned to an ion
type claimedMasses struct {
	mz []float64
}

const claimTolerance = 1e-6

func (c *claimedMasses) claim(mz float64) {
	c.mz = append(c.mz, mz)
}

func (c *claimedMasses) contains(mz float64) bool {
	for _, m := range c.mz {
		if m-mz < claimTolerance && mz-m < claimTolerance {
			return true
		}
	}
	return false
}

// claimIsotopes claims the m/z of every isotope partner of g at the apex scan
func (c *claimedMasses) claimIsotopes(g *IonGroup) {
	apex := g.Apex().ScanID
	for _, iso := range g.Isotopes {
		t, _ := iso.Partner(g.Trace)
		if p, ok := t.PointAt(apex); ok {
			c.claim(p.Mz)
		}
	}
}
