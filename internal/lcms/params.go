package lcms

import (
	"errors"
	"fmt"
)

// Params holds the tuning constants of feature detection
type Params struct {
	Trace       TraceParams       `yaml:"trace"`
	MS2         MS2Params         `yaml:"ms2"`
	Correlation CorrelationParams `yaml:"correlation"`
	Chimeric    ChimericParams    `yaml:"chimeric"`
	IonTypes    []IonType         `yaml:"ionTypes"`
}

// TraceParams controls trace building and segmentation
type TraceParams struct {
	PPM             float64 `yaml:"ppm"`
	NoisePercentile float64 `yaml:"noisePercentile"`
	NoiseWindow     int     `yaml:"noiseWindow"`
	Smoothing       bool    `yaml:"smoothing"`
	SmoothingPower  float64 `yaml:"smoothingPower"`
	MinExtrema      int     `yaml:"minExtrema"`
}

// MS2Params controls the grouping and merging of fragment spectra
type MS2Params struct {
	CosineThreshold   float64         `yaml:"cosineThreshold"`
	MinSharedPeaks    int             `yaml:"minSharedPeaks"`
	PeaksPerWindow    int             `yaml:"peaksPerWindow"`
	WindowWidth       float64         `yaml:"windowWidth"`
	CosinePPM         float64         `yaml:"cosinePPM"`
	MergePPM          float64         `yaml:"mergePPM"`
	MergeAbs          float64         `yaml:"mergeAbs"`
	PrecursorCut      float64         `yaml:"precursorCut"`
	IsolationWindow   IsolationWindow `yaml:"isolationWindow"`
	PollutionMargin   float64         `yaml:"pollutionMargin"`
	RequireMsMs       bool            `yaml:"requireMsMs"`
	FitPeakShape      bool            `yaml:"fitPeakShape"`
	CorrelatePeaks    bool            `yaml:"correlatePeaks"`
	DedupeIonNetworks bool            `yaml:"dedupeIonNetworks"`
}

// CorrelationParams holds the thresholds used for isotopes, adducts and
// in-source fragments
type CorrelationParams struct {
	Isotope          float64 `yaml:"isotope"`
	Strict           float64 `yaml:"strict"`
	Adduct           float64 `yaml:"adduct"`
	SelfIsotopeRatio float64 `yaml:"selfIsotopeRatio"`
	InSourceMS2      float64 `yaml:"inSourceMS2"`
	InSourceMS1      float64 `yaml:"inSourceMS1"`
	MaxCharge        int     `yaml:"maxCharge"`
	WindowFraction   float64 `yaml:"windowFraction"`
	MinPoints        int     `yaml:"minPoints"`
}

// ChimericParams controls the search for co-isolated precursors
type ChimericParams struct {
	RelativeIntensity float64 `yaml:"relativeIntensity"`
	MaxWidening       int     `yaml:"maxWidening"`
}

// IonType is an adduct: the ion m/z is the neutral mass plus Shift
// (for charge one)
type IonType struct {
	Name     string   `yaml:"name"`
	Shift    float64  `yaml:"shift"`
	Polarity Polarity `yaml:"polarity"`
}

// DefaultParams returns the parameters used when nothing is configured
func DefaultParams() Params {
	return Params{
		Trace: TraceParams{
			PPM:             15,
			NoisePercentile: 0.85,
			NoiseWindow:     11,
			Smoothing:       false,
			SmoothingPower:  2,
			MinExtrema:      3,
		},
		MS2: MS2Params{
			CosineThreshold:   0.75,
			MinSharedPeaks:    4,
			PeaksPerWindow:    6,
			WindowWidth:       100,
			CosinePPM:         20,
			MergePPM:          20,
			MergeAbs:          0.05,
			PrecursorCut:      20,
			IsolationWindow:   IsolationWindow{Lower: 0.25, Upper: 0.25},
			PollutionMargin:   0.2,
			RequireMsMs:       true,
			FitPeakShape:      true,
			CorrelatePeaks:    true,
			DedupeIonNetworks: true,
		},
		Correlation: CorrelationParams{
			Isotope:          0.9,
			Strict:           0.95,
			Adduct:           0.9,
			SelfIsotopeRatio: 0.33,
			InSourceMS2:      0.05,
			InSourceMS1:      0.1,
			MaxCharge:        3,
			WindowFraction:   0.15,
			MinPoints:        3,
		},
		Chimeric: ChimericParams{
			RelativeIntensity: 0.25,
			MaxWidening:       4,
		},
		IonTypes: []IonType{
			{Name: "[M+H]+", Shift: 1.007276, Polarity: Positive},
			{Name: "[M+Na]+", Shift: 22.989218, Polarity: Positive},
			{Name: "[M+K]+", Shift: 38.963158, Polarity: Positive},
			{Name: "[M-H]-", Shift: -1.007276, Polarity: Negative},
			{Name: "[M+Cl]-", Shift: 34.969402, Polarity: Negative},
		},
	}
}

// ErrInvalidParams is wrapped by all Validate errors
var ErrInvalidParams = errors.New("invalid parameters")

// Validate checks the parameters for values that cannot work
func (p Params) Validate() error {
	unit := func(name string, v float64) error {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be in [0,1], got %v: %w", name, v, ErrInvalidParams)
		}
		return nil
	}
	if p.Trace.PPM <= 0 {
		return fmt.Errorf("trace.ppm must be positive, got %v: %w", p.Trace.PPM, ErrInvalidParams)
	}
	if p.Correlation.MaxCharge < 1 {
		return fmt.Errorf("correlation.maxCharge must be at least 1: %w", ErrInvalidParams)
	}
	if p.Chimeric.MaxWidening < 1 {
		return fmt.Errorf("chimeric.maxWidening must be at least 1: %w", ErrInvalidParams)
	}
	if p.MS2.WindowWidth <= 0 || p.MS2.PeaksPerWindow < 1 {
		return fmt.Errorf("ms2 peak window must be positive: %w", ErrInvalidParams)
	}
	for _, c := range []struct {
		name string
		v    float64
	}{
		{"trace.noisePercentile", p.Trace.NoisePercentile},
		{"ms2.cosineThreshold", p.MS2.CosineThreshold},
		{"correlation.isotope", p.Correlation.Isotope},
		{"correlation.strict", p.Correlation.Strict},
		{"correlation.adduct", p.Correlation.Adduct},
		{"correlation.selfIsotopeRatio", p.Correlation.SelfIsotopeRatio},
		{"correlation.windowFraction", p.Correlation.WindowFraction},
		{"chimeric.relativeIntensity", p.Chimeric.RelativeIntensity},
	} {
		if err := unit(c.name, c.v); err != nil {
			return err
		}
	}
	return nil
}
