package lcms

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"
)

// ErrTooFewPoints is returned when a segment is too short to fit
var ErrTooFewPoints = errors.New("too few points for peak shape fit")

// PeakShape is a Gaussian fitted to the elution profile of a segment.
// Mean and Sigma are in seconds.
type PeakShape struct {
	Mean      float64
	Sigma     float64
	Amplitude float64
	// Coefficient of determination of the fit
	R2 float64
}

// Value returns the fitted intensity at retention time rt
func (p PeakShape) Value(rt float64) float64 {
	if p.Sigma == 0 {
		return 0
	}
	d := (rt - p.Mean) / p.Sigma
	return p.Amplitude * math.Exp(-d*d/2)
}

// FitPeakShape fits a Gaussian to the points of segment seg
func FitPeakShape(t *Trace, seg Segment) (PeakShape, error) {
	if seg.Len() < 3 {
		return PeakShape{}, ErrTooFewPoints
	}
	rt := make([]float64, 0, seg.Len())
	intens := make([]float64, 0, seg.Len())
	for i := seg.Start; i <= seg.End; i++ {
		p := t.Point(i)
		rt = append(rt, p.RetentionTime)
		intens = append(intens, p.Intensity)
	}
	apex := t.Apex(seg)
	sigma := t.FWHM(seg) / (2 * math.Sqrt(2*math.Ln2))
	if sigma <= 0 {
		sigma = (rt[len(rt)-1] - rt[0]) / 4
	}
	if sigma <= 0 {
		return PeakShape{}, ErrTooFewPoints
	}

	// x = mean, sigma, amplitude
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			shape := PeakShape{Mean: x[0], Sigma: math.Abs(x[1]), Amplitude: x[2]}
			sumOfResiduals := 0.0
			for i := range rt {
				diff := shape.Value(rt[i]) - intens[i]
				sumOfResiduals += diff * diff
			}
			return sumOfResiduals
		},
	}
	result, err := optimize.Minimize(problem, []float64{apex.RetentionTime, sigma, apex.Intensity}, nil, nil)
	if err != nil {
		return PeakShape{}, err
	}
	shape := PeakShape{
		Mean:      result.X[0],
		Sigma:     math.Abs(result.X[1]),
		Amplitude: result.X[2],
	}
	mean := stat.Mean(intens, nil)
	ssRes, ssTot := 0.0, 0.0
	for i := range rt {
		diff := shape.Value(rt[i]) - intens[i]
		ssRes += diff * diff
		ssTot += (intens[i] - mean) * (intens[i] - mean)
	}
	if ssTot > 0 {
		shape.R2 = 1 - ssRes/ssTot
	}
	return shape, nil
}
