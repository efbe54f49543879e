package lcms

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Traces are split into blocks of this many points for the adaptive
// noise threshold
const noiseBlockSize = 10

// Extrema is an alternating list of minima and maxima of an intensity
// profile. Even positions are minima, odd positions maxima.
type Extrema struct {
	Index []int
	Value []float64
}

// Len returns the number of extrema
func (e Extrema) Len() int {
	return len(e.Index)
}

// IsMinimum reports whether extremum k is a minimum
func (e Extrema) IsMinimum(k int) bool {
	return k%2 == 0
}

// Maxima returns the number of maxima
func (e Extrema) Maxima() int {
	return len(e.Index) / 2
}

// Valid checks that minima and maxima alternate, starting with a minimum,
// with strictly increasing indices
func (e Extrema) Valid() bool {
	if len(e.Index) != len(e.Value) {
		return false
	}
	for k := 1; k < len(e.Index); k++ {
		if e.Index[k] <= e.Index[k-1] {
			return false
		}
		if e.IsMinimum(k-1) && !(e.Value[k-1] < e.Value[k]) {
			return false
		}
		if !e.IsMinimum(k-1) && !(e.Value[k-1] > e.Value[k]) {
			return false
		}
	}
	return true
}

// ExtremaOptions controls the optional smoothing of detected extrema
type ExtremaOptions struct {
	Smooth     bool
	Power      float64
	MinExtrema int
}

// AdaptiveNoise returns a per point threshold for the significance of
// intensity changes. Short profiles use the model noise directly; longer
// ones use, per block, the largest of twice the model noise, the 33rd
// percentile of the absolute intensity steps and half the median of the
// lowest tenth of the intensities.
func AdaptiveNoise(intensities, noise []float64) []float64 {
	n := len(intensities)
	thr := make([]float64, n)
	if n < noiseBlockSize {
		copy(thr, noise)
		return thr
	}
	blocks := n / noiseBlockSize
	for b := 0; b < blocks; b++ {
		lo := b * noiseBlockSize
		hi := lo + noiseBlockSize
		if b == blocks-1 {
			hi = n
		}
		level := 2 * noise[(lo+hi)/2]

		steps := make([]float64, 0, hi-lo-1)
		for i := lo + 1; i < hi; i++ {
			steps = append(steps, math.Abs(intensities[i]-intensities[i-1]))
		}
		sort.Float64s(steps)
		level = math.Max(level, stat.Quantile(0.33, stat.Empirical, steps, nil))

		values := append([]float64(nil), intensities[lo:hi]...)
		sort.Float64s(values)
		decile := values[:int(math.Ceil(float64(len(values))/10))]
		level = math.Max(level, stat.Quantile(0.5, stat.Empirical, decile, nil)/2)

		for i := lo; i < hi; i++ {
			thr[i] = level
		}
	}
	return thr
}

// DetectExtrema finds the significant minima and maxima of a profile.
// The first point is taken as a provisional minimum. A local extremum is
// recorded only if it differs from the previous extremum by more than the
// adaptive noise; otherwise a more extreme candidate of the same kind
// replaces the previous one in place.
func DetectExtrema(intensities, noise []float64, opts ExtremaOptions) Extrema {
	n := len(intensities)
	if n == 0 {
		return Extrema{}
	}
	thr := AdaptiveNoise(intensities, noise)
	e := Extrema{Index: []int{0}, Value: []float64{intensities[0]}}
	for i := 1; i < n; i++ {
		v := intensities[i]
		isMax := v >= intensities[i-1] && (i == n-1 || v > intensities[i+1])
		isMin := v <= intensities[i-1] && (i == n-1 || v < intensities[i+1])
		last := len(e.Index) - 1
		if e.IsMinimum(last) {
			if isMin && v < e.Value[last] {
				e.Index[last], e.Value[last] = i, v
			} else if isMax && v-e.Value[last] > thr[i] {
				e.Index = append(e.Index, i)
				e.Value = append(e.Value, v)
			}
		} else {
			if isMax && v > e.Value[last] {
				e.Index[last], e.Value[last] = i, v
			} else if isMin && e.Value[last]-v > thr[i] {
				e.Index = append(e.Index, i)
				e.Value = append(e.Value, v)
			}
		}
	}
	if opts.Smooth {
		e = smoothExtrema(e, thr, opts)
	}
	return e
}

// smoothExtrema removes pairs of extrema whose adjacent slopes are both
// below power times the noise, flattest pair first, while more than
// MinExtrema extrema remain. The surviving neighbour of the removed pair
// takes the more extreme value of the two of its kind.
func smoothExtrema(e Extrema, thr []float64, opts ExtremaOptions) Extrema {
	power := opts.Power
	if power <= 0 {
		power = 1
	}
	for len(e.Index)-2 >= opts.MinExtrema {
		best, bestSlope := -1, math.Inf(1)
		for k := 1; k+1 < len(e.Index); k++ {
			limit := power * thr[e.Index[k]]
			left := math.Abs(e.Value[k] - e.Value[k-1])
			right := math.Abs(e.Value[k+1] - e.Value[k])
			if left < limit && right < limit && left+right < bestSlope {
				best, bestSlope = k, left+right
			}
		}
		if best < 0 {
			break
		}
		keep := best - 1
		moreExtreme := e.Value[best+1] < e.Value[keep]
		if !e.IsMinimum(keep) {
			moreExtreme = e.Value[best+1] > e.Value[keep]
		}
		if moreExtreme {
			e.Index[keep], e.Value[keep] = e.Index[best+1], e.Value[best+1]
		}
		e.Index = append(e.Index[:best], e.Index[best+2:]...)
		e.Value = append(e.Value[:best], e.Value[best+2:]...)
	}
	return e
}

// segmentBounds turns extrema into [start,end] index pairs, one per
// maximum. A minimum between two maxima closes the left segment.
func segmentBounds(e Extrema, n int) [][2]int {
	var bounds [][2]int
	for k := 1; k < len(e.Index); k += 2 {
		start := e.Index[k-1]
		if k > 1 {
			start++
		}
		end := n - 1
		if k+1 < len(e.Index) {
			end = e.Index[k+1]
		}
		bounds = append(bounds, [2]int{start, end})
	}
	return bounds
}
