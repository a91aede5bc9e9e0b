package domain

import (
	"fmt"
	"math"
	"slices"
)

// Reducer collapses the ensemble members at one (step, lat, lon) cell into a
// single value. NaN members are no-data; a cell whose members are all NaN
// reduces to NaN. Implementations must not retain the members slice.
type Reducer interface {
	Name() string
	Reduce(members []float64) float64
}

// MeanReducer is the arithmetic mean of the non-NaN members.
type MeanReducer struct{}

func (MeanReducer) Name() string { return "mean" }

func (MeanReducer) Reduce(members []float64) float64 {
	var sum float64
	var n int
	for _, v := range members {
		if math.IsNaN(v) {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}

// MedianReducer is the median of the non-NaN members.
type MedianReducer struct{}

func (MedianReducer) Name() string { return "median" }

func (MedianReducer) Reduce(members []float64) float64 {
	vals := make([]float64, 0, len(members))
	for _, v := range members {
		if !math.IsNaN(v) {
			vals = append(vals, v)
		}
	}
	if len(vals) == 0 {
		return math.NaN()
	}
	slices.Sort(vals)
	return percentile(vals, 0.5)
}

// WeightedMeanReducer weights member i by Weights[i]. NaN members drop out
// together with their weight.
type WeightedMeanReducer struct {
	Weights []float64
}

func (WeightedMeanReducer) Name() string { return "weighted_mean" }

func (r WeightedMeanReducer) Reduce(members []float64) float64 {
	var sum, wsum float64
	for i, v := range members {
		if math.IsNaN(v) {
			continue
		}
		sum += r.Weights[i] * v
		wsum += r.Weights[i]
	}
	if wsum == 0 {
		return math.NaN()
	}
	return sum / wsum
}

func (r WeightedMeanReducer) checkMembers(members int) error {
	if len(r.Weights) != members {
		return fmt.Errorf("%w: %d weights for %d ensemble members", ErrInvalidArgument, len(r.Weights), members)
	}
	return nil
}

// memberChecker is implemented by reducers that depend on the member count.
type memberChecker interface {
	checkMembers(members int) error
}

// ParseReducer resolves a reducer by name.
func ParseReducer(name string) (Reducer, error) {
	switch name {
	case "", "mean":
		return MeanReducer{}, nil
	case "median":
		return MedianReducer{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown ensemble reducer %q", ErrInvalidArgument, name)
	}
}

// ReduceEnsemble collapses a row-major [step][member][cell] array into
// [step][cell], where cell enumerates the flattened (lat, lon) grid. Every
// output cell depends only on its own members.
func ReduceEnsemble(values []float64, steps, members, cells int, r Reducer) ([]float64, error) {
	if members == 0 {
		return nil, ErrEmptyEnsemble
	}
	if len(values) != steps*members*cells {
		return nil, fmt.Errorf("%w: %d values for shape [%d %d %d]", ErrMalformedCube, len(values), steps, members, cells)
	}
	if mc, ok := r.(memberChecker); ok {
		if err := mc.checkMembers(members); err != nil {
			return nil, err
		}
	}

	out := make([]float64, steps*cells)
	buf := make([]float64, members)
	for s := range steps {
		block := values[s*members*cells : (s+1)*members*cells]
		for c := range cells {
			for m := range members {
				buf[m] = block[m*cells+c]
			}
			out[s*cells+c] = r.Reduce(buf)
		}
	}
	return out, nil
}
