package transforms

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"
)

// Scaler normalizes each channel of a window. It returns new slices and
// leaves x untouched.
type Scaler interface {
	Scale(x [][]float32) [][]float32
}

// NewScaler returns the scaler named by name, or nil for "" and "none".
func NewScaler(name string) (Scaler, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none":
		return nil, nil
	case "robust":
		return Robust{}, nil
	case "standard":
		return Standard{}, nil
	default:
		return nil, errors.Wrapf(ErrUnknownTransform, "scaling %q", name)
	}
}

// Robust centres each channel on its median and divides by the
// interquartile range.
type Robust struct{}

// Scale implements Scaler.
func (Robust) Scale(x [][]float32) [][]float32 {
	out := make([][]float32, len(x))
	for c, ch := range x {
		sorted := toFloat64(ch)
		sort.Float64s(sorted)
		var median, iqr float64
		if len(sorted) > 0 {
			median = stat.Quantile(0.5, stat.LinInterp, sorted, nil)
			iqr = stat.Quantile(0.75, stat.LinInterp, sorted, nil) - stat.Quantile(0.25, stat.LinInterp, sorted, nil)
		}
		out[c] = affine(ch, median, iqr)
	}
	return out
}

// Standard scales each channel to zero mean and unit variance.
type Standard struct{}

// Scale implements Scaler.
func (Standard) Scale(x [][]float32) [][]float32 {
	out := make([][]float32, len(x))
	for c, ch := range x {
		var mean, std float64
		if len(ch) > 1 {
			mean, std = stat.MeanStdDev(toFloat64(ch), nil)
		} else if len(ch) == 1 {
			mean = float64(ch[0])
		}
		out[c] = affine(ch, mean, std)
	}
	return out
}

// affine returns (x-shift)/scale, leaving the scale out when it vanishes.
func affine(x []float32, shift, scale float64) []float32 {
	if scale <= 1e-12 {
		scale = 1
	}
	out := make([]float32, len(x))
	for i, v := range x {
		out[i] = float32((float64(v) - shift) / scale)
	}
	return out
}

func toFloat64(x []float32) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = float64(v)
	}
	return out
}
