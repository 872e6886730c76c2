package match

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// SigmaCut zeroes the pixels of each image that are not above level times
// that image's population standard deviation. NaN pixels stay NaN, and any
// NaN in an image makes its deviation NaN. ok is false when the products of
// the cut images over their jointly valid pixels sum to exactly zero; the
// inputs are never modified.
func SigmaCut(a, b *mat.Dense, level float64) (cutA, cutB *mat.Dense, ok bool) {
	cutA = threshold(a, level)
	cutB = threshold(b, level)

	va, vb := flatten(cutA), flatten(cutB)
	products := make([]float64, 0, len(va))
	for i := range va {
		if math.IsNaN(va[i]) || math.IsNaN(vb[i]) {
			continue
		}
		products = append(products, va[i]*vb[i])
	}
	if floats.Sum(products) == 0 {
		return nil, nil, false
	}
	return cutA, cutB, true
}

func threshold(m *mat.Dense, level float64) *mat.Dense {
	_, std := stat.PopMeanStdDev(flatten(m), nil)
	limit := std * level

	out := mat.DenseCopyOf(m)
	out.Apply(func(_, _ int, v float64) float64 {
		if v > limit {
			return v
		}
		return v * 0
	}, out)
	return out
}

// flatten returns the elements of m in row-major order.
func flatten(m *mat.Dense) []float64 {
	rows, cols := m.Dims()
	out := make([]float64, 0, rows*cols)
	for r := 0; r < rows; r++ {
		out = append(out, m.RawRowView(r)...)
	}
	return out
}
