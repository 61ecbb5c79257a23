package fit

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// CostFunc computes the error between a model and the observed image under
// a likelihood mask.
type CostFunc func(model, data, mask *mat.Dense) float64

// MaskedMSE computes the mean squared residual over pixels where mask is
// non-zero. A nil mask uses every pixel; an empty mask costs 0.
func MaskedMSE(model, data, mask *mat.Dense) float64 {
	rows, cols := data.Dims()
	if mr, mc := model.Dims(); mr != rows || mc != cols {
		panic(fmt.Sprintf("MaskedMSE: model %dx%d does not match data %dx%d", mr, mc, rows, cols))
	}
	if mask != nil {
		if mr, mc := mask.Dims(); mr != rows || mc != cols {
			panic(fmt.Sprintf("MaskedMSE: mask %dx%d does not match data %dx%d", mr, mc, rows, cols))
		}
	}

	var sum float64
	var n int
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			if mask != nil && mask.At(y, x) == 0 {
				continue
			}
			d := model.At(y, x) - data.At(y, x)
			sum += d * d
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
