// Package arcmask derives likelihood masks that exclude lensed arcs from an
// image of a lens system. The deflector is assumed to sit near the image
// center; arcs are found from the sign of the radial intensity gradient.
package arcmask

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// DefaultClearCenter is the radius, in arcsec, around the image center that
// is never marked as arc.
const DefaultClearCenter = 0.4

// Generate returns a mask with the shape of image where 1 marks pixels to
// keep in the likelihood and 0 marks the detected arcs.
//
// Pixels where intensity does not fall going outward are candidate arc
// pixels. Candidates within clearCenter/pixelSize pixels of the center are
// dropped, as are 8-connected groups of fewer than five pixels. The rest are
// dilated outward per quadrant, split at row h/2 and column w/2 of the
// lattice, and inverted. A non-positive pixel size disables the center
// clearing. Images smaller than 2×2 yield an all-ones mask.
func Generate(image mat.Matrix, pixelSize, clearCenter float64) *mat.Dense {
	h, w := image.Dims()
	if h < 2 || w < 2 {
		return ones(h, w)
	}

	// Differences live on the (h-1)×(w-1) lattice and element (i, j) is
	// written back to mask pixel (i, j), so the lattice center, and with it
	// the cleared disc, sits half a pixel up and left of the image center.
	rows, cols := h-1, w-1
	radius := clearRadius(pixelSize, clearCenter)
	cy := float64(rows-1) / 2
	cx := float64(cols-1) / 2

	candidates := newGrid(rows, cols)
	central := newGrid(rows, cols)
	for i := 0; i < rows; i++ {
		y := float64(i) - cy
		for j := 0; j < cols; j++ {
			x := float64(j) - cx
			r := math.Sqrt(x*x + y*y)

			dx := image.At(i+1, j+1) - image.At(i+1, j)
			dy := image.At(i+1, j+1) - image.At(i, j+1)
			g := -(dx*x/r + dy*y/r)
			if math.IsNaN(g) {
				g = 0
			}

			if r < radius {
				central.set(i, j, true)
				continue
			}
			candidates.set(i, j, g <= 0)
		}
	}

	filtered := removeSmallRegions(candidates, minRegionArea)
	splitRow, splitCol := quadrantSplit(h, w)
	dilated := dilateOutward(filtered, splitRow, splitCol)

	// Dilation may reach back into the central disc; the deflector region
	// always stays in the likelihood.
	for p, c := range central.cells {
		if c {
			dilated.cells[p] = false
		}
	}

	return invertPadded(dilated, h, w)
}

// clearRadius converts the physical clear-center radius to whole pixels,
// truncating like an integer cast.
func clearRadius(pixelSize, clearCenter float64) float64 {
	if !(pixelSize > 0) || !(clearCenter > 0) {
		return 0
	}
	r := clearCenter / pixelSize
	if math.IsInf(r, 0) || math.IsNaN(r) {
		return 0
	}
	return math.Trunc(r)
}

// invertPadded grows the marked (h-1)×(w-1) map to h×w by appending one row
// and one column holding the minimum of each column and row, then returns
// its complement as a {0,1} matrix.
func invertPadded(marked *grid, h, w int) *mat.Dense {
	padded := newGrid(h, w)
	for i := 0; i < marked.rows; i++ {
		for j := 0; j < marked.cols; j++ {
			padded.set(i, j, marked.get(i, j))
		}
	}

	// A padded cell is marked only if its whole column (then row) is marked.
	for j := 0; j < marked.cols; j++ {
		all := true
		for i := 0; i < marked.rows && all; i++ {
			all = marked.get(i, j)
		}
		padded.set(h-1, j, all)
	}
	for i := 0; i < h; i++ {
		all := true
		for j := 0; j < marked.cols && all; j++ {
			all = padded.get(i, j)
		}
		padded.set(i, w-1, all)
	}

	mask := mat.NewDense(h, w, nil)
	for i := 0; i < h; i++ {
		for j := 0; j < w; j++ {
			if !padded.get(i, j) {
				mask.Set(i, j, 1)
			}
		}
	}
	return mask
}

func ones(h, w int) *mat.Dense {
	if h == 0 || w == 0 {
		return &mat.Dense{}
	}
	data := make([]float64, h*w)
	for i := range data {
		data[i] = 1
	}
	return mat.NewDense(h, w, data)
}

// Intersect returns mask multiplied elementwise by baseline. A nil baseline
// returns a copy of mask.
func Intersect(mask, baseline *mat.Dense) (*mat.Dense, error) {
	out := mat.DenseCopyOf(mask)
	if baseline == nil {
		return out, nil
	}
	mr, mc := mask.Dims()
	br, bc := baseline.Dims()
	if mr != br || mc != bc {
		return nil, &ShapeError{Rows: mr, Cols: mc, BaselineRows: br, BaselineCols: bc}
	}
	out.MulElem(out, baseline)
	return out, nil
}

// ShapeError reports a baseline mask whose shape differs from the image.
type ShapeError struct {
	Rows, Cols                 int
	BaselineRows, BaselineCols int
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("baseline mask shape mismatch: image %dx%d, mask %dx%d",
		e.Rows, e.Cols, e.BaselineRows, e.BaselineCols)
}
