package fit

import (
	"gonum.org/v1/gonum/mat"

	"github.com/cwbudde/lensrecipe/internal/config"
	"github.com/cwbudde/lensrecipe/internal/model"
)

// Renderer renders light profiles onto the pixel grid of one band.
type Renderer interface {
	// Render returns the model image of the given profiles.
	Render(profiles []model.Profile, params []model.ParamSet) *mat.Dense

	// Dims returns the image shape.
	Dims() (rows, cols int)
}

// CPURenderer evaluates profiles at every pixel center.
type CPURenderer struct {
	grid       config.PixelGrid
	rows, cols int
	ra, dec    []float64 // pixel coordinates, row-major
}

// NewCPURenderer creates a renderer for a rows×cols image on grid.
func NewCPURenderer(grid config.PixelGrid, rows, cols int) *CPURenderer {
	r := &CPURenderer{
		grid: grid,
		rows: rows,
		cols: cols,
		ra:   make([]float64, rows*cols),
		dec:  make([]float64, rows*cols),
	}
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			r.ra[y*cols+x], r.dec[y*cols+x] = grid.Coord(float64(x), float64(y))
		}
	}
	return r
}

// Dims returns the image shape.
func (r *CPURenderer) Dims() (rows, cols int) { return r.rows, r.cols }

// Render sums the supported profiles. Profiles without a renderer (e.g.
// shapelets) contribute nothing.
func (r *CPURenderer) Render(profiles []model.Profile, params []model.ParamSet) *mat.Dense {
	img := mat.NewDense(r.rows, r.cols, nil)
	raw := img.RawMatrix()

	for i, p := range profiles {
		if i >= len(params) || p != model.SersicEllipse {
			continue
		}
		s := SersicFromParams(params[i])
		for y := 0; y < r.rows; y++ {
			row := raw.Data[y*raw.Stride : y*raw.Stride+r.cols]
			for x := range row {
				k := y*r.cols + x
				row[x] += s.Eval(r.ra[k], r.dec[k])
			}
		}
	}
	return img
}

var _ Renderer = (*CPURenderer)(nil)
