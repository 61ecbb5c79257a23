package config

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Masks returns the baseline likelihood mask of each band, or nil when no
// mask section is configured. Provided masks are returned as-is; otherwise
// each band gets a circular mask (1 inside the radius) around the deflector
// center on a linear pixel-to-angle grid.
func (s *Settings) Masks() ([]*mat.Dense, error) {
	if s.Mask == nil {
		return nil, nil
	}

	if s.Mask.Provided != nil {
		masks := make([]*mat.Dense, len(s.Mask.Provided))
		for n, rows := range s.Mask.Provided {
			m, err := denseFromRows(rows)
			if err != nil {
				return nil, fmt.Errorf("provided mask %d: %w", n, err)
			}
			masks[n] = m
		}
		return masks, nil
	}

	bands, err := s.BandNumber()
	if err != nil {
		return nil, err
	}
	if len(s.Mask.Size) < bands {
		return nil, fmt.Errorf("mask options cover %d bands, need %d", len(s.Mask.Size), bands)
	}

	raCenter, decCenter := s.DeflectorCenter()
	masks := make([]*mat.Dense, bands)
	for n := 0; n < bands; n++ {
		t := s.Mask.TransformMatrix[n]
		if len(t) != 2 || len(t[0]) != 2 || len(t[1]) != 2 {
			return nil, fmt.Errorf("transform-matrix %d must be 2x2", n)
		}
		grid := PixelGrid{
			RaAtXY0:  s.Mask.RaAtXY0[n],
			DecAtXY0: s.Mask.DecAtXY0[n],
			Transform: [2][2]float64{
				{t[0][0], t[0][1]},
				{t[1][0], t[1][1]},
			},
		}
		masks[n] = grid.CircularMask(s.Mask.Size[n], raCenter, decCenter, s.Mask.Radius[n])
	}
	return masks, nil
}

// PixelGrid returns the pixel-to-angle map of band n for an image of the
// given shape: the configured mask grid when one exists, else a grid of
// PixelSize spacing centered on the image.
func (s *Settings) PixelGrid(n, rows, cols int) PixelGrid {
	if m := s.Mask; m != nil && n < len(m.RaAtXY0) && n < len(m.DecAtXY0) && n < len(m.TransformMatrix) {
		t := m.TransformMatrix[n]
		if len(t) == 2 && len(t[0]) == 2 && len(t[1]) == 2 {
			return PixelGrid{
				RaAtXY0:   m.RaAtXY0[n],
				DecAtXY0:  m.DecAtXY0[n],
				Transform: [2][2]float64{{t[0][0], t[0][1]}, {t[1][0], t[1][1]}},
			}
		}
	}
	p := s.PixelSize
	return PixelGrid{
		RaAtXY0:   -float64(cols-1) / 2 * p,
		DecAtXY0:  -float64(rows-1) / 2 * p,
		Transform: [2][2]float64{{p, 0}, {0, p}},
	}
}

// PixelGrid maps pixel indices to angular coordinates linearly.
type PixelGrid struct {
	RaAtXY0   float64
	DecAtXY0  float64
	Transform [2][2]float64
}

// Coord returns the angular coordinate of pixel column x, row y.
func (g PixelGrid) Coord(x, y float64) (ra, dec float64) {
	ra = g.Transform[0][0]*x + g.Transform[0][1]*y + g.RaAtXY0
	dec = g.Transform[1][0]*x + g.Transform[1][1]*y + g.DecAtXY0
	return ra, dec
}

// CircularMask returns a size×size mask that is 1 within radius of the
// given center and 0 elsewhere.
func (g PixelGrid) CircularMask(size int, raCenter, decCenter, radius float64) *mat.Dense {
	m := mat.NewDense(size, size, nil)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			ra, dec := g.Coord(float64(x), float64(y))
			if math.Hypot(ra-raCenter, dec-decCenter) <= radius {
				m.Set(y, x, 1)
			}
		}
	}
	return m
}

func denseFromRows(rows [][]float64) (*mat.Dense, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, fmt.Errorf("mask is empty")
	}
	cols := len(rows[0])
	m := mat.NewDense(len(rows), cols, nil)
	for i, row := range rows {
		if len(row) != cols {
			return nil, fmt.Errorf("row %d has %d columns, want %d", i, len(row), cols)
		}
		m.SetRow(i, row)
	}
	return m, nil
}
