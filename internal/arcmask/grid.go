package arcmask

import "gocv.io/x/gocv"

// grid is a dense row-major binary map.
type grid struct {
	rows, cols int
	cells      []bool
}

func newGrid(rows, cols int) *grid {
	return &grid{rows: rows, cols: cols, cells: make([]bool, rows*cols)}
}

func (g *grid) get(i, j int) bool { return g.cells[i*g.cols+j] }

func (g *grid) set(i, j int, v bool) { g.cells[i*g.cols+j] = v }

func (g *grid) count() int {
	n := 0
	for _, c := range g.cells {
		if c {
			n++
		}
	}
	return n
}

// toMat copies g into a single-channel 8-bit Mat, 255 where marked.
// The caller closes the Mat.
func (g *grid) toMat() gocv.Mat {
	m := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), g.rows, g.cols, gocv.MatTypeCV8U)
	for i := 0; i < g.rows; i++ {
		for j := 0; j < g.cols; j++ {
			if g.get(i, j) {
				m.SetUCharAt(i, j, 255)
			}
		}
	}
	return m
}

// paste marks every nonzero pixel of m in g, offset by (r0, c0).
func (g *grid) paste(m gocv.Mat, r0, c0 int) {
	for i := 0; i < m.Rows(); i++ {
		for j := 0; j < m.Cols(); j++ {
			if m.GetUCharAt(i, j) != 0 {
				g.set(r0+i, c0+j, true)
			}
		}
	}
}
