package arcmask

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// quadrant is a half-open rectangle [r0, r1) × [c0, c1).
type quadrant struct {
	r0, r1, c0, c1 int
	k              *kernel
}

func (q quadrant) empty() bool { return q.r0 >= q.r1 || q.c0 >= q.c1 }

// quadrantSplit is the first lower row and first right column of the
// difference lattice of an h×w image.
func quadrantSplit(h, w int) (row, col int) {
	return h / 2, w / 2
}

// dilateOutward dilates each quadrant of g separately with the kernel that
// points away from the image center. Marks never cross a quadrant border.
func dilateOutward(g *grid, splitRow, splitCol int) *grid {
	quadrants := [4]quadrant{
		{0, splitRow, 0, splitCol, &upperLeftKernel},
		{0, splitRow, splitCol, g.cols, &upperRightKernel},
		{splitRow, g.rows, 0, splitCol, &lowerLeftKernel},
		{splitRow, g.rows, splitCol, g.cols, &lowerRightKernel},
	}

	src := g.toMat()
	defer src.Close()

	out := newGrid(g.rows, g.cols)
	for _, q := range quadrants {
		if q.empty() {
			continue
		}
		dilateQuadrant(src, out, q)
	}
	return out
}

func dilateQuadrant(src gocv.Mat, out *grid, q quadrant) {
	// Cloning the region keeps the neighbouring quadrants out of the
	// dilation border.
	roi := src.Region(image.Rect(q.c0, q.r0, q.c1, q.r1))
	part := roi.Clone()
	roi.Close()
	defer part.Close()

	k := q.k.mat()
	defer k.Close()
	dst := gocv.NewMat()
	defer dst.Close()

	gocv.DilateWithParams(part, &dst, k, kernelAnchor, 1, gocv.BorderConstant, color.RGBA{})
	out.paste(dst, q.r0, q.c0)
}
