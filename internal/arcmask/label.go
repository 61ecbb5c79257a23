package arcmask

import "gocv.io/x/gocv"

// minRegionArea is the smallest 8-connected region of marked pixels that
// survives filtering; smaller regions are treated as noise.
const minRegionArea = 5

// label assigns a region id (1..n) to every marked pixel, with pixels
// joined through any of their eight neighbours. Unmarked pixels get 0 and
// sizes[0] is always 0.
func label(g *grid) (labels []int, sizes []int) {
	src := g.toMat()
	defer src.Close()
	ids := gocv.NewMat()
	defer ids.Close()

	n := gocv.ConnectedComponentsWithParams(src, &ids, 8, gocv.MatTypeCV32S, gocv.CCL_DEFAULT)
	sizes = make([]int, n)
	labels = make([]int, len(g.cells))
	for i := 0; i < g.rows; i++ {
		for j := 0; j < g.cols; j++ {
			id := int(ids.GetIntAt(i, j))
			labels[i*g.cols+j] = id
			if id != 0 {
				sizes[id]++
			}
		}
	}
	return labels, sizes
}

// removeSmallRegions clears every region with fewer than minArea pixels.
func removeSmallRegions(g *grid, minArea int) *grid {
	labels, sizes := label(g)
	out := newGrid(g.rows, g.cols)
	for p, id := range labels {
		if id != 0 && sizes[id] >= minArea {
			out.cells[p] = true
		}
	}
	return out
}
