package arcmask

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"gonum.org/v1/gonum/mat"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// ringImage has a bright core and a fainter ring, like an Einstein ring
// around a deflector.
func ringImage(h, w int) *mat.Dense {
	img := mat.NewDense(h, w, nil)
	cy, cx := float64(h-1)/2, float64(w-1)/2
	for i := 0; i < h; i++ {
		for j := 0; j < w; j++ {
			r := math.Hypot(float64(i)-cy, float64(j)-cx)
			core := math.Exp(-r * r / 4)
			ring := 0.5 * math.Exp(-(r-7)*(r-7)/2)
			img.Set(i, j, core+ring+0.01*math.Sin(float64(3*i+7*j)))
		}
	}
	return img
}

func assertBinary(t *testing.T, m *mat.Dense) {
	t.Helper()
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if v := m.At(i, j); v != 0 && v != 1 {
				t.Fatalf("mask value %v at (%d,%d) is not binary", v, i, j)
			}
		}
	}
}

func TestGenerateShape(t *testing.T) {
	sizes := [][2]int{{21, 21}, {20, 15}, {2, 2}, {3, 40}}
	for _, sz := range sizes {
		m := Generate(ringImage(sz[0], sz[1]), 0.1, DefaultClearCenter)
		r, c := m.Dims()
		assert.Equal(t, sz[0], r)
		assert.Equal(t, sz[1], c)
		assertBinary(t, m)
	}
}

func TestGenerateMarksRing(t *testing.T) {
	m := Generate(ringImage(25, 25), 0.1, DefaultClearCenter)

	masked := 25*25 - int(mat.Sum(m))
	assert.Greater(t, masked, 0, "ring should be masked")
	assert.Less(t, masked, 25*25, "mask should keep some pixels")
}

func TestGenerateCenterPreserved(t *testing.T) {
	const pixelSize = 0.05
	h, w := 30, 26
	m := Generate(ringImage(h, w), pixelSize, DefaultClearCenter)

	// The mask is indexed like the difference lattice.
	radius := math.Trunc(DefaultClearCenter / pixelSize)
	cy, cx := float64(h-2)/2, float64(w-2)/2
	for i := 0; i < h-1; i++ {
		for j := 0; j < w-1; j++ {
			if math.Hypot(float64(i)-cy, float64(j)-cx) < radius {
				require.Equal(t, 1.0, m.At(i, j), "central pixel (%d,%d) masked", i, j)
			}
		}
	}
}

func TestGenerateFlatImage(t *testing.T) {
	flat := mat.NewDense(12, 12, nil)

	// Without center clearing every pixel is a candidate arc; only the
	// inner corners the outward kernels cannot reach stay unmasked.
	uncleared := Generate(flat, 0, DefaultClearCenter)
	assertBinary(t, uncleared)
	assert.Less(t, mat.Sum(uncleared), 36.0)

	cleared := Generate(flat, 0.1, DefaultClearCenter)
	assert.GreaterOrEqual(t, mat.Sum(cleared), mat.Sum(uncleared))
	assert.Equal(t, 1.0, cleared.At(5, 5))
}

func TestGenerateNaN(t *testing.T) {
	img := ringImage(15, 15)
	img.Set(3, 3, math.NaN())

	m := Generate(img, 0.1, DefaultClearCenter)
	assertBinary(t, m)
}

func TestGenerateTinyImages(t *testing.T) {
	m := Generate(mat.NewDense(1, 5, []float64{1, 2, 3, 4, 5}), 0.1, DefaultClearCenter)
	r, c := m.Dims()
	assert.Equal(t, 1, r)
	assert.Equal(t, 5, c)
	assert.Equal(t, 5.0, mat.Sum(m))

	m = Generate(mat.NewDense(1, 1, []float64{7}), 0.1, DefaultClearCenter)
	assert.Equal(t, 1.0, m.At(0, 0))
}

func TestGenerateDeterministic(t *testing.T) {
	img := ringImage(24, 24)
	a := Generate(img, 0.1, DefaultClearCenter)
	b := Generate(img, 0.1, DefaultClearCenter)
	assert.True(t, mat.Equal(a, b))
}

func TestClearRadius(t *testing.T) {
	tests := []struct {
		pixelSize, clearCenter, want float64
	}{
		{0.1, 0.4, 4},
		{0.3, 0.4, 1},
		{0.5, 0.4, 0},
		{0, 0.4, 0},
		{-1, 0.4, 0},
		{math.NaN(), 0.4, 0},
		{0.1, 0, 0},
		{1e-320, 1, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, clearRadius(tt.pixelSize, tt.clearCenter),
			"clearRadius(%v, %v)", tt.pixelSize, tt.clearCenter)
	}
}

func TestRemoveSmallRegions(t *testing.T) {
	g := newGrid(10, 10)
	// 2×2 block: 4 pixels, removed.
	g.set(0, 0, true)
	g.set(0, 1, true)
	g.set(1, 0, true)
	g.set(1, 1, true)
	// Diagonal of 5 pixels: 8-connected, kept.
	for k := 0; k < 5; k++ {
		g.set(4+k, 4+k, true)
	}
	// Isolated pixel, removed.
	g.set(0, 9, true)

	out := removeSmallRegions(g, minRegionArea)
	assert.Equal(t, 5, out.count())
	assert.False(t, out.get(0, 0))
	assert.True(t, out.get(6, 6))
	assert.False(t, out.get(0, 9))
}

func TestLabel(t *testing.T) {
	g := newGrid(3, 5)
	g.set(0, 0, true)
	g.set(1, 1, true)
	g.set(0, 4, true)

	labels, sizes := label(g)
	assert.Equal(t, labels[0], labels[1*5+1], "diagonal neighbours share a region")
	assert.NotEqual(t, labels[0], labels[4])
	assert.Zero(t, labels[2])
	require.Len(t, sizes, 3)
	assert.Zero(t, sizes[0])
	assert.Equal(t, 2, sizes[labels[0]])
	assert.Equal(t, 1, sizes[labels[4]])
}

func TestKernelMatAnchor(t *testing.T) {
	g := newGrid(16, 16)
	g.set(12, 12, true)

	// A lone mark in the lower right quadrant spreads by exactly the
	// kernel table offsets.
	out := dilateOutward(g, 8, 8)
	for m := 0; m < kernelSize; m++ {
		for n := 0; n < kernelSize; n++ {
			i, j := 12+m-kernelOrigin, 12+n-kernelOrigin
			assert.Equal(t, lowerRightKernel[m][n] == 1, out.get(i, j), "offset (%d,%d)", m-kernelOrigin, n-kernelOrigin)
		}
	}
	assert.Equal(t, 28, out.count())
}

// plateauImage falls off radially from the center except along the given
// strips {row, firstCol, lastCol}, which are raised to a constant level.
// Each strip yields a one-row candidate region on lattice row row-1.
func plateauImage(n int, strips ...[3]int) *mat.Dense {
	img := mat.NewDense(n, n, nil)
	c := float64(n-1) / 2
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			y, x := float64(i)-c, float64(j)-c
			img.Set(i, j, -(x*x + y*y))
		}
	}
	for _, s := range strips {
		for j := s[1]; j <= s[2]; j++ {
			img.Set(s[0], j, 1e6)
		}
	}
	return img
}

func TestGenerateQuadrantSplit(t *testing.T) {
	tests := []struct {
		name     string
		size     int
		upper    [3]int // strip whose region lies on the last upper lattice row
		lower    [3]int // strip whose region lies on the first lower lattice row
		splitRow int
	}{
		{"even", 100, [3]int{50, 60, 70}, [3]int{51, 80, 90}, 50},
		{"odd", 99, [3]int{48, 60, 70}, [3]int{50, 80, 90}, 49},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row, col := quadrantSplit(tt.size, tt.size)
			require.Equal(t, tt.splitRow, row)
			require.Equal(t, tt.size/2, col)

			m := Generate(plateauImage(tt.size, tt.upper, tt.lower), 0, DefaultClearCenter)
			assertBinary(t, m)

			// The columns between the strips separate the two regions.
			boundary := (tt.upper[2] + tt.lower[1]) / 2
			var upperMasked, lowerMasked int
			for i := 0; i < tt.size; i++ {
				for j := 0; j < tt.size; j++ {
					if m.At(i, j) != 0 {
						continue
					}
					if j < boundary {
						upperMasked++
						assert.Less(t, i, tt.splitRow, "upper region reached row %d", i)
					} else {
						lowerMasked++
						assert.GreaterOrEqual(t, i, tt.splitRow, "lower region reached row %d", i)
					}
				}
			}
			assert.Greater(t, upperMasked, 11, "upper region should grow")
			assert.Greater(t, lowerMasked, 11, "lower region should grow")

			assert.Equal(t, 0.0, m.At(tt.splitRow-1, 65))
			assert.Equal(t, 1.0, m.At(tt.splitRow, 65))
			assert.Equal(t, 0.0, m.At(tt.splitRow, 85))
			assert.Equal(t, 1.0, m.At(tt.splitRow-1, 85))
		})
	}
}

func TestKernelsAreMirrored(t *testing.T) {
	for m := 0; m < kernelSize; m++ {
		for n := 0; n < kernelSize; n++ {
			assert.Equal(t, upperLeftKernel[m][n], lowerRightKernel[kernelSize-1-m][kernelSize-1-n])
			assert.Equal(t, upperRightKernel[m][n], lowerLeftKernel[kernelSize-1-m][kernelSize-1-n])
			assert.Equal(t, upperLeftKernel[m][n], upperRightKernel[m][kernelSize-1-n])
		}
	}
}

func TestDilateOutward(t *testing.T) {
	g := newGrid(16, 16)
	g.set(10, 10, true) // lower right
	g.set(5, 5, true)   // upper left

	out := dilateOutward(g, 8, 8)

	assert.True(t, out.get(10, 10))
	assert.True(t, out.get(13, 13))
	assert.False(t, out.get(7, 13), "marks stay inside their quadrant")

	assert.True(t, out.get(2, 2))
	assert.False(t, out.get(8, 8))
}

func TestIntersect(t *testing.T) {
	mask := mat.NewDense(2, 2, []float64{1, 1, 0, 1})
	baseline := mat.NewDense(2, 2, []float64{1, 0, 1, 1})

	out, err := Intersect(mask, baseline)
	require.NoError(t, err)
	assert.True(t, mat.Equal(mat.NewDense(2, 2, []float64{1, 0, 0, 1}), out))
	assert.Equal(t, 1.0, mask.At(0, 1), "input is not modified")

	out, err = Intersect(mask, nil)
	require.NoError(t, err)
	assert.True(t, mat.Equal(mask, out))

	_, err = Intersect(mask, mat.NewDense(3, 2, nil))
	var shapeErr *ShapeError
	require.True(t, errors.As(err, &shapeErr))
	assert.Equal(t, 3, shapeErr.BaselineRows)
	assert.Contains(t, err.Error(), "2x2")
}
