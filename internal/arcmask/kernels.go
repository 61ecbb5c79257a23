package arcmask

import (
	"image"

	"gocv.io/x/gocv"
)

// kernel is an 8×8 binary structuring element. Element (m, n) spreads a
// marked pixel by (m-kernelOrigin, n-kernelOrigin).
type kernel [kernelSize][kernelSize]uint8

const (
	kernelSize   = 8
	kernelOrigin = kernelSize / 2
)

// kernelAnchor pairs with the point-reflected Mat from kernel.mat so that
// cv::dilate spreads by the same offsets as the kernel table.
var kernelAnchor = image.Pt(kernelSize-1-kernelOrigin, kernelSize-1-kernelOrigin)

// mat returns k rotated by 180 degrees as an 8-bit Mat. The caller closes
// the Mat.
func (k *kernel) mat() gocv.Mat {
	m := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), kernelSize, kernelSize, gocv.MatTypeCV8U)
	for i := 0; i < kernelSize; i++ {
		for j := 0; j < kernelSize; j++ {
			m.SetUCharAt(i, j, k[kernelSize-1-i][kernelSize-1-j])
		}
	}
	return m
}

// upperLeftKernel grows marks up and to the left: ones above the anti-diagonal.
var upperLeftKernel = kernel{
	{1, 1, 1, 1, 1, 1, 1, 0},
	{1, 1, 1, 1, 1, 1, 0, 0},
	{1, 1, 1, 1, 1, 0, 0, 0},
	{1, 1, 1, 1, 0, 0, 0, 0},
	{1, 1, 1, 0, 0, 0, 0, 0},
	{1, 1, 0, 0, 0, 0, 0, 0},
	{1, 0, 0, 0, 0, 0, 0, 0},
	{0, 0, 0, 0, 0, 0, 0, 0},
}

// upperRightKernel grows marks up and to the right: ones above the diagonal.
var upperRightKernel = kernel{
	{0, 1, 1, 1, 1, 1, 1, 1},
	{0, 0, 1, 1, 1, 1, 1, 1},
	{0, 0, 0, 1, 1, 1, 1, 1},
	{0, 0, 0, 0, 1, 1, 1, 1},
	{0, 0, 0, 0, 0, 1, 1, 1},
	{0, 0, 0, 0, 0, 0, 1, 1},
	{0, 0, 0, 0, 0, 0, 0, 1},
	{0, 0, 0, 0, 0, 0, 0, 0},
}

// lowerLeftKernel grows marks down and to the left: ones below the diagonal.
var lowerLeftKernel = kernel{
	{0, 0, 0, 0, 0, 0, 0, 0},
	{1, 0, 0, 0, 0, 0, 0, 0},
	{1, 1, 0, 0, 0, 0, 0, 0},
	{1, 1, 1, 0, 0, 0, 0, 0},
	{1, 1, 1, 1, 0, 0, 0, 0},
	{1, 1, 1, 1, 1, 0, 0, 0},
	{1, 1, 1, 1, 1, 1, 0, 0},
	{1, 1, 1, 1, 1, 1, 1, 0},
}

// lowerRightKernel grows marks down and to the right: ones below the anti-diagonal.
var lowerRightKernel = kernel{
	{0, 0, 0, 0, 0, 0, 0, 0},
	{0, 0, 0, 0, 0, 0, 0, 1},
	{0, 0, 0, 0, 0, 0, 1, 1},
	{0, 0, 0, 0, 0, 1, 1, 1},
	{0, 0, 0, 0, 1, 1, 1, 1},
	{0, 0, 0, 1, 1, 1, 1, 1},
	{0, 0, 1, 1, 1, 1, 1, 1},
	{0, 1, 1, 1, 1, 1, 1, 1},
}
