// Package imageio converts between grayscale PNG files and the float
// matrices used for band images and likelihood masks.
package imageio

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"os"

	"gonum.org/v1/gonum/mat"

	"github.com/cwbudde/lensrecipe/internal/arcmask"
	"github.com/cwbudde/lensrecipe/internal/config"
	"github.com/cwbudde/lensrecipe/internal/recipe"
)

// LoadGray reads a PNG file into a matrix of intensities in [0, 1].
func LoadGray(path string) (*mat.Dense, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	m, err := DecodeGray(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// DecodeGray decodes a PNG image into a matrix of intensities in [0, 1].
// Color images are converted to 16-bit luminance. Row 0 is the top row.
func DecodeGray(r io.Reader) (*mat.Dense, error) {
	img, err := png.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("empty image")
	}

	m := mat.NewDense(b.Dy(), b.Dx(), nil)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			g := color.Gray16Model.Convert(img.At(x, y)).(color.Gray16)
			m.Set(y-b.Min.Y, x-b.Min.X, float64(g.Y)/0xffff)
		}
	}
	return m, nil
}

// EncodeMask writes m as an 8-bit grayscale PNG: nonzero entries are white.
func EncodeMask(w io.Writer, m mat.Matrix) error {
	rows, cols := m.Dims()
	img := image.NewGray(image.Rect(0, 0, cols, rows))
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if m.At(i, j) != 0 {
				img.SetGray(j, i, color.Gray{Y: 0xff})
			}
		}
	}
	return png.Encode(w, img)
}

// SaveMask writes m to path as a PNG.
func SaveMask(path string, m mat.Matrix) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create mask file: %w", err)
	}
	if err := EncodeMask(f, m); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode mask: %w", err)
	}
	return f.Close()
}

// LoadImages reads one image per path, in order.
func LoadImages(paths []string) ([]*mat.Dense, error) {
	images := make([]*mat.Dense, len(paths))
	for i, p := range paths {
		img, err := LoadGray(p)
		if err != nil {
			return nil, err
		}
		images[i] = img
	}
	return images, nil
}

// LoadJoint reads one image per band of settings. Bands are named after
// settings.Band and carry the configured baseline mask when its shape
// matches the image. No paths yields a nil result.
func LoadJoint(settings *config.Settings, paths []string) (*recipe.JointImageData, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	n, err := settings.BandNumber()
	if err != nil {
		return nil, err
	}
	if len(paths) != n {
		return nil, fmt.Errorf("got %d images for %d bands", len(paths), n)
	}

	images, err := LoadImages(paths)
	if err != nil {
		return nil, err
	}
	masks, err := settings.Masks()
	if err != nil {
		return nil, err
	}

	joint := &recipe.JointImageData{Bands: make([]arcmask.Band, n)}
	for i, img := range images {
		band := arcmask.Band{Name: settings.Band[i], Image: img}
		if i < len(masks) && masks[i] != nil {
			r, c := img.Dims()
			mr, mc := masks[i].Dims()
			if r == mr && c == mc {
				band.Mask = masks[i]
			} else {
				slog.Warn("Configured mask does not match image, ignoring",
					"band", settings.Band[i],
					"image", fmt.Sprintf("%dx%d", r, c),
					"mask", fmt.Sprintf("%dx%d", mr, mc),
				)
			}
		}
		joint.Bands[i] = band
	}
	return joint, nil
}
