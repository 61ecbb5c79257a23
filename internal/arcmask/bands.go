package arcmask

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// Band is the pixel data of one imaging band and its baseline likelihood
// mask. A nil Mask means every pixel is used.
type Band struct {
	Name  string
	Image *mat.Dense
	Mask  *mat.Dense
}

// Bands computes the arc mask of every band, intersected with the band's
// baseline mask. Bands are processed concurrently; the result keeps band
// order.
func Bands(ctx context.Context, bands []Band, pixelSize, clearCenter float64) ([]*mat.Dense, error) {
	masks := make([]*mat.Dense, len(bands))

	g, ctx := errgroup.WithContext(ctx)
	for i, band := range bands {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if band.Image == nil {
				return fmt.Errorf("band %d (%s): missing image", i, band.Name)
			}

			arc := Generate(band.Image, pixelSize, clearCenter)
			m, err := Intersect(arc, band.Mask)
			if err != nil {
				return fmt.Errorf("band %d (%s): %w", i, band.Name, err)
			}
			masks[i] = m

			r, c := m.Dims()
			slog.Debug("Arc mask generated",
				"band", i,
				"name", band.Name,
				"masked_pixels", r*c-int(mat.Sum(m)),
			)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return masks, nil
}
