package fit

import (
	"fmt"
	"log/slog"

	"gonum.org/v1/gonum/mat"

	"github.com/cwbudde/lensrecipe/internal/config"
	"github.com/cwbudde/lensrecipe/internal/model"
	"github.com/cwbudde/lensrecipe/internal/sequence"
)

// ImageLikelihood scores the lens-light model of every band against the
// observed images. Lens and source parameters do not enter the model.
type ImageLikelihood struct {
	images    []*mat.Dense
	baseline  []*mat.Dense
	renderers []Renderer
	profiles  []model.Profile
	costFunc  CostFunc
}

// NewImageLikelihood prepares one renderer per band image. Baseline masks
// from the settings apply until a recipe installs its own.
func NewImageLikelihood(settings *config.Settings, images []*mat.Dense) (*ImageLikelihood, error) {
	bands, err := settings.BandNumber()
	if err != nil {
		return nil, err
	}
	if len(images) != bands {
		return nil, fmt.Errorf("got %d images for %d bands", len(images), bands)
	}
	profiles, err := model.ParseProfiles(model.LensLight, settings.ModelNames(model.LensLight))
	if err != nil {
		return nil, err
	}
	baseline, err := settings.Masks()
	if err != nil {
		return nil, err
	}

	l := &ImageLikelihood{
		images:   images,
		baseline: baseline,
		profiles: profiles,
		costFunc: MaskedMSE,
	}
	for n, img := range images {
		rows, cols := img.Dims()
		l.renderers = append(l.renderers, NewCPURenderer(settings.PixelGrid(n, rows, cols), rows, cols))
	}

	slog.Debug("Image likelihood prepared", "bands", bands, "lens_light_profiles", len(profiles))
	return l, nil
}

// Render returns the model image of band n.
func (l *ImageLikelihood) Render(n int, params sequence.Params) *mat.Dense {
	k := len(l.profiles)
	sets := params[model.LensLight]
	if (n+1)*k > len(sets) {
		rows, cols := l.renderers[n].Dims()
		return mat.NewDense(rows, cols, nil)
	}
	return l.renderers[n].Render(l.profiles, sets[n*k:(n+1)*k])
}

// Cost sums the per-band cost under the masks currently installed in st.
func (l *ImageLikelihood) Cost(params sequence.Params, st *sequence.State) float64 {
	var total float64
	for n, img := range l.images {
		total += l.costFunc(l.Render(n, params), img, l.mask(n, st))
	}
	return total
}

// Objective adapts Cost for a replay runner.
func (l *ImageLikelihood) Objective() sequence.Objective {
	return l.Cost
}

func (l *ImageLikelihood) mask(n int, st *sequence.State) *mat.Dense {
	if st != nil && n < len(st.Masks) && st.Masks[n] != nil {
		return st.Masks[n]
	}
	if n < len(l.baseline) {
		return l.baseline[n]
	}
	return nil
}
